package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awspkg "github.com/caffeinepub/openframe-education/backend/pkg/aws"
	"github.com/caffeinepub/openframe-education/backend/services/common/auth"
	"github.com/caffeinepub/openframe-education/backend/services/common/database"
	apperrors "github.com/caffeinepub/openframe-education/backend/services/common/errors"
	"github.com/caffeinepub/openframe-education/backend/services/common/logger"
	commonmw "github.com/caffeinepub/openframe-education/backend/services/common/middleware"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/config"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/consumer"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/controllers"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/models"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/repository"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/routes"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/sender"
	"github.com/caffeinepub/openframe-education/backend/services/notification-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "notification-service"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	var cwWriter io.Writer
	if cfg.CloudWatchEnabled {
		if cw, err := awspkg.NewCloudWatchLogsClient(rootCtx, serviceName); err == nil && cw.IsEnabled() {
			cwWriter = cw
		}
	}
	zl := logger.Initialize(cfg.AppEnv, cwWriter)
	defer zl.Sync() //nolint:errcheck

	if cfg.JWTSecret != "" {
		auth.SetSecret(cfg.JWTSecret)
	}

	db, err := database.ConnectPostgres(zl, cfg.DSN(), &models.NotificationLog{}, &models.Contact{})
	if err != nil {
		zl.Fatal("DB connection failed", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck

	var metrics awspkg.MetricsRecorder
	if mc, err := awspkg.NewMetricsClient(rootCtx); err != nil {
		zl.Warn("CloudWatch metrics client init failed (non-fatal)", zap.Error(err))
	} else if mc.IsEnabled() {
		metrics = mc
	}

	var emailSender sender.EmailSender
	if cfg.EmailEnabled() {
		s, err := sender.NewSMTPSender(sender.SMTPSettings{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			zl.Fatal("Failed to init SMTP sender", zap.Error(err))
		}
		emailSender = s
	}
	var smsSender sender.SMSSender
	if cfg.SMSEnabled() {
		s, err := sender.NewTwilioSender(sender.TwilioSettings{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
		})
		if err != nil {
			zl.Fatal("Failed to init Twilio sender", zap.Error(err))
		}
		smsSender = s
	}

	notificationService, err := services.NewNotificationService(
		repository.NewNotificationRepository(db),
		emailSender,
		smsSender,
		metrics,
		zl,
	)
	if err != nil {
		zl.Fatal("Failed to initialize notification service", zap.Error(err))
	}

	awsCfg, err := awspkg.LoadAWSConfig(rootCtx)
	if err != nil {
		zl.Fatal("AWS config unavailable", zap.Error(err))
	}
	queueURL, err := awspkg.ResolveQueueURL(rootCtx, awsCfg, cfg.PaymentEventsQueueURL)
	if err != nil {
		zl.Fatal("Payment events queue not found", zap.Error(err))
	}
	sqsConsumer := awspkg.NewSQSConsumer(awsCfg, queueURL, zl)
	go func() {
		if err := sqsConsumer.StartPolling(rootCtx, consumer.PaymentEvents(notificationService, zl)); err != nil && rootCtx.Err() == nil {
			zl.Error("SQS consumer stopped", zap.Error(err))
		}
	}()

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(commonmw.RequestLogger(zl))
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.Timeout(30 * time.Second))
	r.Use(apperrors.ErrorMiddleware())
	if metrics != nil {
		r.Use(commonmw.MetricsMiddleware(metrics, serviceName))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "OK",
			"service": serviceName,
			"email":   emailSender != nil,
			"sms":     smsSender != nil,
		})
	})
	routes.RegisterRoutes(r, controllers.NewNotificationController(notificationService, zl))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zl.Info("Notification service started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("Initiating graceful shutdown...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server shutdown error", zap.Error(err))
	}
	zl.Info("Notification service stopped gracefully")
}
