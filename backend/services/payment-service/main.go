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
	"github.com/caffeinepub/openframe-education/backend/services/common/validation"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/config"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/controllers"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/gateway"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/kafka"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/models"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/repository"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/routes"
	"github.com/caffeinepub/openframe-education/backend/services/payment-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "payment-service"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
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
	if err := validation.Register(); err != nil {
		zl.Fatal("Failed to register validators", zap.Error(err))
	}

	db, err := database.ConnectPostgres(zl, cfg.DSN(), &models.PricingPlan{}, &models.Student{}, &models.Payment{})
	if err != nil {
		zl.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck

	provider, err := gateway.New(gateway.Settings{
		Name:                  cfg.Gateway,
		RazorpayKeyID:         cfg.RazorpayKeyID,
		RazorpayKeySecret:     cfg.RazorpayKeySecret,
		RazorpayWebhookSecret: cfg.RazorpayWebhookSecret,
		StripeSecretKey:       cfg.StripeSecretKey,
		StripePublishableKey:  cfg.StripePublishableKey,
		StripeWebhookSecret:   cfg.StripeWebhookKey,
	})
	if err != nil {
		zl.Fatal("Failed to configure payment gateway", zap.String("gateway", cfg.Gateway), zap.Error(err))
	}

	var metrics awspkg.MetricsRecorder
	if mc, err := awspkg.NewMetricsClient(rootCtx); err != nil {
		zl.Warn("CloudWatch metrics unavailable", zap.Error(err))
	} else if mc.IsEnabled() {
		metrics = mc
	}

	publisher, closePublisher := newPublisher(rootCtx, cfg, zl)
	defer closePublisher()

	paymentService := services.NewPaymentService(
		repository.NewGormPaymentRepo(db),
		repository.NewGormCatalogRepo(db),
		provider,
		publisher,
		metrics,
		cfg.Currency,
		zl,
	)
	catalogService := services.NewCatalogService(repository.NewGormCatalogRepo(db), zl)

	services.StartStaleOrderSweeper(rootCtx, paymentService, cfg.PendingOrderTTL, zl)

	rl := commonmw.NewRateLimiter(rate.Every(time.Second), 5, 10*time.Minute)
	defer rl.Stop()

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(commonmw.RequestLogger(zl))
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.CORSMiddleware())
	r.Use(commonmw.Timeout(30 * time.Second))
	r.Use(apperrors.ErrorMiddleware())
	if metrics != nil {
		r.Use(commonmw.MetricsMiddleware(metrics, serviceName))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName, "gateway": provider.Name()})
	})

	routes.RegisterPaymentRoutes(r,
		controllers.NewPaymentController(paymentService),
		controllers.NewCatalogController(catalogService),
		rl,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("Server failed", zap.Error(err))
		}
	}()

	zl.Info("Payment service started",
		zap.String("port", cfg.Port),
		zap.String("gateway", provider.Name()),
		zap.String("event_bus", cfg.EventBus),
	)
	<-quit
	zl.Info("Shutting down payment service...")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zl.Error("Server forced to shutdown", zap.Error(err))
	}
	zl.Info("Server exited cleanly")
}

// newPublisher picks the event bus named by EVENT_BUS. An unavailable bus
// degrades to dropping events rather than refusing to start.
func newPublisher(ctx context.Context, cfg *config.Config, zl *zap.Logger) (services.EventPublisher, func()) {
	switch cfg.EventBus {
	case "sns":
		awsCfg, err := awspkg.LoadAWSConfig(ctx)
		if err != nil {
			zl.Warn("AWS config unavailable, payment events disabled", zap.Error(err))
			return services.NoopPublisher{}, func() {}
		}
		return services.NewSNSEventPublisher(awspkg.NewSNSClient(awsCfg), cfg.PaymentSNSTopicARN), func() {}
	case "kafka":
		producer := kafka.NewPaymentEventProducer(cfg.KafkaBrokers, cfg.PaymentEventsTopic, zl)
		return producer, func() {
			if err := producer.Close(); err != nil {
				zl.Warn("Kafka producer close failed", zap.Error(err))
			}
		}
	default:
		zl.Info("EVENT_BUS not set, payment events are not published")
		return services.NoopPublisher{}, func() {}
	}
}
