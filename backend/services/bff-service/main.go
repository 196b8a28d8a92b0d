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
	"github.com/caffeinepub/openframe-education/backend/services/bff-service/cache"
	"github.com/caffeinepub/openframe-education/backend/services/bff-service/checkout"
	"github.com/caffeinepub/openframe-education/backend/services/bff-service/clients"
	"github.com/caffeinepub/openframe-education/backend/services/bff-service/config"
	"github.com/caffeinepub/openframe-education/backend/services/bff-service/controllers"
	"github.com/caffeinepub/openframe-education/backend/services/bff-service/events"
	"github.com/caffeinepub/openframe-education/backend/services/bff-service/routes"
	"github.com/caffeinepub/openframe-education/backend/services/common/auth"
	apperrors "github.com/caffeinepub/openframe-education/backend/services/common/errors"
	"github.com/caffeinepub/openframe-education/backend/services/common/logger"
	commonmw "github.com/caffeinepub/openframe-education/backend/services/common/middleware"
	"github.com/caffeinepub/openframe-education/backend/services/common/validation"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "bff-service"

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

	var metrics awspkg.MetricsRecorder
	if mc, err := awspkg.NewMetricsClient(rootCtx); err != nil {
		zl.Warn("CloudWatch metrics unavailable", zap.Error(err))
	} else if mc.IsEnabled() {
		metrics = mc
	}

	if cfg.PaymentServiceURL == "" {
		zl.Warn("PAYMENT_SERVICE_URL not set, checkout and payment views are unavailable")
	}
	payments := clients.NewPaymentsClient(cfg.PaymentServiceURL, cfg.RequestTimeout)

	paymentsCache, closeCache := newPaymentsCache(rootCtx, cfg, zl)
	defer closeCache()
	paymentsCache.SetMetrics(metrics)

	loader := checkout.NewScriptLoader(cfg.CheckoutScriptURL, &http.Client{Timeout: 15 * time.Second}, zl)
	loader.SetMetrics(metrics)
	go loader.EnsureReady(rootCtx)

	sessions := checkout.NewSessionController(loader, cfg.CheckoutKeyID, cfg.CheckoutThemeColor, zl)
	sessions.SetMetrics(metrics)
	flow := checkout.NewFlow(
		checkout.NewOrderClient(payments, cfg.RequestTimeout, zl),
		sessions,
		checkout.NewConfirmationRelay(payments, paymentsCache, cfg.RequestTimeout, zl),
		zl,
	)
	flow.StartJanitor(rootCtx, cfg.CheckoutAbandonTTL, time.Minute)

	handler := events.NewHandler(paymentsCache, zl)
	handler.SetMetrics(metrics)
	startEventConsumer(rootCtx, cfg, handler, zl)

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
		c.JSON(http.StatusOK, gin.H{
			"status":           "healthy",
			"service":          serviceName,
			"checkout_script":  loader.State().String(),
			"open_checkouts":   flow.Open(),
			"payments_service": payments.Configured(),
		})
	})

	routes.RegisterRoutes(r,
		controllers.NewBFFController(payments, paymentsCache, zl),
		controllers.NewCheckoutController(flow, loader, zl),
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

	zl.Info("BFF service started",
		zap.String("port", cfg.Port),
		zap.String("payment_service", cfg.PaymentServiceURL),
		zap.String("payment_events", cfg.PaymentEventsSource),
	)
	<-quit
	zl.Info("Shutting down BFF service...")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zl.Error("Server forced to shutdown", zap.Error(err))
	}
	zl.Info("Server exited cleanly")
}

// newPaymentsCache connects to redis when REDIS_URL is set. Without it the
// returned cache is nil and every read is a miss.
func newPaymentsCache(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*cache.PaymentsCache, func()) {
	if cfg.RedisURL == "" {
		zl.Info("REDIS_URL not set, payments cache disabled")
		return nil, func() {}
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zl.Warn("Invalid REDIS_URL, payments cache disabled", zap.Error(err))
		return nil, func() {}
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		zl.Warn("Redis unreachable, payments cache disabled", zap.Error(err))
		_ = rdb.Close()
		return nil, func() {}
	}
	zl.Info("Connected to redis", zap.String("addr", opts.Addr))
	return cache.NewPaymentsCache(rdb, cfg.PaymentsCacheTTL, zl), func() {
		if err := rdb.Close(); err != nil {
			zl.Warn("Redis close failed", zap.Error(err))
		}
	}
}

// startEventConsumer subscribes to payment events so cached payment lists
// drop as soon as the payment-service changes a payment.
func startEventConsumer(ctx context.Context, cfg *config.Config, handler *events.Handler, zl *zap.Logger) {
	switch cfg.PaymentEventsSource {
	case "sqs":
		awsCfg, err := awspkg.LoadAWSConfig(ctx)
		if err != nil {
			zl.Warn("AWS config unavailable, payment events not consumed", zap.Error(err))
			return
		}
		queueURL, err := awspkg.ResolveQueueURL(ctx, awsCfg, cfg.PaymentEventsQueueURL)
		if err != nil {
			zl.Warn("Payment events queue not found, payment events not consumed", zap.Error(err))
			return
		}
		consumer := awspkg.NewSQSConsumer(awsCfg, queueURL, zl)
		go func() {
			if err := consumer.StartPolling(ctx, handler.SQS()); err != nil && ctx.Err() == nil {
				zl.Error("SQS consumer stopped", zap.Error(err))
			}
		}()
	case "kafka":
		consumer := events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.PaymentEventsTopic, cfg.KafkaGroupID, handler, zl)
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				zl.Error("Kafka consumer stopped", zap.Error(err))
			}
		}()
	}
}
