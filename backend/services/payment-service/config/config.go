package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	awspkg "github.com/caffeinepub/openframe-education/backend/pkg/aws"

	"github.com/joho/godotenv"
)

const (
	secretDBCredentials = "payments/DB_CREDENTIALS"
	secretGatewayKeys   = "payments/GATEWAY_KEYS"
)

type Config struct {
	Port             string
	AppEnv           string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	Gateway               string // razorpay or stripe
	Currency              string
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	StripeSecretKey       string
	StripePublishableKey  string
	StripeWebhookKey      string

	EventBus           string // sns, kafka or empty
	PaymentSNSTopicARN string
	KafkaBrokers       []string
	PaymentEventsTopic string

	PendingOrderTTL   time.Duration
	JWTSecret         string
	CloudWatchEnabled bool
}

// DSN is the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

// LoadConfig reads configuration from the environment (and .env when
// present). With AWS_USE_SECRETS=true, DB credentials and gateway keys are
// overridden from Secrets Manager.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := fromEnv()

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if awsCfg, err := awspkg.LoadAWSConfig(ctx); err == nil {
			applySecrets(ctx, cfg, awspkg.NewSecretsClient(awsCfg))
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	ttl, err := time.ParseDuration(getEnv("PENDING_ORDER_TTL", "30m"))
	if err != nil || ttl <= 0 {
		ttl = 30 * time.Minute
	}

	return &Config{
		Port:             getEnv("PORT", "8087"),
		AppEnv:           getEnv("APP_ENV", "development"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),

		Gateway:               strings.ToLower(getEnv("PAYMENT_GATEWAY", "razorpay")),
		Currency:              strings.ToUpper(getEnv("PAYMENT_CURRENCY", "INR")),
		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		StripeSecretKey:       os.Getenv("STRIPE_API_KEY"),
		StripePublishableKey:  os.Getenv("STRIPE_PUBLISHABLE_KEY"),
		StripeWebhookKey:      os.Getenv("STRIPE_WEBHOOK_SECRET"),

		EventBus:           strings.ToLower(os.Getenv("EVENT_BUS")),
		PaymentSNSTopicARN: os.Getenv("PAYMENT_SNS_TOPIC_ARN"),
		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		PaymentEventsTopic: getEnv("PAYMENT_EVENTS_TOPIC", "payment-events"),

		PendingOrderTTL:   ttl,
		JWTSecret:         os.Getenv("JWT_SECRET"),
		CloudWatchEnabled: os.Getenv("CLOUDWATCH_ENABLED") == "true",
	}
}

func applySecrets(ctx context.Context, cfg *Config, sm awspkg.SecretGetter) {
	if m, err := awspkg.GetSecretJSON(ctx, sm, secretDBCredentials); err == nil {
		override(&cfg.PostgresUser, m["POSTGRES_USER"])
		override(&cfg.PostgresPassword, m["POSTGRES_PASSWORD"])
		override(&cfg.PostgresDB, m["POSTGRES_DB"])
		override(&cfg.PostgresHost, m["POSTGRES_HOST"])
		override(&cfg.PostgresPort, m["POSTGRES_PORT"])
	}
	if m, err := awspkg.GetSecretJSON(ctx, sm, secretGatewayKeys); err == nil {
		override(&cfg.RazorpayKeyID, m["RAZORPAY_KEY_ID"])
		override(&cfg.RazorpayKeySecret, m["RAZORPAY_KEY_SECRET"])
		override(&cfg.RazorpayWebhookSecret, m["RAZORPAY_WEBHOOK_SECRET"])
		override(&cfg.StripeSecretKey, m["STRIPE_API_KEY"])
		override(&cfg.StripeWebhookKey, m["STRIPE_WEBHOOK_SECRET"])
		override(&cfg.JWTSecret, m["JWT_SECRET"])
	}
}

func (c *Config) validate() error {
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" {
		return fmt.Errorf("database config incomplete")
	}
	switch c.EventBus {
	case "", "sns", "kafka":
	default:
		return fmt.Errorf("unsupported EVENT_BUS %q", c.EventBus)
	}
	if c.EventBus == "sns" && c.PaymentSNSTopicARN == "" {
		return fmt.Errorf("PAYMENT_SNS_TOPIC_ARN is required when EVENT_BUS=sns")
	}
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
