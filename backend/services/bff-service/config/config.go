package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the loaded configuration
type Config struct {
	Port              string
	AppEnv            string
	PaymentServiceURL string
	RequestTimeout    time.Duration

	CheckoutScriptURL  string
	CheckoutKeyID      string
	CheckoutThemeColor string

	RedisURL         string
	PaymentsCacheTTL time.Duration

	// PaymentEventsSource is "sqs", "kafka" or "" (no consumer).
	PaymentEventsSource   string
	PaymentEventsQueueURL string
	KafkaBrokers          []string
	PaymentEventsTopic    string
	KafkaGroupID          string

	CheckoutAbandonTTL time.Duration

	JWTSecret         string
	CloudWatchEnabled bool
}

// LoadConfig loads configuration from the .env file and the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:                  getEnv("PORT", "8000"),
		AppEnv:                getEnv("APP_ENV", "development"),
		PaymentServiceURL:     getEnv("PAYMENT_SERVICE_URL", ""),
		RequestTimeout:        getDuration("REQUEST_TIMEOUT", 10*time.Second),
		CheckoutScriptURL:     getEnv("CHECKOUT_SCRIPT_URL", "https://checkout.razorpay.com/v1/checkout.js"),
		CheckoutKeyID:         getEnv("CHECKOUT_KEY_ID", ""),
		CheckoutThemeColor:    getEnv("CHECKOUT_THEME_COLOR", "#1E40AF"),
		RedisURL:              getEnv("REDIS_URL", ""),
		PaymentsCacheTTL:      getDuration("PAYMENTS_CACHE_TTL", 5*time.Minute),
		PaymentEventsSource:   getEnv("PAYMENT_EVENTS_SOURCE", ""),
		PaymentEventsQueueURL: getEnv("PAYMENT_EVENTS_QUEUE_URL", ""),
		KafkaBrokers:          splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		PaymentEventsTopic:    getEnv("PAYMENT_EVENTS_TOPIC", "payment-events"),
		KafkaGroupID:          getEnv("KAFKA_GROUP_ID", "bff-payments-cache"),
		CheckoutAbandonTTL:    getDuration("CHECKOUT_ABANDON_TTL", 30*time.Minute),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		CloudWatchEnabled:     getEnv("CLOUDWATCH_ENABLED", "") == "true",
	}

	if err := validateURL("CHECKOUT_SCRIPT_URL", cfg.CheckoutScriptURL); err != nil {
		return nil, err
	}
	if cfg.PaymentServiceURL == "" {
		// Checkout still serves the script; order and confirm calls fail as unavailable.
		log.Println("PAYMENT_SERVICE_URL not set, checkout orders are disabled")
	} else if err := validateURL("PAYMENT_SERVICE_URL", cfg.PaymentServiceURL); err != nil {
		return nil, err
	}
	cfg.PaymentServiceURL = strings.TrimRight(cfg.PaymentServiceURL, "/")

	switch cfg.PaymentEventsSource {
	case "", "kafka":
	case "sqs":
		if cfg.PaymentEventsQueueURL == "" {
			return nil, fmt.Errorf("PAYMENT_EVENTS_QUEUE_URL is required when PAYMENT_EVENTS_SOURCE=sqs")
		}
	default:
		return nil, fmt.Errorf("unknown PAYMENT_EVENTS_SOURCE %q", cfg.PaymentEventsSource)
	}
	return cfg, nil
}

// Helper to get an environment variable or return a default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
