package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string
	NatsURL      string
	Port         string

	StripeWebhookSecret string
	KrxpayWebhookSecret string

	BatchSize       int
	Backoff         time.Duration
	Sleep           time.Duration
	MaxRetries      int
	ClaimTimeout    time.Duration
	ReclaimInterval time.Duration
}

func Load() *Config {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	return &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		NatsURL:      os.Getenv("NATS_URL"),
		Port:         getEnv("PORT", "8084"),

		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		KrxpayWebhookSecret: os.Getenv("KRXPAY_WEBHOOK_SECRET"),

		BatchSize:       getEnvInt("BATCH_SIZE", 10),
		Backoff:         getEnvMillis("BACKOFF_MS", 300000),
		Sleep:           getEnvMillis("SLEEP_MS", 1000),
		MaxRetries:      getEnvInt("MAX_RETRIES", 3),
		ClaimTimeout:    getEnvMillis("CLAIM_TIMEOUT_MS", 600000),
		ReclaimInterval: getEnvMillis("RECLAIM_INTERVAL_MS", 60000),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int64) time.Duration {
	ms := fallback
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			ms = i
		}
	}
	return time.Duration(ms) * time.Millisecond
}
