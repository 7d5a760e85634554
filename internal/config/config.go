package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load env vars from .env file directly
func init() {
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist (e.g. in production),
		// but we should log it just in case.
		log.Println("No .env file found or error loading it, using system environment variables")
	}
}

// Config centralizes every recognized runtime option (spec §6).
type Config struct {
	Port        string
	Environment string

	DatabaseURL string
	RedisAddr   string

	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Bucket          string

	SharedAPIKey string

	MaxUploadBytes            int64
	PresignedURLExpirySeconds int
	JobRetentionHours         int
	S3RetentionDays           int
	IdempotencyTTLSeconds     int

	WebhookCBFailThreshold int
	WebhookCBResetTimeout  time.Duration

	StandardQueueConcurrency int
	MLQueueConcurrency       int

	StandardTaskTimeout time.Duration
	MLTaskTimeout       time.Duration

	MaintenanceInterval time.Duration
}

// Load builds a Config from the environment, applying the defaults spec §6 names.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("NODE_ENV", "development"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),

		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3Bucket:          os.Getenv("S3_BUCKET_NAME"),

		SharedAPIKey: os.Getenv("SHARED_API_KEY"),

		MaxUploadBytes:            getEnvInt64("MAX_UPLOAD_BYTES", 10*1024*1024),
		PresignedURLExpirySeconds: getEnvInt("PRESIGNED_URL_EXPIRY_SECONDS", 900),
		JobRetentionHours:         getEnvInt("JOB_RETENTION_HOURS", 24),
		S3RetentionDays:           getEnvInt("S3_RETENTION_DAYS", 1),
		IdempotencyTTLSeconds:     getEnvInt("IDEMPOTENCY_TTL_SECONDS", 86400),

		WebhookCBFailThreshold: getEnvInt("WEBHOOK_CB_FAIL_THRESHOLD", 5),
		WebhookCBResetTimeout:  time.Duration(getEnvInt("WEBHOOK_CB_RESET_TIMEOUT", 60)) * time.Second,

		StandardQueueConcurrency: getEnvInt("STANDARD_QUEUE_CONCURRENCY", 10),
		MLQueueConcurrency:       1, // spec §4.5: ml queue is strictly one-at-a-time

		StandardTaskTimeout: time.Duration(getEnvInt("STANDARD_TASK_TIMEOUT_SECONDS", 60)) * time.Second,
		MLTaskTimeout:       time.Duration(getEnvInt("ML_TASK_TIMEOUT_SECONDS", 300)) * time.Second,

		MaintenanceInterval: time.Duration(getEnvInt("MAINTENANCE_INTERVAL_SECONDS", 3600)) * time.Second,
	}
}

// GetAllowedOrigins returns a slice of allowed origins from the environment variable.
// It defaults to localhost:3000 if not set.
func GetAllowedOrigins() []string {
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr == "" {
		return []string{"http://localhost:3000"}
	}

	// Split by comma and trim spaces
	parts := strings.Split(originsStr, ",")
	var origins []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
