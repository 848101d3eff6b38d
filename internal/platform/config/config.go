package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr               string
	Environment        string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	EncryptionKey      string
	OutputDir          string
	Schedule           string
	ContributionRate   string
	FailFast           bool
	PayrollWorkers     int
	RenderWorkers      int
	RenderTimeout      time.Duration
	RenderPDF          bool
	MaxUploadBytes     int64
	RateLimitPerMinute int
	IdempotencyTTL     time.Duration
	RunMigrations      bool
	MetricsEnabled     bool
}

// Load reads .env files when present, then the process environment.
func Load() Config {
	_ = godotenv.Load(".env", ".env.local")
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		Addr:               getEnv("APP_ADDR", ":8080"),
		Environment:        getEnv("APP_ENV", "development"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		EncryptionKey:      getEnv("PAYSLIP_ENCRYPTION_KEY", ""),
		OutputDir:          getEnv("PAYSLIP_OUTPUT_DIR", "payslips"),
		Schedule:           getEnv("PAYROLL_SCHEDULE", ""),
		ContributionRate:   getEnv("PAYROLL_CONTRIBUTION_RATE", ""),
		FailFast:           getEnvBool("PAYROLL_FAIL_FAST", false),
		PayrollWorkers:     getEnvInt("PAYROLL_WORKERS", 0),
		RenderWorkers:      getEnvInt("RENDER_WORKERS", 4),
		RenderTimeout:      getEnvDuration("RENDER_TIMEOUT", 30*time.Second),
		RenderPDF:          getEnvBool("RENDER_PDF", true),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		IdempotencyTTL:     getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		RunMigrations:      getEnvBool("RUN_MIGRATIONS", true),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	if c.Environment == "production" {
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.EncryptionKey) == "" {
			return fmt.Errorf("PAYSLIP_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
	}
	if c.ContributionRate != "" {
		rate, err := strconv.ParseFloat(c.ContributionRate, 64)
		if err != nil || rate < 0 || rate > 1 {
			return fmt.Errorf("PAYROLL_CONTRIBUTION_RATE must be a number between 0 and 1")
		}
	}
	if c.MaxUploadBytes < 1024 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.RenderWorkers <= 0 {
		return fmt.Errorf("RENDER_WORKERS must be positive")
	}
	if c.RenderTimeout <= 0 {
		return fmt.Errorf("RENDER_TIMEOUT must be positive")
	}
	return nil
}

// Policy maps PAYROLL_FAIL_FAST onto a batch policy name.
func (c Config) Policy() string {
	if c.FailFast {
		return "fail_fast"
	}
	return "partial"
}
