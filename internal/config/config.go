package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"verifyflow.backend/pkg/crypto"
)

// Config holds all configuration values
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Security SecurityConfig
	Provider ProviderConfig
	Queue    QueueConfig
	Storage  StorageConfig
	Kafka    KafkaConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
	MaxUploadBytes int64
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	Password string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

// SecurityConfig holds the document encryption key and webhook secret
type SecurityConfig struct {
	DocumentEncryptionKey string
	WebhookSecret         string
}

// ProviderConfig configures the identity verification provider
type ProviderConfig struct {
	Mode          string // "http" or "sandbox"
	Name          string
	BaseURL       string
	AppID         string
	SecretKey     string
	Timeout       time.Duration
	MinConfidence float64
}

// QueueConfig configures the verification job queue and worker pool
type QueueConfig struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	Concurrency     int
	RatePerSecond   float64
	Burst           int
	PollInterval    time.Duration
	Lease           time.Duration
	CompletedKeep   int
	CompletedMaxAge time.Duration
	FailedKeep      int
	FailedMaxAge    time.Duration
	JanitorInterval time.Duration
	WorkersEnabled  bool
}

// StorageConfig configures object storage for uploaded files
type StorageConfig struct {
	Driver     string // "s3" or "memory"
	Bucket     string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	PresignTTL time.Duration
}

// KafkaConfig configures the notification sink
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Env:            getEnv("SERVER_ENV", "development"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvAsInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			DBName:      getEnv("DB_NAME", "verifyflow"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-this-in-production"),
			Issuer: getEnv("JWT_ISSUER", "verifyflow"),
			Expiry: getEnvAsDuration("JWT_EXPIRY", time.Hour),
		},
		Security: SecurityConfig{
			DocumentEncryptionKey: getEnv("DOCUMENT_ENCRYPTION_KEY", ""),
			WebhookSecret:         getEnv("WEBHOOK_SECRET", ""),
		},
		Provider: ProviderConfig{
			Mode:          getEnv("PROVIDER_MODE", "sandbox"),
			Name:          getEnv("PROVIDER_NAME", "dojah"),
			BaseURL:       getEnv("PROVIDER_BASE_URL", "https://sandbox.dojah.io"),
			AppID:         getEnv("PROVIDER_APP_ID", ""),
			SecretKey:     getEnv("PROVIDER_SECRET_KEY", ""),
			Timeout:       getEnvAsDuration("PROVIDER_TIMEOUT", 30*time.Second),
			MinConfidence: getEnvAsFloat("PROVIDER_MIN_CONFIDENCE", 70),
		},
		Queue: QueueConfig{
			MaxAttempts:     getEnvAsInt("QUEUE_MAX_ATTEMPTS", 3),
			BackoffBase:     getEnvAsDuration("QUEUE_BACKOFF_BASE", 2*time.Second),
			Concurrency:     getEnvAsInt("QUEUE_CONCURRENCY", 5),
			RatePerSecond:   getEnvAsFloat("QUEUE_RATE_PER_SECOND", 10),
			Burst:           getEnvAsInt("QUEUE_BURST", 10),
			PollInterval:    getEnvAsDuration("QUEUE_POLL_INTERVAL", 500*time.Millisecond),
			Lease:           getEnvAsDuration("QUEUE_LEASE", 2*time.Minute),
			CompletedKeep:   getEnvAsInt("QUEUE_COMPLETED_KEEP", 100),
			CompletedMaxAge: getEnvAsDuration("QUEUE_COMPLETED_MAX_AGE", 24*time.Hour),
			FailedKeep:      getEnvAsInt("QUEUE_FAILED_KEEP", 500),
			FailedMaxAge:    getEnvAsDuration("QUEUE_FAILED_MAX_AGE", 7*24*time.Hour),
			JanitorInterval: getEnvAsDuration("QUEUE_JANITOR_INTERVAL", time.Minute),
			WorkersEnabled:  getEnvAsBool("QUEUE_WORKERS_ENABLED", true),
		},
		Storage: StorageConfig{
			Driver:     getEnv("STORAGE_DRIVER", "memory"),
			Bucket:     getEnv("STORAGE_BUCKET", "verification-documents"),
			Region:     getEnv("STORAGE_REGION", "us-east-1"),
			Endpoint:   getEnv("STORAGE_ENDPOINT", ""),
			AccessKey:  getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey:  getEnv("STORAGE_SECRET_KEY", ""),
			PresignTTL: getEnvAsDuration("STORAGE_PRESIGN_TTL", 15*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_NOTIFICATION_TOPIC", "verification.notifications"),
		},
	}
}

// Validate rejects configurations the service cannot safely start with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := crypto.NewCipher(c.Security.DocumentEncryptionKey); err != nil {
		errs = append(errs, fmt.Errorf("DOCUMENT_ENCRYPTION_KEY: %w", err))
	}
	if c.Server.Env == "production" {
		if c.JWT.Secret == "change-this-in-production" {
			errs = append(errs, errors.New("JWT_SECRET must be set in production"))
		}
		if c.Security.WebhookSecret == "" {
			errs = append(errs, errors.New("WEBHOOK_SECRET must be set in production"))
		}
	}
	switch c.Provider.Mode {
	case "sandbox":
	case "http":
		if c.Provider.BaseURL == "" {
			errs = append(errs, errors.New("PROVIDER_BASE_URL is required in http mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("PROVIDER_MODE %q is not supported", c.Provider.Mode))
	}
	switch c.Storage.Driver {
	case "memory", "s3":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q is not supported", c.Storage.Driver))
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, errors.New("QUEUE_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Queue.Concurrency < 1 {
		errs = append(errs, errors.New("QUEUE_CONCURRENCY must be at least 1"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
