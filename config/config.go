package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/alfanzaky/txnhook/pkg/utils"
)

// Config holds application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Queue      QueueConfig
	Worker     WorkerConfig
	Processing ProcessingConfig
	Settlement SettlementConfig
	Kafka      KafkaConfig
	API        APIConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Name        string
	Environment string
	Port        string
	LogLevel    string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	Path     string
	MaxIdle  int
	MaxOpen  int
	MaxLife  time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
}

// QueueConfig holds work queue configuration
type QueueConfig struct {
	Backend           string
	KeyPrefix         string
	VisibilityTimeout time.Duration
	ReapInterval      time.Duration
}

// WorkerConfig holds worker pool and retry configuration
type WorkerConfig struct {
	Concurrency       int
	PollInterval      time.Duration
	MaxAttempts       int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64
	RetryJitter       bool
}

// ProcessingConfig selects and tunes the processing step
type ProcessingConfig struct {
	Processor     string
	Delay         time.Duration
	Timeout       time.Duration
	StrandedAfter time.Duration
}

// SettlementConfig holds the downstream settlement API configuration
type SettlementConfig struct {
	BaseURL        string
	Secret         string
	TimeoutSeconds int
}

// KafkaConfig holds event publishing configuration. No brokers disables publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// APIConfig holds API configuration
type APIConfig struct {
	TimeoutSeconds int
	MaxRequestSize int64
}

// Supported backends
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	QueueBackendRedis  = "redis"
	QueueBackendMemory = "memory"

	ProcessorDelay      = "delay"
	ProcessorSettlement = "settlement"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// .env file not found, continue with environment variables
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "txnhook"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8000"),
			LogLevel:    getEnv("LOG_LEVEL", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", DriverPostgres),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "txnhook"),
			User:     getEnv("DB_USER", "txnhook"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "txnhook.db"),
			MaxIdle:  getEnvInt("DB_MAX_IDLE", 10),
			MaxOpen:  getEnvInt("DB_MAX_OPEN", 50),
			MaxLife:  getEnvDuration("DB_MAX_LIFE", time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Queue: QueueConfig{
			Backend:           getEnv("QUEUE_BACKEND", QueueBackendRedis),
			KeyPrefix:         getEnv("QUEUE_KEY_PREFIX", "txnhook:queue"),
			VisibilityTimeout: getEnvDuration("QUEUE_VISIBILITY_TIMEOUT", 5*time.Minute),
			ReapInterval:      getEnvDuration("QUEUE_REAP_INTERVAL", 5*time.Second),
		},
		Worker: WorkerConfig{
			Concurrency:       getEnvInt("WORKER_CONCURRENCY", 4),
			PollInterval:      getEnvDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
			MaxAttempts:       getEnvInt("WORKER_MAX_ATTEMPTS", 5),
			RetryInitialDelay: getEnvDuration("RETRY_INITIAL_DELAY", 2*time.Second),
			RetryMaxDelay:     getEnvDuration("RETRY_MAX_DELAY", 5*time.Minute),
			RetryMultiplier:   getEnvFloat("RETRY_MULTIPLIER", 2.0),
			RetryJitter:       getEnvBool("RETRY_JITTER", true),
		},
		Processing: ProcessingConfig{
			Processor:     getEnv("PROCESSOR", ProcessorDelay),
			Delay:         getEnvDuration("PROCESSING_DELAY", 30*time.Second),
			Timeout:       getEnvDuration("PROCESSING_TIMEOUT", 60*time.Second),
			StrandedAfter: getEnvDuration("STRANDED_AFTER", time.Minute),
		},
		Settlement: SettlementConfig{
			BaseURL:        getEnv("SETTLEMENT_BASE_URL", ""),
			Secret:         getEnv("SETTLEMENT_SECRET", ""),
			TimeoutSeconds: getEnvInt("SETTLEMENT_TIMEOUT", 30),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{}),
			Topic:   getEnv("KAFKA_TOPIC", "transaction-events"),
		},
		API: APIConfig{
			TimeoutSeconds: getEnvInt("API_TIMEOUT", 30),
			MaxRequestSize: getEnvInt64("API_MAX_REQUEST_SIZE", 1048576), // 1MB
		},
	}

	return config, nil
}

// GetDSN returns database connection string for the configured driver
func (d *DatabaseConfig) GetDSN() string {
	if d.Driver == DriverSQLite {
		return d.Path
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// GetRedisAddr returns Redis connection address
func (r *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// IsDevelopment returns true if environment is development
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if environment is production
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		if result := utils.SplitCSV(value); len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// Validate validates configuration
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database host is required"))
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database name is required"))
		}
		if c.Database.User == "" {
			errs = append(errs, errors.New("database user is required"))
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}

	switch c.Queue.Backend {
	case QueueBackendRedis, QueueBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported QUEUE_BACKEND %q", c.Queue.Backend))
	}

	if c.Processing.Timeout <= 0 {
		errs = append(errs, errors.New("PROCESSING_TIMEOUT must be positive"))
	}
	// A lease shorter than the processing bound would hand a running item to a second worker.
	if c.Queue.VisibilityTimeout <= c.Processing.Timeout {
		errs = append(errs, fmt.Errorf("QUEUE_VISIBILITY_TIMEOUT (%s) must exceed PROCESSING_TIMEOUT (%s)",
			c.Queue.VisibilityTimeout, c.Processing.Timeout))
	}

	switch c.Processing.Processor {
	case ProcessorDelay:
	case ProcessorSettlement:
		if c.Settlement.BaseURL == "" {
			errs = append(errs, errors.New("SETTLEMENT_BASE_URL is required for the settlement processor"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PROCESSOR %q", c.Processing.Processor))
	}

	if c.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be positive"))
	}
	if c.Worker.MaxAttempts <= 0 {
		errs = append(errs, errors.New("WORKER_MAX_ATTEMPTS must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}

	return errors.Join(errs...)
}

// Print prints configuration (excluding sensitive data)
func (c *Config) Print() {
	fmt.Printf("=== Configuration ===\n")
	fmt.Printf("App Name: %s\n", c.App.Name)
	fmt.Printf("Environment: %s\n", c.App.Environment)
	fmt.Printf("Port: %s\n", c.App.Port)
	if c.Database.Driver == DriverSQLite {
		fmt.Printf("Database: sqlite3 %s\n", c.Database.Path)
	} else {
		fmt.Printf("Database: %s:%s/%s\n", c.Database.Host, c.Database.Port, c.Database.Name)
	}
	fmt.Printf("Queue: %s (visibility %s)\n", c.Queue.Backend, c.Queue.VisibilityTimeout)
	if c.Queue.Backend == QueueBackendRedis {
		fmt.Printf("Redis: %s:%s/%d\n", c.Redis.Host, c.Redis.Port, c.Redis.DB)
	}
	fmt.Printf("Workers: %d, max attempts %d\n", c.Worker.Concurrency, c.Worker.MaxAttempts)
	fmt.Printf("Processor: %s (timeout %s)\n", c.Processing.Processor, c.Processing.Timeout)
	if len(c.Kafka.Brokers) > 0 {
		fmt.Printf("Kafka: %s -> %s\n", strings.Join(c.Kafka.Brokers, ","), c.Kafka.Topic)
	}
	fmt.Printf("====================\n")
}
