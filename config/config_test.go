package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "txnhook", cfg.App.Name)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, QueueBackendRedis, cfg.Queue.Backend)
	assert.Equal(t, ProcessorDelay, cfg.Processing.Processor)
	assert.Equal(t, 30*time.Second, cfg.Processing.Delay)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_PATH", "/tmp/txn.db")
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("RETRY_MULTIPLIER", "1.5")
	t.Setenv("PROCESSING_DELAY", "250ms")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/txn.db", cfg.Database.GetDSN())
	assert.Equal(t, QueueBackendMemory, cfg.Queue.Backend)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, 1.5, cfg.Worker.RetryMultiplier)
	assert.Equal(t, 250*time.Millisecond, cfg.Processing.Delay)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "lots")
	t.Setenv("QUEUE_VISIBILITY_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Queue.VisibilityTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "visibility must exceed processing timeout",
			mutate:  func(c *Config) { c.Queue.VisibilityTimeout = c.Processing.Timeout },
			wantErr: "QUEUE_VISIBILITY_TIMEOUT",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: "DB_DRIVER",
		},
		{
			name:    "unknown queue backend",
			mutate:  func(c *Config) { c.Queue.Backend = "sqs" },
			wantErr: "QUEUE_BACKEND",
		},
		{
			name:    "settlement needs base url",
			mutate:  func(c *Config) { c.Processing.Processor = ProcessorSettlement },
			wantErr: "SETTLEMENT_BASE_URL",
		},
		{
			name:    "unknown processor",
			mutate:  func(c *Config) { c.Processing.Processor = "email" },
			wantErr: "PROCESSOR",
		},
		{
			name:    "attempts must be positive",
			mutate:  func(c *Config) { c.Worker.MaxAttempts = 0 },
			wantErr: "WORKER_MAX_ATTEMPTS",
		},
		{
			name:    "postgres needs host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: "database host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_PostgresDSN(t *testing.T) {
	d := DatabaseConfig{
		Driver:   DriverPostgres,
		Host:     "db",
		Port:     "5432",
		Name:     "txnhook",
		User:     "app",
		Password: "secret",
		SSLMode:  "disable",
	}

	assert.Equal(t, "host=db port=5432 user=app password=secret dbname=txnhook sslmode=disable", d.GetDSN())
}
