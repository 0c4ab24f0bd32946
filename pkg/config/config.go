// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Tokenizer, Indexer, Store, WAL, Kafka, Redis, Postgres, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Store     StoreConfig     `yaml:"store"`
	WAL       WALConfig       `yaml:"wal"`
	Server    ServerConfig    `yaml:"server"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// TokenizerConfig selects the n-gram width.
type TokenizerConfig struct {
	NGram int `yaml:"ngram"`
}

// IndexerConfig controls the dictionary build pipeline.
type IndexerConfig struct {
	Format    string `yaml:"format"`
	Workers   int    `yaml:"workers"`
	OutputKey string `yaml:"outputKey"`
	BatchSize int    `yaml:"batchSize"`
}

// StoreConfig selects and configures the blob store backend.
type StoreConfig struct {
	Backend        string `yaml:"backend"`
	Root           string `yaml:"root"`
	RedisKeyPrefix string `yaml:"redisKeyPrefix"`
}

// WALConfig controls segment size and durability cadence of the
// write-ahead log.
type WALConfig struct {
	Dir            string        `yaml:"dir"`
	MaxSegmentSize int64         `yaml:"maxSegmentSize"`
	SyncEvery      int           `yaml:"syncEvery"`
	SyncInterval   time.Duration `yaml:"syncInterval"`
	MaxRetries     int           `yaml:"maxRetries"`
	RetryBaseDelay time.Duration `yaml:"retryBaseDelay"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RawRecords string `yaml:"rawRecords"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// CatalogConfig toggles recording built dictionaries in Postgres.
type CatalogConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfiguration, err, "reading config file "+path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfiguration, err, "parsing config file "+path)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Tokenizer: TokenizerConfig{
			NGram: 3,
		},
		Indexer: IndexerConfig{
			Format:    "json",
			Workers:   4,
			OutputKey: "final.term",
			BatchSize: 1024,
		},
		Store: StoreConfig{
			Backend:        "fs",
			Root:           "./data",
			RedisKeyPrefix: "blob:",
		},
		WAL: WALConfig{
			Dir:            "wal",
			MaxSegmentSize: 64 << 20,
			SyncEvery:      1,
			SyncInterval:   200 * time.Millisecond,
			MaxRetries:     3,
			RetryBaseDelay: 50 * time.Millisecond,
		},
		Server: ServerConfig{
			Port:            8081,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "log-ingest-group",
			Topics: KafkaTopics{
				RawRecords: "raw-records",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "logingest",
			User:            "logingest",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate reports the first invalid setting as an ErrConfiguration.
func (c *Config) Validate() error {
	if c.Tokenizer.NGram < 1 {
		return apperrors.Newf(apperrors.ErrConfiguration, "tokenizer.ngram must be at least 1, got %d", c.Tokenizer.NGram)
	}
	switch c.Indexer.Format {
	case "json", "apache", "raw":
	default:
		return apperrors.Newf(apperrors.ErrConfiguration, "indexer.format %q is not one of json, apache, raw", c.Indexer.Format)
	}
	if c.Indexer.Workers < 1 {
		return apperrors.Newf(apperrors.ErrConfiguration, "indexer.workers must be at least 1, got %d", c.Indexer.Workers)
	}
	if c.Indexer.OutputKey == "" {
		return apperrors.New(apperrors.ErrConfiguration, "indexer.outputKey is empty")
	}
	switch c.Store.Backend {
	case "fs":
		if c.Store.Root == "" {
			return apperrors.New(apperrors.ErrConfiguration, "store.root is empty")
		}
	case "redis":
	default:
		return apperrors.Newf(apperrors.ErrConfiguration, "store.backend %q is not one of fs, redis", c.Store.Backend)
	}
	if c.WAL.Dir == "" {
		return apperrors.New(apperrors.ErrConfiguration, "wal.dir is empty")
	}
	if c.WAL.MaxSegmentSize <= 8 {
		return apperrors.Newf(apperrors.ErrConfiguration, "wal.maxSegmentSize %d cannot hold a record", c.WAL.MaxSegmentSize)
	}
	if c.WAL.SyncEvery < 0 {
		return apperrors.Newf(apperrors.ErrConfiguration, "wal.syncEvery must not be negative, got %d", c.WAL.SyncEvery)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return apperrors.New(apperrors.ErrConfiguration, "kafka.brokers is empty")
	}
	return nil
}

// applyEnvOverrides reads LI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LI_TOKENIZER_NGRAM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tokenizer.NGram = n
		}
	}
	if v := os.Getenv("LI_INDEXER_FORMAT"); v != "" {
		cfg.Indexer.Format = v
	}
	if v := os.Getenv("LI_INDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("LI_INDEXER_OUTPUT_KEY"); v != "" {
		cfg.Indexer.OutputKey = v
	}
	if v := os.Getenv("LI_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("LI_STORE_ROOT"); v != "" {
		cfg.Store.Root = v
	}
	if v := os.Getenv("LI_WAL_DIR"); v != "" {
		cfg.WAL.Dir = v
	}
	if v := os.Getenv("LI_WAL_MAX_SEGMENT_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.WAL.MaxSegmentSize = n
		}
	}
	if v := os.Getenv("LI_WAL_SYNC_EVERY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WAL.SyncEvery = n
		}
	}
	if v := os.Getenv("LI_WAL_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WAL.SyncInterval = d
		}
	}
	if v := os.Getenv("LI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LI_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("LI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("LI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("LI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("LI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("LI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("LI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("LI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("LI_CATALOG_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Catalog.Enabled = b
		}
	}
	if v := os.Getenv("LI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("LI_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
