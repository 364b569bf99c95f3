package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
	"github.com/tinusleroux/crowdbiz-graph/pkg/graph"
	"github.com/tinusleroux/crowdbiz-graph/pkg/kafka"
	"github.com/tinusleroux/crowdbiz-graph/pkg/matching"
	"github.com/tinusleroux/crowdbiz-graph/pkg/redis"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

type Config struct {
	AppName                       string `mapstructure:"APP_NAME"`
	Port                          int    `mapstructure:"PORT"`
	LogLevel                      string `mapstructure:"LOG_LEVEL"`
	PrettyLogs                    bool   `mapstructure:"PRETTY_LOGS"`
	HttpServerWriteTimeoutSeconds int    `mapstructure:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS"`
	HttpServerReadTimeoutSeconds  int    `mapstructure:"HTTP_SERVER_READ_TIMEOUT_SECONDS"`
	HttpServerIdleTimeoutSeconds  int    `mapstructure:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS"`
	MaxHeaderBytes                int    `mapstructure:"HTTP_SERVER_MAX_HEADER_BYTES"`
	ReadHeaderTimeoutSeconds      int    `mapstructure:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS"`
	StartupMaxAttempts            int    `mapstructure:"STARTUP_MAX_ATTEMPTS"`
	MaxUploadBytes                int64  `mapstructure:"MAX_UPLOAD_BYTES"`

	// PostgreSQL
	DatabaseHost                  string        `mapstructure:"DB_HOST"`
	DatabasePort                  string        `mapstructure:"DB_PORT"`
	DatabaseUserName              string        `mapstructure:"DB_USER_NAME"`
	DatabasePassword              string        `mapstructure:"DB_PASSWORD"`
	DatabaseName                  string        `mapstructure:"DB_NAME"`
	DatabaseSSLMode               string        `mapstructure:"DB_SSL_MODE"`
	DatabaseMaxOpenConns          int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DatabaseMaxIdleConns          int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DatabaseConnMaxLifetime       time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DatabaseMigrationFolderPath   string        `mapstructure:"DB_MIGRATION_FOLDER_PATH"`
	DatabaseMigrationVersion      int           `mapstructure:"DB_MIGRATION_VERSION"`
	DatabaseMigrationForce        int           `mapstructure:"DB_MIGRATION_FORCE"`
	DatabaseMigrationAutoRollback bool          `mapstructure:"DB_MIGRATION_AUTO_ROLLBACK"`

	// Matching
	MatchUpdateThreshold float64 `mapstructure:"MATCH_UPDATE_THRESHOLD"`
	MatchReviewThreshold float64 `mapstructure:"MATCH_REVIEW_THRESHOLD"`
	MatchCandidateFloor  float64 `mapstructure:"MATCH_CANDIDATE_FLOOR"`
	MatchCandidateLimit  int     `mapstructure:"MATCH_CANDIDATE_LIMIT"`

	// Recovery of batches abandoned in processing
	StaleBatchAfter time.Duration `mapstructure:"STALE_BATCH_AFTER"`

	// Kafka producer (entity events)
	KafkaEnabled      bool     `mapstructure:"KAFKA_ENABLED"`
	KafkaBrokers      []string `mapstructure:"KAFKA_BROKERS"`
	KafkaOutputTopic  string   `mapstructure:"KAFKA_OUTPUT_TOPIC"`
	KafkaBatchSize    int      `mapstructure:"KAFKA_BATCH_SIZE"`
	KafkaBatchTimeout int      `mapstructure:"KAFKA_BATCH_TIMEOUT_MS"`
	KafkaRequiredAcks int      `mapstructure:"KAFKA_REQUIRED_ACKS"`
	KafkaCompression  string   `mapstructure:"KAFKA_COMPRESSION"`

	// Graph Database (Memgraph)
	GraphEnabled    bool   `mapstructure:"GRAPH_ENABLED"`
	GraphDBHost     string `mapstructure:"GRAPH_DB_HOST"`
	GraphDBPort     int    `mapstructure:"GRAPH_DB_PORT"`
	GraphDBUser     string `mapstructure:"GRAPH_DB_USER"`
	GraphDBPassword string `mapstructure:"GRAPH_DB_PASSWORD"`
	GraphDBName     string `mapstructure:"GRAPH_DB_NAME"`

	// Redis (department cache, commit lock)
	RedisEnabled       bool          `mapstructure:"REDIS_ENABLED"`
	RedisHost          string        `mapstructure:"REDIS_HOST"`
	RedisPort          int           `mapstructure:"REDIS_PORT"`
	RedisPassword      string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB            int           `mapstructure:"REDIS_DB"`
	DepartmentCacheTTL time.Duration `mapstructure:"DEPARTMENT_CACHE_TTL"`
	CommitLockTTL      time.Duration `mapstructure:"COMMIT_LOCK_TTL"`

	// Tracing
	TracingEnabled bool   `mapstructure:"TRACING_ENABLED"`
	OTLPEndpoint   string `mapstructure:"OTLP_ENDPOINT"`
	OTLPProtocol   string `mapstructure:"OTLP_PROTOCOL"`
	OTLPInsecure   bool   `mapstructure:"OTLP_INSECURE"`
}

var defaults = map[string]any{
	"APP_NAME":                                "crowdbiz-graph",
	"PORT":                                    3004,
	"LOG_LEVEL":                               "info",
	"PRETTY_LOGS":                             false,
	"HTTP_SERVER_WRITE_TIMEOUT_SECONDS":       60,
	"HTTP_SERVER_READ_TIMEOUT_SECONDS":        60,
	"HTTP_SERVER_IDLE_TIMEOUT_SECONDS":        10,
	"HTTP_SERVER_MAX_HEADER_BYTES":            64000,
	"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS": 10,
	"STARTUP_MAX_ATTEMPTS":                    5,
	"MAX_UPLOAD_BYTES":                        32 << 20,

	"DB_HOST":                    "localhost",
	"DB_PORT":                    "5432",
	"DB_USER_NAME":               "",
	"DB_PASSWORD":                "",
	"DB_NAME":                    "crowdbiz",
	"DB_SSL_MODE":                "disable",
	"DB_MAX_OPEN_CONNS":          25,
	"DB_MAX_IDLE_CONNS":          10,
	"DB_CONN_MAX_LIFETIME":       "10m",
	"DB_MIGRATION_FOLDER_PATH":   "db/pg",
	"DB_MIGRATION_VERSION":       0,
	"DB_MIGRATION_FORCE":         0,
	"DB_MIGRATION_AUTO_ROLLBACK": true,

	"MATCH_UPDATE_THRESHOLD": 0.90,
	"MATCH_REVIEW_THRESHOLD": 0.60,
	"MATCH_CANDIDATE_FLOOR":  0.30,
	"MATCH_CANDIDATE_LIMIT":  10,

	"STALE_BATCH_AFTER": "30m",

	"KAFKA_ENABLED":          false,
	"KAFKA_BROKERS":          "localhost:9092",
	"KAFKA_OUTPUT_TOPIC":     "crowdbiz-entity-events",
	"KAFKA_BATCH_SIZE":       100,
	"KAFKA_BATCH_TIMEOUT_MS": 100,
	"KAFKA_REQUIRED_ACKS":    1,
	"KAFKA_COMPRESSION":      "snappy",

	"GRAPH_ENABLED":     false,
	"GRAPH_DB_HOST":     "localhost",
	"GRAPH_DB_PORT":     7687,
	"GRAPH_DB_USER":     "",
	"GRAPH_DB_PASSWORD": "",
	"GRAPH_DB_NAME":     "",

	"REDIS_ENABLED":        false,
	"REDIS_HOST":           "localhost",
	"REDIS_PORT":           6379,
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"DEPARTMENT_CACHE_TTL": "1h",
	"COMMIT_LOCK_TTL":      "10m",

	"TRACING_ENABLED": false,
	"OTLP_ENDPOINT":   "localhost:4317",
	"OTLP_PROTOCOL":   "grpc",
	"OTLP_INSECURE":   true,
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList flattens comma separated entries, since an env var arrives as a
// single string.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 {
		errs = append(errs, fmt.Errorf("PORT must be positive, got %d", c.Port))
	}
	if err := c.Matching().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.StaleBatchAfter <= 0 {
		errs = append(errs, fmt.Errorf("STALE_BATCH_AFTER must be positive, got %s", c.StaleBatchAfter))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED"))
	}
	if c.OTLPProtocol != "grpc" && c.OTLPProtocol != "http" {
		errs = append(errs, fmt.Errorf("OTLP_PROTOCOL must be grpc or http, got %q", c.OTLPProtocol))
	}
	return errors.Join(errs...)
}

func (c *Config) Database() database.ConnectionConfig {
	return database.ConnectionConfig{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             uint(max(c.DatabaseMigrationVersion, 0)),
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Matching() matching.Config {
	return matching.Config{
		UpdateThreshold: c.MatchUpdateThreshold,
		ReviewThreshold: c.MatchReviewThreshold,
		CandidateFloor:  c.MatchCandidateFloor,
		CandidateLimit:  c.MatchCandidateLimit,
	}
}

func (c *Config) Kafka() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaOutputTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) Graph() graph.Config {
	return graph.Config{
		Host:     c.GraphDBHost,
		Port:     c.GraphDBPort,
		Username: c.GraphDBUser,
		Password: c.GraphDBPassword,
		Database: c.GraphDBName,
	}
}

func (c *Config) Redis() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:     c.TracingEnabled,
		ServiceName: c.AppName,
		Endpoint:    c.OTLPEndpoint,
		Protocol:    c.OTLPProtocol,
		Insecure:    c.OTLPInsecure,
	}
}
