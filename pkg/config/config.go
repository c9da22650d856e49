package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/tally/pkg/cache"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/report"
	"github.com/platinummonkey/tally/pkg/storage"
	"github.com/platinummonkey/tally/pkg/storage/postgres"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Store         storage.Config
	Cache         CacheConfig
	Report        ReportConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	CORSOrigins     []string

	// UserEventLimit caps the events aggregated by a user analytics query
	UserEventLimit int
}

// CacheConfig holds plan cache settings. Redis is used only when Redis.URL is set.
type CacheConfig struct {
	Enabled bool
	L1      cache.Config
	Redis   cache.RedisConfig
}

// ReportConfig holds settings for tally-reporter
type ReportConfig struct {
	Schedule string
	Days     int
	Format   string
	S3       report.S3Config
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// Default returns the configuration used when nothing is set: sample mode
// on port 8000 with an in-process plan cache.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			CORSOrigins:     []string{"*"},
		},
		Store: storage.DefaultConfig(),
		Cache: CacheConfig{
			Enabled: true,
			L1:      cache.DefaultConfig(),
			Redis: cache.RedisConfig{
				TTL:       15 * time.Minute,
				KeyPrefix: "tally:plan:",
			},
		},
		Report: ReportConfig{
			Schedule: "@hourly",
			Days:     30,
			Format:   report.FormatJSON,
			S3: report.S3Config{
				Region: "us-east-1",
				Prefix: "snapshots",
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.InfoLevel,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    observability.ServiceName,
			OTelServiceVersion: "dev",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by TALLY_CONFIG_FILE, and then environment variables, which win.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("TALLY_CONFIG_FILE", ""); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	s := &cfg.Server
	s.Host = getEnv("TALLY_HOST", s.Host)
	s.Port = getEnv("TALLY_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("TALLY_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("TALLY_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("TALLY_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("TALLY_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("TALLY_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.CORSOrigins = getEnvList("TALLY_CORS_ORIGINS", s.CORSOrigins)
	s.UserEventLimit = getEnvInt("TALLY_USER_EVENT_LIMIT", s.UserEventLimit)

	st := &cfg.Store
	st.Type = strings.ToLower(getEnv("TALLY_STORE_TYPE", st.Type))
	st.SeedSample = getEnvBool("TALLY_STORE_SEED_SAMPLE", st.SeedSample)
	st.Sample.Seed = uint64(getEnvInt64("TALLY_SAMPLE_SEED", int64(st.Sample.Seed)))
	st.Sample.Days = getEnvInt("TALLY_SAMPLE_DAYS", st.Sample.Days)
	st.Mongo.URI = getEnv("MONGODB_URI", st.Mongo.URI)
	st.Mongo.Database = getEnv("TALLY_MONGO_DATABASE", st.Mongo.Database)
	st.Mongo.MaxPoolSize = uint64(getEnvInt64("TALLY_MONGO_MAX_POOL_SIZE", int64(st.Mongo.MaxPoolSize)))
	st.Mongo.Timeout = getEnvDuration("TALLY_MONGO_TIMEOUT", st.Mongo.Timeout)
	st.Postgres.PrimaryURL = getEnv("TALLY_POSTGRES_URL", st.Postgres.PrimaryURL)
	if replicas := getEnv("TALLY_POSTGRES_REPLICA_URLS", ""); replicas != "" {
		st.Postgres.ReplicaURLs = postgres.ParseReplicaURLs(replicas)
	}
	st.Postgres.MaxConns = getEnvInt("TALLY_POSTGRES_MAX_CONNS", st.Postgres.MaxConns)
	st.Postgres.MinConns = getEnvInt("TALLY_POSTGRES_MIN_CONNS", st.Postgres.MinConns)
	st.Postgres.Timeout = getEnvDuration("TALLY_POSTGRES_TIMEOUT", st.Postgres.Timeout)

	c := &cfg.Cache
	c.Enabled = getEnvBool("TALLY_CACHE_ENABLED", c.Enabled)
	c.L1.L1Size = getEnvInt("TALLY_CACHE_L1_SIZE", c.L1.L1Size)
	c.L1.L1TTL = getEnvDuration("TALLY_CACHE_L1_TTL", c.L1.L1TTL)
	c.Redis.URL = getEnv("TALLY_REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("TALLY_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("TALLY_REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getEnvInt("TALLY_REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.MaxRetries = getEnvInt("TALLY_REDIS_MAX_RETRIES", c.Redis.MaxRetries)
	c.Redis.TTL = getEnvDuration("TALLY_REDIS_TTL", c.Redis.TTL)

	r := &cfg.Report
	r.Schedule = getEnv("TALLY_REPORT_SCHEDULE", r.Schedule)
	r.Days = getEnvInt("TALLY_REPORT_DAYS", r.Days)
	r.Format = strings.ToLower(getEnv("TALLY_REPORT_FORMAT", r.Format))
	r.S3.Bucket = getEnv("TALLY_S3_BUCKET", r.S3.Bucket)
	r.S3.Region = getEnv("TALLY_S3_REGION", r.S3.Region)
	r.S3.Endpoint = getEnv("TALLY_S3_ENDPOINT", r.S3.Endpoint)
	r.S3.AccessKey = getEnv("TALLY_S3_ACCESS_KEY", r.S3.AccessKey)
	r.S3.SecretKey = getEnv("TALLY_S3_SECRET_KEY", r.S3.SecretKey)
	r.S3.UsePathStyle = getEnvBool("TALLY_S3_USE_PATH_STYLE", r.S3.UsePathStyle)
	r.S3.Prefix = getEnv("TALLY_S3_PREFIX", r.S3.Prefix)
	r.S3.Format = r.Format

	o := &cfg.Observability
	if level := getEnv("TALLY_LOG_LEVEL", ""); level != "" {
		parsed, err := observability.ParseLogLevel(level)
		if err != nil {
			return fmt.Errorf("TALLY_LOG_LEVEL: %w", err)
		}
		o.LogLevel = parsed
	}
	o.MetricsEnabled = getEnvBool("TALLY_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("TALLY_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("TALLY_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("TALLY_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("TALLY_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("TALLY_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("TALLY_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server port must be numeric: %s", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	if c.Server.UserEventLimit < 0 {
		return fmt.Errorf("user event limit must not be negative")
	}

	switch c.Store.Type {
	case storage.TypeSample:
	case storage.TypeMongo:
		if c.Store.Mongo.URI == "" {
			return fmt.Errorf("MONGODB_URI is required for mongo store")
		}
	case storage.TypePostgres:
		if c.Store.Postgres.PrimaryURL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be sample, mongo, or postgres)", c.Store.Type)
	}

	if c.Cache.Enabled && c.Cache.L1.L1Size <= 0 {
		return fmt.Errorf("cache L1 size must be positive when the cache is enabled")
	}

	if c.Report.Days <= 0 {
		return fmt.Errorf("report days must be positive")
	}
	if c.Report.Format != report.FormatJSON && c.Report.Format != report.FormatYAML {
		return fmt.Errorf("invalid report format: %s (must be json or yaml)", c.Report.Format)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be within [0, 1]")
		}
	}

	return nil
}

// Addr is the listen address of the HTTP server
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
