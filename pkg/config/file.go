package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tally/pkg/observability"
)

// fileConfig is the YAML layout of a config file. Zero values leave the
// current setting untouched.
type fileConfig struct {
	Server struct {
		Host            string        `yaml:"host"`
		Port            string        `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		MaxBodyBytes    int64         `yaml:"max_body_bytes"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		UserEventLimit  int           `yaml:"user_event_limit"`
	} `yaml:"server"`

	Store struct {
		Type       string `yaml:"type"`
		SeedSample *bool  `yaml:"seed_sample"`
		Sample     struct {
			Seed *uint64 `yaml:"seed"`
			Days int     `yaml:"days"`
		} `yaml:"sample"`
		Mongo struct {
			URI         string        `yaml:"uri"`
			Database    string        `yaml:"database"`
			MaxPoolSize uint64        `yaml:"max_pool_size"`
			Timeout     time.Duration `yaml:"timeout"`
		} `yaml:"mongo"`
		Postgres struct {
			URL         string        `yaml:"url"`
			ReplicaURLs []string      `yaml:"replica_urls"`
			MaxConns    int           `yaml:"max_conns"`
			MinConns    int           `yaml:"min_conns"`
			Timeout     time.Duration `yaml:"timeout"`
		} `yaml:"postgres"`
	} `yaml:"store"`

	Cache struct {
		Enabled *bool         `yaml:"enabled"`
		L1Size  int           `yaml:"l1_size"`
		L1TTL   time.Duration `yaml:"l1_ttl"`
		Redis   struct {
			URL      string        `yaml:"url"`
			Password string        `yaml:"password"`
			DB       int           `yaml:"db"`
			PoolSize int           `yaml:"pool_size"`
			TTL      time.Duration `yaml:"ttl"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Report struct {
		Schedule string `yaml:"schedule"`
		Days     int    `yaml:"days"`
		Format   string `yaml:"format"`
		S3       struct {
			Bucket       string `yaml:"bucket"`
			Region       string `yaml:"region"`
			Endpoint     string `yaml:"endpoint"`
			UsePathStyle *bool  `yaml:"use_path_style"`
			Prefix       string `yaml:"prefix"`
		} `yaml:"s3"`
	} `yaml:"report"`

	Observability struct {
		LogLevel       string `yaml:"log_level"`
		MetricsEnabled *bool  `yaml:"metrics_enabled"`
		OTel           struct {
			Enabled     *bool   `yaml:"enabled"`
			Endpoint    string  `yaml:"endpoint"`
			ServiceName string  `yaml:"service_name"`
			Insecure    *bool   `yaml:"insecure"`
			SampleRatio float64 `yaml:"sample_ratio"`
		} `yaml:"otel"`
	} `yaml:"observability"`
}

// LoadFile overlays the YAML file at path onto cfg. Unknown keys are an
// error so typos do not pass silently. Secrets (S3 keys) are only read from
// the environment.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	s := &cfg.Server
	setString(&s.Host, fc.Server.Host)
	setString(&s.Port, fc.Server.Port)
	setDuration(&s.ReadTimeout, fc.Server.ReadTimeout)
	setDuration(&s.WriteTimeout, fc.Server.WriteTimeout)
	setDuration(&s.IdleTimeout, fc.Server.IdleTimeout)
	setDuration(&s.ShutdownTimeout, fc.Server.ShutdownTimeout)
	if fc.Server.MaxBodyBytes > 0 {
		s.MaxBodyBytes = fc.Server.MaxBodyBytes
	}
	if len(fc.Server.CORSOrigins) > 0 {
		s.CORSOrigins = fc.Server.CORSOrigins
	}
	setInt(&s.UserEventLimit, fc.Server.UserEventLimit)

	st := &cfg.Store
	setString(&st.Type, fc.Store.Type)
	setBool(&st.SeedSample, fc.Store.SeedSample)
	if fc.Store.Sample.Seed != nil {
		st.Sample.Seed = *fc.Store.Sample.Seed
	}
	setInt(&st.Sample.Days, fc.Store.Sample.Days)
	setString(&st.Mongo.URI, fc.Store.Mongo.URI)
	setString(&st.Mongo.Database, fc.Store.Mongo.Database)
	if fc.Store.Mongo.MaxPoolSize > 0 {
		st.Mongo.MaxPoolSize = fc.Store.Mongo.MaxPoolSize
	}
	setDuration(&st.Mongo.Timeout, fc.Store.Mongo.Timeout)
	setString(&st.Postgres.PrimaryURL, fc.Store.Postgres.URL)
	if len(fc.Store.Postgres.ReplicaURLs) > 0 {
		st.Postgres.ReplicaURLs = fc.Store.Postgres.ReplicaURLs
	}
	setInt(&st.Postgres.MaxConns, fc.Store.Postgres.MaxConns)
	setInt(&st.Postgres.MinConns, fc.Store.Postgres.MinConns)
	setDuration(&st.Postgres.Timeout, fc.Store.Postgres.Timeout)

	c := &cfg.Cache
	setBool(&c.Enabled, fc.Cache.Enabled)
	setInt(&c.L1.L1Size, fc.Cache.L1Size)
	setDuration(&c.L1.L1TTL, fc.Cache.L1TTL)
	setString(&c.Redis.URL, fc.Cache.Redis.URL)
	setString(&c.Redis.Password, fc.Cache.Redis.Password)
	setInt(&c.Redis.DB, fc.Cache.Redis.DB)
	setInt(&c.Redis.PoolSize, fc.Cache.Redis.PoolSize)
	setDuration(&c.Redis.TTL, fc.Cache.Redis.TTL)

	r := &cfg.Report
	setString(&r.Schedule, fc.Report.Schedule)
	setInt(&r.Days, fc.Report.Days)
	setString(&r.Format, fc.Report.Format)
	setString(&r.S3.Bucket, fc.Report.S3.Bucket)
	setString(&r.S3.Region, fc.Report.S3.Region)
	setString(&r.S3.Endpoint, fc.Report.S3.Endpoint)
	setBool(&r.S3.UsePathStyle, fc.Report.S3.UsePathStyle)
	setString(&r.S3.Prefix, fc.Report.S3.Prefix)

	o := &cfg.Observability
	if fc.Observability.LogLevel != "" {
		level, err := observability.ParseLogLevel(fc.Observability.LogLevel)
		if err != nil {
			return fmt.Errorf("observability.log_level: %w", err)
		}
		o.LogLevel = level
	}
	setBool(&o.MetricsEnabled, fc.Observability.MetricsEnabled)
	setBool(&o.OTelEnabled, fc.Observability.OTel.Enabled)
	setString(&o.OTelEndpoint, fc.Observability.OTel.Endpoint)
	setString(&o.OTelServiceName, fc.Observability.OTel.ServiceName)
	setBool(&o.OTelInsecure, fc.Observability.OTel.Insecure)
	if fc.Observability.OTel.SampleRatio > 0 {
		o.OTelSampleRatio = fc.Observability.OTel.SampleRatio
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
