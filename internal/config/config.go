package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	StoreDriver    string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	AutoMigrate    bool          `mapstructure:"AUTO_MIGRATE"`
	MigrationsDir  string        `mapstructure:"MIGRATIONS_DIR"`
	BlobBackend    string        `mapstructure:"BLOB_BACKEND"`
	BlobDir        string        `mapstructure:"BLOB_DIR"`
	MinIOEndpoint  string        `mapstructure:"MINIO_ENDPOINT"`
	MinIOAccessKey string        `mapstructure:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string        `mapstructure:"MINIO_SECRET_KEY"`
	MinIOBucket    string        `mapstructure:"MINIO_BUCKET"`
	MinIOUseSSL    bool          `mapstructure:"MINIO_USE_SSL"`
	GCSBucket      string        `mapstructure:"GCS_BUCKET"`
	PredictionURL  string        `mapstructure:"PREDICTION_URL"`
	PredictionTTL  time.Duration `mapstructure:"PREDICTION_CACHE_TTL"`
	PredictTimeout time.Duration `mapstructure:"PREDICTION_TIMEOUT"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	KafkaBrokers   []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic     string        `mapstructure:"KAFKA_TOPIC"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	UploadLimit    string        `mapstructure:"UPLOAD_BODY_LIMIT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`

	// CompatNotFoundAsError reproduces the legacy 5xx answer for Doctor and
	// Patient lookups of missing ids.
	CompatNotFoundAsError bool `mapstructure:"COMPAT_NOT_FOUND_AS_ERROR"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "AUTO_MIGRATE", "MIGRATIONS_DIR",
	"BLOB_BACKEND", "BLOB_DIR",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_USE_SSL",
	"GCS_BUCKET",
	"PREDICTION_URL", "PREDICTION_CACHE_TTL", "PREDICTION_TIMEOUT", "REDIS_URL",
	"KAFKA_BROKERS", "KAFKA_TOPIC",
	"CORS_ORIGINS", "REQUEST_TIMEOUT", "BODY_LIMIT", "UPLOAD_BODY_LIMIT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"COMPAT_NOT_FOUND_AS_ERROR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("BLOB_BACKEND", "fs")
	v.SetDefault("BLOB_DIR", "./data/images")
	v.SetDefault("MINIO_BUCKET", "oncoscan-images")
	v.SetDefault("PREDICTION_URL", "http://localhost:5000/predict")
	v.SetDefault("PREDICTION_TIMEOUT", "30s")
	v.SetDefault("PREDICTION_CACHE_TTL", "24h")
	v.SetDefault("KAFKA_TOPIC", "oncoscan.workflow")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_BODY_LIMIT", "100M")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList normalises comma separated env values into trimmed, non-empty
// entries.
func splitList(decoded []string, raw string) []string {
	parts := decoded
	if len(parts) == 0 {
		parts = []string{raw}
	}
	var out []string
	for _, item := range parts {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// UsesPostgres reports whether entity records are kept in PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.StoreDriver == "postgres"
}

// Validate checks that the selected backends have what they need to start.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is \"postgres\"")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_DRIVER must be \"postgres\" or \"memory\", got %q", c.StoreDriver)
	}

	switch c.BlobBackend {
	case "fs":
		if c.BlobDir == "" {
			return fmt.Errorf("BLOB_DIR is required when BLOB_BACKEND is \"fs\"")
		}
	case "memory":
	case "minio":
		if c.MinIOEndpoint == "" || c.MinIOBucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required when BLOB_BACKEND is \"minio\"")
		}
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when BLOB_BACKEND is \"gcs\"")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be one of fs, memory, minio, gcs, got %q", c.BlobBackend)
	}

	if c.PredictionURL == "" {
		return fmt.Errorf("PREDICTION_URL is required")
	}
	if c.PredictTimeout <= 0 {
		return fmt.Errorf("PREDICTION_TIMEOUT must be positive")
	}
	if c.RequestTimeout > 0 && c.RequestTimeout <= c.PredictTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must exceed PREDICTION_TIMEOUT (%s)", c.RequestTimeout, c.PredictTimeout)
	}
	return nil
}
