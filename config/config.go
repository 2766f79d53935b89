package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Ramsey-B/clover/pkg/utils"
)

type Config struct {
	AppName                       string   `mapstructure:"APP_NAME" validate:"required"`
	Port                          int      `mapstructure:"PORT" validate:"gt=0,lte=65535"`
	LogLevel                      string   `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn warning error fatal"`
	PrettyLogs                    bool     `mapstructure:"PRETTY_LOGS"`
	HttpServerWriteTimeoutSeconds int      `mapstructure:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" validate:"gt=0"`
	HttpServerReadTimeoutSeconds  int      `mapstructure:"HTTP_SERVER_READ_TIMEOUT_SECONDS" validate:"gt=0"`
	HttpServerIdleTimeoutSeconds  int      `mapstructure:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" validate:"gt=0"`
	MaxHeaderBytes                int      `mapstructure:"HTTP_SERVER_MAX_HEADER_BYTES" validate:"gt=0"`
	ReadHeaderTimeoutSeconds      int      `mapstructure:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" validate:"gt=0"`
	MaxBodyBytes                  string   `mapstructure:"HTTP_SERVER_MAX_BODY" validate:"required"` // echo body limit, e.g. "4M"
	AllowOrigins                  []string `mapstructure:"HTTP_SERVER_ALLOW_ORIGINS"`
	AllowMethods                  []string `mapstructure:"HTTP_SERVER_ALLOW_METHODS"`
	StartupMaxAttempts            int      `mapstructure:"STARTUP_MAX_ATTEMPTS" validate:"gte=1"`

	// PostgreSQL (reference population). Empty host disables store-backed references.
	DatabaseDriver          string        `mapstructure:"DB_DRIVER"`
	DatabaseHost            string        `mapstructure:"DB_HOST"`
	DatabasePort            string        `mapstructure:"DB_PORT"`
	DatabaseUserName        string        `mapstructure:"DB_USER_NAME"`
	DatabasePassword        string        `mapstructure:"DB_PASSWORD"`
	DatabaseName            string        `mapstructure:"DB_NAME"`
	DatabaseSSLMode         string        `mapstructure:"DB_SQL_MODE"`
	DatabaseMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS" validate:"gt=0"`
	DatabaseMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS" validate:"gte=0,ltefield=DatabaseMaxOpenConns"`
	DatabaseConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DatabaseMigrate         bool          `mapstructure:"DB_MIGRATE"`

	// Redis (preview cache)
	CacheEnabled    bool          `mapstructure:"CACHE_ENABLED"`
	RedisHost       string        `mapstructure:"REDIS_HOST" validate:"required_if=CacheEnabled true"`
	RedisPort       int           `mapstructure:"REDIS_PORT"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int           `mapstructure:"REDIS_DB" validate:"gte=0"`
	PreviewCacheTTL time.Duration `mapstructure:"PREVIEW_CACHE_TTL" validate:"gte=0"`

	// Tracing
	TraceProtocol    string  `mapstructure:"OTEL_EXPORTER_OTLP_PROTOCOL" validate:"oneof=none grpc http"`
	TraceEndpoint    string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceInsecure    bool    `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	TraceSampleRatio float64 `mapstructure:"TRACE_SAMPLE_RATIO" validate:"gte=0,lte=1"`

	// Matching
	PolicyFile         string `mapstructure:"POLICY_FILE"`
	MatchWorkers       int    `mapstructure:"MATCH_WORKERS" validate:"gte=0"`
	MatchMaxCandidates int    `mapstructure:"MATCH_MAX_CANDIDATES" validate:"gte=0"`
	MatchMaxReferences int    `mapstructure:"MATCH_MAX_REFERENCES" validate:"gte=0"`
}

func defaults() map[string]any {
	return map[string]any{
		"APP_NAME":                               "clover-api",
		"PORT":                                   3004,
		"LOG_LEVEL":                              "info",
		"PRETTY_LOGS":                            false,
		"HTTP_SERVER_WRITE_TIMEOUT_SECONDS":      10,
		"HTTP_SERVER_READ_TIMEOUT_SECONDS":       10,
		"HTTP_SERVER_IDLE_TIMEOUT_SECONDS":       10,
		"HTTP_SERVER_MAX_HEADER_BYTES":           64000, // 64KB
		"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS": 10,
		"HTTP_SERVER_MAX_BODY":                   "4M",
		"HTTP_SERVER_ALLOW_ORIGINS":              "*",
		"HTTP_SERVER_ALLOW_METHODS":              "GET,POST",
		"STARTUP_MAX_ATTEMPTS":                   5,

		"DB_DRIVER":            "postgres",
		"DB_HOST":              "",
		"DB_PORT":              "5432",
		"DB_USER_NAME":         "",
		"DB_PASSWORD":          "",
		"DB_NAME":              "clover",
		"DB_SQL_MODE":          "disable",
		"DB_MAX_OPEN_CONNS":    25,
		"DB_MAX_IDLE_CONNS":    10,
		"DB_CONN_MAX_LIFETIME": "10s",
		"DB_MIGRATE":           false,

		"CACHE_ENABLED":     false,
		"REDIS_HOST":        "localhost",
		"REDIS_PORT":        6379,
		"REDIS_PASSWORD":    "",
		"REDIS_DB":          0,
		"PREVIEW_CACHE_TTL": "5m",

		"OTEL_EXPORTER_OTLP_PROTOCOL": "none",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": true,
		"TRACE_SAMPLE_RATIO":          1.0,

		"POLICY_FILE":          "",
		"MATCH_WORKERS":        4,
		"MATCH_MAX_CANDIDATES": 1000,
		"MATCH_MAX_REFERENCES": 50000,
	}
}

// Load reads configuration from the environment. Each env file that exists is
// loaded first without overriding variables already set; missing files are skipped.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading env file %s: %w", file, err)
		}
	}

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if _, err := utils.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// DatabaseEnabled reports whether a reference database is configured
func (c *Config) DatabaseEnabled() bool {
	return c.DatabaseHost != ""
}

// DSN returns the database connection string with properly escaped values
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: c.DatabaseDriver,
		User:   url.UserPassword(c.DatabaseUserName, c.DatabasePassword),
		Host:   fmt.Sprintf("%s:%s", c.DatabaseHost, c.DatabasePort),
		Path:   c.DatabaseName,
	}
	q := u.Query()
	q.Set("sslmode", c.DatabaseSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisAddr returns the host:port of the cache
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
