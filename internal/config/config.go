// Package config loads service settings from an optional YAML file and
// overlays environment variables on top.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure returned by Load and Validate.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Webhooks  WebhookConfig   `yaml:"webhooks"`
	Auth      AuthConfig      `yaml:"auth"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
}

type ServerConfig struct {
	Port              int           `yaml:"port" validate:"gte=1,lte=65535"`
	RateRPS           float64       `yaml:"rateRps" validate:"gte=0"`
	RateBurst         int           `yaml:"rateBurst" validate:"gte=0"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes" validate:"gte=1024"`
}

type DatabaseConfig struct {
	URL           string `yaml:"url"`
	Migrate       bool   `yaml:"migrate"`
	MigrationsDir string `yaml:"migrationsDir"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

type TelemetryConfig struct {
	ServiceName   string `yaml:"serviceName" validate:"required"`
	TraceExporter string `yaml:"traceExporter" validate:"oneof=none stdout"`
}

type WebhookConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts" validate:"gte=1,lte=50"`
	PollInterval time.Duration `yaml:"pollInterval" validate:"gte=0"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=0"`
}

// AuthConfig selects how bearer tokens are verified: "dev" accepts
// "tenant:role" tokens, "hmac" verifies HS256 JWTs, "jwks" verifies RS256
// JWTs against keys fetched from JWKSURL.
type AuthConfig struct {
	Mode        string `yaml:"mode" validate:"oneof=dev hmac jwks"`
	HMACSecret  string `yaml:"hmacSecret" validate:"required_if=Mode hmac"`
	JWKSURL     string `yaml:"jwksUrl" validate:"required_if=Mode jwks"`
	TenantClaim string `yaml:"tenantClaim" validate:"required"`
	RoleClaim   string `yaml:"roleClaim" validate:"required"`
}

// OptimizerConfig holds service-wide defaults for optimisation runs. Tenants
// may override a subset through the admin API.
type OptimizerConfig struct {
	Iterations       int     `yaml:"iterations" validate:"gte=1,lte=100000"`
	MaxLocations     int     `yaml:"maxLocations" validate:"gte=1"`
	BatchParallelism int     `yaml:"batchParallelism" validate:"gte=1"`
	MaxBatchJobs     int     `yaml:"maxBatchJobs" validate:"gte=1"`
	ProgressEvery    int     `yaml:"progressEvery" validate:"gte=1"`
	InitialStrategy  string  `yaml:"initialStrategy" validate:"oneof=random identity nearest"`
	Polish           bool    `yaml:"polish"`
	PolishPasses     int     `yaml:"polishPasses" validate:"gte=1"`
	SpeedKph         float64 `yaml:"speedKph" validate:"gte=0"`
}

// Default returns the settings used when neither file nor environment
// override a value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
			MaxBodyBytes:      8 << 20,
		},
		Database: DatabaseConfig{Migrate: true, MigrationsDir: "db/migrations"},
		Log:      LogConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{
			ServiceName:   "tourplan",
			TraceExporter: "none",
		},
		Webhooks: WebhookConfig{
			MaxAttempts:  10,
			PollInterval: time.Second,
			Timeout:      5 * time.Second,
		},
		Auth: AuthConfig{Mode: "dev", TenantClaim: "tenant", RoleClaim: "role"},
		Optimizer: OptimizerConfig{
			Iterations:       500,
			MaxLocations:     500,
			BatchParallelism: 4,
			MaxBatchJobs:     32,
			ProgressEvery:    50,
			InitialStrategy:  "random",
			PolishPasses:     3,
		},
	}
}

// Load starts from Default, applies the YAML file at path when path is not
// empty, then environment variables, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := decode(f, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: parse yaml: %v", ErrInvalid, err)
	}
	return nil
}

// ApplyEnv overlays the recognised environment variables read through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	num("PORT", &cfg.Server.Port)
	float("RATE_RPS", &cfg.Server.RateRPS)
	num("RATE_BURST", &cfg.Server.RateBurst)
	str("DATABASE_URL", &cfg.Database.URL)
	boolean("DB_MIGRATE", &cfg.Database.Migrate)
	str("DB_MIGRATIONS_DIR", &cfg.Database.MigrationsDir)
	str("REDIS_URL", &cfg.Redis.URL)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("OTEL_SERVICE_NAME", &cfg.Telemetry.ServiceName)
	str("OTEL_TRACES_EXPORTER", &cfg.Telemetry.TraceExporter)
	num("WEBHOOK_MAX_ATTEMPTS", &cfg.Webhooks.MaxAttempts)
	str("AUTH_MODE", &cfg.Auth.Mode)
	str("AUTH_HMAC_SECRET", &cfg.Auth.HMACSecret)
	str("AUTH_JWKS_URL", &cfg.Auth.JWKSURL)
	str("AUTH_TENANT_CLAIM", &cfg.Auth.TenantClaim)
	str("AUTH_ROLE_CLAIM", &cfg.Auth.RoleClaim)
	num("OPT_ITERATIONS", &cfg.Optimizer.Iterations)
	num("OPT_MAX_LOCATIONS", &cfg.Optimizer.MaxLocations)
	num("OPT_BATCH_PARALLELISM", &cfg.Optimizer.BatchParallelism)
	str("OPT_INITIAL_STRATEGY", &cfg.Optimizer.InitialStrategy)
	boolean("OPT_POLISH", &cfg.Optimizer.Polish)
	float("OPT_SPEED_KPH", &cfg.Optimizer.SpeedKph)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// SlogLevel maps Log.Level to a slog level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger builds a slog.Logger writing to w in the configured format.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
