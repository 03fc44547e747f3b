package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	VerificationStoreMemory = "memory"
	VerificationStoreRedis  = "redis"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Verification VerificationConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret         string
	SessionTTLMinutes int
	BcryptCost        int
	AdminKey          string
	CookieName        string
	CookieDomain      string
}

// RateRule bounds calls for one endpoint class.
type RateRule struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig holds per endpoint-class limits for identity checks.
type RateLimitConfig struct {
	TrustForwardedFor bool
	Login             RateRule
	Verify            RateRule
	Session           RateRule
	Operator          RateRule
}

func (r RateLimitConfig) rules() []namedRule {
	return []namedRule{
		{"RATE_LIMIT_LOGIN", r.Login},
		{"RATE_LIMIT_VERIFY", r.Verify},
		{"RATE_LIMIT_SESSION", r.Session},
		{"RATE_LIMIT_OPERATOR", r.Operator},
	}
}

type namedRule struct {
	env  string
	rule RateRule
}

// VerificationConfig tunes second-factor code issuance.
type VerificationConfig struct {
	CodeTTL       time.Duration
	DailyCap      int
	MaxAttempts   int
	Store         string
	SweepSchedule string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom string
}

// ConfigurationError reports a setting the process cannot run without.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "pharmacy-auth"),
			Env:                   strings.ToLower(strings.TrimSpace(getEnv("APP_ENV", EnvDevelopment))),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("AUTH_JWT_SECRET"),
			SessionTTLMinutes: getEnvAsInt("AUTH_SESSION_TTL_MINUTES", 60*24),
			BcryptCost:        getEnvAsInt("AUTH_BCRYPT_COST", 12),
			AdminKey:          os.Getenv("AUTH_ADMIN_KEY"),
			CookieName:        getEnv("AUTH_COOKIE_NAME", "session"),
			CookieDomain:      os.Getenv("AUTH_COOKIE_DOMAIN"),
		},
		RateLimit: RateLimitConfig{
			TrustForwardedFor: getEnvAsBool("RATE_LIMIT_TRUST_FORWARDED_FOR", true),
			Login: RateRule{
				Limit:  getEnvAsInt("RATE_LIMIT_LOGIN_MAX", 10),
				Window: getEnvAsDuration("RATE_LIMIT_LOGIN_WINDOW", time.Minute),
			},
			Verify: RateRule{
				Limit:  getEnvAsInt("RATE_LIMIT_VERIFY_MAX", 5),
				Window: getEnvAsDuration("RATE_LIMIT_VERIFY_WINDOW", time.Minute),
			},
			Session: RateRule{
				Limit:  getEnvAsInt("RATE_LIMIT_SESSION_MAX", 120),
				Window: getEnvAsDuration("RATE_LIMIT_SESSION_WINDOW", time.Minute),
			},
			Operator: RateRule{
				Limit:  getEnvAsInt("RATE_LIMIT_OPERATOR_MAX", 5),
				Window: getEnvAsDuration("RATE_LIMIT_OPERATOR_WINDOW", time.Minute),
			},
		},
		Verification: VerificationConfig{
			CodeTTL:       getEnvAsDuration("VERIFICATION_CODE_TTL", 10*time.Minute),
			DailyCap:      getEnvAsInt("VERIFICATION_DAILY_CAP", 5),
			MaxAttempts:   getEnvAsInt("VERIFICATION_MAX_ATTEMPTS", 5),
			Store:         strings.ToLower(getEnv("VERIFICATION_STORE", VerificationStoreMemory)),
			SweepSchedule: getEnv("VERIFICATION_SWEEP_SCHEDULE", "@every 1m"),
		},
		Notification: NotificationConfig{
			EmailFrom: getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
		},
	}

	return cfg, nil
}

// Validate reports the first setting that prevents the process from serving requests.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return &ConfigurationError{Field: "AUTH_JWT_SECRET", Reason: "must be set"}
	}
	if c.App.Env != EnvDevelopment && c.App.Env != EnvProduction {
		return &ConfigurationError{Field: "APP_ENV", Reason: fmt.Sprintf("must be %q or %q", EnvDevelopment, EnvProduction)}
	}
	if c.App.IsProduction() && strings.TrimSpace(c.Auth.CookieDomain) == "" {
		return &ConfigurationError{Field: "AUTH_COOKIE_DOMAIN", Reason: "must be set in production"}
	}
	switch c.Verification.Store {
	case VerificationStoreMemory:
	case VerificationStoreRedis:
		if c.Redis.Addr == "" {
			return &ConfigurationError{Field: "REDIS_ADDR", Reason: "required by the redis verification store"}
		}
	default:
		return &ConfigurationError{Field: "VERIFICATION_STORE", Reason: "must be memory or redis"}
	}
	if c.Verification.DailyCap <= 0 || c.Verification.CodeTTL <= 0 {
		return &ConfigurationError{Field: "VERIFICATION_DAILY_CAP/VERIFICATION_CODE_TTL", Reason: "must be positive"}
	}
	for _, r := range c.RateLimit.rules() {
		if r.rule.Limit <= 0 {
			return &ConfigurationError{Field: r.env + "_MAX", Reason: "must be positive"}
		}
		if r.rule.Window <= 0 {
			return &ConfigurationError{Field: r.env + "_WINDOW", Reason: "must be positive"}
		}
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether cookies must be secure and domain pinned.
func (a AppConfig) IsProduction() bool {
	return a.Env == EnvProduction
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SessionTTL returns the lifetime of an issued session credential.
func (a AuthConfig) SessionTTL() time.Duration {
	if a.SessionTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.SessionTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
