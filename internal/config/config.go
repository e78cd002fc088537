package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Payment  PaymentConfig
	Policy   PolicyConfig
	Events   EventsConfig
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
	DSN             string
	Schema          string
	ApplicationName string
	MaxConns        int32
	MinConns        int32
	RunMigrations   bool
	MigrationsDir   string
	ConnMaxIdleSec  int32
	ConnMaxLifeSec  int32
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

// AuthConfig defines identity token parameters.
type AuthConfig struct {
	JWTSecret       string
	Issuer          string
	TokenTTLMinutes int
}

// PaymentConfig holds processor credentials and prices. Amounts are in major currency units.
type PaymentConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	BoostAmount         int64
	SubscriptionAmount  int64
	VerifyConfirmations bool
	MaxRetries          int
	LockTTLSeconds      int
	LockWaitMillis      int
}

// PolicyConfig holds issue reporting rules.
type PolicyConfig struct {
	FreeIssueLimit int
}

// EventsConfig controls domain event forwarding.
type EventsConfig struct {
	Stream string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "issue-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("POSTGRES_DSN"),
			Schema:          os.Getenv("POSTGRES_SCHEMA"),
			ApplicationName: getEnv("APP_NAME", "issue-service"),
			MaxConns:        maxConns,
			MinConns:        minConns,
			RunMigrations:   runMigrations,
			MigrationsDir:   getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec:  connMaxIdle,
			ConnMaxLifeSec:  connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:          getEnv("AUTH_JWT_ISSUER", "issue-service"),
			TokenTTLMinutes: getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 60),
		},
		Payment: PaymentConfig{
			StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:            getEnv("PAYMENT_CURRENCY", "bdt"),
			BoostAmount:         int64(getEnvAsInt("PAYMENT_BOOST_AMOUNT", 100)),
			SubscriptionAmount:  int64(getEnvAsInt("PAYMENT_SUBSCRIPTION_AMOUNT", 1000)),
			VerifyConfirmations: getEnvAsBool("PAYMENT_VERIFY_CONFIRMATIONS", true),
			MaxRetries:          getEnvAsInt("PAYMENT_MAX_RETRIES", 3),
			LockTTLSeconds:      getEnvAsInt("SETTLEMENT_LOCK_TTL_SECONDS", 30),
			LockWaitMillis:      getEnvAsInt("SETTLEMENT_LOCK_WAIT_MS", 2000),
		},
		Policy: PolicyConfig{
			FreeIssueLimit: getEnvAsInt("FREE_ISSUE_LIMIT", 3),
		},
		Events: EventsConfig{
			Stream: getEnv("EVENTS_STREAM", "issue-events"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// LockTTL returns how long a settlement lock is held at most.
func (p PaymentConfig) LockTTL() time.Duration {
	if p.LockTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.LockTTLSeconds) * time.Second
}

// LockWait returns how long a settlement waits on a held lock before
// reporting it as in progress. Zero means no waiting.
func (p PaymentConfig) LockWait() time.Duration {
	if p.LockWaitMillis <= 0 {
		return 0
	}
	return time.Duration(p.LockWaitMillis) * time.Millisecond
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
