package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment    string               `mapstructure:"environment"`
	LogLevel       string               `mapstructure:"log_level"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Idempotency    IdempotencyConfig    `mapstructure:"idempotency"`
	Outbox         OutboxConfig         `mapstructure:"outbox"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Maintenance    MaintenanceConfig    `mapstructure:"maintenance"`
	Telemetry      TelemetryConfig      `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
	MaxBodyBytes    int64    `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	QueryTimeout    int    `mapstructure:"query_timeout"`
	MigrationsPath  string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// AuthConfig covers the operator bearer tokens used by the admin surface.
type AuthConfig struct {
	OperatorSecret   string `mapstructure:"operator_secret"`
	OperatorTokenTTL int    `mapstructure:"operator_token_ttl"`
}

// IdempotencyConfig controls key retention and the per-key advisory lock.
type IdempotencyConfig struct {
	TTLHours           int `mapstructure:"ttl_hours"`
	LockTimeoutSeconds int `mapstructure:"lock_timeout_seconds"`
}

// OutboxConfig controls the outbox relay workers.
type OutboxConfig struct {
	PollInterval int `mapstructure:"poll_interval"`
	BatchSize    int `mapstructure:"batch_size"`
	MaxAttempts  int `mapstructure:"max_attempts"`
	Workers      int `mapstructure:"workers"`
}

// ReconciliationConfig contains reconciliation service configuration
type ReconciliationConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	PageSize int  `mapstructure:"page_size"`
}

// MaintenanceConfig holds the cron schedules for background housekeeping.
type MaintenanceConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	PurgeSchedule     string `mapstructure:"purge_schedule"`
	ReconcileSchedule string `mapstructure:"reconcile_schedule"`
	JobTimeout        int    `mapstructure:"job_timeout"`
}

type TelemetryConfig struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	CollectorURL   string  `mapstructure:"collector_url"`
	SampleRate     float64 `mapstructure:"sample_rate"`
	Insecure       bool    `mapstructure:"insecure"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set defaults
	setDefaults()

	// Read from config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Override specific environment variables
	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	// Validate required fields
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.rate_limit_per_min", 100)
	viper.SetDefault("server.max_body_bytes", 1<<20)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "ledgerd")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.max_idle_conns", 25)
	viper.SetDefault("database.conn_max_lifetime", 3600)
	viper.SetDefault("database.query_timeout", 30)
	viper.SetDefault("database.migrations_path", "migrations")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)

	// Auth defaults
	viper.SetDefault("auth.operator_token_ttl", 3600) // 1 hour

	// Idempotency defaults
	viper.SetDefault("idempotency.ttl_hours", 24)
	viper.SetDefault("idempotency.lock_timeout_seconds", 5)

	// Outbox defaults
	viper.SetDefault("outbox.poll_interval", 5)
	viper.SetDefault("outbox.batch_size", 50)
	viper.SetDefault("outbox.max_attempts", 5)
	viper.SetDefault("outbox.workers", 2)

	// Reconciliation defaults
	viper.SetDefault("reconciliation.enabled", true)
	viper.SetDefault("reconciliation.page_size", 500)

	// Maintenance defaults
	viper.SetDefault("maintenance.enabled", true)
	viper.SetDefault("maintenance.purge_schedule", "0 * * * *")       // hourly
	viper.SetDefault("maintenance.reconcile_schedule", "0 */6 * * *") // every 6 hours
	viper.SetDefault("maintenance.job_timeout", 300)

	// Telemetry defaults
	viper.SetDefault("telemetry.tracing_enabled", false)
	viper.SetDefault("telemetry.collector_url", "localhost:4317")
	viper.SetDefault("telemetry.sample_rate", 0.1)
	viper.SetDefault("telemetry.insecure", true)
}

func overrideFromEnv() {
	// Server
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}

	// Database
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}

	// Redis
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		viper.Set("redis.host", redisHost)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		viper.Set("redis.password", redisPassword)
	}

	// Operator auth
	if operatorSecret := os.Getenv("OPERATOR_TOKEN_SECRET"); operatorSecret != "" {
		viper.Set("auth.operator_secret", operatorSecret)
	}

	// Telemetry
	if collectorURL := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); collectorURL != "" {
		viper.Set("telemetry.collector_url", collectorURL)
	}
	if tracingEnabled := os.Getenv("TRACING_ENABLED"); tracingEnabled != "" {
		if enabled, err := strconv.ParseBool(tracingEnabled); err == nil {
			viper.Set("telemetry.tracing_enabled", enabled)
		}
	}

	// Allowed origins, comma separated
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		var allowed []string
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				allowed = append(allowed, trimmed)
			}
		}
		if len(allowed) > 0 {
			viper.Set("server.allowed_origins", allowed)
		}
	}
}

func validate(config *Config) error {
	if config.Database.URL == "" && (config.Database.Host == "" || config.Database.Name == "") {
		return fmt.Errorf("database configuration is incomplete")
	}

	if config.Environment == "production" && config.Auth.OperatorSecret == "" {
		return fmt.Errorf("operator token secret is required in production")
	}

	if config.Outbox.BatchSize < 1 {
		return fmt.Errorf("outbox batch size must be at least 1")
	}

	if config.Outbox.MaxAttempts < 1 {
		return fmt.Errorf("outbox max attempts must be at least 1")
	}

	if config.Idempotency.TTLHours < 1 {
		return fmt.Errorf("idempotency TTL must be at least one hour")
	}

	return nil
}
