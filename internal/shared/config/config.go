package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the reservation engine
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Session token configuration
	Session SessionConfig

	// Seat hold configuration
	Hold HoldConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Kafka delta relay configuration
	Kafka KafkaConfig

	// Availability read model configuration
	Availability AvailabilityConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string

	// TTL for the seat-set admission lock taken while conflict checks run.
	// This is a short critical-section guard, not the hold TTL.
	SeatLockTTL time.Duration
}

// SessionConfig holds session token verification configuration.
// Identity is owned by an external service; we only verify its signed tokens.
type SessionConfig struct {
	Secret string
	// TokenTTL bounds tokens minted by the built-in dev issuer
	TokenTTL time.Duration
}

// HoldConfig holds seat hold lifecycle configuration
type HoldConfig struct {
	// TTL granted per acquire/renew
	TTL time.Duration
	// MaxLifetime caps total seat pinning from CreatedAt across renewals
	MaxLifetime time.Duration
	// SweepInterval is how often the background sweeper expires stale holds
	SweepInterval time.Duration
}

// PaymentConfig holds payment gateway client configuration
type PaymentConfig struct {
	// ChargeTimeout bounds a single gateway call; timeout counts as failure
	ChargeTimeout time.Duration
}

// KafkaConfig holds the seat-status delta outbox configuration
type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	DeltaTopic string
	GroupID    string
}

// AvailabilityConfig holds the read model configuration
type AvailabilityConfig struct {
	// SnapshotTTL is the documented staleness bound for cached availability reads
	SnapshotTTL time.Duration
	// IndexMaxAge forces an index day reload when its last rebuild is older,
	// a backstop against missed deltas
	IndexMaxAge time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled          bool          `json:"enabled"`
	WindowDuration   time.Duration `json:"window_duration"`
	DefaultRequests  int           `json:"default_requests"`
	PublicRequests   int           `json:"public_requests"`
	HoldRequests     int           `json:"hold_requests"`
	CheckoutRequests int           `json:"checkout_requests"`
	HealthRequests   int           `json:"health_requests"`
	WhitelistedIPs   []string      `json:"whitelisted_ips"`
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "seatly_db"),
			User:     getEnv("DB_USER", "seatly_user"),
			Password: getEnv("DB_PASSWORD", "seatly_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		// Redis configuration
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),

			SeatLockTTL: getDurationEnv("REDIS_SEAT_LOCK_TTL", 5*time.Second),
		},

		// Session token configuration
		Session: SessionConfig{
			Secret:   getEnv("SESSION_TOKEN_SECRET", "dev-only-session-secret"),
			TokenTTL: getDurationEnv("SESSION_TOKEN_TTL", 12*time.Hour),
		},

		// Seat hold configuration
		Hold: HoldConfig{
			TTL:           getDurationEnv("HOLD_TTL", 5*time.Minute),
			MaxLifetime:   getDurationEnv("HOLD_MAX_LIFETIME", 30*time.Minute),
			SweepInterval: getDurationEnv("HOLD_SWEEP_INTERVAL", 30*time.Second),
		},

		// Payment gateway configuration
		Payment: PaymentConfig{
			ChargeTimeout: getDurationEnv("PAYMENT_CHARGE_TIMEOUT", 10*time.Second),
		},

		// Kafka delta relay configuration
		Kafka: KafkaConfig{
			Enabled:    getBoolEnv("KAFKA_ENABLED", false),
			Brokers:    getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			DeltaTopic: getEnv("KAFKA_DELTA_TOPIC", "seat-status-deltas"),
			GroupID:    getEnv("KAFKA_GROUP_ID", "seatly-delta-relay"),
		},

		// Availability read model configuration
		Availability: AvailabilityConfig{
			SnapshotTTL: getDurationEnv("AVAILABILITY_SNAPSHOT_TTL", 2*time.Second),
			IndexMaxAge: getDurationEnv("AVAILABILITY_INDEX_MAX_AGE", time.Minute),
		},

		// Rate limiting
		RateLimit: RateLimitConfig{
			Enabled:          getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:   getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests:  getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			PublicRequests:   getIntEnv("RATE_LIMIT_PUBLIC_REQUESTS", 120),
			HoldRequests:     getIntEnv("RATE_LIMIT_HOLD_REQUESTS", 20),
			CheckoutRequests: getIntEnv("RATE_LIMIT_CHECKOUT_REQUESTS", 10),
			HealthRequests:   getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 300),
			WhitelistedIPs:   getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
