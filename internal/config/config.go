package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"github.com/bohemiyan/grc-rbac/quality"
)

// Config holds the process configuration read from the environment.
type Config struct {
	AppPort int

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	CacheTTL     time.Duration
	CachePrefix  string
	AuditEnabled bool
	AutoMigrate  bool

	LogFile  string
	LogLevel zapcore.Level

	// GatewaySecret authenticates the upstream gateway that forwards the caller's user ID.
	GatewaySecret string

	Quality quality.Thresholds
}

// LoadConfig loads .env when present and reads the configuration from the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresUser:     getEnv("POSTGRES_USER", "grc"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "grc"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		CachePrefix:      getEnv("CACHE_PREFIX", "rbac:"),
		LogFile:          getEnv("LOG_FILE", "app.log"),
		GatewaySecret:    getEnv("GATEWAY_SECRET", ""),
	}

	var err error
	if cfg.AppPort, err = getInt("APP_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.PostgresPort, err = getInt("POSTGRES_PORT", 5432); err != nil {
		return nil, err
	}
	if cfg.RedisPort, err = getInt("REDIS_PORT", 6379); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AuditEnabled, err = getBool("AUDIT_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.AutoMigrate, err = getBool("AUTO_MIGRATE", true); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = zapcore.ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	q := quality.DefaultThresholds()
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"QUALITY_MIN_COMPLETION", &q.MinimumCompletion},
		{"QUALITY_MIN_SCORE", &q.MinimumQualityScore},
		{"QUALITY_MIN_CONFIDENCE", &q.MinimumConfidence},
		{"QUALITY_WARNING_TOLERANCE", &q.WarningTolerance},
	} {
		v, err := getFraction(f.key, *f.dst)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	cfg.Quality = q

	return cfg, nil
}

// PostgresDSN returns the keyword/value connection string for lib/pq and pgx.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}

// RedisAddr returns host:port for the Redis client.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getFraction(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("invalid %s: %v is outside [0,1]", key, f)
	}
	return f, nil
}
