package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

type Config struct {
	Port int

	Target        DatabaseConfig
	DefaultSchema string

	// Control is nil when no control-plane database is configured.
	Control *DatabaseConfig

	RedisAddr     string
	SignalChannel string

	AggregateConcurrency    int
	AggregateRequestTimeout time.Duration

	DefaultLayout string
	AllowOrigins  []string

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	cfg := &Config{
		SignalChannel: getEnv("SIGNAL_CHANNEL", "schemagraph:signals"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		DefaultLayout: getEnv("LAYOUT_DEFAULT", "grid"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
	}

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("PORT must be a valid integer: %w", err)
	}
	cfg.Port = port

	target, err := loadTarget()
	if err != nil {
		return nil, err
	}
	cfg.Target = *target

	defaultSchema := "public"
	if target.Driver == DriverMySQL {
		defaultSchema = target.Database
	}
	cfg.DefaultSchema = getEnv("TARGET_DB_SCHEMA", defaultSchema)

	control, err := loadControl()
	if err != nil {
		return nil, err
	}
	cfg.Control = control

	concurrency, err := strconv.Atoi(getEnv("AGGREGATE_CONCURRENCY", "8"))
	if err != nil {
		return nil, fmt.Errorf("AGGREGATE_CONCURRENCY must be a valid integer: %w", err)
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("AGGREGATE_CONCURRENCY must be positive, got %d", concurrency)
	}
	cfg.AggregateConcurrency = concurrency

	timeout, err := time.ParseDuration(getEnv("AGGREGATE_REQUEST_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("AGGREGATE_REQUEST_TIMEOUT must be a valid duration: %w", err)
	}
	cfg.AggregateRequestTimeout = timeout

	for _, origin := range strings.Split(getEnv("CORS_ALLOW_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	return cfg, nil
}

func loadTarget() (*DatabaseConfig, error) {
	driver := getEnv("TARGET_DB_DRIVER", DriverPostgres)
	if driver != DriverPostgres && driver != DriverMySQL {
		return nil, fmt.Errorf("TARGET_DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMySQL, driver)
	}

	defaultPort := "5432"
	if driver == DriverMySQL {
		defaultPort = "3306"
	}

	host, err := requireEnv("TARGET_DB_HOST")
	if err != nil {
		return nil, err
	}
	user, err := requireEnv("TARGET_DB_USERNAME")
	if err != nil {
		return nil, err
	}
	password, err := requireEnv("TARGET_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	database, err := requireEnv("TARGET_DB_DATABASE")
	if err != nil {
		return nil, err
	}

	return &DatabaseConfig{
		Driver:   driver,
		Host:     host,
		Port:     getEnv("TARGET_DB_PORT", defaultPort),
		Username: user,
		Password: password,
		Database: database,
	}, nil
}

// loadControl returns nil when CONTROL_DB_HOST is unset.
func loadControl() (*DatabaseConfig, error) {
	host := os.Getenv("CONTROL_DB_HOST")
	if host == "" {
		return nil, nil
	}

	user, err := requireEnv("CONTROL_DB_USERNAME")
	if err != nil {
		return nil, err
	}
	password, err := requireEnv("CONTROL_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	database, err := requireEnv("CONTROL_DB_DATABASE")
	if err != nil {
		return nil, err
	}

	return &DatabaseConfig{
		Driver:   DriverPostgres,
		Host:     host,
		Port:     getEnv("CONTROL_DB_PORT", "5432"),
		Username: user,
		Password: password,
		Database: database,
	}, nil
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s environment variable is required", key)
	}
	return v, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
