package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the mocktest service
type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	// Database
	DatabaseURL    string
	MaxOpenConns   int
	MaxIdleConns   int
	AutoMigrate    bool
	MigrationsPath string

	// Redis (optional)
	RedisURL string

	// Kafka (optional, in-process pub/sub when empty)
	KafkaBrokers       []string
	KafkaConsumerGroup string

	// Attempt engine
	AnswerGracePeriod   time.Duration
	ExpirySweepInterval time.Duration
	RankRetryMax        int

	Casdoor CasdoorConfig
}

// CasdoorConfig holds Casdoor SDK settings
type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Cert         string
	Organization string
	Application  string
}

// LoadConfig reads configuration from .env (if present) and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; real environments inject variables directly
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:   getEnvInt("DB_MAX_IDLE_CONNS", 5),
		AutoMigrate:    getEnvBool("AUTO_MIGRATE", false),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),

		RedisURL: getEnv("REDIS_URL", ""),

		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "mocktest-service"),

		AnswerGracePeriod:   getEnvDuration("ANSWER_GRACE_PERIOD", 120*time.Second),
		ExpirySweepInterval: getEnvDuration("EXPIRY_SWEEP_INTERVAL", 0),
		RankRetryMax:        getEnvInt("RANK_RETRY_MAX", 5),

		Casdoor: CasdoorConfig{
			Endpoint:     getEnv("CASDOOR_ENDPOINT", ""),
			ClientID:     getEnv("CASDOOR_CLIENT_ID", ""),
			ClientSecret: getEnv("CASDOOR_CLIENT_SECRET", ""),
			Cert:         getEnv("CASDOOR_CERT", ""),
			Organization: getEnv("CASDOOR_ORGANIZATION", ""),
			Application:  getEnv("CASDOOR_APPLICATION", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required settings
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.AnswerGracePeriod < 0 {
		return fmt.Errorf("ANSWER_GRACE_PERIOD must not be negative")
	}
	if c.ExpirySweepInterval < 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL must not be negative")
	}
	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
