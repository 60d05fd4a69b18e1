package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	Gains    GainsConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	HoldingsTopic string
	EventsTopic   string
	GroupID       string
}

// RedisConfig holds the run lock store configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// LedgerConfig holds allocation and retention settings
type LedgerConfig struct {
	RetentionDays int
	IDStrategy    string // max_plus_one or auto
}

// GainsConfig holds gain calculator settings
type GainsConfig struct {
	Schedule          string
	PriceBaseURL      string
	RequestsPerSecond int
	SkipTickers       []string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads configuration from environment variables, after loading a .env file if present
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "asset"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "db/migrations"),
		},
		Kafka: KafkaConfig{
			Enabled:       getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:       getEnvAsList("KAFKA_BROKERS", []string{"localhost:9092"}),
			HoldingsTopic: getEnv("KAFKA_HOLDINGS_TOPIC", "holdings-snapshots"),
			EventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "ledger-events"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "asset-allocation"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			LockTTL:  getEnvAsDuration("REDIS_LOCK_TTL", 30*time.Minute),
		},
		Ledger: LedgerConfig{
			RetentionDays: getEnvAsInt("LEDGER_RETENTION_DAYS", 730),
			IDStrategy:    getEnv("LEDGER_ID_STRATEGY", "max_plus_one"),
		},
		Gains: GainsConfig{
			Schedule:          getEnv("GAINS_SCHEDULE", "0 0 18 * * MON-FRI"),
			PriceBaseURL:      getEnv("GAINS_PRICE_BASE_URL", "https://query1.finance.yahoo.com/v7/finance/download"),
			RequestsPerSecond: getEnvAsInt("GAINS_REQUESTS_PER_SECOND", 2),
			SkipTickers:       getEnvAsList("GAINS_SKIP_TICKERS", []string{"FCASH"}),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvAsBool("LOG_PRETTY", true),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Addr returns the HTTP listen address
func (s *ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
