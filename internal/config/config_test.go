package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "asset", cfg.Database.DBName)
	assert.Equal(t, 730, cfg.Ledger.RetentionDays)
	assert.Equal(t, "max_plus_one", cfg.Ledger.IDStrategy)
	assert.Equal(t, []string{"FCASH"}, cfg.Gains.SkipTickers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Redis.LockTTL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DB_NAME", "ledger")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("LEDGER_RETENTION_DAYS", "365")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_LOCK_TTL", "5m")
	t.Setenv("LEDGER_ID_STRATEGY", "auto")

	cfg := Load()

	assert.Equal(t, "ledger", cfg.Database.DBName)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 365, cfg.Ledger.RetentionDays)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Redis.LockTTL)
	assert.Equal(t, "auto", cfg.Ledger.IDStrategy)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("LEDGER_RETENTION_DAYS", "two years")
	t.Setenv("REDIS_LOCK_TTL", "soon")

	cfg := Load()

	assert.Equal(t, 730, cfg.Ledger.RetentionDays)
	assert.Equal(t, 30*time.Minute, cfg.Redis.LockTTL)
}

func TestConnectionString(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "asset", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/asset?sslmode=disable", d.ConnectionString())
}
