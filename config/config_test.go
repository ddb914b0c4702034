package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "http:\n  address: \":8081\"\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTP.Address)
	assert.Equal(t, 6, cfg.OTP.Length)
	assert.Equal(t, 15*time.Minute, cfg.OTP.TTL())
	assert.Equal(t, 5, cfg.OTP.MaxReissues)
	assert.Equal(t, "percent", cfg.Settlement.Mode)
	assert.Equal(t, 10.0, cfg.Settlement.Percent)
	assert.Equal(t, 1.15, cfg.Pricing.SeasonalFactors[10])
	assert.Equal(t, time.Hour, cfg.Booking.AcceptTTL())
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db
  port: 5433
  user: u
  password: p
  name: rent
  ssl_mode: require
settlement:
  mode: flat
  flat_fee: 50
otp:
  length: 4
  ttl_minutes: 5
  max_attempts: 3
  max_reissues: 1
`)
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "host=db port=5433 user=u password=p dbname=rent sslmode=require", cfg.Database.DSN())
	assert.Equal(t, "pgx5://u:p@db:5433/rent?sslmode=require", cfg.Database.MigrateURL())
	assert.Equal(t, int64(50), cfg.Settlement.FlatFee)
	assert.Equal(t, 4, cfg.OTP.Length)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfig_Invalid(t *testing.T) {
	testCases := []struct {
		name        string
		body        string
		expectedErr string
	}{
		{"unknown settlement mode", "settlement:\n  mode: tiered\n", "settlement.mode"},
		{"percent out of range", "settlement:\n  percent: 120\n", "settlement.percent"},
		{"otp too short", "otp:\n  length: 2\n", "otp.length"},
		{"unknown floor mode", "pricing:\n  floor_mode: exact\n", "pricing.floor_mode"},
		{"zero sweep interval", "worker:\n  expiration_sweep_minutes: 0\n", "worker intervals"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectedErr)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}
