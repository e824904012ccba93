package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("PORT", "")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "bakery_employee_cycles", cfg.Keys.Cycles)
	assert.Equal(t, 15*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_EnvThenFlags(t *testing.T) {
	// GIVEN: environment settings
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REFRESH_INTERVAL", "30s")
	t.Setenv("CORS_ORIGINS", "https://bakery.example, ,https://admin.example")
	t.Setenv("LEDGER_KEY", "payments_v2")

	// WHEN: a flag overrides the port
	cfg, err := Load([]string{"-port", "9100"})
	require.NoError(t, err)

	// THEN
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, DriverRedis, cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.Equal(t, []string{"https://bakery.example", "https://admin.example"}, cfg.CORSOrigins)
	assert.Equal(t, "payments_v2", cfg.Keys.Ledger)
}

func TestLoad_RejectsBadSettings(t *testing.T) {
	_, err := Load([]string{"-store", "postgres"})
	assert.ErrorContains(t, err, "unknown store driver")

	_, err = Load([]string{"-store", "memory", "-tz", "Mars/Olympus"})
	assert.ErrorContains(t, err, "time zone")

	_, err = Load([]string{"-store", "memory", "-refresh", "-1m"})
	assert.Error(t, err)
}

func TestLoad_RejectsMalformedEnvironment(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port not a number", "PORT", "abc"},
		{"interval without unit", "REFRESH_INTERVAL", "5"},
		{"redis db not a number", "REDIS_DB", "one"},
		{"lock ttl garbage", "REDIS_LOCK_TTL", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STORE_DRIVER", "memory")
			t.Setenv(tt.key, tt.val)

			_, err := Load(nil)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.key)
			assert.ErrorContains(t, err, tt.val)
		})
	}
}

func TestLoad_ReportsEveryMalformedVariable(t *testing.T) {
	t.Setenv("PORT", "abc")
	t.Setenv("REFRESH_INTERVAL", "5")

	_, err := Load(nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "PORT")
	assert.ErrorContains(t, err, "REFRESH_INTERVAL")
}
