package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.TimeBank.CancelWindow)
	assert.True(t, cfg.TimeBank.MaxBalance.Equal(decimal.NewFromInt(100)))
	assert.True(t, cfg.TimeBank.StartingBalance.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, []string{"*"}, cfg.Auth.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TIMEBANK_MAX_BALANCE", "40.5")
	t.Setenv("SERVICE_CANCEL_WINDOW", "2h")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("DB_NAME", "tb_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.True(t, cfg.TimeBank.MaxBalance.Equal(decimal.RequireFromString("40.5")))
	assert.Equal(t, 2*time.Hour, cfg.TimeBank.CancelWindow)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Auth.CORSOrigins)
	assert.Equal(t, "postgres://postgres:@localhost:5432/tb_test?sslmode=disable", cfg.ConnectionString())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "UnknownDriver", key: "STORE_DRIVER", val: "redis"},
		{name: "NegativeStartingBalance", key: "TIMEBANK_STARTING_BALANCE", val: "-1"},
		{name: "MalformedBalance", key: "TIMEBANK_MAX_BALANCE", val: "lots"},
		{name: "StartingAboveMax", key: "TIMEBANK_STARTING_BALANCE", val: "101"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
