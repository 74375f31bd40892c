package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func envFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		val, ok := values[key]
		return val, ok
	}
}

func loadWith(t *testing.T, args []string, env map[string]string) *Config {
	t.Helper()
	cfg, err := load(flag.NewFlagSet("payconnect", flag.ContinueOnError), args, envFrom(env))
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadWith(t, nil, nil)

	assert.Equal(t, ":3000", cfg.Server.ServerAddress)
	assert.Equal(t, 10*time.Second, cfg.BulkClix.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Hubtel.Timeout)
	assert.Equal(t, "Orders", cfg.Airtable.Table)
	assert.False(t, cfg.Reconciler.ApplyTerminalStatus)
	assert.Equal(t, "233531300654", cfg.Reconciler.SupportContact)
	assert.Zero(t, cfg.Monitor.TickPeriod)
	assert.False(t, cfg.UsePostgres())
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel)
}

func TestLoad_EnvOverridesFlags(t *testing.T) {
	cfg := loadWith(
		t,
		[]string{"-a", "localhost:9000", "-timeout", "3s"},
		map[string]string{
			"PORT":                  "8080",
			"OUTBOUND_TIMEOUT":      "2s",
			"APPLY_TERMINAL_STATUS": "true",
			"MONITOR_TICK_PERIOD":   "1m",
			"DATABASE_URI":          "postgres://localhost/payconnect",
			"BULKCLIX_API_KEY":      "bk",
			"HUBTEL_SENDER":         "DataShop",
			"LOG_LEVEL":             "debug",
		},
	)

	assert.Equal(t, ":8080", cfg.Server.ServerAddress)
	assert.Equal(t, 2*time.Second, cfg.BulkClix.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Airtable.Timeout)
	assert.Equal(t, 4*time.Second, cfg.Reconciler.Timeouts.Store)
	assert.Equal(t, 12*time.Second, cfg.Checkout.Timeouts.Lock)
	assert.Equal(t, 4*time.Second, cfg.Monitor.StoreTimeout)
	assert.True(t, cfg.Reconciler.ApplyTerminalStatus)
	assert.True(t, cfg.Monitor.ReportFailures)
	assert.Equal(t, time.Minute, cfg.Monitor.TickPeriod)
	assert.True(t, cfg.UsePostgres())
	assert.Equal(t, "bk", cfg.BulkClix.APIKey)
	assert.Equal(t, "DataShop", cfg.Hubtel.Sender)
	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel)
}

func TestLoad_RunAddressWinsOverPort(t *testing.T) {
	cfg := loadWith(t, nil, map[string]string{"PORT": "8080", "RUN_ADDRESS": "0.0.0.0:7000"})
	assert.Equal(t, "0.0.0.0:7000", cfg.Server.ServerAddress)
}

func TestLoad_InvalidValues(t *testing.T) {
	for _, env := range []map[string]string{
		{"OUTBOUND_TIMEOUT": "soon"},
		{"APPLY_TERMINAL_STATUS": "maybe"},
		{"MONITOR_TICK_PERIOD": "often"},
		{"LOG_LEVEL": "loud"},
	} {
		_, err := load(flag.NewFlagSet("payconnect", flag.ContinueOnError), nil, envFrom(env))
		assert.Error(t, err, env)
	}
}

func TestValidate(t *testing.T) {
	complete := map[string]string{
		"BULKCLIX_API_KEY":     "bk",
		"HUBTEL_CLIENT_ID":     "id",
		"HUBTEL_CLIENT_SECRET": "secret",
		"AIRTABLE_API_KEY":     "at",
		"AIRTABLE_BASE":        "app1",
	}
	require.NoError(t, loadWith(t, nil, complete).Validate())

	withoutStore := map[string]string{}
	for k, v := range complete {
		if k != "AIRTABLE_API_KEY" {
			withoutStore[k] = v
		}
	}
	err := loadWith(t, nil, withoutStore).Validate()
	assert.ErrorIs(t, err, ErrMissingSetting)
	assert.ErrorContains(t, err, "AIRTABLE_API_KEY")

	withoutStore["DATABASE_URI"] = "postgres://localhost/payconnect"
	assert.NoError(t, loadWith(t, nil, withoutStore).Validate())

	err = loadWith(t, nil, nil).Validate()
	assert.ErrorIs(t, err, ErrMissingSetting)
	assert.ErrorContains(t, err, "BULKCLIX_API_KEY")
	assert.ErrorContains(t, err, "HUBTEL_CLIENT_SECRET")
}
