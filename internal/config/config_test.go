package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "log_file: test.log\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test.log", cfg.LogFile)
	assert.Equal(t, ":9101", cfg.MetricsAddr)
	assert.Equal(t, DefaultPositionRefreshMs, cfg.Monitoring.PositionRefreshMs)
	assert.Equal(t, DefaultPriceRefreshMs, cfg.Monitoring.PriceRefreshMs)
	assert.Equal(t, DefaultPnLRefreshMs, cfg.Monitoring.PnLRefreshMs)
	assert.Equal(t, DefaultAnomalyRefreshMs, cfg.Monitoring.AnomalyRefreshMs)
	assert.Equal(t, 5.0, cfg.Monitoring.PriceSpikeThreshold)
	assert.Equal(t, 100.0, cfg.Monitoring.MarginCallThreshold)
	assert.True(t, cfg.Monitoring.AlertsEnabled)
	assert.Equal(t, 24*time.Hour, cfg.Monitoring.MaxPositionAge())
	assert.Equal(t, 5*time.Minute, cfg.Monitoring.AlertCooldown())
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
bridge_url: ws://localhost:8765
monitoring:
  position_refresh_ms: 250
  price_spike_threshold: 2.5
  allowed_magics: [42, 1337]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8765", cfg.BridgeURL)
	assert.Equal(t, 250, cfg.Monitoring.PositionRefreshMs)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitoring.PositionInterval())
	assert.Equal(t, 2.5, cfg.Monitoring.PriceSpikeThreshold)
	assert.Equal(t, []int64{42, 1337}, cfg.Monitoring.AllowedMagics)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_RejectsInvalidBridgeURL(t *testing.T) {
	path := writeConfig(t, "bridge_url: http://not-a-websocket\n")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateMonitoring(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*MonitoringConfig)
		valid  bool
	}{
		{"defaults", func(*MonitoringConfig) {}, true},
		{"zero position interval", func(m *MonitoringConfig) { m.PositionRefreshMs = 0 }, false},
		{"negative price interval", func(m *MonitoringConfig) { m.PriceRefreshMs = -1 }, false},
		{"zero pnl interval", func(m *MonitoringConfig) { m.PnLRefreshMs = 0 }, false},
		{"zero anomaly interval", func(m *MonitoringConfig) { m.AnomalyRefreshMs = 0 }, false},
		{"zero spike threshold", func(m *MonitoringConfig) { m.PriceSpikeThreshold = 0 }, false},
		{"zero volume threshold", func(m *MonitoringConfig) { m.VolumeThreshold = 0 }, false},
		{"zero margin threshold", func(m *MonitoringConfig) { m.MarginCallThreshold = 0 }, false},
		{"zero drawdown threshold", func(m *MonitoringConfig) { m.DrawdownThreshold = 0 }, false},
		{"negative max age", func(m *MonitoringConfig) { m.MaxPositionAgeMs = -1 }, false},
		{"zero max age is allowed", func(m *MonitoringConfig) { m.MaxPositionAgeMs = 0 }, true},
		{"zero max errors", func(m *MonitoringConfig) { m.MaxErrors = 0 }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := DefaultMonitoring()
			tc.mutate(&m)
			err := ValidateMonitoring(m)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
