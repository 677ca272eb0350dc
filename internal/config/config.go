package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration.
type Config struct {
	LogFile     string           `mapstructure:"log_file"`
	Development bool             `mapstructure:"development"`
	BridgeURL   string           `mapstructure:"bridge_url"`
	MetricsAddr string           `mapstructure:"metrics_addr"`
	Monitoring  MonitoringConfig `mapstructure:"monitoring"`
}

// MonitoringConfig is the flat set of monitor tunables. It is
// immutable per cycle: the monitor reads a snapshot at each tick, and
// a wholesale replacement takes effect on the next cycle.
type MonitoringConfig struct {
	PositionRefreshMs int `mapstructure:"position_refresh_ms"`
	PriceRefreshMs    int `mapstructure:"price_refresh_ms"`
	PnLRefreshMs      int `mapstructure:"pnl_refresh_ms"`
	AnomalyRefreshMs  int `mapstructure:"anomaly_refresh_ms"`

	PriceSpikeThreshold float64 `mapstructure:"price_spike_threshold"` // percent
	VolumeThreshold     float64 `mapstructure:"volume_threshold"`      // ratio
	MarginCallThreshold float64 `mapstructure:"margin_call_threshold"` // percent
	DrawdownThreshold   float64 `mapstructure:"drawdown_threshold"`    // percent
	MaxPositionAgeMs    int64   `mapstructure:"max_position_age_ms"`

	ProfitAlertPercent float64 `mapstructure:"profit_alert_percent"`
	LossAlertPercent   float64 `mapstructure:"loss_alert_percent"`
	AlertsEnabled      bool    `mapstructure:"alerts_enabled"`
	AlertCooldownMs    int     `mapstructure:"alert_cooldown_ms"`

	MaxPriceHistory    int `mapstructure:"max_price_history"`
	MaxVolumeHistory   int `mapstructure:"max_volume_history"`
	MaxStateHistory    int `mapstructure:"max_state_history"`
	MaxPositionHistory int `mapstructure:"max_position_history"`
	MaxAnomalies       int `mapstructure:"max_anomalies"`
	MaxErrors          int `mapstructure:"max_errors"`

	AllowedMagics []int64 `mapstructure:"allowed_magics"`
}

const (
	DefaultPositionRefreshMs = 1000
	DefaultPriceRefreshMs    = 500
	DefaultPnLRefreshMs      = 2000
	DefaultAnomalyRefreshMs  = 1000
)

// DefaultMonitoring returns the default monitor tuning.
func DefaultMonitoring() MonitoringConfig {
	return MonitoringConfig{
		PositionRefreshMs:   DefaultPositionRefreshMs,
		PriceRefreshMs:      DefaultPriceRefreshMs,
		PnLRefreshMs:        DefaultPnLRefreshMs,
		AnomalyRefreshMs:    DefaultAnomalyRefreshMs,
		PriceSpikeThreshold: 5.0,
		VolumeThreshold:     3.0,
		MarginCallThreshold: 100.0,
		DrawdownThreshold:   25.0,
		MaxPositionAgeMs:    int64(24 * time.Hour / time.Millisecond),
		ProfitAlertPercent:  10.0,
		LossAlertPercent:    -5.0,
		AlertsEnabled:       true,
		AlertCooldownMs:     int(5 * time.Minute / time.Millisecond),
		MaxPriceHistory:     1000,
		MaxVolumeHistory:    500,
		MaxStateHistory:     100,
		MaxPositionHistory:  100,
		MaxAnomalies:        500,
		MaxErrors:           100,
	}
}

// Interval accessors convert the millisecond tunables to durations.

func (m MonitoringConfig) PositionInterval() time.Duration {
	return time.Duration(m.PositionRefreshMs) * time.Millisecond
}

func (m MonitoringConfig) PriceInterval() time.Duration {
	return time.Duration(m.PriceRefreshMs) * time.Millisecond
}

func (m MonitoringConfig) PnLInterval() time.Duration {
	return time.Duration(m.PnLRefreshMs) * time.Millisecond
}

func (m MonitoringConfig) AnomalyInterval() time.Duration {
	return time.Duration(m.AnomalyRefreshMs) * time.Millisecond
}

func (m MonitoringConfig) MaxPositionAge() time.Duration {
	return time.Duration(m.MaxPositionAgeMs) * time.Millisecond
}

func (m MonitoringConfig) AlertCooldown() time.Duration {
	return time.Duration(m.AlertCooldownMs) * time.Millisecond
}

// LoadConfig reads the config file at path, applies defaults and
// FX_MONITOR_* environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	def := DefaultMonitoring()
	defaults := map[string]interface{}{
		"log_file":                         "monitor.log",
		"metrics_addr":                     ":9101",
		"monitoring.position_refresh_ms":   def.PositionRefreshMs,
		"monitoring.price_refresh_ms":      def.PriceRefreshMs,
		"monitoring.pnl_refresh_ms":        def.PnLRefreshMs,
		"monitoring.anomaly_refresh_ms":    def.AnomalyRefreshMs,
		"monitoring.price_spike_threshold": def.PriceSpikeThreshold,
		"monitoring.volume_threshold":      def.VolumeThreshold,
		"monitoring.margin_call_threshold": def.MarginCallThreshold,
		"monitoring.drawdown_threshold":    def.DrawdownThreshold,
		"monitoring.max_position_age_ms":   def.MaxPositionAgeMs,
		"monitoring.profit_alert_percent":  def.ProfitAlertPercent,
		"monitoring.loss_alert_percent":    def.LossAlertPercent,
		"monitoring.alerts_enabled":        def.AlertsEnabled,
		"monitoring.alert_cooldown_ms":     def.AlertCooldownMs,
		"monitoring.max_price_history":     def.MaxPriceHistory,
		"monitoring.max_volume_history":    def.MaxVolumeHistory,
		"monitoring.max_state_history":     def.MaxStateHistory,
		"monitoring.max_position_history":  def.MaxPositionHistory,
		"monitoring.max_anomalies":         def.MaxAnomalies,
		"monitoring.max_errors":            def.MaxErrors,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("FX_MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, Validate(&cfg)
}

// Validate rejects configurations the monitor cannot run with.
func Validate(cfg *Config) error {
	if err := ValidateMonitoring(cfg.Monitoring); err != nil {
		return err
	}
	if cfg.BridgeURL != "" {
		parsed, err := url.Parse(cfg.BridgeURL)
		if err != nil || !strings.HasPrefix(parsed.Scheme, "ws") {
			return errors.New("bridge_url must be a ws:// or wss:// URL")
		}
	}
	return nil
}

// ValidateMonitoring checks the monitor tunables, including those
// swapped in at runtime.
func ValidateMonitoring(m MonitoringConfig) error {
	if m.PositionRefreshMs <= 0 {
		return errors.New("invalid position_refresh_ms")
	}
	if m.PriceRefreshMs <= 0 {
		return errors.New("invalid price_refresh_ms")
	}
	if m.PnLRefreshMs <= 0 {
		return errors.New("invalid pnl_refresh_ms")
	}
	if m.AnomalyRefreshMs <= 0 {
		return errors.New("invalid anomaly_refresh_ms")
	}
	if m.PriceSpikeThreshold <= 0 {
		return errors.New("invalid price_spike_threshold")
	}
	if m.VolumeThreshold <= 0 {
		return errors.New("invalid volume_threshold")
	}
	if m.MarginCallThreshold <= 0 {
		return errors.New("invalid margin_call_threshold")
	}
	if m.DrawdownThreshold <= 0 {
		return errors.New("invalid drawdown_threshold")
	}
	if m.MaxPositionAgeMs < 0 {
		return errors.New("invalid max_position_age_ms")
	}
	if m.MaxErrors <= 0 {
		return errors.New("invalid max_errors")
	}
	return nil
}
