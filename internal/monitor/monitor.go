package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/techprocreative/fx-platform-windows-sub008/internal/anomaly"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/broker"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/config"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/domain"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/pnl"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoConnector is returned when monitoring is started before a
// broker connector has been supplied.
var ErrNoConnector = errors.New("monitor: broker connector not set")

// Status is a point-in-time summary of the monitor.
type Status struct {
	Active              bool      `json:"active"`
	PositionsMonitored  int       `json:"positions_monitored"`
	AnomaliesDetected   int64     `json:"anomalies_detected"`
	ActiveSubscriptions int       `json:"active_subscriptions"`
	ErrorCount          int       `json:"error_count"`
	LastUpdate          time.Time `json:"last_update"`
}

// Monitor owns the authoritative map of open monitored positions, the
// subscription and listener registries, and the four refresh loops.
// All shared state lives behind its mutex; the loops are pure
// schedulers that call into it.
type Monitor struct {
	mu        sync.RWMutex
	cfg       config.MonitoringConfig
	connector broker.Connector
	calc      *pnl.Calculator
	detector  *anomaly.Detector
	logger    *zap.Logger

	positions map[int64]*domain.MonitoredPosition
	subs      map[string]*PositionSubscription
	listeners map[string]EventCallback
	errors    []ErrorRecord

	anomaliesDetected int64
	lastUpdate        time.Time

	active bool
	cancel context.CancelFunc
	group  *errgroup.Group
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Monitoring config.MonitoringConfig
	Calculator *pnl.Calculator
	Detector   *anomaly.Detector
	Logger     *zap.Logger
}

// NewMonitor creates a stopped monitor. A connector must be supplied
// via SetConnector before monitoring can start.
func NewMonitor(cfg *MonitorConfig) *Monitor {
	return &Monitor{
		cfg:       cfg.Monitoring,
		calc:      cfg.Calculator,
		detector:  cfg.Detector,
		logger:    cfg.Logger.Named("monitor"),
		positions: make(map[int64]*domain.MonitoredPosition),
		subs:      make(map[string]*PositionSubscription),
		listeners: make(map[string]EventCallback),
	}
}

// SetConnector supplies the external position/price source.
func (m *Monitor) SetConnector(c broker.Connector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connector = c
}

// Start launches the refresh loops. Starting an active monitor is a
// no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return nil
	}
	if m.connector == nil {
		m.mu.Unlock()
		return ErrNoConnector
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, loopCtx := errgroup.WithContext(runCtx)
	m.cancel = cancel
	m.group = group
	m.active = true
	m.mu.Unlock()

	group.Go(func() error {
		return m.runLoop(loopCtx, "positions", m.positionInterval, m.refreshPositions)
	})
	group.Go(func() error {
		return m.runLoop(loopCtx, "prices", m.priceInterval, m.refreshPrices)
	})
	group.Go(func() error {
		return m.runLoop(loopCtx, "pnl", m.pnlInterval, m.refreshPnL)
	})
	group.Go(func() error {
		return m.runLoop(loopCtx, "anomalies", m.anomalyInterval, m.refreshAnomalies)
	})

	m.logger.Info("📊 Position monitor started",
		zap.Duration("position_interval", m.positionInterval()),
		zap.Duration("price_interval", m.priceInterval()),
		zap.Duration("pnl_interval", m.pnlInterval()),
		zap.Duration("anomaly_interval", m.anomalyInterval()))
	return nil
}

// Stop cancels the refresh timers. An in-flight refresh is allowed to
// finish and its results are applied; the in-memory snapshot survives.
// Stopping an inactive monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	cancel := m.cancel
	group := m.group
	m.cancel = nil
	m.group = nil
	m.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		m.logger.Warn("Timeout waiting for refresh loops to finish")
	}

	m.logger.Info("🛑 Position monitor stopped")
}

// UpdateConfig replaces the monitor tuning wholesale. The new config
// takes effect on the next cycle of each loop, never mid-cycle.
func (m *Monitor) UpdateConfig(cfg config.MonitoringConfig) error {
	if err := config.ValidateMonitoring(cfg); err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	m.detector.UpdateConfig(anomaly.Config{
		PriceSpikeThreshold: cfg.PriceSpikeThreshold,
		VolumeThreshold:     cfg.VolumeThreshold,
		MarginCallThreshold: cfg.MarginCallThreshold,
		DrawdownThreshold:   cfg.DrawdownThreshold,
		MaxPositionAge:      cfg.MaxPositionAge(),
		MaxAnomalies:        cfg.MaxAnomalies,
		AllowedMagics:       cfg.AllowedMagics,
	})

	m.logger.Info("Monitoring configuration replaced")
	return nil
}

// MonitoredPositions returns copies of all currently monitored
// positions, ordered by ticket.
func (m *Monitor) MonitoredPositions() []*domain.MonitoredPosition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.MonitoredPosition, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, pos.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}

// Position returns a copy of one monitored position by ticket.
func (m *Monitor) Position(ticket int64) (*domain.MonitoredPosition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[ticket]
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// DetectAnomalies runs the detector over the given positions, or over
// the current position list when nil, and updates the running counter.
func (m *Monitor) DetectAnomalies(positions []*domain.MonitoredPosition) []anomaly.Anomaly {
	if positions == nil {
		positions = m.MonitoredPositions()
	}
	found := m.detector.DetectAnomalies(positions)

	m.mu.Lock()
	m.anomaliesDetected += int64(len(found))
	m.mu.Unlock()

	for _, a := range found {
		anomaliesTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}
	return found
}

// Detector exposes the anomaly detector for read/resolve access.
func (m *Monitor) Detector() *anomaly.Detector {
	return m.detector
}

// Status returns a point-in-time summary.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	active := 0
	for _, sub := range m.subs {
		if sub.Active {
			active++
		}
	}
	return Status{
		Active:              m.active,
		PositionsMonitored:  len(m.positions),
		AnomaliesDetected:   m.anomaliesDetected,
		ActiveSubscriptions: active,
		ErrorCount:          len(m.errors),
		LastUpdate:          m.lastUpdate,
	}
}

func (m *Monitor) connectorSnapshot() broker.Connector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connector
}

func (m *Monitor) configSnapshot() config.MonitoringConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Monitor) positionInterval() time.Duration { return m.configSnapshot().PositionInterval() }
func (m *Monitor) priceInterval() time.Duration    { return m.configSnapshot().PriceInterval() }
func (m *Monitor) pnlInterval() time.Duration      { return m.configSnapshot().PnLInterval() }
func (m *Monitor) anomalyInterval() time.Duration  { return m.configSnapshot().AnomalyInterval() }
