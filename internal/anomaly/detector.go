package anomaly

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/domain"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/history"
	"go.uber.org/zap"
)

// Config holds the detector thresholds and capacities.
type Config struct {
	PriceSpikeThreshold float64       // percent deviation from the rolling mean
	VolumeThreshold     float64       // ratio of current volume to the rolling mean
	MarginCallThreshold float64       // margin level percent
	DrawdownThreshold   float64       // percent retracement from peak P&L
	MaxPositionAge      time.Duration // age past which a position is stale
	MaxAnomalies        int           // anomaly log cap
	AllowedMagics       []int64       // empty disables the batch sweep
	History             history.Config
}

// DefaultConfig returns the default detector tuning.
func DefaultConfig() Config {
	return Config{
		PriceSpikeThreshold: 5.0,
		VolumeThreshold:     3.0,
		MarginCallThreshold: 100.0,
		DrawdownThreshold:   25.0,
		MaxPositionAge:      24 * time.Hour,
		MaxAnomalies:        500,
		History:             history.DefaultConfig(),
	}
}

// ActionHandler executes one recommended action. A nil handler makes
// execution a log-only affair.
type ActionHandler func(a Action, anomaly Anomaly) error

// Detector runs the anomaly check battery over rolling history
// windows and accumulates results into a capped log.
type Detector struct {
	mu      sync.RWMutex
	cfg     Config
	store   *history.Store
	log     []Anomaly
	handler ActionHandler
	logger  *zap.Logger
}

// NewDetector creates a detector with its own history store.
func NewDetector(cfg Config, logger *zap.Logger) *Detector {
	if cfg.MaxAnomalies <= 0 {
		cfg.MaxAnomalies = DefaultConfig().MaxAnomalies
	}
	return &Detector{
		cfg:    cfg,
		store:  history.NewStore(cfg.History),
		logger: logger.Named("anomaly"),
	}
}

// SetActionHandler installs the hook invoked by ExecuteActions.
func (d *Detector) SetActionHandler(h ActionHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// UpdateConfig swaps the detector tuning wholesale. History capacities
// are fixed at construction; only thresholds take effect here.
func (d *Detector) UpdateConfig(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg.History = d.cfg.History
	if cfg.MaxAnomalies <= 0 {
		cfg.MaxAnomalies = d.cfg.MaxAnomalies
	}
	d.cfg = cfg
	d.logger.Info("Detector configuration updated",
		zap.Float64("price_spike_threshold", cfg.PriceSpikeThreshold),
		zap.Float64("volume_threshold", cfg.VolumeThreshold),
		zap.Float64("margin_call_threshold", cfg.MarginCallThreshold),
		zap.Float64("drawdown_threshold", cfg.DrawdownThreshold))
}

// AddPricePoint appends a price point to a symbol's rolling history.
func (d *Detector) AddPricePoint(symbol string, p history.PricePoint) {
	d.store.AddPrice(symbol, p)
}

// AddVolumePoint appends a volume sample to a symbol's rolling history.
func (d *Detector) AddVolumePoint(symbol string, volume float64) {
	d.store.AddVolume(symbol, history.VolumeSample{Timestamp: time.Now(), Volume: volume})
}

// AddPositionState stores a compact snapshot of a position for the
// drawdown baseline.
func (d *Detector) AddPositionState(pos *domain.MonitoredPosition) {
	d.store.AddState(pos.Ticket, history.PositionState{
		Timestamp: time.Now(),
		Price:     pos.CurrentPrice,
		TotalPnL:  pos.TotalPnL,
	})
}

// DropPosition discards per-position history for a closed ticket.
func (d *Detector) DropPosition(ticket int64) {
	d.store.DropStates(ticket)
}

// DetectAnomalies runs the full check battery over the given positions
// plus the system-level checks, appends results to the log, and
// returns exactly the anomalies produced by this call.
func (d *Detector) DetectAnomalies(positions []*domain.MonitoredPosition) []Anomaly {
	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

	var found []Anomaly
	for _, pos := range positions {
		for _, check := range []func(Config, *domain.MonitoredPosition) *Anomaly{
			d.checkPriceSpike,
			d.checkUnusualVolume,
			d.checkMarginCall,
			d.checkStopLossHit,
			d.checkTakeProfitHit,
			d.checkPositionTimeout,
			d.checkRapidDrawdown,
			d.checkUnauthorizedTrade,
		} {
			if a := check(cfg, pos); a != nil {
				found = append(found, *a)
			}
		}
	}

	found = append(found, d.checkConnectionLoss(cfg)...)
	found = append(found, d.sweepUnauthorized(cfg, positions)...)

	if len(found) == 0 {
		return nil
	}

	d.mu.Lock()
	for i := range found {
		if len(d.log) >= d.cfg.MaxAnomalies {
			d.log = d.log[1:]
		}
		d.log = append(d.log, found[i])
	}
	d.mu.Unlock()

	for _, a := range found {
		d.logger.Warn("Anomaly detected",
			zap.String("id", a.ID),
			zap.String("type", string(a.Type)),
			zap.String("severity", string(a.Severity)),
			zap.Int64("ticket", a.Ticket),
			zap.String("symbol", a.Symbol),
			zap.Float64("value", a.Value),
			zap.Float64("threshold", a.Threshold))
	}

	return found
}

// Anomalies returns a copy of the full anomaly log, oldest first.
func (d *Detector) Anomalies() []Anomaly {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Anomaly, len(d.log))
	copy(out, d.log)
	return out
}

// UnresolvedAnomalies returns the log entries with Resolved == false.
func (d *Detector) UnresolvedAnomalies() []Anomaly {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Anomaly
	for _, a := range d.log {
		if !a.Resolved {
			out = append(out, a)
		}
	}
	return out
}

// ResolveAnomaly marks an anomaly resolved. Resolving an already
// resolved anomaly is a no-op that still reports success.
func (d *Detector) ResolveAnomaly(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.log {
		if d.log[i].ID != id {
			continue
		}
		if !d.log[i].Resolved {
			d.log[i].Resolved = true
			d.log[i].ResolvedAt = time.Now()
		}
		return true
	}
	return false
}

// ExecuteActions walks an anomaly's recommended actions, marking each
// executed with a timestamp and a textual result. A failing action is
// recorded and never aborts the walk.
func (d *Detector) ExecuteActions(id string) bool {
	d.mu.Lock()
	var target *Anomaly
	for i := range d.log {
		if d.log[i].ID == id {
			target = &d.log[i]
			break
		}
	}
	if target == nil {
		d.mu.Unlock()
		return false
	}
	snapshot := *target
	handler := d.handler
	d.mu.Unlock()

	results := make([]Action, len(snapshot.Actions))
	copy(results, snapshot.Actions)
	for i := range results {
		if results[i].Executed {
			continue
		}
		results[i].Executed = true
		results[i].ExecutedAt = time.Now()
		if handler == nil {
			results[i].Result = "logged (no action handler installed)"
			continue
		}
		if err := handler(results[i], snapshot); err != nil {
			results[i].Result = fmt.Sprintf("failed: %v", err)
			d.logger.Error("Action execution failed",
				zap.String("anomaly_id", id),
				zap.String("action", string(results[i].Type)),
				zap.Error(err))
			continue
		}
		results[i].Result = "executed"
	}

	d.mu.Lock()
	for i := range d.log {
		if d.log[i].ID == id {
			d.log[i].Actions = results
			break
		}
	}
	d.mu.Unlock()
	return true
}

// Stats returns log totals grouped by type and severity.
func (d *Detector) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	stats := Stats{
		Total:      len(d.log),
		ByType:     make(map[Type]int),
		BySeverity: make(map[Severity]int),
	}
	for _, a := range d.log {
		stats.ByType[a.Type]++
		stats.BySeverity[a.Severity]++
		if !a.Resolved {
			stats.Unresolved++
		}
	}
	return stats
}

// newAnomaly builds a record with defaults filled in.
func newAnomaly(t Type, sev Severity, pos *domain.MonitoredPosition, desc string, value, threshold, confidence float64) *Anomaly {
	a := &Anomaly{
		ID:          uuid.New().String(),
		Type:        t,
		Severity:    sev,
		Description: desc,
		Timestamp:   time.Now(),
		Value:       value,
		Threshold:   threshold,
		Confidence:  confidence,
		Actions:     defaultActions(t),
	}
	if pos != nil {
		a.Ticket = pos.Ticket
		a.Symbol = pos.Symbol
	}
	return a
}
