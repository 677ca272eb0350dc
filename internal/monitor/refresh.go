package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/broker"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/config"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/domain"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/events"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/history"
	"go.uber.org/zap"
)

// runLoop drives one refresh function on a fixed interval. A refresh
// runs inline on the loop goroutine, so a slow cycle naturally drops
// intervening ticks instead of overlapping. Interval changes from a
// config swap are picked up after the current cycle.
func (m *Monitor) runLoop(ctx context.Context, name string, interval func() time.Duration, refresh func(context.Context)) error {
	current := interval()
	ticker := time.NewTicker(current)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Refresh loop stopped", zap.String("loop", name))
			return nil
		case <-ticker.C:
			start := time.Now()
			refresh(ctx)
			refreshDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			if next := interval(); next != current {
				ticker.Reset(next)
				current = next
			}
		}
	}
}

// refreshPositions fetches the full open-position snapshot, diffs it
// against the prior map to synthesize lifecycle events, enriches each
// position, replaces the authoritative map atomically, and fans out.
func (m *Monitor) refreshPositions(ctx context.Context) {
	cfg := m.configSnapshot()
	connector := m.connectorSnapshot()

	list, err := connector.GetOpenPositions(ctx)
	if err != nil {
		m.recordError("connector", err)
		refreshCycles.WithLabelValues("positions", "error").Inc()
		return
	}

	m.primeSymbolInfo(ctx, list)

	now := time.Now()
	var pending []events.PositionEvent

	m.mu.Lock()
	old := m.positions
	next := make(map[int64]*domain.MonitoredPosition, len(list))

	for _, bp := range list {
		mp := &domain.MonitoredPosition{Position: bp}
		mp.UnrealizedPnL = m.calc.UnrealizedPnL(bp, bp.CurrentPrice)
		mp.TotalPnL = m.calc.TotalPnL(bp, bp.CurrentPrice)
		mp.MarginUsed = m.calc.MarginUsed(bp)
		mp.LastUpdate = now

		prev, known := old[bp.Ticket]
		if known {
			mp.PriceHistory = prev.PriceHistory
			mp.Alerts = prev.Alerts
			if prev.StopLoss != bp.StopLoss || prev.TakeProfit != bp.TakeProfit {
				pending = append(pending, events.PositionEvent{
					Type:      events.PositionModified,
					Position:  mp.Clone(),
					Timestamp: now,
					Data: &events.ModifyData{
						OldStopLoss:   prev.StopLoss,
						NewStopLoss:   bp.StopLoss,
						OldTakeProfit: prev.TakeProfit,
						NewTakeProfit: bp.TakeProfit,
					},
				})
			}
		} else {
			pending = append(pending, events.PositionEvent{
				Type:      events.PositionOpened,
				Position:  mp.Clone(),
				Timestamp: now,
			})
		}

		point := history.PricePoint{Timestamp: now, Price: bp.CurrentPrice, Side: sideFor(bp.Type)}
		mp.AppendPrice(point, cfg.MaxPositionHistory)
		m.detector.AddPricePoint(bp.Symbol, point)
		m.detector.AddVolumePoint(bp.Symbol, bp.Volume)
		m.detector.AddPositionState(mp)

		pending = append(pending, m.checkStopLevels(cfg, mp, now)...)

		next[bp.Ticket] = mp
	}

	for ticket, prev := range old {
		if _, still := next[ticket]; still {
			continue
		}
		pending = append(pending, events.PositionEvent{
			Type:      events.PositionClosed,
			Position:  prev.Clone(),
			Timestamp: now,
		})
		m.detector.DropPosition(ticket)
	}

	m.positions = next
	m.lastUpdate = now
	m.mu.Unlock()

	positionsMonitored.Set(float64(len(next)))
	refreshCycles.WithLabelValues("positions", "ok").Inc()

	// Lifecycle events go out before the bulk fan-out for this cycle.
	for _, evt := range pending {
		m.emitEvent(evt)
	}
	m.fanOut()
}

// refreshPrices pulls a fresh quote per held symbol and feeds both
// sides into the detector's symbol history, independent of the full
// position refresh cadence.
func (m *Monitor) refreshPrices(ctx context.Context) {
	symbols := m.heldSymbols()
	connector := m.connectorSnapshot()
	ok := true
	for _, symbol := range symbols {
		quote, err := connector.GetCurrentPrice(ctx, symbol)
		if err != nil {
			m.recordError("connector", err)
			ok = false
			continue
		}
		now := quote.Time
		if now.IsZero() {
			now = time.Now()
		}
		m.detector.AddPricePoint(symbol, history.PricePoint{Timestamp: now, Price: quote.Bid, Side: history.SideBid})
		m.detector.AddPricePoint(symbol, history.PricePoint{Timestamp: now, Price: quote.Ask, Side: history.SideAsk})
	}
	if ok {
		refreshCycles.WithLabelValues("prices", "ok").Inc()
	} else {
		refreshCycles.WithLabelValues("prices", "error").Inc()
	}
}

// refreshPnL recomputes P&L for every held position from its last
// known price. No network I/O happens here.
func (m *Monitor) refreshPnL(_ context.Context) {
	cfg := m.configSnapshot()
	now := time.Now()

	m.mu.Lock()
	for _, mp := range m.positions {
		mp.UnrealizedPnL = m.calc.UnrealizedPnL(mp.Position, mp.CurrentPrice)
		mp.TotalPnL = m.calc.TotalPnL(mp.Position, mp.CurrentPrice)
		mp.LastUpdate = now

		if !cfg.AlertsEnabled || mp.MarginUsed <= 0 {
			continue
		}
		pct := mp.TotalPnL / mp.MarginUsed * 100
		if pct > cfg.ProfitAlertPercent {
			m.appendAlert(cfg, mp, domain.AlertProfitTarget, pct, cfg.ProfitAlertPercent, now)
		}
		if pct < cfg.LossAlertPercent {
			m.appendAlert(cfg, mp, domain.AlertLossLimit, pct, cfg.LossAlertPercent, now)
		}
	}
	m.mu.Unlock()

	refreshCycles.WithLabelValues("pnl", "ok").Inc()
}

// refreshAnomalies runs the detector across the current position list
// and triggers best-effort action execution for everything it finds.
func (m *Monitor) refreshAnomalies(_ context.Context) {
	found := m.DetectAnomalies(m.MonitoredPositions())
	for _, a := range found {
		m.detector.ExecuteActions(a.ID)
	}
	refreshCycles.WithLabelValues("anomalies", "ok").Inc()
}

// checkStopLevels emits sl_hit/tp_hit events and raises position
// alerts when the current price has crossed a stored stop level.
// Called with the monitor lock held; comparison direction depends on
// the position type.
func (m *Monitor) checkStopLevels(cfg config.MonitoringConfig, mp *domain.MonitoredPosition, now time.Time) []events.PositionEvent {
	var out []events.PositionEvent

	slHit := mp.StopLoss > 0 &&
		(mp.Type == broker.Buy && mp.CurrentPrice <= mp.StopLoss ||
			mp.Type == broker.Sell && mp.CurrentPrice >= mp.StopLoss)
	if slHit {
		m.appendAlert(cfg, mp, domain.AlertStopLossHit, mp.CurrentPrice, mp.StopLoss, now)
		out = append(out, events.PositionEvent{Type: events.StopLossHit, Position: mp.Clone(), Timestamp: now})
	}

	tpHit := mp.TakeProfit > 0 &&
		(mp.Type == broker.Buy && mp.CurrentPrice >= mp.TakeProfit ||
			mp.Type == broker.Sell && mp.CurrentPrice <= mp.TakeProfit)
	if tpHit {
		m.appendAlert(cfg, mp, domain.AlertTakeProfitHit, mp.CurrentPrice, mp.TakeProfit, now)
		out = append(out, events.PositionEvent{Type: events.TakeProfitHit, Position: mp.Clone(), Timestamp: now})
	}

	return out
}

// appendAlert raises a position alert unless one of the same kind was
// raised within the cooldown window.
func (m *Monitor) appendAlert(cfg config.MonitoringConfig, mp *domain.MonitoredPosition, kind domain.AlertKind, value, threshold float64, now time.Time) {
	if last, ok := mp.LastAlert(kind); ok && now.Sub(last.Timestamp) < cfg.AlertCooldown() {
		return
	}
	alert := domain.PositionAlert{
		ID:        uuid.New().String(),
		Kind:      kind,
		Message:   alertMessage(kind, mp),
		Value:     value,
		Threshold: threshold,
		Timestamp: now,
	}
	mp.Alerts = append(mp.Alerts, alert)
	m.logger.Info("Position alert raised",
		zap.Int64("ticket", mp.Ticket),
		zap.String("symbol", mp.Symbol),
		zap.String("kind", string(kind)),
		zap.Float64("value", value),
		zap.Float64("threshold", threshold))
}

func alertMessage(kind domain.AlertKind, mp *domain.MonitoredPosition) string {
	switch kind {
	case domain.AlertProfitTarget:
		return "profit target reached on " + mp.Symbol
	case domain.AlertLossLimit:
		return "loss limit breached on " + mp.Symbol
	case domain.AlertStopLossHit:
		return "stop-loss level crossed on " + mp.Symbol
	case domain.AlertTakeProfitHit:
		return "take-profit level crossed on " + mp.Symbol
	}
	return string(kind)
}

// primeSymbolInfo fetches contract parameters for symbols the P&L
// calculator has not seen yet. A failed lookup falls back to defaults
// and is retried on a later cycle.
func (m *Monitor) primeSymbolInfo(ctx context.Context, list []broker.Position) {
	connector := m.connectorSnapshot()
	seen := make(map[string]struct{})
	for _, bp := range list {
		if _, done := seen[bp.Symbol]; done {
			continue
		}
		seen[bp.Symbol] = struct{}{}
		if _, cached := m.calc.SymbolInfo(bp.Symbol); cached {
			continue
		}
		info, err := connector.GetSymbolInfo(ctx, bp.Symbol)
		if err != nil {
			m.recordError("connector", err)
			continue
		}
		m.calc.UpdateSymbolInfo(info)
	}
}

func (m *Monitor) heldSymbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{}, len(m.positions))
	out := make([]string, 0, len(m.positions))
	for _, mp := range m.positions {
		if _, done := seen[mp.Symbol]; done {
			continue
		}
		seen[mp.Symbol] = struct{}{}
		out = append(out, mp.Symbol)
	}
	return out
}

func sideFor(t broker.PositionType) history.QuoteSide {
	if t == broker.Sell {
		return history.SideAsk
	}
	return history.SideBid
}
