package anomaly

import (
	"fmt"
	"math"
	"time"

	"github.com/techprocreative/fx-platform-windows-sub008/internal/broker"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/domain"
)

const (
	priceSpikeWindow = 10
	volumeWindow     = 20
	drawdownMinStates = 5
)

// checkPriceSpike compares the current price against the mean of the
// last 10 recorded points for the symbol.
func (d *Detector) checkPriceSpike(cfg Config, pos *domain.MonitoredPosition) *Anomaly {
	if d.store.PriceCount(pos.Symbol) < priceSpikeWindow {
		return nil
	}
	points := d.store.LastPrices(pos.Symbol, priceSpikeWindow)
	var sum float64
	for _, p := range points {
		sum += p.Price
	}
	mean := sum / float64(len(points))
	if mean == 0 {
		return nil
	}

	deviation := math.Abs(pos.CurrentPrice-mean) / mean * 100
	if deviation <= cfg.PriceSpikeThreshold {
		return nil
	}

	sev := SeverityMedium
	if deviation > 2*cfg.PriceSpikeThreshold {
		sev = SeverityHigh
	}
	return newAnomaly(TypePriceSpike, sev, pos,
		fmt.Sprintf("price of %s deviates %.2f%% from its rolling mean", pos.Symbol, deviation),
		deviation, cfg.PriceSpikeThreshold, math.Min(95, 50+deviation))
}

// checkUnusualVolume compares the position's volume against the mean
// of the last 20 recorded samples for the symbol.
func (d *Detector) checkUnusualVolume(cfg Config, pos *domain.MonitoredPosition) *Anomaly {
	samples := d.store.LastVolumes(pos.Symbol, volumeWindow)
	if len(samples) < volumeWindow {
		return nil
	}
	var sum float64
	for _, s := range samples {
		sum += s.Volume
	}
	mean := sum / float64(len(samples))
	if mean <= 0 {
		return nil
	}

	ratio := pos.Volume / mean
	if ratio <= cfg.VolumeThreshold {
		return nil
	}

	sev := SeverityMedium
	if ratio > 2*cfg.VolumeThreshold {
		sev = SeverityHigh
	}
	return newAnomaly(TypeUnusualVolume, sev, pos,
		fmt.Sprintf("volume %.2f lots is %.1fx the rolling mean for %s", pos.Volume, ratio, pos.Symbol),
		ratio, cfg.VolumeThreshold, math.Min(95, 50+ratio*10))
}

// checkMarginCall computes margin level = (used + total P&L) / used as
// a percentage; 100 when no margin is used.
func (d *Detector) checkMarginCall(cfg Config, pos *domain.MonitoredPosition) *Anomaly {
	level := 100.0
	if pos.MarginUsed > 0 {
		level = (pos.MarginUsed + pos.TotalPnL) / pos.MarginUsed * 100
	}
	if level >= cfg.MarginCallThreshold {
		return nil
	}

	sev := SeverityHigh
	if level < cfg.MarginCallThreshold/2 {
		sev = SeverityCritical
	}
	return newAnomaly(TypeMarginCall, sev, pos,
		fmt.Sprintf("margin level %.1f%% on ticket %d is below the %.1f%% call threshold", level, pos.Ticket, cfg.MarginCallThreshold),
		level, cfg.MarginCallThreshold, 95)
}

// checkStopLossHit fires when the current price has crossed the stored
// stop-loss; direction depends on position type.
func (d *Detector) checkStopLossHit(_ Config, pos *domain.MonitoredPosition) *Anomaly {
	if pos.StopLoss <= 0 {
		return nil
	}
	hit := pos.Type == broker.Buy && pos.CurrentPrice <= pos.StopLoss ||
		pos.Type == broker.Sell && pos.CurrentPrice >= pos.StopLoss
	if !hit {
		return nil
	}
	return newAnomaly(TypeStopLossHit, SeverityHigh, pos,
		fmt.Sprintf("stop-loss %.5f crossed at %.5f on ticket %d", pos.StopLoss, pos.CurrentPrice, pos.Ticket),
		pos.CurrentPrice, pos.StopLoss, 100)
}

// checkTakeProfitHit fires when the current price has crossed the
// stored take-profit; direction depends on position type.
func (d *Detector) checkTakeProfitHit(_ Config, pos *domain.MonitoredPosition) *Anomaly {
	if pos.TakeProfit <= 0 {
		return nil
	}
	hit := pos.Type == broker.Buy && pos.CurrentPrice >= pos.TakeProfit ||
		pos.Type == broker.Sell && pos.CurrentPrice <= pos.TakeProfit
	if !hit {
		return nil
	}
	return newAnomaly(TypeTakeProfitHit, SeverityMedium, pos,
		fmt.Sprintf("take-profit %.5f crossed at %.5f on ticket %d", pos.TakeProfit, pos.CurrentPrice, pos.Ticket),
		pos.CurrentPrice, pos.TakeProfit, 100)
}

// checkPositionTimeout flags positions older than the configured max age.
func (d *Detector) checkPositionTimeout(cfg Config, pos *domain.MonitoredPosition) *Anomaly {
	if cfg.MaxPositionAge <= 0 || pos.OpenTime.IsZero() {
		return nil
	}
	age := time.Since(pos.OpenTime)
	if age <= cfg.MaxPositionAge {
		return nil
	}
	return newAnomaly(TypePositionTimeout, SeverityMedium, pos,
		fmt.Sprintf("ticket %d open for %s, past the %s limit", pos.Ticket, age.Round(time.Minute), cfg.MaxPositionAge),
		age.Hours(), cfg.MaxPositionAge.Hours(), 75)
}

// checkRapidDrawdown measures retracement from the peak total P&L seen
// in the stored snapshots; needs at least 5 of them.
func (d *Detector) checkRapidDrawdown(cfg Config, pos *domain.MonitoredPosition) *Anomaly {
	states := d.store.States(pos.Ticket)
	if len(states) < drawdownMinStates {
		return nil
	}
	peak := states[0].TotalPnL
	for _, st := range states[1:] {
		if st.TotalPnL > peak {
			peak = st.TotalPnL
		}
	}
	if peak <= 0 {
		return nil
	}

	drawdown := (peak - pos.TotalPnL) / peak * 100
	if drawdown <= cfg.DrawdownThreshold {
		return nil
	}

	sev := SeverityMedium
	if drawdown > 2*cfg.DrawdownThreshold {
		sev = SeverityHigh
	}
	return newAnomaly(TypeRapidDrawdown, sev, pos,
		fmt.Sprintf("ticket %d gave back %.1f%% of its peak P&L", pos.Ticket, drawdown),
		drawdown, cfg.DrawdownThreshold, math.Min(90, 60+drawdown))
}

// checkUnauthorizedTrade flags positions carrying neither an
// originating magic number nor a comment tag.
func (d *Detector) checkUnauthorizedTrade(_ Config, pos *domain.MonitoredPosition) *Anomaly {
	if pos.MagicNumber != 0 || pos.Comment != "" {
		return nil
	}
	return newAnomaly(TypeUnauthorizedTrade, SeverityHigh, pos,
		fmt.Sprintf("ticket %d has no originating identifier or comment", pos.Ticket),
		0, 0, 70)
}

// checkConnectionLoss is the hook point for connector health. The
// contract has no health source yet, so this is a pass-through.
func (d *Detector) checkConnectionLoss(_ Config) []Anomaly {
	return nil
}

// sweepUnauthorized cross-checks the whole batch against the allowed
// magic-number list. An empty list disables the sweep.
func (d *Detector) sweepUnauthorized(cfg Config, positions []*domain.MonitoredPosition) []Anomaly {
	if len(cfg.AllowedMagics) == 0 {
		return nil
	}
	allowed := make(map[int64]struct{}, len(cfg.AllowedMagics))
	for _, m := range cfg.AllowedMagics {
		allowed[m] = struct{}{}
	}

	var out []Anomaly
	for _, pos := range positions {
		if _, ok := allowed[pos.MagicNumber]; ok {
			continue
		}
		a := newAnomaly(TypeUnauthorizedTrade, SeverityHigh, pos,
			fmt.Sprintf("ticket %d carries magic %d which is not on the allowed list", pos.Ticket, pos.MagicNumber),
			float64(pos.MagicNumber), 0, 85)
		out = append(out, *a)
	}
	return out
}
