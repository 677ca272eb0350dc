package domain

import (
	"time"

	"github.com/techprocreative/fx-platform-windows-sub008/internal/broker"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/history"
)

// MonitoredPosition is a broker position plus monitoring annotations.
// Exactly one exists per open ticket; the refresh loop replaces the
// record each cycle while P&L, history and alerts are updated in place
// between full refreshes.
type MonitoredPosition struct {
	broker.Position

	UnrealizedPnL float64                `json:"unrealized_pnl"`
	TotalPnL      float64                `json:"total_pnl"`
	MarginUsed    float64                `json:"margin_used"`
	LastUpdate    time.Time              `json:"last_update"`
	PriceHistory  []history.PricePoint   `json:"price_history,omitempty"`
	Alerts        []PositionAlert        `json:"alerts,omitempty"`
}

// AlertKind classifies a per-position alert.
type AlertKind string

const (
	AlertProfitTarget  AlertKind = "profit_target"
	AlertLossLimit     AlertKind = "loss_limit"
	AlertStopLossHit   AlertKind = "stop_loss_hit"
	AlertTakeProfitHit AlertKind = "take_profit_hit"
)

// PositionAlert is a threshold breach raised against one position.
type PositionAlert struct {
	ID        string    `json:"id"`
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AppendPrice adds a price point to the position's own rolling series,
// evicting the oldest entry past max.
func (p *MonitoredPosition) AppendPrice(point history.PricePoint, max int) {
	if max > 0 && len(p.PriceHistory) >= max {
		p.PriceHistory = p.PriceHistory[1:]
	}
	p.PriceHistory = append(p.PriceHistory, point)
}

// LastAlert returns the most recent alert of the given kind, if any.
func (p *MonitoredPosition) LastAlert(kind AlertKind) (PositionAlert, bool) {
	for i := len(p.Alerts) - 1; i >= 0; i-- {
		if p.Alerts[i].Kind == kind {
			return p.Alerts[i], true
		}
	}
	return PositionAlert{}, false
}

// Clone returns a deep copy safe to hand to subscribers.
func (p *MonitoredPosition) Clone() *MonitoredPosition {
	cp := *p
	cp.PriceHistory = make([]history.PricePoint, len(p.PriceHistory))
	copy(cp.PriceHistory, p.PriceHistory)
	cp.Alerts = make([]PositionAlert, len(p.Alerts))
	copy(cp.Alerts, p.Alerts)
	return &cp
}
