package events

import (
	"time"

	"github.com/techprocreative/fx-platform-windows-sub008/internal/domain"
)

// EventType identifies a position lifecycle transition.
type EventType string

const (
	PositionOpened   EventType = "open"
	PositionModified EventType = "modify"
	PositionClosed   EventType = "close"
	StopLossHit      EventType = "sl_hit"
	TakeProfitHit    EventType = "tp_hit"
)

// ModifyData carries old/new stop levels for modify events.
type ModifyData struct {
	OldStopLoss   float64 `json:"old_stop_loss"`
	NewStopLoss   float64 `json:"new_stop_loss"`
	OldTakeProfit float64 `json:"old_take_profit"`
	NewTakeProfit float64 `json:"new_take_profit"`
}

// PositionEvent is delivered to lifecycle listeners when a position's
// observable state changes.
type PositionEvent struct {
	Type      EventType                 `json:"type"`
	Position  *domain.MonitoredPosition `json:"position"`
	Timestamp time.Time                 `json:"timestamp"`
	Data      *ModifyData               `json:"data,omitempty"`
}
