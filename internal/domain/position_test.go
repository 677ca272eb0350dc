package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techprocreative/fx-platform-windows-sub008/internal/broker"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/history"
)

func TestAppendPrice_EvictsOldest(t *testing.T) {
	pos := &MonitoredPosition{}
	for i := 0; i < 4; i++ {
		pos.AppendPrice(history.PricePoint{Price: float64(i)}, 3)
	}

	require.Len(t, pos.PriceHistory, 3)
	assert.Equal(t, 1.0, pos.PriceHistory[0].Price)
	assert.Equal(t, 3.0, pos.PriceHistory[2].Price)
}

func TestLastAlert_PicksMostRecentOfKind(t *testing.T) {
	pos := &MonitoredPosition{}
	pos.Alerts = []PositionAlert{
		{ID: "a", Kind: AlertProfitTarget, Timestamp: time.Now().Add(-time.Hour)},
		{ID: "b", Kind: AlertLossLimit},
		{ID: "c", Kind: AlertProfitTarget},
	}

	alert, ok := pos.LastAlert(AlertProfitTarget)
	require.True(t, ok)
	assert.Equal(t, "c", alert.ID)

	_, ok = pos.LastAlert(AlertStopLossHit)
	assert.False(t, ok)
}

func TestClone_IsDeep(t *testing.T) {
	pos := &MonitoredPosition{
		Position: broker.Position{Ticket: 1001, Symbol: "EURUSD"},
		TotalPnL: 10,
	}
	pos.AppendPrice(history.PricePoint{Price: 1.0850}, 10)
	pos.Alerts = []PositionAlert{{ID: "a", Kind: AlertProfitTarget}}

	cp := pos.Clone()
	cp.PriceHistory[0].Price = 9.9
	cp.Alerts[0].ID = "mutated"
	cp.TotalPnL = -1

	assert.Equal(t, 1.0850, pos.PriceHistory[0].Price)
	assert.Equal(t, "a", pos.Alerts[0].ID)
	assert.Equal(t, 10.0, pos.TotalPnL)
}
