package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/techprocreative/fx-platform-windows-sub008/internal/anomaly"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/broker"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/config"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/domain"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/events"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/pnl"
)

func newTestMonitor(t *testing.T, cfg config.MonitoringConfig) (*Monitor, *broker.SimConnector) {
	t.Helper()
	log := zaptest.NewLogger(t)
	m := NewMonitor(&MonitorConfig{
		Monitoring: cfg,
		Calculator: pnl.NewCalculator(log),
		Detector:   anomaly.NewDetector(anomaly.DefaultConfig(), log),
		Logger:     log,
	})
	sim := broker.NewSimConnector(log)
	sim.SetQuote(broker.Quote{Symbol: "EURUSD", Bid: 1.0850, Ask: 1.0852})
	m.SetConnector(sim)
	return m, sim
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.PositionEvent
}

func (r *eventRecorder) record(evt events.PositionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) ofType(t events.EventType) []events.PositionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.PositionEvent
	for _, evt := range r.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

func testPosition(ticket int64) broker.Position {
	return broker.Position{
		Ticket:      ticket,
		Symbol:      "EURUSD",
		Type:        broker.Buy,
		Volume:      0.10,
		OpenPrice:   1.0840,
		MagicNumber: 42,
		Comment:     "strategy-a",
		OpenTime:    time.Now().Add(-time.Hour),
	}
}

func TestRefreshPositions_OpenAndCloseEvents(t *testing.T) {
	m, sim := newTestMonitor(t, config.DefaultMonitoring())
	rec := &eventRecorder{}
	m.OnPositionEvent("test", rec.record)

	sim.SetPositions([]broker.Position{testPosition(1001)})
	m.refreshPositions(context.Background())

	require.Len(t, rec.ofType(events.PositionOpened), 1)
	got, ok := m.Position(1001)
	require.True(t, ok)
	assert.Equal(t, 1.0850, got.CurrentPrice)
	assert.NotZero(t, got.TotalPnL)
	assert.NotZero(t, got.MarginUsed)

	// Vanished ticket produces exactly one close event.
	sim.SetPositions(nil)
	m.refreshPositions(context.Background())
	m.refreshPositions(context.Background())

	closed := rec.ofType(events.PositionClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, int64(1001), closed[0].Position.Ticket)
	_, ok = m.Position(1001)
	assert.False(t, ok)
}

func TestRefreshPositions_ModifyEvent(t *testing.T) {
	m, sim := newTestMonitor(t, config.DefaultMonitoring())
	rec := &eventRecorder{}
	m.OnPositionEvent("test", rec.record)

	pos := testPosition(1001)
	pos.StopLoss = 1.0800
	sim.SetPositions([]broker.Position{pos})
	m.refreshPositions(context.Background())

	pos.StopLoss = 1.0820
	pos.TakeProfit = 1.0950
	sim.SetPositions([]broker.Position{pos})
	m.refreshPositions(context.Background())

	modified := rec.ofType(events.PositionModified)
	require.Len(t, modified, 1)
	require.NotNil(t, modified[0].Data)
	assert.Equal(t, 1.0800, modified[0].Data.OldStopLoss)
	assert.Equal(t, 1.0820, modified[0].Data.NewStopLoss)
	assert.Equal(t, 0.0, modified[0].Data.OldTakeProfit)
	assert.Equal(t, 1.0950, modified[0].Data.NewTakeProfit)

	// Unchanged levels stay quiet.
	m.refreshPositions(context.Background())
	assert.Len(t, rec.ofType(events.PositionModified), 1)
}

func TestRefreshPositions_FailureKeepsSnapshot(t *testing.T) {
	m, sim := newTestMonitor(t, config.DefaultMonitoring())

	sim.SetPositions([]broker.Position{testPosition(1001)})
	m.refreshPositions(context.Background())
	require.Len(t, m.MonitoredPositions(), 1)

	sim.FailNext(errors.New("terminal offline"))
	m.refreshPositions(context.Background())

	// The stale snapshot survives and the failure is on record.
	assert.Len(t, m.MonitoredPositions(), 1)
	errs := m.Errors()
	require.NotEmpty(t, errs)
	assert.Equal(t, "connector", errs[0].Kind)
	assert.Contains(t, errs[0].Message, "terminal offline")
	assert.Equal(t, len(errs), m.Status().ErrorCount)
}

func TestRefreshPositions_StopLossEventAndAlert(t *testing.T) {
	m, sim := newTestMonitor(t, config.DefaultMonitoring())
	rec := &eventRecorder{}
	m.OnPositionEvent("test", rec.record)

	// Buy marks at bid 1.0850; a stop above that is already crossed.
	pos := testPosition(1001)
	pos.StopLoss = 1.0860
	sim.SetPositions([]broker.Position{pos})
	m.refreshPositions(context.Background())

	require.Len(t, rec.ofType(events.StopLossHit), 1)
	got, ok := m.Position(1001)
	require.True(t, ok)
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, domain.AlertStopLossHit, got.Alerts[0].Kind)

	// The cooldown suppresses a duplicate alert on the next cycle.
	m.refreshPositions(context.Background())
	got, _ = m.Position(1001)
	assert.Len(t, got.Alerts, 1)
}

func TestRefreshPnL_ProfitAlertWithCooldown(t *testing.T) {
	cfg := config.DefaultMonitoring()
	cfg.ProfitAlertPercent = 5.0
	m, sim := newTestMonitor(t, cfg)

	// 10 pips on 0.1 lots is ~9.2% of the 108.40 margin.
	sim.SetPositions([]broker.Position{testPosition(1001)})
	m.refreshPositions(context.Background())

	m.refreshPnL(context.Background())
	got, ok := m.Position(1001)
	require.True(t, ok)
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, domain.AlertProfitTarget, got.Alerts[0].Kind)

	m.refreshPnL(context.Background())
	got, _ = m.Position(1001)
	assert.Len(t, got.Alerts, 1)
}

func TestRefreshPnL_AlertsDisabled(t *testing.T) {
	cfg := config.DefaultMonitoring()
	cfg.ProfitAlertPercent = 5.0
	cfg.AlertsEnabled = false
	m, sim := newTestMonitor(t, cfg)

	sim.SetPositions([]broker.Position{testPosition(1001)})
	m.refreshPositions(context.Background())
	m.refreshPnL(context.Background())

	got, ok := m.Position(1001)
	require.True(t, ok)
	assert.Empty(t, got.Alerts)
}

func TestSubscribe_AutoStartAndStop(t *testing.T) {
	m, sim := newTestMonitor(t, config.DefaultMonitoring())
	sim.SetPositions([]broker.Position{testPosition(1001)})

	id := m.Subscribe("tester", func([]*domain.MonitoredPosition) {})
	assert.True(t, m.Status().Active)
	assert.Equal(t, 1, m.Status().ActiveSubscriptions)

	require.True(t, m.Unsubscribe(id))
	assert.False(t, m.Status().Active)
	assert.Equal(t, 0, m.Status().ActiveSubscriptions)

	// Snapshot queries still work on a stopped monitor.
	assert.NotNil(t, m.MonitoredPositions())

	assert.False(t, m.Unsubscribe(id))
}

func TestFanOut_FilterAndPanicIsolation(t *testing.T) {
	log := zaptest.NewLogger(t)
	m := NewMonitor(&MonitorConfig{
		Monitoring: config.DefaultMonitoring(),
		Calculator: pnl.NewCalculator(log),
		Detector:   anomaly.NewDetector(anomaly.DefaultConfig(), log),
		Logger:     log,
	})

	delivered := make(chan []*domain.MonitoredPosition, 1)
	other := make(chan int, 1)

	// Subscriptions go in before the connector so nothing auto-starts;
	// the refresh is driven by hand.
	m.Subscribe("panicky", func([]*domain.MonitoredPosition) {
		panic("subscriber bug")
	})
	m.Subscribe("eurusd-only", func(positions []*domain.MonitoredPosition) {
		select {
		case delivered <- positions:
		default:
		}
	}, "EURUSD")
	m.Subscribe("gbpusd-only", func(positions []*domain.MonitoredPosition) {
		select {
		case other <- len(positions):
		default:
		}
	}, "GBPUSD")

	sim := broker.NewSimConnector(log)
	sim.SetQuote(broker.Quote{Symbol: "EURUSD", Bid: 1.0850, Ask: 1.0852})
	sim.SetPositions([]broker.Position{testPosition(1001)})
	m.SetConnector(sim)
	m.refreshPositions(context.Background())

	select {
	case positions := <-delivered:
		require.Len(t, positions, 1)
		assert.Equal(t, int64(1001), positions[0].Ticket)
	case <-time.After(2 * time.Second):
		t.Fatal("filtered subscriber never received a snapshot")
	}

	select {
	case n := <-other:
		assert.Zero(t, n)
	case <-time.After(2 * time.Second):
		t.Fatal("symbol-filtered subscriber never received a snapshot")
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	m, sim := newTestMonitor(t, config.DefaultMonitoring())
	sim.SetPositions([]broker.Position{testPosition(1001)})

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Status().Active)

	m.Stop()
	m.Stop()
	assert.False(t, m.Status().Active)
}

func TestStart_RequiresConnector(t *testing.T) {
	log := zaptest.NewLogger(t)
	m := NewMonitor(&MonitorConfig{
		Monitoring: config.DefaultMonitoring(),
		Calculator: pnl.NewCalculator(log),
		Detector:   anomaly.NewDetector(anomaly.DefaultConfig(), log),
		Logger:     log,
	})
	assert.ErrorIs(t, m.Start(context.Background()), ErrNoConnector)
}

func TestUpdateConfig_ValidatesAndSwaps(t *testing.T) {
	m, _ := newTestMonitor(t, config.DefaultMonitoring())

	bad := config.DefaultMonitoring()
	bad.PositionRefreshMs = 0
	assert.Error(t, m.UpdateConfig(bad))

	good := config.DefaultMonitoring()
	good.PositionRefreshMs = 250
	require.NoError(t, m.UpdateConfig(good))
	assert.Equal(t, 250*time.Millisecond, m.positionInterval())
}

func TestDetectAnomalies_UpdatesCounter(t *testing.T) {
	m, sim := newTestMonitor(t, config.DefaultMonitoring())

	pos := testPosition(1001)
	pos.StopLoss = 1.0860 // already crossed at bid 1.0850
	sim.SetPositions([]broker.Position{pos})
	m.refreshPositions(context.Background())

	found := m.DetectAnomalies(nil)
	require.NotEmpty(t, found)
	assert.Equal(t, int64(len(found)), m.Status().AnomaliesDetected)
	assert.NotEmpty(t, m.Detector().UnresolvedAnomalies())
}
