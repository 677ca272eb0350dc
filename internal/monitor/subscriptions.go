package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/domain"
	"github.com/techprocreative/fx-platform-windows-sub008/internal/events"
	"go.uber.org/zap"
)

// SubscriberCallback receives the filtered position list on every
// successful position-refresh cycle.
type SubscriberCallback func(positions []*domain.MonitoredPosition)

// EventCallback receives position lifecycle events.
type EventCallback func(evt events.PositionEvent)

// PositionSubscription is one consumer registration.
type PositionSubscription struct {
	ID         string
	UserID     string
	Symbols    []string // empty = all symbols
	Callback   SubscriberCallback
	Active     bool
	CreatedAt  time.Time
	LastUpdate time.Time
}

// Subscribe registers a consumer for position updates and starts the
// monitor if this is the first active subscription. Delivery is
// asynchronous; the returned id is the handle for Unsubscribe.
func (m *Monitor) Subscribe(userID string, callback SubscriberCallback, symbols ...string) string {
	sub := &PositionSubscription{
		ID:        uuid.New().String(),
		UserID:    userID,
		Symbols:   symbols,
		Callback:  callback,
		Active:    true,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.subs[sub.ID] = sub
	active := m.countActiveLocked()
	hasConnector := m.connector != nil
	running := m.active
	m.mu.Unlock()

	activeSubscriptions.Set(float64(active))
	m.logger.Info("Subscription registered",
		zap.String("subscription_id", sub.ID),
		zap.String("user_id", userID),
		zap.Strings("symbols", symbols))

	if active == 1 && hasConnector && !running {
		if err := m.Start(context.Background()); err != nil {
			m.logger.Error("Failed to start monitor on first subscription", zap.Error(err))
		}
	}
	return sub.ID
}

// Unsubscribe deactivates a subscription and stops the monitor once
// zero active subscriptions remain.
func (m *Monitor) Unsubscribe(id string) bool {
	m.mu.Lock()
	sub, ok := m.subs[id]
	if !ok || !sub.Active {
		m.mu.Unlock()
		return false
	}
	sub.Active = false
	delete(m.subs, id)
	remaining := m.countActiveLocked()
	m.mu.Unlock()

	activeSubscriptions.Set(float64(remaining))
	m.logger.Info("Subscription removed",
		zap.String("subscription_id", id),
		zap.Int("remaining", remaining))

	if remaining == 0 {
		m.Stop()
	}
	return true
}

// OnPositionEvent registers a lifecycle event listener under the given
// handle, replacing any previous listener with the same handle.
func (m *Monitor) OnPositionEvent(id string, callback EventCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[id] = callback
}

// OffPositionEvent removes a lifecycle event listener by handle.
func (m *Monitor) OffPositionEvent(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listeners[id]; !ok {
		return false
	}
	delete(m.listeners, id)
	return true
}

func (m *Monitor) countActiveLocked() int {
	n := 0
	for _, sub := range m.subs {
		if sub.Active {
			n++
		}
	}
	return n
}

// emitEvent delivers one lifecycle event to every listener. A
// panicking listener is contained and logged; the rest still run.
func (m *Monitor) emitEvent(evt events.PositionEvent) {
	m.mu.RLock()
	listeners := make(map[string]EventCallback, len(m.listeners))
	for id, cb := range m.listeners {
		listeners[id] = cb
	}
	m.mu.RUnlock()

	for id, cb := range listeners {
		m.safeEmit(id, cb, evt)
	}
}

func (m *Monitor) safeEmit(id string, cb EventCallback, evt events.PositionEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Event listener panicked",
				zap.String("listener_id", id),
				zap.String("event_type", string(evt.Type)),
				zap.Any("panic", r))
		}
	}()
	cb(evt)
}

// fanOut delivers the current position list to every active
// subscription, filtered by its symbol list. Each delivery runs on its
// own goroutine with panic containment, so one misbehaving subscriber
// cannot block the others or the refresh loop.
func (m *Monitor) fanOut() {
	positions := m.MonitoredPositions()
	now := time.Now()

	m.mu.Lock()
	targets := make([]*PositionSubscription, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.Active {
			sub.LastUpdate = now
			targets = append(targets, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range targets {
		filtered := filterBySymbols(positions, sub.Symbols)
		go m.safeDeliver(sub, filtered)
	}
}

func (m *Monitor) safeDeliver(sub *PositionSubscription, positions []*domain.MonitoredPosition) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Subscriber callback panicked",
				zap.String("subscription_id", sub.ID),
				zap.String("user_id", sub.UserID),
				zap.Any("panic", r))
		}
	}()
	sub.Callback(positions)
}

func filterBySymbols(positions []*domain.MonitoredPosition, symbols []string) []*domain.MonitoredPosition {
	if len(symbols) == 0 {
		return positions
	}
	allowed := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		allowed[s] = struct{}{}
	}
	out := make([]*domain.MonitoredPosition, 0, len(positions))
	for _, p := range positions {
		if _, ok := allowed[p.Symbol]; ok {
			out = append(out, p)
		}
	}
	return out
}
