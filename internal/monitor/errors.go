package monitor

import (
	"time"

	"go.uber.org/zap"
)

// ErrorRecord is one structured entry in the monitor's bounded error
// log. Nothing here is fatal; every failure degrades to skipping the
// affected cycle, callback or action.
type ErrorRecord struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}

// recordError appends a structured record to the bounded error log.
func (m *Monitor) recordError(kind string, err error) {
	cfg := m.configSnapshot()
	record := ErrorRecord{
		Kind:      kind,
		Message:   err.Error(),
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	if cfg.MaxErrors > 0 && len(m.errors) >= cfg.MaxErrors {
		m.errors = m.errors[1:]
	}
	m.errors = append(m.errors, record)
	m.mu.Unlock()

	connectorErrors.Inc()
	m.logger.Error("Refresh error recorded",
		zap.String("kind", kind),
		zap.Error(err))
}

// Errors returns a copy of the error log, oldest first.
func (m *Monitor) Errors() []ErrorRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ErrorRecord, len(m.errors))
	copy(out, m.errors)
	return out
}
