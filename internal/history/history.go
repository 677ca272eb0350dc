package history

import (
	"sync"
	"time"
)

// QuoteSide marks which side of the book a price point came from.
type QuoteSide string

const (
	SideBid QuoteSide = "bid"
	SideAsk QuoteSide = "ask"
)

// PricePoint is one observed price for a symbol or position.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Side      QuoteSide `json:"side"`
}

// VolumeSample is one observed volume reading for a symbol.
type VolumeSample struct {
	Timestamp time.Time `json:"timestamp"`
	Volume    float64   `json:"volume"`
}

// PositionState is a compact per-cycle snapshot of a position, used as
// the baseline for the drawdown detector.
type PositionState struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	TotalPnL  float64   `json:"total_pnl"`
}

// Config caps each history independently.
type Config struct {
	MaxPricePoints   int
	MaxVolumeSamples int
	MaxStates        int
}

// DefaultConfig returns the default history capacities.
func DefaultConfig() Config {
	return Config{
		MaxPricePoints:   1000,
		MaxVolumeSamples: 500,
		MaxStates:        100,
	}
}

// Store holds bounded per-key rolling histories. Each series evicts
// its oldest entry once the configured capacity is reached.
type Store struct {
	mu      sync.RWMutex
	cfg     Config
	prices  map[string][]PricePoint
	volumes map[string][]VolumeSample
	states  map[int64][]PositionState
}

// NewStore creates an empty history store.
func NewStore(cfg Config) *Store {
	if cfg.MaxPricePoints <= 0 {
		cfg.MaxPricePoints = DefaultConfig().MaxPricePoints
	}
	if cfg.MaxVolumeSamples <= 0 {
		cfg.MaxVolumeSamples = DefaultConfig().MaxVolumeSamples
	}
	if cfg.MaxStates <= 0 {
		cfg.MaxStates = DefaultConfig().MaxStates
	}
	return &Store{
		cfg:     cfg,
		prices:  make(map[string][]PricePoint),
		volumes: make(map[string][]VolumeSample),
		states:  make(map[int64][]PositionState),
	}
}

// AddPrice appends a price point to a symbol's series.
func (s *Store) AddPrice(symbol string, p PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.prices[symbol]
	if len(series) >= s.cfg.MaxPricePoints {
		series = series[1:]
	}
	s.prices[symbol] = append(series, p)
}

// AddVolume appends a volume sample to a symbol's series.
func (s *Store) AddVolume(symbol string, v VolumeSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.volumes[symbol]
	if len(series) >= s.cfg.MaxVolumeSamples {
		series = series[1:]
	}
	s.volumes[symbol] = append(series, v)
}

// AddState appends a position snapshot to a ticket's series.
func (s *Store) AddState(ticket int64, st PositionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.states[ticket]
	if len(series) >= s.cfg.MaxStates {
		series = series[1:]
	}
	s.states[ticket] = append(series, st)
}

// Prices returns a copy of a symbol's price series, oldest first.
func (s *Store) Prices(symbol string) []PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.prices[symbol]
	out := make([]PricePoint, len(series))
	copy(out, series)
	return out
}

// LastPrices returns a copy of the most recent n price points.
func (s *Store) LastPrices(symbol string, n int) []PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.prices[symbol]
	if n > len(series) {
		n = len(series)
	}
	out := make([]PricePoint, n)
	copy(out, series[len(series)-n:])
	return out
}

// PriceCount returns the number of stored points for a symbol.
func (s *Store) PriceCount(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prices[symbol])
}

// Volumes returns a copy of a symbol's volume series, oldest first.
func (s *Store) Volumes(symbol string) []VolumeSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.volumes[symbol]
	out := make([]VolumeSample, len(series))
	copy(out, series)
	return out
}

// LastVolumes returns a copy of the most recent n volume samples.
func (s *Store) LastVolumes(symbol string, n int) []VolumeSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.volumes[symbol]
	if n > len(series) {
		n = len(series)
	}
	out := make([]VolumeSample, n)
	copy(out, series[len(series)-n:])
	return out
}

// States returns a copy of a ticket's snapshot series, oldest first.
func (s *Store) States(ticket int64) []PositionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.states[ticket]
	out := make([]PositionState, len(series))
	copy(out, series)
	return out
}

// DropStates removes the snapshot series for a closed ticket.
func (s *Store) DropStates(ticket int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, ticket)
}
