package broker

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SimConnector is a deterministic in-memory connector used for paper
// runs and tests. Snapshots and quotes are scripted by the caller;
// optional drift makes quotes move between reads.
type SimConnector struct {
	mu        sync.RWMutex
	positions []Position
	quotes    map[string]Quote
	symbols   map[string]SymbolInfo
	drift     float64 // fractional per-read random walk, 0 disables
	seed      int64
	failNext  error
	logger    *zap.Logger
}

// NewSimConnector creates an empty simulated connector.
func NewSimConnector(logger *zap.Logger) *SimConnector {
	return &SimConnector{
		quotes:  make(map[string]Quote),
		symbols: make(map[string]SymbolInfo),
		seed:    1,
		logger:  logger.Named("sim_connector"),
	}
}

// SetPositions replaces the scripted open-position snapshot.
func (s *SimConnector) SetPositions(positions []Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = make([]Position, len(positions))
	copy(s.positions, positions)
}

// SetQuote sets the current quote for a symbol.
func (s *SimConnector) SetQuote(q Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.Time.IsZero() {
		q.Time = time.Now()
	}
	s.quotes[q.Symbol] = q
}

// SetSymbolInfo registers contract parameters for a symbol.
func (s *SimConnector) SetSymbolInfo(info SymbolInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols[info.Symbol] = info
}

// SetDrift enables a deterministic random walk on quotes, expressed as
// a maximum fractional move per read (e.g. 0.0005 = 5 basis points).
func (s *SimConnector) SetDrift(drift float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drift = drift
}

// FailNext makes the next connector call return err once.
func (s *SimConnector) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *SimConnector) takeFailure() error {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	return nil
}

// GetOpenPositions returns the scripted snapshot.
func (s *SimConnector) GetOpenPositions(ctx context.Context) ([]Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	out := make([]Position, len(s.positions))
	copy(out, s.positions)
	for i := range out {
		if q, ok := s.quotes[out[i].Symbol]; ok {
			if out[i].Type == Buy {
				out[i].CurrentPrice = q.Bid
			} else {
				out[i].CurrentPrice = q.Ask
			}
		}
	}
	return out, nil
}

// GetSymbolInfo returns the registered contract parameters.
func (s *SimConnector) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	if err := ctx.Err(); err != nil {
		return SymbolInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return SymbolInfo{}, err
	}
	info, ok := s.symbols[symbol]
	if !ok {
		return SymbolInfo{}, ErrSymbolUnknown
	}
	return info, nil
}

// GetCurrentPrice returns the scripted quote, applying drift if enabled.
func (s *SimConnector) GetCurrentPrice(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return Quote{}, err
	}
	q, ok := s.quotes[symbol]
	if !ok {
		return Quote{}, ErrSymbolUnknown
	}
	if s.drift > 0 {
		step := s.nextStep() * s.drift
		q.Bid = q.Bid * (1 + step)
		q.Ask = q.Ask * (1 + step)
		q.Time = time.Now()
		s.quotes[symbol] = q
	}
	return q, nil
}

// nextStep produces a repeatable pseudo-random value in [-1, 1].
// A linear congruential generator keeps sim runs reproducible.
func (s *SimConnector) nextStep() float64 {
	s.seed = (s.seed*6364136223846793005 + 1442695040888963407) & math.MaxInt64
	return float64(s.seed%2001-1000) / 1000.0
}
