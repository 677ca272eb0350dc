package pnl

import (
	"math"
	"sync"

	"github.com/techprocreative/fx-platform-windows-sub008/internal/broker"
	"go.uber.org/zap"
)

// Fallbacks applied when a symbol has no registered contract info.
const (
	defaultDigits       = 5
	defaultPipValue     = 10.0 // account currency per pip per standard lot
	defaultContractSize = 100000.0
	defaultLeverage     = 100.0
)

// Calculator computes unrealized/total P&L and margin for positions
// using pip-value arithmetic. Symbol contract parameters are cached
// via UpdateSymbolInfo.
type Calculator struct {
	mu      sync.RWMutex
	symbols map[string]broker.SymbolInfo
	logger  *zap.Logger
}

// NewCalculator creates a calculator with an empty symbol cache.
func NewCalculator(logger *zap.Logger) *Calculator {
	return &Calculator{
		symbols: make(map[string]broker.SymbolInfo),
		logger:  logger.Named("pnl"),
	}
}

// UpdateSymbolInfo caches contract parameters for a symbol.
func (c *Calculator) UpdateSymbolInfo(info broker.SymbolInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols[info.Symbol] = info
	c.logger.Debug("Symbol info updated",
		zap.String("symbol", info.Symbol),
		zap.Int("digits", info.Digits),
		zap.Float64("pip_value", info.PipValue))
}

// SymbolInfo returns the cached contract parameters for a symbol.
func (c *Calculator) SymbolInfo(symbol string) (broker.SymbolInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.symbols[symbol]
	return info, ok
}

// UnrealizedPnL computes mark-to-market profit for a position at the
// given current price.
func (c *Calculator) UnrealizedPnL(pos broker.Position, currentPrice float64) float64 {
	info := c.infoOrDefault(pos.Symbol)

	diff := currentPrice - pos.OpenPrice
	if pos.Type == broker.Sell {
		diff = pos.OpenPrice - currentPrice
	}

	pipSize := pipSizeForDigits(info.Digits)
	pips := diff / pipSize

	return pips * info.PipValue * pos.Volume
}

// TotalPnL is unrealized P&L plus realized adjustments (swap and
// commission) carried on the position.
func (c *Calculator) TotalPnL(pos broker.Position, currentPrice float64) float64 {
	return c.UnrealizedPnL(pos, currentPrice) + pos.Swap + pos.Commission
}

// MarginUsed computes the margin a position consumes.
func (c *Calculator) MarginUsed(pos broker.Position) float64 {
	info := c.infoOrDefault(pos.Symbol)
	if info.Leverage <= 0 {
		return 0
	}
	return pos.Volume * info.ContractSize * pos.OpenPrice / info.Leverage
}

func (c *Calculator) infoOrDefault(symbol string) broker.SymbolInfo {
	c.mu.RLock()
	info, ok := c.symbols[symbol]
	c.mu.RUnlock()
	if ok {
		return info
	}
	return broker.SymbolInfo{
		Symbol:       symbol,
		Digits:       defaultDigits,
		PipValue:     defaultPipValue,
		ContractSize: defaultContractSize,
		Leverage:     defaultLeverage,
	}
}

// pipSizeForDigits maps quote precision to pip size: 5/4-digit symbols
// use 0.0001, 3/2-digit (JPY style) use 0.01.
func pipSizeForDigits(digits int) float64 {
	switch {
	case digits >= 4:
		return 0.0001
	case digits >= 2:
		return 0.01
	default:
		return math.Pow10(-digits)
	}
}
