package broker

import (
	"context"
	"errors"
)

// ErrNotConnected is returned when a call is made before the connector
// has an established terminal link.
var ErrNotConnected = errors.New("broker: not connected")

// ErrSymbolUnknown is returned for symbols the terminal does not serve.
var ErrSymbolUnknown = errors.New("broker: unknown symbol")

// Connector is the position/price source consumed by the monitor.
// Every call is treated as fallible and potentially network-latent.
type Connector interface {
	// GetOpenPositions returns the full list of currently open positions.
	GetOpenPositions(ctx context.Context) ([]Position, error)

	// GetSymbolInfo returns contract parameters for a symbol.
	GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)

	// GetCurrentPrice returns a fresh bid/ask quote for a symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (Quote, error)
}
