package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSimConnector_PositionsPricedFromQuotes(t *testing.T) {
	sim := NewSimConnector(zaptest.NewLogger(t))
	sim.SetQuote(Quote{Symbol: "EURUSD", Bid: 1.0850, Ask: 1.0852})
	sim.SetPositions([]Position{
		{Ticket: 1, Symbol: "EURUSD", Type: Buy, OpenPrice: 1.0840},
		{Ticket: 2, Symbol: "EURUSD", Type: Sell, OpenPrice: 1.0860},
	})

	got, err := sim.GetOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Buy marks at bid, sell at ask.
	assert.Equal(t, 1.0850, got[0].CurrentPrice)
	assert.Equal(t, 1.0852, got[1].CurrentPrice)
}

func TestSimConnector_FailNextIsOneShot(t *testing.T) {
	sim := NewSimConnector(zaptest.NewLogger(t))
	boom := errors.New("terminal offline")
	sim.FailNext(boom)

	_, err := sim.GetOpenPositions(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = sim.GetOpenPositions(context.Background())
	assert.NoError(t, err)
}

func TestSimConnector_UnknownSymbol(t *testing.T) {
	sim := NewSimConnector(zaptest.NewLogger(t))

	_, err := sim.GetCurrentPrice(context.Background(), "GBPJPY")
	assert.ErrorIs(t, err, ErrSymbolUnknown)

	_, err = sim.GetSymbolInfo(context.Background(), "GBPJPY")
	assert.ErrorIs(t, err, ErrSymbolUnknown)
}

func TestSimConnector_DriftMovesQuotesDeterministically(t *testing.T) {
	run := func() []float64 {
		sim := NewSimConnector(zaptest.NewLogger(t))
		sim.SetQuote(Quote{Symbol: "EURUSD", Bid: 1.0850, Ask: 1.0852, Time: time.Now()})
		sim.SetDrift(0.001)
		var bids []float64
		for i := 0; i < 5; i++ {
			q, err := sim.GetCurrentPrice(context.Background(), "EURUSD")
			require.NoError(t, err)
			bids = append(bids, q.Bid)
		}
		return bids
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
	assert.NotEqual(t, first[0], first[4])
}

func TestSimConnector_HonorsContextCancellation(t *testing.T) {
	sim := NewSimConnector(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.GetOpenPositions(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
