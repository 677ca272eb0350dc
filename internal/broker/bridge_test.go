package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// startBridgeServer runs a minimal request/reply bridge over a test
// websocket endpoint.
func startBridgeServer(t *testing.T, handle func(req bridgeRequest) bridgeResponse) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req bridgeRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if err := conn.WriteJSON(handle(req)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestBridgeConnector_RoundTrip(t *testing.T) {
	url := startBridgeServer(t, func(req bridgeRequest) bridgeResponse {
		switch req.Method {
		case "positions.list":
			return bridgeResponse{ID: req.ID, Result: []byte(`[{"ticket":1001,"symbol":"EURUSD","type":"buy","volume":0.1,"open_price":1.084,"current_price":1.085}]`)}
		case "symbol.info":
			return bridgeResponse{ID: req.ID, Result: []byte(`{"symbol":"EURUSD","digits":5,"pip_value":10,"contract_size":100000,"leverage":100}`)}
		case "price.current":
			return bridgeResponse{ID: req.ID, Result: []byte(`{"symbol":"EURUSD","bid":1.085,"ask":1.0852}`)}
		default:
			return bridgeResponse{ID: req.ID, Error: "unknown method"}
		}
	})

	bridge := NewBridgeConnector(BridgeConfig{
		URL:         url,
		CallTimeout: 2 * time.Second,
		Logger:      zaptest.NewLogger(t),
	})
	defer bridge.Close()

	positions, err := bridge.GetOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(1001), positions[0].Ticket)
	assert.Equal(t, Buy, positions[0].Type)
	assert.Equal(t, 1.085, positions[0].CurrentPrice)

	info, err := bridge.GetSymbolInfo(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 5, info.Digits)
	assert.Equal(t, 10.0, info.PipValue)

	quote, err := bridge.GetCurrentPrice(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.085, quote.Bid)
	assert.Equal(t, 1.0852, quote.Ask)
}

func TestBridgeConnector_ServerError(t *testing.T) {
	url := startBridgeServer(t, func(req bridgeRequest) bridgeResponse {
		return bridgeResponse{ID: req.ID, Error: "terminal busy"}
	})

	bridge := NewBridgeConnector(BridgeConfig{
		URL:         url,
		CallTimeout: 2 * time.Second,
		Logger:      zaptest.NewLogger(t),
	})
	defer bridge.Close()

	_, err := bridge.GetOpenPositions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal busy")
}

func TestBridgeConnector_ClosedRefusesCalls(t *testing.T) {
	bridge := NewBridgeConnector(BridgeConfig{
		URL:    "ws://localhost:1",
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, bridge.Close())

	_, err := bridge.GetOpenPositions(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}
