package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// bridgeRequest is one call to the terminal bridge.
type bridgeRequest struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// bridgeResponse is the bridge's reply, correlated by ID.
type bridgeResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BridgeConnector talks to a broker terminal bridge over a websocket
// using JSON request/reply frames. The connection is established
// lazily and re-established with exponential backoff after failures.
type BridgeConnector struct {
	url         string
	callTimeout time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  uint64
	pending map[uint64]chan bridgeResponse
	closed  bool
}

// BridgeConfig configures a BridgeConnector.
type BridgeConfig struct {
	URL         string
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// NewBridgeConnector creates a connector for the given bridge URL.
func NewBridgeConnector(cfg BridgeConfig) *BridgeConnector {
	timeout := cfg.CallTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &BridgeConnector{
		url:         cfg.URL,
		callTimeout: timeout,
		logger:      cfg.Logger.Named("bridge"),
		pending:     make(map[uint64]chan bridgeResponse),
	}
}

// GetOpenPositions implements Connector.
func (b *BridgeConnector) GetOpenPositions(ctx context.Context) ([]Position, error) {
	var positions []Position
	if err := b.call(ctx, "positions.list", nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// GetSymbolInfo implements Connector.
func (b *BridgeConnector) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	var info SymbolInfo
	params, _ := json.Marshal(map[string]string{"symbol": symbol})
	if err := b.call(ctx, "symbol.info", params, &info); err != nil {
		return SymbolInfo{}, err
	}
	return info, nil
}

// GetCurrentPrice implements Connector.
func (b *BridgeConnector) GetCurrentPrice(ctx context.Context, symbol string) (Quote, error) {
	var quote Quote
	params, _ := json.Marshal(map[string]string{"symbol": symbol})
	if err := b.call(ctx, "price.current", params, &quote); err != nil {
		return Quote{}, err
	}
	return quote, nil
}

// Close tears down the bridge connection.
func (b *BridgeConnector) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.conn != nil {
		err := b.conn.Close()
		b.conn = nil
		return err
	}
	return nil
}

// call sends one request and waits for the correlated reply.
func (b *BridgeConnector) call(ctx context.Context, method string, params json.RawMessage, out interface{}) error {
	conn, err := b.ensureConnected(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	replyCh := make(chan bridgeResponse, 1)
	b.pending[id] = replyCh
	req := bridgeRequest{ID: id, Method: method, Params: params}
	writeErr := conn.WriteJSON(req)
	b.mu.Unlock()

	if writeErr != nil {
		b.dropPending(id)
		b.disconnect()
		return fmt.Errorf("bridge write %s: %w", method, writeErr)
	}

	timer := time.NewTimer(b.callTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		b.dropPending(id)
		return ctx.Err()
	case <-timer.C:
		b.dropPending(id)
		return fmt.Errorf("bridge call %s: timeout after %s", method, b.callTimeout)
	case resp := <-replyCh:
		if resp.Error != "" {
			return fmt.Errorf("bridge call %s: %s", method, resp.Error)
		}
		if out != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("bridge decode %s: %w", method, err)
			}
		}
		return nil
	}
}

// ensureConnected dials the bridge if needed, retrying with backoff.
func (b *BridgeConnector) ensureConnected(ctx context.Context) (*websocket.Conn, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrNotConnected
	}
	if b.conn != nil {
		conn := b.conn
		b.mu.Unlock()
		return conn, nil
	}
	b.mu.Unlock()

	op := func() (*websocket.Conn, error) {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, b.url, nil)
		if err != nil {
			b.logger.Warn("Bridge dial failed", zap.String("url", b.url), zap.Error(err))
			return nil, err
		}
		return conn, nil
	}

	conn, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("bridge connect: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return nil, ErrNotConnected
	}
	b.conn = conn
	b.mu.Unlock()

	go b.readPump(conn)

	b.logger.Info("Bridge connected", zap.String("url", b.url))
	return conn, nil
}

// readPump routes replies to pending calls until the connection dies.
func (b *BridgeConnector) readPump(conn *websocket.Conn) {
	for {
		var resp bridgeResponse
		if err := conn.ReadJSON(&resp); err != nil {
			b.logger.Warn("Bridge read failed, dropping connection", zap.Error(err))
			b.disconnect()
			return
		}

		b.mu.Lock()
		replyCh, ok := b.pending[resp.ID]
		if ok {
			delete(b.pending, resp.ID)
		}
		b.mu.Unlock()

		if ok {
			replyCh <- resp
		} else {
			b.logger.Debug("Bridge reply without pending call", zap.Uint64("id", resp.ID))
		}
	}
}

func (b *BridgeConnector) dropPending(id uint64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// disconnect closes the socket and fails all pending calls so the next
// call re-dials.
func (b *BridgeConnector) disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
	for id, replyCh := range b.pending {
		replyCh <- bridgeResponse{ID: id, Error: "connection lost"}
		delete(b.pending, id)
	}
}
