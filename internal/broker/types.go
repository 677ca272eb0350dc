package broker

import "time"

// PositionType is the direction of an open position.
type PositionType string

const (
	Buy  PositionType = "buy"
	Sell PositionType = "sell"
)

// Position is an open position as reported by the broker terminal.
type Position struct {
	Ticket      int64        `json:"ticket"`
	Symbol      string       `json:"symbol"`
	Type        PositionType `json:"type"`
	Volume      float64      `json:"volume"` // lots
	OpenPrice   float64      `json:"open_price"`
	CurrentPrice float64     `json:"current_price"`
	StopLoss    float64      `json:"stop_loss,omitempty"`   // 0 = not set
	TakeProfit  float64      `json:"take_profit,omitempty"` // 0 = not set
	Swap        float64      `json:"swap,omitempty"`
	Commission  float64      `json:"commission,omitempty"`
	MagicNumber int64        `json:"magic_number,omitempty"`
	Comment     string       `json:"comment,omitempty"`
	OpenTime    time.Time    `json:"open_time"`
}

// SymbolInfo carries the contract parameters needed for P&L and margin math.
type SymbolInfo struct {
	Symbol       string  `json:"symbol"`
	Digits       int     `json:"digits"`
	PipValue     float64 `json:"pip_value"` // account currency per pip per standard lot
	ContractSize float64 `json:"contract_size"`
	Leverage     float64 `json:"leverage"`
	MinLot       float64 `json:"min_lot,omitempty"`
	MaxLot       float64 `json:"max_lot,omitempty"`
}

// Quote is a bid/ask snapshot for a symbol.
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}
