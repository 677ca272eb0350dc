package anomaly

import "time"

// Type classifies an anomaly.
type Type string

const (
	TypePriceSpike        Type = "price_spike"
	TypeUnusualVolume     Type = "unusual_volume"
	TypeMarginCall        Type = "margin_call"
	TypeStopLossHit       Type = "stop_loss_hit"
	TypeTakeProfitHit     Type = "take_profit_hit"
	TypePositionTimeout   Type = "position_timeout"
	TypeRapidDrawdown     Type = "rapid_drawdown"
	TypeUnauthorizedTrade Type = "unauthorized_trade"
)

// Severity grades how urgent an anomaly is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ActionType classifies a recommended response.
type ActionType string

const (
	ActionNotify         ActionType = "notify"
	ActionClosePosition  ActionType = "close_position"
	ActionReducePosition ActionType = "reduce_position"
	ActionStopTrading    ActionType = "stop_trading"
	ActionManualReview   ActionType = "manual_review"
)

// Action is an advisory recommendation attached to an anomaly. The
// detector never closes positions itself; execution only marks the
// recommendation and records a best-effort result.
type Action struct {
	Type        ActionType `json:"type"`
	Description string     `json:"description"`
	Executed    bool       `json:"executed"`
	ExecutedAt  time.Time  `json:"executed_at,omitempty"`
	Result      string     `json:"result,omitempty"`
}

// Anomaly is one detected abnormal situation. Once resolved, the
// record is immutable except for the resolution fields.
type Anomaly struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Severity    Severity  `json:"severity"`
	Ticket      int64     `json:"ticket,omitempty"` // 0 for system-level anomalies
	Symbol      string    `json:"symbol,omitempty"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Value       float64   `json:"value"`
	Threshold   float64   `json:"threshold"`
	Confidence  float64   `json:"confidence"` // 0-100
	Resolved    bool      `json:"resolved"`
	ResolvedAt  time.Time `json:"resolved_at,omitempty"`
	Actions     []Action  `json:"actions,omitempty"`
}

// defaultActions returns the recommended action set for an anomaly type.
func defaultActions(t Type) []Action {
	actions := []Action{{Type: ActionNotify, Description: "notify the operator"}}
	switch t {
	case TypeMarginCall:
		actions = append(actions, Action{Type: ActionClosePosition, Description: "close the position to free margin"})
	case TypeRapidDrawdown:
		actions = append(actions, Action{Type: ActionReducePosition, Description: "reduce position size to limit drawdown"})
	case TypePositionTimeout, TypeUnauthorizedTrade:
		actions = append(actions, Action{Type: ActionManualReview, Description: "review the position manually"})
	}
	return actions
}

// Stats aggregates the anomaly log by type and severity.
type Stats struct {
	Total      int              `json:"total"`
	Unresolved int              `json:"unresolved"`
	ByType     map[Type]int     `json:"by_type"`
	BySeverity map[Severity]int `json:"by_severity"`
}
