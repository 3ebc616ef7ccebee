package types

import "time"

// Side is the direction of a single leg order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Direction describes the leg sides of a pair as configured on a rule.
type Direction string

const (
	DirectionBuySell  Direction = "buy_sell"
	DirectionSellBuy  Direction = "sell_buy"
	DirectionBuyBuy   Direction = "buy_buy"
	DirectionSellSell Direction = "sell_sell"
)

// Sides maps the direction onto the two legs. Unknown values fall back to
// buy/sell, matching the configuration loader's coercion.
func (d Direction) Sides() (Side, Side) {
	switch d {
	case DirectionSellBuy:
		return SideSell, SideBuy
	case DirectionBuyBuy:
		return SideBuy, SideBuy
	case DirectionSellSell:
		return SideSell, SideSell
	default:
		return SideBuy, SideSell
	}
}

// CloseCondition selects the exit check applied to a trade once its hold
// and close-window gates have passed.
type CloseCondition string

const (
	CloseOnSpread          CloseCondition = "spread"
	CloseOnProfit          CloseCondition = "profit"
	CloseOnSpreadAndProfit CloseCondition = "spread_and_profit"
)

// CloseLogicMode selects between the condition-based evaluator and the
// stateful net-PnL threshold machine.
type CloseLogicMode string

const (
	CloseLogicConditions CloseLogicMode = ""
	CloseLogicNetPnl     CloseLogicMode = "net_pnl_threshold"
)

// Close reasons recorded on history entries.
const (
	ReasonManual     = "manual"
	ReasonDrawdown   = "auto:drawdown"
	ReasonExternal   = "external"
	ReasonNetPnl     = "auto:net_pnl_threshold"
	ReasonNetPnlStop = "auto:net_pnl_threshold_stop"
	AutoReasonPrefix = "auto:"
)

// ExitPolicy is the close rule attached to a schedule rule and denormalized
// onto each trade at open time, so later rule edits never change the exit
// behavior of trades already open.
type ExitPolicy struct {
	CloseAfterMinutes int            `json:"close_after_minutes" yaml:"close_after_minutes"`
	MaxExitSpread     float64        `json:"max_exit_spread" yaml:"max_exit_spread"`
	CloseCondition    CloseCondition `json:"close_condition" yaml:"close_condition"`
	MinCombinedProfit float64        `json:"min_combined_profit" yaml:"min_combined_profit"`
	CloseWindowStart  string         `json:"close_window_start,omitempty" yaml:"close_window_start"`
	CloseWindowEnd    string         `json:"close_window_end,omitempty" yaml:"close_window_end"`

	CloseLogicMode    CloseLogicMode `json:"close_logic_mode,omitempty" yaml:"close_logic_mode"`
	NetPnlThreshold   float64        `json:"net_pnl_threshold,omitempty" yaml:"net_pnl_threshold"`
	CheckStartMinutes int            `json:"check_start_minutes,omitempty" yaml:"check_start_minutes"`
	CheckStopMinutes  int            `json:"check_stop_minutes,omitempty" yaml:"check_stop_minutes"`
}

// ScheduleRule is one configured entry rule. Immutable during a cycle and
// replaced wholesale on config reload.
type ScheduleRule struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Group   string `yaml:"-"`
	Enabled bool   `yaml:"enabled"`

	EntryStart string `yaml:"entry_start"`
	EntryEnd   string `yaml:"entry_end"`
	// Weekdays uses 0=Monday .. 6=Sunday. Empty means every day.
	Weekdays []int `yaml:"weekdays"`

	Symbol1   string    `yaml:"symbol1"`
	Symbol2   string    `yaml:"symbol2"`
	Lot1      float64   `yaml:"lot1"`
	Lot2      float64   `yaml:"lot2"`
	Direction Direction `yaml:"direction"`

	MaxEntrySpread float64 `yaml:"max_entry_spread"`

	Exit ExitPolicy `yaml:"exit"`
}

// LegRecord is one side of an open paired trade.
type LegRecord struct {
	Symbol     string  `json:"symbol"`
	Lot        float64 `json:"lot"`
	Side       Side    `json:"side"`
	Position   int64   `json:"position"`
	Magic      int64   `json:"magic"`
	EntryPrice float64 `json:"entry_price,omitempty"`
	EntryTime  int64   `json:"entry_time,omitempty"`

	LastProfit     float64 `json:"last_profit"`
	LastCommission float64 `json:"last_commission"`
	LastSwap       float64 `json:"last_swap"`
}

// TradeRecord is an open paired trade. The exit policy is a snapshot taken
// from the originating rule at open time; RuleID is empty for manual trades.
type TradeRecord struct {
	TradeID  string    `json:"trade_id"`
	RuleID   string    `json:"rule_id,omitempty"`
	RuleName string    `json:"rule_name,omitempty"`
	OpenedAt time.Time `json:"opened_at"`

	Leg1 LegRecord `json:"leg1"`
	Leg2 LegRecord `json:"leg2"`

	Exit ExitPolicy `json:"exit"`

	// Runtime flags of the net-PnL close machine. All three are sticky:
	// once set they never revert.
	CheckingActive    bool       `json:"checking_active,omitempty"`
	ConditionMetAt    *time.Time `json:"condition_met_at,omitempty"`
	ForceClosedAtStop bool       `json:"force_closed_at_stop,omitempty"`
}

// CombinedProfit sums the latest known leg profits.
func (t *TradeRecord) CombinedProfit() float64 {
	return t.Leg1.LastProfit + t.Leg2.LastProfit
}

// ClosedLeg is the final snapshot of one leg on a closed trade.
type ClosedLeg struct {
	Symbol     string  `json:"symbol"`
	Lot        float64 `json:"lot"`
	Side       Side    `json:"side"`
	EntryPrice float64 `json:"entry_price,omitempty"`
	EntryTime  int64   `json:"entry_time,omitempty"`
	Profit     float64 `json:"profit"`
	Commission float64 `json:"commission"`
	Swap       float64 `json:"swap"`
}

// ClosedTrade is an immutable history entry. Append-only.
type ClosedTrade struct {
	TradeID  string    `json:"trade_id"`
	RuleID   string    `json:"rule_id,omitempty"`
	RuleName string    `json:"rule_name,omitempty"`
	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at"`

	Leg1 ClosedLeg `json:"leg1"`
	Leg2 ClosedLeg `json:"leg2"`

	CombinedProfit     float64 `json:"combined_profit"`
	CombinedCommission float64 `json:"combined_commission"`
	CombinedSwap       float64 `json:"combined_swap"`
	CloseReason        string  `json:"close_reason"`
}

// ConnectInfo is returned by a channel on successful connect.
type ConnectInfo struct {
	Login  string `json:"login"`
	Server string `json:"server"`
}

// OrderReq places a market order for one leg.
type OrderReq struct {
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Volume   float64 `json:"volume"`
	TradeTag string  `json:"trade_tag"`
	Magic    int64   `json:"magic"`
}

// OrderResp is the channel's confirmation of a filled leg order.
type OrderResp struct {
	Position   int64   `json:"position"`
	EntryPrice float64 `json:"entry_price"`
	EntryTime  int64   `json:"entry_time"`
	Commission float64 `json:"commission"`
	Swap       float64 `json:"swap"`
}

// ProfitInfo is the latest known P/L state of a channel position.
type ProfitInfo struct {
	Open       bool    `json:"open"`
	Profit     float64 `json:"profit"`
	Commission float64 `json:"commission"`
	Swap       float64 `json:"swap"`
}

// Quote is a single symbol quote from one channel.
type Quote struct {
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Spread float64 `json:"spread"`
}

// AccountInfo is the aggregate state of one connected account.
type AccountInfo struct {
	Balance float64 `json:"balance"`
	Equity  float64 `json:"equity"`
}

// CloseReq asks a channel to close a position.
type CloseReq struct {
	Position int64   `json:"position"`
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Volume   float64 `json:"volume"`
	Magic    int64   `json:"magic"`
}

// CloseResult reports whether a close command completed.
type CloseResult struct {
	Closed bool `json:"closed"`
}

// CloseRequest is an exit decision produced by the evaluator: a trade id
// plus the reason it became eligible.
type CloseRequest struct {
	TradeID string
	Reason  string
}

// CycleResult summarizes one automation tick.
type CycleResult struct {
	Triggered    []string          `json:"triggered,omitempty"`
	Skipped      map[string]string `json:"skipped,omitempty"`
	Closed       []CloseRequest    `json:"closed,omitempty"`
	DrawdownStop bool              `json:"drawdown_stop,omitempty"`
	StateChanged bool              `json:"state_changed"`
}
