package types

import "time"

// Bar is a single OHLCV observation for one symbol and timeframe.
type Bar struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// PriceSeries is a strictly time-ascending, duplicate-free sequence of bars.
// A series is built fresh per fetch and must not be mutated after it is
// returned to a caller.
type PriceSeries struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Bars      []Bar  `json:"bars"`
}

// Len returns the number of bars in the series.
func (ps *PriceSeries) Len() int { return len(ps.Bars) }

// Last returns the most recent bar; false on an empty series.
func (ps *PriceSeries) Last() (Bar, bool) {
	if len(ps.Bars) == 0 {
		return Bar{}, false
	}
	return ps.Bars[len(ps.Bars)-1], true
}

// Closes extracts the close column.
func (ps *PriceSeries) Closes() []float64 {
	out := make([]float64, len(ps.Bars))
	for i, b := range ps.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts the volume column.
func (ps *PriceSeries) Volumes() []float64 {
	out := make([]float64, len(ps.Bars))
	for i, b := range ps.Bars {
		out[i] = b.Vol
	}
	return out
}

// Trade is one executed market trade reported by the data source.
type Trade struct {
	Symbol string    `json:"symbol"`
	Ts     time.Time `json:"ts"`
	Price  float64   `json:"price"`
	Size   float64   `json:"size"`
	Side   string    `json:"side"`
}

// Action is the directional decision carried by a Signal or an order.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Signal is the scored output of the signal engine for one series snapshot.
// Strength is always in [-1, 1]; sign is direction, magnitude is conviction.
type Signal struct {
	Symbol     string             `json:"symbol"`
	Action     Action             `json:"action"`
	Strength   float64            `json:"strength"`
	Price      float64            `json:"price"`
	Ts         int64              `json:"ts"`
	Indicators map[string]float64 `json:"indicators"`
	Sentiment  *float64           `json:"sentiment,omitempty"`
}

// Position mirrors brokerage-side position state. The brokerage is the single
// source of truth; positions are never cached beyond one read.
type Position struct {
	Symbol       string  `json:"symbol"`
	Qty          float64 `json:"qty"`
	EntryPrice   float64 `json:"entry_price"`
	CurrentPrice float64 `json:"current_price"`
	PnL          float64 `json:"unrealized_pl"`
	PnLPct       float64 `json:"unrealized_plpc"`
}

// Notional is the current market value of the position.
func (p *Position) Notional() float64 { return p.Qty * p.CurrentPrice }

// OrderType distinguishes market and limit orders.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderRequest describes an order before submission. RefPrice carries the
// market price the caller acted on; market orders have no limit price, so
// pre-trade cost checks use it instead.
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Side       Action    `json:"side"`
	Qty        float64   `json:"qty"`
	Type       OrderType `json:"type"`
	LimitPrice float64   `json:"limit_price,omitempty"`
	RefPrice   float64   `json:"ref_price,omitempty"`
	Tag        string    `json:"tag,omitempty"`
}

// OrderResult is the brokerage acknowledgment of a submitted (or simulated)
// order. It is discarded after use; no local order store is authoritative.
type OrderResult struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      Action    `json:"side"`
	Qty       float64   `json:"qty"`
	FillPrice float64   `json:"fill_price"`
	Status    string    `json:"status"`
	FilledAt  time.Time `json:"filled_at"`
	Simulated bool      `json:"simulated"`
}

// Account is a point-in-time read of brokerage account state.
type Account struct {
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	BuyingPower float64 `json:"buying_power"`
}

// Clock reports market session state for session-bound assets.
type Clock struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// AssetClass selects the configuration profile a symbol trades under.
type AssetClass string

const (
	AssetCrypto AssetClass = "crypto"
	AssetEquity AssetClass = "equity"
)

// BotState is the controller lifecycle state.
type BotState string

const (
	StateStopped  BotState = "stopped"
	StateStarting BotState = "starting"
	StateRunning  BotState = "running"
	StateStopping BotState = "stopping"
	StateError    BotState = "error"
)

// SymbolOutcome records what one cycle did for one symbol.
type SymbolOutcome struct {
	Symbol string       `json:"symbol"`
	Signal *Signal      `json:"signal,omitempty"`
	Order  *OrderResult `json:"order,omitempty"`
	Exit   *OrderResult `json:"exit,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// CycleSummary is the structured result of one full pass over the universe.
type CycleSummary struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Symbols    int             `json:"symbols"`
	Signals    int             `json:"signals"`
	Orders     int             `json:"orders"`
	Failures   int             `json:"failures"`
	Outcomes   []SymbolOutcome `json:"outcomes"`
}

// BotStatus is the controller snapshot exposed on the control surface.
type BotStatus struct {
	State      BotState  `json:"state"`
	TestMode   bool      `json:"test_mode"`
	Universe   []string  `json:"universe"`
	Cycles     int64     `json:"cycles"`
	LastCycle  time.Time `json:"last_cycle,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}
