// Package alpaca implements the brokerage port against the Alpaca REST API.
package alpaca

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lacymorrow/trade/internal/api"
	"github.com/lacymorrow/trade/internal/interfaces"
	"github.com/lacymorrow/trade/internal/logger"
	"github.com/lacymorrow/trade/internal/types"
)

const (
	defaultBaseURL = "https://paper-api.alpaca.markets"
	defaultDataURL = "https://data.alpaca.markets"
)

// Params configures the Alpaca client. Mode TEST simulates order fills
// locally; everything else still hits the real API for data and account
// state.
type Params struct {
	Mode      string // TEST or LIVE
	APIKey    string
	APISecret string
	BaseURL   string
	DataURL   string
	Timeout   time.Duration
}

// Client talks to the Alpaca trading and market data APIs.
type Client struct {
	trading *api.Client
	data    *api.Client
	params  Params
	simSeq  atomic.Int64
}

var _ interfaces.Broker = (*Client)(nil)

// NewClient creates an Alpaca client from params. Credentials are required
// even in TEST mode since market data reads are always real.
func NewClient(params Params) (*Client, error) {
	if params.APIKey == "" || params.APISecret == "" {
		return nil, fmt.Errorf("alpaca: missing API credentials")
	}
	if params.BaseURL == "" {
		params.BaseURL = defaultBaseURL
	}
	if params.DataURL == "" {
		params.DataURL = defaultDataURL
	}
	if params.Timeout == 0 {
		params.Timeout = 30 * time.Second
	}

	opts := func(base string) []api.ClientOption {
		return []api.ClientOption{
			api.WithBaseURL(base),
			api.WithTimeout(params.Timeout),
			api.WithHeader("APCA-API-KEY-ID", params.APIKey),
			api.WithHeader("APCA-API-SECRET-KEY", params.APISecret),
			api.WithLogging(logger.IsDebugEnabled()),
		}
	}

	return &Client{
		trading: api.NewClient(opts(params.BaseURL)...),
		data:    api.NewClient(opts(params.DataURL)...),
		params:  params,
	}, nil
}

// TestMode reports whether order fills are simulated.
func (c *Client) TestMode() bool {
	return strings.EqualFold(c.params.Mode, "TEST")
}

// isCrypto matches Alpaca's crypto pair convention (BTC/USD).
func isCrypto(symbol string) bool {
	return strings.Contains(symbol, "/")
}

type barPayload struct {
	T string  `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

func (b barPayload) toBar() (types.Bar, error) {
	ts, err := time.Parse(time.RFC3339, b.T)
	if err != nil {
		return types.Bar{}, fmt.Errorf("alpaca: bad bar timestamp %q: %w", b.T, err)
	}
	return types.Bar{
		Ts:    ts.Unix(),
		Open:  b.O,
		High:  b.H,
		Low:   b.L,
		Close: b.C,
		Vol:   b.V,
	}, nil
}

// Bars fetches up to limit bars for one symbol. Results are returned in
// time-ascending order.
func (c *Client) Bars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error) {
	var payload []barPayload

	if isCrypto(symbol) {
		q := url.Values{}
		q.Set("symbols", symbol)
		q.Set("timeframe", timeframe)
		q.Set("limit", strconv.Itoa(limit))
		resp, err := c.data.GET(ctx, "/v1beta3/crypto/us/bars?"+q.Encode())
		if err != nil {
			return nil, err
		}
		var out struct {
			Bars map[string][]barPayload `json:"bars"`
		}
		if err := resp.ParseJSON(&out); err != nil {
			return nil, err
		}
		payload = out.Bars[symbol]
	} else {
		q := url.Values{}
		q.Set("timeframe", timeframe)
		q.Set("limit", strconv.Itoa(limit))
		resp, err := c.data.GET(ctx, "/v2/stocks/"+url.PathEscape(symbol)+"/bars?"+q.Encode())
		if err != nil {
			return nil, err
		}
		var out struct {
			Bars []barPayload `json:"bars"`
		}
		if err := resp.ParseJSON(&out); err != nil {
			return nil, err
		}
		payload = out.Bars
	}

	bars := make([]types.Bar, 0, len(payload))
	for _, p := range payload {
		b, err := p.toBar()
		if err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Ts < bars[j].Ts })
	return bars, nil
}

type tradePayload struct {
	T string  `json:"t"`
	P float64 `json:"p"`
	S float64 `json:"s"`
	K string  `json:"tks"`
}

// RecentTrades fetches the latest executed trades for a crypto symbol.
func (c *Client) RecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	q := url.Values{}
	q.Set("symbols", symbol)
	q.Set("limit", strconv.Itoa(limit))
	resp, err := c.data.GET(ctx, "/v1beta3/crypto/us/trades?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var out struct {
		Trades map[string][]tradePayload `json:"trades"`
	}
	if err := resp.ParseJSON(&out); err != nil {
		return nil, err
	}

	trades := make([]types.Trade, 0, len(out.Trades[symbol]))
	for _, t := range out.Trades[symbol] {
		ts, err := time.Parse(time.RFC3339, t.T)
		if err != nil {
			return nil, fmt.Errorf("alpaca: bad trade timestamp %q: %w", t.T, err)
		}
		side := "buy"
		if t.K == "S" {
			side = "sell"
		}
		trades = append(trades, types.Trade{
			Symbol: symbol,
			Ts:     ts,
			Price:  t.P,
			Size:   t.S,
			Side:   side,
		})
	}
	return trades, nil
}

type assetPayload struct {
	Symbol   string `json:"symbol"`
	Tradable bool   `json:"tradable"`
	Status   string `json:"status"`
}

// TradableSymbols lists active, tradable symbols for the asset class.
func (c *Client) TradableSymbols(ctx context.Context, class types.AssetClass) ([]string, error) {
	assetClass := "us_equity"
	if class == types.AssetCrypto {
		assetClass = "crypto"
	}
	resp, err := c.trading.GET(ctx, "/v2/assets?status=active&asset_class="+assetClass)
	if err != nil {
		return nil, err
	}
	var assets []assetPayload
	if err := resp.ParseJSON(&assets); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.Tradable {
			symbols = append(symbols, a.Symbol)
		}
	}
	return symbols, nil
}

// Clock reads the market session clock.
func (c *Client) Clock(ctx context.Context) (types.Clock, error) {
	resp, err := c.trading.GET(ctx, "/v2/clock")
	if err != nil {
		return types.Clock{}, err
	}
	var out struct {
		IsOpen    bool      `json:"is_open"`
		NextOpen  time.Time `json:"next_open"`
		NextClose time.Time `json:"next_close"`
	}
	if err := resp.ParseJSON(&out); err != nil {
		return types.Clock{}, err
	}
	return types.Clock{IsOpen: out.IsOpen, NextOpen: out.NextOpen, NextClose: out.NextClose}, nil
}

// Alpaca returns numeric account and position fields as JSON strings.
type accountPayload struct {
	Equity      string `json:"equity"`
	Cash        string `json:"cash"`
	BuyingPower string `json:"buying_power"`
}

func parseFloat(field, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("alpaca: bad %s %q: %w", field, s, err)
	}
	return v, nil
}

// Account reads current account equity, cash, and buying power.
func (c *Client) Account(ctx context.Context) (types.Account, error) {
	resp, err := c.trading.GET(ctx, "/v2/account")
	if err != nil {
		return types.Account{}, err
	}
	var p accountPayload
	if err := resp.ParseJSON(&p); err != nil {
		return types.Account{}, err
	}
	var acct types.Account
	if acct.Equity, err = parseFloat("equity", p.Equity); err != nil {
		return types.Account{}, err
	}
	if acct.Cash, err = parseFloat("cash", p.Cash); err != nil {
		return types.Account{}, err
	}
	if acct.BuyingPower, err = parseFloat("buying_power", p.BuyingPower); err != nil {
		return types.Account{}, err
	}
	return acct, nil
}

type positionPayload struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
	CurrentPrice  string `json:"current_price"`
	UnrealizedPL  string `json:"unrealized_pl"`
	UnrealizedPct string `json:"unrealized_plpc"`
}

func (p positionPayload) toPosition() (types.Position, error) {
	var pos types.Position
	var err error
	pos.Symbol = p.Symbol
	if pos.Qty, err = parseFloat("qty", p.Qty); err != nil {
		return pos, err
	}
	if pos.EntryPrice, err = parseFloat("avg_entry_price", p.AvgEntryPrice); err != nil {
		return pos, err
	}
	if pos.CurrentPrice, err = parseFloat("current_price", p.CurrentPrice); err != nil {
		return pos, err
	}
	if pos.PnL, err = parseFloat("unrealized_pl", p.UnrealizedPL); err != nil {
		return pos, err
	}
	if pos.PnLPct, err = parseFloat("unrealized_plpc", p.UnrealizedPct); err != nil {
		return pos, err
	}
	return pos, nil
}

// positionSymbol converts a crypto pair to Alpaca's position symbol form
// (BTC/USD is held as BTCUSD).
func positionSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// Position reads the open position for one symbol; nil when flat. Alpaca
// answers 404 for symbols with no position, which is not an error here.
func (c *Client) Position(ctx context.Context, symbol string) (*types.Position, error) {
	resp, err := c.trading.GET(ctx, "/v2/positions/"+url.PathEscape(positionSymbol(symbol)))
	if err != nil {
		if strings.Contains(err.Error(), "HTTP 404") {
			return nil, nil
		}
		return nil, err
	}
	var p positionPayload
	if err := resp.ParseJSON(&p); err != nil {
		return nil, err
	}
	pos, err := p.toPosition()
	if err != nil {
		return nil, err
	}
	pos.Symbol = symbol
	return &pos, nil
}

// Positions lists all open positions.
func (c *Client) Positions(ctx context.Context) ([]types.Position, error) {
	resp, err := c.trading.GET(ctx, "/v2/positions")
	if err != nil {
		return nil, err
	}
	var payload []positionPayload
	if err := resp.ParseJSON(&payload); err != nil {
		return nil, err
	}
	positions := make([]types.Position, 0, len(payload))
	for _, p := range payload {
		pos, err := p.toPosition()
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

type orderPayload struct {
	ID             string `json:"id"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Qty            string `json:"qty"`
	FilledQty      string `json:"filled_qty"`
	FilledAvgPrice string `json:"filled_avg_price"`
	Status         string `json:"status"`
	FilledAt       string `json:"filled_at"`
}

// SubmitOrder places an order. In TEST mode no order reaches the brokerage;
// the fill is simulated at the latest traded price.
func (c *Client) SubmitOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	if c.TestMode() {
		return c.simulateFill(ctx, req)
	}

	body := map[string]any{
		"symbol":        req.Symbol,
		"side":          string(req.Side),
		"qty":           strconv.FormatFloat(req.Qty, 'f', -1, 64),
		"type":          string(req.Type),
		"time_in_force": "gtc",
	}
	if req.Type == types.OrderLimit {
		body["limit_price"] = strconv.FormatFloat(req.LimitPrice, 'f', -1, 64)
	}
	if req.Tag != "" {
		body["client_order_id"] = req.Tag
	}

	resp, err := c.trading.POST(ctx, "/v2/orders", body)
	if err != nil {
		return types.OrderResult{}, err
	}
	var p orderPayload
	if err := resp.ParseJSON(&p); err != nil {
		return types.OrderResult{}, err
	}

	result := types.OrderResult{
		OrderID: p.ID,
		Symbol:  req.Symbol,
		Side:    types.Action(p.Side),
		Status:  p.Status,
	}
	if result.Qty, err = parseFloat("qty", p.Qty); err != nil {
		return types.OrderResult{}, err
	}
	if p.FilledAvgPrice != "" {
		if result.FillPrice, err = parseFloat("filled_avg_price", p.FilledAvgPrice); err != nil {
			return types.OrderResult{}, err
		}
	}
	if p.FilledAt != "" {
		if t, err := time.Parse(time.RFC3339, p.FilledAt); err == nil {
			result.FilledAt = t
		}
	}
	return result, nil
}

// simulateFill builds an immediate fill at the most recent observable price.
func (c *Client) simulateFill(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	price := req.LimitPrice
	if price == 0 {
		p, err := c.latestPrice(ctx, req.Symbol)
		if err != nil {
			return types.OrderResult{}, fmt.Errorf("alpaca: simulated fill price lookup: %w", err)
		}
		price = p
	}
	id := fmt.Sprintf("SIM-%d", c.simSeq.Add(1))
	logger.Info(ctx, "simulated order fill",
		"orderId", id,
		"symbol", req.Symbol,
		"side", req.Side,
		"qty", req.Qty,
		"price", price)
	return types.OrderResult{
		OrderID:   id,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Qty:       req.Qty,
		FillPrice: price,
		Status:    "filled",
		FilledAt:  time.Now().UTC(),
		Simulated: true,
	}, nil
}

func (c *Client) latestPrice(ctx context.Context, symbol string) (float64, error) {
	if isCrypto(symbol) {
		trades, err := c.RecentTrades(ctx, symbol, 1)
		if err == nil && len(trades) > 0 {
			return trades[len(trades)-1].Price, nil
		}
	}
	bars, err := c.Bars(ctx, symbol, "1Min", 1)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("no recent price for %s", symbol)
	}
	return bars[len(bars)-1].Close, nil
}

// CancelOpenOrders cancels every open order on the account. In TEST mode
// there is nothing at the brokerage to cancel.
func (c *Client) CancelOpenOrders(ctx context.Context) error {
	if c.TestMode() {
		logger.Debug(ctx, "test mode, no open orders to cancel")
		return nil
	}
	_, err := c.trading.DELETE(ctx, "/v2/orders")
	return err
}
