// Package trade sizes, validates, and executes orders, and evaluates exit
// rules against open positions.
package trade

import (
	"context"
	"fmt"
	"math"

	"github.com/lacymorrow/trade/internal/interfaces"
	"github.com/lacymorrow/trade/internal/logger"
	"github.com/lacymorrow/trade/internal/metrics"
	"github.com/lacymorrow/trade/internal/store"
	"github.com/lacymorrow/trade/internal/trace"
	"github.com/lacymorrow/trade/internal/tradelog"
	"github.com/lacymorrow/trade/internal/types"
)

// Engine is the execution layer. The brokerage stays the single source of
// truth for positions and account state; nothing here caches either.
type Engine struct {
	broker interfaces.Broker
	cfg    *store.Config
	log    *tradelog.Logger
}

var _ interfaces.TradeEngine = (*Engine)(nil)

// NewEngine creates a trade engine. log may be nil to disable the trade
// journal.
func NewEngine(broker interfaces.Broker, cfg *store.Config, log *tradelog.Logger) *Engine {
	return &Engine{broker: broker, cfg: cfg, log: log}
}

// roundQty rounds the quantity by price magnitude so crypto fractions stay
// meaningful while expensive assets keep coarse lots.
func roundQty(qty, price float64) float64 {
	var places float64
	switch {
	case price >= 100:
		places = 2
	case price >= 10:
		places = 3
	default:
		places = 4
	}
	pow := math.Pow(10, places)
	return math.Floor(qty*pow) / pow
}

// SizeFor computes the order quantity for symbol at price: equity times the
// risk fraction, capped by the per-position and aggregate exposure limits.
func (e *Engine) SizeFor(ctx context.Context, symbol string, price float64) (float64, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "trade.SizeFor", symbol)
	defer span.End()

	if price <= 0 {
		return 0, &types.ValidationError{Symbol: symbol, Reasons: []string{"price must be positive"}}
	}

	acct, err := e.broker.Account(ctx)
	if err != nil {
		return 0, &types.ExecutionError{Symbol: symbol, Err: err}
	}

	notional := acct.Equity * e.cfg.Risk.RiskPct
	if limit := acct.Equity * e.cfg.Risk.MaxPositionPct; notional > limit {
		notional = limit
	}

	// The aggregate cap counts existing exposure against the budget.
	positions, err := e.broker.Positions(ctx)
	if err != nil {
		return 0, &types.ExecutionError{Symbol: symbol, Err: err}
	}
	exposure := 0.0
	for i := range positions {
		exposure += math.Abs(positions[i].Notional())
	}
	budget := acct.Equity*e.cfg.Risk.MaxExposurePct - exposure
	if budget <= 0 {
		return 0, nil
	}
	if notional > budget {
		notional = budget
	}

	qty := roundQty(notional/price, price)
	logger.Debug(ctx, "position sized",
		"symbol", symbol,
		"price", price,
		"equity", acct.Equity,
		"qty", qty)
	return qty, nil
}

// validate runs every pre-trade check. A failure returns ValidationError
// without any brokerage contact for the order itself.
func (e *Engine) validate(ctx context.Context, req types.OrderRequest) error {
	var reasons []string

	if req.Side != types.ActionBuy && req.Side != types.ActionSell {
		reasons = append(reasons, fmt.Sprintf("side must be buy or sell, got %q", req.Side))
	}
	if req.Qty <= 0 {
		reasons = append(reasons, "quantity must be positive")
	}
	profile := e.cfg.ActiveProfile()
	if req.Qty > 0 && req.Qty < profile.MinOrderQty {
		reasons = append(reasons, fmt.Sprintf("quantity %v below minimum %v", req.Qty, profile.MinOrderQty))
	}
	if req.Type == types.OrderLimit && req.LimitPrice <= 0 {
		reasons = append(reasons, "limit order requires a positive limit price")
	}
	if len(reasons) > 0 {
		return &types.ValidationError{Symbol: req.Symbol, Reasons: reasons}
	}

	if profile.CheckMarketOpen {
		clock, err := e.broker.Clock(ctx)
		if err != nil {
			return &types.ExecutionError{Symbol: req.Symbol, Err: err}
		}
		if !clock.IsOpen {
			return &types.ValidationError{Symbol: req.Symbol, Reasons: []string{"market is closed"}}
		}
	}

	if req.Side == types.ActionSell {
		pos, err := e.broker.Position(ctx, req.Symbol)
		if err != nil {
			return &types.ExecutionError{Symbol: req.Symbol, Err: err}
		}
		if pos == nil || pos.Qty < req.Qty {
			held := 0.0
			if pos != nil {
				held = pos.Qty
			}
			return &types.ValidationError{Symbol: req.Symbol, Reasons: []string{
				fmt.Sprintf("sell %v exceeds held quantity %v", req.Qty, held),
			}}
		}
	}

	if req.Side == types.ActionBuy {
		price := req.LimitPrice
		if price <= 0 {
			price = req.RefPrice
		}
		if price <= 0 {
			return &types.ValidationError{Symbol: req.Symbol, Reasons: []string{
				"buy requires a limit or reference price for the cost check",
			}}
		}
		acct, err := e.broker.Account(ctx)
		if err != nil {
			return &types.ExecutionError{Symbol: req.Symbol, Err: err}
		}
		if cost := req.Qty * price; cost > acct.BuyingPower {
			return &types.ValidationError{Symbol: req.Symbol, Reasons: []string{
				fmt.Sprintf("cost %.2f exceeds buying power %.2f", cost, acct.BuyingPower),
			}}
		}
	}
	return nil
}

// Execute validates and submits an order. On brokerage failure the position
// is re-queried so callers never act on assumed state.
func (e *Engine) Execute(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "trade.Execute", req.Symbol)
	defer span.End()

	if err := e.validate(ctx, req); err != nil {
		metrics.RejectedOrders.WithLabelValues(req.Symbol).Inc()
		logger.Warn(ctx, "order rejected",
			"symbol", req.Symbol,
			"side", req.Side,
			"qty", req.Qty,
			"reason", err.Error())
		return nil, err
	}

	result, err := e.broker.SubmitOrder(ctx, req)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(req.Symbol, string(req.Side), "error").Inc()
		if pos, perr := e.broker.Position(ctx, req.Symbol); perr == nil {
			qty := 0.0
			if pos != nil {
				qty = pos.Qty
			}
			logger.Warn(ctx, "position re-queried after failed order", "symbol", req.Symbol, "qty", qty)
		}
		return nil, &types.ExecutionError{Symbol: req.Symbol, Err: err}
	}

	metrics.OrdersTotal.WithLabelValues(req.Symbol, string(req.Side), result.Status).Inc()
	if e.log != nil {
		if err := e.log.AppendFill(result, req.Tag); err != nil {
			logger.Warn(ctx, "trade journal write failed", "error", err)
		}
	}
	return &result, nil
}

// PositionFor reads the open position for symbol straight from the
// brokerage; nil when flat.
func (e *Engine) PositionFor(ctx context.Context, symbol string) (*types.Position, error) {
	pos, err := e.broker.Position(ctx, symbol)
	if err != nil {
		return nil, &types.ExecutionError{Symbol: symbol, Err: err}
	}
	return pos, nil
}

// EvaluateExits checks the open position for symbol against the stop loss
// and take profit ladder and closes what the rules demand. Returns the exit
// order when one fired, nil when the position stands or is flat.
func (e *Engine) EvaluateExits(ctx context.Context, symbol string) (*types.OrderResult, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "trade.EvaluateExits", symbol)
	defer span.End()

	pos, err := e.PositionFor(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if pos == nil || pos.Qty == 0 {
		return nil, nil
	}
	if pos.EntryPrice <= 0 {
		return nil, nil
	}

	change := (pos.CurrentPrice - pos.EntryPrice) / pos.EntryPrice

	// Stop loss closes the whole position.
	if change <= -e.cfg.Exits.StopLossPct {
		logger.Info(ctx, "stop loss triggered",
			"symbol", symbol,
			"entry", pos.EntryPrice,
			"current", pos.CurrentPrice,
			"changePct", change*100)
		return e.closeQty(ctx, pos, pos.Qty, "stop_loss")
	}

	// Take profits ladder out in equal fractions; the last rung closes the
	// remainder so no dust is left behind.
	rungs := e.cfg.Exits.TakeProfitPcts
	for i := len(rungs) - 1; i >= 0; i-- {
		if change < rungs[i] {
			continue
		}
		qty := pos.Qty
		if i < len(rungs)-1 {
			qty = roundQty(pos.Qty/float64(len(rungs)-i), pos.CurrentPrice)
			if qty <= 0 {
				qty = pos.Qty
			}
		}
		logger.Info(ctx, "take profit triggered",
			"symbol", symbol,
			"rung", i,
			"changePct", change*100,
			"qty", qty)
		return e.closeQty(ctx, pos, qty, fmt.Sprintf("take_profit_%d", i))
	}
	return nil, nil
}

// closeQty submits the closing order through the validated path.
func (e *Engine) closeQty(ctx context.Context, pos *types.Position, qty float64, tag string) (*types.OrderResult, error) {
	side := types.ActionSell
	if pos.Qty < 0 {
		side = types.ActionBuy
		qty = math.Abs(qty)
	}
	return e.Execute(ctx, types.OrderRequest{
		Symbol:   pos.Symbol,
		Side:     side,
		Qty:      qty,
		Type:     types.OrderMarket,
		RefPrice: pos.CurrentPrice,
		Tag:      tag,
	})
}
