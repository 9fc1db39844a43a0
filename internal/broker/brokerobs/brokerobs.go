package brokerobs

import (
	"context"

	"github.com/lacymorrow/trade/internal/interfaces"
	"github.com/lacymorrow/trade/internal/logger"
	"github.com/lacymorrow/trade/internal/trace"
	"github.com/lacymorrow/trade/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

// Bars fetches bars with observability
func (ob *observableBroker) Bars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "broker.Bars", symbol)
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching bars", "symbol", symbol, "timeframe", timeframe, "limit", limit)

	bars, err := ob.broker.Bars(ctx, symbol, timeframe, limit)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch bars", err, "symbol", symbol, "timeframe", timeframe)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Bars fetched successfully", "symbol", symbol, "count", len(bars))
	return bars, nil
}

// RecentTrades fetches trades with observability
func (ob *observableBroker) RecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "broker.RecentTrades", symbol)
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching recent trades", "symbol", symbol, "limit", limit)

	trades, err := ob.broker.RecentTrades(ctx, symbol, limit)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch trades", err, "symbol", symbol)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Trades fetched successfully", "symbol", symbol, "count", len(trades))
	return trades, nil
}

// TradableSymbols lists symbols with observability
func (ob *observableBroker) TradableSymbols(ctx context.Context, class types.AssetClass) ([]string, error) {
	ctx, span := trace.StartSpan(ctx, "broker.TradableSymbols")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Listing tradable symbols", "class", class)

	symbols, err := ob.broker.TradableSymbols(ctx, class)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to list tradable symbols", err, "class", class)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Tradable symbols listed", "class", class, "count", len(symbols))
	return symbols, nil
}

// Clock reads the market clock with observability
func (ob *observableBroker) Clock(ctx context.Context) (types.Clock, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Clock")
	defer span.End()

	clock, err := ob.broker.Clock(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to read market clock", err)
		return types.Clock{}, err
	}

	logger.DebugSkip(ctx, 1, "Market clock read", "isOpen", clock.IsOpen)
	return clock, nil
}

// Account reads account state with observability
func (ob *observableBroker) Account(ctx context.Context) (types.Account, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Account")
	defer span.End()

	acct, err := ob.broker.Account(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to read account", err)
		return types.Account{}, err
	}

	logger.DebugSkip(ctx, 1, "Account read", "equity", acct.Equity, "buyingPower", acct.BuyingPower)
	return acct, nil
}

// Position reads one position with observability
func (ob *observableBroker) Position(ctx context.Context, symbol string) (*types.Position, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "broker.Position", symbol)
	defer span.End()

	pos, err := ob.broker.Position(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to read position", err, "symbol", symbol)
		return nil, err
	}

	if pos != nil {
		logger.DebugSkip(ctx, 1, "Position read", "symbol", symbol, "qty", pos.Qty)
	} else {
		logger.DebugSkip(ctx, 1, "No open position", "symbol", symbol)
	}
	return pos, nil
}

// Positions lists positions with observability
func (ob *observableBroker) Positions(ctx context.Context) ([]types.Position, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Positions")
	defer span.End()

	positions, err := ob.broker.Positions(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to list positions", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Positions listed", "count", len(positions))
	return positions, nil
}

// SubmitOrder places an order with observability
func (ob *observableBroker) SubmitOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "broker.SubmitOrder", req.Symbol)
	defer span.End()

	logger.InfoSkip(ctx, 1, "Submitting order",
		"symbol", req.Symbol,
		"side", req.Side,
		"qty", req.Qty,
		"tag", req.Tag,
	)

	result, err := ob.broker.SubmitOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to submit order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"qty", req.Qty,
		)
		return types.OrderResult{}, err
	}

	logger.InfoSkip(ctx, 1, "Order submitted successfully",
		"symbol", req.Symbol,
		"order_id", result.OrderID,
		"status", result.Status,
		"simulated", result.Simulated,
	)
	return result, nil
}

// CancelOpenOrders cancels open orders with observability
func (ob *observableBroker) CancelOpenOrders(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "broker.CancelOpenOrders")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Cancelling open orders")

	if err := ob.broker.CancelOpenOrders(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to cancel open orders", err)
		return err
	}

	logger.InfoSkip(ctx, 1, "Open orders cancelled")
	return nil
}
