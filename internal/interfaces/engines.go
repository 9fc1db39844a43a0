package interfaces

import (
	"context"

	"github.com/lacymorrow/trade/internal/types"
)

// DataEngine serves normalized price series with caching and rate limiting in
// front of the brokerage data feed.
type DataEngine interface {
	GetPriceSeries(ctx context.Context, symbol, timeframe string, limit int) (*types.PriceSeries, error)
	GetRecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error)
	TradableSymbols(ctx context.Context) ([]string, error)
	ClearCache()
}

// SignalEngine converts a price series (plus optional sentiment) into a
// bounded trading signal. A nil signal with nil error means the series was too
// short to score, which is distinct from a hold.
type SignalEngine interface {
	Generate(ctx context.Context, symbol string, series *types.PriceSeries, sentiment *float64) (*types.Signal, error)
}

// TradeEngine sizes, validates, and executes orders, and evaluates exit rules
// against open positions.
type TradeEngine interface {
	Execute(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error)
	PositionFor(ctx context.Context, symbol string) (*types.Position, error)
	SizeFor(ctx context.Context, symbol string, price float64) (float64, error)
	EvaluateExits(ctx context.Context, symbol string) (*types.OrderResult, error)
}

// Controller owns the bot lifecycle and the periodic analysis cycle.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	RunOnce(ctx context.Context) (*types.CycleSummary, error)
	Status() types.BotStatus
}
