package interfaces

import (
	"context"

	"github.com/lacymorrow/trade/internal/types"
)

// Broker is the brokerage port: market data, account state, and order
// submission. Implementations must be safe for concurrent use.
type Broker interface {
	Bars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error)
	RecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error)
	TradableSymbols(ctx context.Context, class types.AssetClass) ([]string, error)
	Clock(ctx context.Context) (types.Clock, error)
	Account(ctx context.Context) (types.Account, error)
	Position(ctx context.Context, symbol string) (*types.Position, error)
	Positions(ctx context.Context) ([]types.Position, error)
	SubmitOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error)
	CancelOpenOrders(ctx context.Context) error
}
