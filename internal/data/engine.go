// Package data serves normalized price series with caching and rate limiting
// in front of the brokerage data feed.
package data

import (
	"context"
	"fmt"
	"sort"

	"github.com/lacymorrow/trade/internal/interfaces"
	"github.com/lacymorrow/trade/internal/logger"
	"github.com/lacymorrow/trade/internal/metrics"
	"github.com/lacymorrow/trade/internal/store"
	"github.com/lacymorrow/trade/internal/trace"
	"github.com/lacymorrow/trade/internal/types"
)

// Engine fetches bars and trades through the broker, caches series per
// symbol/timeframe/limit, and keeps remote calls inside the rate budget.
type Engine struct {
	broker  interfaces.Broker
	cfg     *store.Config
	cache   *seriesCache
	limiter *rateLimiter
}

var _ interfaces.DataEngine = (*Engine)(nil)

// NewEngine creates a data engine using the active profile's cache TTL and
// the configured rate budget.
func NewEngine(broker interfaces.Broker, cfg *store.Config) *Engine {
	return &Engine{
		broker:  broker,
		cfg:     cfg,
		cache:   newSeriesCache(cfg.ActiveProfile().TTL()),
		limiter: newRateLimiter(cfg.Data.RatePerMinute),
	}
}

func cacheKey(symbol, timeframe string, limit int) string {
	return fmt.Sprintf("%s|%s|%d", symbol, timeframe, limit)
}

// GetPriceSeries returns a normalized series for symbol, serving from cache
// when a fresh entry exists.
func (e *Engine) GetPriceSeries(ctx context.Context, symbol, timeframe string, limit int) (*types.PriceSeries, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "data.GetPriceSeries", symbol)
	defer span.End()

	key := cacheKey(symbol, timeframe, limit)
	if v, ok := e.cache.get(key); ok {
		metrics.CacheHits.Inc()
		logger.Debug(ctx, "price series cache hit", "symbol", symbol, "timeframe", timeframe)
		return v.(*types.PriceSeries), nil
	}
	metrics.CacheMisses.Inc()

	if err := e.limiter.Acquire(ctx); err != nil {
		return nil, &types.FetchError{Symbol: symbol, Op: "bars", Err: err}
	}
	metrics.RemoteFetches.WithLabelValues(symbol, "bars").Inc()

	bars, err := e.broker.Bars(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, &types.FetchError{Symbol: symbol, Op: "bars", Err: err}
	}
	if len(bars) == 0 {
		return nil, &types.FetchError{Symbol: symbol, Op: "bars", Err: fmt.Errorf("no bars returned")}
	}

	series := &types.PriceSeries{
		Symbol:    symbol,
		Timeframe: timeframe,
		Bars:      normalize(bars),
	}
	e.cache.put(key, series)
	logger.Debug(ctx, "price series fetched", "symbol", symbol, "bars", series.Len())
	return series, nil
}

// normalize sorts ascending by timestamp and collapses duplicate timestamps,
// last observation wins.
func normalize(bars []types.Bar) []types.Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Ts < bars[j].Ts })
	out := bars[:0]
	for _, b := range bars {
		if len(out) > 0 && out[len(out)-1].Ts == b.Ts {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// GetRecentTrades returns recent executed trades for symbol. Trades are not
// cached since they inform only point-in-time checks.
func (e *Engine) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "data.GetRecentTrades", symbol)
	defer span.End()

	if err := e.limiter.Acquire(ctx); err != nil {
		return nil, &types.FetchError{Symbol: symbol, Op: "trades", Err: err}
	}
	metrics.RemoteFetches.WithLabelValues(symbol, "trades").Inc()

	trades, err := e.broker.RecentTrades(ctx, symbol, limit)
	if err != nil {
		return nil, &types.FetchError{Symbol: symbol, Op: "trades", Err: err}
	}
	return trades, nil
}

// TradableSymbols resolves the tradable universe for the configured asset
// class, capped at universe.max_n when set.
func (e *Engine) TradableSymbols(ctx context.Context) ([]string, error) {
	ctx, span := trace.StartSpan(ctx, "data.TradableSymbols")
	defer span.End()

	if err := e.limiter.Acquire(ctx); err != nil {
		return nil, &types.FetchError{Op: "symbols", Err: err}
	}
	metrics.RemoteFetches.WithLabelValues("", "symbols").Inc()

	symbols, err := e.broker.TradableSymbols(ctx, e.cfg.Class())
	if err != nil {
		return nil, &types.FetchError{Op: "symbols", Err: err}
	}
	if n := e.cfg.Universe.MaxN; n > 0 && len(symbols) > n {
		symbols = symbols[:n]
	}
	return symbols, nil
}

// ClearCache drops every cached series.
func (e *Engine) ClearCache() {
	e.cache.clear()
	logger.Debug(context.Background(), "price series cache cleared")
}
