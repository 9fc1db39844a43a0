package data

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lacymorrow/trade/internal/store"
	"github.com/lacymorrow/trade/internal/types"
)

type fakeBroker struct {
	barCalls   int
	bars       []types.Bar
	barsErr    error
	trades     []types.Trade
	symbols    []string
	symbolsErr error
}

func (f *fakeBroker) Bars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error) {
	f.barCalls++
	return f.bars, f.barsErr
}

func (f *fakeBroker) RecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	return f.trades, nil
}

func (f *fakeBroker) TradableSymbols(ctx context.Context, class types.AssetClass) ([]string, error) {
	return f.symbols, f.symbolsErr
}

func (f *fakeBroker) Clock(ctx context.Context) (types.Clock, error) { return types.Clock{}, nil }
func (f *fakeBroker) Account(ctx context.Context) (types.Account, error) {
	return types.Account{}, nil
}
func (f *fakeBroker) Position(ctx context.Context, symbol string) (*types.Position, error) {
	return nil, nil
}
func (f *fakeBroker) Positions(ctx context.Context) ([]types.Position, error) { return nil, nil }
func (f *fakeBroker) SubmitOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	return types.OrderResult{}, nil
}
func (f *fakeBroker) CancelOpenOrders(ctx context.Context) error { return nil }

func testBars(n int) []types.Bar {
	bars := make([]types.Bar, n)
	for i := range bars {
		bars[i] = types.Bar{Ts: int64(i * 60), Open: 100, High: 101, Low: 99, Close: 100, Vol: 10}
	}
	return bars
}

func TestGetPriceSeriesCachesResult(t *testing.T) {
	broker := &fakeBroker{bars: testBars(5)}
	engine := NewEngine(broker, store.DefaultConfig())

	for i := 0; i < 3; i++ {
		series, err := engine.GetPriceSeries(context.Background(), "BTC/USD", "15Min", 5)
		if err != nil {
			t.Fatalf("GetPriceSeries: %v", err)
		}
		if series.Len() != 5 {
			t.Fatalf("expected 5 bars, got %d", series.Len())
		}
	}
	if broker.barCalls != 1 {
		t.Errorf("expected 1 remote fetch, got %d", broker.barCalls)
	}
}

func TestGetPriceSeriesCacheKeyIncludesParams(t *testing.T) {
	broker := &fakeBroker{bars: testBars(5)}
	engine := NewEngine(broker, store.DefaultConfig())
	ctx := context.Background()

	engine.GetPriceSeries(ctx, "BTC/USD", "15Min", 5)
	engine.GetPriceSeries(ctx, "BTC/USD", "1Min", 5)
	engine.GetPriceSeries(ctx, "BTC/USD", "15Min", 10)
	engine.GetPriceSeries(ctx, "ETH/USD", "15Min", 5)

	if broker.barCalls != 4 {
		t.Errorf("expected 4 remote fetches for distinct params, got %d", broker.barCalls)
	}
}

func TestGetPriceSeriesCacheExpires(t *testing.T) {
	broker := &fakeBroker{bars: testBars(5)}
	engine := NewEngine(broker, store.DefaultConfig())

	now := time.Now()
	engine.cache.now = func() time.Time { return now }

	ctx := context.Background()
	engine.GetPriceSeries(ctx, "BTC/USD", "15Min", 5)
	engine.GetPriceSeries(ctx, "BTC/USD", "15Min", 5)
	if broker.barCalls != 1 {
		t.Fatalf("expected cache hit before TTL, got %d fetches", broker.barCalls)
	}

	now = now.Add(engine.cache.ttl + time.Second)
	engine.GetPriceSeries(ctx, "BTC/USD", "15Min", 5)
	if broker.barCalls != 2 {
		t.Errorf("expected refetch after TTL, got %d fetches", broker.barCalls)
	}
}

func TestClearCacheForcesRefetch(t *testing.T) {
	broker := &fakeBroker{bars: testBars(5)}
	engine := NewEngine(broker, store.DefaultConfig())
	ctx := context.Background()

	engine.GetPriceSeries(ctx, "BTC/USD", "15Min", 5)
	engine.ClearCache()
	engine.GetPriceSeries(ctx, "BTC/USD", "15Min", 5)

	if broker.barCalls != 2 {
		t.Errorf("expected refetch after clear, got %d fetches", broker.barCalls)
	}
}

func TestGetPriceSeriesFetchError(t *testing.T) {
	broker := &fakeBroker{barsErr: fmt.Errorf("connection reset")}
	engine := NewEngine(broker, store.DefaultConfig())

	_, err := engine.GetPriceSeries(context.Background(), "BTC/USD", "15Min", 5)
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %T: %v", err, err)
	}
	if fe.Symbol != "BTC/USD" {
		t.Errorf("FetchError symbol = %q", fe.Symbol)
	}
}

func TestGetPriceSeriesEmptyIsError(t *testing.T) {
	broker := &fakeBroker{bars: nil}
	engine := NewEngine(broker, store.DefaultConfig())

	_, err := engine.GetPriceSeries(context.Background(), "BTC/USD", "15Min", 5)
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError on empty payload, got %v", err)
	}
}

func TestNormalizeSortsAndCollapsesDuplicates(t *testing.T) {
	bars := []types.Bar{
		{Ts: 120, Close: 3},
		{Ts: 60, Close: 1},
		{Ts: 120, Close: 4},
		{Ts: 180, Close: 5},
	}
	out := normalize(bars)
	if len(out) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(out))
	}
	if out[0].Ts != 60 || out[1].Ts != 120 || out[2].Ts != 180 {
		t.Errorf("bars not ascending: %+v", out)
	}
	if out[1].Close != 4 {
		t.Errorf("duplicate collapse should keep last observation, got close %v", out[1].Close)
	}
}

func TestTradableSymbolsCapped(t *testing.T) {
	broker := &fakeBroker{symbols: []string{"A", "B", "C", "D"}}
	cfg := store.DefaultConfig()
	cfg.Universe.MaxN = 2
	engine := NewEngine(broker, cfg)

	symbols, err := engine.TradableSymbols(context.Background())
	if err != nil {
		t.Fatalf("TradableSymbols: %v", err)
	}
	if len(symbols) != 2 {
		t.Errorf("expected cap at 2 symbols, got %d", len(symbols))
	}
}

func TestRateLimiterBlocksOverBudget(t *testing.T) {
	rl := newRateLimiter(2)
	base := time.Now()
	now := base
	rl.now = func() time.Time { return now }

	ctx := context.Background()
	if err := rl.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := rl.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	// Budget exhausted: a cancelled context must unblock the waiter.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Acquire(cancelled); err == nil {
		t.Fatal("expected context error while budget exhausted")
	}

	// Once the window rolls past the oldest stamp the slot frees up.
	now = base.Add(61 * time.Second)
	if err := rl.Acquire(ctx); err != nil {
		t.Fatalf("expected slot after window rolled, got %v", err)
	}
}
