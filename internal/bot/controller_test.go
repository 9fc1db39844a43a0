package bot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lacymorrow/trade/internal/store"
	"github.com/lacymorrow/trade/internal/types"
)

type fakeData struct {
	series     map[string]*types.PriceSeries
	fetchErrs  map[string]int // remaining failures per symbol
	fetchCalls map[string]int
	symbols    []string
}

func newFakeData() *fakeData {
	return &fakeData{
		series:     make(map[string]*types.PriceSeries),
		fetchErrs:  make(map[string]int),
		fetchCalls: make(map[string]int),
	}
}

func (f *fakeData) GetPriceSeries(ctx context.Context, symbol, timeframe string, limit int) (*types.PriceSeries, error) {
	f.fetchCalls[symbol]++
	if f.fetchErrs[symbol] > 0 {
		f.fetchErrs[symbol]--
		return nil, &types.FetchError{Symbol: symbol, Op: "bars", Err: fmt.Errorf("unavailable")}
	}
	return f.series[symbol], nil
}

func (f *fakeData) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	return nil, nil
}

func (f *fakeData) TradableSymbols(ctx context.Context) ([]string, error) {
	if f.symbols == nil {
		return nil, fmt.Errorf("assets endpoint down")
	}
	return f.symbols, nil
}

func (f *fakeData) ClearCache() {}

type fakeSignals struct {
	signals map[string]*types.Signal
}

func (f *fakeSignals) Generate(ctx context.Context, symbol string, series *types.PriceSeries, sentiment *float64) (*types.Signal, error) {
	return f.signals[symbol], nil
}

type fakeTrader struct {
	positions map[string]*types.Position
	executed  []types.OrderRequest
	exits     map[string]*types.OrderResult
}

func newFakeTrader() *fakeTrader {
	return &fakeTrader{
		positions: make(map[string]*types.Position),
		exits:     make(map[string]*types.OrderResult),
	}
}

func (f *fakeTrader) Execute(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	f.executed = append(f.executed, req)
	return &types.OrderResult{
		OrderID: fmt.Sprintf("SIM-%d", len(f.executed)),
		Symbol:  req.Symbol,
		Side:    req.Side,
		Qty:     req.Qty,
		Status:  "filled",
	}, nil
}

func (f *fakeTrader) PositionFor(ctx context.Context, symbol string) (*types.Position, error) {
	return f.positions[symbol], nil
}

func (f *fakeTrader) SizeFor(ctx context.Context, symbol string, price float64) (float64, error) {
	return 1, nil
}

func (f *fakeTrader) EvaluateExits(ctx context.Context, symbol string) (*types.OrderResult, error) {
	return f.exits[symbol], nil
}

type fakeBroker struct {
	cancelled int
}

func (f *fakeBroker) Bars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error) {
	return nil, nil
}
func (f *fakeBroker) RecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	return nil, nil
}
func (f *fakeBroker) TradableSymbols(ctx context.Context, class types.AssetClass) ([]string, error) {
	return nil, nil
}
func (f *fakeBroker) Clock(ctx context.Context) (types.Clock, error)     { return types.Clock{}, nil }
func (f *fakeBroker) Account(ctx context.Context) (types.Account, error) { return types.Account{}, nil }
func (f *fakeBroker) Position(ctx context.Context, symbol string) (*types.Position, error) {
	return nil, nil
}
func (f *fakeBroker) Positions(ctx context.Context) ([]types.Position, error) { return nil, nil }
func (f *fakeBroker) SubmitOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	return types.OrderResult{}, nil
}
func (f *fakeBroker) CancelOpenOrders(ctx context.Context) error {
	f.cancelled++
	return nil
}

func series(symbol string, n int) *types.PriceSeries {
	bars := make([]types.Bar, n)
	for i := range bars {
		bars[i] = types.Bar{Ts: int64(i * 60), Close: 100, Vol: 10}
	}
	return &types.PriceSeries{Symbol: symbol, Timeframe: "15Min", Bars: bars}
}

func testController(cfg *store.Config, data *fakeData, signals *fakeSignals, trader *fakeTrader, broker *fakeBroker) *Controller {
	c := New(cfg, broker, data, signals, trader, nil, nil)
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c
}

func TestRunOnceBuysOnSignal(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Universe.Static = []string{"BTC/USD"}

	data := newFakeData()
	data.series["BTC/USD"] = series("BTC/USD", 100)
	signals := &fakeSignals{signals: map[string]*types.Signal{
		"BTC/USD": {Symbol: "BTC/USD", Action: types.ActionBuy, Strength: 0.7, Price: 100},
	}}
	trader := newFakeTrader()
	c := testController(cfg, data, signals, trader, &fakeBroker{})

	summary, err := c.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Symbols != 1 || summary.Signals != 1 || summary.Orders != 1 || summary.Failures != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if len(trader.executed) != 1 || trader.executed[0].Side != types.ActionBuy {
		t.Errorf("expected one buy, got %+v", trader.executed)
	}
	if trader.executed[0].RefPrice != 100 {
		t.Errorf("entry should carry the signal price for the cost check, got %+v", trader.executed[0])
	}
}

func TestRunOnceSkipsRepeatEntry(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Universe.Static = []string{"BTC/USD"}

	data := newFakeData()
	data.series["BTC/USD"] = series("BTC/USD", 100)
	signals := &fakeSignals{signals: map[string]*types.Signal{
		"BTC/USD": {Symbol: "BTC/USD", Action: types.ActionBuy, Strength: 0.7, Price: 100},
	}}
	trader := newFakeTrader()
	trader.positions["BTC/USD"] = &types.Position{Symbol: "BTC/USD", Qty: 0.5}
	c := testController(cfg, data, signals, trader, &fakeBroker{})

	if _, err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(trader.executed) != 0 {
		t.Errorf("expected no repeat entry while long, got %+v", trader.executed)
	}
}

func TestRunOnceSellsOnlyWhenHolding(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Universe.Static = []string{"BTC/USD", "ETH/USD"}

	data := newFakeData()
	data.series["BTC/USD"] = series("BTC/USD", 100)
	data.series["ETH/USD"] = series("ETH/USD", 100)
	signals := &fakeSignals{signals: map[string]*types.Signal{
		"BTC/USD": {Symbol: "BTC/USD", Action: types.ActionSell, Strength: -0.8, Price: 100},
		"ETH/USD": {Symbol: "ETH/USD", Action: types.ActionSell, Strength: -0.8, Price: 100},
	}}
	trader := newFakeTrader()
	trader.positions["BTC/USD"] = &types.Position{Symbol: "BTC/USD", Qty: 0.5}
	c := testController(cfg, data, signals, trader, &fakeBroker{})

	if _, err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(trader.executed) != 1 {
		t.Fatalf("expected exactly one sell, got %+v", trader.executed)
	}
	if trader.executed[0].Symbol != "BTC/USD" || trader.executed[0].Qty != 0.5 {
		t.Errorf("sell should close the held position, got %+v", trader.executed[0])
	}
}

func TestRunOnceRetriesThenSkipsSymbol(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Universe.Static = []string{"BTC/USD", "ETH/USD"}
	cfg.Data.FetchRetries = 3

	data := newFakeData()
	data.series["ETH/USD"] = series("ETH/USD", 100)
	data.fetchErrs["BTC/USD"] = 10 // fails every attempt
	signals := &fakeSignals{signals: map[string]*types.Signal{
		"ETH/USD": {Symbol: "ETH/USD", Action: types.ActionHold, Strength: 0.1, Price: 100},
	}}
	trader := newFakeTrader()
	c := testController(cfg, data, signals, trader, &fakeBroker{})

	summary, err := c.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("cycle must survive a bad symbol: %v", err)
	}
	if data.fetchCalls["BTC/USD"] != 4 {
		t.Errorf("expected initial attempt plus 3 retries, got %d", data.fetchCalls["BTC/USD"])
	}
	if summary.Failures != 1 {
		t.Errorf("expected 1 failure recorded, got %d", summary.Failures)
	}
	if summary.Outcomes[1].Error != "" {
		t.Errorf("healthy symbol should not carry an error: %+v", summary.Outcomes[1])
	}
}

func TestRunOnceRecoversAfterTransientFailure(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Universe.Static = []string{"BTC/USD"}

	data := newFakeData()
	data.series["BTC/USD"] = series("BTC/USD", 100)
	data.fetchErrs["BTC/USD"] = 2 // succeeds on the third attempt
	signals := &fakeSignals{signals: map[string]*types.Signal{
		"BTC/USD": {Symbol: "BTC/USD", Action: types.ActionHold, Strength: 0, Price: 100},
	}}
	trader := newFakeTrader()
	c := testController(cfg, data, signals, trader, &fakeBroker{})

	summary, err := c.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Failures != 0 {
		t.Errorf("transient failures within budget should not count, got %d", summary.Failures)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Universe.Static = []string{"BTC/USD"}
	cfg.PollSeconds = 3600

	data := newFakeData()
	data.series["BTC/USD"] = series("BTC/USD", 100)
	signals := &fakeSignals{signals: map[string]*types.Signal{}}
	trader := newFakeTrader()
	broker := &fakeBroker{}
	c := New(cfg, broker, data, signals, trader, nil, nil)

	ctx := context.Background()
	if got := c.Status().State; got != types.StateStopped {
		t.Fatalf("initial state = %s", got)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := c.Status().State; got != types.StateRunning {
		t.Fatalf("state after start = %s", got)
	}
	if err := c.Start(ctx); err == nil {
		t.Error("double start must fail")
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := c.Status().State; got != types.StateStopped {
		t.Errorf("state after stop = %s", got)
	}
	if broker.cancelled != 1 {
		t.Errorf("stop must cancel open orders, got %d calls", broker.cancelled)
	}
	if err := c.Stop(ctx); err == nil {
		t.Error("stopping a stopped bot must fail")
	}
}

func TestStartDynamicUniverseFallsBackToStatic(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Universe.Mode = "DYNAMIC"
	cfg.Universe.Static = []string{"BTC/USD"}
	cfg.PollSeconds = 3600

	data := newFakeData() // TradableSymbols errors
	data.series["BTC/USD"] = series("BTC/USD", 100)
	c := New(cfg, &fakeBroker{}, data, &fakeSignals{}, newFakeTrader(), nil, nil)

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start should fall back to static universe: %v", err)
	}
	defer c.Stop(ctx)

	status := c.Status()
	if len(status.Universe) != 1 || status.Universe[0] != "BTC/USD" {
		t.Errorf("universe = %v", status.Universe)
	}
}

func TestStatusSnapshot(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Universe.Static = []string{"BTC/USD"}

	data := newFakeData()
	data.series["BTC/USD"] = series("BTC/USD", 100)
	c := testController(cfg, data, &fakeSignals{}, newFakeTrader(), &fakeBroker{})

	if _, err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	status := c.Status()
	if status.Cycles != 1 {
		t.Errorf("cycles = %d, want 1", status.Cycles)
	}
	if !status.TestMode {
		t.Error("default config runs in test mode")
	}
	if status.LastCycle.IsZero() {
		t.Error("last cycle timestamp not recorded")
	}
}
