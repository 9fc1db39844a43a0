// Package bot owns the lifecycle state machine and the periodic analysis
// cycle over the trading universe.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lacymorrow/trade/internal/interfaces"
	"github.com/lacymorrow/trade/internal/logger"
	"github.com/lacymorrow/trade/internal/metrics"
	"github.com/lacymorrow/trade/internal/store"
	"github.com/lacymorrow/trade/internal/trace"
	"github.com/lacymorrow/trade/internal/tradelog"
	"github.com/lacymorrow/trade/internal/types"
)

// Controller drives the data, signal, and trade engines through repeated
// cycles. All state transitions go through the mutex; the cycle loop runs in
// its own goroutine between Start and Stop.
type Controller struct {
	cfg       *store.Config
	broker    interfaces.Broker
	data      interfaces.DataEngine
	signals   interfaces.SignalEngine
	trader    interfaces.TradeEngine
	sentiment interfaces.SentimentProvider
	journal   *tradelog.Logger

	mu        sync.Mutex
	state     types.BotState
	universe  []string
	cycles    int64
	lastCycle time.Time
	lastErr   string
	cancel    context.CancelFunc
	done      chan struct{}

	sleep func(ctx context.Context, d time.Duration) error
}

var _ interfaces.Controller = (*Controller)(nil)

// New wires a controller. sentiment and journal may be nil.
func New(
	cfg *store.Config,
	broker interfaces.Broker,
	data interfaces.DataEngine,
	signals interfaces.SignalEngine,
	trader interfaces.TradeEngine,
	sentiment interfaces.SentimentProvider,
	journal *tradelog.Logger,
) *Controller {
	return &Controller{
		cfg:       cfg,
		broker:    broker,
		data:      data,
		signals:   signals,
		trader:    trader,
		sentiment: sentiment,
		journal:   journal,
		state:     types.StateStopped,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start transitions stopped -> starting -> running and launches the cycle
// loop. Starting an already running controller is an error.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != types.StateStopped && c.state != types.StateError {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start from state %s", state)
	}
	c.state = types.StateStarting
	c.mu.Unlock()

	logger.Info(ctx, "bot starting", "mode", c.cfg.Mode, "assetClass", c.cfg.AssetClass)

	universe, err := c.resolveUniverse(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = types.StateError
		c.lastErr = err.Error()
		c.mu.Unlock()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.mu.Lock()
	c.universe = universe
	c.state = types.StateRunning
	c.lastErr = ""
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	logger.Info(ctx, "bot running", "universe", universe, "pollSeconds", c.cfg.PollSeconds)
	go c.loop(loopCtx, done)
	return nil
}

// loop runs cycles on the poll interval until cancelled.
func (c *Controller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		summary, err := c.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.ErrorWithErr(ctx, "cycle failed", err)
			c.mu.Lock()
			c.lastErr = err.Error()
			autoRestart := c.cfg.Bot.AutoRestart
			c.mu.Unlock()
			if !autoRestart {
				c.mu.Lock()
				c.state = types.StateError
				c.mu.Unlock()
				return
			}
			if c.sleep(ctx, time.Duration(c.cfg.Bot.RestartBackoffSeconds)*time.Second) != nil {
				return
			}
			continue
		}
		logger.Info(ctx, "cycle complete",
			"symbols", summary.Symbols,
			"signals", summary.Signals,
			"orders", summary.Orders,
			"failures", summary.Failures)
		if c.sleep(ctx, c.cfg.Poll()) != nil {
			return
		}
	}
}

// Stop transitions running -> stopping -> stopped, waits for the in-flight
// cycle, and cancels any open orders at the brokerage.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != types.StateRunning && c.state != types.StateStarting {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot stop from state %s", state)
	}
	c.state = types.StateStopping
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	logger.Info(ctx, "bot stopping")
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := c.broker.CancelOpenOrders(ctx); err != nil {
		logger.ErrorWithErr(ctx, "failed to cancel open orders during shutdown", err)
	}

	c.mu.Lock()
	c.state = types.StateStopped
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	logger.Info(ctx, "bot stopped")
	return nil
}

// resolveUniverse picks the symbol set for a cycle. DYNAMIC mode asks the
// brokerage and falls back to the static list when that fails.
func (c *Controller) resolveUniverse(ctx context.Context) ([]string, error) {
	if c.cfg.Universe.Mode != "DYNAMIC" {
		return c.cfg.Universe.Static, nil
	}
	symbols, err := c.data.TradableSymbols(ctx)
	if err != nil || len(symbols) == 0 {
		if len(c.cfg.Universe.Static) > 0 {
			logger.Warn(ctx, "dynamic universe unavailable, using static list", "error", err)
			return c.cfg.Universe.Static, nil
		}
		if err == nil {
			err = fmt.Errorf("dynamic universe resolved empty with no static fallback")
		}
		return nil, err
	}
	return symbols, nil
}

// RunOnce executes a single cycle over the universe. Per-symbol failures are
// recorded in the summary and never abort the rest of the cycle.
func (c *Controller) RunOnce(ctx context.Context) (*types.CycleSummary, error) {
	universe, err := c.cycleUniverse(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	cycle := c.cycles + 1
	c.mu.Unlock()
	ctx, span := trace.StartCycleSpan(ctx, cycle, len(universe))
	defer span.End()

	summary := &types.CycleSummary{
		StartedAt: time.Now().UTC(),
		Symbols:   len(universe),
	}

	for _, symbol := range universe {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		outcome := c.processSymbol(ctx, symbol)
		if outcome.Error != "" {
			summary.Failures++
			metrics.SymbolErrors.WithLabelValues(symbol).Inc()
		}
		if outcome.Signal != nil {
			summary.Signals++
		}
		if outcome.Order != nil || outcome.Exit != nil {
			summary.Orders++
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
	}

	summary.FinishedAt = time.Now().UTC()
	metrics.CyclesTotal.Inc()

	c.mu.Lock()
	c.cycles++
	c.lastCycle = summary.FinishedAt
	c.mu.Unlock()
	return summary, nil
}

// cycleUniverse returns the universe for this cycle, resolving it on demand
// for direct RunOnce calls that never went through Start.
func (c *Controller) cycleUniverse(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	universe := c.universe
	c.mu.Unlock()
	if len(universe) > 0 {
		return universe, nil
	}
	return c.resolveUniverse(ctx)
}

// processSymbol runs the data -> signal -> trade pipeline for one symbol.
func (c *Controller) processSymbol(ctx context.Context, symbol string) types.SymbolOutcome {
	ctx, span := trace.StartSymbolSpan(ctx, "bot.processSymbol", symbol)
	defer span.End()

	outcome := types.SymbolOutcome{Symbol: symbol}

	series, err := c.fetchWithRetry(ctx, symbol)
	if err != nil {
		logger.Warn(ctx, "symbol skipped after fetch failures", "symbol", symbol, "error", err)
		outcome.Error = err.Error()
		return outcome
	}

	// Exit rules run before the signal so a stopped-out position never gets
	// re-entered on the same bar.
	exit, err := c.trader.EvaluateExits(ctx, symbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "exit evaluation failed", err, "symbol", symbol)
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Exit = exit

	var sentiment *float64
	if c.sentiment != nil && c.cfg.Sentiment.Enabled {
		sentiment, err = c.sentiment.Score(ctx, symbol)
		if err != nil {
			// Sentiment is advisory; the technical pipeline proceeds alone.
			logger.Warn(ctx, "sentiment unavailable", "symbol", symbol, "error", err)
			sentiment = nil
		}
	}

	sig, err := c.signals.Generate(ctx, symbol, series, sentiment)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	if sig == nil {
		logger.Debug(ctx, "insufficient data to score", "symbol", symbol)
		return outcome
	}
	outcome.Signal = sig
	if c.journal != nil {
		if err := c.journal.AppendSignal(sig); err != nil {
			logger.Warn(ctx, "signal journal write failed", "error", err)
		}
	}

	order, err := c.actOnSignal(ctx, sig)
	if err != nil {
		var ve *types.ValidationError
		if errors.As(err, &ve) {
			logger.Info(ctx, "signal not tradable", "symbol", symbol, "reason", err.Error())
		} else {
			logger.ErrorWithErr(ctx, "order failed", err, "symbol", symbol)
			outcome.Error = err.Error()
		}
		return outcome
	}
	outcome.Order = order
	return outcome
}

// fetchWithRetry fetches the price series, retrying fetch errors with
// backoff up to the configured budget.
func (c *Controller) fetchWithRetry(ctx context.Context, symbol string) (*types.PriceSeries, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Data.FetchRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.cfg.FetchBackoff()); err != nil {
				return nil, err
			}
		}
		series, err := c.data.GetPriceSeries(ctx, symbol, c.cfg.Data.Timeframe, c.cfg.Data.Window)
		if err == nil {
			return series, nil
		}
		lastErr = err
		var fe *types.FetchError
		if !errors.As(err, &fe) {
			return nil, err
		}
		logger.Debug(ctx, "fetch retry", "symbol", symbol, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// actOnSignal turns a buy or sell into an order when position state allows
// it. Holds and repeat entries are no-ops.
func (c *Controller) actOnSignal(ctx context.Context, sig *types.Signal) (*types.OrderResult, error) {
	switch sig.Action {
	case types.ActionBuy:
		pos, err := c.trader.PositionFor(ctx, sig.Symbol)
		if err != nil {
			return nil, err
		}
		if pos != nil && pos.Qty > 0 {
			logger.Debug(ctx, "already long, skipping entry", "symbol", sig.Symbol)
			return nil, nil
		}
		qty, err := c.trader.SizeFor(ctx, sig.Symbol, sig.Price)
		if err != nil {
			return nil, err
		}
		if qty <= 0 {
			logger.Debug(ctx, "no sizing room for entry", "symbol", sig.Symbol)
			return nil, nil
		}
		return c.trader.Execute(ctx, types.OrderRequest{
			Symbol:   sig.Symbol,
			Side:     types.ActionBuy,
			Qty:      qty,
			Type:     types.OrderMarket,
			RefPrice: sig.Price,
			Tag:      "signal_entry",
		})

	case types.ActionSell:
		pos, err := c.trader.PositionFor(ctx, sig.Symbol)
		if err != nil {
			return nil, err
		}
		if pos == nil || pos.Qty <= 0 {
			logger.Debug(ctx, "nothing to sell", "symbol", sig.Symbol)
			return nil, nil
		}
		return c.trader.Execute(ctx, types.OrderRequest{
			Symbol: sig.Symbol,
			Side:   types.ActionSell,
			Qty:    pos.Qty,
			Type:   types.OrderMarket,
			Tag:    "signal_exit",
		})
	}
	return nil, nil
}

// Status reports a consistent snapshot of controller state.
func (c *Controller) Status() types.BotStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.BotStatus{
		State:      c.state,
		TestMode:   c.cfg.TestMode(),
		Universe:   c.universe,
		Cycles:     c.cycles,
		LastCycle:  c.lastCycle,
		LastError:  c.lastErr,
		ReportedAt: time.Now().UTC(),
	}
}
