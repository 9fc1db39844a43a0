// Package signal scores price series into bounded trading signals.
package signal

import (
	"context"
	"math"

	"github.com/lacymorrow/trade/internal/interfaces"
	"github.com/lacymorrow/trade/internal/logger"
	"github.com/lacymorrow/trade/internal/store"
	"github.com/lacymorrow/trade/internal/ta"
	"github.com/lacymorrow/trade/internal/trace"
	"github.com/lacymorrow/trade/internal/types"
)

// Engine computes the weighted indicator score for a series snapshot. The
// same scoring runs for every asset class; only the profile weights and
// threshold differ.
type Engine struct {
	cfg *store.Config
}

var _ interfaces.SignalEngine = (*Engine)(nil)

func NewEngine(cfg *store.Config) *Engine {
	return &Engine{cfg: cfg}
}

// minBars is the shortest series the indicator set can score. MACD needs
// slow+signal bars and volatility needs its window plus one.
func (e *Engine) minBars() int {
	ind := e.cfg.Indicators
	n := ind.MACDSlow + ind.MACDSignal
	if v := ind.VolatilityWindow + 1; v > n {
		n = v
	}
	if v := ind.RSIPeriod + 1; v > n {
		n = v
	}
	if v := ind.VolumeWindow; v > n {
		n = v
	}
	return n
}

// Generate scores the series. A nil signal with nil error means the series is
// too short to score, which is distinct from a hold.
func (e *Engine) Generate(ctx context.Context, symbol string, series *types.PriceSeries, sentiment *float64) (*types.Signal, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "signal.Generate", symbol)
	defer span.End()

	if series == nil || series.Len() < e.minBars() {
		logger.Debug(ctx, "series too short to score",
			"symbol", symbol,
			"bars", seriesLen(series),
			"need", e.minBars())
		return nil, nil
	}

	closes := series.Closes()
	vols := series.Volumes()
	ind := e.cfg.Indicators

	rsi := ta.RSI(closes, ind.RSIPeriod)
	macd, macdSignal := ta.MACD(closes, ind.MACDFast, ind.MACDSlow, ind.MACDSignal)
	volumeRatio := ta.VolumeRatio(vols, ind.VolumeWindow)
	volatility := ta.Volatility(closes, ind.VolatilityWindow)
	if math.IsNaN(rsi) || math.IsNaN(macd) || math.IsNaN(volumeRatio) || math.IsNaN(volatility) {
		return nil, nil
	}

	profile := e.cfg.ActiveProfile()
	w := profile.Weights
	technical := technicalScore(rsi, macd, macdSignal, volumeRatio, volatility, w.RSI, w.MACD, w.Volume)

	strength := technical
	if sentiment != nil && e.cfg.Sentiment.Enabled {
		ws := e.cfg.Sentiment.Weight
		strength = clamp(technical*(1-ws) + *sentiment*ws)
	}

	action := types.ActionHold
	switch {
	case strength >= profile.SignalThreshold:
		action = types.ActionBuy
	case strength <= -profile.SignalThreshold:
		action = types.ActionSell
	}

	last, _ := series.Last()
	sig := &types.Signal{
		Symbol:   symbol,
		Action:   action,
		Strength: strength,
		Price:    last.Close,
		Ts:       last.Ts,
		Indicators: map[string]float64{
			"rsi":          rsi,
			"macd":         macd,
			"macd_signal":  macdSignal,
			"volume_ratio": volumeRatio,
			"volatility":   volatility,
		},
		Sentiment: sentiment,
	}

	logger.Debug(ctx, "signal generated",
		"symbol", symbol,
		"action", action,
		"strength", strength,
		"rsi", rsi,
		"macd", macd,
		"volumeRatio", volumeRatio,
		"volatility", volatility)
	return sig, nil
}

// technicalScore combines the indicator readings into a bounded score. RSI
// carries a reversion bias: overbought argues down, oversold up. High
// realized volatility dampens conviction, capped at half strength.
func technicalScore(rsi, macd, macdSignal, volumeRatio, volatility, wRSI, wMACD, wVolume float64) float64 {
	rsiScore := -(rsi - 50) / 50
	macdScore := 1.0
	if macd < macdSignal {
		macdScore = -1.0
	}
	volumeScore := math.Min(volumeRatio-1, 1)
	if volumeScore < -1 {
		volumeScore = -1
	}

	raw := rsiScore*wRSI + macdScore*wMACD + volumeScore*wVolume
	dampen := 1 - math.Min(volatility*2, 0.5)
	return clamp(raw * dampen)
}

func seriesLen(s *types.PriceSeries) int {
	if s == nil {
		return 0
	}
	return s.Len()
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
