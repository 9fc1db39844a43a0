// Package sentiment scores symbols from news coverage via the Alpha Vantage
// NEWS_SENTIMENT endpoint.
package sentiment

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lacymorrow/trade/internal/api"
	"github.com/lacymorrow/trade/internal/interfaces"
	"github.com/lacymorrow/trade/internal/logger"
)

const defaultBaseURL = "https://www.alphavantage.co"

// Provider fetches news sentiment and caches scores per symbol. Absence of a
// key or any upstream failure degrades to nil, nil so the technical pipeline
// runs alone.
type Provider struct {
	client *api.Client
	apiKey string
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]cachedScore
	now   func() time.Time
}

type cachedScore struct {
	score     float64
	fetchedAt time.Time
}

var _ interfaces.SentimentProvider = (*Provider)(nil)

// NewProvider reads ALPHA_VANTAGE_API_KEY from the environment. With no key
// the provider still works, answering nil for every symbol.
func NewProvider(ttl time.Duration) *Provider {
	return &Provider{
		client: api.NewClient(
			api.WithBaseURL(defaultBaseURL),
			api.WithTimeout(15*time.Second),
			api.WithLogging(logger.IsDebugEnabled()),
		),
		apiKey: os.Getenv("ALPHA_VANTAGE_API_KEY"),
		ttl:    ttl,
		cache:  make(map[string]cachedScore),
		now:    time.Now,
	}
}

type newsResponse struct {
	Feed []struct {
		TickerSentiment []struct {
			Ticker         string `json:"ticker"`
			RelevanceScore string `json:"relevance_score"`
			SentimentScore string `json:"ticker_sentiment_score"`
		} `json:"ticker_sentiment"`
	} `json:"feed"`
}

// ticker maps a trading symbol to Alpha Vantage's ticker form. Crypto pairs
// become CRYPTO: prefixed base symbols (BTC/USD -> CRYPTO:BTC).
func ticker(symbol string) string {
	if base, _, ok := strings.Cut(symbol, "/"); ok {
		return "CRYPTO:" + base
	}
	return symbol
}

// Score returns the relevance-weighted mean sentiment for symbol, clamped to
// [-1, 1]. nil, nil means no sentiment input is available.
func (p *Provider) Score(ctx context.Context, symbol string) (*float64, error) {
	if p.apiKey == "" {
		return nil, nil
	}

	p.mu.Lock()
	if c, ok := p.cache[symbol]; ok && p.now().Sub(c.fetchedAt) < p.ttl {
		p.mu.Unlock()
		score := c.score
		return &score, nil
	}
	p.mu.Unlock()

	tk := ticker(symbol)
	q := url.Values{}
	q.Set("function", "NEWS_SENTIMENT")
	q.Set("tickers", tk)
	q.Set("apikey", p.apiKey)

	resp, err := p.client.GET(ctx, "/query?"+q.Encode())
	if err != nil {
		logger.Warn(ctx, "news sentiment fetch failed", "symbol", symbol, "error", err)
		return nil, nil
	}
	var payload newsResponse
	if err := resp.ParseJSON(&payload); err != nil {
		logger.Warn(ctx, "news sentiment payload unreadable", "symbol", symbol, "error", err)
		return nil, nil
	}

	score, ok := weightedScore(&payload, tk)
	if !ok {
		logger.Debug(ctx, "no relevant news coverage", "symbol", symbol)
		return nil, nil
	}

	p.mu.Lock()
	p.cache[symbol] = cachedScore{score: score, fetchedAt: p.now()}
	p.mu.Unlock()

	logger.Debug(ctx, "news sentiment scored", "symbol", symbol, "score", score)
	return &score, nil
}

// weightedScore averages per-article sentiment weighted by relevance.
func weightedScore(payload *newsResponse, tk string) (float64, bool) {
	var weighted, totalRelevance float64
	for _, item := range payload.Feed {
		for _, ts := range item.TickerSentiment {
			if ts.Ticker != tk {
				continue
			}
			relevance := parseScore(ts.RelevanceScore)
			score := parseScore(ts.SentimentScore)
			weighted += score * relevance
			totalRelevance += relevance
		}
	}
	if totalRelevance == 0 {
		return 0, false
	}
	score := weighted / totalRelevance
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score, true
}

// parseScore reads an Alpha Vantage string-typed number; malformed values
// count as zero.
func parseScore(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
