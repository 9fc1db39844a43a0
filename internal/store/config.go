package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lacymorrow/trade/internal/types"
)

// Profile carries the asset-class specific tuning: signal thresholds, cache
// TTLs, indicator weights, and order minimums. The pipeline itself is uniform;
// only the profile differs between crypto and equities.
type Profile struct {
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	SignalThreshold float64 `yaml:"signal_threshold"`
	MinOrderQty     float64 `yaml:"min_order_qty"`
	CheckMarketOpen bool    `yaml:"check_market_open"`
	Weights         struct {
		RSI    float64 `yaml:"rsi"`
		MACD   float64 `yaml:"macd"`
		Volume float64 `yaml:"volume"`
	} `yaml:"weights"`
}

// TTL returns the cache TTL as a duration.
func (p Profile) TTL() time.Duration { return time.Duration(p.CacheTTLSeconds) * time.Second }

type Config struct {
	Mode        string `yaml:"mode"` // TEST or LIVE
	AssetClass  string `yaml:"asset_class"`
	PollSeconds int    `yaml:"poll_seconds"`
	ServerAddr  string `yaml:"server_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	Universe struct {
		Mode   string   `yaml:"mode"` // STATIC or DYNAMIC
		Static []string `yaml:"static"`
		MaxN   int      `yaml:"max_n"`
	} `yaml:"universe"`

	Data struct {
		Timeframe      string `yaml:"timeframe"`
		Window         int    `yaml:"window"`
		RatePerMinute  int    `yaml:"rate_per_minute"`
		FetchRetries   int    `yaml:"fetch_retries"`
		BackoffSeconds int    `yaml:"backoff_seconds"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"data"`

	Risk struct {
		RiskPct        float64 `yaml:"risk_pct"`
		MaxPositionPct float64 `yaml:"max_position_pct"`
		MaxExposurePct float64 `yaml:"max_exposure_pct"`
	} `yaml:"risk"`

	Exits struct {
		StopLossPct    float64   `yaml:"stop_loss_pct"`
		TakeProfitPcts []float64 `yaml:"take_profit_pcts"`
	} `yaml:"exits"`

	Indicators struct {
		RSIPeriod        int `yaml:"rsi_period"`
		MACDFast         int `yaml:"macd_fast"`
		MACDSlow         int `yaml:"macd_slow"`
		MACDSignal       int `yaml:"macd_signal"`
		VolumeWindow     int `yaml:"volume_window"`
		VolatilityWindow int `yaml:"volatility_window"`
	} `yaml:"indicators"`

	Sentiment struct {
		Enabled         bool    `yaml:"enabled"`
		Weight          float64 `yaml:"weight"`
		CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	} `yaml:"sentiment"`

	Bot struct {
		AutoRestart           bool `yaml:"auto_restart"`
		RestartBackoffSeconds int  `yaml:"restart_backoff_seconds"`
	} `yaml:"bot"`

	Profiles map[string]Profile `yaml:"profiles"`
}

// TestMode reports whether execution is simulated.
func (c *Config) TestMode() bool { return c.Mode == "TEST" }

// Class returns the configured asset class.
func (c *Config) Class() types.AssetClass { return types.AssetClass(c.AssetClass) }

// ActiveProfile returns the profile for the configured asset class.
func (c *Config) ActiveProfile() Profile { return c.Profiles[c.AssetClass] }

// Poll returns the cycle interval.
func (c *Config) Poll() time.Duration { return time.Duration(c.PollSeconds) * time.Second }

// FetchBackoff returns the retry backoff for failed fetches.
func (c *Config) FetchBackoff() time.Duration {
	return time.Duration(c.Data.BackoffSeconds) * time.Second
}

func defaultProfiles() map[string]Profile {
	crypto := Profile{
		CacheTTLSeconds: 60,
		SignalThreshold: 0.6,
		MinOrderQty:     0.0001,
		CheckMarketOpen: false,
	}
	crypto.Weights.RSI, crypto.Weights.MACD, crypto.Weights.Volume = 0.3, 0.3, 0.4

	equity := Profile{
		CacheTTLSeconds: 300,
		SignalThreshold: 0.5,
		MinOrderQty:     1,
		CheckMarketOpen: true,
	}
	equity.Weights.RSI, equity.Weights.MACD, equity.Weights.Volume = 0.4, 0.4, 0.2

	return map[string]Profile{
		string(types.AssetCrypto): crypto,
		string(types.AssetEquity): equity,
	}
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "TEST"
	}
	if c.AssetClass == "" {
		c.AssetClass = string(types.AssetCrypto)
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 60
	}
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.Universe.Mode == "" {
		c.Universe.Mode = "STATIC"
	}
	if c.Data.Timeframe == "" {
		c.Data.Timeframe = "15Min"
	}
	if c.Data.Window == 0 {
		c.Data.Window = 100
	}
	if c.Data.RatePerMinute == 0 {
		c.Data.RatePerMinute = 200
	}
	if c.Data.FetchRetries == 0 {
		c.Data.FetchRetries = 3
	}
	if c.Data.BackoffSeconds == 0 {
		c.Data.BackoffSeconds = 2
	}
	if c.Data.TimeoutSeconds == 0 {
		c.Data.TimeoutSeconds = 10
	}
	if c.Risk.RiskPct == 0 {
		c.Risk.RiskPct = 0.01
	}
	if c.Risk.MaxPositionPct == 0 {
		c.Risk.MaxPositionPct = 0.1
	}
	if c.Risk.MaxExposurePct == 0 {
		c.Risk.MaxExposurePct = 0.3
	}
	if c.Exits.StopLossPct == 0 {
		c.Exits.StopLossPct = 0.02
	}
	if len(c.Exits.TakeProfitPcts) == 0 {
		c.Exits.TakeProfitPcts = []float64{0.03, 0.05, 0.07}
	}
	if c.Indicators.RSIPeriod == 0 {
		c.Indicators.RSIPeriod = 14
	}
	if c.Indicators.MACDFast == 0 {
		c.Indicators.MACDFast = 12
	}
	if c.Indicators.MACDSlow == 0 {
		c.Indicators.MACDSlow = 26
	}
	if c.Indicators.MACDSignal == 0 {
		c.Indicators.MACDSignal = 9
	}
	if c.Indicators.VolumeWindow == 0 {
		c.Indicators.VolumeWindow = 20
	}
	if c.Indicators.VolatilityWindow == 0 {
		c.Indicators.VolatilityWindow = 20
	}
	if c.Sentiment.Weight == 0 {
		c.Sentiment.Weight = 0.2
	}
	if c.Sentiment.CacheTTLSeconds == 0 {
		c.Sentiment.CacheTTLSeconds = 3600
	}
	if c.Bot.RestartBackoffSeconds == 0 {
		c.Bot.RestartBackoffSeconds = 30
	}

	defaults := defaultProfiles()
	if c.Profiles == nil {
		c.Profiles = defaults
	}
	for name, def := range defaults {
		p, ok := c.Profiles[name]
		if !ok {
			c.Profiles[name] = def
			continue
		}
		if p.CacheTTLSeconds == 0 {
			p.CacheTTLSeconds = def.CacheTTLSeconds
		}
		if p.SignalThreshold == 0 {
			p.SignalThreshold = def.SignalThreshold
		}
		if p.MinOrderQty == 0 {
			p.MinOrderQty = def.MinOrderQty
		}
		if p.Weights.RSI == 0 && p.Weights.MACD == 0 && p.Weights.Volume == 0 {
			p.Weights = def.Weights
		}
		c.Profiles[name] = p
	}
}

func (c *Config) Validate() error {
	if c.Mode != "TEST" && c.Mode != "LIVE" {
		return &types.ConfigError{Field: "mode", Msg: fmt.Sprintf("must be 'TEST' or 'LIVE', got %q", c.Mode)}
	}
	if c.AssetClass != string(types.AssetCrypto) && c.AssetClass != string(types.AssetEquity) {
		return &types.ConfigError{Field: "asset_class", Msg: fmt.Sprintf("must be 'crypto' or 'equity', got %q", c.AssetClass)}
	}
	if c.Universe.Mode == "STATIC" && len(c.Universe.Static) == 0 {
		return &types.ConfigError{Field: "universe.static", Msg: "cannot be empty in STATIC universe mode"}
	}
	if c.Risk.RiskPct <= 0 || c.Risk.RiskPct > 1 {
		return &types.ConfigError{Field: "risk.risk_pct", Msg: fmt.Sprintf("must be in (0, 1], got %v", c.Risk.RiskPct)}
	}
	if c.Risk.MaxPositionPct <= 0 || c.Risk.MaxPositionPct > 1 {
		return &types.ConfigError{Field: "risk.max_position_pct", Msg: fmt.Sprintf("must be in (0, 1], got %v", c.Risk.MaxPositionPct)}
	}
	if c.Risk.MaxExposurePct < c.Risk.MaxPositionPct {
		return &types.ConfigError{Field: "risk.max_exposure_pct", Msg: "must be at least max_position_pct"}
	}
	if c.Data.RatePerMinute <= 0 {
		return &types.ConfigError{Field: "data.rate_per_minute", Msg: "must be positive"}
	}
	p := c.ActiveProfile()
	if p.SignalThreshold <= 0 || p.SignalThreshold > 1 {
		return &types.ConfigError{Field: "profiles." + c.AssetClass + ".signal_threshold", Msg: "must be in (0, 1]"}
	}
	sum := p.Weights.RSI + p.Weights.MACD + p.Weights.Volume
	if sum < 0.99 || sum > 1.01 {
		return &types.ConfigError{Field: "profiles." + c.AssetClass + ".weights", Msg: fmt.Sprintf("must sum to 1.0, got %.2f", sum)}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ConfigError{Msg: err.Error()}
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, &types.ConfigError{Msg: err.Error()}
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// DefaultConfig returns a config with every default applied. Used by tests
// and by single runs without a config file on disk.
func DefaultConfig() *Config {
	c := &Config{}
	c.Universe.Static = []string{"BTC/USD", "ETH/USD"}
	c.applyDefaults()
	return c
}
