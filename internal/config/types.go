package config

import (
	"strings"
	"time"
	_ "time/tzdata"
)

// Config is the root configuration of botarena.
type Config struct {
	App        AppConfig        `toml:"app"`
	Engine     EngineConfig     `toml:"engine"`
	Events     EventsConfig     `toml:"events"`
	Market     MarketConfig     `toml:"market"`
	Ledger     LedgerConfig     `toml:"ledger"`
	AI         AIConfig         `toml:"ai"`
	Store      StoreConfig      `toml:"store"`
	Strategies StrategiesConfig `toml:"strategies"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // text | json
	HTTPAddr  string `toml:"http_addr"`
	LogPath   string `toml:"log_path"`
}

// EngineConfig controls bot ticks, history buffers and the trading session clock.
type EngineConfig struct {
	TickIntervalSeconds    int     `toml:"tick_interval_seconds"`
	TickTimeoutSeconds     int     `toml:"tick_timeout_seconds"`
	HistoryCapacity        int     `toml:"history_capacity"`
	MinHistory             int     `toml:"min_history"`
	SeedBars               int     `toml:"seed_bars"`
	BarTimeframe           string  `toml:"bar_timeframe"`
	Timezone               string  `toml:"timezone"`
	SessionOpen            string  `toml:"session_open"`  // HH:MM local
	SessionClose           string  `toml:"session_close"` // HH:MM local
	PositionSizePct        float64 `toml:"position_size_pct"`
	InitialCapital         float64 `toml:"initial_capital"` // per bot
	DefaultDurationMinutes int     `toml:"default_duration_minutes"`
	BreakerThreshold       int     `toml:"breaker_threshold"`
	BreakerCooldownSeconds int     `toml:"breaker_cooldown_seconds"`
}

func (e EngineConfig) TickInterval() time.Duration {
	return time.Duration(e.TickIntervalSeconds) * time.Second
}

func (e EngineConfig) TickTimeout() time.Duration {
	return time.Duration(e.TickTimeoutSeconds) * time.Second
}

func (e EngineConfig) BreakerCooldown() time.Duration {
	return time.Duration(e.BreakerCooldownSeconds) * time.Second
}

func (e EngineConfig) DefaultDuration() time.Duration {
	return time.Duration(e.DefaultDurationMinutes) * time.Minute
}

// Location falls back to UTC when the zone database has no entry for Timezone.
func (e EngineConfig) Location() *time.Location {
	name := strings.TrimSpace(e.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EventsConfig tunes the reactive regime. Rates are events per minute.
type EventsConfig struct {
	Topic                  string  `toml:"topic"`
	GlobalRatePerMinute    float64 `toml:"global_rate_per_minute"`
	GlobalBurst            int     `toml:"global_burst"`
	PerSourceRatePerMinute float64 `toml:"per_source_rate_per_minute"`
	PerSourceBurst         int     `toml:"per_source_burst"`
	QueueSize              int     `toml:"queue_size"`
}

type MarketConfig struct {
	Source        string  `toml:"source"` // sim | binance
	RESTBaseURL   string  `toml:"rest_base_url"`
	APIKey        string  `toml:"api_key"`
	SecretKey     string  `toml:"secret_key"`
	SimSeed       int64   `toml:"sim_seed"`
	SimBasePrice  float64 `toml:"sim_base_price"`
	SimVolatility float64 `toml:"sim_volatility"`
}

type LedgerConfig struct {
	SlippageBps   float64 `toml:"slippage_bps"`
	CommissionUSD float64 `toml:"commission_usd"`
}

type AIConfig struct {
	Mode           string  `toml:"mode"` // keyword | remote
	Endpoint       string  `toml:"endpoint"`
	APIKey         string  `toml:"api_key"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MinConfidence  float64 `toml:"min_confidence"`
	DefaultQty     float64 `toml:"default_qty"`
}

func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

type StoreConfig struct {
	Driver      string `toml:"driver"` // sqlite | memory
	Path        string `toml:"path"`
	ResultsPath string `toml:"results_path"`
}

type StrategiesConfig struct {
	PresetsPath string `toml:"presets_path"`
}

// keySet tracks which dotted keys were explicitly present in the loaded files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
