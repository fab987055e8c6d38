package config

import (
	"strings"
)

const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppLogFormat     = "text"
	defaultAppHTTPAddr      = ":9992"
	defaultTickInterval     = 30
	defaultTickTimeout      = 20
	defaultHistoryCapacity  = 100
	defaultMinHistory       = 20
	defaultBarTimeframe     = "1Min"
	defaultTimezone         = "America/New_York"
	defaultSessionOpen      = "09:30"
	defaultSessionClose     = "16:00"
	defaultPositionSizePct  = 0.1
	defaultInitialCapital   = 100000
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 120
	defaultEventsTopic      = "news"
	defaultGlobalRate       = 120
	defaultGlobalBurst      = 20
	defaultPerSourceRate    = 10
	defaultPerSourceBurst   = 3
	defaultQueueSize        = 16
	defaultMarketSource     = "sim"
	defaultBinanceREST      = "https://fapi.binance.com"
	defaultSimBasePrice     = 100
	defaultSimVolatility    = 0.002
	defaultAIMode           = "keyword"
	defaultAITimeout        = 30
	defaultAIMinConfidence  = 60
	defaultAIQty            = 10
	defaultStoreDriver      = "sqlite"
	defaultStorePath        = "data/botarena.db"
	defaultResultsPath      = "data/results"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Events.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.AI.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

// Default returns a config with every default applied, used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(make(keySet))
	return &cfg
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
	a.LogFormat = strings.ToLower(strings.TrimSpace(a.LogFormat))
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("engine.tick_interval_seconds", &e.TickIntervalSeconds, defaultTickInterval),
		intFieldDefault("engine.tick_timeout_seconds", &e.TickTimeoutSeconds, defaultTickTimeout),
		intFieldDefault("engine.history_capacity", &e.HistoryCapacity, defaultHistoryCapacity),
		intFieldDefault("engine.min_history", &e.MinHistory, defaultMinHistory),
		intFieldDefault("engine.breaker_threshold", &e.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("engine.breaker_cooldown_seconds", &e.BreakerCooldownSeconds, defaultBreakerCooldown),
		stringFieldDefault("engine.bar_timeframe", &e.BarTimeframe, defaultBarTimeframe),
		stringFieldDefault("engine.timezone", &e.Timezone, defaultTimezone),
		stringFieldDefault("engine.session_open", &e.SessionOpen, defaultSessionOpen),
		stringFieldDefault("engine.session_close", &e.SessionClose, defaultSessionClose),
		fieldDefault{
			key:   "engine.position_size_pct",
			need:  func() bool { return e.PositionSizePct <= 0 || e.PositionSizePct > 1 },
			apply: func() { e.PositionSizePct = defaultPositionSizePct },
		},
		fieldDefault{
			key:   "engine.initial_capital",
			need:  func() bool { return e.InitialCapital <= 0 },
			apply: func() { e.InitialCapital = defaultInitialCapital },
		},
	)
	if e.SeedBars < 0 {
		e.SeedBars = 0
	}
	if e.DefaultDurationMinutes < 0 {
		e.DefaultDurationMinutes = 0
	}
}

func (e *EventsConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("events.topic", &e.Topic, defaultEventsTopic),
		floatFieldDefault("events.global_rate_per_minute", &e.GlobalRatePerMinute, defaultGlobalRate),
		intFieldDefault("events.global_burst", &e.GlobalBurst, defaultGlobalBurst),
		floatFieldDefault("events.per_source_rate_per_minute", &e.PerSourceRatePerMinute, defaultPerSourceRate),
		intFieldDefault("events.per_source_burst", &e.PerSourceBurst, defaultPerSourceBurst),
		intFieldDefault("events.queue_size", &e.QueueSize, defaultQueueSize),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.source", &m.Source, defaultMarketSource),
		floatFieldDefault("market.sim_base_price", &m.SimBasePrice, defaultSimBasePrice),
		floatFieldDefault("market.sim_volatility", &m.SimVolatility, defaultSimVolatility),
	)
	m.Source = strings.ToLower(strings.TrimSpace(m.Source))
	if m.Source == "binance" && strings.TrimSpace(m.RESTBaseURL) == "" {
		m.RESTBaseURL = defaultBinanceREST
	}
}

func (a *AIConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ai.mode", &a.Mode, defaultAIMode),
		intFieldDefault("ai.timeout_seconds", &a.TimeoutSeconds, defaultAITimeout),
		floatFieldDefault("ai.min_confidence", &a.MinConfidence, defaultAIMinConfidence),
		floatFieldDefault("ai.default_qty", &a.DefaultQty, defaultAIQty),
	)
	a.Mode = strings.ToLower(strings.TrimSpace(a.Mode))
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.driver", &s.Driver, defaultStoreDriver),
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
		stringFieldDefault("store.results_path", &s.ResultsPath, defaultResultsPath),
	)
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
