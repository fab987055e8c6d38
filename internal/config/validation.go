package config

import (
	"fmt"
	"strings"
	"time"
)

func validate(c *Config) error {
	if f := c.App.LogFormat; f != "text" && f != "json" {
		return fmt.Errorf("app.log_format only supports text|json, got %q", f)
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Events.validate(); err != nil {
		return err
	}
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.AI.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.TickIntervalSeconds <= 0 {
		return fmt.Errorf("engine.tick_interval_seconds must be > 0")
	}
	if e.TickTimeoutSeconds <= 0 {
		return fmt.Errorf("engine.tick_timeout_seconds must be > 0")
	}
	if e.HistoryCapacity < 20 || e.HistoryCapacity > 1000 {
		return fmt.Errorf("engine.history_capacity must be in [20,1000]")
	}
	if e.MinHistory <= 0 || e.MinHistory > e.HistoryCapacity {
		return fmt.Errorf("engine.min_history must be in [1,history_capacity]")
	}
	if e.SeedBars > e.HistoryCapacity {
		return fmt.Errorf("engine.seed_bars must be <= history_capacity")
	}
	if e.PositionSizePct <= 0 || e.PositionSizePct > 1 {
		return fmt.Errorf("engine.position_size_pct must be in (0, 1]")
	}
	if e.InitialCapital <= 0 {
		return fmt.Errorf("engine.initial_capital must be > 0")
	}
	if _, err := time.LoadLocation(strings.TrimSpace(e.Timezone)); err != nil {
		return fmt.Errorf("engine.timezone invalid: %w", err)
	}
	open, err := ParseClock(e.SessionOpen)
	if err != nil {
		return fmt.Errorf("engine.session_open: %w", err)
	}
	closeAt, err := ParseClock(e.SessionClose)
	if err != nil {
		return fmt.Errorf("engine.session_close: %w", err)
	}
	if closeAt <= open {
		return fmt.Errorf("engine.session_close must be after session_open")
	}
	return nil
}

func (e *EventsConfig) validate() error {
	if strings.TrimSpace(e.Topic) == "" {
		return fmt.Errorf("events.topic cannot be empty")
	}
	if e.GlobalRatePerMinute <= 0 || e.PerSourceRatePerMinute <= 0 {
		return fmt.Errorf("events rates must be > 0")
	}
	if e.GlobalBurst <= 0 || e.PerSourceBurst <= 0 {
		return fmt.Errorf("events bursts must be > 0")
	}
	if e.QueueSize <= 0 {
		return fmt.Errorf("events.queue_size must be > 0")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	switch m.Source {
	case "sim":
		if m.SimBasePrice <= 0 {
			return fmt.Errorf("market.sim_base_price must be > 0")
		}
		if m.SimVolatility <= 0 || m.SimVolatility >= 1 {
			return fmt.Errorf("market.sim_volatility must be in (0,1)")
		}
	case "binance":
		if strings.TrimSpace(m.RESTBaseURL) == "" {
			return fmt.Errorf("market.rest_base_url cannot be empty for binance")
		}
	default:
		return fmt.Errorf("market.source only supports sim|binance, got %q", m.Source)
	}
	return nil
}

func (a *AIConfig) validate() error {
	switch a.Mode {
	case "keyword":
	case "remote":
		if strings.TrimSpace(a.Endpoint) == "" {
			return fmt.Errorf("ai.endpoint required when ai.mode=remote")
		}
	default:
		return fmt.Errorf("ai.mode only supports keyword|remote, got %q", a.Mode)
	}
	if a.MinConfidence < 0 || a.MinConfidence > 100 {
		return fmt.Errorf("ai.min_confidence must be in [0,100]")
	}
	if a.TimeoutSeconds <= 0 {
		return fmt.Errorf("ai.timeout_seconds must be > 0")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	switch s.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("store.path cannot be empty for sqlite")
		}
	default:
		return fmt.Errorf("store.driver only supports sqlite|memory, got %q", s.Driver)
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
