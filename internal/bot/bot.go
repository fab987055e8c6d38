// Package bot runs one strategy against its watchlist: a state machine
// (idle, running, stopped) with a tick for polling kinds and an event handler
// for reactive ones.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"botarena/internal/ai"
	"botarena/internal/ledger"
	"botarena/internal/logger"
	"botarena/internal/market"
	"botarena/internal/pkg/circuit"
	"botarena/internal/scheduler"
	"botarena/internal/store"
	"botarena/internal/strategy"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

var (
	ErrNotIdle    = errors.New("bot is not idle")
	ErrNotRunning = errors.New("bot is not running")
)

const DefaultCapital = 100000.0

// Deps are the collaborators and engine settings shared by every bot.
type Deps struct {
	Market    market.Provider
	Ledger    ledger.Ledger
	Evaluator ai.Evaluator
	Trades    store.TradeLog
	Series    *market.SeriesStore
	Scheduler *scheduler.Service
	Clock     strategy.Clock

	TickInterval     time.Duration
	TickTimeout      time.Duration
	BarTimeframe     string
	SeedBars         int
	VolumePeriod     int
	PositionSizePct  float64
	BreakerThreshold int
	BreakerCooldown  time.Duration

	NowFn func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Series == nil {
		d.Series = market.NewSeriesStore(market.DefaultSeriesCapacity)
	}
	if d.Clock == (strategy.Clock{}) {
		d.Clock = strategy.DefaultClock()
	}
	if d.TickTimeout <= 0 {
		d.TickTimeout = 20 * time.Second
	}
	if d.BarTimeframe == "" {
		d.BarTimeframe = "1Min"
	}
	if d.VolumePeriod <= 0 {
		d.VolumePeriod = 20
	}
	if d.PositionSizePct <= 0 || d.PositionSizePct > 1 {
		d.PositionSizePct = 0.1
	}
	if d.BreakerCooldown <= 0 {
		d.BreakerCooldown = 2 * time.Minute
	}
	if d.NowFn == nil {
		d.NowFn = time.Now
	}
	return d
}

// Config identifies one bot inside its experiment.
type Config struct {
	ID           string
	ExperimentID string
	Index        int
	Strategy     strategy.Strategy
	Watchlist    []string
	Capital      float64
}

// Info is a read-only snapshot for the API.
type Info struct {
	ID           string          `json:"id"`
	ExperimentID string          `json:"experiment_id"`
	Index        int             `json:"index"`
	Kind         strategy.Kind   `json:"kind"`
	Regime       strategy.Regime `json:"regime"`
	Status       Status          `json:"status"`
	Params       strategy.Params `json:"params"`
	Watchlist    []string        `json:"watchlist"`
	Capital      float64         `json:"capital"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	StoppedAt    *time.Time      `json:"stopped_at,omitempty"`
	StopReason   string          `json:"stop_reason,omitempty"`
	Metrics      Metrics         `json:"metrics"`
}

type Bot struct {
	id           string
	experimentID string
	index        int
	strat        strategy.Strategy
	watchlist    []string
	capital      float64
	deps         Deps
	log          *logger.Scoped

	mu         sync.Mutex
	status     Status
	stopping   bool
	startedAt  time.Time
	stoppedAt  time.Time
	stopReason string
	handle     scheduler.Handle
	frozen     *counters

	// work serializes ticks, event handling and liquidation.
	work     sync.Mutex
	targets  map[string]strategy.Targets
	sessions map[string]sessionEntry

	marketCB *circuit.Breaker
	ledgerCB *circuit.Breaker
	aiCB     *circuit.Breaker

	metrics metricsCache
}

type counters struct {
	skipped int64
	dropped int64
}

type sessionEntry struct {
	day     string
	session *strategy.Session
}

func New(cfg Config, deps Deps) (*Bot, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("bot id is required")
	}
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("bot %s: strategy is required", cfg.ID)
	}
	watch := market.NormalizeSymbols(cfg.Watchlist)
	if len(watch) == 0 {
		return nil, fmt.Errorf("bot %s: watchlist is empty", cfg.ID)
	}
	if cfg.Capital <= 0 {
		cfg.Capital = DefaultCapital
	}
	deps = deps.withDefaults()
	b := &Bot{
		id:           cfg.ID,
		experimentID: cfg.ExperimentID,
		index:        cfg.Index,
		strat:        cfg.Strategy,
		watchlist:    watch,
		capital:      cfg.Capital,
		deps:         deps,
		log:          logger.With("bot", cfg.ID, "kind", string(cfg.Strategy.Kind())),
		status:       StatusIdle,
		targets:      make(map[string]strategy.Targets),
		sessions:     make(map[string]sessionEntry),
	}
	b.marketCB = b.newBreaker("market")
	b.ledgerCB = b.newBreaker("ledger")
	b.aiCB = b.newBreaker("ai")
	return b, nil
}

func (b *Bot) newBreaker(name string) *circuit.Breaker {
	return circuit.New(b.id+"/"+name, circuit.Options{
		Threshold: b.deps.BreakerThreshold,
		Cooldown:  b.deps.BreakerCooldown,
		Now:       b.deps.NowFn,
	})
}

func (b *Bot) ID() string                  { return b.id }
func (b *Bot) ExperimentID() string        { return b.experimentID }
func (b *Bot) Index() int                  { return b.index }
func (b *Bot) Kind() strategy.Kind         { return b.strat.Kind() }
func (b *Bot) Regime() strategy.Regime     { return b.strat.Regime() }
func (b *Bot) Watchlist() []string         { return append([]string(nil), b.watchlist...) }
func (b *Bot) Strategy() strategy.Strategy { return b.strat }
func (b *Bot) Capital() float64            { return b.capital }

func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Bot) running() bool { return b.Status() == StatusRunning }

// Start moves an idle bot to running and binds it to its scheduling regime.
// The ledger account must already be funded.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.status != StatusIdle {
		b.mu.Unlock()
		return fmt.Errorf("start %s: %w", b.id, ErrNotIdle)
	}
	b.status = StatusRunning
	b.startedAt = b.deps.NowFn()
	b.mu.Unlock()

	if b.deps.SeedBars > 0 && b.Regime() == strategy.RegimePolling {
		b.seed(ctx)
	}
	if b.deps.Scheduler == nil {
		b.markStopped("no scheduler")
		return fmt.Errorf("start %s: no scheduler", b.id)
	}
	handle, err := b.deps.Scheduler.Schedule(ctx, scheduler.Binding{
		BotID:     b.id,
		Regime:    b.Regime(),
		Interval:  b.deps.TickInterval,
		Watchlist: b.watchlist,
		Tick:      b.Tick,
		OnEvent:   b.HandleEvent,
	})
	if err != nil {
		b.markStopped("start failed: " + err.Error())
		return fmt.Errorf("start %s: %w", b.id, err)
	}
	b.mu.Lock()
	b.handle = handle
	b.mu.Unlock()
	b.log.Infof("Bot[%s]: started regime=%s watchlist=%v", b.id, b.Regime(), b.watchlist)
	return nil
}

// Stop deregisters scheduling (waiting for an in-flight tick or event),
// liquidates open positions and freezes the counters. Stopping an idle bot
// only marks it stopped; stopping a stopped bot is a no-op.
func (b *Bot) Stop(ctx context.Context, reason string) error {
	b.mu.Lock()
	if b.status == StatusStopped || b.stopping {
		b.mu.Unlock()
		return nil
	}
	if b.status == StatusIdle {
		b.status = StatusStopped
		b.stoppedAt = b.deps.NowFn()
		b.stopReason = reason
		b.frozen = &counters{}
		b.mu.Unlock()
		return nil
	}
	b.stopping = true
	handle := b.handle
	b.mu.Unlock()

	var snap counters
	if handle != nil {
		handle.Stop()
		snap = counters{skipped: handle.Skipped(), dropped: handle.Dropped()}
	}
	err := b.liquidate(ctx)

	b.mu.Lock()
	b.status = StatusStopped
	b.stopping = false
	b.stoppedAt = b.deps.NowFn()
	b.stopReason = reason
	b.frozen = &snap
	b.mu.Unlock()
	b.log.Infof("Bot[%s]: stopped reason=%s", b.id, reason)
	return err
}

func (b *Bot) markStopped(reason string) {
	b.mu.Lock()
	b.status = StatusStopped
	b.stoppedAt = b.deps.NowFn()
	b.stopReason = reason
	b.frozen = &counters{}
	b.mu.Unlock()
	b.log.Warnf("Bot[%s]: %s", b.id, reason)
}

func (b *Bot) counters() counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen != nil {
		return *b.frozen
	}
	if b.handle == nil {
		return counters{}
	}
	return counters{skipped: b.handle.Skipped(), dropped: b.handle.Dropped()}
}

func (b *Bot) Info(ctx context.Context) Info {
	m, err := b.Metrics(ctx)
	if err != nil {
		b.log.Warnf("Bot[%s]: metrics unavailable: %v", b.id, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	info := Info{
		ID:           b.id,
		ExperimentID: b.experimentID,
		Index:        b.index,
		Kind:         b.strat.Kind(),
		Regime:       b.strat.Regime(),
		Status:       b.status,
		Params:       b.strat.Params(),
		Watchlist:    append([]string(nil), b.watchlist...),
		Capital:      b.capital,
		StopReason:   b.stopReason,
		Metrics:      m,
	}
	if !b.startedAt.IsZero() {
		t := b.startedAt
		info.StartedAt = &t
	}
	if !b.stoppedAt.IsZero() {
		t := b.stoppedAt
		info.StoppedAt = &t
	}
	return info
}

// seed fills empty series from recent bars so strategies can act on the first ticks.
func (b *Bot) seed(ctx context.Context) {
	for _, sym := range b.watchlist {
		var bars []market.Bar
		err := b.marketCB.Do(func() error {
			var err error
			bars, err = b.deps.Market.Bars(ctx, sym, b.deps.BarTimeframe, b.deps.SeedBars)
			return err
		})
		if err != nil {
			b.log.Warnf("Bot[%s]: seed %s failed: %v", b.id, sym, err)
			continue
		}
		series := b.deps.Series.Series(b.id, sym)
		for _, bar := range bars {
			if bar.Close <= 0 {
				continue
			}
			series.Append(market.Sample{Time: bar.Time, Price: bar.Close, Volume: bar.Volume})
		}
	}
}
