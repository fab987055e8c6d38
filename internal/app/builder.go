package app

import (
	"context"
	"fmt"

	"botarena/internal/ai"
	"botarena/internal/bot"
	brcfg "botarena/internal/config"
	"botarena/internal/events"
	"botarena/internal/experiment"
	"botarena/internal/logger"
	"botarena/internal/market"
	"botarena/internal/presets"
	"botarena/internal/scheduler"
	"botarena/internal/strategy"
	apihttp "botarena/internal/transport/http/api"
)

// AppBuilder assembles the App. The constructor fields can be swapped with
// options so tests run without network or disk.
type AppBuilder struct {
	cfg *brcfg.Config

	marketFn    func(brcfg.MarketConfig) (market.Provider, error)
	evaluatorFn func(brcfg.AIConfig) (ai.Evaluator, error)
	storesFn    func(brcfg.StoreConfig) (*stores, error)
	httpFn      func(brcfg.AppConfig, apihttp.ExperimentService, *events.Bus, string) (*apihttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func WithMarketProvider(p market.Provider) AppBuilderOption {
	return func(b *AppBuilder) {
		b.marketFn = func(brcfg.MarketConfig) (market.Provider, error) { return p, nil }
	}
}

func WithEvaluator(e ai.Evaluator) AppBuilderOption {
	return func(b *AppBuilder) {
		b.evaluatorFn = func(brcfg.AIConfig) (ai.Evaluator, error) { return e, nil }
	}
}

func NewAppBuilder(cfg *brcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		marketFn:    buildMarketProvider,
		evaluatorFn: buildEvaluator,
		storesFn:    buildStores,
		httpFn:      buildHTTPServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	clock, err := strategy.ClockFromConfig(cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("session clock: %w", err)
	}
	registry, err := presets.NewRegistry(cfg.Strategies.PresetsPath)
	if err != nil {
		return nil, err
	}
	registry.OnChange(func(s presets.Snapshot) {
		logger.Infof("✓ Strategy presets reloaded (version=%d, kinds=%d); new experiments use them", s.Version, len(s.Presets))
	})

	provider, err := b.marketFn(cfg.Market)
	if err != nil {
		return nil, err
	}
	evaluator, err := b.evaluatorFn(cfg.AI)
	if err != nil {
		return nil, err
	}
	st, err := b.storesFn(cfg.Store)
	if err != nil {
		return nil, err
	}
	success := false
	defer func() {
		if !success {
			st.Close()
		}
	}()

	led := buildLedger(cfg.Ledger)
	bus := events.NewBus()
	hub := scheduler.NewHub(bus, cfg.Events.Topic, scheduler.Limits{
		GlobalPerMinute:    cfg.Events.GlobalRatePerMinute,
		GlobalBurst:        cfg.Events.GlobalBurst,
		PerSourcePerMinute: cfg.Events.PerSourceRatePerMinute,
		PerSourceBurst:     cfg.Events.PerSourceBurst,
		QueueSize:          cfg.Events.QueueSize,
	})
	sched := scheduler.NewService(hub, cfg.Engine.TickInterval())
	tracker := market.NewTracker()

	manager, err := experiment.NewManager(experiment.Deps{
		Params:  registry,
		Store:   st.main,
		Results: st.results,
		Funder:  led,
		Tracker: tracker,
		Bot: bot.Deps{
			Market:           provider,
			Ledger:           led,
			Evaluator:        evaluator,
			Trades:           st.main,
			Series:           market.NewSeriesStore(cfg.Engine.HistoryCapacity),
			Scheduler:        sched,
			Clock:            clock,
			TickInterval:     cfg.Engine.TickInterval(),
			TickTimeout:      cfg.Engine.TickTimeout(),
			BarTimeframe:     cfg.Engine.BarTimeframe,
			SeedBars:         cfg.Engine.SeedBars,
			PositionSizePct:  cfg.Engine.PositionSizePct,
			BreakerThreshold: cfg.Engine.BreakerThreshold,
			BreakerCooldown:  cfg.Engine.BreakerCooldown(),
		},
		CapitalPerBot:   cfg.Engine.InitialCapital,
		DefaultDuration: cfg.Engine.DefaultDuration(),
	})
	if err != nil {
		return nil, err
	}

	server, err := b.httpFn(cfg.App, manager, bus, cfg.Events.Topic)
	if err != nil {
		return nil, err
	}

	success = true
	return &App{
		cfg:     cfg,
		manager: manager,
		http:    server,
		bus:     bus,
		stores:  st,
		Summary: newStartupSummary(cfg, registry.Snapshot()),
	}, nil
}
