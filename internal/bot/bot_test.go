package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"botarena/internal/ai"
	"botarena/internal/events"
	"botarena/internal/ledger"
	"botarena/internal/ledger/paper"
	"botarena/internal/market"
	"botarena/internal/scheduler"
	"botarena/internal/store"
	"botarena/internal/store/memstore"
	"botarena/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarket struct {
	mu         sync.Mutex
	prices     map[string]float64
	volume     float64
	err        error
	daily      map[string][]market.Bar
	dailyCalls int
}

func newFakeMarket(prices map[string]float64) *fakeMarket {
	return &fakeMarket{prices: prices, volume: 1000}
}

func (f *fakeMarket) set(sym string, price float64) {
	f.mu.Lock()
	f.prices[sym] = price
	f.mu.Unlock()
}

func (f *fakeMarket) Quote(_ context.Context, sym string) (*market.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.prices[sym]
	if !ok {
		return nil, nil
	}
	return &market.Quote{Symbol: sym, Price: p}, nil
}

func (f *fakeMarket) setVolume(v float64) {
	f.mu.Lock()
	f.volume = v
	f.mu.Unlock()
}

func (f *fakeMarket) setDaily(sym string, bars ...market.Bar) {
	f.mu.Lock()
	if f.daily == nil {
		f.daily = map[string][]market.Bar{}
	}
	f.daily[sym] = bars
	f.mu.Unlock()
}

func (f *fakeMarket) dailyFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dailyCalls
}

func (f *fakeMarket) Bars(_ context.Context, sym, timeframe string, limit int) ([]market.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if timeframe == "1Day" && f.daily != nil {
		f.dailyCalls++
		return append([]market.Bar(nil), f.daily[sym]...), nil
	}
	p := f.prices[sym]
	bars := make([]market.Bar, limit)
	for i := range bars {
		bars[i] = market.Bar{Open: p, High: p, Low: p, Close: p, Volume: f.volume}
	}
	return bars, nil
}

type stubStrategy struct {
	mu         sync.Mutex
	regime     strategy.Regime
	enter      bool
	exit       bool
	minHistory int
	entries    int
	last       strategy.Input
}

func (s *stubStrategy) Kind() strategy.Kind { return strategy.KindMomentum }

func (s *stubStrategy) Regime() strategy.Regime {
	if s.regime == "" {
		return strategy.RegimePolling
	}
	return s.regime
}

func (s *stubStrategy) MinHistory() int         { return s.minHistory }
func (s *stubStrategy) Params() strategy.Params { return strategy.Params{} }

func (s *stubStrategy) CheckEntry(in strategy.Input) strategy.EntrySignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries++
	s.last = in
	if !s.enter {
		return strategy.EntrySignal{Action: strategy.ActionHold}
	}
	return strategy.EntrySignal{ShouldEnter: true, Action: strategy.ActionBuy, Reason: "stub entry",
		Targets: strategy.Targets{ProfitTarget: 200, StopLoss: 50}}
}

func (s *stubStrategy) CheckExit(strategy.Input, strategy.Position) strategy.ExitSignal {
	return strategy.ExitSignal{ShouldExit: s.exit, Reason: "stub exit"}
}

func (s *stubStrategy) Analyze(strategy.Input) strategy.Decision {
	return strategy.Decision{Action: strategy.ActionHold}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// gatedLedger fails the next failOrders PlaceOrder calls.
type gatedLedger struct {
	*paper.Ledger

	mu         sync.Mutex
	failOrders int
}

func (g *gatedLedger) failNext(n int) {
	g.mu.Lock()
	g.failOrders = n
	g.mu.Unlock()
}

func (g *gatedLedger) PlaceOrder(ctx context.Context, accountID string, req ledger.OrderRequest) (ledger.Order, error) {
	g.mu.Lock()
	fail := g.failOrders > 0
	if fail {
		g.failOrders--
	}
	g.mu.Unlock()
	if fail {
		return ledger.Order{}, errors.New("ledger timeout")
	}
	return g.Ledger.PlaceOrder(ctx, accountID, req)
}

type harness struct {
	bot    *Bot
	market *fakeMarket
	ledger *gatedLedger
	trades *memstore.Store
	clock  *testClock
	bus    *events.Bus
}

func newHarness(t *testing.T, strat strategy.Strategy, watch []string, eval ai.Evaluator) *harness {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC)}
	prices := map[string]float64{}
	for _, s := range watch {
		prices[s] = 100
	}
	h := &harness{
		market: newFakeMarket(prices),
		ledger: &gatedLedger{Ledger: paper.New(paper.Config{})},
		trades: memstore.New(),
		clock:  clock,
		bus:    events.NewBus(),
	}
	deps := Deps{
		Market:          h.market,
		Ledger:          h.ledger,
		Evaluator:       eval,
		Trades:          h.trades,
		Scheduler:       scheduler.NewService(scheduler.NewHub(h.bus, "news", scheduler.Limits{}), time.Hour),
		TickTimeout:     time.Second,
		PositionSizePct: 0.1,
		NowFn:           clock.Now,
	}
	b, err := New(Config{ID: "bot-1", ExperimentID: "exp-1", Strategy: strat, Watchlist: watch}, deps)
	require.NoError(t, err)
	require.NoError(t, h.ledger.Fund(context.Background(), b.ID(), DefaultCapital))
	h.bot = b
	return h
}

// markRunning skips the scheduler so tests drive ticks directly.
func (h *harness) markRunning() {
	h.bot.mu.Lock()
	h.bot.status = StatusRunning
	h.bot.mu.Unlock()
}

func (h *harness) tick(n int) {
	for i := 0; i < n; i++ {
		h.clock.Advance(30 * time.Second)
		h.bot.Tick(context.Background())
	}
}

func (h *harness) log(t *testing.T) []store.TradeRecord {
	t.Helper()
	rows, err := h.trades.Trades(context.Background(), h.bot.ID())
	require.NoError(t, err)
	return rows
}

func TestEmptyTradeLogMetrics(t *testing.T) {
	h := newHarness(t, &stubStrategy{minHistory: 1}, []string{"AAPL"}, nil)
	m, err := h.bot.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0.0, m.TotalProfit)
	assert.Equal(t, 100000.0, m.CurrentEquity)
}

func TestIdleBotNeverTrades(t *testing.T) {
	h := newHarness(t, &stubStrategy{enter: true, minHistory: 1}, []string{"AAPL"}, nil)
	h.tick(3)
	assert.Empty(t, h.log(t))
}

func TestEntryWaitsForMinHistory(t *testing.T) {
	strat := &stubStrategy{enter: true, minHistory: 20}
	h := newHarness(t, strat, []string{"AAPL"}, nil)
	h.markRunning()
	h.tick(19)
	assert.Empty(t, h.log(t))
	assert.Equal(t, 0, strat.entries)

	h.tick(1)
	rows := h.log(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "BUY", rows[0].Action)
	assert.Equal(t, 100.0, rows[0].Qty) // floor(100000 * 0.1 / 100)
	assert.True(t, rows[0].Opening)
}

func TestClosedSymbolIsNotReopenedInSameTick(t *testing.T) {
	strat := &stubStrategy{enter: true, exit: true, minHistory: 1}
	h := newHarness(t, strat, []string{"AAPL"}, nil)
	h.markRunning()

	h.tick(1)
	require.Len(t, h.log(t), 1)

	h.tick(1)
	rows := h.log(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "SELL", rows[1].Action)
	pos, err := h.ledger.Positions(context.Background(), h.bot.ID())
	require.NoError(t, err)
	assert.Empty(t, pos)

	h.tick(1)
	rows = h.log(t)
	require.Len(t, rows, 3)
	assert.Equal(t, "BUY", rows[2].Action)
}

func TestMetricsFollowTradeLog(t *testing.T) {
	strat := &stubStrategy{enter: true, minHistory: 1}
	h := newHarness(t, strat, []string{"AAPL"}, nil)
	h.markRunning()
	h.tick(1)

	m, err := h.bot.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, m.TotalTrades)

	strat.exit = true
	strat.enter = false
	h.market.set("AAPL", 110)
	h.tick(1)
	m, err = h.bot.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalTrades)
	assert.Equal(t, 1, m.Wins)
	assert.InDelta(t, 1000.0, m.TotalProfit, 1e-9)
	assert.InDelta(t, 101000.0, m.CurrentEquity, 1e-9)
}

func TestStopLiquidatesEveryPositionOnce(t *testing.T) {
	strat := &stubStrategy{enter: true, minHistory: 1}
	h := newHarness(t, strat, []string{"AAPL", "MSFT"}, nil)
	h.markRunning()
	h.tick(1)
	require.Len(t, h.log(t), 2)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.bot.Stop(context.Background(), "experiment stopped")
		}()
	}
	wg.Wait()
	assert.Equal(t, StatusStopped, h.bot.Status())

	rows := h.log(t)
	require.Len(t, rows, 4)
	closing := map[string]int{}
	for _, r := range rows[2:] {
		assert.False(t, r.Opening)
		closing[r.Symbol]++
	}
	assert.Equal(t, map[string]int{"AAPL": 1, "MSFT": 1}, closing)
	pos, err := h.ledger.Positions(context.Background(), h.bot.ID())
	require.NoError(t, err)
	assert.Empty(t, pos)

	h.tick(2)
	assert.Len(t, h.log(t), 4)
}

func TestMarketFailureSkipsTick(t *testing.T) {
	strat := &stubStrategy{enter: true, minHistory: 1}
	h := newHarness(t, strat, []string{"AAPL"}, nil)
	h.markRunning()
	h.market.err = errors.New("feed down")
	h.tick(2)
	assert.Empty(t, h.log(t))
	assert.Equal(t, 0, strat.entries)
}

func TestStartAndStopThroughScheduler(t *testing.T) {
	strat := &stubStrategy{minHistory: 1}
	h := newHarness(t, strat, []string{"AAPL"}, nil)
	require.NoError(t, h.bot.Start(context.Background()))
	assert.Equal(t, StatusRunning, h.bot.Status())
	assert.ErrorIs(t, h.bot.Start(context.Background()), ErrNotIdle)
	require.NoError(t, h.bot.Stop(context.Background(), "done"))
	info := h.bot.Info(context.Background())
	assert.Equal(t, StatusStopped, info.Status)
	assert.Equal(t, "done", info.StopReason)
	require.NotNil(t, info.StartedAt)
	require.NotNil(t, info.StoppedAt)
}

func TestStopIdleBotSkipsLiquidation(t *testing.T) {
	h := newHarness(t, &stubStrategy{minHistory: 1}, []string{"AAPL"}, nil)
	require.NoError(t, h.bot.Stop(context.Background(), "deleted"))
	assert.Equal(t, StatusStopped, h.bot.Status())
	assert.ErrorIs(t, h.bot.Start(context.Background()), ErrNotIdle)
}

type fixedEvaluator struct {
	decision *ai.Decision
	calls    int
}

func (f *fixedEvaluator) Evaluate(context.Context, events.NewsEvent, ai.BotContext) (*ai.Decision, error) {
	f.calls++
	if f.decision == nil {
		return nil, nil
	}
	d := *f.decision
	return &d, nil
}

func newsAI(t *testing.T) strategy.Strategy {
	t.Helper()
	params, err := strategy.Resolve(strategy.KindNewsAI)
	require.NoError(t, err)
	s, err := strategy.New(strategy.KindNewsAI, params, strategy.Deps{})
	require.NoError(t, err)
	return s
}

func TestReactiveEntryAndTargetExit(t *testing.T) {
	eval := &fixedEvaluator{decision: &ai.Decision{Symbol: "AAPL", Action: strategy.ActionBuy, Confidence: 80, Reasoning: "beat"}}
	h := newHarness(t, newsAI(t), []string{"AAPL"}, eval)
	h.markRunning()
	ctx := context.Background()

	h.bot.HandleEvent(ctx, events.NewsEvent{ID: "1", Symbols: []string{"TSLA"}})
	assert.Equal(t, 0, eval.calls)

	h.bot.HandleEvent(ctx, events.NewsEvent{ID: "2", Symbols: []string{"aapl"}})
	rows := h.log(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "BUY", rows[0].Action)
	assert.Equal(t, 10.0, rows[0].Qty)
	targets := h.bot.targets["AAPL"]
	assert.InDelta(t, 103.0, targets.ProfitTarget, 1e-9)
	assert.InDelta(t, 98.0, targets.StopLoss, 1e-9)

	eval.decision = nil
	h.market.set("AAPL", 104)
	h.clock.Advance(time.Minute)
	h.bot.HandleEvent(ctx, events.NewsEvent{ID: "3", Symbols: []string{"AAPL"}})
	rows = h.log(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "SELL", rows[1].Action)
	assert.InDelta(t, 40.0, rows[1].RealizedPnL, 1e-9)
}

func TestReactiveIgnoresLowConfidence(t *testing.T) {
	eval := &fixedEvaluator{decision: &ai.Decision{Symbol: "AAPL", Action: strategy.ActionBuy, Confidence: 10}}
	h := newHarness(t, newsAI(t), []string{"AAPL"}, eval)
	h.markRunning()
	h.bot.HandleEvent(context.Background(), events.NewsEvent{Symbols: []string{"AAPL"}})
	assert.Equal(t, 1, eval.calls)
	assert.Empty(t, h.log(t))
}

func TestReactiveBotRegistersWithHub(t *testing.T) {
	eval := &fixedEvaluator{decision: &ai.Decision{Symbol: "AAPL", Action: strategy.ActionBuy, Confidence: 90}}
	h := newHarness(t, newsAI(t), []string{"AAPL"}, eval)
	require.NoError(t, h.bot.Start(context.Background()))
	assert.Equal(t, 1, h.bus.Subscribers("news"))

	h.bus.Publish(context.Background(), "news", events.NewsEvent{ID: "x", Source: "wire", Symbols: []string{"AAPL"}})
	require.Eventually(t, func() bool { return len(h.log(t)) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.bot.Stop(context.Background(), "done"))
	assert.Equal(t, 0, h.bus.Subscribers("news"))
	rows := h.log(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "SELL", rows[1].Action)
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics([]store.TradeRecord{
		{Opening: true, RealizedPnL: -1},
		{RealizedPnL: 10},
		{Opening: true, RealizedPnL: -1},
		{RealizedPnL: -4},
	}, 50000)
	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.Wins)
	assert.Equal(t, 1, m.Losses)
	assert.InDelta(t, 4.0, m.TotalProfit, 1e-9)
	assert.InDelta(t, 50004.0, m.CurrentEquity, 1e-9)
}

func resolved(t *testing.T, kind strategy.Kind, overrides map[string]any) strategy.Strategy {
	t.Helper()
	params, err := strategy.Resolve(kind, overrides)
	require.NoError(t, err)
	s, err := strategy.New(kind, params, strategy.Deps{})
	require.NoError(t, err)
	return s
}

func nyClock(t *testing.T, day, hour, minute int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(2024, 3, day, hour, minute, 0, 0, loc)
}

func TestVolumeRatioComparesAgainstPriorWindow(t *testing.T) {
	strat := &stubStrategy{minHistory: 1}
	h := newHarness(t, strat, []string{"AAPL"}, nil)
	h.markRunning()
	h.market.setVolume(100)
	h.tick(19)
	h.market.setVolume(300)
	h.tick(1)

	strat.mu.Lock()
	last := strat.last
	strat.mu.Unlock()
	assert.InDelta(t, 100.0, last.AvgVolume, 1e-9)
	assert.InDelta(t, 3.0, last.VolumeRatio(), 1e-9)
}

func TestOpeningRangeRetriesAfterRejectedEntry(t *testing.T) {
	orb := resolved(t, strategy.KindOpeningRange, map[string]any{"volume_ratio": 0.0})
	h := newHarness(t, orb, []string{"SPY"}, nil)
	h.markRunning()

	h.clock.Set(nyClock(t, 11, 9, 31))
	h.market.set("SPY", 100)
	h.tick(2)
	h.market.set("SPY", 101)
	h.tick(2)
	rng := orb.(*strategy.OpeningRange).Range(strategy.Input{BotID: h.bot.ID(), Symbol: "SPY", Now: h.clock.Now()})
	require.Equal(t, 4, rng.Samples)

	h.clock.Set(nyClock(t, 11, 10, 5))
	h.market.set("SPY", 102)
	h.ledger.failNext(1)
	h.tick(1)
	assert.Empty(t, h.log(t), "rejected order leaves no trade")

	h.market.set("SPY", 102.5)
	h.tick(1)
	rows := h.log(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "BUY", rows[0].Action)
	assert.Equal(t, 102.5, rows[0].Price)

	rng = orb.(*strategy.OpeningRange).Range(strategy.Input{BotID: h.bot.ID(), Symbol: "SPY", Now: h.clock.Now()})
	assert.True(t, rng.TradeTaken)
}

func TestGapFadeUsesDailySessionOncePerDay(t *testing.T) {
	h := newHarness(t, resolved(t, strategy.KindGapFade, nil), []string{"TSLA"}, nil)
	h.markRunning()
	h.clock.Set(nyClock(t, 11, 9, 39))
	h.market.set("TSLA", 102.5)

	h.market.setDaily("TSLA", market.Bar{Open: 103, High: 104, Low: 102, Close: 102.5})
	h.tick(1)
	assert.Empty(t, h.log(t), "one daily bar gives no session")
	assert.Equal(t, 1, h.market.dailyFetches())

	h.market.setDaily("TSLA",
		market.Bar{Open: 99, High: 101, Low: 98, Close: 100},
		market.Bar{Open: 103, High: 104, Low: 102, Close: 102.5},
	)
	h.tick(1)
	rows := h.log(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "SELL_SHORT", rows[0].Action)
	assert.Equal(t, 100.0, h.bot.targets["TSLA"].ProfitTarget)
	assert.InDelta(t, 104.5, h.bot.targets["TSLA"].StopLoss, 1e-9)
	assert.Equal(t, 2, h.market.dailyFetches())

	h.tick(3)
	assert.Equal(t, 2, h.market.dailyFetches(), "session cached for the day")
	assert.Len(t, h.log(t), 1)

	h.clock.Set(nyClock(t, 12, 9, 39))
	h.tick(1)
	assert.Equal(t, 3, h.market.dailyFetches())
}
