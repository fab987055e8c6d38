package experiment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"botarena/internal/bot"
	"botarena/internal/events"
	"botarena/internal/ledger"
	"botarena/internal/ledger/paper"
	"botarena/internal/market"
	"botarena/internal/presets"
	"botarena/internal/scheduler"
	"botarena/internal/store"
	"botarena/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	manager *Manager
	ledger  *paper.Ledger
	store   *memstore.Store
	funder  ledger.Funder
}

type flakyFunder struct {
	*paper.Ledger
	mu     sync.Mutex
	calls  int
	failAt int
}

func (f *flakyFunder) Fund(ctx context.Context, id string, amount float64) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls == f.failAt
	f.mu.Unlock()
	if fail {
		return errors.New("account service unavailable")
	}
	return f.Ledger.Fund(ctx, id, amount)
}

func newFixture(t *testing.T, funder func(*paper.Ledger) ledger.Funder) *fixture {
	t.Helper()
	registry, err := presets.NewRegistry("")
	require.NoError(t, err)
	led := paper.New(paper.Config{})
	st := memstore.New()
	f := &fixture{ledger: led, store: st, funder: led}
	if funder != nil {
		f.funder = funder(led)
	}
	hub := scheduler.NewHub(events.NewBus(), "news", scheduler.Limits{})
	m, err := NewManager(Deps{
		Params:  registry,
		Store:   st,
		Results: st,
		Funder:  f.funder,
		Bot: bot.Deps{
			Market:      market.NewSimProvider(7, 100, 0.001),
			Ledger:      led,
			Trades:      st,
			Scheduler:   scheduler.NewService(hub, time.Hour),
			TickTimeout: time.Second,
		},
	})
	require.NoError(t, err)
	f.manager = m
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return f
}

func threeKinds() Spec {
	return Spec{
		BotCount:  3,
		Watchlist: []string{"aapl", "MSFT"},
		Strategies: []StrategySpec{
			{Kind: "momentum"},
			{Kind: "mean_reversion", Watchlist: []string{"TSLA"}},
			{Kind: "news_ai", Overrides: map[string]any{"min_confidence": 70}},
		},
	}
}

func TestCreateBuildsIdleBots(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	info, err := f.manager.Create(ctx, "owner-1", threeKinds())
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, info.Status)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, info.Watchlist)
	require.Len(t, info.Bots, 3)
	for i, b := range info.Bots {
		assert.Equal(t, bot.StatusIdle, b.Status)
		assert.Equal(t, i, b.Index)
		assert.Equal(t, bot.DefaultCapital, b.Capital)
	}
	assert.Equal(t, []string{"TSLA"}, info.Bots[1].Watchlist)
	assert.EqualValues(t, 70, info.Bots[2].Params["min_confidence"])

	rec, err := f.store.GetExperiment(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, "created", rec.Status)
	rows, err := f.store.ListBots(ctx, info.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.False(t, f.manager.Tracker().IsTracked("AAPL"))
}

func TestCreateRejectsInvalidSpec(t *testing.T) {
	f := newFixture(t, nil)
	cases := map[string]Spec{
		"no strategies":    {Watchlist: []string{"AAPL"}},
		"unknown kind":     {Watchlist: []string{"AAPL"}, Strategies: []StrategySpec{{Kind: "martingale"}}},
		"count mismatch":   {BotCount: 2, Watchlist: []string{"AAPL"}, Strategies: []StrategySpec{{Kind: "momentum"}}},
		"empty watchlist":  {Strategies: []StrategySpec{{Kind: "momentum"}}},
		"bad override":     {Watchlist: []string{"AAPL"}, Strategies: []StrategySpec{{Kind: "momentum", Overrides: map[string]any{"fast_period": -3}}}},
		"negative capital": {Watchlist: []string{"AAPL"}, Capital: -1, Strategies: []StrategySpec{{Kind: "momentum"}}},
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.manager.Create(context.Background(), "owner", spec)
			assert.ErrorIs(t, err, ErrInvalidSpec)
		})
	}
	assert.Empty(t, f.manager.experiments)
}

func TestStartRunsBotsAndTracksUnion(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	created, err := f.manager.Create(ctx, "owner", threeKinds())
	require.NoError(t, err)

	info, err := f.manager.Start(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, info.Status)
	require.NotNil(t, info.StartedAt)
	for _, b := range info.Bots {
		assert.Equal(t, bot.StatusRunning, b.Status)
		acct, err := f.ledger.Account(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 100000.0, acct.Funded)
	}
	for _, sym := range []string{"AAPL", "MSFT", "TSLA"} {
		assert.True(t, f.manager.Tracker().IsTracked(sym), sym)
	}

	_, err = f.manager.Start(ctx, created.ID)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestStartIsolatesBotFailures(t *testing.T) {
	f := newFixture(t, func(l *paper.Ledger) ledger.Funder { return &flakyFunder{Ledger: l, failAt: 2} })
	ctx := context.Background()
	created, err := f.manager.Create(ctx, "owner", threeKinds())
	require.NoError(t, err)

	info, err := f.manager.Start(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, info.Status)
	statuses := map[bot.Status]int{}
	for _, b := range info.Bots {
		statuses[b.Status]++
		if b.Status == bot.StatusStopped {
			assert.Contains(t, b.StopReason, "funding failed")
		}
	}
	assert.Equal(t, map[bot.Status]int{bot.StatusRunning: 2, bot.StatusStopped: 1}, statuses)
}

func TestStopLiquidatesEveryPositionOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	created, err := f.manager.Create(ctx, "owner", Spec{
		Watchlist: []string{"AAPL", "MSFT"},
		Capital:   200000,
		Strategies: []StrategySpec{
			{Kind: "news_ai"},
			{Kind: "news_ai"},
		},
	})
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, created.ID)
	require.NoError(t, err)

	for _, b := range created.Bots {
		acct, err := f.ledger.Account(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 100000.0, acct.Cash)
		_, err = f.ledger.PlaceOrder(ctx, b.ID, ledger.OrderRequest{Symbol: "AAPL", Side: ledger.Buy, PositionSide: ledger.Long, Qty: 5, Price: 100})
		require.NoError(t, err)
		_, err = f.ledger.PlaceOrder(ctx, b.ID, ledger.OrderRequest{Symbol: "MSFT", Side: ledger.Sell, PositionSide: ledger.Short, Qty: 3, Price: 100})
		require.NoError(t, err)
	}

	results, err := f.manager.Stop(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)

	for _, b := range created.Bots {
		trades, err := f.store.Trades(ctx, b.ID)
		require.NoError(t, err)
		require.Len(t, trades, 2)
		actions := map[string]string{}
		for _, tr := range trades {
			assert.False(t, tr.Opening)
			actions[tr.Symbol] = tr.Action
		}
		assert.Equal(t, map[string]string{"AAPL": "SELL", "MSFT": "BUY_TO_COVER"}, actions)
		pos, err := f.ledger.Positions(ctx, b.ID)
		require.NoError(t, err)
		assert.Empty(t, pos)
	}

	info, err := f.manager.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, info.Status)
	for _, b := range info.Bots {
		assert.Equal(t, bot.StatusStopped, b.Status)
	}
	assert.False(t, f.manager.Tracker().IsTracked("AAPL"))

	_, err = f.manager.Stop(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotRunning)

	archived, err := f.store.Results(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, archived, 2)
}

func TestLifecycleErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.manager.Start(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.manager.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.manager.GetBot(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.manager.Delete(ctx, "missing"), ErrNotFound)

	created, err := f.manager.Create(ctx, "owner", threeKinds())
	require.NoError(t, err)
	_, err = f.manager.Stop(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestDeletePurgesRunningExperiment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	created, err := f.manager.Create(ctx, "owner", threeKinds())
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, f.manager.Delete(ctx, created.ID))
	_, err = f.manager.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.store.GetExperiment(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.manager.GetBot(ctx, created.Bots[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.ledger.Account(ctx, created.Bots[0].ID)
	assert.ErrorIs(t, err, ledger.ErrUnknownAccount)

	results, err := f.manager.Results(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestDurationBudgetStopsExperiment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	spec := threeKinds()
	spec.Duration = 50 * time.Millisecond
	created, err := f.manager.Create(ctx, "owner", spec)
	require.NoError(t, err)
	_, err = f.manager.Start(ctx, created.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		info, err := f.manager.Get(ctx, created.ID)
		return err == nil && info.Status == StatusStopped
	}, 2*time.Second, 10*time.Millisecond)
	bi, err := f.manager.GetBot(ctx, created.Bots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "duration elapsed", bi.StopReason)
}

func TestRankOrdersByProfitThenIndex(t *testing.T) {
	ranked := Rank([]Result{
		{BotID: "a", BotIndex: 0, Metrics: bot.Metrics{TotalProfit: 5}},
		{BotID: "b", BotIndex: 1, Metrics: bot.Metrics{TotalProfit: 12}},
		{BotID: "c", BotIndex: 2, Metrics: bot.Metrics{TotalProfit: 5}},
		{BotID: "d", BotIndex: 3, Metrics: bot.Metrics{TotalProfit: -2}},
	})
	ids := make([]string, 0, len(ranked))
	for i, r := range ranked {
		assert.Equal(t, i+1, r.Rank)
		ids = append(ids, r.BotID)
	}
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids)
}
