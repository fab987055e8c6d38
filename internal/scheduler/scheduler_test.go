package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"botarena/internal/events"
	"botarena/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFixedTimeAfter(t *testing.T) {
	anchor := time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, anchor.Add(30*time.Second), nextFixedTimeAfter(anchor, 30*time.Second, anchor))
	assert.Equal(t, anchor.Add(90*time.Second), nextFixedTimeAfter(anchor, 30*time.Second, anchor.Add(61*time.Second)))
	assert.Equal(t, anchor, nextFixedTimeAfter(anchor, 30*time.Second, anchor.Add(-time.Second)))
}

func TestPeriodicSkipsWhileTickInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	p := NewPeriodic("bot", time.Hour, func(ctx context.Context) {
		started <- struct{}{}
		<-release
	})
	ctx := context.Background()
	require.True(t, p.fire(ctx))
	<-started
	assert.False(t, p.fire(ctx))
	assert.False(t, p.fire(ctx))
	assert.Equal(t, int64(2), p.Skipped())
	close(release)
	p.ticks.Wait()
	assert.True(t, p.fire(ctx))
	<-started
	p.ticks.Wait()
	assert.Equal(t, int64(2), p.Runs())
}

func TestPeriodicStopWaitsForTick(t *testing.T) {
	var finished atomic.Bool
	started := make(chan struct{})
	p := NewPeriodic("bot", time.Hour, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})
	p.RunImmediately = true
	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))
	<-started
	p.Stop()
	assert.True(t, finished.Load())
}

func TestPeriodicTicksOnInterval(t *testing.T) {
	var n atomic.Int64
	p := NewPeriodic("fast", 10*time.Millisecond, func(context.Context) { n.Add(1) })
	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, 5*time.Millisecond)
	p.Stop()
}

func TestPeriodicRejectsBadConfig(t *testing.T) {
	assert.Error(t, NewPeriodic("x", 0, func(context.Context) {}).Start(context.Background()))
	assert.Error(t, NewPeriodic("x", time.Second, nil).Start(context.Background()))
}

func TestHubRefCountsFeedSubscription(t *testing.T) {
	bus := events.NewBus()
	hub := NewHub(bus, "news", Limits{})
	noop := func(context.Context, events.NewsEvent) {}

	a, err := hub.Register(context.Background(), Subscriber{BotID: "a", Watchlist: []string{"AAPL"}, Handle: noop})
	require.NoError(t, err)
	b, err := hub.Register(context.Background(), Subscriber{BotID: "b", Watchlist: []string{"MSFT"}, Handle: noop})
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers("news"))
	_, err = hub.Register(context.Background(), Subscriber{BotID: "a", Handle: noop})
	assert.Error(t, err)

	a.Stop()
	assert.Equal(t, 1, bus.Subscribers("news"))
	b.Stop()
	assert.Equal(t, 0, bus.Subscribers("news"))
	assert.False(t, hub.Subscribed())
}

func TestHubFiltersByWatchlist(t *testing.T) {
	bus := events.NewBus()
	hub := NewHub(bus, "news", Limits{})
	var mu sync.Mutex
	got := map[string][]string{}
	handler := func(id string) func(context.Context, events.NewsEvent) {
		return func(_ context.Context, ev events.NewsEvent) {
			mu.Lock()
			got[id] = append(got[id], ev.ID)
			mu.Unlock()
		}
	}
	ra, err := hub.Register(context.Background(), Subscriber{BotID: "a", Watchlist: []string{"aapl"}, Handle: handler("a")})
	require.NoError(t, err)
	rb, err := hub.Register(context.Background(), Subscriber{BotID: "b", Watchlist: []string{"MSFT"}, Handle: handler("b")})
	require.NoError(t, err)
	defer ra.Stop()
	defer rb.Stop()

	bus.Publish(context.Background(), "news", events.NewsEvent{ID: "1", Source: "s1", Symbols: []string{"AAPL"}})
	bus.Publish(context.Background(), "news", events.NewsEvent{ID: "2", Source: "s2", Symbols: []string{"MSFT", "AAPL"}})
	bus.Publish(context.Background(), "news", events.NewsEvent{ID: "3", Source: "s3", Symbols: []string{"TSLA"}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got["a"]) == 2 && len(got["b"]) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"1", "2"}, got["a"])
	assert.Equal(t, []string{"2"}, got["b"])
	mu.Unlock()
}

func TestHubDropsOnFullQueue(t *testing.T) {
	bus := events.NewBus()
	hub := NewHub(bus, "news", Limits{QueueSize: 1, PerSourceBurst: 100, GlobalBurst: 100})
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	reg, err := hub.Register(context.Background(), Subscriber{BotID: "a", Watchlist: []string{"AAPL"}, Handle: func(context.Context, events.NewsEvent) {
		started <- struct{}{}
		<-release
	}})
	require.NoError(t, err)

	ev := events.NewsEvent{Source: "wire", Symbols: []string{"AAPL"}}
	bus.Publish(context.Background(), "news", ev)
	<-started
	bus.Publish(context.Background(), "news", ev)
	bus.Publish(context.Background(), "news", ev)
	assert.Equal(t, int64(1), reg.Dropped())
	close(release)
	reg.Stop()
	assert.Equal(t, int64(1), reg.Dropped())
}

func TestHubPerSourceRateLimit(t *testing.T) {
	bus := events.NewBus()
	hub := NewHub(bus, "news", Limits{PerSourcePerMinute: 0.001, PerSourceBurst: 2, GlobalBurst: 100, QueueSize: 10})
	var n atomic.Int64
	reg, err := hub.Register(context.Background(), Subscriber{BotID: "a", Watchlist: []string{"AAPL"}, Handle: func(context.Context, events.NewsEvent) { n.Add(1) }})
	require.NoError(t, err)
	defer reg.Stop()

	for i := 0; i < 3; i++ {
		bus.Publish(context.Background(), "news", events.NewsEvent{Source: "wire", Symbols: []string{"AAPL"}})
	}
	bus.Publish(context.Background(), "news", events.NewsEvent{Source: "other", Symbols: []string{"AAPL"}})
	require.Eventually(t, func() bool { return n.Load() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), reg.Dropped())
}

func TestHubGlobalRateLimit(t *testing.T) {
	bus := events.NewBus()
	hub := NewHub(bus, "news", Limits{GlobalPerMinute: 0.001, GlobalBurst: 1, PerSourceBurst: 10, QueueSize: 10})
	reg, err := hub.Register(context.Background(), Subscriber{BotID: "a", Watchlist: []string{"AAPL"}, Handle: func(context.Context, events.NewsEvent) {}})
	require.NoError(t, err)
	defer reg.Stop()
	bus.Publish(context.Background(), "news", events.NewsEvent{Source: "x", Symbols: []string{"AAPL"}})
	bus.Publish(context.Background(), "news", events.NewsEvent{Source: "y", Symbols: []string{"AAPL"}})
	assert.Equal(t, int64(1), reg.Dropped())
}

func TestHubGlobalLimitChargesOncePerEvent(t *testing.T) {
	bus := events.NewBus()
	hub := NewHub(bus, "news", Limits{GlobalPerMinute: 0.001, GlobalBurst: 1, PerSourceBurst: 10, QueueSize: 10})
	var n atomic.Int64
	handle := func(context.Context, events.NewsEvent) { n.Add(1) }
	ra, err := hub.Register(context.Background(), Subscriber{BotID: "a", Watchlist: []string{"AAPL"}, Handle: handle})
	require.NoError(t, err)
	defer ra.Stop()
	rb, err := hub.Register(context.Background(), Subscriber{BotID: "b", Watchlist: []string{"AAPL"}, Handle: handle})
	require.NoError(t, err)
	defer rb.Stop()

	bus.Publish(context.Background(), "news", events.NewsEvent{Source: "x", Symbols: []string{"AAPL"}})
	require.Eventually(t, func() bool { return n.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), ra.Dropped()+rb.Dropped())

	bus.Publish(context.Background(), "news", events.NewsEvent{Source: "y", Symbols: []string{"AAPL"}})
	assert.Equal(t, int64(1), ra.Dropped())
	assert.Equal(t, int64(1), rb.Dropped())
}

func TestUnregisterIsSynchronous(t *testing.T) {
	bus := events.NewBus()
	hub := NewHub(bus, "news", Limits{})
	var inHandler atomic.Bool
	started := make(chan struct{})
	reg, err := hub.Register(context.Background(), Subscriber{BotID: "a", Watchlist: []string{"AAPL"}, Handle: func(context.Context, events.NewsEvent) {
		inHandler.Store(true)
		close(started)
		time.Sleep(30 * time.Millisecond)
		inHandler.Store(false)
	}})
	require.NoError(t, err)
	bus.Publish(context.Background(), "news", events.NewsEvent{Symbols: []string{"AAPL"}})
	<-started
	reg.Stop()
	assert.False(t, inHandler.Load())
}

func TestServiceBindsOneRegime(t *testing.T) {
	bus := events.NewBus()
	svc := NewService(NewHub(bus, "news", Limits{}), time.Hour)
	ctx := context.Background()

	ticked := make(chan struct{}, 1)
	h, err := svc.Schedule(ctx, Binding{BotID: "p", Regime: strategy.RegimePolling, Tick: func(context.Context) {
		select {
		case ticked <- struct{}{}:
		default:
		}
	}})
	require.NoError(t, err)
	<-ticked
	h.Stop()
	assert.Equal(t, int64(0), h.Dropped())

	r, err := svc.Schedule(ctx, Binding{BotID: "r", Regime: strategy.RegimeReactive, Watchlist: []string{"AAPL"},
		OnEvent: func(context.Context, events.NewsEvent) {}})
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers("news"))
	r.Stop()
	assert.Equal(t, 0, bus.Subscribers("news"))

	_, err = svc.Schedule(ctx, Binding{BotID: "x", Regime: strategy.RegimePolling})
	assert.Error(t, err)
	_, err = svc.Schedule(ctx, Binding{BotID: "x", Regime: "weird", Tick: func(context.Context) {}})
	assert.Error(t, err)
}
