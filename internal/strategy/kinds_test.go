package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func momentumSeries() []float64 {
	prices := make([]float64, 0, 20)
	for i := 0; i < 19; i++ {
		prices = append(prices, 100-0.1*float64(i))
	}
	return append(prices, 105)
}

func TestMomentumNeedsMinimumHistory(t *testing.T) {
	s := mustNew(t, KindMomentum, nil)
	all := momentumSeries()

	short := s.CheckEntry(Input{Symbol: "AAPL", Prices: all[:19], CurrentPrice: all[18]})
	assert.False(t, short.ShouldEnter)
	assert.Equal(t, "insufficient history", short.Reason)

	sig := s.CheckEntry(Input{Symbol: "AAPL", Prices: all, CurrentPrice: 105})
	require.True(t, sig.ShouldEnter)
	assert.Equal(t, ActionBuy, sig.Action)
	assert.Contains(t, sig.Reason, "crossover")
	assert.InDelta(t, 99.68, sig.Indicators["sma_fast"], 1e-9)
	assert.InDelta(t, 99.26, sig.Indicators["sma_slow"], 1e-9)
	assert.InDelta(t, 105*1.02, sig.Targets.ProfitTarget, 1e-9)
	assert.InDelta(t, 105*0.99, sig.Targets.StopLoss, 1e-9)
	assert.GreaterOrEqual(t, sig.Confidence, 0.0)
	assert.LessOrEqual(t, sig.Confidence, 100.0)
}

func TestMeanReversionEntryAndReversionExit(t *testing.T) {
	s := mustNew(t, KindMeanReversion, nil)
	prices := make([]float64, 0, 21)
	volumes := make([]float64, 0, 21)
	for i := 0; i < 20; i++ {
		prices = append(prices, 100)
		volumes = append(volumes, 100)
	}
	prices = append(prices, 97)
	volumes = append(volumes, 300)
	in := Input{Symbol: "MSFT", Prices: prices, Volumes: volumes, CurrentPrice: 97, AvgVolume: 100}

	sig := s.CheckEntry(in)
	require.True(t, sig.ShouldEnter, sig.Reason)
	assert.Equal(t, ActionBuy, sig.Action)
	ref := (19*100*100 + 97*300) / 2200.0
	assert.InDelta(t, ref, sig.Targets.ProfitTarget, 1e-9)

	quiet := in
	quiet.AvgVolume = 300
	assert.False(t, s.CheckEntry(quiet).ShouldEnter)

	pos := Position{Symbol: "MSFT", Side: SideLong, Qty: 5, EntryPrice: 97, Targets: Targets{StopLoss: 95}}
	exitIn := in
	exitIn.CurrentPrice = 99.7
	out := s.CheckExit(exitIn, pos)
	assert.True(t, out.ShouldExit)
	assert.Contains(t, out.Reason, "reverted")
}

func squeezeSeries() []float64 {
	prices := make([]float64, 40)
	for i := range prices {
		if i%2 == 0 {
			prices[i] = 100.2
		} else {
			prices[i] = 99.8
		}
	}
	return prices
}

func TestSqueezeBreakoutCounterLifecycle(t *testing.T) {
	s := mustNew(t, KindSqueezeBreakout, nil).(*SqueezeBreakout)
	now := nyTime(t, 11, 10, 0)
	squeezed := squeezeSeries()
	in := Input{BotID: "b1", Symbol: "NVDA", Now: now, Prices: squeezed, CurrentPrice: squeezed[39]}

	for i := 1; i <= 3; i++ {
		sig := s.CheckEntry(in)
		assert.False(t, sig.ShouldEnter)
		assert.Equal(t, i, s.SqueezeTicks(in))
	}

	released := append(append([]float64(nil), squeezed...), 103)
	in.Prices = released
	in.CurrentPrice = 103
	sig := s.CheckEntry(in)
	require.True(t, sig.ShouldEnter, sig.Reason)
	assert.Equal(t, ActionBuy, sig.Action)
	assert.Equal(t, 0, s.SqueezeTicks(in))

	// a second release without a new squeeze does not qualify
	assert.False(t, s.CheckEntry(in).ShouldEnter)
}

func TestSqueezeBreakoutShortSqueezeDoesNotQualify(t *testing.T) {
	s := mustNew(t, KindSqueezeBreakout, nil).(*SqueezeBreakout)
	squeezed := squeezeSeries()
	in := Input{BotID: "b1", Symbol: "NVDA", Now: nyTime(t, 11, 10, 0), Prices: squeezed}
	s.CheckEntry(in)
	in.Prices = append(append([]float64(nil), squeezed...), 103)
	sig := s.CheckEntry(in)
	assert.False(t, sig.ShouldEnter)
	assert.Equal(t, 0, s.SqueezeTicks(in))
}

func divergenceSeries(last float64) []float64 {
	prices := make([]float64, 0, 40)
	for i := 0; i < 20; i++ {
		if i%2 == 1 {
			prices = append(prices, 100.5)
		} else {
			prices = append(prices, 100)
		}
	}
	prices = append(prices, 98, 96, 94, 92, 90, 91, 92, 93, 94, 95)
	return append(prices, 94.5, 93.5, 94, 93, 92.5, 91.5, 92, 90.5, 89.5, last)
}

func TestDivergenceBullishWithConfirmation(t *testing.T) {
	s := mustNew(t, KindDivergence, nil)
	prices := divergenceSeries(90)
	sig := s.CheckEntry(Input{Symbol: "AMD", Prices: prices, CurrentPrice: 90})
	require.True(t, sig.ShouldEnter, sig.Reason)
	assert.Equal(t, ActionBuy, sig.Action)
	assert.Contains(t, sig.Reason, "bullish divergence")
	assert.Greater(t, sig.Indicators["rsi_delta"], 5.0)
	assert.Less(t, sig.Indicators["price_change_pct"], 0.0)
	assert.Equal(t, 70.0, sig.Confidence)

	unconfirmed := divergenceSeries(89.4)
	sig = s.CheckEntry(Input{Symbol: "AMD", Prices: unconfirmed, CurrentPrice: 89.4})
	assert.False(t, sig.ShouldEnter)
	assert.Contains(t, sig.Reason, "confirmation")

	loose := mustNew(t, KindDivergence, map[string]any{"require_confirmation": false})
	assert.True(t, loose.CheckEntry(Input{Symbol: "AMD", Prices: unconfirmed, CurrentPrice: 89.4}).ShouldEnter)

	strict := mustNew(t, KindDivergence, map[string]any{"min_strength": 15})
	assert.False(t, strict.CheckEntry(Input{Symbol: "AMD", Prices: prices, CurrentPrice: 90}).ShouldEnter)
}

func orbInput(at time.Time, price, volume float64) Input {
	return Input{
		BotID:        "b1",
		Symbol:       "SPY",
		Now:          at,
		Prices:       []float64{price},
		Volumes:      []float64{volume},
		CurrentPrice: price,
		AvgVolume:    100,
	}
}

func TestOpeningRangeOneTradePerDay(t *testing.T) {
	s := mustNew(t, KindOpeningRange, nil).(*OpeningRange)

	for _, tick := range []struct {
		minute int
		price  float64
	}{{35, 100}, {45, 101}, {55, 99.5}} {
		sig := s.CheckEntry(orbInput(nyTime(t, 11, 9, tick.minute), tick.price, 100))
		assert.False(t, sig.ShouldEnter)
	}
	rng := s.Range(orbInput(nyTime(t, 11, 10, 0), 0, 0))
	assert.Equal(t, 101.0, rng.High)
	assert.Equal(t, 99.5, rng.Low)
	assert.Equal(t, 3, rng.Samples)

	weak := s.CheckEntry(orbInput(nyTime(t, 11, 10, 2), 101.5, 100))
	assert.False(t, weak.ShouldEnter)
	assert.Contains(t, weak.Reason, "volume")

	sig := s.CheckEntry(orbInput(nyTime(t, 11, 10, 5), 101.5, 300))
	require.True(t, sig.ShouldEnter, sig.Reason)
	assert.Equal(t, ActionBuy, sig.Action)
	assert.Equal(t, 99.5, sig.Targets.StopLoss)
	assert.InDelta(t, 103.0, sig.Targets.ProfitTarget, 1e-9)

	unfilled := s.CheckEntry(orbInput(nyTime(t, 11, 10, 7), 101.6, 300))
	assert.True(t, unfilled.ShouldEnter, "signal alone does not use up the day's trade")
	s.RecordEntry("b1", "SPY", nyTime(t, 11, 10, 7))

	again := s.CheckEntry(orbInput(nyTime(t, 11, 10, 10), 102, 300))
	assert.False(t, again.ShouldEnter)
	assert.Equal(t, "already traded today", again.Reason)
	assert.Equal(t, 0, s.DayResets())

	for m := 35; m < 40; m++ {
		s.CheckEntry(orbInput(nyTime(t, 12, 9, m), 100, 100))
	}
	next := s.Range(orbInput(nyTime(t, 12, 9, 40), 0, 0))
	assert.False(t, next.TradeTaken)
	assert.Equal(t, 5, next.Samples)
	assert.Equal(t, 1, s.DayResets())
}

func TestOpeningRangeExitsBeforeClose(t *testing.T) {
	s := mustNew(t, KindOpeningRange, nil)
	pos := Position{Symbol: "SPY", Side: SideLong, Qty: 1, EntryPrice: 101.5, Targets: Targets{ProfitTarget: 103, StopLoss: 99.5}}
	assert.False(t, s.CheckExit(orbInput(nyTime(t, 11, 15, 0), 102, 100), pos).ShouldExit)
	out := s.CheckExit(orbInput(nyTime(t, 11, 15, 46), 102, 100), pos)
	assert.True(t, out.ShouldExit)
	assert.Equal(t, "session close approaching", out.Reason)
}

func gapInput(t *testing.T, hour, minute int, price, open float64) Input {
	return Input{
		BotID:        "b1",
		Symbol:       "TSLA",
		Now:          nyTime(t, 11, hour, minute),
		Prices:       []float64{price},
		CurrentPrice: price,
		Session:      &Session{Open: open, PrevClose: 100},
	}
}

func TestGapFadeBoundsAndTarget(t *testing.T) {
	s := mustNew(t, KindGapFade, nil).(*GapFade)

	assert.False(t, s.CheckEntry(gapInput(t, 9, 32, 102.5, 103)).ShouldEnter, "before window")
	assert.False(t, s.CheckEntry(gapInput(t, 10, 31, 102.5, 103)).ShouldEnter, "after window")
	assert.False(t, s.CheckEntry(gapInput(t, 9, 40, 105.5, 106)).ShouldEnter, "gap too large")
	assert.False(t, s.CheckEntry(gapInput(t, 9, 40, 100.4, 100.5)).ShouldEnter, "gap too small")
	noSession := gapInput(t, 9, 40, 102.5, 103)
	noSession.Session = nil
	assert.False(t, s.CheckEntry(noSession).ShouldEnter)

	sig := s.CheckEntry(gapInput(t, 9, 40, 102.5, 103))
	require.True(t, sig.ShouldEnter, sig.Reason)
	assert.Equal(t, ActionSellShort, sig.Action)
	assert.Equal(t, 100.0, sig.Targets.ProfitTarget)
	assert.InDelta(t, 104.5, sig.Targets.StopLoss, 1e-9)
	assert.True(t, s.CheckEntry(gapInput(t, 9, 42, 102.5, 103)).ShouldEnter, "retry until an entry is recorded")
	s.RecordEntry("b1", "TSLA", nyTime(t, 11, 9, 42))
	assert.False(t, s.CheckEntry(gapInput(t, 9, 45, 102.5, 103)).ShouldEnter, "one fade per day")

	down := mustNew(t, KindGapFade, nil)
	long := down.CheckEntry(gapInput(t, 9, 40, 97.5, 97))
	require.True(t, long.ShouldEnter, long.Reason)
	assert.Equal(t, ActionBuy, long.Action)
	assert.Equal(t, 100.0, long.Targets.ProfitTarget)
}

func TestGapFadeExits(t *testing.T) {
	s := mustNew(t, KindGapFade, nil).(*GapFade)
	pos := Position{
		Symbol:     "TSLA",
		Side:       SideShort,
		Qty:        10,
		EntryPrice: 102.5,
		OpenedAt:   nyTime(t, 11, 9, 40),
		Targets:    Targets{Entry: 102.5, ProfitTarget: 100, StopLoss: 104.5},
	}

	assert.False(t, s.CheckExit(gapInput(t, 9, 50, 102, 103), pos).ShouldExit)

	full := s.CheckExit(gapInput(t, 9, 55, 100, 103), pos)
	assert.True(t, full.ShouldExit)
	assert.Equal(t, "gap fully filled", full.Reason)

	early := s.CheckExit(gapInput(t, 10, 0, 101.4, 103), pos)
	assert.False(t, early.ShouldExit, "partial fill only counts after the window")
	partial := s.CheckExit(gapInput(t, 10, 40, 101.4, 103), pos)
	assert.True(t, partial.ShouldExit)
	assert.Contains(t, partial.Reason, "partial fill")

	stop := s.CheckExit(gapInput(t, 9, 50, 104.6, 103), pos)
	assert.True(t, stop.ShouldExit)
	assert.Contains(t, stop.Reason, "gap extension")

	timeout := s.CheckExit(gapInput(t, 11, 45, 102.8, 103), pos)
	assert.True(t, timeout.ShouldExit)
	assert.Equal(t, "max hold time reached", timeout.Reason)

	assert.InDelta(t, 1.0, s.State(gapInput(t, 11, 45, 0, 103)).MaxFill, 1e-9)
}

func TestNewsAIIsReactiveAndExitsOnTargets(t *testing.T) {
	s := mustNew(t, KindNewsAI, map[string]any{"min_confidence": 70})
	assert.Equal(t, RegimeReactive, s.Regime())
	assert.False(t, s.CheckEntry(Input{Symbol: "AAPL", Prices: []float64{100}}).ShouldEnter)
	n := s.(*NewsAI)
	assert.Equal(t, 70.0, n.MinConfidence())
	tg := n.FallbackTargets(SideLong, 100)
	assert.InDelta(t, 103.0, tg.ProfitTarget, 1e-9)
	assert.InDelta(t, 98.0, tg.StopLoss, 1e-9)

	pos := Position{Symbol: "AAPL", Side: SideLong, Qty: 10, EntryPrice: 100, Targets: Targets{ProfitTarget: 110, StopLoss: 95}}
	assert.False(t, s.CheckExit(Input{Symbol: "AAPL", CurrentPrice: 104}, pos).ShouldExit)
	assert.True(t, s.CheckExit(Input{Symbol: "AAPL", CurrentPrice: 110}, pos).ShouldExit)
}
