package bot

import (
	"context"
	"math"
	"runtime/debug"
	"strings"
	"time"

	"botarena/internal/indicator"
	"botarena/internal/ledger"
	"botarena/internal/market"
	"botarena/internal/strategy"
)

// Tick is one polling evaluation: refresh series, exits, then entries.
// Exits run before entries and a symbol closed in this tick is not reopened.
func (b *Bot) Tick(ctx context.Context) {
	b.work.Lock()
	defer b.work.Unlock()
	if !b.running() {
		return
	}
	defer b.recoverPanic("tick")
	ctx, cancel := context.WithTimeout(ctx, b.deps.TickTimeout)
	defer cancel()

	now := b.deps.NowFn()
	prices := b.refresh(ctx, b.watchlist)

	positions, ok := b.positions(ctx)
	if !ok {
		return
	}
	closed := b.runExits(ctx, positions, prices)

	if b.strat.Regime() != strategy.RegimePolling {
		return
	}
	held := make(map[string]bool, len(positions))
	for _, p := range positions {
		held[p.Symbol] = true
	}
	var acct ledger.Account
	err := b.ledgerCB.Do(func() error {
		var err error
		acct, err = b.deps.Ledger.Account(ctx, b.id)
		return err
	})
	if err != nil {
		b.log.Warnf("Bot[%s]: account unavailable, entries skipped: %v", b.id, err)
		return
	}
	cash := acct.Cash
	for _, sym := range b.watchlist {
		if ctx.Err() != nil || !b.running() {
			return
		}
		if held[sym] || closed[sym] {
			continue
		}
		price, ok := prices[sym]
		if !ok || cash <= 0 {
			continue
		}
		in, ok := b.input(ctx, sym, now, price)
		if !ok || len(in.Prices) < b.strat.MinHistory() {
			continue
		}
		sig := b.strat.CheckEntry(in)
		if !sig.ShouldEnter {
			continue
		}
		qty := math.Floor(cash * b.deps.PositionSizePct / price)
		if qty < 1 {
			b.log.Debugf("Bot[%s]: %s entry skipped, size below one unit (cash=%.2f price=%.4f)", b.id, sym, cash, price)
			continue
		}
		if order, ok := b.open(ctx, sym, sig.Action, qty, price, sig.Targets, sig.Reason); ok {
			cash -= order.Qty*order.FillPrice + order.Commission
		}
	}
}

// runExits evaluates every open position and closes those whose exit fires.
func (b *Bot) runExits(ctx context.Context, positions []ledger.Position, prices map[string]float64) map[string]bool {
	closed := make(map[string]bool)
	now := b.deps.NowFn()
	for _, p := range positions {
		price, ok := prices[p.Symbol]
		if !ok {
			continue
		}
		in, ok := b.input(ctx, p.Symbol, now, price)
		if !ok {
			continue
		}
		pos := b.toStrategyPosition(p)
		in.Position = &pos
		sig := b.strat.CheckExit(in, pos)
		if !sig.ShouldExit {
			continue
		}
		if b.closePosition(ctx, p, price, sig.Reason) {
			closed[p.Symbol] = true
		}
	}
	return closed
}

// refresh appends the latest quote of each symbol to its series and returns
// the prices that were obtained. Symbols without a quote are skipped.
func (b *Bot) refresh(ctx context.Context, symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		var q *market.Quote
		err := b.marketCB.Do(func() error {
			var err error
			q, err = b.deps.Market.Quote(ctx, sym)
			return err
		})
		if err != nil {
			b.log.Warnf("Bot[%s]: quote %s failed: %v", b.id, sym, err)
			continue
		}
		if q == nil || q.Price <= 0 || math.IsNaN(q.Price) || math.IsInf(q.Price, 0) {
			continue
		}
		volume := b.latestVolume(ctx, sym)
		at := q.Time
		if at.IsZero() {
			at = b.deps.NowFn()
		}
		b.deps.Series.Series(b.id, sym).Append(market.Sample{Time: at, Price: q.Price, Volume: volume})
		out[sym] = q.Price
	}
	return out
}

func (b *Bot) latestVolume(ctx context.Context, sym string) float64 {
	var bars []market.Bar
	err := b.marketCB.Do(func() error {
		var err error
		bars, err = b.deps.Market.Bars(ctx, sym, b.deps.BarTimeframe, 1)
		return err
	})
	if err != nil || len(bars) == 0 {
		return 0
	}
	return bars[len(bars)-1].Volume
}

func (b *Bot) positions(ctx context.Context) ([]ledger.Position, bool) {
	var out []ledger.Position
	err := b.ledgerCB.Do(func() error {
		var err error
		out, err = b.deps.Ledger.Positions(ctx, b.id)
		return err
	})
	if err != nil {
		b.log.Warnf("Bot[%s]: positions unavailable, tick skipped: %v", b.id, err)
		return nil, false
	}
	for i := range out {
		out[i].Symbol = strings.ToUpper(strings.TrimSpace(out[i].Symbol))
	}
	return out, true
}

// input assembles the strategy view of sym from the bot's series.
func (b *Bot) input(ctx context.Context, sym string, now time.Time, price float64) (strategy.Input, bool) {
	series, ok := b.deps.Series.Lookup(b.id, sym)
	if !ok || series.Len() == 0 {
		return strategy.Input{}, false
	}
	volumes := series.Volumes()
	in := strategy.Input{
		BotID:        b.id,
		Symbol:       sym,
		Now:          now,
		Prices:       series.Prices(),
		Volumes:      volumes,
		CurrentPrice: price,
		AvgVolume:    indicator.BaselineVolume(volumes, b.deps.VolumePeriod),
	}
	if b.strat.Kind() == strategy.KindGapFade {
		in.Session = b.session(ctx, sym, now)
	}
	return in, true
}

// session returns today's open and the previous close, fetched once per
// session day from daily bars.
func (b *Bot) session(ctx context.Context, sym string, now time.Time) *strategy.Session {
	day := b.deps.Clock.Day(now)
	if e, ok := b.sessions[sym]; ok && e.day == day && e.session != nil {
		return e.session
	}
	var bars []market.Bar
	err := b.marketCB.Do(func() error {
		var err error
		bars, err = b.deps.Market.Bars(ctx, sym, "1Day", 2)
		return err
	})
	if err != nil || len(bars) < 2 {
		return nil
	}
	last := bars[len(bars)-1]
	s := &strategy.Session{Open: last.Open, PrevClose: bars[len(bars)-2].Close}
	if s.Open <= 0 || s.PrevClose <= 0 {
		return nil
	}
	b.sessions[sym] = sessionEntry{day: day, session: s}
	return s
}

func (b *Bot) toStrategyPosition(p ledger.Position) strategy.Position {
	return strategy.Position{
		Symbol:     p.Symbol,
		Side:       sideOf(p.Side),
		Qty:        p.Qty,
		EntryPrice: p.AvgPrice,
		OpenedAt:   p.OpenedAt,
		Targets:    b.targets[p.Symbol],
	}
}

func (b *Bot) recoverPanic(where string) {
	if r := recover(); r != nil {
		b.log.Errorf("Bot[%s]: %s panic: %v\n%s", b.id, where, r, debug.Stack())
	}
}
