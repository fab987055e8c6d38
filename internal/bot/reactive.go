package bot

import (
	"context"
	"math"
	"strings"

	"botarena/internal/ai"
	"botarena/internal/events"
	"botarena/internal/ledger"
	"botarena/internal/pkg/text"
	"botarena/internal/strategy"
)

// reactiveStrategy is implemented by kinds whose entries come from the evaluator.
type reactiveStrategy interface {
	MinConfidence() float64
	DefaultQty() float64
	FallbackTargets(side strategy.Side, entry float64) strategy.Targets
}

// HandleEvent reacts to one news event: exits for held event symbols on
// stored targets, then one evaluator call that may open or close a position.
func (b *Bot) HandleEvent(ctx context.Context, ev events.NewsEvent) {
	b.work.Lock()
	defer b.work.Unlock()
	if !b.running() {
		return
	}
	defer b.recoverPanic("event")
	ctx, cancel := context.WithTimeout(ctx, b.deps.TickTimeout)
	defer cancel()

	symbols := b.relevant(ev)
	if len(symbols) == 0 {
		return
	}
	prices := b.refresh(ctx, symbols)
	positions, ok := b.positions(ctx)
	if !ok {
		return
	}
	var eventHeld []ledger.Position
	for _, p := range positions {
		if _, ok := prices[p.Symbol]; ok {
			eventHeld = append(eventHeld, p)
		}
	}
	closed := b.runExits(ctx, eventHeld, prices)

	rs, ok := b.strat.(reactiveStrategy)
	if !ok || b.deps.Evaluator == nil {
		return
	}
	bc, ok := b.botContext(ctx, positions, closed, prices)
	if !ok {
		return
	}
	var d *ai.Decision
	err := b.aiCB.Do(func() error {
		var err error
		d, err = b.deps.Evaluator.Evaluate(ctx, ev, bc)
		return err
	})
	if err != nil {
		b.log.Warnf("Bot[%s]: evaluate event %s failed: %v", b.id, ev.ID, err)
		return
	}
	if d == nil || d.Action == strategy.ActionHold {
		return
	}
	b.applyDecision(ctx, rs, *d, symbols, positions, closed, prices, bc.Cash)
}

func (b *Bot) applyDecision(ctx context.Context, rs reactiveStrategy, d ai.Decision, symbols []string,
	positions []ledger.Position, closed map[string]bool, prices map[string]float64, cash float64) {
	sym := strings.ToUpper(strings.TrimSpace(d.Symbol))
	if sym == "" && len(symbols) == 1 {
		sym = symbols[0]
	}
	if !contains(symbols, sym) {
		b.log.Debugf("Bot[%s]: decision for %q ignored, not an event symbol on the watchlist", b.id, d.Symbol)
		return
	}
	if d.Confidence < rs.MinConfidence() {
		b.log.Debugf("Bot[%s]: %s %s confidence %.0f below %.0f", b.id, d.Action, sym, d.Confidence, rs.MinConfidence())
		return
	}
	price, ok := prices[sym]
	if !ok {
		return
	}
	if err := ai.Validate(&d, price); err != nil {
		b.log.Warnf("Bot[%s]: decision rejected: %v", b.id, err)
		return
	}

	var held *ledger.Position
	for i := range positions {
		if positions[i].Symbol == sym {
			held = &positions[i]
		}
	}
	side, opens := d.Action.Opens()
	if !opens {
		if held == nil || closed[sym] || strategy.CloseAction(sideOf(held.Side)) != d.Action {
			return
		}
		b.closePosition(ctx, *held, price, "ai: "+text.Truncate(d.Reasoning, 160))
		return
	}
	if held != nil || closed[sym] {
		return
	}
	qty := d.Qty
	if qty <= 0 {
		qty = rs.DefaultQty()
	}
	if affordable := math.Floor(cash / price); qty > affordable {
		qty = affordable
	}
	if qty < 1 {
		return
	}
	targets := d.Targets
	fallback := rs.FallbackTargets(side, price)
	if targets.ProfitTarget <= 0 {
		targets.ProfitTarget = fallback.ProfitTarget
	}
	if targets.StopLoss <= 0 {
		targets.StopLoss = fallback.StopLoss
	}
	targets.Entry = price
	b.open(ctx, sym, d.Action, qty, price, targets, "ai: "+text.Truncate(d.Reasoning, 160))
}

// relevant returns the event symbols on this bot's watchlist, in watchlist order.
func (b *Bot) relevant(ev events.NewsEvent) []string {
	var out []string
	for _, sym := range b.watchlist {
		if ev.Mentions(sym) {
			out = append(out, sym)
		}
	}
	return out
}

func (b *Bot) botContext(ctx context.Context, positions []ledger.Position, closed map[string]bool, prices map[string]float64) (ai.BotContext, bool) {
	var acct ledger.Account
	err := b.ledgerCB.Do(func() error {
		var err error
		acct, err = b.deps.Ledger.Account(ctx, b.id)
		return err
	})
	if err != nil {
		b.log.Warnf("Bot[%s]: account unavailable, event skipped: %v", b.id, err)
		return ai.BotContext{}, false
	}
	bc := ai.BotContext{
		BotID:     b.id,
		Watchlist: append([]string(nil), b.watchlist...),
		Cash:      acct.Cash,
		Prices:    prices,
	}
	for _, p := range positions {
		if closed[p.Symbol] {
			continue
		}
		bc.Positions = append(bc.Positions, ai.Holding{Symbol: p.Symbol, Side: sideOf(p.Side), Qty: p.Qty, EntryPrice: p.AvgPrice})
	}
	return bc, true
}

func sideOf(s ledger.PositionSide) strategy.Side {
	if s == ledger.Short {
		return strategy.SideShort
	}
	return strategy.SideLong
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
