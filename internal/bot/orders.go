package bot

import (
	"context"
	"strings"

	"botarena/internal/ledger"
	"botarena/internal/store"
	"botarena/internal/strategy"

	"github.com/google/uuid"
)

func orderFor(action strategy.Action) (ledger.OrderSide, ledger.PositionSide, bool) {
	switch action {
	case strategy.ActionBuy:
		return ledger.Buy, ledger.Long, true
	case strategy.ActionSell:
		return ledger.Sell, ledger.Long, true
	case strategy.ActionSellShort:
		return ledger.Sell, ledger.Short, true
	case strategy.ActionBuyToCover:
		return ledger.Buy, ledger.Short, true
	default:
		return "", "", false
	}
}

// open places an opening order and remembers its exit targets.
func (b *Bot) open(ctx context.Context, sym string, action strategy.Action, qty, price float64, targets strategy.Targets, reason string) (ledger.Order, bool) {
	if _, opens := action.Opens(); !opens {
		return ledger.Order{}, false
	}
	order, ok := b.submit(ctx, sym, action, qty, price, reason)
	if !ok {
		return ledger.Order{}, false
	}
	if targets.Entry <= 0 {
		targets.Entry = order.FillPrice
	}
	b.targets[sym] = targets
	if r, ok := b.strat.(strategy.EntryRecorder); ok {
		r.RecordEntry(b.id, sym, b.deps.NowFn())
	}
	b.log.Infof("Bot[%s]: %s %s qty=%v @ %.4f target=%.4f stop=%.4f (%s)",
		b.id, action, sym, order.Qty, order.FillPrice, targets.ProfitTarget, targets.StopLoss, reason)
	return order, true
}

func (b *Bot) closePosition(ctx context.Context, p ledger.Position, price float64, reason string) bool {
	action := strategy.CloseAction(sideOf(p.Side))
	order, ok := b.submit(ctx, p.Symbol, action, p.Qty, price, reason)
	if !ok {
		return false
	}
	delete(b.targets, p.Symbol)
	b.log.Infof("Bot[%s]: %s %s qty=%v @ %.4f pnl=%.2f (%s)",
		b.id, action, p.Symbol, order.Qty, order.FillPrice, order.RealizedPnL, reason)
	return true
}

// submit sends the order through the ledger breaker and appends the fill to
// the trade log.
func (b *Bot) submit(ctx context.Context, sym string, action strategy.Action, qty, price float64, reason string) (ledger.Order, bool) {
	side, posSide, ok := orderFor(action)
	if !ok || qty <= 0 || price <= 0 {
		return ledger.Order{}, false
	}
	req := ledger.OrderRequest{
		Symbol:       sym,
		Side:         side,
		PositionSide: posSide,
		Qty:          qty,
		Price:        price,
		Reason:       reason,
	}
	var order ledger.Order
	err := b.ledgerCB.Do(func() error {
		var err error
		order, err = b.deps.Ledger.PlaceOrder(ctx, b.id, req)
		return err
	})
	if err != nil {
		b.log.Warnf("Bot[%s]: %s %s rejected: %v", b.id, action, sym, err)
		return ledger.Order{}, false
	}
	_, opening := action.Opens()
	rec := store.TradeRecord{
		ID:           uuid.NewString(),
		BotID:        b.id,
		ExperimentID: b.experimentID,
		Symbol:       strings.ToUpper(sym),
		Action:       string(action),
		Side:         string(posSide),
		Qty:          order.Qty,
		Price:        order.FillPrice,
		OrderID:      order.ID,
		RealizedPnL:  order.RealizedPnL,
		Opening:      opening,
		Reason:       reason,
		ExecutedAt:   order.FilledAt,
	}
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = b.deps.NowFn()
	}
	b.appendTrade(ctx, rec)
	return order, true
}

// liquidate closes every open position at the freshest price available.
// The caller has already stopped scheduling.
func (b *Bot) liquidate(ctx context.Context) error {
	b.work.Lock()
	defer b.work.Unlock()
	positions, ok := b.positions(ctx)
	if !ok {
		return errLiquidation(b.id, "positions unavailable")
	}
	failed := 0
	for _, p := range positions {
		price := b.lastPrice(ctx, p)
		if !b.closePosition(ctx, p, price, "liquidation on stop") {
			failed++
		}
	}
	if failed > 0 {
		return errLiquidation(b.id, "some positions could not be closed")
	}
	return nil
}

func (b *Bot) lastPrice(ctx context.Context, p ledger.Position) float64 {
	if prices := b.refresh(ctx, []string{p.Symbol}); prices[p.Symbol] > 0 {
		return prices[p.Symbol]
	}
	if series, ok := b.deps.Series.Lookup(b.id, p.Symbol); ok {
		if last, ok := series.Last(); ok && last.Price > 0 {
			return last.Price
		}
	}
	return p.AvgPrice
}
