// Package paper is an in-memory ledger that fills market orders at the
// requested price adjusted for slippage, tracking balances in decimal.
package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"botarena/internal/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Config struct {
	SlippageBps   float64
	CommissionUSD float64
}

type position struct {
	side     ledger.PositionSide
	qty      decimal.Decimal
	avg      decimal.Decimal
	openedAt time.Time
}

type account struct {
	cash      decimal.Decimal
	funded    decimal.Decimal
	realized  decimal.Decimal
	positions map[string]*position
}

type Ledger struct {
	mu         sync.Mutex
	slippage   decimal.Decimal
	commission decimal.Decimal
	accounts   map[string]*account
	nowFn      func() time.Time
}

var (
	_ ledger.Ledger = (*Ledger)(nil)
	_ ledger.Funder = (*Ledger)(nil)
)

var tenThousand = decimal.NewFromInt(10000)

func New(cfg Config) *Ledger {
	slip := cfg.SlippageBps
	if slip < 0 {
		slip = 0
	}
	fee := cfg.CommissionUSD
	if fee < 0 {
		fee = 0
	}
	return &Ledger{
		slippage:   decimal.NewFromFloat(slip).Div(tenThousand),
		commission: decimal.NewFromFloat(fee),
		accounts:   make(map[string]*account),
		nowFn:      time.Now,
	}
}

// Fund creates the account on first use and adds amount to its cash.
func (l *Ledger) Fund(_ context.Context, accountID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("fund %s: amount must be > 0", accountID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.accounts[accountID]
	if acc == nil {
		acc = &account{positions: make(map[string]*position)}
		l.accounts[accountID] = acc
	}
	amt := decimal.NewFromFloat(amount)
	acc.cash = acc.cash.Add(amt)
	acc.funded = acc.funded.Add(amt)
	return nil
}

func (l *Ledger) Close(_ context.Context, accountID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, accountID)
	return nil
}

func (l *Ledger) PlaceOrder(_ context.Context, accountID string, req ledger.OrderRequest) (ledger.Order, error) {
	if err := req.Validate(); err != nil {
		return ledger.Order{}, err
	}
	if req.Price <= 0 {
		return ledger.Order{}, fmt.Errorf("%w: price must be > 0", ledger.ErrInvalidOrder)
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))

	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[accountID]
	if !ok {
		return ledger.Order{}, fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, accountID)
	}
	qty := decimal.NewFromFloat(req.Qty)
	fill := l.fillPrice(req.Side, decimal.NewFromFloat(req.Price))
	now := l.nowFn()

	var realized decimal.Decimal
	if req.Opens() {
		notional := fill.Mul(qty)
		if acc.cash.LessThan(notional.Add(l.commission)) {
			return ledger.Order{}, fmt.Errorf("%w: need %s have %s", ledger.ErrInsufficientFunds,
				notional.Add(l.commission).StringFixed(2), acc.cash.StringFixed(2))
		}
		pos := acc.positions[symbol]
		if pos != nil && pos.side != req.PositionSide {
			return ledger.Order{}, fmt.Errorf("%w: %s already held %s", ledger.ErrInvalidOrder, symbol, pos.side)
		}
		if pos == nil {
			pos = &position{side: req.PositionSide, openedAt: now}
			acc.positions[symbol] = pos
		}
		total := pos.qty.Add(qty)
		pos.avg = pos.avg.Mul(pos.qty).Add(notional).Div(total)
		pos.qty = total
		// shorts post the notional as collateral, so both sides debit cash
		acc.cash = acc.cash.Sub(notional).Sub(l.commission)
		realized = l.commission.Neg()
	} else {
		pos := acc.positions[symbol]
		if pos == nil || pos.side != req.PositionSide || pos.qty.LessThan(qty) {
			return ledger.Order{}, fmt.Errorf("%w: %s %s qty=%v", ledger.ErrNoPosition, symbol, req.PositionSide, req.Qty)
		}
		var gross decimal.Decimal
		if pos.side == ledger.Long {
			gross = fill.Sub(pos.avg).Mul(qty)
		} else {
			gross = pos.avg.Sub(fill).Mul(qty)
		}
		acc.cash = acc.cash.Add(pos.avg.Mul(qty)).Add(gross).Sub(l.commission)
		realized = gross.Sub(l.commission)
		pos.qty = pos.qty.Sub(qty)
		if !pos.qty.IsPositive() {
			delete(acc.positions, symbol)
		}
	}
	acc.realized = acc.realized.Add(realized)

	return ledger.Order{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Symbol:       symbol,
		Side:         req.Side,
		PositionSide: req.PositionSide,
		Qty:          req.Qty,
		FillPrice:    fill.InexactFloat64(),
		Commission:   l.commission.InexactFloat64(),
		RealizedPnL:  realized.InexactFloat64(),
		FilledAt:     now,
	}, nil
}

func (l *Ledger) Positions(_ context.Context, accountID string) ([]ledger.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, accountID)
	}
	out := make([]ledger.Position, 0, len(acc.positions))
	for sym, pos := range acc.positions {
		out = append(out, ledger.Position{
			Symbol:   sym,
			Side:     pos.side,
			Qty:      pos.qty.InexactFloat64(),
			AvgPrice: pos.avg.InexactFloat64(),
			OpenedAt: pos.openedAt,
		})
	}
	return out, nil
}

func (l *Ledger) Account(_ context.Context, accountID string) (ledger.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[accountID]
	if !ok {
		return ledger.Account{}, fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, accountID)
	}
	return ledger.Account{
		ID:          accountID,
		Cash:        acc.cash.InexactFloat64(),
		Funded:      acc.funded.InexactFloat64(),
		RealizedPnL: acc.realized.InexactFloat64(),
	}, nil
}

// fillPrice moves the reference price against the taker by the slippage fraction.
func (l *Ledger) fillPrice(side ledger.OrderSide, ref decimal.Decimal) decimal.Decimal {
	if l.slippage.IsZero() {
		return ref
	}
	adj := ref.Mul(l.slippage)
	if side == ledger.Buy {
		return ref.Add(adj)
	}
	return ref.Sub(adj)
}
