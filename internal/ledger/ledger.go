// Package ledger is the order-filling contract bots trade through.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownAccount    = errors.New("unknown account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoPosition        = errors.New("no matching position")
	ErrInvalidOrder      = errors.New("invalid order")
)

type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

type PositionSide string

const (
	Long  PositionSide = "long"
	Short PositionSide = "short"
)

// OrderRequest is a market order. Price is the caller's latest observed price,
// used by simulated ledgers as the fill reference.
type OrderRequest struct {
	Symbol       string
	Side         OrderSide
	PositionSide PositionSide
	Qty          float64
	Price        float64
	Reason       string
}

// Opens reports whether the request increases exposure.
func (r OrderRequest) Opens() bool {
	return (r.PositionSide == Long && r.Side == Buy) || (r.PositionSide == Short && r.Side == Sell)
}

func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	}
	if r.Side != Buy && r.Side != Sell {
		return fmt.Errorf("%w: side must be buy or sell", ErrInvalidOrder)
	}
	if r.PositionSide != Long && r.PositionSide != Short {
		return fmt.Errorf("%w: position side must be long or short", ErrInvalidOrder)
	}
	if r.Qty <= 0 {
		return fmt.Errorf("%w: qty must be > 0", ErrInvalidOrder)
	}
	return nil
}

type Order struct {
	ID           string
	AccountID    string
	Symbol       string
	Side         OrderSide
	PositionSide PositionSide
	Qty          float64
	FillPrice    float64
	Commission   float64
	RealizedPnL  float64 // net of commission; opening fills carry -commission
	FilledAt     time.Time
}

type Position struct {
	Symbol   string
	Side     PositionSide
	Qty      float64
	AvgPrice float64
	OpenedAt time.Time
}

type Account struct {
	ID          string
	Cash        float64
	Funded      float64
	RealizedPnL float64
}

type Ledger interface {
	PlaceOrder(ctx context.Context, accountID string, req OrderRequest) (Order, error)
	Positions(ctx context.Context, accountID string) ([]Position, error)
	Account(ctx context.Context, accountID string) (Account, error)
}

// Funder is implemented by ledgers that can create and retire simulated accounts.
type Funder interface {
	Fund(ctx context.Context, accountID string, amount float64) error
	Close(ctx context.Context, accountID string) error
}
