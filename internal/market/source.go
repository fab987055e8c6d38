package market

import "context"

// Provider is the market-data collaborator. Quote may return (nil, nil)
// when the symbol has no current price; callers skip it.
type Provider interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
	Bars(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error)
}
