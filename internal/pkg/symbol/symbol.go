// Package symbol maps watchlist symbols onto venue tickers.
package symbol

import "strings"

// Pair is a crypto symbol split into base and quote. Equity tickers have no
// quote and map to themselves.
type Pair struct {
	Base  string
	Quote string
}

var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB"}

// Parse accepts "BTC/USDT", "BTC/USDT:USDT" and "btcusdt".
func Parse(s string) Pair {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Pair{}
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Pair{Base: strings.TrimSpace(parts[0]), Quote: strings.TrimSpace(parts[1])}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Pair{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Pair{Base: s}
}

func (p Pair) IsPair() bool { return p.Base != "" && p.Quote != "" }

// Slash renders "BTC/USDT"; a bare ticker renders unchanged.
func (p Pair) Slash() string {
	if !p.IsPair() {
		return p.Base
	}
	return p.Base + "/" + p.Quote
}

// Binance renders the futures ticker, e.g. "BTCUSDT".
func (p Pair) Binance() string { return p.Base + p.Quote }

// ToBinance converts any accepted spelling to the Binance ticker.
func ToBinance(s string) string { return Parse(s).Binance() }
