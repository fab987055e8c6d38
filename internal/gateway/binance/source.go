// Package binance adapts the Binance USDⓈ-M futures REST API to market.Provider.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"botarena/internal/market"
	"botarena/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
)

const (
	maxHistoryLimit    = 1500
	defaultRESTBaseURL = "https://fapi.binance.com"
	defaultHTTPTimeout = 15 * time.Second
)

// Config selects the REST endpoint and credentials. Public market data needs no keys.
type Config struct {
	RESTBaseURL string
	APIKey      string
	SecretKey   string
	HTTPTimeout time.Duration
}

// Source implements market.Provider on top of the go-binance futures client.
type Source struct {
	cfg    Config
	client *futures.Client
	nowFn  func() time.Time
}

func New(cfg Config) *Source {
	cfg.RESTBaseURL = strings.TrimSpace(cfg.RESTBaseURL)
	if cfg.RESTBaseURL == "" {
		cfg.RESTBaseURL = defaultRESTBaseURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	client := futures.NewClient(strings.TrimSpace(cfg.APIKey), strings.TrimSpace(cfg.SecretKey))
	client.BaseURL = cfg.RESTBaseURL
	client.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	return &Source{cfg: cfg, client: client, nowFn: time.Now}
}

func (s *Source) Quote(ctx context.Context, ticker string) (*market.Quote, error) {
	sym := symbol.ToBinance(ticker)
	if sym == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	prices, err := s.client.NewListPricesService().Symbol(sym).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance price %s: %w", sym, err)
	}
	for _, p := range prices {
		if p == nil || !strings.EqualFold(p.Symbol, sym) {
			continue
		}
		price := parseFloat(p.Price)
		if price <= 0 {
			return nil, nil
		}
		return &market.Quote{Symbol: strings.ToUpper(strings.TrimSpace(ticker)), Price: price, Time: s.nowFn()}, nil
	}
	return nil, nil
}

func (s *Source) Bars(ctx context.Context, ticker, timeframe string, limit int) ([]market.Bar, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	sym := symbol.ToBinance(ticker)
	if sym == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval, err := toInterval(timeframe)
	if err != nil {
		return nil, err
	}
	kls, err := s.client.NewKlinesService().Symbol(sym).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", sym, interval, err)
	}
	out := make([]market.Bar, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Bar{
			Time:   time.UnixMilli(kl.OpenTime).UTC(),
			Open:   parseFloat(kl.Open),
			High:   parseFloat(kl.High),
			Low:    parseFloat(kl.Low),
			Close:  parseFloat(kl.Close),
			Volume: parseFloat(kl.Volume),
		})
	}
	return out, nil
}

// toInterval maps a generic timeframe ("1Min", "1Day") to a Binance kline interval.
func toInterval(timeframe string) (string, error) {
	d, ok := market.ParseTimeframe(timeframe)
	if !ok {
		return "", fmt.Errorf("invalid timeframe %q", timeframe)
	}
	var out string
	switch {
	case d%(7*24*time.Hour) == 0 && d/(7*24*time.Hour) == 1:
		out = "1w"
	case d%(24*time.Hour) == 0:
		out = fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		out = fmt.Sprintf("%dh", d/time.Hour)
	default:
		out = fmt.Sprintf("%dm", d/time.Minute)
	}
	if _, ok := supportedIntervals[out]; !ok {
		return "", fmt.Errorf("timeframe %q has no binance interval", timeframe)
	}
	return out, nil
}

var supportedIntervals = map[string]struct{}{
	"1m": {}, "3m": {}, "5m": {}, "15m": {}, "30m": {},
	"1h": {}, "2h": {}, "4h": {}, "6h": {}, "8h": {}, "12h": {},
	"1d": {}, "3d": {}, "1w": {},
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
