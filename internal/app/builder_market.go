package app

import (
	"fmt"

	brcfg "botarena/internal/config"
	"botarena/internal/gateway/binance"
	"botarena/internal/ledger/paper"
	"botarena/internal/logger"
	"botarena/internal/market"
)

// buildMarketProvider picks the quote source bots read from.
func buildMarketProvider(cfg brcfg.MarketConfig) (market.Provider, error) {
	switch cfg.Source {
	case "sim", "":
		logger.Infof("✓ Market source: simulated random walk (seed=%d base=%.2f vol=%.4f)", cfg.SimSeed, cfg.SimBasePrice, cfg.SimVolatility)
		return market.NewSimProvider(cfg.SimSeed, cfg.SimBasePrice, cfg.SimVolatility), nil
	case "binance":
		logger.Infof("✓ Market source: binance futures REST %s", cfg.RESTBaseURL)
		return binance.New(binance.Config{
			RESTBaseURL: cfg.RESTBaseURL,
			APIKey:      cfg.APIKey,
			SecretKey:   cfg.SecretKey,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported market source %q", cfg.Source)
	}
}

func buildLedger(cfg brcfg.LedgerConfig) *paper.Ledger {
	return paper.New(paper.Config{SlippageBps: cfg.SlippageBps, CommissionUSD: cfg.CommissionUSD})
}
