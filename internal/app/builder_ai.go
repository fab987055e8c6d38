package app

import (
	"fmt"

	"botarena/internal/ai"
	brcfg "botarena/internal/config"
	"botarena/internal/logger"
)

// buildEvaluator returns the decision source of reactive bots.
func buildEvaluator(cfg brcfg.AIConfig) (ai.Evaluator, error) {
	switch cfg.Mode {
	case "keyword", "":
		logger.Infof("✓ AI evaluator: offline keyword scorer")
		return ai.NewKeywordEvaluator(), nil
	case "remote":
		logger.Infof("✓ AI evaluator: remote %s (timeout=%s)", cfg.Endpoint, cfg.Timeout())
		return ai.NewRemoteEvaluator(cfg.Endpoint, cfg.APIKey, cfg.Timeout()), nil
	default:
		return nil, fmt.Errorf("unsupported ai mode %q", cfg.Mode)
	}
}
