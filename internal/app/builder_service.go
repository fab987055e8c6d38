package app

import (
	"fmt"

	brcfg "botarena/internal/config"
	"botarena/internal/events"
	"botarena/internal/logger"
	"botarena/internal/store"
	"botarena/internal/store/gormstore"
	"botarena/internal/store/memstore"
	"botarena/internal/store/resultsdb"
	apihttp "botarena/internal/transport/http/api"
)

type stores struct {
	main    store.Store
	results store.ResultArchive
	closers []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warnf("close store: %v", err)
		}
	}
}

func buildStores(cfg brcfg.StoreConfig) (*stores, error) {
	if cfg.Driver == "memory" {
		mem := memstore.New()
		logger.Infof("✓ Store: in-memory")
		return &stores{main: mem, results: mem}, nil
	}
	main, err := gormstore.NewGormStore(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Path, err)
	}
	results, err := resultsdb.NewResultStore(cfg.ResultsPath)
	if err != nil {
		_ = main.Close()
		return nil, fmt.Errorf("open results archive %s: %w", cfg.ResultsPath, err)
	}
	logger.Infof("✓ Store: sqlite %s, results archive %s", cfg.Path, cfg.ResultsPath)
	return &stores{main: main, results: results, closers: []func() error{main.Close, results.Close}}, nil
}

func buildHTTPServer(cfg brcfg.AppConfig, svc apihttp.ExperimentService, bus *events.Bus, topic string) (*apihttp.Server, error) {
	server, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:        cfg.HTTPAddr,
		Experiments: svc,
		Events:      bus,
		Topic:       topic,
	})
	if err != nil {
		return nil, fmt.Errorf("init http api: %w", err)
	}
	return server, nil
}
