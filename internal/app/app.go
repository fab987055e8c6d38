package app

import (
	"context"
	"fmt"

	brcfg "botarena/internal/config"
	"botarena/internal/events"
	"botarena/internal/experiment"
	"botarena/internal/logger"
	apihttp "botarena/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App wires the experiment manager to the HTTP API and owns shutdown.
type App struct {
	cfg     *brcfg.Config
	manager *experiment.Manager
	http    *apihttp.Server
	bus     *events.Bus
	stores  *stores
	Summary *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *brcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run serves the API until ctx ends, then stops running experiments and
// closes the stores.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	group, gctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(gctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-gctx.Done()
		logger.Infof("Shutting down: stopping running experiments")
		a.manager.Shutdown(context.Background())
		a.stores.Close()
		return nil
	})
	return group.Wait()
}

// Manager exposes the experiment manager for embedding and tests.
func (a *App) Manager() *experiment.Manager {
	if a == nil {
		return nil
	}
	return a.manager
}

// Events is the in-process feed reactive bots subscribe to.
func (a *App) Events() *events.Bus {
	if a == nil {
		return nil
	}
	return a.bus
}
