// Package app wires configuration, storage, the ledger API server and the
// dispatch loop into one runnable process.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	cfcfg "copyflow/internal/config"
	"copyflow/internal/dispatch"
	"copyflow/internal/gateway/ledger"
	"copyflow/internal/logger"
	"copyflow/internal/rules"
	"copyflow/internal/store/sqlite"
	apihttp "copyflow/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *cfcfg.Config
	store      *sqlite.SqliteStore
	apiHTTP    *apihttp.Server
	dispatcher *dispatch.Dispatcher
}

// NewApp builds the application from configuration without starting it.
func NewApp(cfg *cfcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	resolver, err := loadRules(cfg.Rules)
	if err != nil {
		return nil, err
	}

	st, err := sqlite.NewSqliteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	apiSrv, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:  cfg.App.HTTPAddr,
		Store: st,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build api server: %w", err)
	}

	client, err := ledger.NewClient(ledger.Options{
		BaseURL:     cfg.Dispatch.APIBaseURL,
		Timeout:     time.Duration(cfg.Dispatch.TimeoutSeconds) * time.Second,
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		BackoffBase: time.Duration(cfg.Dispatch.BackoffBaseMS) * time.Millisecond,
		BackoffCap:  time.Duration(cfg.Dispatch.BackoffCapMS) * time.Millisecond,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build ledger client: %w", err)
	}

	dispatcher, err := dispatch.NewDispatcher(client, resolver, dispatch.Options{
		Strategies:       cfg.Dispatch.Strategies,
		PollInterval:     time.Duration(cfg.Dispatch.PollIntervalSeconds) * time.Second,
		TradeWindow:      cfg.Dispatch.TradeWindow,
		SeenCacheSize:    cfg.Dispatch.SeenCacheSize,
		Disabled:         cfg.Dispatch.Disabled,
		BreakerThreshold: cfg.Dispatch.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.Dispatch.BreakerCooldownSeconds) * time.Second,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	return &App{
		cfg:        cfg,
		store:      st,
		apiHTTP:    apiSrv,
		dispatcher: dispatcher,
	}, nil
}

// loadRules optionally refreshes the rules file from the venue, then loads
// it. A missing file is not fatal; every symbol falls back to the default
// rule for the life of the process, since only a loaded file carries a
// change watch.
func loadRules(cfg cfcfg.RulesConfig) (*rules.Resolver, error) {
	if cfg.ImportFromBinance {
		impCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := rules.ImportFromBinance(impCtx, cfg.Path, cfg.ImportSymbols)
		cancel()
		if err != nil {
			logger.Warnf("symbol rules import failed, using existing file: %v", err)
		}
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		logger.Warnf("symbol rules file %s not found, all symbols use the default rule", cfg.Path)
		return rules.NewResolver(nil), nil
	}
	resolver, err := rules.Load(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load symbol rules: %w", err)
	}
	logger.Infof("symbol rules loaded: %d symbols", len(resolver.Symbols()))
	return resolver, nil
}

// Run serves the ledger API and the dispatch loop until ctx is canceled or
// either fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.store.Close()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Infof("ledger api listening on %s", a.apiHTTP.Addr())
		if err := a.apiHTTP.Start(ctx); err != nil {
			return fmt.Errorf("api server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return a.dispatcher.Run(ctx)
	})

	return group.Wait()
}
