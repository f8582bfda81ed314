package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vulnverified/posture/internal/breachcache"
	"github.com/vulnverified/posture/internal/config"
	"github.com/vulnverified/posture/internal/engine"
	"github.com/vulnverified/posture/internal/recon"
	"github.com/vulnverified/posture/internal/store"
)

// app holds the long-lived clients shared by every collection.
type app struct {
	logger     *zap.Logger
	store      store.Store
	collectors engine.Collectors
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	st, err := store.Open(ctx, cfg.Cache.Driver, cfg.Cache.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Cache.Driver, err)
	}
	cache := breachcache.New(st, cfg.Cache.TTL, nil, logger.Named("breachcache"))

	collectors := recon.NewCollectors(recon.Options{
		UserAgent:           cfg.UserAgent,
		DNSServers:          cfg.DNS.Servers,
		DNSTimeout:          cfg.DNS.Timeout,
		WhoisTimeout:        cfg.WhoisTimeout,
		TLSTimeout:          cfg.TLSTimeout,
		HTTPTimeout:         cfg.HTTPTimeout,
		PTRTimeout:          cfg.PTRTimeout,
		CTBaseURL:           cfg.CT.BaseURL,
		CTTimeout:           cfg.CT.Timeout,
		BreachBaseURL:       cfg.Breach.BaseURL,
		BreachAPIKey:        cfg.Breach.APIKey,
		BreachRatePerMinute: cfg.Breach.RatePerMinute,
		BreachTimeout:       cfg.Breach.Timeout,
		BreachCache:         cache,
		Logger:              logger,
	})
	return &app{logger: logger, store: st, collectors: collectors}, nil
}

func (a *app) run(ctx context.Context, target string, progress engine.ProgressReporter) (*engine.Snapshot, error) {
	return engine.Run(ctx, engine.Config{Target: target, Logger: a.logger}, a.collectors, progress)
}

func (a *app) Close() error {
	return a.store.Close()
}

// newLogger returns a development logger with --verbose, nothing with
// --silent, and otherwise a production logger. The one-shot CLI only logs
// warnings so stderr stays readable next to the progress output.
func newLogger(verbose, silent, serving bool) (*zap.Logger, error) {
	switch {
	case silent && !serving:
		return zap.NewNop(), nil
	case verbose:
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if !serving {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	return cfg.Build()
}
