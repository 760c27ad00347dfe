package main

import (
	"fmt"

	"github.com/jrife/tenantkv/config"
	"github.com/jrife/tenantkv/cost"
	"github.com/jrife/tenantkv/lock"
	"github.com/jrife/tenantkv/service"
	"github.com/jrife/tenantkv/storage"
	"github.com/jrife/tenantkv/storage/kv"
	kvplugins "github.com/jrife/tenantkv/storage/kv/plugins"
	"github.com/jrife/tenantkv/storage/overflow"
	overflowplugins "github.com/jrife/tenantkv/storage/overflow/plugins"
	"github.com/jrife/tenantkv/transport/frontends"
	"github.com/jrife/tenantkv/transport/frontends/rest"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// app holds everything a running server owns
type app struct {
	logger   *zap.Logger
	backend  kv.Backend
	blobs    overflow.Store
	frontend *rest.Frontend
}

func newApp(cfg *config.Config, logger *zap.Logger, registerer prometheus.Registerer, gatherer prometheus.Gatherer) (*app, error) {
	backendPlugin := kvplugins.Plugin(cfg.Backend.Plugin)

	if backendPlugin == nil {
		return nil, fmt.Errorf("no backend plugin named %q", cfg.Backend.Plugin)
	}

	backend, err := backendPlugin.NewBackend(cfg.BackendOptions())

	if err != nil {
		return nil, fmt.Errorf("could not open %s backend: %s", cfg.Backend.Plugin, err)
	}

	a := &app{logger: logger, backend: kv.Deadline(backend, cfg.Backend.Timeout.Duration)}

	if cfg.Overflow.Plugin != "" {
		overflowPlugin := overflowplugins.Plugin(cfg.Overflow.Plugin)

		if overflowPlugin == nil {
			a.close()

			return nil, fmt.Errorf("no overflow plugin named %q", cfg.Overflow.Plugin)
		}

		blobs, err := overflowPlugin.NewStore(overflow.Options{
			Endpoint:  cfg.Overflow.Endpoint,
			AccessKey: cfg.Overflow.AccessKey,
			SecretKey: cfg.Overflow.SecretKey,
			Bucket:    cfg.Overflow.Bucket,
			Secure:    cfg.Overflow.Secure,
			Timeout:   cfg.Overflow.Timeout.Duration,
		})

		if err != nil {
			a.close()

			return nil, fmt.Errorf("could not open %s overflow store: %s", cfg.Overflow.Plugin, err)
		}

		a.blobs = blobs
	}

	tiers := cfg.Cost.Tiers()
	engineConfig := storage.EngineConfig{
		Logger:            logger,
		Backend:           a.backend,
		Overflow:          a.blobs,
		OverflowThreshold: cfg.Overflow.Threshold,
		ScanCount:         cfg.Backend.ScanCount,
		Tiers:             tiers,
	}

	server := service.New(service.Config{
		Logger: logger,
		Engine: storage.New(engineConfig),
		Locks: lock.New(lock.ManagerConfig{
			Logger:     logger,
			Backend:    a.backend,
			RetryDelay: cfg.Lock.RetryDelay.Duration,
			RetryCount: cfg.Lock.RetryCount,
			Expiry:     cfg.Lock.Expiry.Duration,
			Tiers:      tiers,
		}),
		Accountant: cost.NewLedger(),
		Metrics:    service.NewMetrics(registerer),
	})

	a.frontend = &rest.Frontend{}

	if err := a.frontend.Init(frontends.Options{Server: server, Logger: logger, Gatherer: gatherer}); err != nil {
		a.close()

		return nil, err
	}

	return a, nil
}

func (a *app) close() {
	if err := a.backend.Close(); err != nil {
		a.logger.Warn("could not close backend", zap.Error(err))
	}

	if a.blobs != nil {
		if err := a.blobs.Close(); err != nil {
			a.logger.Warn("could not close overflow store", zap.Error(err))
		}
	}
}
