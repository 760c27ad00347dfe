// Package service composes the storage engine, the lock manager
// and the cost accountant into the operations served to tenants.
// Every successful operation is charged to its tenant.
package service

import (
	"context"
	"time"

	"github.com/jrife/tenantkv/cost"
	"github.com/jrife/tenantkv/lock"
	"github.com/jrife/tenantkv/storage"
	"github.com/jrife/tenantkv/transport"
	"github.com/jrife/tenantkv/utils/log"
	"go.uber.org/zap"
)

// Version is reported by Ping
const Version = "0.0.1"

// Config contains configuration
// for a service
type Config struct {
	Logger     *zap.Logger
	Engine     storage.Engine
	Locks      lock.Manager
	Accountant cost.Accountant
	// Metrics is optional
	Metrics *Metrics
}

var _ transport.Server = (*Service)(nil)

// Service implements transport.Server
type Service struct {
	logger     *zap.Logger
	engine     storage.Engine
	locks      lock.Manager
	accountant cost.Accountant
	metrics    *Metrics
}

// New creates a service
func New(config Config) *Service {
	service := &Service{
		logger:     config.Logger,
		engine:     config.Engine,
		locks:      config.Locks,
		accountant: config.Accountant,
		metrics:    config.Metrics,
	}

	if service.logger == nil {
		service.logger = zap.L()
	}

	if service.accountant == nil {
		service.accountant = cost.Discard
	}

	return service
}

// done records the outcome of an operation and charges
// its cost to tenant if it succeeded
func (service *Service) done(ctx context.Context, tenant string, operation string, start time.Time, c int64, err error) {
	service.metrics.observe(operation, time.Since(start), c, err)

	if err != nil {
		log.WithContext(ctx, service.logger).Debug("operation failed", zap.String("operation", operation), zap.String("tenant", tenant), zap.Error(err))

		return
	}

	service.accountant.Charge(ctx, tenant, operation, c)
}

// Ping implements transport.Server.Ping
func (service *Service) Ping(ctx context.Context) string {
	return Version
}

// Load implements transport.Server.Load
func (service *Service) Load(ctx context.Context, tenant string, key string) (value []byte, c int64, err error) {
	defer func(start time.Time) { service.done(ctx, tenant, cost.OpLoad, start, c, err) }(time.Now())

	return service.engine.Tenant(tenant).Load(ctx, key)
}

// Store implements transport.Server.Store
func (service *Service) Store(ctx context.Context, tenant string, key string, expiryMs int64, value []byte) (c int64, err error) {
	defer func(start time.Time) { service.done(ctx, tenant, cost.OpStore, start, c, err) }(time.Now())

	return service.engine.Tenant(tenant).Store(ctx, key, expiryMs, value)
}

// Delete implements transport.Server.Delete
func (service *Service) Delete(ctx context.Context, tenant string, key string) (c int64, err error) {
	defer func(start time.Time) { service.done(ctx, tenant, cost.OpDelete, start, c, err) }(time.Now())

	return service.engine.Tenant(tenant).Delete(ctx, key)
}

// Exists implements transport.Server.Exists
func (service *Service) Exists(ctx context.Context, tenant string, key string) (exists bool, c int64, err error) {
	defer func(start time.Time) { service.done(ctx, tenant, cost.OpExists, start, c, err) }(time.Now())

	return service.engine.Tenant(tenant).Exists(ctx, key)
}

// List implements transport.Server.List
func (service *Service) List(ctx context.Context, tenant string, prefix string, recursive bool) (keys []string, c int64, err error) {
	defer func(start time.Time) { service.done(ctx, tenant, cost.OpList, start, c, err) }(time.Now())

	return service.engine.Tenant(tenant).List(ctx, prefix, recursive)
}

// Stat implements transport.Server.Stat
func (service *Service) Stat(ctx context.Context, tenant string, key string) (info storage.KeyInfo, c int64, err error) {
	defer func(start time.Time) { service.done(ctx, tenant, cost.OpStat, start, c, err) }(time.Now())

	return service.engine.Tenant(tenant).Stat(ctx, key)
}

// Lock implements transport.Server.Lock
func (service *Service) Lock(ctx context.Context, tenant string, key string) (token lock.Token, c int64, err error) {
	defer func(start time.Time) { service.done(ctx, tenant, cost.OpLock, start, c, err) }(time.Now())

	return service.locks.Acquire(ctx, tenant, key)
}

// Unlock implements transport.Server.Unlock
func (service *Service) Unlock(ctx context.Context, tenant string, key string, token lock.Token) (c int64, err error) {
	defer func(start time.Time) { service.done(ctx, tenant, cost.OpUnlock, start, c, err) }(time.Now())

	return service.locks.Release(ctx, tenant, key, token)
}

// Balance implements transport.Server.Balance. Balances
// are only kept when the accountant is a *cost.Ledger.
func (service *Service) Balance(tenant string) (int64, bool) {
	ledger, ok := service.accountant.(*cost.Ledger)

	if !ok {
		return 0, false
	}

	return ledger.Balance(tenant), true
}
