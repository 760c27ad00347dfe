package storage

import (
	"github.com/benbjohnson/clock"
	"github.com/jrife/tenantkv/cost"
	"github.com/jrife/tenantkv/storage/kv"
	"github.com/jrife/tenantkv/storage/kv/keys"
	"github.com/jrife/tenantkv/storage/overflow"
	"go.uber.org/zap"
)

const (
	// DefaultOverflowThreshold is the largest value kept inline
	// when no threshold is configured
	DefaultOverflowThreshold = 1 << 20
	// DefaultScanCount is the page size used when listing
	// when none is configured
	DefaultScanCount = 16
)

var _ Engine = (*engine)(nil)

// EngineConfig contains configuration
// for an engine
type EngineConfig struct {
	Logger  *zap.Logger
	Backend kv.Backend
	// Overflow holds values larger than OverflowThreshold.
	// If it is nil every value is stored inline.
	Overflow          overflow.Store
	OverflowThreshold int
	// ScanCount is the page size of the scans behind List
	ScanCount int64
	Tiers     cost.Tiers
	// Clock stamps records with their modification time
	Clock clock.Clock
}

// engine implements Engine
type engine struct {
	logger            *zap.Logger
	backend           kv.Backend
	overflow          overflow.Store
	overflowThreshold int
	exclusive         bool
	scanCount         int64
	tiers             cost.Tiers
	clock             clock.Clock
}

// New creates an Engine on top of a kv backend
func New(config EngineConfig) Engine {
	engine := &engine{
		logger:            config.Logger,
		backend:           config.Backend,
		overflow:          config.Overflow,
		overflowThreshold: config.OverflowThreshold,
		exclusive:         overflow.Exclusive(config.Overflow),
		scanCount:         config.ScanCount,
		tiers:             config.Tiers,
		clock:             config.Clock,
	}

	if engine.logger == nil {
		engine.logger = zap.L()
	}

	if engine.overflowThreshold <= 0 {
		engine.overflowThreshold = DefaultOverflowThreshold
	}

	if engine.scanCount <= 0 {
		engine.scanCount = DefaultScanCount
	}

	if engine.clock == nil {
		engine.clock = clock.New()
	}

	return engine
}

// Tenant implements Engine.Tenant
func (engine *engine) Tenant(name string) Tenant {
	return &tenant{
		engine:  engine,
		name:    name,
		invalid: keys.ValidateTenant(name),
		data:    kv.Namespace(engine.backend, keys.DataPrefix(name)),
		logger:  engine.logger.With(zap.String("tenant", name)),
	}
}
