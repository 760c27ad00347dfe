package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jrife/tenantkv/cost"
	"github.com/jrife/tenantkv/storage/kv"
	"github.com/jrife/tenantkv/storage/kv/keys"
	"github.com/jrife/tenantkv/utils/log"
	"go.uber.org/zap"
)

var _ Tenant = (*tenant)(nil)

// tenant implements Tenant
type tenant struct {
	engine  *engine
	name    string
	invalid error
	data    kv.Backend
	logger  *zap.Logger
}

// Name implements Tenant.Name
func (tenant *tenant) Name() string {
	return tenant.name
}

func (tenant *tenant) validate(key string) error {
	if tenant.invalid != nil {
		return wrapError("", tenant.invalid)
	}

	return wrapError("", keys.ValidateKey(key))
}

// Store implements Tenant.Store
func (tenant *tenant) Store(ctx context.Context, key string, expiryMs int64, value []byte) (int64, error) {
	logger := log.WithContext(ctx, tenant.logger).With(zap.String("operation", "Store"), zap.String("key", key))
	logger.Debug("start Store()", zap.Int64("expiry_ms", expiryMs), zap.Int("size", len(value)))

	c, err := tenant.store(ctx, logger, key, expiryMs, value)

	if err != nil {
		logger.Debug("error", zap.Error(err))

		return 0, err
	}

	logger.Debug("return from Store()", zap.Int64("cost", c))

	return c, nil
}

func (tenant *tenant) store(ctx context.Context, logger *zap.Logger, key string, expiryMs int64, value []byte) (int64, error) {
	if err := tenant.validate(key); err != nil {
		return 0, err
	}

	if expiryMs == 0 {
		return 0, fmt.Errorf("%w: expiry cannot be zero", ErrInvalidArgument)
	} else if expiryMs < 0 && expiryMs != KeepExpiry {
		return 0, fmt.Errorf("%w: expiry must be positive or %d", ErrInvalidArgument, KeepExpiry)
	}

	r, err := tenant.newRecord(ctx, value)

	if err != nil {
		return 0, err
	}

	encoded, err := r.marshal()

	if err != nil {
		tenant.discard(ctx, logger, r)

		return 0, fmt.Errorf("could not encode record: %s", err)
	}

	options := kv.SetOptions{ReturnPrevious: true}

	if expiryMs == KeepExpiry {
		options.Condition = kv.IfExists
		options.KeepTTL = true
	} else {
		options.TTL = time.Duration(expiryMs) * time.Millisecond
	}

	result, err := tenant.data.Set(ctx, key, encoded, options)

	if err != nil {
		tenant.discard(ctx, logger, r)

		return 0, wrapError("could not write record", err)
	}

	if !result.Written {
		logger.Debug("key does not exist so it was not refreshed")
		tenant.discard(ctx, logger, r)

		return tenant.engine.tiers.Fixed(cost.OpStore), nil
	}

	if result.Previous != nil {
		tenant.discardReplaced(ctx, logger, result.Previous, r)
	}

	if expiryMs == KeepExpiry {
		return tenant.engine.tiers.Write(cost.RefreshBytes(len(encoded), len(result.Previous)), expiryMs), nil
	}

	return tenant.engine.tiers.Write(cost.WriteBytes(keys.NamespacedKey(tenant.name, key), encoded), expiryMs), nil
}

// newRecord builds the record for value, uploading it to
// the overflow store if it is too large to keep inline
func (tenant *tenant) newRecord(ctx context.Context, value []byte) (record, error) {
	r := record{
		payload:  inline(value),
		modified: tenant.engine.clock.Now().UnixNano() / int64(time.Millisecond),
		size:     len(value),
	}

	if tenant.engine.overflow == nil || len(value) <= tenant.engine.overflowThreshold {
		return r, nil
	}

	reference, err := tenant.engine.overflow.Add(ctx, value)

	if err != nil {
		return record{}, fmt.Errorf("could not add value to overflow store: %w", err)
	}

	r.payload = overflowed(reference)

	return r, nil
}

// discard deletes the blob referenced by a record that
// didn't end up stored. Blobs in stores that share references
// between identical values are left alone since another record
// may still point at them.
func (tenant *tenant) discard(ctx context.Context, logger *zap.Logger, r record) {
	reference, ok := r.reference()

	if !ok {
		return
	}

	if !tenant.engine.exclusive {
		logger.Debug("keeping blob since its reference may be shared", zap.String("reference", reference))

		return
	}

	if err := tenant.engine.overflow.Delete(ctx, reference); err != nil {
		logger.Warn("could not delete unused blob", zap.String("reference", reference), zap.Error(err))
	}
}

// discardReplaced deletes the blob of a record that was
// overwritten unless the new record shares it
func (tenant *tenant) discardReplaced(ctx context.Context, logger *zap.Logger, previous []byte, current record) {
	replaced, err := unmarshalRecord(previous)

	if err != nil {
		logger.Warn("replaced a malformed record", zap.Error(err))

		return
	}

	oldReference, ok := replaced.reference()

	if !ok || tenant.engine.overflow == nil {
		return
	}

	if newReference, ok := current.reference(); ok && newReference == oldReference {
		return
	}

	tenant.discard(ctx, logger, replaced)
}

// Load implements Tenant.Load
func (tenant *tenant) Load(ctx context.Context, key string) ([]byte, int64, error) {
	logger := log.WithContext(ctx, tenant.logger).With(zap.String("operation", "Load"), zap.String("key", key))
	logger.Debug("start Load()")

	value, err := tenant.load(ctx, key)

	if err != nil {
		logger.Debug("error", zap.Error(err))

		return nil, 0, err
	}

	c := tenant.engine.tiers.Fixed(cost.OpLoad)
	logger.Debug("return from Load()", zap.Int("size", len(value)), zap.Int64("cost", c))

	return value, c, nil
}

func (tenant *tenant) load(ctx context.Context, key string) ([]byte, error) {
	r, err := tenant.read(ctx, key)

	if err != nil {
		return nil, err
	}

	switch p := r.payload.(type) {
	case inline:
		return append([]byte{}, p...), nil
	case overflowed:
		if tenant.engine.overflow == nil {
			return nil, fmt.Errorf("record references blob %s but no overflow store is configured", string(p))
		}

		value, err := tenant.engine.overflow.Get(ctx, string(p))

		if err != nil {
			return nil, fmt.Errorf("could not read value from overflow store: %w", err)
		}

		return value, nil
	}

	return nil, fmt.Errorf("unknown payload type %T", r.payload)
}

// read fetches and decodes the record stored at key
func (tenant *tenant) read(ctx context.Context, key string) (record, error) {
	if err := tenant.validate(key); err != nil {
		return record{}, err
	}

	raw, err := tenant.data.Get(ctx, key)

	if err != nil {
		return record{}, wrapError("could not read record", err)
	}

	if raw == nil {
		return record{}, ErrNotFound
	}

	return unmarshalRecord(raw)
}

// Delete implements Tenant.Delete
func (tenant *tenant) Delete(ctx context.Context, key string) (int64, error) {
	logger := log.WithContext(ctx, tenant.logger).With(zap.String("operation", "Delete"), zap.String("key", key))
	logger.Debug("start Delete()")

	if err := tenant.delete(ctx, logger, key); err != nil {
		logger.Debug("error", zap.Error(err))

		return 0, err
	}

	c := tenant.engine.tiers.Fixed(cost.OpDelete)
	logger.Debug("return from Delete()", zap.Int64("cost", c))

	return c, nil
}

func (tenant *tenant) delete(ctx context.Context, logger *zap.Logger, key string) error {
	r, err := tenant.read(ctx, key)

	switch {
	case err == ErrNotFound:
		return nil
	case errors.Is(err, ErrMalformed):
		logger.Warn("deleting a malformed record", zap.Error(err))
	case err != nil:
		return err
	default:
		if reference, ok := r.reference(); ok && tenant.engine.overflow != nil {
			if err := tenant.engine.overflow.Delete(ctx, reference); err != nil {
				return fmt.Errorf("could not delete blob %s: %w", reference, err)
			}
		}
	}

	return wrapError("could not delete record", tenant.data.Delete(ctx, key))
}

// Exists implements Tenant.Exists
func (tenant *tenant) Exists(ctx context.Context, key string) (bool, int64, error) {
	logger := log.WithContext(ctx, tenant.logger).With(zap.String("operation", "Exists"), zap.String("key", key))
	logger.Debug("start Exists()")

	if err := tenant.validate(key); err != nil {
		logger.Debug("error", zap.Error(err))

		return false, 0, err
	}

	exists, err := tenant.data.Exists(ctx, key)

	if err != nil {
		err = wrapError("could not check key", err)
		logger.Debug("error", zap.Error(err))

		return false, 0, err
	}

	c := tenant.engine.tiers.Fixed(cost.OpExists)
	logger.Debug("return from Exists()", zap.Bool("return", exists), zap.Int64("cost", c))

	return exists, c, nil
}

// Stat implements Tenant.Stat
func (tenant *tenant) Stat(ctx context.Context, key string) (KeyInfo, int64, error) {
	logger := log.WithContext(ctx, tenant.logger).With(zap.String("operation", "Stat"), zap.String("key", key))
	logger.Debug("start Stat()")

	r, err := tenant.read(ctx, key)

	if err != nil {
		logger.Debug("error", zap.Error(err))

		return KeyInfo{}, 0, err
	}

	info := KeyInfo{
		Key:        key,
		Modified:   r.modified,
		Size:       r.size,
		IsTerminal: !strings.HasSuffix(key, keys.Separator),
	}
	c := tenant.engine.tiers.Fixed(cost.OpStat)
	logger.Debug("return from Stat()", zap.Any("return", info), zap.Int64("cost", c))

	return info, c, nil
}
