package storage

import (
	"context"
	"sort"
	"strings"

	"github.com/jrife/tenantkv/cost"
	"github.com/jrife/tenantkv/storage/kv"
	"github.com/jrife/tenantkv/storage/kv/keys"
	"github.com/jrife/tenantkv/utils/log"
	"go.uber.org/zap"
)

// List implements Tenant.List
func (tenant *tenant) List(ctx context.Context, prefix string, recursive bool) ([]string, int64, error) {
	logger := log.WithContext(ctx, tenant.logger).With(zap.String("operation", "List"))
	logger.Debug("start List()", zap.String("prefix", prefix), zap.Bool("recursive", recursive))

	result, err := tenant.list(ctx, prefix, recursive)

	if err != nil {
		logger.Debug("error", zap.Error(err))

		return nil, 0, err
	}

	c := tenant.engine.tiers.Fixed(cost.OpList)
	logger.Debug("return from List()", zap.Strings("return", result), zap.Int64("cost", c))

	return result, c, nil
}

func (tenant *tenant) list(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	if tenant.invalid != nil {
		return nil, wrapError("", tenant.invalid)
	}

	whole := prefix == "*" || strings.TrimSpace(prefix) == ""
	pattern := "*"

	if !whole {
		pattern = keys.Escape(prefix) + "*"
	}

	found := map[string]struct{}{}
	cursor := kv.CursorStart

	for {
		page, next, err := tenant.data.Scan(ctx, cursor, pattern, tenant.engine.scanCount)

		if err != nil {
			return nil, wrapError("could not scan keys", err)
		}

		for _, key := range page {
			if whole || recursive {
				found[key] = struct{}{}

				continue
			}

			found[prefix+firstComponent(strings.TrimPrefix(key, prefix))] = struct{}{}
		}

		if next == kv.CursorStart {
			break
		}

		cursor = next
	}

	result := make([]string, 0, len(found))

	for key := range found {
		result = append(result, key)
	}

	sort.Strings(result)

	return result, nil
}

// firstComponent returns the part of path before the first separator
func firstComponent(path string) string {
	if i := strings.Index(path, keys.Separator); i >= 0 {
		return path[:i]
	}

	return path
}
