package service

import (
	"context"

	"tiger-life/internal/util"

	"go.uber.org/zap"
)

// Cache namespaces. Each one is invalidated as a whole after any mutation of
// the rows it holds.
const (
	NamespaceEvents   = "events"
	NamespaceProducts = "products"
	NamespaceServices = "services"
)

type noopCache struct{}

func (noopCache) GetJSON(context.Context, string, string, interface{}) (int64, bool, error) {
	return 0, false, nil
}
func (noopCache) SetJSON(context.Context, string, string, int64, interface{}) error { return nil }
func (noopCache) Invalidate(context.Context, string) error                         { return nil }

func cacheOrNoop(c Cache) Cache {
	if c == nil {
		return noopCache{}
	}
	return c
}

// readThrough serves key from the cache or loads and stores it. The fill is
// written under the version the miss was read at, so a load that races an
// invalidation is never served afterwards.
func readThrough[T any](ctx context.Context, cache Cache, logger *zap.Logger, namespace, key string, load func() (T, error)) (T, error) {
	var cached T
	version, hit, readErr := cache.GetJSON(ctx, namespace, key, &cached)
	if readErr != nil {
		logger.Warn("Cache read failed", zap.String("namespace", namespace), zap.Error(readErr))
	}
	if hit {
		util.CacheRequestsTotal.WithLabelValues(namespace, "hit").Inc()
		return cached, nil
	}
	util.CacheRequestsTotal.WithLabelValues(namespace, "miss").Inc()

	fresh, err := load()
	if err != nil {
		return fresh, err
	}

	// without a version read there is nothing safe to write under
	if readErr != nil {
		return fresh, nil
	}
	if err := cache.SetJSON(ctx, namespace, key, version, fresh); err != nil {
		logger.Warn("Cache write failed", zap.String("namespace", namespace), zap.Error(err))
	}
	return fresh, nil
}

func invalidate(ctx context.Context, cache Cache, logger *zap.Logger, namespace string) {
	if err := cache.Invalidate(ctx, namespace); err != nil {
		logger.Warn("Cache invalidation failed", zap.String("namespace", namespace), zap.Error(err))
	}
}
