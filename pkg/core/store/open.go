package store

import (
	"context"

	"finstory/pkg/core/config"
)

// Open returns the cache selected by cfg, or nil when caching is off. The
// returned close func is never nil.
func Open(ctx context.Context, cfg config.CacheConfig) (Cache, func(), error) {
	noop := func() {}
	switch {
	case cfg.DatabaseURL != "":
		pool, err := Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return NewPostgresCache(pool), pool.Close, nil
	case cfg.Dir != "":
		c, err := NewFileCache(cfg.Dir)
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil
	}
	return nil, noop, nil
}
