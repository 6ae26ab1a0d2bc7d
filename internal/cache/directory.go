package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"mystop/internal/domain"
)

// Lister is the uncached school directory.
type Lister interface {
	ListAll(ctx context.Context) []domain.School
	ListClosest(ctx context.Context, lat, lon, distance float64) []domain.School
}

// CachedDirectory serves school lists from the store when possible. Store
// failures fall through to the underlying directory.
type CachedDirectory struct {
	next   Lister
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDirectory(next Lister, store Store, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	return &CachedDirectory{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger.With("component", "directory_cache"),
	}
}

func (d *CachedDirectory) ListAll(ctx context.Context) []domain.School {
	return d.cached(ctx, KeySchoolsAll, func() []domain.School {
		return d.next.ListAll(ctx)
	})
}

func (d *CachedDirectory) ListClosest(ctx context.Context, lat, lon, distance float64) []domain.School {
	return d.cached(ctx, KeySchoolsClosest(lat, lon, distance), func() []domain.School {
		return d.next.ListClosest(ctx, lat, lon, distance)
	})
}

func (d *CachedDirectory) cached(ctx context.Context, key string, fetch func() []domain.School) []domain.School {
	schools, ok, err := d.load(ctx, key)
	if err != nil {
		d.logger.Warn("reading cached schools failed", "key", key, "error", err)
	}
	if ok {
		return schools
	}

	schools = fetch()
	// An empty list usually means the directory was unreachable.
	if len(schools) == 0 {
		return schools
	}
	if err := d.save(ctx, key, schools); err != nil {
		d.logger.Warn("caching schools failed", "key", key, "error", err)
	}
	return schools
}

func (d *CachedDirectory) load(ctx context.Context, key string) ([]domain.School, bool, error) {
	data, err := d.store.Get(ctx, key)
	if err != nil || data == nil {
		return nil, false, err
	}
	raw, err := gzipDecompress(data)
	if err != nil {
		return nil, false, fmt.Errorf("decompress: %w", err)
	}
	var schools []domain.School
	if err := json.Unmarshal(raw, &schools); err != nil {
		return nil, false, fmt.Errorf("json unmarshal: %w", err)
	}
	return schools, true, nil
}

func (d *CachedDirectory) save(ctx context.Context, key string, schools []domain.School) error {
	raw, err := json.Marshal(schools)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	data, err := gzipCompress(raw)
	if err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	return d.store.Set(ctx, key, data, d.ttl)
}
