package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

// Source produces the current manifest list.
type Source interface {
	Manifests(ctx context.Context) ([]Manifest, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Manifest, error)

// Manifests calls f.
func (f SourceFunc) Manifests(ctx context.Context) ([]Manifest, error) { return f(ctx) }

// Static returns a Source that always yields ms.
func Static(ms ...Manifest) Source {
	return SourceFunc(func(context.Context) ([]Manifest, error) {
		return cloneAll(ms), nil
	})
}

// Dir returns a Source reading dir on every call, overlaying its manifests on
// top of base (same key: the directory wins).
func Dir(dir string, base []Manifest) Source {
	return SourceFunc(func(context.Context) ([]Manifest, error) {
		loaded, err := LoadDir(dir)
		if err != nil {
			return nil, err
		}
		reg := NewRegistry(base...)
		for _, m := range loaded {
			reg.Register(m)
		}
		return reg.List(), nil
	})
}

const cacheKey = "pipecanvas:manifests"

// Cache is a two-tier cache in front of a Source: an in-process L1 and an
// optional Redis L2 shared between gateway instances.
type Cache struct {
	src Source
	l1  *gocache.Cache
	l2  *redis.Client
	ttl time.Duration
}

// NewCache wraps src. rdb may be nil to run with L1 only.
func NewCache(src Source, rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		src: src,
		l1:  gocache.New(ttl, 2*ttl),
		l2:  rdb,
		ttl: ttl,
	}
}

// Manifests returns the cached list, L1 first, then L2, then the source.
func (c *Cache) Manifests(ctx context.Context) ([]Manifest, error) {
	if v, ok := c.l1.Get(cacheKey); ok {
		return cloneAll(v.([]Manifest)), nil
	}

	if c.l2 != nil {
		data, err := c.l2.Get(ctx, cacheKey).Bytes()
		switch {
		case err == nil:
			var ms []Manifest
			if jerr := json.Unmarshal(data, &ms); jerr == nil {
				c.l1.Set(cacheKey, ms, c.ttl)
				return cloneAll(ms), nil
			}
			slog.Warn("discarding corrupt manifest cache entry", "key", cacheKey)
		case errors.Is(err, redis.Nil):
			slog.Debug("manifest cache miss", "tier", "redis")
		default:
			slog.Warn("manifest cache read failed", "error", err)
		}
	}

	ms, err := c.src.Manifests(ctx)
	if err != nil {
		return nil, fmt.Errorf("load manifests: %w", err)
	}
	c.l1.Set(cacheKey, cloneAll(ms), c.ttl)
	if c.l2 != nil {
		if data, jerr := json.Marshal(ms); jerr == nil {
			if serr := c.l2.Set(ctx, cacheKey, data, c.ttl).Err(); serr != nil {
				slog.Warn("manifest cache write failed", "error", serr)
			}
		}
	}
	return ms, nil
}

// Registry builds a Registry from the cached manifest list.
func (c *Cache) Registry(ctx context.Context) (*Registry, error) {
	ms, err := c.Manifests(ctx)
	if err != nil {
		return nil, err
	}
	return NewRegistry(ms...), nil
}

// Invalidate drops the cached list from both tiers.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.l1.Delete(cacheKey)
	if c.l2 != nil {
		if err := c.l2.Del(ctx, cacheKey).Err(); err != nil {
			return fmt.Errorf("invalidate manifest cache: %w", err)
		}
	}
	return nil
}

func cloneAll(ms []Manifest) []Manifest {
	out := make([]Manifest, len(ms))
	for i, m := range ms {
		out[i] = m.Clone()
	}
	return out
}
