package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/roach88/claimwiz/internal/store"
)

// DefaultCacheName is the current asset cache generation.
const DefaultCacheName = "tax-filing-cache-v1"

// Source says where a Fetch result came from.
type Source string

const (
	FromCache   Source = "cache"
	FromNetwork Source = "network"
	// Passthrough responses come from origins the cache does not handle.
	Passthrough Source = "passthrough"
)

// AssetStore is the durable asset tier.
type AssetStore interface {
	PutAssets(ctx context.Context, assets []store.Asset) error
	GetAsset(ctx context.Context, cacheName, url string) (store.Asset, error)
	AssetCacheNames(ctx context.Context) ([]string, error)
	DeleteAssetCache(ctx context.Context, cacheName string) (int64, error)
}

// Option configures a Cache.
type Option func(*Cache)

// WithAllowedOrigins sets the origins ("scheme://host[:port]") whose
// resources are cached. Requests to other origins pass straight through.
func WithAllowedOrigins(origins ...string) Option {
	return func(c *Cache) {
		for _, o := range origins {
			c.origins = append(c.origins, strings.TrimRight(o, "/"))
		}
	}
}

// Cache serves static assets cache-first so the wizard works offline.
type Cache struct {
	store   AssetStore
	fetcher Fetcher
	name    string
	origins []string
}

// New creates a cache generation called name. An empty name uses
// DefaultCacheName.
func New(st AssetStore, fetcher Fetcher, name string, opts ...Option) *Cache {
	if name == "" {
		name = DefaultCacheName
	}
	c := &Cache{store: st, fetcher: fetcher, name: name}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the cache generation name.
func (c *Cache) Name() string {
	return c.name
}

// Install fetches and stores every url. If any fetch fails or returns a
// status other than 200, nothing is stored.
func (c *Cache) Install(ctx context.Context, urls []string) error {
	batch := make([]store.Asset, 0, len(urls))
	for _, u := range urls {
		resp, err := c.fetcher.Fetch(ctx, u)
		if err != nil {
			return fmt.Errorf("install %s: %w", c.name, err)
		}
		if resp.Status != http.StatusOK {
			return fmt.Errorf("install %s: %s returned %d", c.name, u, resp.Status)
		}
		batch = append(batch, c.asset(u, resp))
	}
	if err := c.store.PutAssets(ctx, batch); err != nil {
		return fmt.Errorf("install %s: %w", c.name, err)
	}
	slog.Info("assets installed", "cache", c.name, "count", len(batch))
	return nil
}

// Activate deletes every other cache generation and returns their names.
func (c *Cache) Activate(ctx context.Context) ([]string, error) {
	names, err := c.store.AssetCacheNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("activate %s: %w", c.name, err)
	}
	removed := []string{}
	for _, n := range names {
		if n == c.name {
			continue
		}
		count, err := c.store.DeleteAssetCache(ctx, n)
		if err != nil {
			return removed, fmt.Errorf("activate %s: %w", c.name, err)
		}
		slog.Info("stale asset cache removed", "cache", n, "assets", count)
		removed = append(removed, n)
	}
	return removed, nil
}

// Fetch returns the cached copy of rawURL or, on a miss, fetches it and caches
// a 200 response. Resources from origins that are not allowed are fetched
// without touching the cache.
func (c *Cache) Fetch(ctx context.Context, rawURL string) (Response, Source, error) {
	if !c.allowed(rawURL) {
		resp, err := c.fetcher.Fetch(ctx, rawURL)
		return resp, Passthrough, err
	}

	a, err := c.store.GetAsset(ctx, c.name, rawURL)
	switch {
	case err == nil:
		return Response{Status: a.Status, ContentType: a.ContentType, Body: a.Body}, FromCache, nil
	case !errors.Is(err, store.ErrNotFound):
		slog.Warn("asset cache read failed", "url", rawURL, "error", err)
	}

	resp, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return Response{}, FromNetwork, err
	}
	if resp.Status == http.StatusOK {
		if err := c.store.PutAssets(ctx, []store.Asset{c.asset(rawURL, resp)}); err != nil {
			slog.Warn("asset not cached", "url", rawURL, "error", err)
		}
	}
	return resp, FromNetwork, nil
}

func (c *Cache) asset(u string, resp Response) store.Asset {
	return store.Asset{
		CacheName:   c.name,
		URL:         u,
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Body:        resp.Body,
	}
}

// allowed reports whether rawURL belongs to a cached origin. Relative URLs
// are same-origin. With no origins configured every URL is allowed.
func (c *Cache) allowed(rawURL string) bool {
	if len(c.origins) == 0 {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if !u.IsAbs() {
		return true
	}
	origin := u.Scheme + "://" + u.Host
	for _, o := range c.origins {
		if o == origin {
			return true
		}
	}
	return false
}
