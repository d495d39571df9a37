package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Asset is a cached static resource.
type Asset struct {
	CacheName   string
	URL         string
	Status      int
	ContentType string
	Body        []byte
	CachedAt    time.Time
}

// PutAssets writes all assets in one transaction. Either every asset is
// stored or none are.
func (s *Store) PutAssets(ctx context.Context, assets []Asset) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, a := range assets {
			if a.CacheName == "" || a.URL == "" {
				return fmt.Errorf("asset cache name and url are required")
			}
			body := a.Body
			if body == nil {
				body = []byte{}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO assets (cache_name, url, status, content_type, body, cached_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(cache_name, url) DO UPDATE SET
					status = excluded.status,
					content_type = excluded.content_type,
					body = excluded.body,
					cached_at = excluded.cached_at
			`, a.CacheName, a.URL, a.Status, a.ContentType, body, s.stamp())
			if err != nil {
				return fmt.Errorf("put asset %s: %w", a.URL, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put assets: %w", err)
	}
	return nil
}

// GetAsset returns the cached asset for url in cacheName.
// Returns ErrNotFound if it is not cached.
func (s *Store) GetAsset(ctx context.Context, cacheName, url string) (Asset, error) {
	a := Asset{CacheName: cacheName, URL: url}
	var at int64
	err := s.db.QueryRowContext(ctx, `
		SELECT status, content_type, body, cached_at
		FROM assets
		WHERE cache_name = ? AND url = ?
	`, cacheName, url).Scan(&a.Status, &a.ContentType, &a.Body, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, ErrNotFound
	}
	if err != nil {
		return Asset{}, fmt.Errorf("get asset %s: %w", url, err)
	}
	a.CachedAt = time.UnixMilli(at).UTC()
	return a, nil
}

// AssetCacheNames lists the distinct cache names present.
func (s *Store) AssetCacheNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT cache_name FROM assets ORDER BY cache_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list asset caches: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan asset cache: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate asset caches: %w", err)
	}
	return names, nil
}

// DeleteAssetCache removes every asset stored under cacheName.
func (s *Store) DeleteAssetCache(ctx context.Context, cacheName string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE cache_name = ?`, cacheName)
	if err != nil {
		return 0, fmt.Errorf("delete asset cache %s: %w", cacheName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete asset cache %s: rows affected: %w", cacheName, err)
	}
	return n, nil
}
