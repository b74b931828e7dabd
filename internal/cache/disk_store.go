package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/Archerouyang/project-alpha/internal/model"
)

// DiskStore is the cache's second tier: durable storage for entries
// that survive process restarts. FileDiskStore (default) and
// RedisDiskStore are the two implementations; callers select one via
// CacheConfig.ResolvedDiskBackend.
type DiskStore interface {
	// Get returns the stored payload and its stored-at timestamp, or
	// ok=false if absent.
	Get(ctx context.Context, key model.CacheKey) (payload []byte, storedAtS int64, ok bool, err error)
	Set(ctx context.Context, key model.CacheKey, payload []byte, storedAtS int64) error
	Delete(ctx context.Context, key model.CacheKey) error
	// ClearExpired removes entries whose age exceeds ttl for that
	// bucket; ttlFor resolves a bucket to its configured TTL.
	ClearExpired(ctx context.Context, ttlFor func(model.Bucket) time.Duration) (removed int, err error)
	ClearAll(ctx context.Context) error
}

// FileDiskStore persists cache entries as files under
// <storagePath>/<bucket>/<digest>.cache, grounded on smart_cache.py's
// _get_disk_path: one subdirectory per bucket, the file's mtime doubles
// as its stored-at timestamp so no sidecar metadata file is needed.
type FileDiskStore struct {
	storagePath string
}

func NewFileDiskStore(storagePath string) *FileDiskStore {
	return &FileDiskStore{storagePath: storagePath}
}

func (f *FileDiskStore) path(key model.CacheKey) string {
	return filepath.Join(f.storagePath, string(key.Bucket), key.Digest+".cache")
}

func (f *FileDiskStore) Get(ctx context.Context, key model.CacheKey) ([]byte, int64, bool, error) {
	p := f.path(key)
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, false, nil
		}
		return nil, 0, false, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, 0, false, err
	}
	return data, info.ModTime().Unix(), true, nil
}

func (f *FileDiskStore) Set(ctx context.Context, key model.CacheKey, payload []byte, storedAtS int64) error {
	p := f.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(p, payload, 0o644); err != nil {
		return err
	}
	storedAt := time.Unix(storedAtS, 0)
	return os.Chtimes(p, storedAt, storedAt)
}

func (f *FileDiskStore) Delete(ctx context.Context, key model.CacheKey) error {
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FileDiskStore) ClearExpired(ctx context.Context, ttlFor func(model.Bucket) time.Duration) (int, error) {
	removed := 0
	for _, bucket := range []model.Bucket{model.BucketData, model.BucketChart, model.BucketAnalysis} {
		dir := filepath.Join(f.storagePath, string(bucket))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}
		ttl := ttlFor(bucket)
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if time.Since(info.ModTime()) > ttl {
				if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
					removed++
				}
			}
		}
	}
	return removed, nil
}

func (f *FileDiskStore) ClearAll(ctx context.Context) error {
	for _, bucket := range []model.Bucket{model.BucketData, model.BucketChart, model.BucketAnalysis} {
		dir := filepath.Join(f.storagePath, string(bucket))
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return nil
}
