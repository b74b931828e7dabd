package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Archerouyang/project-alpha/internal/model"
)

// RedisDiskStore is the alternate disk-tier backend for deployments
// that run more than one pipeline process sharing a durable cache,
// where per-process local files wouldn't be visible to siblings.
// Grounded on go-redis/redis/v8 client construction in
// utils/conn.go. Each entry is a Redis hash with "payload" and
// "stored_at" fields, keyed by CacheKey.String().
type RedisDiskStore struct {
	client *redis.Client
}

const redisKeyPrefix = "project-alpha:cache:"

func NewRedisDiskStore(addr, password string) *RedisDiskStore {
	opts := &redis.Options{
		Addr:            addr,
		PoolSize:        20,
		MinIdleConns:    10,
		PoolTimeout:     60 * time.Second,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		MaxRetries:      5,
		MinRetryBackoff: time.Second,
		MaxRetryBackoff: 10 * time.Second,
		DialTimeout:     15 * time.Second,
	}
	if password != "" {
		opts.Password = password
	}
	return &RedisDiskStore{client: redis.NewClient(opts)}
}

func redisKey(key model.CacheKey) string {
	return redisKeyPrefix + key.String()
}

func (r *RedisDiskStore) Get(ctx context.Context, key model.CacheKey) ([]byte, int64, bool, error) {
	vals, err := r.client.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return nil, 0, false, err
	}
	if len(vals) == 0 {
		return nil, 0, false, nil
	}
	storedAtS, _ := strconv.ParseInt(vals["stored_at"], 10, 64)
	return []byte(vals["payload"]), storedAtS, true, nil
}

func (r *RedisDiskStore) Set(ctx context.Context, key model.CacheKey, payload []byte, storedAtS int64) error {
	return r.client.HSet(ctx, redisKey(key), map[string]interface{}{
		"payload":   payload,
		"stored_at": storedAtS,
	}).Err()
}

func (r *RedisDiskStore) Delete(ctx context.Context, key model.CacheKey) error {
	return r.client.Del(ctx, redisKey(key)).Err()
}

// ClearExpired scans the key space with SCAN (never KEYS, to avoid
// blocking a shared Redis instance) and deletes any hash whose
// stored_at has aged past its bucket's TTL.
func (r *RedisDiskStore) ClearExpired(ctx context.Context, ttlFor func(model.Bucket) time.Duration) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	now := time.Now()
	for iter.Next(ctx) {
		k := iter.Val()
		bucket := bucketFromRedisKey(k)
		vals, err := r.client.HGetAll(ctx, k).Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		storedAtS, _ := strconv.ParseInt(vals["stored_at"], 10, 64)
		if now.Sub(time.Unix(storedAtS, 0)) > ttlFor(bucket) {
			if err := r.client.Del(ctx, k).Err(); err == nil {
				removed++
			}
		}
	}
	return removed, iter.Err()
}

func (r *RedisDiskStore) ClearAll(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// bucketFromRedisKey extracts the bucket segment from a full Redis key
// of the form "project-alpha:cache:<bucket>:<digest>".
func bucketFromRedisKey(k string) model.Bucket {
	rest := k[len(redisKeyPrefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return model.Bucket(rest[:i])
		}
	}
	return model.BucketData
}
