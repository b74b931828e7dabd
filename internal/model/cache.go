package model

import "time"

// CacheKey identifies one cached value within a bucket. The digest is
// produced by the internal/fingerprint package; CacheKey itself carries
// no hashing logic.
type CacheKey struct {
	Bucket Bucket
	Digest string
}

// String renders the key as "<bucket>:<digest>", the form Redis keys
// are derived from. On-disk blob paths do not use it; they are built
// as <bucket>/<digest>.cache.
func (k CacheKey) String() string {
	return string(k.Bucket) + ":" + k.Digest
}

// CacheEntry is one stored value plus the bookkeeping the tiered cache
// needs to expire and evict it. Payload is the bucket-specific blob: a
// JSON-encoded OHLCVSeries for BucketData, PNG bytes for BucketChart,
// UTF-8 markdown for BucketAnalysis.
//
// StoredAt and LastHit are time.Time values carrying time.Now()'s
// monotonic reading rather than a unix timestamp, so the memory tier's
// TTL check keeps working across a backward wall-clock adjustment (NTP
// correction, manual clock change): time.Time.Sub uses the monotonic
// reading when both operands have one, so it is immune to the wall
// clock moving. The disk tier has no such guarantee — it keys expiry
// off file mtime, which is inherently wall-clock.
type CacheEntry struct {
	Key      CacheKey
	Payload  []byte
	StoredAt time.Time
	TTL      time.Duration
	LastHit  time.Time // updated on every Get, drives LRU eviction order
}

// Expired reports whether the entry's TTL has elapsed as of now.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) >= e.TTL
}
