package cache

import (
	"context"
	"encoding/json"

	"github.com/Archerouyang/project-alpha/internal/model"
)

// GetSeries and SetSeries wrap the byte-oriented Get/Set for the data
// bucket, whose payload is a JSON-encoded OHLCVSeries. The caller keys
// digest on (ticker, interval) — see fingerprint.SeriesDigest.
func (c *TieredCache) GetSeries(ctx context.Context, digest string) (model.OHLCVSeries, bool) {
	raw, ok := c.Get(ctx, model.CacheKey{Bucket: model.BucketData, Digest: digest})
	if !ok {
		return model.OHLCVSeries{}, false
	}
	var series model.OHLCVSeries
	if err := json.Unmarshal(raw, &series); err != nil {
		c.log.Warn("corrupt cached series, treating as miss")
		return model.OHLCVSeries{}, false
	}
	return series, true
}

func (c *TieredCache) SetSeries(ctx context.Context, digest string, series model.OHLCVSeries) error {
	raw, err := json.Marshal(series)
	if err != nil {
		return err
	}
	return c.Set(ctx, model.CacheKey{Bucket: model.BucketData, Digest: digest}, raw)
}

// GetChart and SetChart wrap Get/Set for the chart bucket, whose
// payload is raw PNG bytes.
func (c *TieredCache) GetChart(ctx context.Context, digest string) ([]byte, bool) {
	return c.Get(ctx, model.CacheKey{Bucket: model.BucketChart, Digest: digest})
}

func (c *TieredCache) SetChart(ctx context.Context, digest string, png []byte) error {
	return c.Set(ctx, model.CacheKey{Bucket: model.BucketChart, Digest: digest}, png)
}

// GetAnalysis and SetAnalysis wrap Get/Set for the analysis bucket,
// whose payload is UTF-8 markdown text.
func (c *TieredCache) GetAnalysis(ctx context.Context, digest string) (string, bool) {
	raw, ok := c.Get(ctx, model.CacheKey{Bucket: model.BucketAnalysis, Digest: digest})
	if !ok {
		return "", false
	}
	return string(raw), true
}

func (c *TieredCache) SetAnalysis(ctx context.Context, digest string, markdown string) error {
	return c.Set(ctx, model.CacheKey{Bucket: model.BucketAnalysis, Digest: digest}, []byte(markdown))
}
