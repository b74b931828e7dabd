// Package fingerprint derives the short content hashes the cache uses as
// key material. Grounded on smart_cache.py's _get_dataframe_hash and
// _generate_key: hash a handful of summary fields rather than the whole
// payload, since the summary is a sufficient statistic for "same
// logical dataset" given monotonic, append-only bars.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/Archerouyang/project-alpha/internal/model"
)

const digestLen = 16

// DataFingerprint hashes an OHLCV series down to a 16-hex-character
// digest built from its shape and the first/last bar. Two fetches of
// the same ticker/interval that land on the same window and latest
// close collide on purpose — that's the point, it's how the cache
// recognizes "nothing new happened" without comparing every row.
func DataFingerprint(series model.OHLCVSeries) string {
	if series.Len() == 0 {
		return hashString("empty_series")
	}
	first := series.First()
	last := series.Last()
	raw := fmt.Sprintf("shape:%dx5_start:%d_end:%d_last_close:%.4f",
		series.Len(), first.Time, last.Time, last.Close)
	return hashString(raw)
}

// OptionFingerprint hashes an arbitrary key/value set (chart render
// options, prompt parameters) into a stable digest. Keys are sorted so
// the same map always produces the same digest regardless of
// iteration order.
func OptionFingerprint(kv map[string]string) [digestLen]byte {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(kv[k])
		b.WriteByte('|')
	}
	sum := md5.Sum([]byte(b.String()))
	var out [digestLen]byte
	copy(out[:], sum[:digestLen])
	return out
}

// KeyDataFingerprint hashes the six scalar indicator values that feed
// the analysis prompt, mirroring llm_analyzer.py's _get_key_data_hash:
// each value formatted to 4 decimals and joined with "|", then
// truncated to 16 hex characters. The interval is deliberately excluded
// from the hashed material, preserving the source's cross-interval
// analysis reuse: the same indicator snapshot gets the same narrative
// regardless of which interval produced it.
func KeyDataFingerprint(snap model.IndicatorSnapshot) string {
	raw := fmt.Sprintf("%.4f|%.4f|%.4f|%.4f|%.4f|%.4f",
		snap.LatestClose, snap.BBUpper, snap.BBMiddle, snap.BBLower, snap.StochK, snap.StochD)
	return hashString(raw)
}

// SeriesDigest keys the data-bucket cache on (ticker, interval) —
// unlike the chart and analysis buckets, the data bucket has no
// upstream fingerprint to fold in, since it caches the raw fetch
// result itself.
func SeriesDigest(ticker string, interval model.Interval) string {
	sum := OptionFingerprint(map[string]string{"ticker": ticker, "interval": string(interval)})
	return hex.EncodeToString(sum[:])
}

// ChartDigest folds ticker and interval into the series' data
// fingerprint so that two different tickers (or the same ticker at two
// intervals) never collide on cached chart bytes.
func ChartDigest(ticker string, interval model.Interval, series model.OHLCVSeries) string {
	sum := OptionFingerprint(map[string]string{
		"ticker":   ticker,
		"interval": string(interval),
		"data":     DataFingerprint(series),
	})
	return hex.EncodeToString(sum[:])
}

// AnalysisDigest folds ticker into the snapshot's key-data fingerprint
// so two tickers that happen to share indicator values never collide on
// cached narrative text. Interval is deliberately excluded — see
// KeyDataFingerprint's doc comment.
func AnalysisDigest(ticker string, snap model.IndicatorSnapshot) string {
	sum := OptionFingerprint(map[string]string{
		"ticker":   ticker,
		"key_data": KeyDataFingerprint(snap),
	})
	return hex.EncodeToString(sum[:])
}

func hashString(raw string) string {
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])[:digestLen]
}
