// Package stage holds the two units of work the orchestrator runs in
// parallel after the data and indicator phases: rendering a
// candlestick chart and obtaining an LLM narrative. Both wrap their
// producer with the same cache-then-compute-then-store shape, so that
// shape lives once as cachedStage.
package stage

import (
	"context"

	"go.uber.org/zap"

	"github.com/Archerouyang/project-alpha/internal/model"
	"github.com/Archerouyang/project-alpha/internal/telemetry"
)

// cacheGet and cacheSet are the two cache operations a cachedStage
// needs. They're defined here rather than imported from internal/cache to keep this
// package's generic helper decoupled from the cache package's byte
// encoding choices — each stage supplies its own get/set closures
// bound to the right typed accessor (GetChart/SetChart,
// GetAnalysis/SetAnalysis).
type cacheGet[T any] func(ctx context.Context, digest string) (T, bool)
type cacheSet[T any] func(ctx context.Context, digest string, value T) error

// cachedStage is the shared cache-wrapper logic ChartStage and
// AnalyzeStage both need: look up by fingerprint digest, call the
// underlying producer on a miss, reject empty/zero-value results
// without caching them, and record a telemetry observation either way.
// Making this generic over T means ChartStage ([]byte) and AnalyzeStage
// (string) share one implementation instead of two near-identical
// copies.
type cachedStage[T any] struct {
	op      model.Op
	get     cacheGet[T]
	set     cacheSet[T]
	sink    *telemetry.Sink
	log     *zap.Logger
	isEmpty func(T) bool
}

func (cs *cachedStage[T]) run(ctx context.Context, ticker, digest string, produce func(context.Context) (T, error)) (T, error) {
	start := clockNow()
	if val, ok := cs.get(ctx, digest); ok {
		cs.sink.TrackOperation(ctx, cs.op, ticker, clockNow().Sub(start), true, start.Unix())
		return val, nil
	}

	val, err := produce(ctx)
	elapsed := clockNow().Sub(start)
	if err != nil {
		var zero T
		cs.sink.TrackOperation(ctx, cs.op, ticker, elapsed, false, start.Unix())
		return zero, err
	}
	if cs.isEmpty(val) {
		cs.sink.TrackOperation(ctx, cs.op, ticker, elapsed, false, start.Unix())
		return val, errEmptyResult
	}

	if err := cs.set(ctx, digest, val); err != nil {
		cs.log.Warn("failed to cache stage result", zap.String("op", string(cs.op)), zap.Error(err))
	}
	cs.sink.TrackOperation(ctx, cs.op, ticker, elapsed, false, start.Unix())
	return val, nil
}
