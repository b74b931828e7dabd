package stage

import (
	"errors"
	"time"
)

// errEmptyResult signals a produce() call that completed without error
// but returned nothing usable (a zero-byte chart, an empty analysis
// string). Callers translate it into the right pipelineerr.Kind, since
// that mapping differs between ChartStage and AnalyzeStage.
var errEmptyResult = errors.New("stage produced an empty result")

// clockNow is a var so tests can override it; production code only
// calls it and never reassigns it.
var clockNow = time.Now
