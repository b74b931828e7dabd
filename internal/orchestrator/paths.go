package orchestrator

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// reportPaths mirrors orchestrator.py's _create_report_paths: a
// date-bucketed directory tree under outputDir, named
// report_<ticker>_<interval>_<timestamp>_<8-char uuid prefix>, holding
// the final composed
// image. Go has no need for a temp-data sidecar file the way the
// source's subprocess CLI script did (the Go composer runs in-process
// and receives the analysis text and chart bytes directly), so this
// only resolves the directory and final file path.
type reportPaths struct {
	reportDir      string
	finalImagePath string
}

func newReportPaths(outputDir, ticker, interval string, now time.Time) (reportPaths, error) {
	dateDir := filepath.Join(outputDir, now.Format("2006-01-02"))
	reportDirName := "report_" + ticker + "_" + interval + "_" + now.Format("20060102_150405") + "_" + uuid.NewString()[:8]
	reportDir := filepath.Join(dateDir, reportDirName)
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		return reportPaths{}, err
	}
	return reportPaths{
		reportDir:      reportDir,
		finalImagePath: filepath.Join(reportDir, "final_report.png"),
	}, nil
}
