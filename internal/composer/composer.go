// Package composer turns an analysis markdown string and a chart PNG
// into the final report artifact. Grounded on orchestrator.py's Phase
// 4, which shells out to a Python CLI script; here that becomes a
// pluggable Composer with a subprocess default and a pure-Go fallback
// for environments with no external binary configured.
package composer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"os/exec"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Input is everything the composer needs to build one report.
type Input struct {
	Ticker      string
	Interval    string
	ChartPNG    []byte
	Analysis    string
	LatestClose float64
	Author      string
}

// Composer produces a final report image from Input.
type Composer interface {
	Compose(ctx context.Context, in Input) ([]byte, error)
}

// SubprocessComposer shells out to an external conversion binary, the
// same pattern as orchestrator.py's _run_cli_command: write the
// analysis and chart to temp files, invoke the binary with flag
// arguments, and read back the produced image.
type SubprocessComposer struct {
	binaryPath string
}

func NewSubprocessComposer(binaryPath string) *SubprocessComposer {
	return &SubprocessComposer{binaryPath: binaryPath}
}

func (c *SubprocessComposer) Compose(ctx context.Context, in Input) ([]byte, error) {
	chartFile, err := os.CreateTemp("", "chart-*.png")
	if err != nil {
		return nil, fmt.Errorf("temp chart file: %w", err)
	}
	defer os.Remove(chartFile.Name())
	if _, err := chartFile.Write(in.ChartPNG); err != nil {
		return nil, fmt.Errorf("write temp chart file: %w", err)
	}
	chartFile.Close()

	analysisFile, err := os.CreateTemp("", "analysis-*.md")
	if err != nil {
		return nil, fmt.Errorf("temp analysis file: %w", err)
	}
	defer os.Remove(analysisFile.Name())
	if _, err := analysisFile.WriteString(in.Analysis); err != nil {
		return nil, fmt.Errorf("write temp analysis file: %w", err)
	}
	analysisFile.Close()

	outFile, err := os.CreateTemp("", "report-*.png")
	if err != nil {
		return nil, fmt.Errorf("temp output file: %w", err)
	}
	outPath := outFile.Name()
	outFile.Close()
	defer os.Remove(outPath)

	cmd := exec.CommandContext(ctx, c.binaryPath,
		"--markdown-file", analysisFile.Name(),
		"--chart-file", chartFile.Name(),
		"--output-file", outPath,
		"--ticker", in.Ticker,
		"--interval", in.Interval,
		"--author", in.Author,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("composer subprocess failed: %w (stderr: %s)", err, stderr.String())
	}

	return os.ReadFile(outPath)
}

// PureGoComposer stacks the chart above a rendered text block of the
// analysis, using only image/draw and golang.org/x/image/font. It
// exists so the module is runnable with zero external binaries, which
// the source's CLI-script design doesn't offer.
type PureGoComposer struct{}

func NewPureGoComposer() *PureGoComposer { return &PureGoComposer{} }

const (
	textMarginPx = 16
	lineHeightPx = 16
	textAreaMaxW = 1280
)

func (c *PureGoComposer) Compose(ctx context.Context, in Input) ([]byte, error) {
	chartImg, _, err := image.Decode(bytes.NewReader(in.ChartPNG))
	if err != nil {
		return nil, fmt.Errorf("decode chart png: %w", err)
	}

	lines := wrapText(in.Analysis, 140)
	textHeight := len(lines)*lineHeightPx + 2*textMarginPx

	width := chartImg.Bounds().Dx()
	if width < textAreaMaxW {
		width = textAreaMaxW
	}
	height := chartImg.Bounds().Dy() + textHeight

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(canvas, chartImg.Bounds(), chartImg, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  canvas,
		Src:  &image.Uniform{C: color.Black},
		Face: face,
	}
	y := chartImg.Bounds().Dy() + textMarginPx + lineHeightPx
	for _, line := range lines {
		d.Dot = fixed.Point26_6{X: fixed.I(textMarginPx), Y: fixed.I(y)}
		d.DrawString(line)
		y += lineHeightPx
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode report png: %w", err)
	}
	return buf.Bytes(), nil
}

// wrapText greedily wraps s into lines of at most width bytes,
// breaking on whitespace. A single word longer than width is kept
// whole on its own line.
func wrapText(s string, width int) []string {
	var lines []string
	var current []byte
	for _, field := range bytes.Fields([]byte(s)) {
		if len(current)+1+len(field) > width && len(current) > 0 {
			lines = append(lines, string(current))
			current = nil
		}
		if len(current) > 0 {
			current = append(current, ' ')
		}
		current = append(current, field...)
	}
	if len(current) > 0 {
		lines = append(lines, string(current))
	}
	return lines
}
