package stage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Archerouyang/project-alpha/internal/fingerprint"
	"github.com/Archerouyang/project-alpha/internal/model"
	"github.com/Archerouyang/project-alpha/internal/pipelineerr"
	"github.com/Archerouyang/project-alpha/internal/telemetry"
)

const geminiModel = "gemini-2.0-flash-thinking-exp-01-21"

const systemPrompt = `You are a senior financial analyst writing investor-facing chart
commentary. You are given a candlestick chart image and its indicator snapshot.
Write a concise narrative in four short paragraphs: trend assessment, price-action
structure, indicator synthesis, and strategy/risk notes. Do not use bullet points.
Do not restate the raw numbers verbatim; interpret them.`

// AnalysisCache is the subset of cache.TieredCache AnalyzeStage needs.
type AnalysisCache interface {
	GetAnalysis(ctx context.Context, digest string) (string, bool)
	SetAnalysis(ctx context.Context, digest string, markdown string) error
}

// AnalyzeStage obtains an LLM narrative for a chart image and its
// indicator snapshot. Grounded on internal/app/agent/gemini.go's
// google.golang.org/genai client construction and on
// internal/app/strategy/strategies.go's system+user content split.
type AnalyzeStage struct {
	apiKey string
	cache  *cachedStage[string]
}

func NewAnalyzeStage(apiKey string, c AnalysisCache, sink *telemetry.Sink, log *zap.Logger) *AnalyzeStage {
	return &AnalyzeStage{
		apiKey: apiKey,
		cache: &cachedStage[string]{
			op:      model.OpLLMAnalyze,
			get:     c.GetAnalysis,
			set:     c.SetAnalysis,
			sink:    sink,
			log:     log,
			isEmpty: func(s string) bool { return strings.TrimSpace(s) == "" },
		},
	}
}

// Analyze returns a narrative for the given chart PNG and indicator
// snapshot. The cache key folds in ticker to the snapshot's key-data
// fingerprint so two tickers with coincidentally identical indicator
// values never collide, deliberately excluding the interval — see the
// fingerprint package's KeyDataFingerprint doc comment.
func (s *AnalyzeStage) Analyze(ctx context.Context, ticker string, png []byte, snap model.IndicatorSnapshot) (string, error) {
	if s.apiKey == "" {
		return "", pipelineerr.New(pipelineerr.MissingCredentials, "analyze_stage", ticker, fmt.Errorf("no Gemini API key configured"))
	}
	digest := fingerprint.AnalysisDigest(ticker, snap)
	text, err := s.cache.run(ctx, ticker, digest, func(ctx context.Context) (string, error) {
		return s.callGemini(ctx, ticker, png, snap)
	})
	if err != nil {
		if err == errEmptyResult {
			return "", pipelineerr.New(pipelineerr.AnalysisEmpty, "analyze_stage", ticker, fmt.Errorf("model returned no text"))
		}
		return "", pipelineerr.New(pipelineerr.AnalysisUnavailable, "analyze_stage", ticker, err)
	}
	return text, nil
}

func (s *AnalyzeStage) callGemini(ctx context.Context, ticker string, png []byte, snap model.IndicatorSnapshot) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("creating gemini client: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}

	userContent := &genai.Content{
		Parts: []*genai.Part{
			{Text: userPrompt(ticker, snap)},
			{InlineData: &genai.Blob{MIMEType: "image/png", Data: png}},
		},
	}

	result, err := client.Models.GenerateContent(ctx, geminiModel, []*genai.Content{userContent}, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini call failed: %w", err)
	}

	var text strings.Builder
	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for _, p := range result.Candidates[0].Content.Parts {
			if p.Text != "" {
				text.WriteString(p.Text)
			}
		}
	}
	return text.String(), nil
}

// userPrompt builds the templated user-side content, translating
// llm_analyzer.py's _get_user_prompt structure (trend / price action /
// indicator synthesis / strategy-risk, no bullet points) into English.
func userPrompt(ticker string, snap model.IndicatorSnapshot) string {
	return fmt.Sprintf(`Ticker: %s
Latest close: %.4f
Period high/low: %.4f / %.4f
Bollinger Bands(20,2): upper=%.2f middle=%.2f lower=%.2f
Stochastic RSI(14,14,3): %%K=%.0f %%D=%.0f

Write the four-paragraph narrative described in your instructions.`,
		ticker, snap.LatestClose, snap.PeriodHigh, snap.PeriodLow,
		snap.BBUpper, snap.BBMiddle, snap.BBLower, snap.StochK, snap.StochD)
}
