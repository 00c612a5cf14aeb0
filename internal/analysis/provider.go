package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autofix/internal/config"
)

const instrumentationName = "github.com/fyrsmithlabs/autofix/internal/analysis"

// anthropicVersion is the Messages API version header value.
const anthropicVersion = "2023-06-01"

// errMalformedResponse marks a response body that was received but could not
// be decoded. Distinguished from transport failures in the fallback policy.
var errMalformedResponse = errors.New("malformed response")

// Provider analyzes a test failure. Implementations never fail: degraded
// conditions surface as fallback Results, not errors.
type Provider interface {
	Analyze(ctx context.Context, testLog, gitDiff string) *Result
}

// service implements Provider against the Anthropic Messages API.
type service struct {
	config config.AnalysisConfig
	client *http.Client
	logger *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	requestCounter metric.Int64Counter
}

// NewService creates an analysis provider.
func NewService(cfg config.AnalysisConfig, logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		config: cfg,
		client: &http.Client{},
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	s.initMetrics()

	return s
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.requestCounter, err = s.meter.Int64Counter(
		"autofix.analysis.requests_total",
		metric.WithDescription("Total number of analysis requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		s.logger.Warn("failed to create request counter", zap.Error(err))
	}
}

// Analyze produces a Result for the given test log and diff.
//
// The remote call is attempted at most once, bounded by the configured
// timeout. Every failure mode maps to a well-formed fallback Result.
func (s *service) Analyze(ctx context.Context, testLog, gitDiff string) *Result {
	ctx, span := s.tracer.Start(ctx, "analysis.analyze")
	defer span.End()

	if !s.config.APIKey.IsSet() {
		s.logger.Info("no API key configured, using heuristic analysis")
		s.recordOutcome(ctx, "heuristic")
		return heuristicResult()
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout.Duration())
	defer cancel()

	content, err := s.complete(ctx, buildPrompt(testLog, gitDiff))
	if errors.Is(err, errMalformedResponse) {
		span.RecordError(err)
		s.logger.Warn("malformed analysis response body", zap.Error(err))
		s.recordOutcome(ctx, "parse_error")
		return parseFallback(err)
	}
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("remote analysis failed", zap.Error(err))
		s.recordOutcome(ctx, "transport_error")
		return transportFallback(err)
	}

	result, err := parseResult(content)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("unparseable analysis response", zap.Error(err))
		s.recordOutcome(ctx, "parse_error")
		return parseFallback(err)
	}

	s.recordOutcome(ctx, "ok")
	return result
}

func (s *service) recordOutcome(ctx context.Context, outcome string) {
	if s.requestCounter != nil {
		s.requestCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
}

// buildPrompt assembles the analysis prompt from the test log and diff.
func buildPrompt(testLog, gitDiff string) string {
	return fmt.Sprintf(`A CI test run failed. Analyze the failure and respond with a single JSON object containing exactly these fields:
- "RootCauseExplanation": why the tests failed
- "Patch": a unified diff fixing the failure, or an empty string if no fix is apparent
- "TestSuggestions": additional tests that would catch this class of failure
- "RiskAssessment": one of "Low", "Medium", "High" for applying the patch

Respond with the JSON object only, no surrounding prose.

Test output:
%s

Diff against the trunk branch:
%s`, testLog, gitDiff)
}

// anthropicRequest is a Messages API request.
type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

// anthropicMessage is a message in the Messages API format.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is a Messages API response.
type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

// anthropicContent is a content block in the response.
type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicError is an error payload from the API.
type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// complete performs the single HTTP request and returns the text content.
func (s *service) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:     s.config.Model,
		MaxTokens: s.config.MaxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.config.APIKey.Value())
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("%w: decoding body (status %d): %v", errMalformedResponse, resp.StatusCode, err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("API error (%s): %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("empty response content")
	}

	return apiResp.Content[0].Text, nil
}

// parseResult decodes the model's content into a Result.
//
// Models routinely wrap JSON output in markdown code fences, so fences are
// stripped before decoding. A decoded object whose RootCauseExplanation is
// empty is rejected: syntactically valid JSON of the wrong shape must not
// flow downstream as an empty analysis.
func parseResult(content string) (*Result, error) {
	text := stripCodeFence(content)

	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("decoding analysis JSON: %w", err)
	}

	if strings.TrimSpace(result.RootCauseExplanation) == "" {
		return nil, fmt.Errorf("analysis JSON missing RootCauseExplanation")
	}
	if result.RiskAssessment == "" {
		result.RiskAssessment = riskUnknown
	}

	return &result, nil
}

// stripCodeFence removes a surrounding markdown code fence, if any.
func stripCodeFence(s string) string {
	text := strings.TrimSpace(s)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// heuristicResult is the fixed result used when no API key is configured.
func heuristicResult() *Result {
	return &Result{
		RootCauseExplanation: "Local heuristic analysis was used because no reasoning service API key is configured. Review the attached test log and diff manually to determine the root cause.",
		Patch:                "",
		TestSuggestions:      "Re-run the failing tests locally with verbose output to narrow down the failure.",
		RiskAssessment:       riskLow,
	}
}

// transportFallback describes a network or deadline failure.
func transportFallback(err error) *Result {
	return &Result{
		RootCauseExplanation: fmt.Sprintf("Remote analysis was unavailable: %v. The test log and diff were captured for manual review.", err),
		Patch:                "",
		TestSuggestions:      "Retry the analysis once the reasoning service is reachable.",
		RiskAssessment:       riskUnknown,
	}
}

// parseFallback describes a response that could not be decoded.
func parseFallback(err error) *Result {
	return &Result{
		RootCauseExplanation: fmt.Sprintf("The reasoning service responded, but its output could not be parsed as the expected JSON object: %v.", err),
		Patch:                "",
		TestSuggestions:      "Inspect the raw service response and the captured test log manually.",
		RiskAssessment:       riskMedium,
	}
}
