package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/autofix/internal/config"
)

// newTestServer returns an httptest server that replies with the given text
// as the single content block of a Messages API response.
func newTestServer(t *testing.T, hits *atomic.Int32, contentText string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		resp := anthropicResponse{
			Content: []anthropicContent{{Type: "text", Text: contentText}},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func testConfig(baseURL string) config.AnalysisConfig {
	return config.AnalysisConfig{
		APIKey:    config.Secret("sk-test"),
		Model:     "claude-3-5-sonnet-20241022",
		BaseURL:   baseURL,
		Timeout:   config.Duration(5 * time.Second),
		MaxTokens: 1024,
	}
}

func TestAnalyze_NoAPIKeyUsesHeuristic(t *testing.T) {
	var hits atomic.Int32
	server := newTestServer(t, &hits, "{}")
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.APIKey = ""
	provider := NewService(cfg, nil)

	result := provider.Analyze(context.Background(), "some failure", "some diff")

	require.NotNil(t, result)
	assert.Equal(t, "Low", result.RiskAssessment)
	assert.Contains(t, result.RootCauseExplanation, "heuristic")
	assert.Empty(t, result.Patch)
	assert.NotEmpty(t, result.TestSuggestions)
	assert.Equal(t, int32(0), hits.Load(), "no network call may be attempted without an API key")
}

func TestAnalyze_ParsedResponsePassedThrough(t *testing.T) {
	body := `{"RootCauseExplanation":"X","Patch":"--- a\n+++ b\n","TestSuggestions":"Y","RiskAssessment":"High"}`
	server := newTestServer(t, nil, body)
	defer server.Close()

	provider := NewService(testConfig(server.URL), nil)
	result := provider.Analyze(context.Background(), "log", "diff")

	require.NotNil(t, result)
	assert.Equal(t, "X", result.RootCauseExplanation)
	assert.Equal(t, "--- a\n+++ b\n", result.Patch)
	assert.Equal(t, "Y", result.TestSuggestions)
	assert.Equal(t, "High", result.RiskAssessment)
}

func TestAnalyze_FencedJSONAccepted(t *testing.T) {
	body := "```json\n{\"RootCauseExplanation\":\"flaky clock\",\"Patch\":\"\",\"TestSuggestions\":\"freeze time\",\"RiskAssessment\":\"Low\"}\n```"
	server := newTestServer(t, nil, body)
	defer server.Close()

	provider := NewService(testConfig(server.URL), nil)
	result := provider.Analyze(context.Background(), "log", "diff")

	assert.Equal(t, "flaky clock", result.RootCauseExplanation)
	assert.Equal(t, "Low", result.RiskAssessment)
}

func TestAnalyze_UnparseableContentFallsBack(t *testing.T) {
	server := newTestServer(t, nil, "Sorry, I cannot produce JSON today.")
	defer server.Close()

	provider := NewService(testConfig(server.URL), nil)
	result := provider.Analyze(context.Background(), "log", "diff")

	require.NotNil(t, result)
	assert.Equal(t, "Medium", result.RiskAssessment)
	assert.Contains(t, result.RootCauseExplanation, "could not be parsed")
	assert.Empty(t, result.Patch)
}

func TestAnalyze_ValidJSONWrongShapeFallsBack(t *testing.T) {
	// Parseable JSON with no RootCauseExplanation must not flow downstream
	// as an empty analysis.
	server := newTestServer(t, nil, `{"answer": 42}`)
	defer server.Close()

	provider := NewService(testConfig(server.URL), nil)
	result := provider.Analyze(context.Background(), "log", "diff")

	assert.Equal(t, "Medium", result.RiskAssessment)
	assert.Contains(t, result.RootCauseExplanation, "could not be parsed")
}

func TestAnalyze_NonJSONBodyFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>502 Bad Gateway</html>"))
	}))
	defer server.Close()

	provider := NewService(testConfig(server.URL), nil)
	result := provider.Analyze(context.Background(), "log", "diff")

	assert.Equal(t, "Medium", result.RiskAssessment)
	assert.Contains(t, result.RootCauseExplanation, "could not be parsed")
}

func TestAnalyze_APIErrorFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		resp := anthropicResponse{Error: &anthropicError{Type: "rate_limit_error", Message: "slow down"}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	provider := NewService(testConfig(server.URL), nil)
	result := provider.Analyze(context.Background(), "log", "diff")

	assert.Equal(t, "Unknown", result.RiskAssessment)
	assert.Contains(t, result.RootCauseExplanation, "rate_limit_error")
}

func TestAnalyze_DeadlineFallsBack(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Timeout = config.Duration(100 * time.Millisecond)
	provider := NewService(cfg, nil)

	start := time.Now()
	result := provider.Analyze(context.Background(), "log", "diff")
	elapsed := time.Since(start)

	require.NotNil(t, result)
	assert.Equal(t, "Unknown", result.RiskAssessment)
	assert.Contains(t, result.RootCauseExplanation, "unavailable")
	assert.Less(t, elapsed, 5*time.Second, "the provider must not block past its deadline")
	assert.Equal(t, int32(1), hits.Load(), "exactly one attempt, no retries")
}

func TestAnalyze_TransportErrorFallsBack(t *testing.T) {
	// Closed server: connection refused.
	server := newTestServer(t, nil, "{}")
	server.Close()

	provider := NewService(testConfig(server.URL), nil)
	result := provider.Analyze(context.Background(), "log", "diff")

	assert.Equal(t, "Unknown", result.RiskAssessment)
	assert.NotEmpty(t, result.TestSuggestions)
}

func TestParseResult_DefaultsRiskWhenMissing(t *testing.T) {
	result, err := parseResult(`{"RootCauseExplanation":"timeout in setup"}`)
	require.NoError(t, err)
	assert.Equal(t, "Unknown", result.RiskAssessment)
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading whitespace", "  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFence(tt.in))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt("FAIL: TestFoo", "diff --git a/foo.go b/foo.go")

	assert.Contains(t, prompt, "FAIL: TestFoo")
	assert.Contains(t, prompt, "diff --git a/foo.go b/foo.go")
	assert.Contains(t, prompt, "RootCauseExplanation")
	assert.Contains(t, prompt, "RiskAssessment")
}
