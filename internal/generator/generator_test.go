package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BV-BRC/sheet-analyst/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewGeminiClient(config.ModelConfig{APIKey: "test-key", Model: "models/gemini-test", BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("Table `employees`: 3 rows\n", "  highest salary?  ")
	assert.Contains(t, p, "Table `employees`: 3 rows\n\nEach table")
	assert.True(t, strings.HasSuffix(p, "User Question: highest salary?\n"))
	assert.Contains(t, p, "MODE 1")
	assert.Contains(t, p, "MODE 2")
	assert.Contains(t, p, `print("Plot saved to plots/salary_dist.png")`)
	assert.NotContains(t, p, "{{")
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(config.ModelConfig{}, nil)
	assert.Error(t, err)

	c, err := NewGeminiClient(config.ModelConfig{APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultGeminiModel, c.Model())
}

func TestGeminiClient_Generate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "User Question: top earners")

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"employees."},{"text":"nlargest(5, 'Salary')"}]}}]}`))
	})

	code, err := c.Generate(context.Background(), "schema", "top earners")
	require.NoError(t, err)
	assert.Equal(t, "employees.nlargest(5, 'Salary')", code)
}

func TestGeminiClient_GenerateFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantMsg   string
		temporary bool
	}{
		{"http error", http.StatusForbidden, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`, "API key not valid", false},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota exceeded"}}`, "quota exceeded", true},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, "empty response", false},
		{"blank text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`, "empty response", false},
		{"blocked", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`, "SAFETY", false},
		{"bad json", http.StatusOK, `not json`, "invalid response body", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Generate(context.Background(), "schema", "q")
			var ue *UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Contains(t, ue.Error(), tt.wantMsg)
			assert.Equal(t, tt.temporary, ue.Temporary())
		})
	}
}

func TestGeminiClient_ListModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"models":[
				{"name":"models/gemini-pro-latest","displayName":"Gemini Pro","supportedGenerationMethods":["generateContent","countTokens"]},
				{"name":"models/embedding-001","supportedGenerationMethods":["embedContent"]}
			],"nextPageToken":"p2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"models/gemini-flash","supportedGenerationMethods":["generateContent"]}]}`))
	})

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "gemini-pro-latest", models[0].ID)
	assert.Equal(t, "Gemini Pro", models[0].DisplayName)
	assert.Equal(t, "gemini-flash", models[1].ID)
}

func TestStatic(t *testing.T) {
	code, err := Static{Code: "1 + 1"}.Generate(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "1 + 1", code)

	_, err = Static{}.Generate(context.Background(), "", "")
	var ue *UpstreamError
	assert.ErrorAs(t, err, &ue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Static{Code: "1"}.Generate(ctx, "", "")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFromConfig(t *testing.T) {
	g, err := FromConfig(config.ModelConfig{Provider: "gemini", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, g)

	_, err = FromConfig(config.ModelConfig{Provider: "gemini"}, nil)
	assert.Error(t, err)

	g, err = FromConfig(config.ModelConfig{Provider: "static"}, nil)
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), "", "q")
	var ue *UpstreamError
	assert.ErrorAs(t, err, &ue)

	_, err = FromConfig(config.ModelConfig{Provider: "openai"}, nil)
	assert.Error(t, err)
}
