package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BV-BRC/sheet-analyst/internal/config"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-pro-latest"
)

// GeminiClient generates code with the Gemini REST API.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewGeminiClient creates a client from model configuration.
func NewGeminiClient(cfg config.ModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is not configured (set model.api_key or GOOGLE_API_KEY)")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		model:   strings.TrimPrefix(cfg.Model, "models/"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "gemini")),
	}, nil
}

// Model returns the configured model id.
func (c *GeminiClient) Model() string {
	return c.model
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature float32 `json:"temperature"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

type geminiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *GeminiClient) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Generate sends the rendered prompt and returns the first candidate's text.
func (c *GeminiClient) Generate(ctx context.Context, schema, question string) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: BuildPrompt(schema, question)}},
		}},
		GenerationConfig: &geminiGenerationConfig{Temperature: 0},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", &UpstreamError{Provider: "gemini", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		c.logger.Warn("generation failed",
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
			zap.Duration("elapsed", time.Since(start)),
		)
		return "", &UpstreamError{Provider: "gemini", StatusCode: resp.StatusCode, Message: msg}
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", &UpstreamError{Provider: "gemini", StatusCode: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return "", &UpstreamError{Provider: "gemini", StatusCode: resp.StatusCode, Message: "prompt blocked: " + gr.PromptFeedback.BlockReason}
	}

	var text strings.Builder
	if len(gr.Candidates) > 0 {
		for _, p := range gr.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", &UpstreamError{Provider: "gemini", StatusCode: resp.StatusCode, Message: "model returned an empty response"}
	}

	c.logger.Debug("generation finished",
		zap.String("model", c.model),
		zap.Int("chars", text.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return text.String(), nil
}

// ModelInfo describes a model usable for code generation.
type ModelInfo struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ListModels returns the models that support generateContent.
func (c *GeminiClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var models []ModelInfo
	pageToken := ""
	for {
		endpoint := c.baseURL + "/v1beta/models"
		if pageToken != "" {
			endpoint += "?pageToken=" + url.QueryEscape(pageToken)
		}
		req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, &UpstreamError{Provider: "gemini", Message: "request failed", Err: err}
		}

		var page struct {
			Models []struct {
				Name             string   `json:"name"`
				DisplayName      string   `json:"displayName"`
				Description      string   `json:"description"`
				SupportedMethods []string `json:"supportedGenerationMethods"`
			} `json:"models"`
			NextPageToken string `json:"nextPageToken"`
		}
		if resp.StatusCode >= 400 {
			msg := readErrorMessage(resp.Body)
			resp.Body.Close()
			return nil, &UpstreamError{Provider: "gemini", StatusCode: resp.StatusCode, Message: msg}
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, &UpstreamError{Provider: "gemini", StatusCode: resp.StatusCode, Message: "invalid response body", Err: err}
		}

		for _, m := range page.Models {
			if !supports(m.SupportedMethods, "generateContent") {
				continue
			}
			models = append(models, ModelInfo{
				ID:          strings.TrimPrefix(m.Name, "models/"),
				Name:        m.Name,
				DisplayName: m.DisplayName,
				Description: m.Description,
			})
		}
		if page.NextPageToken == "" {
			return models, nil
		}
		pageToken = page.NextPageToken
	}
}

func supports(methods []string, want string) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}

func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return err.Error()
	}
	var er geminiErrorResp
	if json.Unmarshal(data, &er) == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return "no error detail"
}
