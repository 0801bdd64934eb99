// Package client provides a Go client library for the analyst API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BV-BRC/sheet-analyst/pkg/auth"
)

// Client is the analyst API client.
type Client struct {
	baseURL    string
	auth       *auth.ServiceAuth
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a new analyst API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		auth:    auth.NewServiceAuth(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Upload is a workbook or CSV file sent with a request.
type Upload struct {
	Filename string
	Content  io.Reader
	// Sheets limits loading to these sheets, each of which must exist.
	Sheets []string
}

// OpenUpload opens a local file for upload. The caller closes the file.
func OpenUpload(path string, sheets []string) (Upload, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return Upload{}, nil, err
	}
	return Upload{Filename: filepath.Base(path), Content: f, Sheets: sheets}, f, nil
}

// Analyze asks a question about an uploaded workbook.
func (c *Client) Analyze(ctx context.Context, query string, up Upload) (*Result, error) {
	body, ctype, err := formBody(map[string]string{"query": query}, up)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, "/api/v1/analyze", body, ctype)
}

// Execute runs code against inline tables without the model.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, "/api/v1/execute", bytes.NewReader(body), "application/json")
}

// ExecuteUpload runs code against an uploaded workbook.
func (c *Client) ExecuteUpload(ctx context.Context, code string, up Upload) (*Result, error) {
	body, ctype, err := formBody(map[string]string{"code": code}, up)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, "/api/v1/execute", body, ctype)
}

// Policy returns the server's published execution policy.
func (c *Client) Policy(ctx context.Context) (*PolicyInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/v1/policy", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result PolicyInfo
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// DownloadPlot copies a chart artifact to w.
func (c *Client) DownloadPlot(ctx context.Context, name string, w io.Writer) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/plots/"+url.PathEscape(name), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) submit(ctx context.Context, path string, body io.Reader, ctype string) (*Result, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, path, body, ctype)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func formBody(fields map[string]string, up Upload) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if len(up.Sheets) > 0 {
		if err := mw.WriteField("sheets", strings.Join(up.Sheets, ",")); err != nil {
			return nil, "", err
		}
	}
	if up.Content != nil {
		fw, err := mw.CreateFormFile("excel_file", up.Filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(fw, up.Content); err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", up.Filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// doRequest makes an authenticated HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, ctype string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	c.auth.AddAuthHeader(req)
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// parseError parses an error response.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if json.Unmarshal(body, apiErr) == nil && apiErr.Message != "" {
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}

// Request/Response types

// Result is a successful analysis response.
type Result struct {
	RequestID    string  `json:"request_id"`
	Result       string  `json:"result"`
	ExecutedCode string  `json:"executed_code"`
	IsPlot       bool    `json:"is_plot"`
	PlotPath     *string `json:"plot_path"`
	Kind         string  `json:"kind"`
	Mode         string  `json:"mode"`
}

// Table is a table sent inline with an execute request.
type Table struct {
	Name    string          `json:"name"`
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// ExecuteRequest is the body of an execute request.
type ExecuteRequest struct {
	Code   string  `json:"code"`
	Tables []Table `json:"tables"`
}

// PolicyInfo is the published part of the execution policy.
type PolicyInfo struct {
	Primitives   []string `json:"primitives"`
	Plotting     bool     `json:"plotting"`
	TableResult  string   `json:"table_result"`
	ScalarResult string   `json:"scalar_result"`
}

// APIError is a non-200 response.
type APIError struct {
	StatusCode   int    `json:"-"`
	Message      string `json:"error"`
	Type         string `json:"type"`
	Reason       string `json:"reason,omitempty"`
	Kind         string `json:"kind,omitempty"`
	ExecutedCode string `json:"executed_code,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}
