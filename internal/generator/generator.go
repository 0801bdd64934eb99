// Package generator asks a language model for analysis code.
package generator

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BV-BRC/sheet-analyst/internal/config"
)

// Generator turns a question about the described tables into analysis code.
// The returned text is raw model output; callers normalize it.
type Generator interface {
	Generate(ctx context.Context, schema, question string) (string, error)
}

// UpstreamError reports a model call that failed or produced nothing usable.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream error (status %d): %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s upstream error: %s", e.Provider, msg)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the upstream signalled a transient condition.
// Nothing retries automatically; the flag is surfaced to callers and logs.
func (e *UpstreamError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 || (e.StatusCode == 0 && e.Err != nil)
}

// Static always returns the same code. It stands in for the model when code
// is supplied directly.
type Static struct {
	Code string
}

// Generate returns s.Code, or an UpstreamError when it is empty.
func (s Static) Generate(ctx context.Context, schema, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &UpstreamError{Provider: "static", Message: "request canceled", Err: err}
	}
	if s.Code == "" {
		return "", &UpstreamError{Provider: "static", Message: "no code configured"}
	}
	return s.Code, nil
}

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, schema, question string) (string, error)

func (f Func) Generate(ctx context.Context, schema, question string) (string, error) {
	return f(ctx, schema, question)
}

// FromConfig builds the generator named by cfg.Provider. The "static"
// provider has no model behind it: analyze requests fail upstream and only
// direct execution works.
func FromConfig(cfg config.ModelConfig, logger *zap.Logger) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "gemini":
		return NewGeminiClient(cfg, logger)
	case "static", "none":
		return Static{}, nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
