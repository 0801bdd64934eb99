// Package intake turns raw model output into candidate analysis code by
// dropping the lines a model tends to wrap code in: import directives,
// markdown fences and mode labels echoed from the prompt.
package intake

import (
	"regexp"
	"strings"
)

// Drop reasons.
const (
	ReasonImport   = "import"
	ReasonFence    = "fence"
	ReasonPreamble = "preamble"
)

// Dropped records a line removed during normalization.
type Dropped struct {
	Line   string
	Reason string
}

// Normalized is code ready for admission.
type Normalized struct {
	Code    string
	Dropped []Dropped
}

// Error reports model output with nothing left to run.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return e.Msg
}

var (
	fromImport = regexp.MustCompile(`^from\s+\S+\s+import\s`)
	modeLabel  = regexp.MustCompile(`(?i)^mode\s*[12]\b`)
)

// Normalize drops import, fence and preamble lines and trims the result.
// It is idempotent. An empty result is returned as an *Error.
func Normalize(raw string) (Normalized, error) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var kept []string
	var dropped []Dropped
	for _, line := range strings.Split(raw, "\n") {
		if reason := classify(strings.TrimSpace(line)); reason != "" {
			dropped = append(dropped, Dropped{Line: line, Reason: reason})
			continue
		}
		kept = append(kept, line)
	}

	code := strings.TrimSpace(strings.Join(kept, "\n"))
	n := Normalized{Code: code, Dropped: dropped}
	if code == "" {
		return n, &Error{Msg: "model returned no executable code"}
	}
	return n, nil
}

func classify(line string) string {
	switch {
	case strings.HasPrefix(line, "import ") || strings.HasPrefix(line, "import{") || fromImport.MatchString(line):
		return ReasonImport
	case strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~"):
		return ReasonFence
	case strings.HasPrefix(line, "1️⃣") || strings.HasPrefix(line, "2️⃣"),
		strings.Contains(line, "DATA/TABLE/NUMBER"),
		strings.Contains(line, "PLOT/GRAPH"),
		modeLabel.MatchString(line):
		return ReasonPreamble
	}
	return ""
}
