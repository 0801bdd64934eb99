package admission

import (
	"strings"
)

// Reason classifies a rejection.
type Reason string

const (
	ReasonUnsafeToken Reason = "unsafe_token"
	ReasonEmptyCode   Reason = "empty_code"
)

// Decision is the outcome of admitting code.
type Decision struct {
	Admitted bool
	Reason   Reason
	token    string
}

// Token returns the forbidden token that caused an unsafe_token rejection.
// It is meant for server logs only.
func (d Decision) Token() string {
	return d.token
}

// Err returns nil for admitted code and a *Rejection otherwise.
func (d Decision) Err() error {
	if d.Admitted {
		return nil
	}
	return &Rejection{Reason: d.Reason}
}

// Rejection is returned to callers for code that failed admission. Its
// message never names the matched token.
type Rejection struct {
	Reason Reason
}

func (r *Rejection) Error() string {
	if r.Reason == ReasonEmptyCode {
		return "No code to execute."
	}
	return "Unsafe operation detected."
}

// Admit checks code against the policy. Empty code is rejected before the
// denylist scan.
func Admit(code string, p *Policy) Decision {
	if strings.TrimSpace(code) == "" {
		return Decision{Reason: ReasonEmptyCode}
	}
	if tok, hit := p.scan(code); hit {
		return Decision{Reason: ReasonUnsafeToken, token: tok}
	}
	return Decision{Admitted: true}
}
