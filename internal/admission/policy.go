// Package admission decides whether normalized code may be executed. The
// decision is a pure function of the code and an immutable Policy.
package admission

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Rules is the serialized form of a policy.
type Rules struct {
	ForbiddenTokens []string `yaml:"forbidden_tokens"`
	Primitives      []string `yaml:"primitives"`
	Plotting        *bool    `yaml:"plotting,omitempty"`
	TableResult     string   `yaml:"table_result"`
	ScalarResult    string   `yaml:"scalar_result"`
}

// Policy holds the denylist and the allowlist of names executed code may use.
// It is never modified after construction.
type Policy struct {
	forbidden    []string
	primitives   []string
	plotting     bool
	tableResult  string
	scalarResult string
}

// New validates rules and builds a policy. Unset fields take defaults, but a
// policy whose forbidden list is explicitly empty is refused.
func New(r Rules) (*Policy, error) {
	if r.ForbiddenTokens == nil {
		r.ForbiddenTokens = DefaultRules.ForbiddenTokens
	}
	if len(r.ForbiddenTokens) == 0 {
		return nil, errors.New("policy: forbidden_tokens must not be empty")
	}
	for _, tok := range r.ForbiddenTokens {
		if strings.TrimSpace(tok) == "" {
			return nil, errors.New("policy: forbidden_tokens contains a blank token")
		}
	}
	if r.Primitives == nil {
		r.Primitives = DefaultRules.Primitives
	}
	for _, name := range r.Primitives {
		if !knownPrimitive[name] {
			return nil, fmt.Errorf("policy: unknown primitive %q", name)
		}
	}
	plotting := true
	if r.Plotting != nil {
		plotting = *r.Plotting
	}
	if r.TableResult == "" {
		r.TableResult = DefaultRules.TableResult
	}
	if r.ScalarResult == "" {
		r.ScalarResult = DefaultRules.ScalarResult
	}
	for _, name := range []string{r.TableResult, r.ScalarResult} {
		if !identifier.MatchString(name) {
			return nil, fmt.Errorf("policy: result name %q is not an identifier", name)
		}
	}

	p := &Policy{
		forbidden:    append([]string(nil), r.ForbiddenTokens...),
		primitives:   append([]string(nil), r.Primitives...),
		plotting:     plotting,
		tableResult:  r.TableResult,
		scalarResult: r.ScalarResult,
	}
	for _, name := range append(p.Primitives(), p.tableResult, p.scalarResult) {
		if !p.Permits(name) {
			return nil, fmt.Errorf("policy: allowlisted name %q contains a forbidden token", name)
		}
	}
	return p, nil
}

// NewDefault returns the built-in policy.
func NewDefault() *Policy {
	p, err := New(DefaultRules)
	if err != nil {
		panic(err)
	}
	return p
}

// Load reads a policy from a YAML file. An empty path or a missing file
// yields the default policy.
func Load(path string) (*Policy, error) {
	if path == "" {
		return NewDefault(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	return New(r)
}

// ForbiddenTokens returns a copy of the denylist.
func (p *Policy) ForbiddenTokens() []string {
	return append([]string(nil), p.forbidden...)
}

// Primitives returns the callable names bound into every environment.
func (p *Policy) Primitives() []string {
	return append([]string(nil), p.primitives...)
}

// Plotting reports whether the plt and sns namespaces are bound.
func (p *Policy) Plotting() bool {
	return p.plotting
}

// TableResult is the local name whose value becomes a table result.
func (p *Policy) TableResult() string {
	return p.tableResult
}

// ScalarResult is the local name whose value becomes a scalar result.
func (p *Policy) ScalarResult() string {
	return p.scalarResult
}

// Permits reports whether name may be bound into an environment, that is,
// it contains no forbidden token.
func (p *Policy) Permits(name string) bool {
	_, hit := p.scan(name)
	return !hit
}

func (p *Policy) scan(code string) (string, bool) {
	for _, tok := range p.forbidden {
		if strings.Contains(code, tok) {
			return tok, true
		}
	}
	return "", false
}

// Rules returns the policy in serializable form.
func (p *Policy) Rules() Rules {
	plotting := p.plotting
	return Rules{
		ForbiddenTokens: p.ForbiddenTokens(),
		Primitives:      p.Primitives(),
		Plotting:        &plotting,
		TableResult:     p.tableResult,
		ScalarResult:    p.scalarResult,
	}
}
