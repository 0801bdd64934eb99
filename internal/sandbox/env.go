package sandbox

import (
	"fmt"
	"regexp"
	"time"

	"github.com/BV-BRC/sheet-analyst/internal/admission"
	"github.com/BV-BRC/sheet-analyst/internal/chart"
	"github.com/BV-BRC/sheet-analyst/internal/table"
)

// Options tune one execution.
type Options struct {
	Timeout        time.Duration
	MaxCallStack   int
	MaxOutputBytes int
	RowLimit       int
	// Charts receives figures saved with plt.savefig. Without a store,
	// savefig fails with a value error.
	Charts *chart.Store
	// ArtifactPrefix is prepended to saved chart names, normally a request
	// id prefix, so concurrent requests never collide.
	ArtifactPrefix string
}

// DefaultOptions returns the limits used when none are configured.
func DefaultOptions() Options {
	return Options{
		Timeout:        10 * time.Second,
		MaxCallStack:   500,
		MaxOutputBytes: 1 << 20,
		RowLimit:       20,
	}
}

// Environment is everything executed code may reference: the policy's
// primitives, the interpreter built-ins kept by the sandbox, one binding
// per table and the optional plotting namespaces. It is built per request.
type Environment struct {
	policy *admission.Policy
	tables []*table.Table
	opts   Options
}

// keptGlobals are the interpreter built-ins that survive hardening.
var keptGlobals = []string{
	"Math", "JSON", "NaN", "Infinity", "undefined",
	"isNaN", "isFinite", "parseInt", "parseFloat",
}

const (
	nsPlt = "plt"
	nsSns = "sns"
)

var bindingName = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// NewEnvironment validates the table bindings against the policy. A table
// whose name contains a forbidden token, is not an identifier, or shadows
// another binding is an error.
func NewEnvironment(p *admission.Policy, tables []*table.Table, opts Options) (*Environment, error) {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxCallStack <= 0 {
		opts.MaxCallStack = def.MaxCallStack
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = def.MaxOutputBytes
	}
	if opts.RowLimit <= 0 {
		opts.RowLimit = def.RowLimit
	}

	taken := map[string]bool{nsPlt: true, nsSns: true, p.TableResult(): true, p.ScalarResult(): true}
	for _, name := range keptGlobals {
		taken[name] = true
	}
	for _, name := range p.Primitives() {
		taken[name] = true
	}

	for _, t := range tables {
		switch {
		case !bindingName.MatchString(t.Name):
			return nil, fmt.Errorf("table name %q is not a valid identifier", t.Name)
		case !p.Permits(t.Name):
			return nil, fmt.Errorf("table name %q contains a forbidden token", t.Name)
		case taken[t.Name]:
			return nil, fmt.Errorf("table name %q collides with another binding", t.Name)
		}
		taken[t.Name] = true
	}

	return &Environment{policy: p, tables: tables, opts: opts}, nil
}

// Names lists every name bound into the runtime.
func (e *Environment) Names() []string {
	names := append([]string(nil), keptGlobals...)
	names = append(names, e.policy.Primitives()...)
	if e.policy.Plotting() {
		names = append(names, nsPlt, nsSns)
	}
	for _, t := range e.tables {
		names = append(names, t.Name)
	}
	return names
}

// Tables returns the bound tables.
func (e *Environment) Tables() []*table.Table {
	return e.tables
}

// Options returns the effective execution options.
func (e *Environment) Options() Options {
	return e.opts
}

// Policy returns the policy the environment was built from.
func (e *Environment) Policy() *admission.Policy {
	return e.policy
}
