// Package sandbox executes admitted analysis code in a fresh, hardened
// interpreter and classifies what it produced.
//
// Executed code sees only the names in its Environment: allowlisted
// primitives, a few pure interpreter built-ins, one binding per table and
// optionally the plt and sns plotting namespaces. Every other global is
// deleted before the code runs, the Function constructor is unreachable,
// and wrapped host objects have no prototype chain to climb.
package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Mode is decided by the shape of the program: a single expression is
// evaluated for its value, anything else runs as statements.
type Mode string

const (
	ModeExpression Mode = "expression"
	ModeStatement  Mode = "statement"
)

// Outcome is the raw product of a successful execution.
type Outcome struct {
	Stdout   string
	Value    interface{}
	HasValue bool
	Locals   map[string]interface{}
	Mode     Mode
	Charts   []Chart
}

// Run parses, executes and classifies code against env. Any failure of the
// code itself is returned as a *Fault.
func Run(ctx context.Context, code string, env *Environment) (*Result, error) {
	out, err := Execute(ctx, code, env)
	if err != nil {
		return nil, err
	}
	return classify(out, env.policy, env.opts.RowLimit), nil
}

// Execute runs code and returns the raw outcome without classifying it.
func Execute(ctx context.Context, code string, env *Environment) (*Outcome, error) {
	prg, err := goja.Parse("analysis", code)
	if err != nil {
		return nil, syntaxFault(err, code)
	}
	mode := ModeStatement
	if len(prg.Body) == 1 {
		if _, ok := prg.Body[0].(*ast.ExpressionStatement); ok {
			mode = ModeExpression
		}
	}
	compiled, err := goja.CompileAST(prg, false)
	if err != nil {
		return nil, syntaxFault(err, code)
	}

	s, err := newSession(env)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare runtime: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, env.opts.Timeout)
	defer cancel()
	s.ctx = ctx

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			s.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	o := &Outcome{Mode: mode}
	runErr := s.runGuarded(compiled, o)
	close(done)
	wg.Wait()

	if runErr != nil {
		return nil, toFault(ctx, s.vm, runErr, code)
	}
	o.Stdout = s.out.String()
	o.Charts = s.charts
	return o, nil
}

// runGuarded runs the program and exports its value and result locals
// while the timeout watcher is still armed.
func (s *session) runGuarded(p *goja.Program, o *Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host panic: %v", r)
		}
	}()

	value, err := s.vm.RunProgram(p)
	if err != nil {
		return err
	}
	if o.Mode == ModeExpression && !absent(value) {
		if o.Value, err = s.exportResult(value); err != nil {
			return err
		}
		o.HasValue = true
	}

	o.Locals = make(map[string]interface{})
	for _, name := range []string{s.env.policy.TableResult(), s.env.policy.ScalarResult()} {
		v, err := s.vm.RunString(fmt.Sprintf("typeof %[1]s === 'undefined' ? undefined : %[1]s", name))
		if err != nil {
			return err
		}
		if absent(v) {
			continue
		}
		if o.Locals[name], err = s.exportResult(v); err != nil {
			return err
		}
	}
	return nil
}

// exportResult exports a value from outside any host call, turning a
// conversion error into an ordinary script exception.
func (s *session) exportResult(v goja.Value) (out interface{}, err error) {
	if ex := s.vm.Try(func() { out = s.export(v) }); ex != nil {
		return nil, ex
	}
	return out, nil
}

// Runner bounds the number of executions in flight.
type Runner struct {
	sem    *semaphore.Weighted
	logger *zap.Logger
}

// NewRunner creates a runner allowing maxConcurrent simultaneous executions.
func NewRunner(maxConcurrent int64, logger *zap.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		sem:    semaphore.NewWeighted(maxConcurrent),
		logger: logger.With(zap.String("component", "sandbox")),
	}
}

// Run waits for an execution slot, then runs code like the package-level Run.
func (r *Runner) Run(ctx context.Context, code string, env *Environment) (*Result, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, &Fault{Kind: FaultTimeout, Message: "no execution slot became available", Code: code}
	}
	defer r.sem.Release(1)

	start := time.Now()
	res, err := Run(ctx, code, env)
	elapsed := time.Since(start)
	if err != nil {
		r.logger.Debug("execution failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, err
	}
	res.Duration = elapsed
	r.logger.Debug("execution finished",
		zap.String("mode", string(res.Mode)),
		zap.String("kind", string(res.Kind)),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}
