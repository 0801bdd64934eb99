// Package analysis runs the analysis pipeline: tables and a question go in,
// model code is normalized, admitted and executed, and a response comes out.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BV-BRC/sheet-analyst/internal/admission"
	"github.com/BV-BRC/sheet-analyst/internal/audit"
	"github.com/BV-BRC/sheet-analyst/internal/events"
	"github.com/BV-BRC/sheet-analyst/internal/generator"
	"github.com/BV-BRC/sheet-analyst/internal/intake"
	"github.com/BV-BRC/sheet-analyst/internal/metrics"
	"github.com/BV-BRC/sheet-analyst/internal/sandbox"
	"github.com/BV-BRC/sheet-analyst/internal/table"
)

// Outcome labels a finished run for metrics, events and the audit trail.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeLoad      Outcome = "load_error"
	OutcomeUpstream  Outcome = "upstream_error"
	OutcomeIntake    Outcome = "intake_error"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFault     Outcome = "fault"
	OutcomeUnhandled Outcome = "internal_error"
)

// schemaSampleRows is how many rows of each table the prompt shows.
const schemaSampleRows = 3

// Response is the result of a successful run.
type Response struct {
	RequestID    string             `json:"request_id"`
	Result       string             `json:"result"`
	ExecutedCode string             `json:"executed_code"`
	IsPlot       bool               `json:"is_plot"`
	PlotPath     string             `json:"plot_path"`
	Kind         sandbox.ResultKind `json:"kind"`
	Mode         sandbox.Mode       `json:"mode"`
}

// MarshalJSON writes plot_path as null for non-chart results.
func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	out := struct {
		plain
		PlotPath *string `json:"plot_path"`
	}{plain: plain(r)}
	if r.PlotPath != "" {
		p := r.PlotPath
		out.PlotPath = &p
	}
	return json.Marshal(out)
}

// Request is one analysis request.
type Request struct {
	// ID is assigned when empty.
	ID        string
	Question  string
	Tables    []*table.Table
	Principal string
}

// Error wraps a pipeline failure with the request id and, once known, the
// code that was executed. The underlying error is one of *table.LoadError,
// *generator.UpstreamError, *intake.Error, *admission.Rejection or
// *sandbox.Fault.
type Error struct {
	RequestID string
	Code      string
	Err       error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Publisher receives an event for every finished run.
type Publisher interface {
	PublishAnalysis(ctx context.Context, event events.Event) error
}

// Recorder stores an audit record for every finished run.
type Recorder interface {
	Save(ctx context.Context, rec *audit.Record) error
}

// Engine owns the process-wide collaborators. It is safe for concurrent use.
type Engine struct {
	policy    *admission.Policy
	generator generator.Generator
	runner    *sandbox.Runner
	opts      sandbox.Options
	metrics   *metrics.Collector
	publisher Publisher
	recorder  Recorder
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records pipeline metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithPublisher publishes an event per run.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithRecorder writes an audit record per run.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// New creates an engine. gen may be nil when only Execute is used.
func New(policy *admission.Policy, gen generator.Generator, runner *sandbox.Runner, opts sandbox.Options, logger *zap.Logger, options ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = sandbox.NewRunner(1, logger)
	}
	e := &Engine{
		policy:    policy,
		generator: gen,
		runner:    runner,
		opts:      opts,
		logger:    logger.With(zap.String("component", "analysis")),
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Policy returns the admission policy.
func (e *Engine) Policy() *admission.Policy {
	return e.policy
}

// run tracks one request through the pipeline.
type run struct {
	req        Request
	logger     *zap.Logger
	outcome    Outcome
	reason     string
	faultKind  string
	resultKind string
	mode       string
	code       string
	dropped    int
	plotPath   string
	message    string
	tables     []string
	generateMS int64
	executeMS  int64
}

// Analyze asks the model for code answering the question and runs it.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Response, error) {
	r := e.start(&req)
	defer e.finish(ctx, r)

	if e.generator == nil {
		return nil, e.fail(r, OutcomeUpstream, &generator.UpstreamError{Provider: "none", Message: "no model is configured"})
	}

	tables, err := e.usableTables(r, req.Tables)
	if err != nil {
		return nil, e.fail(r, OutcomeLoad, err)
	}

	start := time.Now()
	raw, err := e.generator.Generate(ctx, table.Schema(tables, schemaSampleRows), req.Question)
	elapsed := time.Since(start)
	r.generateMS = elapsed.Milliseconds()
	if err != nil {
		e.metrics.RecordGeneration("error", elapsed)
		var ue *generator.UpstreamError
		if !errors.As(err, &ue) {
			err = &generator.UpstreamError{Provider: "model", Message: "generation failed", Err: err}
		}
		return nil, e.fail(r, OutcomeUpstream, err)
	}
	e.metrics.RecordGeneration("ok", elapsed)
	r.logger.Debug("model output", zap.String("raw", raw))

	return e.execute(ctx, r, tables, raw)
}

// Execute runs supplied code against the tables without calling the model.
// The code still passes through intake and admission.
func (e *Engine) Execute(ctx context.Context, req Request, code string) (*Response, error) {
	r := e.start(&req)
	defer e.finish(ctx, r)

	tables, err := e.usableTables(r, req.Tables)
	if err != nil {
		return nil, e.fail(r, OutcomeLoad, err)
	}
	return e.execute(ctx, r, tables, code)
}

func (e *Engine) start(req *Request) *run {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return &run{
		req:    *req,
		logger: e.logger.With(zap.String("request_id", req.ID)),
	}
}

// usableTables drops tables whose names the policy forbids. At least one
// table must remain.
func (e *Engine) usableTables(r *run, tables []*table.Table) ([]*table.Table, error) {
	kept := make([]*table.Table, 0, len(tables))
	for _, t := range tables {
		if !e.policy.Permits(t.Name) {
			r.logger.Warn("skipping table with forbidden name", zap.String("table", t.Name), zap.String("source", t.Source))
			continue
		}
		kept = append(kept, t)
		r.tables = append(r.tables, t.Name)
	}
	if len(kept) == 0 {
		return nil, &table.LoadError{Msg: "no usable tables were loaded"}
	}
	return kept, nil
}

func (e *Engine) execute(ctx context.Context, r *run, tables []*table.Table, raw string) (*Response, error) {
	norm, err := intake.Normalize(raw)
	for _, d := range norm.Dropped {
		e.metrics.RecordDroppedLine(d.Reason)
		r.logger.Info("dropped line", zap.String("reason", d.Reason), zap.String("line", d.Line))
	}
	r.dropped = len(norm.Dropped)
	if err != nil {
		return nil, e.fail(r, OutcomeIntake, err)
	}
	r.code = norm.Code

	decision := admission.Admit(norm.Code, e.policy)
	if !decision.Admitted {
		r.reason = string(decision.Reason)
		e.metrics.RecordRejection(r.reason)
		r.logger.Warn("code rejected",
			zap.String("reason", r.reason),
			zap.String("token", decision.Token()),
			zap.String("code", norm.Code),
		)
		return nil, e.fail(r, OutcomeRejected, decision.Err())
	}

	opts := e.opts
	opts.ArtifactPrefix = artifactPrefix(r.req.ID)
	env, err := sandbox.NewEnvironment(e.policy, tables, opts)
	if err != nil {
		return nil, e.fail(r, OutcomeLoad, &table.LoadError{Msg: "tables cannot be bound", Err: err})
	}

	start := time.Now()
	res, err := e.runner.Run(ctx, norm.Code, env)
	elapsed := time.Since(start)
	r.executeMS = elapsed.Milliseconds()
	if err != nil {
		var f *sandbox.Fault
		if errors.As(err, &f) {
			r.faultKind = string(f.Kind)
			e.metrics.RecordExecution("", r.faultKind, elapsed)
			return nil, e.fail(r, OutcomeFault, err)
		}
		return nil, e.fail(r, OutcomeUnhandled, err)
	}

	r.mode = string(res.Mode)
	r.resultKind = string(res.Kind)
	r.plotPath = res.PlotPath
	e.metrics.RecordExecution(r.mode, "", elapsed)
	e.metrics.RecordResult(r.resultKind)
	r.outcome = OutcomeOK

	return &Response{
		RequestID:    r.req.ID,
		Result:       res.Text,
		ExecutedCode: norm.Code,
		IsPlot:       res.Kind == sandbox.KindChart,
		PlotPath:     res.PlotPath,
		Kind:         res.Kind,
		Mode:         res.Mode,
	}, nil
}

func (e *Engine) fail(r *run, outcome Outcome, err error) error {
	r.outcome = outcome
	r.message = err.Error()
	return &Error{RequestID: r.req.ID, Code: r.code, Err: err}
}

// finish reports the run. Reporting failures are logged, never returned.
func (e *Engine) finish(ctx context.Context, r *run) {
	e.metrics.RecordOutcome(string(r.outcome))

	fields := []zap.Field{
		zap.String("outcome", string(r.outcome)),
		zap.Strings("tables", r.tables),
		zap.Int64("generate_ms", r.generateMS),
		zap.Int64("execute_ms", r.executeMS),
	}
	if r.outcome == OutcomeOK {
		r.logger.Info("analysis finished", append(fields, zap.String("kind", r.resultKind), zap.String("mode", r.mode))...)
	} else {
		r.logger.Info("analysis failed", append(fields, zap.String("error", r.message))...)
	}

	if e.publisher == nil && e.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	hash := codeHash(r.code)
	if e.publisher != nil {
		ev := events.Event{
			Type:       eventType(r.outcome),
			RequestID:  r.req.ID,
			Outcome:    string(r.outcome),
			Reason:     r.reason,
			FaultKind:  r.faultKind,
			ResultKind: r.resultKind,
			Mode:       r.mode,
			Tables:     r.tables,
			CodeHash:   hash,
			GenerateMS: r.generateMS,
			ExecuteMS:  r.executeMS,
		}
		if err := e.publisher.PublishAnalysis(ctx, ev); err != nil {
			r.logger.Warn("failed to publish event", zap.Error(err))
		}
	}
	if e.recorder != nil {
		rec := &audit.Record{
			RequestID:    r.req.ID,
			Principal:    r.req.Principal,
			Query:        r.req.Question,
			Tables:       r.tables,
			Outcome:      string(r.outcome),
			Reason:       r.reason,
			FaultKind:    r.faultKind,
			ResultKind:   r.resultKind,
			Mode:         r.mode,
			Code:         r.code,
			CodeHash:     hash,
			DroppedLines: r.dropped,
			PlotPath:     r.plotPath,
			Message:      r.message,
			GenerateMS:   r.generateMS,
			ExecuteMS:    r.executeMS,
		}
		if err := e.recorder.Save(ctx, rec); err != nil {
			r.logger.Warn("failed to save audit record", zap.Error(err))
		}
	}
}

func eventType(o Outcome) string {
	switch o {
	case OutcomeOK:
		return events.TypeCompleted
	case OutcomeRejected:
		return events.TypeRejected
	default:
		return events.TypeFailed
	}
}

func codeHash(code string) string {
	if code == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:8])
}

// artifactPrefix derives the chart name prefix from a request id, keeping
// only characters that are safe in a file name.
func artifactPrefix(id string) string {
	var b strings.Builder
	for _, c := range id {
		if b.Len() == 8 {
			break
		}
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "run"
	}
	return b.String()
}
