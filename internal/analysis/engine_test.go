package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BV-BRC/sheet-analyst/internal/admission"
	"github.com/BV-BRC/sheet-analyst/internal/audit"
	"github.com/BV-BRC/sheet-analyst/internal/chart"
	"github.com/BV-BRC/sheet-analyst/internal/events"
	"github.com/BV-BRC/sheet-analyst/internal/generator"
	"github.com/BV-BRC/sheet-analyst/internal/intake"
	"github.com/BV-BRC/sheet-analyst/internal/metrics"
	"github.com/BV-BRC/sheet-analyst/internal/sandbox"
	"github.com/BV-BRC/sheet-analyst/internal/table"
)

type memoryPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *memoryPublisher) PublishAnalysis(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []*audit.Record
}

func (r *memoryRecorder) Save(ctx context.Context, rec *audit.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func employees(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New("employees",
		table.NewSeries("Name", []interface{}{"Ann", "Bob", "Cid"}),
		table.NewSeries("Salary", []interface{}{50000, 120000, 70000}),
	)
	require.NoError(t, err)
	tbl.Source = "Employees"
	return tbl
}

type fixture struct {
	engine    *Engine
	publisher *memoryPublisher
	recorder  *memoryRecorder
	store     *chart.Store
}

func newFixture(t *testing.T, gen generator.Generator) *fixture {
	t.Helper()
	store, err := chart.NewStore(filepath.Join(t.TempDir(), "plots"))
	require.NoError(t, err)
	f := &fixture{publisher: &memoryPublisher{}, recorder: &memoryRecorder{}, store: store}
	opts := sandbox.DefaultOptions()
	opts.Charts = store
	f.engine = New(admission.NewDefault(), gen, sandbox.NewRunner(4, nil), opts, nil,
		WithMetrics(metrics.New("test", nil)),
		WithPublisher(f.publisher),
		WithRecorder(f.recorder),
	)
	return f
}

func TestAnalyze_Expression(t *testing.T) {
	var gotSchema, gotQuestion string
	gen := generator.Func(func(ctx context.Context, schema, question string) (string, error) {
		gotSchema, gotQuestion = schema, question
		return "```javascript\nemployees['Salary'].max()\n```", nil
	})
	f := newFixture(t, gen)

	resp, err := f.engine.Analyze(context.Background(), Request{Question: "highest salary?", Tables: []*table.Table{employees(t)}, Principal: "analyst"})
	require.NoError(t, err)
	assert.Equal(t, "120000", resp.Result)
	assert.Equal(t, "employees['Salary'].max()", resp.ExecutedCode)
	assert.False(t, resp.IsPlot)
	assert.Equal(t, sandbox.KindScalar, resp.Kind)
	assert.NotEmpty(t, resp.RequestID)

	assert.Contains(t, gotSchema, "employees")
	assert.Contains(t, gotSchema, "Salary")
	assert.Equal(t, "highest salary?", gotQuestion)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Contains(t, body, "plot_path")
	assert.Nil(t, body["plot_path"])
	assert.Equal(t, "120000", body["result"])

	require.Len(t, f.recorder.records, 1)
	rec := f.recorder.records[0]
	assert.Equal(t, "ok", rec.Outcome)
	assert.Equal(t, "analyst", rec.Principal)
	assert.Equal(t, 2, rec.DroppedLines)
	assert.Equal(t, "employees['Salary'].max()", rec.Code)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeCompleted, f.publisher.events[0].Type)
	assert.Equal(t, resp.RequestID, f.publisher.events[0].RequestID)
}

func TestAnalyze_Chart(t *testing.T) {
	code := `plt.figure({figsize: [10, 6]});
sns.histplot(employees['Salary']);
plt.savefig('plots/salary_dist.png');
plt.close();
print("Plot saved to plots/salary_dist.png")`
	f := newFixture(t, generator.Static{Code: code})

	resp, err := f.engine.Analyze(context.Background(), Request{ID: "abc12345-0000", Tables: []*table.Table{employees(t)}})
	require.NoError(t, err)
	assert.True(t, resp.IsPlot)
	assert.Equal(t, "abc12345_salary_dist.png", resp.PlotPath)

	path, err := f.store.Path(resp.PlotPath)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"plot_path":"abc12345_salary_dist.png"`)
}

func TestAnalyze_Rejected(t *testing.T) {
	f := newFixture(t, generator.Static{Code: "import x from 'y'\nemployees.constructor"})

	_, err := f.engine.Analyze(context.Background(), Request{Tables: []*table.Table{employees(t)}})
	var rej *admission.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, admission.ReasonUnsafeToken, rej.Reason)
	assert.NotContains(t, err.Error(), "constructor")

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "employees.constructor", ae.Code)

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, events.TypeRejected, ev.Type)
	assert.Equal(t, "unsafe_token", ev.Reason)
	assert.NotEmpty(t, ev.CodeHash)
}

func TestAnalyze_IntakeError(t *testing.T) {
	f := newFixture(t, generator.Static{Code: "```python\nimport pandas as pd\n```"})

	_, err := f.engine.Analyze(context.Background(), Request{Tables: []*table.Table{employees(t)}})
	var ie *intake.Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "intake_error", f.recorder.records[0].Outcome)
}

func TestAnalyze_Fault(t *testing.T) {
	f := newFixture(t, generator.Static{Code: "staff.head()"})

	_, err := f.engine.Analyze(context.Background(), Request{Tables: []*table.Table{employees(t)}})
	var fault *sandbox.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, sandbox.FaultName, fault.Kind)
	assert.Contains(t, fault.Message, "staff")
	assert.Equal(t, "staff.head()", fault.Code)
	assert.Equal(t, "name_error", f.publisher.events[0].FaultKind)
}

func TestAnalyze_Upstream(t *testing.T) {
	f := newFixture(t, generator.Func(func(ctx context.Context, schema, question string) (string, error) {
		return "", errors.New("connection reset")
	}))

	_, err := f.engine.Analyze(context.Background(), Request{Tables: []*table.Table{employees(t)}})
	var ue *generator.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, err.Error(), "connection reset")

	noModel := New(admission.NewDefault(), nil, nil, sandbox.DefaultOptions(), nil)
	_, err = noModel.Analyze(context.Background(), Request{Tables: []*table.Table{employees(t)}})
	assert.ErrorAs(t, err, &ue)
}

func TestEngine_ForbiddenTableNames(t *testing.T) {
	f := newFixture(t, nil)
	bad, err := table.New("sys_log", table.NewSeries("a", []interface{}{1}))
	require.NoError(t, err)

	resp, err := f.engine.Execute(context.Background(), Request{Tables: []*table.Table{bad, employees(t)}}, "employees.length")
	require.NoError(t, err)
	assert.Equal(t, "3", resp.Result)
	assert.Equal(t, []string{"employees"}, f.recorder.records[0].Tables)

	_, err = f.engine.Execute(context.Background(), Request{Tables: []*table.Table{bad}}, "1")
	assert.True(t, table.IsLoadError(err))
}

func TestEngine_ExecuteSequentialIsolation(t *testing.T) {
	f := newFixture(t, nil)
	other, err := table.New("projects", table.NewSeries("Project", []interface{}{"Alpha", "Beta"}))
	require.NoError(t, err)

	_, err = f.engine.Execute(context.Background(), Request{Tables: []*table.Table{employees(t)}}, "var seen = employees.length;\nresult_value = seen")
	require.NoError(t, err)

	resp, err := f.engine.Execute(context.Background(), Request{Tables: []*table.Table{other}}, "[typeof employees, typeof seen, projects.length].join(' ')")
	require.NoError(t, err)
	assert.Equal(t, "undefined undefined 2", resp.Result)
}

func TestEngine_ConcurrentRequests(t *testing.T) {
	f := newFixture(t, nil)
	var wg sync.WaitGroup
	errs := make(chan error, 12)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("sheet%d", i)
			tbl, err := table.New(name, table.NewSeries("v", []interface{}{float64(i)}))
			if err != nil {
				errs <- err
				return
			}
			resp, err := f.engine.Execute(context.Background(), Request{Tables: []*table.Table{tbl}}, fmt.Sprintf("print(%s['v'].sum())", name))
			if err != nil {
				errs <- err
				return
			}
			if resp.Result != fmt.Sprint(i) {
				errs <- fmt.Errorf("request %d got %q", i, resp.Result)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Len(t, f.recorder.records, 12)
}

func TestArtifactPrefix(t *testing.T) {
	assert.Equal(t, "abc12345", artifactPrefix("abc12345-6789"))
	assert.Equal(t, "etcpass", artifactPrefix("../etc/pass"))
	assert.Equal(t, "run", artifactPrefix("///"))
}
