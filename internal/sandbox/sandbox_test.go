package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dop251/goja"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BV-BRC/sheet-analyst/internal/admission"
	"github.com/BV-BRC/sheet-analyst/internal/chart"
	"github.com/BV-BRC/sheet-analyst/internal/table"
)

func employees(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.New("employees",
		table.NewSeries("Name", []interface{}{"Ann", "Bob", "Cid"}),
		table.NewSeries("Department", []interface{}{"Sales", "HR", "Sales"}),
		table.NewSeries("Salary", []interface{}{50000, 120000, 70000}),
	)
	require.NoError(t, err)
	return tbl
}

func newEnv(t *testing.T, opts Options, tables ...*table.Table) *Environment {
	t.Helper()
	if len(tables) == 0 {
		tables = []*table.Table{employees(t)}
	}
	env, err := NewEnvironment(admission.NewDefault(), tables, opts)
	require.NoError(t, err)
	return env
}

func run(t *testing.T, env *Environment, code string) *Result {
	t.Helper()
	res, err := Run(context.Background(), code, env)
	require.NoError(t, err, code)
	return res
}

func fault(t *testing.T, env *Environment, code string) *Fault {
	t.Helper()
	_, err := Run(context.Background(), code, env)
	require.Error(t, err, code)
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, code, f.Code)
	return f
}

func TestRun_ExpressionScalar(t *testing.T) {
	res := run(t, newEnv(t, Options{}), "employees['Salary'].max()")
	assert.Equal(t, KindScalar, res.Kind)
	assert.Equal(t, ModeExpression, res.Mode)
	assert.Equal(t, "120000", res.Text)
}

func TestRun_ExpressionTable(t *testing.T) {
	res := run(t, newEnv(t, Options{}), "employees.select('Name', 'Salary')")
	assert.Equal(t, KindTable, res.Kind)
	assert.Contains(t, res.Text, "Name")
	assert.Contains(t, res.Text, "Salary")
	for _, n := range []string{"Ann", "Bob", "Cid"} {
		assert.Contains(t, res.Text, n)
	}
	assert.NotContains(t, res.Text, "showing first")
}

func TestRun_TableTruncated(t *testing.T) {
	vals := make([]interface{}, 25)
	for i := range vals {
		vals[i] = float64(i)
	}
	big, err := table.New("readings", table.NewSeries("value", vals))
	require.NoError(t, err)

	res := run(t, newEnv(t, Options{}, big), "result_table = readings")
	assert.Equal(t, KindTable, res.Kind)
	assert.Equal(t, ModeExpression, res.Mode)
	assert.True(t, strings.HasSuffix(res.Text, "(showing first 20 of 25 rows)"))
	assert.NotContains(t, res.Text, " 24 ")
}

func TestRun_StatementLocals(t *testing.T) {
	env := newEnv(t, Options{})

	res := run(t, env, "const top = employees.nlargest(2, 'Salary');\nresult_table = top")
	assert.Equal(t, ModeStatement, res.Mode)
	assert.Equal(t, KindTable, res.Kind)
	assert.Contains(t, res.Text, "Bob")
	assert.NotContains(t, res.Text, "Ann")

	res = run(t, env, "let n = employees.length;\nlet result_value = n * 2")
	assert.Equal(t, KindScalar, res.Kind)
	assert.Equal(t, "6", res.Text)
}

func TestRun_TextAndEmpty(t *testing.T) {
	env := newEnv(t, Options{})

	res := run(t, env, "print('hello');\nprint(1 + 1, true, null)")
	assert.Equal(t, KindText, res.Kind)
	assert.Equal(t, "hello\n2 True None", res.Text)

	res = run(t, env, "let x = 1;")
	assert.Equal(t, KindEmpty, res.Kind)
	assert.Equal(t, NoResultText, res.Text)

	res = run(t, env, "print('only output')")
	assert.Equal(t, KindText, res.Kind, "an expression with no value falls through to output")
}

func TestRun_ChartMarker(t *testing.T) {
	res := run(t, newEnv(t, Options{}), `print("Plot saved to plots/x.png")`)
	assert.Equal(t, KindChart, res.Kind)
	assert.Equal(t, "x.png", res.PlotPath)
}

func TestRun_SavefigMapsArtifact(t *testing.T) {
	store, err := chart.NewStore(filepath.Join(t.TempDir(), "plots"))
	require.NoError(t, err)
	env := newEnv(t, Options{Charts: store, ArtifactPrefix: "req1"})

	code := `plt.figure({figsize: [8, 5]});
sns.histplot(employees['Salary'], {bins: 5});
plt.title('Salary Distribution');
plt.savefig('plots/salary_dist.png');
plt.close();
print("Plot saved to plots/salary_dist.png")`
	res := run(t, env, code)
	assert.Equal(t, KindChart, res.Kind)
	assert.Equal(t, "req1_salary_dist.png", res.PlotPath)
	require.Len(t, res.Charts, 1)

	_, err = os.Stat(filepath.Join(store.Dir(), "req1_salary_dist.png"))
	assert.NoError(t, err)
}

func TestRun_SavefigWithoutMarker(t *testing.T) {
	store, err := chart.NewStore(t.TempDir())
	require.NoError(t, err)
	env := newEnv(t, Options{Charts: store, ArtifactPrefix: "req2"})

	res := run(t, env, "sns.countplot({data: employees, x: 'Department'});\nplt.savefig('dept.png')")
	assert.Equal(t, KindText, res.Kind)
	assert.Equal(t, MissingMarkerText, res.Text)
}

func TestRun_SavefigRejectsBadNames(t *testing.T) {
	store, err := chart.NewStore(t.TempDir())
	require.NoError(t, err)
	env := newEnv(t, Options{Charts: store})

	f := fault(t, env, "plt.hist(employees['Salary']);\nplt.savefig('chart.exe')")
	assert.Equal(t, FaultValue, f.Kind)

	f = fault(t, newEnv(t, Options{}), "plt.hist(employees['Salary']);\nplt.savefig('chart.png')")
	assert.Equal(t, FaultValue, f.Kind, "no chart store configured")
}

func TestRun_Faults(t *testing.T) {
	env := newEnv(t, Options{})
	tests := []struct {
		code    string
		kind    FaultKind
		message string
	}{
		{"staff.head()", FaultName, "staff"},
		{"employees['Bonus']", FaultKey, "column 'Bonus' not found"},
		{"employees.Bonus.max()", FaultKey, "Bonus"},
		{"employees[", FaultSyntax, ""},
		{"employees['Salary'] > 5", FaultType, "operators"},
		{"employees.groupby('Department').agg('Salary', 'mode')", FaultValue, "mode"},
		{"int('abc')", FaultValue, "invalid literal"},
		{"len(5)", FaultType, "has no len()"},
		{"throw 'boom'", FaultRuntime, "boom"},
		{"function f() { return f() }\nf()", FaultRange, ""},
	}
	for _, tt := range tests {
		f := fault(t, env, tt.code)
		assert.Equal(t, tt.kind, f.Kind, tt.code)
		if tt.message != "" {
			assert.Contains(t, f.Message, tt.message, tt.code)
		}
	}
}

func TestRun_Timeout(t *testing.T) {
	env := newEnv(t, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	f := fault(t, env, "while (true) {}")
	assert.Equal(t, FaultTimeout, f.Kind)
	assert.Less(t, time.Since(start), 5*time.Second)

	f = fault(t, env, "employees.filter(r => { while (true) {} })")
	assert.Equal(t, FaultTimeout, f.Kind, "an interrupt inside a callback stops the whole program")
}

func TestRun_Isolation(t *testing.T) {
	other, err := table.New("projects", table.NewSeries("Project", []interface{}{"Alpha"}))
	require.NoError(t, err)

	first := newEnv(t, Options{})
	second := newEnv(t, Options{}, other)

	run(t, first, "var leaked = 42;\nresult_value = employees.length")
	res := run(t, second, "typeof employees + ' ' + typeof leaked + ' ' + typeof result_value")
	assert.Equal(t, "undefined undefined undefined", res.Text)

	res = run(t, first, "typeof leaked")
	assert.Equal(t, "undefined", res.Text, "each run starts from a fresh runtime")
}

func TestRun_GlobalsPruned(t *testing.T) {
	env := newEnv(t, Options{})
	res := run(t, env, "[typeof Object, typeof Function, typeof eval, typeof Reflect, typeof Math, typeof JSON, typeof parseInt].join(',')")
	assert.Equal(t, "undefined,undefined,undefined,undefined,object,object,function", res.Text)

	res = run(t, env, "typeof globalThis")
	assert.Equal(t, "undefined", res.Text)

	res = run(t, env, "typeof (function () {}).constructor")
	assert.Equal(t, "undefined", res.Text)

	res = run(t, env, "typeof (() => 1).constructor")
	assert.Equal(t, "undefined", res.Text)
}

func TestRun_PrimitivesAreReadOnly(t *testing.T) {
	res := run(t, newEnv(t, Options{}), "print = null;\nemployees = null;\nprint(len(employees))")
	assert.Equal(t, "3", res.Text)
}

func TestRun_PolicyPrimitives(t *testing.T) {
	no := false
	p, err := admission.New(admission.Rules{Primitives: []string{"print"}, Plotting: &no})
	require.NoError(t, err)
	env, err := NewEnvironment(p, []*table.Table{employees(t)}, Options{})
	require.NoError(t, err)

	res := run(t, env, "typeof len + ' ' + typeof plt + ' ' + typeof print")
	assert.Equal(t, "undefined undefined function", res.Text)
	assert.NotContains(t, env.Names(), "plt")
}

func TestRun_TableOperations(t *testing.T) {
	env := newEnv(t, Options{})
	tests := []struct {
		code string
		want string
	}{
		{"employees.filter(r => r.Salary > 60000).length", "2"},
		{"employees.filter(employees['Department'].eq('Sales'))['Salary'].sum()", "120000"},
		{"employees['Salary'].mean()", "80000"},
		{"round(employees['Salary'].std(), 2)", "36055.51"},
		{"employees.shape", "[3, 3]"},
		{"employees.columns", "['Name', 'Department', 'Salary']"},
		{"employees['Department'].nunique()", "2"},
		{"employees['Name'].str.startswith('B').sum()", "1"},
		{"max(1, 5, 3)", "5"},
		{"min(employees['Salary'])", "50000"},
		{"str(3.5) + '!'", "3.5!"},
		{"float('2.5') * 2", "5"},
		{"employees['Salary'][1]", "120000"},
		{"'Salary' in employees", "True"},
		{"JSON.stringify(employees.head(1))", `[{"Name":"Ann","Department":"Sales","Salary":50000}]`},
	}
	for _, tt := range tests {
		res := run(t, env, tt.code)
		assert.Equal(t, tt.want, res.Text, tt.code)
	}
}

func TestRun_GroupBy(t *testing.T) {
	res := run(t, newEnv(t, Options{}), "employees.groupby('Department')['Salary'].mean()")
	assert.Equal(t, KindTable, res.Kind)
	assert.Contains(t, res.Text, "HR")
	assert.Contains(t, res.Text, "120000")
	assert.Contains(t, res.Text, "60000")
	assert.Less(t, strings.Index(res.Text, "HR"), strings.Index(res.Text, "Sales"))
}

func TestRun_ColumnAssignmentIsLocal(t *testing.T) {
	base := employees(t)
	env := newEnv(t, Options{}, base)

	res := run(t, env, "employees['Bonus'] = employees['Salary'].mul(0.1);\nresult_value = employees['Bonus'].max()")
	assert.Equal(t, "12000", res.Text)
	assert.False(t, base.HasColumn("Bonus"))

	f := fault(t, env, "employees['Bonus']")
	assert.Equal(t, FaultKey, f.Kind)
}

func TestRun_OutputCapped(t *testing.T) {
	env := newEnv(t, Options{MaxOutputBytes: 64})
	res := run(t, env, "for (let i = 0; i < 100; i++) { print('line ' + i) }")
	assert.Equal(t, KindText, res.Kind)
	assert.True(t, strings.HasSuffix(res.Text, truncatedNote))
	assert.LessOrEqual(t, len(res.Text), 64+len(truncatedNote)+1)
}

func TestRunner_ConcurrentCapturesStayApart(t *testing.T) {
	r := NewRunner(4, nil)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			env, err := NewEnvironment(admission.NewDefault(), []*table.Table{employees(t)}, Options{})
			if err != nil {
				errs <- err
				return
			}
			code := fmt.Sprintf("for (let k = 0; k < 50; k++) { print('run-%d') }", i)
			res, err := r.Run(context.Background(), code, env)
			if err != nil {
				errs <- err
				return
			}
			for _, line := range strings.Split(res.Text, "\n") {
				if line != fmt.Sprintf("run-%d", i) {
					errs <- fmt.Errorf("run %d saw foreign output %q", i, line)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestRunner_SlotWaitHonorsContext(t *testing.T) {
	r := NewRunner(1, nil)
	env := newEnv(t, Options{Timeout: time.Second})

	release := make(chan struct{})
	go func() {
		_, _ = r.Run(context.Background(), "let t = 0; while (t < 1e12) { t++ }", env)
		close(release)
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Run(ctx, "1", env)
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, FaultTimeout, f.Kind)
	<-release
}

func TestNewEnvironment_RejectsBadTables(t *testing.T) {
	p := admission.NewDefault()
	mk := func(name string) *table.Table {
		return &table.Table{Name: name, Columns: []*table.Series{table.NewSeries("a", []interface{}{1})}}
	}
	for _, name := range []string{"sys_data", "__hidden", "plt", "print", "Math", "bad name", "1st", "result_table"} {
		_, err := NewEnvironment(p, []*table.Table{mk(name)}, Options{})
		assert.Error(t, err, name)
	}
	_, err := NewEnvironment(p, []*table.Table{mk("a"), mk("a")}, Options{})
	assert.Error(t, err, "duplicate table names")

	env, err := NewEnvironment(p, []*table.Table{mk("sales")}, Options{})
	require.NoError(t, err)
	assert.Contains(t, env.Names(), "sales")
	assert.Equal(t, 20, env.Options().RowLimit)
}

func TestHardening_RequiredScriptsApply(t *testing.T) {
	vm := goja.New()
	for _, h := range hardening {
		if !h.required {
			continue
		}
		_, err := vm.RunString(h.src)
		require.NoError(t, err, h.src)
	}
	v, err := vm.RunString("typeof (function () {})['constr' + 'uctor'] + ' ' + typeof ({}).__proto__")
	require.NoError(t, err)
	assert.Equal(t, "undefined undefined", v.String())
}

func TestRun_CircularValues(t *testing.T) {
	env := newEnv(t, Options{Timeout: 2 * time.Second})
	for _, code := range []string{
		"var a = {}; a.self = a; result_value = a",
		"var a = []; a.push(a); print(a)",
		"var a = {}; a.self = a; len(a)",
		"(function () { var a = {x: {}}; a.x.back = a; return a })()",
	} {
		f := fault(t, env, code)
		assert.Equal(t, FaultValue, f.Kind, code)
		assert.Contains(t, f.Message, "circular reference", code)
	}

	res := run(t, env, "var x = [1]; result_value = len([x, x, {y: x}])")
	assert.Equal(t, "3", res.Text, "shared references are not cycles")
}

func TestRun_DeepNestingRefused(t *testing.T) {
	f := fault(t, newEnv(t, Options{}), "var a = []; for (let i = 0; i < 200; i++) { a = [a] }; print(a)")
	assert.Equal(t, FaultValue, f.Kind)
	assert.Contains(t, f.Message, "nested")
}

func TestRun_HugeArrayStaysWithinBudget(t *testing.T) {
	env := newEnv(t, Options{Timeout: 200 * time.Millisecond})

	start := time.Now()
	f := fault(t, env, "var a = []; a.length = 30000000; len(a)")
	assert.Equal(t, FaultRange, f.Kind)
	assert.Less(t, time.Since(start), time.Second)

	f = fault(t, env, "var a = []; a.length = 30000000; result_value = a")
	assert.Equal(t, FaultRange, f.Kind)
}

func TestCapture_TruncatesOnRuneBoundary(t *testing.T) {
	c := newCapture(6)
	c.writeLine("abcdéé")
	out := c.String()
	assert.True(t, utf8.ValidString(out), "%q", out)
	assert.True(t, strings.HasPrefix(out, "abcdé"))
	assert.True(t, strings.HasSuffix(out, truncatedNote+"\n"))
}
