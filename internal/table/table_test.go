package table

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staff(t *testing.T) *Table {
	t.Helper()
	tbl, err := New("employees",
		NewSeries("Name", []interface{}{"Ann", "Bob", "Cid", "Dee", "Eve"}),
		NewSeries("Department", []interface{}{"Sales", "HR", "Sales", "IT", nil}),
		NewSeries("Salary", []interface{}{50000, 120000, 70000, nil, 65000.5}),
	)
	require.NoError(t, err)
	return tbl
}

func TestNew_Validates(t *testing.T) {
	_, err := New("t", NewSeries("a", []interface{}{1, 2}), NewSeries("a", []interface{}{3, 4}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column")

	_, err = New("t", NewSeries("a", []interface{}{1, 2}), NewSeries("b", []interface{}{3}))
	require.Error(t, err)
	var ve *ValueError
	assert.ErrorAs(t, err, &ve)
}

func TestTable_ShapeAndCol(t *testing.T) {
	tbl := staff(t)
	rows, cols := tbl.Shape()
	assert.Equal(t, 5, rows)
	assert.Equal(t, 3, cols)
	assert.True(t, tbl.HasColumn("Salary"))

	_, err := tbl.Col("Bonus")
	var ke *KeyError
	require.ErrorAs(t, err, &ke)
	assert.Equal(t, "column 'Bonus' not found", err.Error())
}

func TestSeries_Aggregates(t *testing.T) {
	sal, err := staff(t).Col("Salary")
	require.NoError(t, err)

	assert.Equal(t, 120000.0, sal.Max())
	assert.Equal(t, 50000.0, sal.Min())
	assert.Equal(t, 4, sal.Count())
	assert.Equal(t, 1, sal.NullCount())
	assert.InDelta(t, 305000.5, sal.Sum(), 1e-9)
	assert.InDelta(t, 76250.125, sal.Mean().(float64), 1e-9)
	assert.InDelta(t, 67500.25, sal.Median().(float64), 1e-9)
	assert.NotNil(t, sal.Std())

	empty := NewSeries("x", []interface{}{nil, nil})
	assert.Nil(t, empty.Max())
	assert.Nil(t, empty.Mean())
	assert.Nil(t, empty.Std())
	assert.Equal(t, KindEmpty, empty.Kind())
}

func TestSeries_ValueCounts(t *testing.T) {
	dept, _ := staff(t).Col("Department")
	vc := dept.ValueCounts()
	assert.Equal(t, []string{"Department", "count"}, vc.Names())
	assert.Equal(t, []interface{}{"Sales", "HR", "IT"}, vc.Columns[0].Values)
	assert.Equal(t, []interface{}{2.0, 1.0, 1.0}, vc.Columns[1].Values)
	assert.Equal(t, 3, dept.NUnique())
}

func TestTable_WhereAndMask(t *testing.T) {
	tbl := staff(t)
	high, err := tbl.Where("Salary", ">", 60000)
	require.NoError(t, err)
	names, _ := high.Col("Name")
	assert.Equal(t, []interface{}{"Bob", "Cid", "Eve"}, names.Values)

	_, err = tbl.Where("Salary", "~", 1)
	assert.Error(t, err)

	dept, _ := tbl.Col("Department")
	sales, _ := dept.Compare("eq", "Sales")
	sal, _ := tbl.Col("Salary")
	rich, _ := sal.Compare("gt", 60000)
	both, err := sales.And(rich)
	require.NoError(t, err)
	out, err := tbl.Mask(both)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())

	_, err = tbl.Mask(sal)
	assert.Error(t, err, "a numeric series is not a mask")
}

func TestTable_SortAndNLargest(t *testing.T) {
	tbl := staff(t)
	top, err := tbl.NLargest(2, "Salary")
	require.NoError(t, err)
	names, _ := top.Col("Name")
	assert.Equal(t, []interface{}{"Bob", "Cid"}, names.Values)

	asc, err := tbl.SortBy("Salary", true)
	require.NoError(t, err)
	sal, _ := asc.Col("Salary")
	assert.Nil(t, sal.Values[4], "nulls sort last")
	assert.Equal(t, 50000.0, sal.Values[0])
}

func TestTable_GroupBy(t *testing.T) {
	g, err := staff(t).GroupBy("Department")
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len(), "null keys are dropped")

	mean, err := g.Agg("Salary", "mean")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"HR", "IT", "Sales"}, mean.Columns[0].Values)
	assert.Equal(t, []interface{}{120000.0, nil, 60000.0}, mean.Columns[1].Values)

	size := g.Size()
	assert.Equal(t, []interface{}{1.0, 1.0, 2.0}, size.Columns[1].Values)

	_, err = g.Agg("Salary", "mode")
	assert.Error(t, err)
	_, err = g.Agg("Bonus", "sum")
	var ke *KeyError
	assert.ErrorAs(t, err, &ke)
}

func TestTable_Merge(t *testing.T) {
	left := staff(t)
	right, err := New("projects",
		NewSeries("Name", []interface{}{"Ann", "Ann", "Cid", "Zed"}),
		NewSeries("Project", []interface{}{"Alpha", "Beta", "Gamma", "Delta"}),
	)
	require.NoError(t, err)

	inner, err := left.Merge(right, "Name", "inner")
	require.NoError(t, err)
	assert.Equal(t, 3, inner.Len())
	assert.Equal(t, []string{"Name", "Department", "Salary", "Project"}, inner.Names())

	outer, err := left.Merge(right, "Name", "left")
	require.NoError(t, err)
	assert.Equal(t, 6, outer.Len())

	_, err = left.Merge(right, "Name", "cross")
	assert.Error(t, err)
}

func TestTable_DropNAAndAssign(t *testing.T) {
	tbl := staff(t)
	clean, err := tbl.DropNA()
	require.NoError(t, err)
	assert.Equal(t, 3, clean.Len())

	sal, _ := tbl.Col("Salary")
	bonus, err := sal.Arith("*", 0.1)
	require.NoError(t, err)
	withBonus, err := tbl.Assign("Bonus", bonus)
	require.NoError(t, err)
	assert.Equal(t, 4, withBonus.Width())
	assert.Equal(t, 3, tbl.Width(), "assign does not mutate the receiver")
}

func TestTable_Describe(t *testing.T) {
	d := staff(t).Describe()
	assert.Equal(t, []string{"stat", "Salary"}, d.Names())
	assert.Equal(t, 4.0, d.Columns[1].Values[0])
}

func TestTable_Render(t *testing.T) {
	tbl, err := New("t",
		NewSeries("Name", []interface{}{"Ann", "Bob", "Cid"}),
		NewSeries("Salary", []interface{}{50000, 120000, 70000.25}),
	)
	require.NoError(t, err)

	out := tbl.Render(20)
	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "Salary")
	assert.Contains(t, out, "120000")
	assert.Contains(t, out, "70000.25")
	assert.NotContains(t, out, "showing first")
	for _, n := range []string{"Ann", "Bob", "Cid"} {
		assert.Equal(t, 1, strings.Count(out, n))
	}
}

func TestTable_RenderTruncates(t *testing.T) {
	vals := make([]interface{}, 25)
	for i := range vals {
		vals[i] = i + 1000
	}
	tbl, err := New("t", NewSeries("id", vals))
	require.NoError(t, err)

	out := tbl.Render(20)
	assert.Contains(t, out, "1019")
	assert.NotContains(t, out, "1020")
	assert.True(t, strings.HasSuffix(out, "(showing first 20 of 25 rows)"))
}

func TestSchema(t *testing.T) {
	tbl := staff(t)
	tbl.Source = "Employees"
	s := Schema([]*Table{tbl}, 2)
	assert.Contains(t, s, "Table `employees` (sheet \"Employees\"): 5 rows")
	assert.Contains(t, s, `"Salary": number (1 missing)`)
	assert.Contains(t, s, `"Name": string`)
	assert.Contains(t, s, "Sample rows:")
}
