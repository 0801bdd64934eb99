// Package table implements the in-memory tables analysis code operates on:
// typed columns, the pandas-style operations the analysis dialect exposes,
// workbook loading and text rendering.
package table

import (
	"fmt"
	"strings"
)

// Table is an ordered set of equally long columns.
type Table struct {
	// Name is the identifier the table is bound to during analysis.
	Name string
	// Source is the sheet or file the table was read from, if any.
	Source  string
	Columns []*Series
}

// New builds a table and validates column lengths and names.
func New(name string, cols ...*Series) (*Table, error) {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c.Name] {
			return nil, valueErrorf("duplicate column '%s'", c.Name)
		}
		seen[c.Name] = true
		if c.Len() != cols[0].Len() {
			return nil, valueErrorf("column '%s' has %d rows, expected %d", c.Name, c.Len(), cols[0].Len())
		}
	}
	return &Table{Name: name, Columns: cols}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// Width returns the number of columns.
func (t *Table) Width() int {
	return len(t.Columns)
}

// Shape returns (rows, columns).
func (t *Table) Shape() (int, int) {
	return t.Len(), t.Width()
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether a column exists.
func (t *Table) HasColumn(name string) bool {
	_, err := t.Col(name)
	return err == nil
}

// Col returns the named column.
func (t *Table) Col(name string) (*Series, error) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, &KeyError{Key: name}
}

// Row returns the cells of row i keyed by column name.
func (t *Table) Row(i int) map[string]interface{} {
	row := make(map[string]interface{}, len(t.Columns))
	for _, c := range t.Columns {
		row[c.Name] = c.Values[i]
	}
	return row
}

// Records returns every row as a map.
func (t *Table) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, t.Len())
	for i := range out {
		out[i] = t.Row(i)
	}
	return out
}

func (t *Table) derive(cols []*Series) *Table {
	return &Table{Name: t.Name, Source: t.Source, Columns: cols}
}

func (t *Table) take(idx []int) *Table {
	cols := make([]*Series, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = c.take(idx)
	}
	return t.derive(cols)
}

func span(from, to int) []int {
	idx := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		idx = append(idx, i)
	}
	return idx
}

// Head returns the first n rows.
func (t *Table) Head(n int) *Table {
	n = clamp(n, t.Len())
	return t.take(span(0, n))
}

// Tail returns the last n rows.
func (t *Table) Tail(n int) *Table {
	n = clamp(n, t.Len())
	return t.take(span(t.Len()-n, t.Len()))
}

func clamp(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

// Select projects the named columns in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]*Series, 0, len(names))
	for _, n := range names {
		c, err := t.Col(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return t.derive(cols), nil
}

// SortBy orders rows by a column; nulls go last.
func (t *Table) SortBy(col string, ascending bool) (*Table, error) {
	c, err := t.Col(col)
	if err != nil {
		return nil, err
	}
	return t.take(sortIndex(c, ascending)), nil
}

// NLargest returns the n rows with the largest values in col.
func (t *Table) NLargest(n int, col string) (*Table, error) {
	sorted, err := t.SortBy(col, false)
	if err != nil {
		return nil, err
	}
	return sorted.Head(n), nil
}

// NSmallest returns the n rows with the smallest values in col.
func (t *Table) NSmallest(n int, col string) (*Table, error) {
	sorted, err := t.SortBy(col, true)
	if err != nil {
		return nil, err
	}
	return sorted.Head(n), nil
}

// Mask keeps the rows where mask is true.
func (t *Table) Mask(mask *Series) (*Table, error) {
	if mask.Len() != t.Len() {
		return nil, valueErrorf("mask has %d rows, table has %d", mask.Len(), t.Len())
	}
	if !mask.IsMask() {
		return nil, valueErrorf("filter requires a boolean mask")
	}
	idx := make([]int, 0)
	for i, v := range mask.Values {
		if v.(bool) {
			idx = append(idx, i)
		}
	}
	return t.take(idx), nil
}

// Where keeps the rows whose col compares to v with op.
func (t *Table) Where(col, op string, v interface{}) (*Table, error) {
	c, err := t.Col(col)
	if err != nil {
		return nil, err
	}
	mask, err := c.Compare(op, v)
	if err != nil {
		return nil, err
	}
	return t.Mask(mask)
}

// Filter keeps the rows for which keep returns true. An error from keep
// aborts the filter.
func (t *Table) Filter(keep func(row map[string]interface{}) (bool, error)) (*Table, error) {
	idx := make([]int, 0)
	for i := 0; i < t.Len(); i++ {
		ok, err := keep(t.Row(i))
		if err != nil {
			return nil, err
		}
		if ok {
			idx = append(idx, i)
		}
	}
	return t.take(idx), nil
}

// Assign returns a table with the column added, or replaced if it exists.
func (t *Table) Assign(name string, s *Series) (*Table, error) {
	if len(t.Columns) > 0 && s.Len() != t.Len() {
		return nil, valueErrorf("column '%s' has %d rows, table has %d", name, s.Len(), t.Len())
	}
	col := &Series{Name: name, Values: s.Values}
	cols := make([]*Series, 0, len(t.Columns)+1)
	replaced := false
	for _, c := range t.Columns {
		if c.Name == name {
			cols = append(cols, col)
			replaced = true
			continue
		}
		cols = append(cols, c)
	}
	if !replaced {
		cols = append(cols, col)
	}
	return t.derive(cols), nil
}

// DropNA removes rows with a null in any of cols (all columns when empty).
func (t *Table) DropNA(cols ...string) (*Table, error) {
	check := t.Columns
	if len(cols) > 0 {
		sel, err := t.Select(cols...)
		if err != nil {
			return nil, err
		}
		check = sel.Columns
	}
	idx := make([]int, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		keep := true
		for _, c := range check {
			if IsNull(c.Values[i]) {
				keep = false
				break
			}
		}
		if keep {
			idx = append(idx, i)
		}
	}
	return t.take(idx), nil
}

// Merge joins two tables on a shared column. how is "inner" or "left".
// Clashing column names get _x / _y suffixes.
func (t *Table) Merge(other *Table, on, how string) (*Table, error) {
	if how == "" {
		how = "inner"
	}
	if how != "inner" && how != "left" {
		return nil, valueErrorf("unsupported merge type '%s'", how)
	}
	leftKey, err := t.Col(on)
	if err != nil {
		return nil, err
	}
	rightKey, err := other.Col(on)
	if err != nil {
		return nil, err
	}

	index := make(map[interface{}][]int)
	for j, v := range rightKey.Values {
		if IsNull(v) {
			continue
		}
		index[v] = append(index[v], j)
	}

	var leftRows, rightRows []int
	for i, v := range leftKey.Values {
		matches := index[v]
		if IsNull(v) {
			matches = nil
		}
		if len(matches) == 0 {
			if how == "left" {
				leftRows = append(leftRows, i)
				rightRows = append(rightRows, -1)
			}
			continue
		}
		for _, j := range matches {
			leftRows = append(leftRows, i)
			rightRows = append(rightRows, j)
		}
	}

	rightNames := make(map[string]bool)
	for _, c := range other.Columns {
		rightNames[c.Name] = true
	}
	leftNames := make(map[string]bool)
	for _, c := range t.Columns {
		leftNames[c.Name] = true
	}

	cols := make([]*Series, 0, t.Width()+other.Width()-1)
	for _, c := range t.Columns {
		s := c.take(leftRows)
		if c.Name != on && rightNames[c.Name] {
			s.Name = c.Name + "_x"
		}
		cols = append(cols, s)
	}
	for _, c := range other.Columns {
		if c.Name == on {
			continue
		}
		vals := make([]interface{}, len(rightRows))
		for k, j := range rightRows {
			if j >= 0 {
				vals[k] = c.Values[j]
			}
		}
		name := c.Name
		if leftNames[name] {
			name += "_y"
		}
		cols = append(cols, &Series{Name: name, Values: vals})
	}
	return &Table{Name: t.Name, Columns: cols}, nil
}

// Describe summarizes numeric columns with count, mean, std, min,
// quartiles and max.
func (t *Table) Describe() *Table {
	stats := []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}
	labels := make([]interface{}, len(stats))
	for i, s := range stats {
		labels[i] = s
	}
	cols := []*Series{{Name: "stat", Values: labels}}
	for _, c := range t.Columns {
		if c.Kind() != KindNumber {
			continue
		}
		vals := []interface{}{
			float64(c.Count()), c.Mean(), c.Std(), c.Min(),
			c.Quantile(0.25), c.Quantile(0.5), c.Quantile(0.75), c.Max(),
		}
		cols = append(cols, &Series{Name: c.Name, Values: vals})
	}
	return &Table{Name: t.Name, Columns: cols}
}

// Round rounds every numeric cell.
func (t *Table) Round(decimals int) *Table {
	cols := make([]*Series, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = c.Round(decimals)
	}
	return t.derive(cols)
}

// String returns a one-line summary, used when a table is printed as text.
func (t *Table) String() string {
	return fmt.Sprintf("<table %s: %d rows x %d columns [%s]>", t.Name, t.Len(), t.Width(), strings.Join(t.Names(), ", "))
}

