package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/BV-BRC/sheet-analyst/internal/table"
)

// cell converts a table cell to a script value.
func (s *session) cell(v interface{}) goja.Value {
	if v == nil {
		return goja.Null()
	}
	return s.vm.ToValue(v)
}

func (s *session) cells(vals []interface{}) goja.Value {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = s.cell(v)
	}
	return s.vm.NewArray(out...)
}

func (s *session) strings(vals []string) goja.Value {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return s.vm.NewArray(out...)
}

// rowObject exposes one table row as a prototype-less object whose keys
// follow the column order.
func (s *session) rowObject(row map[string]interface{}, names []string) *goja.Object {
	obj := s.vm.NewObject()
	_ = obj.SetPrototype(nil)
	for _, k := range names {
		_ = obj.Set(k, s.cell(row[k]))
	}
	return obj
}

func (s *session) records(t *table.Table) goja.Value {
	names := t.Names()
	rows := make([]interface{}, t.Len())
	for i := range rows {
		rows[i] = s.rowObject(t.Row(i), names)
	}
	return s.vm.NewArray(rows...)
}

func absent(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

// Limits on converting script values to Go. Conversion runs in host code
// the interpreter cannot interrupt, so it is bounded here instead.
const (
	maxExportDepth    = 64
	maxExportElements = 1 << 20
	ctxCheckInterval  = 1024
)

// exporter walks one script value. ancestors holds the objects on the
// current path, so shared references are fine and only cycles are refused.
type exporter struct {
	s         *session
	ancestors map[*goja.Object]bool
	elements  int
}

// export converts a script value into Go: wrappers resolve to their table
// or series, arrays and objects are exported element-wise. Cycles, nesting
// deeper than maxExportDepth and more than maxExportElements elements are
// thrown as script errors.
func (s *session) export(v goja.Value) interface{} {
	e := &exporter{s: s, ancestors: make(map[*goja.Object]bool)}
	return e.value(v, 0)
}

func (e *exporter) value(v goja.Value, depth int) interface{} {
	s := e.s
	if absent(v) {
		return nil
	}
	if h, ok := s.host(v); ok {
		switch o := h.(type) {
		case *tableObject:
			return o.t
		case *seriesObject:
			return o.c
		case *groupObject:
			return o
		case *namespaceObject:
			return o
		}
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		ex := v.Export()
		if f, ok := ex.(float64); ok && math.IsNaN(f) {
			return f
		}
		return table.Normalize(ex)
	}
	if _, isFn := goja.AssertFunction(obj); isFn {
		return "<function>"
	}
	if e.ancestors[obj] {
		s.throw(errValueError, "circular reference")
	}
	if depth >= maxExportDepth {
		s.throw(errValueError, fmt.Sprintf("value is nested more than %d levels deep", maxExportDepth))
	}
	e.ancestors[obj] = true
	defer delete(e.ancestors, obj)

	if obj.ClassName() == "Array" {
		n := obj.Get("length").ToInteger()
		e.grow(n)
		out := make([]interface{}, n)
		for i := range out {
			e.tick(i)
			out[i] = e.value(obj.Get(strconv.Itoa(i)), depth+1)
		}
		return out
	}
	keys := obj.Keys()
	e.grow(int64(len(keys)))
	m := make(map[string]interface{}, len(keys))
	for i, k := range keys {
		e.tick(i)
		m[k] = e.value(obj.Get(k), depth+1)
	}
	return m
}

// grow reserves n more elements against the export budget.
func (e *exporter) grow(n int64) {
	if n < 0 || n > int64(maxExportElements-e.elements) {
		e.s.throw("RangeError", fmt.Sprintf("value has more than %d elements", maxExportElements))
	}
	e.elements += int(n)
}

// tick aborts a long conversion once the execution budget is spent.
func (e *exporter) tick(i int) {
	if i%ctxCheckInterval != 0 || e.s.ctx == nil {
		return
	}
	if err := e.s.ctx.Err(); err != nil {
		panic(e.s.vm.NewGoError(err))
	}
}

// series coerces an argument to a series: a wrapped series, a one-column
// table, or an array of cells.
func (s *session) series(v goja.Value, what string) *table.Series {
	switch x := s.export(v).(type) {
	case *table.Series:
		return x
	case *table.Table:
		if x.Width() == 1 {
			return x.Columns[0]
		}
		if x.Width() == 2 {
			return x.Columns[1]
		}
	case []interface{}:
		return table.NewSeries("", x)
	}
	s.throw("TypeError", fmt.Sprintf("%s expects a series or an array", what))
	return nil
}

// numbers coerces an argument to the numeric cells of a series.
func (s *session) numbers(v goja.Value, what string) []float64 {
	c := s.series(v, what)
	out := make([]float64, 0, c.Len())
	for _, cell := range c.Values {
		if f, ok := cell.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}

func (s *session) tableArg(v goja.Value, what string) *table.Table {
	switch x := s.export(v).(type) {
	case *table.Table:
		return x
	case *table.Series:
		return x.Frame()
	}
	s.throw("TypeError", fmt.Sprintf("%s expects a table", what))
	return nil
}

func (s *session) stringArg(call goja.FunctionCall, i int, what string) string {
	v := call.Argument(i)
	if absent(v) {
		s.throw("TypeError", fmt.Sprintf("%s: missing argument %d", what, i+1))
	}
	if _, ok := v.(*goja.Object); ok {
		s.throw("TypeError", fmt.Sprintf("%s: argument %d must be a string", what, i+1))
	}
	return v.String()
}

func (s *session) intArg(call goja.FunctionCall, i, def int) int {
	v := call.Argument(i)
	if absent(v) {
		return def
	}
	f, ok := table.ToFloat(table.Normalize(v.Export()))
	if !ok || f != math.Trunc(f) {
		s.throw("TypeError", fmt.Sprintf("argument %d must be an integer", i+1))
	}
	return int(f)
}

// options reads a trailing {key: value} argument.
func (s *session) options(v goja.Value) map[string]goja.Value {
	out := map[string]goja.Value{}
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() == "Array" {
		return out
	}
	if _, wrapped := s.host(v); wrapped {
		return out
	}
	for _, k := range obj.Keys() {
		out[k] = obj.Get(k)
	}
	return out
}

func isPlainObject(s *session, v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() == "Array" {
		return false
	}
	if _, wrapped := s.host(v); wrapped {
		return false
	}
	_, isFn := goja.AssertFunction(obj)
	return !isFn
}

// columnList reads a column name or an array of column names.
func (s *session) columnList(v goja.Value, what string) []string {
	switch x := s.export(v).(type) {
	case string:
		return []string{x}
	case []interface{}:
		out := make([]string, len(x))
		for i, c := range x {
			name, ok := c.(string)
			if !ok {
				s.throw("TypeError", fmt.Sprintf("%s: column names must be strings", what))
			}
			out[i] = name
		}
		return out
	}
	s.throw("TypeError", fmt.Sprintf("%s expects a column name or a list of names", what))
	return nil
}

// format renders a Go value the way print and scalar results show it.
func format(v interface{}, rowLimit int) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case *table.Table:
		return x.Render(rowLimit)
	case *table.Series:
		return x.Render(rowLimit)
	case *groupObject:
		return fmt.Sprintf("<groupby %s: %d groups>", strings.Join(x.keyNames(), ", "), x.g.Len())
	case *namespaceObject:
		return fmt.Sprintf("<module %s>", x.name)
	case []interface{}:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatNested(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("'%s': %s", k, formatNested(x[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return table.Format(x)
	}
}

func formatNested(v interface{}) string {
	switch x := v.(type) {
	case string:
		return "'" + x + "'"
	case *table.Table:
		return x.String()
	case *table.Series:
		return fmt.Sprintf("<series %s: %d values>", x.Name, x.Len())
	}
	return format(v, 0)
}
