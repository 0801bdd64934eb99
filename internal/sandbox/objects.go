package sandbox

import (
	"fmt"
	"strconv"

	"github.com/dop251/goja"

	"github.com/BV-BRC/sheet-analyst/internal/table"
)

// Wrapped tables, series, groupings and namespaces are dynamic objects with
// no prototype. Any name they do not define throws instead of resolving to
// undefined, so a misspelled column fails loudly.

const operatorHint = "tables and series do not support operators; use methods such as .gt() or .mul()"

// conversion serves the hooks the interpreter looks up when a wrapper is
// printed, concatenated or serialized.
func (s *session) conversion(key string, text func() string, data func() goja.Value) (goja.Value, bool) {
	switch key {
	case "toString":
		return s.vm.ToValue(func(goja.FunctionCall) goja.Value { return s.vm.ToValue(text()) }), true
	case "valueOf":
		return s.vm.ToValue(func(goja.FunctionCall) goja.Value {
			s.throw("TypeError", operatorHint)
			return nil
		}), true
	case "toJSON":
		return s.vm.ToValue(func(goja.FunctionCall) goja.Value { return data() }), true
	}
	return nil, false
}

type tableObject struct {
	s *session
	t *table.Table
}

type tableMethod func(o *tableObject, call goja.FunctionCall) goja.Value

func (o *tableObject) Get(key string) goja.Value {
	if m, ok := tableMethods[key]; ok {
		return o.s.vm.ToValue(func(call goja.FunctionCall) goja.Value { return m(o, call) })
	}
	switch key {
	case "shape":
		return o.s.vm.NewArray(o.t.Len(), o.t.Width())
	case "columns":
		return o.s.strings(o.t.Names())
	case "length":
		return o.s.vm.ToValue(o.t.Len())
	case "empty":
		return o.s.vm.ToValue(o.t.Len() == 0)
	}
	if c, err := o.t.Col(key); err == nil {
		return o.s.wrapSeries(c)
	}
	if v, ok := o.s.conversion(key, func() string { return o.t.Render(o.s.env.opts.RowLimit) }, func() goja.Value { return o.s.records(o.t) }); ok {
		return v
	}
	o.s.throw(errKeyError, (&table.KeyError{Key: key}).Error())
	return nil
}

func (o *tableObject) Has(key string) bool {
	if _, ok := tableMethods[key]; ok {
		return true
	}
	switch key {
	case "shape", "columns", "length", "empty":
		return true
	}
	return o.t.HasColumn(key)
}

// Set assigns a column. The bound table is replaced, never modified, so
// other holders of the original table are unaffected.
func (o *tableObject) Set(key string, val goja.Value) bool {
	if o.Has(key) && !o.t.HasColumn(key) {
		return false
	}
	col := o.s.columnValues(val, o.t.Len())
	t, err := o.t.Assign(key, col)
	if err != nil {
		o.s.throwErr(err)
	}
	o.t = t
	return true
}

func (o *tableObject) Delete(string) bool { return false }

func (o *tableObject) Keys() []string { return o.t.Names() }

// columnValues turns an assigned value into a column: a series, an array or
// a scalar broadcast to every row.
func (s *session) columnValues(val goja.Value, rows int) *table.Series {
	switch x := s.export(val).(type) {
	case *table.Series:
		return x
	case []interface{}:
		return table.NewSeries("", x)
	case *table.Table, *groupObject, *namespaceObject, map[string]interface{}:
		s.throw("TypeError", "a column can only be assigned a series, an array or a scalar")
	default:
		vals := make([]interface{}, rows)
		for i := range vals {
			vals[i] = x
		}
		return table.NewSeries("", vals)
	}
	return nil
}

type seriesObject struct {
	s *session
	c *table.Series
}

type seriesMethod func(o *seriesObject, call goja.FunctionCall) goja.Value

func (o *seriesObject) Get(key string) goja.Value {
	if m, ok := seriesMethods[key]; ok {
		return o.s.vm.ToValue(func(call goja.FunctionCall) goja.Value { return m(o, call) })
	}
	switch key {
	case "name":
		return o.s.vm.ToValue(o.c.Name)
	case "length", "size":
		return o.s.vm.ToValue(o.c.Len())
	case "dtype":
		return o.s.vm.ToValue(string(o.c.Kind()))
	case "values":
		return o.s.cells(o.c.Values)
	case "str":
		return o.s.namespace("str", stringAccessor(o))
	}
	if i, err := strconv.Atoi(key); err == nil {
		if i < 0 || i >= o.c.Len() {
			o.s.throw(errKeyError, fmt.Sprintf("index %d out of range for %d values", i, o.c.Len()))
		}
		return o.s.cell(o.c.Values[i])
	}
	if v, ok := o.s.conversion(key, func() string { return o.c.Render(o.s.env.opts.RowLimit) }, func() goja.Value { return o.s.cells(o.c.Values) }); ok {
		return v
	}
	o.s.throw(errKeyError, fmt.Sprintf("series '%s' has no attribute '%s'", o.c.Name, key))
	return nil
}

func (o *seriesObject) Has(key string) bool {
	if _, ok := seriesMethods[key]; ok {
		return true
	}
	switch key {
	case "name", "length", "size", "dtype", "values", "str":
		return true
	}
	i, err := strconv.Atoi(key)
	return err == nil && i >= 0 && i < o.c.Len()
}

func (o *seriesObject) Set(string, goja.Value) bool { return false }
func (o *seriesObject) Delete(string) bool         { return false }

func (o *seriesObject) Keys() []string {
	keys := make([]string, o.c.Len())
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	return keys
}

type groupObject struct {
	s   *session
	g   *table.GroupBy
	col string
}

type groupMethod func(o *groupObject, call goja.FunctionCall) goja.Value

func (o *groupObject) keyNames() []string {
	return o.g.Keys()
}

func (o *groupObject) Get(key string) goja.Value {
	if m, ok := groupMethods[key]; ok {
		return o.s.vm.ToValue(func(call goja.FunctionCall) goja.Value { return m(o, call) })
	}
	if o.col == "" && o.g.Table().HasColumn(key) {
		return o.s.wrapGroup(o.g, key)
	}
	if v, ok := o.s.conversion(key, func() string { return format(o, 0) }, func() goja.Value { return goja.Null() }); ok {
		return v
	}
	if o.col != "" {
		o.s.throw(errKeyError, fmt.Sprintf("grouped column '%s' has no attribute '%s'", o.col, key))
	}
	o.s.throw(errKeyError, (&table.KeyError{Key: key}).Error())
	return nil
}

func (o *groupObject) Has(key string) bool {
	_, ok := groupMethods[key]
	return ok || (o.col == "" && o.g.Table().HasColumn(key))
}

func (o *groupObject) Set(string, goja.Value) bool { return false }
func (o *groupObject) Delete(string) bool         { return false }
func (o *groupObject) Keys() []string              { return nil }

// namespaceObject is a fixed set of host functions: plt, sns and the .str
// accessor of a series.
type namespaceObject struct {
	s     *session
	name  string
	funcs map[string]func(goja.FunctionCall) goja.Value
}

func (o *namespaceObject) Get(key string) goja.Value {
	if f, ok := o.funcs[key]; ok {
		return o.s.vm.ToValue(f)
	}
	if v, ok := o.s.conversion(key, func() string { return format(o, 0) }, func() goja.Value { return goja.Null() }); ok {
		return v
	}
	o.s.throw(errKeyError, fmt.Sprintf("'%s' has no attribute '%s'", o.name, key))
	return nil
}

func (o *namespaceObject) Has(key string) bool {
	_, ok := o.funcs[key]
	return ok
}

func (o *namespaceObject) Set(string, goja.Value) bool { return false }
func (o *namespaceObject) Delete(string) bool         { return false }

func (o *namespaceObject) Keys() []string {
	keys := make([]string, 0, len(o.funcs))
	for k := range o.funcs {
		keys = append(keys, k)
	}
	return keys
}
