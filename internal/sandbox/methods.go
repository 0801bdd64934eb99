package sandbox

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/BV-BRC/sheet-analyst/internal/table"
)

var (
	tableMethods  map[string]tableMethod
	seriesMethods map[string]seriesMethod
	groupMethods  map[string]groupMethod
)

func init() {
	tableMethods = map[string]tableMethod{
		"head":        tableHead,
		"tail":        tableTail,
		"sort_values": tableSort,
		"nlargest":    tableNLargest,
		"nsmallest":   tableNSmallest,
		"select":      tableSelect,
		"filter":      tableFilter,
		"where":       tableWhere,
		"groupby":     tableGroupBy,
		"describe":    tableDescribe,
		"merge":       tableMerge,
		"assign":      tableAssign,
		"dropna":      tableDropNA,
		"round":       tableRound,
		"records":     tableRecords,
		"to_dict":     tableRecords,
		"col":         tableCol,
		"row":         tableRow,
		"copy":        tableCopy,
	}

	seriesMethods = map[string]seriesMethod{
		"max":          seriesAgg(func(c *table.Series) interface{} { return c.Max() }),
		"min":          seriesAgg(func(c *table.Series) interface{} { return c.Min() }),
		"sum":          seriesAgg(func(c *table.Series) interface{} { return c.Sum() }),
		"mean":         seriesAgg(func(c *table.Series) interface{} { return c.Mean() }),
		"median":       seriesAgg(func(c *table.Series) interface{} { return c.Median() }),
		"std":          seriesAgg(func(c *table.Series) interface{} { return c.Std() }),
		"count":        seriesAgg(func(c *table.Series) interface{} { return float64(c.Count()) }),
		"nunique":      seriesAgg(func(c *table.Series) interface{} { return float64(c.NUnique()) }),
		"quantile":     seriesQuantile,
		"unique":       seriesUnique,
		"value_counts": seriesValueCounts,
		"tolist":       seriesToList,
		"to_list":      seriesToList,
		"to_frame":     seriesToFrame,
		"describe":     seriesDescribe,
		"head":         seriesHead,
		"tail":         seriesTail,
		"sort_values":  seriesSort,
		"nlargest":     seriesNLargest,
		"nsmallest":    seriesNSmallest,
		"filter":       seriesFilter,
		"between":      seriesBetween,
		"isin":         seriesIsIn,
		"isnull":       seriesMask(func(c *table.Series) *table.Series { return c.IsNull() }),
		"isna":         seriesMask(func(c *table.Series) *table.Series { return c.IsNull() }),
		"notnull":      seriesMask(func(c *table.Series) *table.Series { return c.NotNull() }),
		"notna":        seriesMask(func(c *table.Series) *table.Series { return c.NotNull() }),
		"not":          seriesMask(func(c *table.Series) *table.Series { return c.Not() }),
		"invert":       seriesMask(func(c *table.Series) *table.Series { return c.Not() }),
		"and":          seriesLogic("and"),
		"or":           seriesLogic("or"),
		"round":        seriesRound,
	}
	for _, op := range []string{"eq", "ne", "gt", "ge", "lt", "le"} {
		seriesMethods[op] = seriesCompare(op)
	}
	for _, op := range []string{"add", "sub", "mul", "div"} {
		seriesMethods[op] = seriesArith(op)
	}

	groupMethods = map[string]groupMethod{
		"agg":  groupAgg,
		"size": groupSize,
	}
	for _, fn := range []string{"mean", "sum", "count", "min", "max", "median", "std", "nunique", "first", "last"} {
		groupMethods[fn] = groupReduce(fn)
	}
}

func tableHead(o *tableObject, call goja.FunctionCall) goja.Value {
	return o.s.wrapTable(o.t.Head(o.s.intArg(call, 0, 5)))
}

func tableTail(o *tableObject, call goja.FunctionCall) goja.Value {
	return o.s.wrapTable(o.t.Tail(o.s.intArg(call, 0, 5)))
}

// ascending reads a sort direction given as a boolean or {ascending: bool}.
func (s *session) ascending(v goja.Value) bool {
	if absent(v) {
		return true
	}
	if isPlainObject(s, v) {
		if a, ok := s.options(v)["ascending"]; ok {
			return a.ToBoolean()
		}
		return true
	}
	return v.ToBoolean()
}

func tableSort(o *tableObject, call goja.FunctionCall) goja.Value {
	cols := o.s.columnList(call.Argument(0), "sort_values")
	asc := o.s.ascending(call.Argument(1))
	t := o.t
	for i := len(cols) - 1; i >= 0; i-- {
		var err error
		if t, err = t.SortBy(cols[i], asc); err != nil {
			o.s.throwErr(err)
		}
	}
	return o.s.wrapTable(t)
}

func tableNLargest(o *tableObject, call goja.FunctionCall) goja.Value {
	t, err := o.t.NLargest(o.s.intArg(call, 0, 5), o.s.stringArg(call, 1, "nlargest"))
	if err != nil {
		o.s.throwErr(err)
	}
	return o.s.wrapTable(t)
}

func tableNSmallest(o *tableObject, call goja.FunctionCall) goja.Value {
	t, err := o.t.NSmallest(o.s.intArg(call, 0, 5), o.s.stringArg(call, 1, "nsmallest"))
	if err != nil {
		o.s.throwErr(err)
	}
	return o.s.wrapTable(t)
}

func tableSelect(o *tableObject, call goja.FunctionCall) goja.Value {
	var cols []string
	for _, arg := range call.Arguments {
		cols = append(cols, o.s.columnList(arg, "select")...)
	}
	t, err := o.t.Select(cols...)
	if err != nil {
		o.s.throwErr(err)
	}
	return o.s.wrapTable(t)
}

func tableFilter(o *tableObject, call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	if fn, ok := goja.AssertFunction(arg); ok {
		names := o.t.Names()
		t, err := o.t.Filter(func(row map[string]interface{}) (bool, error) {
			return o.s.call(fn, o.s.rowObject(row, names)).ToBoolean(), nil
		})
		if err != nil {
			o.s.throwErr(err)
		}
		return o.s.wrapTable(t)
	}
	t, err := o.t.Mask(o.s.series(arg, "filter"))
	if err != nil {
		o.s.throwErr(err)
	}
	return o.s.wrapTable(t)
}

func tableWhere(o *tableObject, call goja.FunctionCall) goja.Value {
	t, err := o.t.Where(o.s.stringArg(call, 0, "where"), o.s.stringArg(call, 1, "where"), o.s.export(call.Argument(2)))
	if err != nil {
		o.s.throwErr(err)
	}
	return o.s.wrapTable(t)
}

func tableGroupBy(o *tableObject, call goja.FunctionCall) goja.Value {
	g, err := o.t.GroupBy(o.s.columnList(call.Argument(0), "groupby")...)
	if err != nil {
		o.s.throwErr(err)
	}
	return o.s.wrapGroup(g, "")
}

func tableDescribe(o *tableObject, _ goja.FunctionCall) goja.Value {
	return o.s.wrapTable(o.t.Describe())
}

// tableMerge accepts merge(other, on, how) or merge(other, {on, how}).
func tableMerge(o *tableObject, call goja.FunctionCall) goja.Value {
	other := o.s.tableArg(call.Argument(0), "merge")
	var on, how string
	if isPlainObject(o.s, call.Argument(1)) {
		opts := o.s.options(call.Argument(1))
		if v, ok := opts["on"]; ok {
			on = v.String()
		}
		if v, ok := opts["how"]; ok {
			how = v.String()
		}
	} else {
		on = o.s.stringArg(call, 1, "merge")
		if !absent(call.Argument(2)) {
			how = call.Argument(2).String()
		}
	}
	if on == "" {
		o.s.throw("TypeError", "merge requires the column to join on")
	}
	t, err := o.t.Merge(other, on, how)
	if err != nil {
		o.s.throwErr(err)
	}
	return o.s.wrapTable(t)
}

// tableAssign accepts assign(name, values) or assign({name: values, ...}).
func tableAssign(o *tableObject, call goja.FunctionCall) goja.Value {
	t := o.t
	assign := func(name string, v goja.Value) {
		var err error
		if t, err = t.Assign(name, o.s.columnValues(v, t.Len())); err != nil {
			o.s.throwErr(err)
		}
	}
	if isPlainObject(o.s, call.Argument(0)) {
		obj := call.Argument(0).(*goja.Object)
		for _, k := range obj.Keys() {
			assign(k, obj.Get(k))
		}
	} else {
		assign(o.s.stringArg(call, 0, "assign"), call.Argument(1))
	}
	return o.s.wrapTable(t)
}

func tableDropNA(o *tableObject, call goja.FunctionCall) goja.Value {
	var cols []string
	if !absent(call.Argument(0)) {
		cols = o.s.columnList(call.Argument(0), "dropna")
	}
	t, err := o.t.DropNA(cols...)
	if err != nil {
		o.s.throwErr(err)
	}
	return o.s.wrapTable(t)
}

func tableRound(o *tableObject, call goja.FunctionCall) goja.Value {
	return o.s.wrapTable(o.t.Round(o.s.intArg(call, 0, 0)))
}

func tableRecords(o *tableObject, _ goja.FunctionCall) goja.Value {
	return o.s.records(o.t)
}

func tableCol(o *tableObject, call goja.FunctionCall) goja.Value {
	c, err := o.t.Col(o.s.stringArg(call, 0, "col"))
	if err != nil {
		o.s.throwErr(err)
	}
	return o.s.wrapSeries(c)
}

func tableRow(o *tableObject, call goja.FunctionCall) goja.Value {
	i := o.s.intArg(call, 0, 0)
	if i < 0 || i >= o.t.Len() {
		o.s.throw(errKeyError, fmt.Sprintf("row %d out of range for %d rows", i, o.t.Len()))
	}
	return o.s.rowObject(o.t.Row(i), o.t.Names())
}

func tableCopy(o *tableObject, _ goja.FunctionCall) goja.Value {
	return o.s.wrapTable(o.t)
}

func seriesAgg(f func(*table.Series) interface{}) seriesMethod {
	return func(o *seriesObject, _ goja.FunctionCall) goja.Value {
		return o.s.cell(f(o.c))
	}
}

func seriesQuantile(o *seriesObject, call goja.FunctionCall) goja.Value {
	q := 0.5
	if v := call.Argument(0); !absent(v) {
		q = v.ToFloat()
	}
	if q < 0 || q > 1 {
		o.s.throw(errValueError, "quantile must be between 0 and 1")
	}
	return o.s.cell(o.c.Quantile(q))
}

func seriesUnique(o *seriesObject, _ goja.FunctionCall) goja.Value {
	return o.s.cells(o.c.Unique())
}

func seriesValueCounts(o *seriesObject, _ goja.FunctionCall) goja.Value {
	return o.s.wrapTable(o.c.ValueCounts())
}

func seriesToList(o *seriesObject, _ goja.FunctionCall) goja.Value {
	return o.s.cells(o.c.Values)
}

func seriesToFrame(o *seriesObject, _ goja.FunctionCall) goja.Value {
	return o.s.wrapTable(o.c.Frame())
}

func seriesDescribe(o *seriesObject, _ goja.FunctionCall) goja.Value {
	return o.s.wrapTable(o.c.Frame().Describe())
}

func seriesHead(o *seriesObject, call goja.FunctionCall) goja.Value {
	return o.s.wrapSeries(o.c.Head(o.s.intArg(call, 0, 5)))
}

func seriesTail(o *seriesObject, call goja.FunctionCall) goja.Value {
	return o.s.wrapSeries(o.c.Tail(o.s.intArg(call, 0, 5)))
}

func seriesSort(o *seriesObject, call goja.FunctionCall) goja.Value {
	return o.s.wrapSeries(o.c.Sorted(o.s.ascending(call.Argument(0))))
}

func seriesNLargest(o *seriesObject, call goja.FunctionCall) goja.Value {
	return o.s.wrapSeries(o.c.Sorted(false).Head(o.s.intArg(call, 0, 5)))
}

func seriesNSmallest(o *seriesObject, call goja.FunctionCall) goja.Value {
	return o.s.wrapSeries(o.c.Sorted(true).Head(o.s.intArg(call, 0, 5)))
}

func seriesFilter(o *seriesObject, call goja.FunctionCall) goja.Value {
	t, err := o.c.Frame().Mask(o.s.series(call.Argument(0), "filter"))
	if err != nil {
		o.s.throwErr(err)
	}
	out := t.Columns[0]
	out.Name = o.c.Name
	return o.s.wrapSeries(out)
}

func seriesBetween(o *seriesObject, call goja.FunctionCall) goja.Value {
	return o.s.wrapSeries(o.c.Between(o.s.export(call.Argument(0)), o.s.export(call.Argument(1))))
}

func seriesIsIn(o *seriesObject, call goja.FunctionCall) goja.Value {
	vals, ok := o.s.export(call.Argument(0)).([]interface{})
	if !ok {
		o.s.throw("TypeError", "isin expects an array of values")
	}
	return o.s.wrapSeries(o.c.IsIn(vals))
}

func seriesMask(f func(*table.Series) *table.Series) seriesMethod {
	return func(o *seriesObject, _ goja.FunctionCall) goja.Value {
		return o.s.wrapSeries(f(o.c))
	}
}

func seriesLogic(op string) seriesMethod {
	return func(o *seriesObject, call goja.FunctionCall) goja.Value {
		other := o.s.series(call.Argument(0), op)
		var out *table.Series
		var err error
		if op == "and" {
			out, err = o.c.And(other)
		} else {
			out, err = o.c.Or(other)
		}
		if err != nil {
			o.s.throwErr(err)
		}
		return o.s.wrapSeries(out)
	}
}

func seriesCompare(op string) seriesMethod {
	return func(o *seriesObject, call goja.FunctionCall) goja.Value {
		out, err := o.c.Compare(op, o.s.export(call.Argument(0)))
		if err != nil {
			o.s.throwErr(err)
		}
		return o.s.wrapSeries(out)
	}
}

func seriesArith(op string) seriesMethod {
	return func(o *seriesObject, call goja.FunctionCall) goja.Value {
		operand := o.s.export(call.Argument(0))
		switch operand.(type) {
		case *table.Series, float64, nil:
		default:
			o.s.throw("TypeError", fmt.Sprintf("%s expects a number or a series", op))
		}
		out, err := o.c.Arith(op, operand)
		if err != nil {
			o.s.throwErr(err)
		}
		return o.s.wrapSeries(out)
	}
}

func seriesRound(o *seriesObject, call goja.FunctionCall) goja.Value {
	return o.s.wrapSeries(o.c.Round(o.s.intArg(call, 0, 0)))
}

func stringAccessor(o *seriesObject) map[string]func(goja.FunctionCall) goja.Value {
	op := func(name string, needsArg bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			arg := ""
			if needsArg {
				arg = o.s.stringArg(call, 0, "str."+name)
			}
			out, err := o.c.StringOp(name, arg)
			if err != nil {
				o.s.throwErr(err)
			}
			return o.s.wrapSeries(out)
		}
	}
	return map[string]func(goja.FunctionCall) goja.Value{
		"contains":   op("contains", true),
		"startswith": op("startswith", true),
		"endswith":   op("endswith", true),
		"lower":      op("lower", false),
		"upper":      op("upper", false),
		"strip":      op("strip", false),
		"len":        op("len", false),
	}
}

// groupAgg accepts agg(column, fn), or agg(fn) on a selected column or
// for every column.
func groupAgg(o *groupObject, call goja.FunctionCall) goja.Value {
	col, fn := o.col, ""
	if absent(call.Argument(1)) {
		fn = o.s.stringArg(call, 0, "agg")
	} else {
		col = o.s.stringArg(call, 0, "agg")
		fn = o.s.stringArg(call, 1, "agg")
	}
	return o.reduce(col, fn)
}

func groupReduce(fn string) groupMethod {
	return func(o *groupObject, call goja.FunctionCall) goja.Value {
		col := o.col
		if !absent(call.Argument(0)) {
			col = o.s.stringArg(call, 0, fn)
		}
		return o.reduce(col, fn)
	}
}

func (o *groupObject) reduce(col, fn string) goja.Value {
	var t *table.Table
	var err error
	if col == "" {
		t, err = o.g.AggAll(fn)
	} else {
		t, err = o.g.Agg(col, fn)
	}
	if err != nil {
		o.s.throwErr(err)
	}
	return o.s.wrapTable(t)
}

func groupSize(o *groupObject, _ goja.FunctionCall) goja.Value {
	return o.s.wrapTable(o.g.Size())
}
