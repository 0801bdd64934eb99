package sandbox

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/BV-BRC/sheet-analyst/internal/chart"
	"github.com/BV-BRC/sheet-analyst/internal/table"
)

// Chart is a figure saved during execution. Requested is the basename the
// code asked for; Stored is the artifact name actually written.
type Chart struct {
	Requested string `json:"requested"`
	Stored    string `json:"stored"`
}

func (s *session) figure() *chart.Figure {
	if s.fig == nil {
		s.fig = chart.NewFigure(0, 0)
	}
	return s.fig
}

func (s *session) plotErr(err error) {
	if err != nil {
		s.throw(errValueError, err.Error())
	}
}

func labels(c *table.Series) []string {
	out := make([]string, c.Len())
	for i, v := range c.Values {
		out[i] = table.Format(v)
	}
	return out
}

func numeric(c *table.Series) []float64 {
	out := make([]float64, 0, c.Len())
	for _, v := range c.Values {
		if f, ok := table.ToFloat(v); ok {
			out = append(out, f)
		}
	}
	return out
}

// pairs keeps the rows where both x and y are numeric.
func pairs(x, y *table.Series) ([]float64, []float64) {
	var xs, ys []float64
	for i := 0; i < x.Len() && i < y.Len(); i++ {
		a, okA := table.ToFloat(x.Values[i])
		b, okB := table.ToFloat(y.Values[i])
		if okA && okB {
			xs = append(xs, a)
			ys = append(ys, b)
		}
	}
	return xs, ys
}

func (s *session) bins(v goja.Value) int {
	if absent(v) {
		return 0
	}
	if isPlainObject(s, v) {
		if b, ok := s.options(v)["bins"]; ok {
			return int(b.ToInteger())
		}
		return 0
	}
	return int(v.ToInteger())
}

func pltFuncs(s *session) map[string]func(goja.FunctionCall) goja.Value {
	return map[string]func(goja.FunctionCall) goja.Value{
		"figure": func(call goja.FunctionCall) goja.Value {
			w, h := 0.0, 0.0
			if isPlainObject(s, call.Argument(0)) {
				if size, ok := s.export(s.options(call.Argument(0))["figsize"]).([]interface{}); ok && len(size) == 2 {
					w, _ = table.ToFloat(size[0])
					h, _ = table.ToFloat(size[1])
				}
			} else if !absent(call.Argument(0)) {
				w, h = call.Argument(0).ToFloat(), call.Argument(1).ToFloat()
			}
			s.fig = chart.NewFigure(w, h)
			return goja.Undefined()
		},
		"hist": func(call goja.FunctionCall) goja.Value {
			s.plotErr(s.figure().Hist(s.numbers(call.Argument(0), "hist"), s.bins(call.Argument(1))))
			return goja.Undefined()
		},
		"bar": func(call goja.FunctionCall) goja.Value {
			x := s.series(call.Argument(0), "bar")
			y := s.series(call.Argument(1), "bar")
			s.plotErr(s.figure().Bar(labels(x), numeric(y)))
			return goja.Undefined()
		},
		"plot": func(call goja.FunctionCall) goja.Value {
			var xs, ys []float64
			if absent(call.Argument(1)) {
				ys = s.numbers(call.Argument(0), "plot")
				xs = make([]float64, len(ys))
				for i := range xs {
					xs[i] = float64(i)
				}
			} else {
				xs, ys = pairs(s.series(call.Argument(0), "plot"), s.series(call.Argument(1), "plot"))
			}
			s.plotErr(s.figure().Line(xs, ys))
			return goja.Undefined()
		},
		"scatter": func(call goja.FunctionCall) goja.Value {
			xs, ys := pairs(s.series(call.Argument(0), "scatter"), s.series(call.Argument(1), "scatter"))
			s.plotErr(s.figure().Scatter(xs, ys))
			return goja.Undefined()
		},
		"boxplot": func(call goja.FunctionCall) goja.Value {
			s.plotErr(s.figure().Box(nil, [][]float64{s.numbers(call.Argument(0), "boxplot")}))
			return goja.Undefined()
		},
		"title": func(call goja.FunctionCall) goja.Value {
			s.figure().SetTitle(s.stringArg(call, 0, "title"))
			return goja.Undefined()
		},
		"xlabel": func(call goja.FunctionCall) goja.Value {
			s.figure().SetXLabel(s.stringArg(call, 0, "xlabel"))
			return goja.Undefined()
		},
		"ylabel": func(call goja.FunctionCall) goja.Value {
			s.figure().SetYLabel(s.stringArg(call, 0, "ylabel"))
			return goja.Undefined()
		},
		"savefig": func(call goja.FunctionCall) goja.Value {
			s.savefig(s.stringArg(call, 0, "savefig"))
			return goja.Undefined()
		},
		"close": func(goja.FunctionCall) goja.Value {
			s.fig = nil
			return goja.Undefined()
		},
		"show": func(goja.FunctionCall) goja.Value {
			return goja.Undefined()
		},
		"tight_layout": func(goja.FunctionCall) goja.Value {
			return goja.Undefined()
		},
	}
}

func (s *session) savefig(path string) {
	store := s.env.opts.Charts
	if store == nil {
		s.throw(errValueError, "chart output is not configured")
	}
	base, err := chart.SanitizeName(path)
	if err != nil {
		s.throwErr(err)
	}
	if s.fig == nil || s.fig.Empty() {
		s.throw(errValueError, "nothing to save: the current figure is empty")
	}
	stored, err := store.Save(s.env.opts.ArtifactPrefix, base, s.fig)
	if err != nil {
		s.throwErr(err)
	}
	s.charts = append(s.charts, Chart{Requested: base, Stored: stored})
}

// seaborn-style calls take either positional series or one options object
// with data (a table) and x / y column names.
type snsArgs struct {
	x, y         *table.Series
	xName, yName string
	bins         int
}

func (s *session) snsArgs(call goja.FunctionCall, what string) snsArgs {
	var a snsArgs
	first := call.Argument(0)
	if !isPlainObject(s, first) {
		a.x = s.series(first, what)
		a.xName = a.x.Name
		if !absent(call.Argument(1)) && !isPlainObject(s, call.Argument(1)) {
			a.y = s.series(call.Argument(1), what)
			a.yName = a.y.Name
		}
		a.bins = s.bins(call.Argument(1))
		return a
	}

	opts := s.options(first)
	var data *table.Table
	if d, ok := opts["data"]; ok {
		data = s.tableArg(d, what)
	}
	column := func(key string) (*table.Series, string) {
		v, ok := opts[key]
		if !ok || absent(v) {
			return nil, ""
		}
		if data != nil {
			if _, isObj := v.(*goja.Object); !isObj {
				c, err := data.Col(v.String())
				if err != nil {
					s.throwErr(err)
				}
				return c, c.Name
			}
		}
		c := s.series(v, what)
		return c, c.Name
	}
	a.x, a.xName = column("x")
	a.y, a.yName = column("y")
	if a.x == nil && a.y == nil && data != nil && data.Width() > 0 {
		a.x, a.xName = data.Columns[0], data.Columns[0].Name
	}
	if b, ok := opts["bins"]; ok {
		a.bins = int(b.ToInteger())
	}
	if a.x == nil && a.y == nil {
		s.throw("TypeError", what+" needs data to plot")
	}
	return a
}

func (s *session) autoLabels(fig *chart.Figure, x, y string, defaultY string) {
	if x != "" {
		fig.SetXLabel(x)
	}
	if y != "" {
		fig.SetYLabel(y)
	} else if defaultY != "" {
		fig.SetYLabel(defaultY)
	}
}

func snsFuncs(s *session) map[string]func(goja.FunctionCall) goja.Value {
	return map[string]func(goja.FunctionCall) goja.Value{
		"histplot": func(call goja.FunctionCall) goja.Value {
			a := s.snsArgs(call, "histplot")
			c, name := a.x, a.xName
			if c == nil {
				c, name = a.y, a.yName
			}
			fig := s.figure()
			s.plotErr(fig.Hist(numeric(c), a.bins))
			s.autoLabels(fig, name, "", "Count")
			return goja.Undefined()
		},
		"countplot": func(call goja.FunctionCall) goja.Value {
			a := s.snsArgs(call, "countplot")
			c, name := a.x, a.xName
			if c == nil {
				c, name = a.y, a.yName
			}
			vc := c.ValueCounts()
			fig := s.figure()
			s.plotErr(fig.Bar(labels(vc.Columns[0]), numeric(vc.Columns[1])))
			s.autoLabels(fig, name, "", "count")
			return goja.Undefined()
		},
		"barplot": func(call goja.FunctionCall) goja.Value {
			a := s.snsArgs(call, "barplot")
			if a.x == nil || a.y == nil {
				s.throw("TypeError", "barplot needs x and y")
			}
			means := groupMeans(s, a.x, a.y)
			fig := s.figure()
			s.plotErr(fig.Bar(labels(means.Columns[0]), numeric(means.Columns[1])))
			s.autoLabels(fig, a.xName, a.yName, "")
			return goja.Undefined()
		},
		"scatterplot": func(call goja.FunctionCall) goja.Value {
			a := s.snsArgs(call, "scatterplot")
			if a.x == nil || a.y == nil {
				s.throw("TypeError", "scatterplot needs x and y")
			}
			xs, ys := pairs(a.x, a.y)
			fig := s.figure()
			s.plotErr(fig.Scatter(xs, ys))
			s.autoLabels(fig, a.xName, a.yName, "")
			return goja.Undefined()
		},
		"lineplot": func(call goja.FunctionCall) goja.Value {
			a := s.snsArgs(call, "lineplot")
			if a.x == nil || a.y == nil {
				s.throw("TypeError", "lineplot needs x and y")
			}
			means := groupMeans(s, a.x, a.y)
			xs, ys := pairs(means.Columns[0], means.Columns[1])
			fig := s.figure()
			s.plotErr(fig.Line(xs, ys))
			s.autoLabels(fig, a.xName, a.yName, "")
			return goja.Undefined()
		},
		"boxplot": func(call goja.FunctionCall) goja.Value {
			a := s.snsArgs(call, "boxplot")
			fig := s.figure()
			if a.x != nil && a.y != nil {
				groups, err := groupValues(a.x, a.y)
				if err != nil {
					s.throwErr(err)
				}
				names := make([]string, len(groups))
				vals := make([][]float64, len(groups))
				for i, g := range groups {
					names[i], vals[i] = g.label, g.values
				}
				s.plotErr(fig.Box(names, vals))
				s.autoLabels(fig, a.xName, a.yName, "")
				return goja.Undefined()
			}
			c, name := a.x, a.xName
			if c == nil {
				c, name = a.y, a.yName
			}
			s.plotErr(fig.Box(nil, [][]float64{numeric(c)}))
			s.autoLabels(fig, "", name, "")
			return goja.Undefined()
		},
	}
}

func pairTable(x, y *table.Series) (*table.Table, error) {
	xn, yn := x.Name, y.Name
	if xn == "" || xn == yn {
		xn = "x"
	}
	if yn == "" || yn == xn {
		yn = "y"
	}
	return table.New("", &table.Series{Name: xn, Values: x.Values}, &table.Series{Name: yn, Values: y.Values})
}

// groupMeans averages y for each distinct x, ordered by x.
func groupMeans(s *session, x, y *table.Series) *table.Table {
	t, err := pairTable(x, y)
	if err != nil {
		s.throwErr(err)
	}
	g, err := t.GroupBy(t.Columns[0].Name)
	if err != nil {
		s.throwErr(err)
	}
	means, err := g.Agg(t.Columns[1].Name, "mean")
	if err != nil {
		s.throwErr(err)
	}
	return means
}

type valueGroup struct {
	label  string
	values []float64
}

func groupValues(x, y *table.Series) ([]valueGroup, error) {
	t, err := pairTable(x, y)
	if err != nil {
		return nil, err
	}
	g, err := t.GroupBy(t.Columns[0].Name)
	if err != nil {
		return nil, err
	}
	keys := g.Size().Columns[0]
	out := make([]valueGroup, 0, keys.Len())
	for _, k := range keys.Values {
		sub, err := t.Where(t.Columns[0].Name, "==", k)
		if err != nil {
			return nil, err
		}
		vals := numeric(sub.Columns[1])
		if len(vals) == 0 {
			continue
		}
		out = append(out, valueGroup{label: table.Format(k), values: vals})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("boxplot: no numeric values to plot")
	}
	return out, nil
}
