package sandbox

import (
	"path"
	"strings"
	"time"

	"github.com/BV-BRC/sheet-analyst/internal/admission"
	"github.com/BV-BRC/sheet-analyst/internal/table"
)

// ResultKind tags what an execution produced.
type ResultKind string

const (
	KindTable  ResultKind = "table"
	KindScalar ResultKind = "scalar"
	KindChart  ResultKind = "chart"
	KindText   ResultKind = "text"
	KindEmpty  ResultKind = "empty"
)

// PlotMarker prefixes the line analysis code prints after saving a chart.
const PlotMarker = "Plot saved to "

// Placeholder texts.
const (
	NoResultText      = "No result produced."
	MissingMarkerText = "Plotting code executed, but no valid 'Plot saved to...' message was captured."
)

// Result is a classified execution.
type Result struct {
	Kind ResultKind
	Text string
	// PlotPath is the artifact name of a chart result.
	PlotPath string
	Mode     Mode
	Charts   []Chart
	Stdout   string
	Duration time.Duration
}

// classify decides the result kind. The first rule that applies wins:
// a chart marker in the output, an expression value, the table result
// local, the scalar result local, any other output, nothing.
func classify(o *Outcome, p *admission.Policy, rowLimit int) *Result {
	r := &Result{Mode: o.Mode, Charts: o.Charts, Stdout: o.Stdout}

	if name, ok := plotMarker(o.Stdout); ok {
		r.Kind = KindChart
		r.PlotPath = name
		for _, c := range o.Charts {
			if c.Requested == name {
				r.PlotPath = c.Stored
			}
		}
		r.Text = strings.TrimSpace(o.Stdout)
		return r
	}

	if o.Mode == ModeExpression && o.HasValue {
		r.Kind, r.Text = valueResult(o.Value, rowLimit)
		return r
	}

	if v, ok := o.Locals[p.TableResult()]; ok {
		r.Kind = KindTable
		switch t := v.(type) {
		case *table.Table:
			r.Text = t.Render(rowLimit)
		case *table.Series:
			r.Text = t.Render(rowLimit)
		default:
			r.Kind, r.Text = valueResult(v, rowLimit)
		}
		return r
	}

	if v, ok := o.Locals[p.ScalarResult()]; ok {
		r.Kind, r.Text = valueResult(v, rowLimit)
		return r
	}

	if len(o.Charts) > 0 {
		r.Kind = KindText
		r.Text = MissingMarkerText
		return r
	}

	if out := strings.TrimSpace(o.Stdout); out != "" {
		r.Kind = KindText
		r.Text = out
		return r
	}

	r.Kind = KindEmpty
	r.Text = NoResultText
	return r
}

func valueResult(v interface{}, rowLimit int) (ResultKind, string) {
	switch t := v.(type) {
	case *table.Table:
		return KindTable, t.Render(rowLimit)
	case *table.Series:
		return KindTable, t.Render(rowLimit)
	}
	return KindScalar, format(v, rowLimit)
}

// plotMarker finds the first marker line and returns the basename of the
// path it names.
func plotMarker(stdout string) (string, bool) {
	for _, line := range strings.Split(stdout, "\n") {
		i := strings.Index(line, PlotMarker)
		if i < 0 {
			continue
		}
		rel := strings.Trim(strings.TrimSpace(line[i+len(PlotMarker):]), `"'`)
		base := path.Base(strings.ReplaceAll(rel, `\`, "/"))
		if rel == "" || base == "." || base == "/" {
			continue
		}
		return base, true
	}
	return "", false
}
