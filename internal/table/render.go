package table

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Render draws the first limit rows as a bordered text table with headers.
// A note follows the table when rows were cut. limit <= 0 renders every row.
func (t *Table) Render(limit int) string {
	total := t.Len()
	shown := total
	if limit > 0 && limit < total {
		shown = limit
	}

	var b strings.Builder
	w := tablewriter.NewWriter(&b)
	w.SetHeader(t.Names())
	w.SetAutoFormatHeaders(false)
	w.SetAutoWrapText(false)
	w.SetAlignment(tablewriter.ALIGN_LEFT)
	for i := 0; i < shown; i++ {
		row := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			row[j] = Format(c.Values[i])
		}
		w.Append(row)
	}
	w.Render()

	if shown < total {
		fmt.Fprintf(&b, "(showing first %d of %d rows)\n", shown, total)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Render draws a series as a two-column table: row position and value.
func (s *Series) Render(limit int) string {
	idx := make([]interface{}, s.Len())
	for i := range idx {
		idx[i] = float64(i)
	}
	name := s.Name
	if name == "" || name == "index" {
		name = "value"
	}
	t := &Table{Columns: []*Series{{Name: "index", Values: idx}, {Name: name, Values: s.Values}}}
	return t.Render(limit)
}
