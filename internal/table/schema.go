package table

import (
	"fmt"
	"strings"
)

// Schema describes a table for prompt construction: its identifier, size,
// column kinds and a few example rows.
func (t *Table) Schema(sampleRows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table `%s`", t.Name)
	if t.Source != "" && t.Source != t.Name {
		fmt.Fprintf(&b, " (sheet %q)", t.Source)
	}
	fmt.Fprintf(&b, ": %d rows\n", t.Len())
	b.WriteString("Columns:\n")
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "  - %q: %s", c.Name, c.Kind())
		if n := c.NullCount(); n > 0 {
			fmt.Fprintf(&b, " (%d missing)", n)
		}
		b.WriteString("\n")
	}
	if sampleRows > 0 && t.Len() > 0 {
		b.WriteString("Sample rows:\n")
		b.WriteString(t.Head(sampleRows).Render(0))
		b.WriteString("\n")
	}
	return b.String()
}

// Schema describes a set of tables, one block per table.
func Schema(tables []*Table, sampleRows int) string {
	parts := make([]string, len(tables))
	for i, t := range tables {
		parts[i] = t.Schema(sampleRows)
	}
	return strings.Join(parts, "\n")
}
