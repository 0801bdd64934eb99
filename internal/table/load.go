package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// LoadError reports an upload that could not be turned into tables.
type LoadError struct {
	Msg string
	Err error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads tables from an uploaded file. Workbooks yield one table per
// sheet, CSV files a single table named after the file. When required is
// non-empty, only those sheets are loaded and each must exist.
func Load(filename string, r io.Reader, required []string) ([]*Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return LoadWorkbook(r, required)
	case ".csv":
		base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		t, err := LoadCSV(base, r)
		if err != nil {
			return nil, err
		}
		return []*Table{t}, nil
	case "":
		return nil, &LoadError{Msg: "uploaded file has no extension"}
	default:
		return nil, &LoadError{Msg: fmt.Sprintf("unsupported file type %q (expected .xlsx or .csv)", filepath.Ext(filename))}
	}
}

// LoadWorkbook reads sheets from an xlsx workbook.
func LoadWorkbook(r io.Reader, required []string) ([]*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &LoadError{Msg: "error reading workbook", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(required) > 0 {
		present := make(map[string]bool, len(sheets))
		for _, s := range sheets {
			present[s] = true
		}
		var missing []string
		for _, s := range required {
			if !present[s] {
				missing = append(missing, s)
			}
		}
		if len(missing) > 0 {
			return nil, &LoadError{Msg: fmt.Sprintf("workbook is missing required sheets: %s", strings.Join(missing, ", "))}
		}
		sheets = required
	}

	tables := make([]*Table, 0, len(sheets))
	seen := make(map[string]bool)
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, &LoadError{Msg: fmt.Sprintf("error reading sheet %q", sheet), Err: err}
		}
		name := Identifier(sheet)
		if seen[name] {
			return nil, &LoadError{Msg: fmt.Sprintf("sheet %q maps to duplicate table name %q", sheet, name)}
		}
		seen[name] = true
		t := FromRows(name, rows)
		t.Source = sheet
		tables = append(tables, t)
	}
	if len(tables) == 0 {
		return nil, &LoadError{Msg: "workbook contains no sheets"}
	}
	return tables, nil
}

// LoadCSV reads a single table from CSV text.
func LoadCSV(name string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, &LoadError{Msg: "error reading csv", Err: err}
	}
	if len(rows) == 0 {
		return nil, &LoadError{Msg: "csv file is empty"}
	}
	t := FromRows(Identifier(name), rows)
	t.Source = name
	return t, nil
}

// FromRows builds a table from raw text rows. The first row is the header;
// blank rows are skipped and ragged rows are padded with nulls. Each column
// keeps inferred numbers only when every non-empty cell parses as one.
func FromRows(name string, rows [][]string) *Table {
	var header []string
	var body [][]string
	for _, row := range rows {
		if blank(row) {
			continue
		}
		if header == nil {
			header = row
			continue
		}
		body = append(body, row)
	}

	width := len(header)
	for _, row := range body {
		if len(row) > width {
			width = len(row)
		}
	}

	names := columnNames(header, width)
	cols := make([]*Series, width)
	for j := 0; j < width; j++ {
		raw := make([]string, len(body))
		for i, row := range body {
			if j < len(row) {
				raw[i] = row[j]
			}
		}
		cols[j] = &Series{Name: names[j], Values: inferColumn(raw)}
	}
	return &Table{Name: name, Columns: cols}
}

// FromValues builds a table from typed rows, as sent in JSON requests. Rows
// shorter than the header are padded with nulls.
func FromValues(name string, columns []string, rows [][]interface{}) (*Table, error) {
	cols := make([]*Series, len(columns))
	for j, c := range columns {
		vals := make([]interface{}, len(rows))
		for i, row := range rows {
			if len(row) > len(columns) {
				return nil, &LoadError{Msg: fmt.Sprintf("table %q row %d has %d cells, expected %d", name, i, len(row), len(columns))}
			}
			if j < len(row) {
				vals[i] = row[j]
			}
		}
		cols[j] = NewSeries(c, vals)
	}
	t, err := New(name, cols...)
	if err != nil {
		return nil, &LoadError{Msg: fmt.Sprintf("invalid table %q", name), Err: err}
	}
	return t, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func columnNames(header []string, width int) []string {
	names := make([]string, width)
	used := make(map[string]int)
	for j := 0; j < width; j++ {
		n := ""
		if j < len(header) {
			n = strings.TrimSpace(header[j])
		}
		if n == "" {
			n = fmt.Sprintf("Unnamed: %d", j)
		}
		if count := used[n]; count > 0 {
			used[n]++
			n = fmt.Sprintf("%s.%d", n, count)
		} else {
			used[n] = 1
		}
		names[j] = n
	}
	return names
}

// inferColumn parses cells individually, then falls back to text for the
// whole column when numbers and text are mixed.
func inferColumn(raw []string) []interface{} {
	vals := make([]interface{}, len(raw))
	mixed := false
	var kind Kind = KindEmpty
	for i, s := range raw {
		v := ParseCell(s)
		vals[i] = v
		if v == nil {
			continue
		}
		k := KindString
		switch v.(type) {
		case float64:
			k = KindNumber
		case bool:
			k = KindBool
		}
		if kind == KindEmpty {
			kind = k
		} else if kind != k {
			mixed = true
		}
	}
	if !mixed {
		return vals
	}
	for i, s := range raw {
		if vals[i] != nil {
			vals[i] = strings.TrimSpace(s)
		}
	}
	return vals
}

var nonIdent = regexp.MustCompile(`[^a-z0-9]+`)

var reserved = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true, "continue": true,
	"debugger": true, "default": true, "delete": true, "do": true, "else": true, "enum": true,
	"export": true, "extends": true, "false": true, "finally": true, "for": true, "function": true,
	"if": true, "import": true, "in": true, "instanceof": true, "let": true, "new": true,
	"null": true, "return": true, "static": true, "super": true, "switch": true, "this": true,
	"throw": true, "true": true, "try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true, "yield": true, "await": true, "async": true,
}

// Identifier derives the binding name for a sheet: lower case, runs of
// other characters collapsed to underscores. Names that would not be
// valid script identifiers get a "t_" prefix.
func Identifier(sheet string) string {
	id := nonIdent.ReplaceAllString(strings.ToLower(sheet), "_")
	id = strings.Trim(id, "_")
	if id == "" {
		return "table"
	}
	if (id[0] >= '0' && id[0] <= '9') || reserved[id] {
		id = "t_" + id
	}
	return id
}

// IsLoadError reports whether err is a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
