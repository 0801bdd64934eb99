package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// A cell is one of float64, string, bool or nil (missing).

// KeyError reports a reference to a column that does not exist.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("column '%s' not found", e.Key)
}

// ValueError reports an operation applied to unsuitable data.
type ValueError struct {
	Msg string
}

func (e *ValueError) Error() string {
	return e.Msg
}

func valueErrorf(format string, args ...interface{}) error {
	return &ValueError{Msg: fmt.Sprintf(format, args...)}
}

// ToFloat returns the numeric value of a cell. Booleans count as 0/1.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Normalize coerces Go values from callers into cell values.
func Normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(n) {
			return nil
		}
		return n
	case float32, int, int64, int32:
		f, _ := ToFloat(n)
		return f
	case string, bool:
		return n
	default:
		return fmt.Sprint(n)
	}
}

// IsNull reports whether a cell is missing.
func IsNull(v interface{}) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return true
	}
	return false
}

// Compare orders two non-null cells of the same kind. ok is false when the
// cells are not comparable (different kinds or a null).
func Compare(a, b interface{}) (int, bool) {
	if IsNull(a) || IsNull(b) {
		return 0, false
	}
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// Equal reports cell equality. Nulls are never equal to anything.
func Equal(a, b interface{}) bool {
	c, ok := Compare(a, b)
	return ok && c == 0
}

// Format renders a cell the way result tables and scalar results show it.
func Format(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return "NaN"
	case float64:
		return FormatNumber(n)
	case bool:
		if n {
			return "True"
		}
		return "False"
	case string:
		return n
	default:
		return fmt.Sprint(n)
	}
}

// FormatNumber prints integral values without a decimal point and everything
// else in the shortest exact form.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ParseCell infers a cell from spreadsheet text.
func ParseCell(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return nil
	}
	if b, ok := parseBool(s); ok {
		return b
	}
	if f, ok := parseNumber(s); ok {
		return f
	}
	return s
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "TRUE", "True", "true":
		return true, true
	case "FALSE", "False", "false":
		return false, true
	}
	return false, false
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
