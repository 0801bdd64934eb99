package table

import (
	"math"
	"sort"
	"strings"
)

// Series is a named column of cells.
type Series struct {
	Name   string
	Values []interface{}
}

// NewSeries builds a series, normalizing the supplied values into cells.
func NewSeries(name string, values []interface{}) *Series {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = Normalize(v)
	}
	return &Series{Name: name, Values: cells}
}

// Len returns the number of cells.
func (s *Series) Len() int {
	return len(s.Values)
}

// Kind describes the cells a series holds.
type Kind string

const (
	KindNumber Kind = "number"
	KindString Kind = "string"
	KindBool   Kind = "bool"
	KindEmpty  Kind = "empty"
	KindMixed  Kind = "mixed"
)

// Kind inspects the non-null cells.
func (s *Series) Kind() Kind {
	kind := KindEmpty
	for _, v := range s.Values {
		var k Kind
		switch v.(type) {
		case nil:
			continue
		case float64:
			k = KindNumber
		case string:
			k = KindString
		case bool:
			k = KindBool
		default:
			return KindMixed
		}
		if kind == KindEmpty {
			kind = k
		} else if kind != k {
			return KindMixed
		}
	}
	return kind
}

func (s *Series) numbers() []float64 {
	out := make([]float64, 0, len(s.Values))
	for _, v := range s.Values {
		if f, ok := ToFloat(v); ok {
			out = append(out, f)
		}
	}
	return out
}

// Count returns the number of non-null cells.
func (s *Series) Count() int {
	n := 0
	for _, v := range s.Values {
		if !IsNull(v) {
			n++
		}
	}
	return n
}

// NullCount returns the number of missing cells.
func (s *Series) NullCount() int {
	return s.Len() - s.Count()
}

// Max returns the largest non-null cell, or nil.
func (s *Series) Max() interface{} {
	return s.extreme(1)
}

// Min returns the smallest non-null cell, or nil.
func (s *Series) Min() interface{} {
	return s.extreme(-1)
}

func (s *Series) extreme(sign int) interface{} {
	var best interface{}
	for _, v := range s.Values {
		if IsNull(v) {
			continue
		}
		if best == nil {
			best = v
			continue
		}
		if c, ok := Compare(v, best); ok && c*sign > 0 {
			best = v
		}
	}
	return best
}

// Sum adds the numeric cells. Booleans count as 0/1, so a mask sums to the
// number of true cells.
func (s *Series) Sum() float64 {
	total := 0.0
	for _, f := range s.numbers() {
		total += f
	}
	return total
}

// Mean returns the arithmetic mean of numeric cells, or nil when there are none.
func (s *Series) Mean() interface{} {
	nums := s.numbers()
	if len(nums) == 0 {
		return nil
	}
	total := 0.0
	for _, f := range nums {
		total += f
	}
	return total / float64(len(nums))
}

// Median returns the median of numeric cells, or nil.
func (s *Series) Median() interface{} {
	return s.Quantile(0.5)
}

// Quantile returns the q-th quantile with linear interpolation, or nil.
func (s *Series) Quantile(q float64) interface{} {
	nums := s.numbers()
	if len(nums) == 0 {
		return nil
	}
	sort.Float64s(nums)
	pos := q * float64(len(nums)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return nums[lo]
	}
	frac := pos - float64(lo)
	return nums[lo] + (nums[hi]-nums[lo])*frac
}

// Std returns the sample standard deviation (ddof=1), or nil.
func (s *Series) Std() interface{} {
	nums := s.numbers()
	if len(nums) < 2 {
		return nil
	}
	mean := 0.0
	for _, f := range nums {
		mean += f
	}
	mean /= float64(len(nums))
	sq := 0.0
	for _, f := range nums {
		sq += (f - mean) * (f - mean)
	}
	return math.Sqrt(sq / float64(len(nums)-1))
}

// Unique returns distinct non-null cells in first-seen order.
func (s *Series) Unique() []interface{} {
	seen := make(map[interface{}]bool)
	out := make([]interface{}, 0)
	for _, v := range s.Values {
		if IsNull(v) || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// NUnique counts distinct non-null cells.
func (s *Series) NUnique() int {
	return len(s.Unique())
}

// ValueCounts returns a two column table of distinct values and their
// frequency, most frequent first. Ties keep first-seen order.
func (s *Series) ValueCounts() *Table {
	counts := make(map[interface{}]int)
	order := make([]interface{}, 0)
	for _, v := range s.Values {
		if IsNull(v) {
			continue
		}
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		counts[v]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	keys := make([]interface{}, len(order))
	freq := make([]interface{}, len(order))
	for i, v := range order {
		keys[i] = v
		freq[i] = float64(counts[v])
	}
	name := s.Name
	if name == "" {
		name = "value"
	}
	return &Table{
		Name:    name,
		Columns: []*Series{{Name: name, Values: keys}, {Name: "count", Values: freq}},
	}
}

// Head returns the first n cells.
func (s *Series) Head(n int) *Series {
	if n < 0 {
		n = 0
	}
	if n > s.Len() {
		n = s.Len()
	}
	return &Series{Name: s.Name, Values: append([]interface{}(nil), s.Values[:n]...)}
}

// Tail returns the last n cells.
func (s *Series) Tail(n int) *Series {
	if n < 0 {
		n = 0
	}
	if n > s.Len() {
		n = s.Len()
	}
	return &Series{Name: s.Name, Values: append([]interface{}(nil), s.Values[s.Len()-n:]...)}
}

// Sorted returns the series ordered by value; nulls go last.
func (s *Series) Sorted(ascending bool) *Series {
	idx := sortIndex(s, ascending)
	return s.take(idx)
}

func (s *Series) take(idx []int) *Series {
	out := make([]interface{}, len(idx))
	for i, j := range idx {
		out[i] = s.Values[j]
	}
	return &Series{Name: s.Name, Values: out}
}

// Frame wraps the series as a single column table.
func (s *Series) Frame() *Table {
	name := s.Name
	if name == "" {
		name = "value"
	}
	return &Table{Name: name, Columns: []*Series{{Name: name, Values: s.Values}}}
}

// Compare builds a boolean mask by comparing every cell against v with one
// of ==, !=, >, >=, <, <=. Null cells never match (except for !=).
func (s *Series) Compare(op string, v interface{}) (*Series, error) {
	test, err := comparator(op)
	if err != nil {
		return nil, err
	}
	v = Normalize(v)
	out := make([]interface{}, s.Len())
	for i, cell := range s.Values {
		c, ok := Compare(cell, v)
		if !ok {
			out[i] = op == "!=" || op == "ne"
			continue
		}
		out[i] = test(c)
	}
	return &Series{Name: s.Name, Values: out}, nil
}

func comparator(op string) (func(int) bool, error) {
	switch op {
	case "==", "===", "eq":
		return func(c int) bool { return c == 0 }, nil
	case "!=", "!==", "ne":
		return func(c int) bool { return c != 0 }, nil
	case ">", "gt":
		return func(c int) bool { return c > 0 }, nil
	case ">=", "ge":
		return func(c int) bool { return c >= 0 }, nil
	case "<", "lt":
		return func(c int) bool { return c < 0 }, nil
	case "<=", "le":
		return func(c int) bool { return c <= 0 }, nil
	}
	return nil, valueErrorf("unknown comparison operator '%s'", op)
}

// Between marks cells within [lo, hi].
func (s *Series) Between(lo, hi interface{}) *Series {
	lo, hi = Normalize(lo), Normalize(hi)
	out := make([]interface{}, s.Len())
	for i, cell := range s.Values {
		a, okA := Compare(cell, lo)
		b, okB := Compare(cell, hi)
		out[i] = okA && okB && a >= 0 && b <= 0
	}
	return &Series{Name: s.Name, Values: out}
}

// IsIn marks cells equal to any of the candidates.
func (s *Series) IsIn(candidates []interface{}) *Series {
	norm := make([]interface{}, len(candidates))
	for i, c := range candidates {
		norm[i] = Normalize(c)
	}
	out := make([]interface{}, s.Len())
	for i, cell := range s.Values {
		match := false
		for _, c := range norm {
			if Equal(cell, c) {
				match = true
				break
			}
		}
		out[i] = match
	}
	return &Series{Name: s.Name, Values: out}
}

// IsNull marks missing cells.
func (s *Series) IsNull() *Series {
	out := make([]interface{}, s.Len())
	for i, cell := range s.Values {
		out[i] = IsNull(cell)
	}
	return &Series{Name: s.Name, Values: out}
}

// NotNull marks present cells.
func (s *Series) NotNull() *Series {
	return s.IsNull().Not()
}

// Not inverts a mask.
func (s *Series) Not() *Series {
	out := make([]interface{}, s.Len())
	for i, cell := range s.Values {
		b, _ := cell.(bool)
		out[i] = !b
	}
	return &Series{Name: s.Name, Values: out}
}

// And combines two masks cell by cell.
func (s *Series) And(o *Series) (*Series, error) {
	return s.combine(o, func(a, b bool) bool { return a && b })
}

// Or combines two masks cell by cell.
func (s *Series) Or(o *Series) (*Series, error) {
	return s.combine(o, func(a, b bool) bool { return a || b })
}

func (s *Series) combine(o *Series, f func(a, b bool) bool) (*Series, error) {
	if o.Len() != s.Len() {
		return nil, valueErrorf("cannot combine masks of length %d and %d", s.Len(), o.Len())
	}
	out := make([]interface{}, s.Len())
	for i := range s.Values {
		a, _ := s.Values[i].(bool)
		b, _ := o.Values[i].(bool)
		out[i] = f(a, b)
	}
	return &Series{Name: s.Name, Values: out}, nil
}

// IsMask reports whether every cell is a boolean.
func (s *Series) IsMask() bool {
	for _, v := range s.Values {
		if _, ok := v.(bool); !ok {
			return false
		}
	}
	return true
}

// Arith applies +, -, *, / against another series of equal length or a
// scalar. Non-numeric operands yield null cells.
func (s *Series) Arith(op string, other interface{}) (*Series, error) {
	var f func(a, b float64) float64
	switch op {
	case "+", "add":
		f = func(a, b float64) float64 { return a + b }
	case "-", "sub":
		f = func(a, b float64) float64 { return a - b }
	case "*", "mul":
		f = func(a, b float64) float64 { return a * b }
	case "/", "div":
		f = func(a, b float64) float64 { return a / b }
	default:
		return nil, valueErrorf("unknown arithmetic operator '%s'", op)
	}

	operand := func(int) interface{} { return Normalize(other) }
	if o, ok := other.(*Series); ok {
		if o.Len() != s.Len() {
			return nil, valueErrorf("cannot combine series of length %d and %d", s.Len(), o.Len())
		}
		operand = func(i int) interface{} { return o.Values[i] }
	}

	out := make([]interface{}, s.Len())
	for i, cell := range s.Values {
		a, okA := ToFloat(cell)
		b, okB := ToFloat(operand(i))
		if !okA || !okB {
			out[i] = nil
			continue
		}
		r := f(a, b)
		if math.IsNaN(r) {
			out[i] = nil
		} else {
			out[i] = r
		}
	}
	return &Series{Name: s.Name, Values: out}, nil
}

// Round rounds numeric cells to the given number of decimals.
func (s *Series) Round(decimals int) *Series {
	out := make([]interface{}, s.Len())
	for i, cell := range s.Values {
		if f, ok := cell.(float64); ok {
			out[i] = RoundTo(f, decimals)
		} else {
			out[i] = cell
		}
	}
	return &Series{Name: s.Name, Values: out}
}

// RoundTo rounds half away from zero at the given number of decimals.
func RoundTo(f float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(f*p) / p
}

// StringOp applies a string predicate or transform to string cells.
// Predicates (contains, startswith, endswith) return a mask; transforms
// (lower, upper, strip, len) return a new series.
func (s *Series) StringOp(op, arg string) (*Series, error) {
	out := make([]interface{}, s.Len())
	for i, cell := range s.Values {
		str, ok := cell.(string)
		switch op {
		case "contains":
			out[i] = ok && strings.Contains(str, arg)
		case "startswith":
			out[i] = ok && strings.HasPrefix(str, arg)
		case "endswith":
			out[i] = ok && strings.HasSuffix(str, arg)
		case "lower", "upper", "strip", "len":
			if !ok {
				out[i] = nil
				continue
			}
			switch op {
			case "lower":
				out[i] = strings.ToLower(str)
			case "upper":
				out[i] = strings.ToUpper(str)
			case "strip":
				out[i] = strings.TrimSpace(str)
			default:
				out[i] = float64(len([]rune(str)))
			}
		default:
			return nil, valueErrorf("unknown string operation '%s'", op)
		}
	}
	return &Series{Name: s.Name, Values: out}, nil
}

// sortIndex returns row positions ordered by cell value with nulls last.
// The sort is stable.
func sortIndex(s *Series, ascending bool) []int {
	idx := make([]int, s.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := s.Values[idx[i]], s.Values[idx[j]]
		if IsNull(a) || IsNull(b) {
			return !IsNull(a) && IsNull(b)
		}
		c, ok := Compare(a, b)
		if !ok {
			return false
		}
		if ascending {
			return c < 0
		}
		return c > 0
	})
	return idx
}
