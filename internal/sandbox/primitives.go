package sandbox

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dop251/goja"

	"github.com/BV-BRC/sheet-analyst/internal/table"
)

// primitives returns every callable the policy may allowlist.
func primitives(s *session) map[string]func(goja.FunctionCall) goja.Value {
	return map[string]func(goja.FunctionCall) goja.Value{
		"print": s.print,
		"len":   s.length,
		"round": s.round,
		"abs":   s.abs,
		"sum":   s.sum,
		"min":   s.extreme("min"),
		"max":   s.extreme("max"),
		"str":   s.str,
		"int":   s.toInt,
		"float": s.toFloat,
	}
}

func (s *session) print(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = format(s.export(arg), s.env.opts.RowLimit)
	}
	s.out.writeLine(strings.Join(parts, " "))
	return goja.Undefined()
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "NoneType"
	case float64:
		return "number"
	case string:
		return "str"
	case bool:
		return "bool"
	case *table.Table:
		return "table"
	case *table.Series:
		return "series"
	case []interface{}:
		return "list"
	case map[string]interface{}:
		return "dict"
	}
	return fmt.Sprintf("%T", v)
}

func (s *session) length(call goja.FunctionCall) goja.Value {
	switch x := s.export(call.Argument(0)).(type) {
	case *table.Table:
		return s.vm.ToValue(x.Len())
	case *table.Series:
		return s.vm.ToValue(x.Len())
	case string:
		return s.vm.ToValue(utf8.RuneCountInString(x))
	case []interface{}:
		return s.vm.ToValue(len(x))
	case map[string]interface{}:
		return s.vm.ToValue(len(x))
	default:
		s.throw("TypeError", fmt.Sprintf("object of type '%s' has no len()", typeName(x)))
	}
	return nil
}

func (s *session) round(call goja.FunctionCall) goja.Value {
	digits := s.intArg(call, 1, 0)
	switch x := s.export(call.Argument(0)).(type) {
	case float64:
		return s.vm.ToValue(table.RoundTo(x, digits))
	case *table.Series:
		return s.wrapSeries(x.Round(digits))
	case *table.Table:
		return s.wrapTable(x.Round(digits))
	case nil:
		return goja.Null()
	default:
		s.throw("TypeError", fmt.Sprintf("type %s doesn't define round()", typeName(x)))
	}
	return nil
}

func (s *session) abs(call goja.FunctionCall) goja.Value {
	switch x := s.export(call.Argument(0)).(type) {
	case float64:
		return s.vm.ToValue(math.Abs(x))
	case *table.Series:
		out := make([]interface{}, x.Len())
		for i, v := range x.Values {
			if f, ok := v.(float64); ok {
				out[i] = math.Abs(f)
			} else {
				out[i] = v
			}
		}
		return s.wrapSeries(&table.Series{Name: x.Name, Values: out})
	default:
		s.throw("TypeError", fmt.Sprintf("bad operand type for abs(): '%s'", typeName(x)))
	}
	return nil
}

func (s *session) sum(call goja.FunctionCall) goja.Value {
	switch x := s.export(call.Argument(0)).(type) {
	case *table.Series:
		return s.vm.ToValue(x.Sum())
	case []interface{}:
		total := 0.0
		for _, v := range x {
			f, ok := table.ToFloat(v)
			if !ok {
				s.throw("TypeError", fmt.Sprintf("unsupported operand type for sum(): '%s'", typeName(v)))
			}
			total += f
		}
		return s.vm.ToValue(total)
	default:
		s.throw("TypeError", fmt.Sprintf("'%s' object is not iterable", typeName(x)))
	}
	return nil
}

func (s *session) extreme(name string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var c *table.Series
		if len(call.Arguments) == 1 {
			switch x := s.export(call.Argument(0)).(type) {
			case *table.Series:
				c = x
			case []interface{}:
				c = table.NewSeries("", x)
			default:
				s.throw("TypeError", fmt.Sprintf("'%s' object is not iterable", typeName(x)))
			}
		} else {
			vals := make([]interface{}, len(call.Arguments))
			for i, arg := range call.Arguments {
				vals[i] = s.export(arg)
			}
			c = table.NewSeries("", vals)
		}
		if c.Count() == 0 {
			s.throw(errValueError, fmt.Sprintf("%s() arg is an empty sequence", name))
		}
		if name == "min" {
			return s.cell(c.Min())
		}
		return s.cell(c.Max())
	}
}

func (s *session) str(call goja.FunctionCall) goja.Value {
	return s.vm.ToValue(format(s.export(call.Argument(0)), s.env.opts.RowLimit))
}

func (s *session) toInt(call goja.FunctionCall) goja.Value {
	switch x := s.export(call.Argument(0)).(type) {
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			s.throw(errValueError, "cannot convert "+table.FormatNumber(x)+" to integer")
		}
		return s.vm.ToValue(math.Trunc(x))
	case bool:
		if x {
			return s.vm.ToValue(1)
		}
		return s.vm.ToValue(0)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			s.throw(errValueError, fmt.Sprintf("invalid literal for int() with base 10: '%s'", x))
		}
		return s.vm.ToValue(n)
	default:
		s.throw("TypeError", fmt.Sprintf("int() argument must be a string or a number, not '%s'", typeName(x)))
	}
	return nil
}

func (s *session) toFloat(call goja.FunctionCall) goja.Value {
	switch x := s.export(call.Argument(0)).(type) {
	case float64:
		return s.vm.ToValue(x)
	case bool:
		if x {
			return s.vm.ToValue(1.0)
		}
		return s.vm.ToValue(0.0)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			s.throw(errValueError, fmt.Sprintf("could not convert string to float: '%s'", x))
		}
		return s.vm.ToValue(f)
	default:
		s.throw("TypeError", fmt.Sprintf("float() argument must be a string or a number, not '%s'", typeName(x)))
	}
	return nil
}
