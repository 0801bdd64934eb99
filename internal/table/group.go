package table

import (
	"sort"
	"strings"
)

// GroupBy partitions a table by the values of one or more key columns.
// Rows with a null key are dropped; groups are ordered by key.
type GroupBy struct {
	table  *Table
	keys   []*Series
	groups []group
}

type group struct {
	key  []interface{}
	rows []int
}

// GroupBy partitions the table by the named columns.
func (t *Table) GroupBy(cols ...string) (*GroupBy, error) {
	if len(cols) == 0 {
		return nil, valueErrorf("groupby requires at least one column")
	}
	keys := make([]*Series, len(cols))
	for i, name := range cols {
		c, err := t.Col(name)
		if err != nil {
			return nil, err
		}
		keys[i] = c
	}

	byKey := make(map[string]int)
	var groups []group
	for row := 0; row < t.Len(); row++ {
		key := make([]interface{}, len(keys))
		parts := make([]string, len(keys))
		skip := false
		for i, k := range keys {
			v := k.Values[row]
			if IsNull(v) {
				skip = true
				break
			}
			key[i] = v
			parts[i] = Format(v)
		}
		if skip {
			continue
		}
		id := strings.Join(parts, "\x00")
		pos, ok := byKey[id]
		if !ok {
			pos = len(groups)
			byKey[id] = pos
			groups = append(groups, group{key: key})
		}
		groups[pos].rows = append(groups[pos].rows, row)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		for k := range groups[i].key {
			c, ok := Compare(groups[i].key[k], groups[j].key[k])
			if !ok || c == 0 {
				continue
			}
			return c < 0
		}
		return false
	})

	return &GroupBy{table: t, keys: keys, groups: groups}, nil
}

// Keys returns the key column names.
func (g *GroupBy) Keys() []string {
	names := make([]string, len(g.keys))
	for i, k := range g.keys {
		names[i] = k.Name
	}
	return names
}

// Table returns the grouped table.
func (g *GroupBy) Table() *Table {
	return g.table
}

// Len returns the number of groups.
func (g *GroupBy) Len() int {
	return len(g.groups)
}

func (g *GroupBy) keyColumns() []*Series {
	cols := make([]*Series, len(g.keys))
	for i, k := range g.keys {
		vals := make([]interface{}, len(g.groups))
		for j, grp := range g.groups {
			vals[j] = grp.key[i]
		}
		cols[i] = &Series{Name: k.Name, Values: vals}
	}
	return cols
}

// Size counts the rows in each group.
func (g *GroupBy) Size() *Table {
	vals := make([]interface{}, len(g.groups))
	for i, grp := range g.groups {
		vals[i] = float64(len(grp.rows))
	}
	cols := append(g.keyColumns(), &Series{Name: "size", Values: vals})
	return &Table{Name: g.table.Name, Columns: cols}
}

// Agg aggregates one value column per group. fn is one of mean, sum,
// count, min, max, median, std, nunique, first, last.
func (g *GroupBy) Agg(valueCol, fn string) (*Table, error) {
	col, err := g.table.Col(valueCol)
	if err != nil {
		return nil, err
	}
	reduce, err := reducer(fn)
	if err != nil {
		return nil, err
	}
	vals := make([]interface{}, len(g.groups))
	for i, grp := range g.groups {
		vals[i] = reduce(col.take(grp.rows))
	}
	cols := append(g.keyColumns(), &Series{Name: valueCol, Values: vals})
	return &Table{Name: g.table.Name, Columns: cols}, nil
}

// AggAll aggregates every non-key column that fn can reduce.
func (g *GroupBy) AggAll(fn string) (*Table, error) {
	reduce, err := reducer(fn)
	if err != nil {
		return nil, err
	}
	isKey := make(map[string]bool)
	for _, k := range g.keys {
		isKey[k.Name] = true
	}
	cols := g.keyColumns()
	for _, c := range g.table.Columns {
		if isKey[c.Name] {
			continue
		}
		if fn != "count" && fn != "nunique" && fn != "first" && fn != "last" && c.Kind() != KindNumber {
			continue
		}
		vals := make([]interface{}, len(g.groups))
		for i, grp := range g.groups {
			vals[i] = reduce(c.take(grp.rows))
		}
		cols = append(cols, &Series{Name: c.Name, Values: vals})
	}
	return &Table{Name: g.table.Name, Columns: cols}, nil
}

func reducer(fn string) (func(*Series) interface{}, error) {
	switch fn {
	case "mean":
		return func(s *Series) interface{} { return s.Mean() }, nil
	case "sum":
		return func(s *Series) interface{} { return s.Sum() }, nil
	case "count":
		return func(s *Series) interface{} { return float64(s.Count()) }, nil
	case "min":
		return func(s *Series) interface{} { return s.Min() }, nil
	case "max":
		return func(s *Series) interface{} { return s.Max() }, nil
	case "median":
		return func(s *Series) interface{} { return s.Median() }, nil
	case "std":
		return func(s *Series) interface{} { return s.Std() }, nil
	case "nunique":
		return func(s *Series) interface{} { return float64(s.NUnique()) }, nil
	case "first":
		return func(s *Series) interface{} {
			if s.Len() == 0 {
				return nil
			}
			return s.Values[0]
		}, nil
	case "last":
		return func(s *Series) interface{} {
			if s.Len() == 0 {
				return nil
			}
			return s.Values[s.Len()-1]
		}, nil
	}
	return nil, valueErrorf("unknown aggregation '%s'", fn)
}
