package remote

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Op is a filter operator.
type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
	OpIn      Op = "in"
)

// Filter is a single column predicate. Value is ignored for the null
// operators and must be a slice for OpIn.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

func Eq(col string, v any) Filter  { return Filter{Column: col, Op: OpEq, Value: v} }
func Neq(col string, v any) Filter { return Filter{Column: col, Op: OpNeq, Value: v} }
func Gt(col string, v any) Filter  { return Filter{Column: col, Op: OpGt, Value: v} }
func Lt(col string, v any) Filter  { return Filter{Column: col, Op: OpLt, Value: v} }
func In(col string, v any) Filter  { return Filter{Column: col, Op: OpIn, Value: v} }
func IsNull(col string) Filter     { return Filter{Column: col, Op: OpIsNull} }
func NotNull(col string) Filter    { return Filter{Column: col, Op: OpNotNull} }

func (f Filter) String() string {
	switch f.Op {
	case OpIsNull, OpNotNull:
		return fmt.Sprintf("%s %s", f.Column, f.Op)
	}
	return fmt.Sprintf("%s %s %v", f.Column, f.Op, f.Value)
}

// Order sorts by one column.
type Order struct {
	Column string
	Desc   bool
}

func Asc(col string) Order  { return Order{Column: col} }
func Desc(col string) Order { return Order{Column: col, Desc: true} }

// Query selects rows matching every filter. Limit <= 0 means no limit.
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
}

// Where returns a query with only filters set.
func Where(filters ...Filter) Query { return Query{Filters: filters} }

// Match reports whether row satisfies every filter.
func Match(filters []Filter, row Row) bool {
	for _, f := range filters {
		if !f.Match(row) {
			return false
		}
	}
	return true
}

// Match evaluates f against row in process, with the same semantics the
// Postgres adapter gives the predicate. Timestamps compare as instants
// whether they arrive as time.Time or RFC 3339 strings.
func (f Filter) Match(row Row) bool {
	v, ok := row[f.Column]
	switch f.Op {
	case OpIsNull:
		return !ok || v == nil
	case OpNotNull:
		return ok && v != nil
	}
	if !ok || v == nil {
		return false
	}

	switch f.Op {
	case OpEq:
		c, ok := Compare(v, f.Value)
		return ok && c == 0
	case OpNeq:
		c, ok := Compare(v, f.Value)
		return !ok || c != 0
	case OpGt, OpGte, OpLt, OpLte:
		c, ok := Compare(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpGt:
			return c > 0
		case OpGte:
			return c >= 0
		case OpLt:
			return c < 0
		default:
			return c <= 0
		}
	case OpIn:
		rv := reflect.ValueOf(f.Value)
		if rv.Kind() != reflect.Slice {
			return false
		}
		for i := 0; i < rv.Len(); i++ {
			if c, ok := Compare(v, rv.Index(i).Interface()); ok && c == 0 {
				return true
			}
		}
	}
	return false
}

// Compare orders two scalar values. ok is false when they are not
// comparable.
func Compare(a, b any) (int, bool) {
	a, b = normalize(a), normalize(b)
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
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
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if x == y {
			return 0, true
		}
		if !x {
			return -1, true
		}
		return 1, true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	}
	return 0, false
}

func normalize(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t
		}
		return x
	case fmt.Stringer:
		return normalize(x.String())
	case bool:
		return x
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	}
	return fmt.Sprint(v)
}
