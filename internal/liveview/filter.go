package liveview

import (
	"fmt"
	"regexp"
	"strings"
)

// Op is a closed enumeration of filter operators. Conditions are validated
// at construction time, so an unknown operator can never reach the
// reconciliation path.
type Op int

const (
	OpEq Op = iota
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
	OpLike
	OpILike
	OpIs
	OpIn
)

var opNames = map[Op]string{
	OpEq:    "eq",
	OpNeq:   "neq",
	OpGt:    "gt",
	OpGte:   "gte",
	OpLt:    "lt",
	OpLte:   "lte",
	OpLike:  "like",
	OpILike: "ilike",
	OpIs:    "is",
	OpIn:    "in",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Condition is one (field, operator, operand) triple. A row matches when
// the named field's current value satisfies the operator against the
// operand.
type Condition struct {
	Field   string
	Op      Op
	Operand any
}

// FilterSpec is an ordered AND-list of conditions. An empty spec matches
// every row.
type FilterSpec []Condition

// evalFunc reports whether a row value satisfies an operand.
type evalFunc func(value, operand any) bool

// evalTable is the fixed dispatch table for the closed operator set.
var evalTable = map[Op]evalFunc{
	OpEq:    evalEq,
	OpNeq:   func(v, o any) bool { return !evalEq(v, o) },
	OpGt:    comparison(func(c int) bool { return c > 0 }),
	OpGte:   comparison(func(c int) bool { return c >= 0 }),
	OpLt:    comparison(func(c int) bool { return c < 0 }),
	OpLte:   comparison(func(c int) bool { return c <= 0 }),
	OpLike:  func(v, o any) bool { return evalLike(v, o, false) },
	OpILike: func(v, o any) bool { return evalLike(v, o, true) },
	OpIs:    evalIs,
	OpIn:    evalIn,
}

// Validate checks every condition uses a known operator and a non-empty
// field name.
func (f FilterSpec) Validate() error {
	for i, c := range f {
		if c.Field == "" {
			return fmt.Errorf("liveview: filter condition %d has empty field", i)
		}
		if _, ok := evalTable[c.Op]; !ok {
			return fmt.Errorf("liveview: filter condition %d has unknown operator %v", i, c.Op)
		}
	}
	return nil
}

// Matches reports whether row satisfies every condition.
func (f FilterSpec) Matches(row Row) bool {
	for _, c := range f {
		eval, ok := evalTable[c.Op]
		if !ok {
			return false
		}
		if !eval(row[c.Field], c.Operand) {
			return false
		}
	}
	return true
}

func evalEq(value, operand any) bool {
	if value == nil || operand == nil {
		return value == nil && operand == nil
	}
	if c, ok := compareValues(value, operand); ok {
		return c == 0
	}
	return false
}

func comparison(accept func(int) bool) evalFunc {
	return func(value, operand any) bool {
		if value == nil || operand == nil {
			return false
		}
		c, ok := compareValues(value, operand)
		return ok && accept(c)
	}
}

// evalIs mirrors SQL IS: operand nil matches a null value, operand
// true/false matches a boolean value exactly.
func evalIs(value, operand any) bool {
	if operand == nil {
		return value == nil
	}
	want, ok := operand.(bool)
	if !ok {
		return false
	}
	got, ok := value.(bool)
	return ok && got == want
}

func evalIn(value, operand any) bool {
	set, ok := toSlice(operand)
	if !ok {
		return false
	}
	for _, candidate := range set {
		if evalEq(value, candidate) {
			return true
		}
	}
	return false
}

func evalLike(value, operand any, foldCase bool) bool {
	subject, ok := value.(string)
	if !ok {
		return false
	}
	pattern, ok := operand.(string)
	if !ok {
		return false
	}
	re, err := likeRegexp(pattern, foldCase)
	if err != nil {
		return false
	}
	return re.MatchString(subject)
}

// likeRegexp translates a SQL LIKE pattern (% and _ wildcards) into an
// anchored regular expression.
func likeRegexp(pattern string, foldCase bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if foldCase {
		b.WriteString("(?i)")
	}
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func toSlice(operand any) ([]any, bool) {
	switch s := operand.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, v := range s {
			out[i] = v
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i, v := range s {
			out[i] = v
		}
		return out, true
	case []int64:
		out := make([]any, len(s))
		for i, v := range s {
			out[i] = v
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i, v := range s {
			out[i] = v
		}
		return out, true
	default:
		return nil, false
	}
}
