package compile

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/shipq/pgq/query"
)

// operator renders "<col> <op> <arg>".
type operator func(c *Context, s *scope, col string, arg any) (string, error)

var operators map[string]operator

// operators is filled in init to break the initialization cycle through
// the predicate compiler.
func init() {
	operators = map[string]operator{
		"equals": func(c *Context, s *scope, col string, arg any) (string, error) {
			if arg == nil {
				return col + " IS NULL", nil
			}
			return binary(c, s, col, "=", arg)
		},
		"not": func(c *Context, s *scope, col string, arg any) (string, error) {
			if arg == nil {
				return col + " IS NOT NULL", nil
			}
			return binary(c, s, col, "<>", arg)
		},
		"in": func(c *Context, s *scope, col string, arg any) (string, error) {
			return inOperator(c, s, col, arg, false)
		},
		"notIn": func(c *Context, s *scope, col string, arg any) (string, error) {
			return inOperator(c, s, col, arg, true)
		},
		"lt":  cmp("<"),
		"lte": cmp("<="),
		"gt":  cmp(">"),
		"gte": cmp(">="),
		"between": func(c *Context, s *scope, col string, arg any) (string, error) {
			bounds, ok := sliceOf(arg)
			if !ok || len(bounds) != 2 {
				return "", fmt.Errorf("between expects two values: %w", ErrInvalidQuery)
			}
			lo, err := c.valueSQL(s, bounds[0])
			if err != nil {
				return "", err
			}
			hi, err := c.valueSQL(s, bounds[1])
			if err != nil {
				return "", err
			}
			return col + " BETWEEN " + lo + " AND " + hi, nil
		},

		"contains":            like("ILIKE", "%", "%"),
		"containsSensitive":   like("LIKE", "%", "%"),
		"startsWith":          like("ILIKE", "", "%"),
		"startsWithSensitive": like("LIKE", "", "%"),
		"endsWith":            like("ILIKE", "%", ""),
		"endsWithSensitive":   like("LIKE", "%", ""),

		"and": cmp("AND"),
		"or":  cmp("OR"),

		"jsonPath": func(c *Context, s *scope, col string, arg any) (string, error) {
			p, ok := arg.(query.JSONPathArg)
			if !ok {
				return "", fmt.Errorf("jsonPath expects JSONPathArg, got %T: %w", arg, ErrInvalidQuery)
			}
			op := p.Op
			if op == "" {
				op = "="
			}
			if err := validateComparison(op); err != nil {
				return "", err
			}
			path := c.Encode(p.Path)
			val, err := c.valueSQL(s, p.Value)
			if err != nil {
				return "", err
			}
			return "jsonb_path_query_first(" + col + ", " + path + ") #>> '{}' " + op + " " + val, nil
		},
		"jsonSupersetOf": cmp("@>"),
		"jsonSubsetOf":   cmp("<@"),

		"has": func(c *Context, s *scope, col string, arg any) (string, error) {
			val, err := c.valueSQL(s, arg)
			if err != nil {
				return "", err
			}
			return val + " = ANY(" + col + ")", nil
		},
		"hasEvery":    cmp("@>"),
		"hasSome":     cmp("&&"),
		"containedIn": cmp("<@"),
		"length": func(c *Context, s *scope, col string, arg any) (string, error) {
			return binary(c, s, "COALESCE(array_length("+col+", 1), 0)", "=", arg)
		},
	}
}

var (
	baseOps    = []string{"equals", "not", "in", "notIn"}
	numericOps = append(baseOps[:len(baseOps):len(baseOps)], "lt", "lte", "gt", "gte", "between")
	textOps    = append(numericOps[:len(numericOps):len(numericOps)],
		"contains", "containsSensitive", "startsWith", "startsWithSensitive", "endsWith", "endsWithSensitive")
	booleanOps = append(baseOps[:len(baseOps):len(baseOps)], "and", "or")
	jsonOps    = append(baseOps[:len(baseOps):len(baseOps)], "jsonPath", "jsonSupersetOf", "jsonSubsetOf")
	arrayOps   = append(baseOps[:len(baseOps):len(baseOps)], "has", "hasEvery", "hasSome", "containedIn", "length")
)

var operatorSets = map[query.OperatorSet]map[string]bool{
	query.OpsBase:    setOf(baseOps),
	query.OpsNumeric: setOf(numericOps),
	query.OpsDate:    setOf(numericOps),
	query.OpsText:    setOf(textOps),
	query.OpsBoolean: setOf(booleanOps),
	query.OpsJSON:    setOf(jsonOps),
	query.OpsArray:   setOf(arrayOps),
}

func setOf(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// operator compiles one Ops entry after checking it against the column's
// operator set. Columns without a set accept every operator.
func (c *Context) operator(s *scope, def query.Column, col, op string, arg any) (string, error) {
	fn, ok := operators[op]
	if !ok {
		return "", fmt.Errorf("%q: %w", op, ErrUnknownOperator)
	}
	if def.Operators != "" && def.Operators != query.OpsAny {
		set, ok := operatorSets[def.Operators]
		if !ok || !set[op] {
			return "", fmt.Errorf("%q is not a %s operator: %w", op, def.Operators, ErrUnknownOperator)
		}
	}
	return fn(c, s, col, arg)
}

func binary(c *Context, s *scope, col, op string, arg any) (string, error) {
	val, err := c.valueSQL(s, arg)
	if err != nil {
		return "", err
	}
	return col + " " + op + " " + val, nil
}

func cmp(op string) operator {
	return func(c *Context, s *scope, col string, arg any) (string, error) {
		return binary(c, s, col, op, arg)
	}
}

func inOperator(c *Context, s *scope, col string, arg any, not bool) (string, error) {
	switch v := arg.(type) {
	case *query.Query:
		return c.inSQL(s, col, 1, query.In{Query: v, Not: not})
	case query.Raw:
		return c.inSQL(s, col, 1, query.In{Raw: &v, Not: not})
	}
	values, ok := sliceOf(arg)
	if !ok {
		return "", fmt.Errorf("in expects a list, got %T: %w", arg, ErrInvalidQuery)
	}
	if len(values) == 0 {
		if not {
			return "true", nil
		}
		return "false", nil
	}
	vals := make([]string, len(values))
	for i, v := range values {
		sql, err := c.valueSQL(s, v)
		if err != nil {
			return "", err
		}
		vals[i] = sql
	}
	op := " IN ("
	if not {
		op = " NOT IN ("
	}
	return col + op + strings.Join(vals, ", ") + ")", nil
}

func like(op, prefix, suffix string) operator {
	return func(c *Context, s *scope, col string, arg any) (string, error) {
		if str, ok := arg.(string); ok {
			return col + " " + op + " " + c.Encode(prefix+escapeLike(str)+suffix), nil
		}
		val, err := c.valueSQL(s, arg)
		if err != nil {
			return "", err
		}
		if prefix != "" {
			val = "'" + prefix + "' || " + val
		}
		if suffix != "" {
			val = val + " || '" + suffix + "'"
		}
		return col + " " + op + " " + val, nil
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// sliceOf converts any slice or array (except []byte) to []any.
func sliceOf(v any) ([]any, bool) {
	if vs, ok := v.([]any); ok {
		return vs, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
