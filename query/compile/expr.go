package compile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitranim/sqlp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/shipq/pgq/query"
)

// valueSQL renders v in a value position. Exprs and sub-queries are
// inlined, everything else is bound.
func (c *Context) valueSQL(s *scope, v any) (string, error) {
	switch x := v.(type) {
	case query.Expr:
		return c.exprSQL(s, x)
	case orb.Geometry:
		return c.geometry(x)
	}
	return c.Encode(v), nil
}

// geometry binds a geometry as WKB.
func (c *Context) geometry(g orb.Geometry) (string, error) {
	data, err := wkb.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("encode %s as WKB: %w", g.GeoJSONType(), err)
	}
	return "ST_GeomFromWKB(" + c.Encode(data) + ")", nil
}

func (c *Context) exprSQL(s *scope, e query.Expr) (string, error) {
	switch x := e.(type) {
	case query.Raw:
		return c.raw(s, x)
	case *query.Raw:
		return c.raw(s, *x)
	case query.Ref:
		sql, _, err := c.column(s, string(x))
		return sql, err
	case query.Value:
		if g, ok := x.V.(orb.Geometry); ok {
			return c.geometry(g)
		}
		return c.Encode(x.V), nil
	case query.Fn:
		return c.fn(s, x)
	case query.Excluded:
		name := string(x)
		if s != nil && s.shape.Declared() {
			def, ok := s.shape.Get(name)
			if !ok {
				return "", fmt.Errorf("excluded %q: %w", name, ErrUnknownColumn)
			}
			name = def.Physical()
		}
		return "excluded." + quote(name), nil
	case *query.Query:
		var b strings.Builder
		if err := c.subquery(&b, x, c.keyReturning(x)); err != nil {
			return "", err
		}
		return "(" + b.String() + ")", nil
	}
	if e == query.Default {
		return "DEFAULT", nil
	}
	return "", fmt.Errorf("unsupported expression %T: %w", e, ErrInvalidQuery)
}

func (c *Context) fn(s *scope, f query.Fn) (string, error) {
	if err := validateFunction(f.Name); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteString("(")
	if f.Distinct {
		b.WriteString("DISTINCT ")
	}
	if f.Star {
		b.WriteString("*")
	}
	for i, arg := range f.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		sql, err := c.exprSQL(s, arg)
		if err != nil {
			return "", fmt.Errorf("%s argument %d: %w", f.Name, i+1, err)
		}
		b.WriteString(sql)
	}
	if len(f.Order) > 0 {
		order, err := c.orderList(s, f.Order)
		if err != nil {
			return "", err
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	}
	b.WriteString(")")

	if len(f.Filter) > 0 {
		pred, err := c.predicate(s, f.Filter, nil)
		if err != nil {
			return "", err
		}
		b.WriteString(" FILTER (WHERE ")
		b.WriteString(pred.sql)
		b.WriteString(")")
	}
	if f.Over != nil {
		b.WriteString(" OVER ")
		if f.Over.Name != "" && len(f.Over.PartitionBy) == 0 && len(f.Over.Order) == 0 {
			b.WriteString(quote(f.Over.Name))
		} else {
			spec, err := c.windowSpec(s, *f.Over)
			if err != nil {
				return "", err
			}
			b.WriteString(spec)
		}
	}
	return b.String(), nil
}

func (c *Context) windowSpec(s *scope, w query.WindowSpec) (string, error) {
	var parts []string
	if len(w.PartitionBy) > 0 {
		cols := make([]string, len(w.PartitionBy))
		for i, name := range w.PartitionBy {
			sql, _, err := c.column(s, name)
			if err != nil {
				return "", err
			}
			cols[i] = sql
		}
		parts = append(parts, "PARTITION BY "+strings.Join(cols, ", "))
	}
	if len(w.Order) > 0 {
		order, err := c.orderList(s, w.Order)
		if err != nil {
			return "", err
		}
		parts = append(parts, "ORDER BY "+order)
	}
	return "(" + strings.Join(parts, " ") + ")", nil
}

func (c *Context) orderList(s *scope, items []query.OrderItem) (string, error) {
	out := make([]string, len(items))
	for i, it := range items {
		var sql string
		var err error
		if it.Expr != nil {
			sql, err = c.exprSQL(s, it.Expr)
		} else {
			sql, _, err = c.column(s, it.Column)
		}
		if err != nil {
			return "", fmt.Errorf("order: %w", err)
		}
		if it.Desc {
			sql += " DESC"
		}
		switch strings.ToUpper(it.Nulls) {
		case "":
		case "FIRST":
			sql += " NULLS FIRST"
		case "LAST":
			sql += " NULLS LAST"
		default:
			return "", fmt.Errorf("order nulls %q: %w", it.Nulls, ErrInvalidQuery)
		}
		out[i] = sql
	}
	return strings.Join(out, ", "), nil
}

// raw inlines a SQL fragment, renumbering its $n and :name parameters into
// the statement's bind list. Repeated parameters share one placeholder.
func (c *Context) raw(s *scope, r query.Raw) (string, error) {
	tokenizer := sqlp.Tokenizer{Source: r.SQL}
	ordinals := map[int]string{}
	named := map[string]string{}
	var out []byte

	for {
		node := tokenizer.Next()
		if node == nil {
			break
		}

		switch node := node.(type) {
		case sqlp.NodeOrdinalParam:
			index := node.Index()
			if index < 0 || index >= len(r.Args) {
				return "", fmt.Errorf("raw sql %q: parameter %v has no argument: %w", r.SQL, node, ErrInvalidQuery)
			}
			ph, ok := ordinals[index]
			if !ok {
				var err error
				ph, err = c.valueSQL(s, r.Args[index])
				if err != nil {
					return "", err
				}
				ordinals[index] = ph
			}
			out = append(out, ph...)

		case sqlp.NodeNamedParam:
			key := string(node)
			ph, ok := named[key]
			if !ok {
				arg, found := r.Named[key]
				if !found {
					return "", fmt.Errorf("raw sql %q: missing named argument %q: %w", r.SQL, key, ErrInvalidQuery)
				}
				var err error
				ph, err = c.valueSQL(s, arg)
				if err != nil {
					return "", err
				}
				named[key] = ph
			}
			out = append(out, ph...)

		default:
			node.Append(&out)
		}
	}

	if len(ordinals) != len(r.Args) {
		return "", fmt.Errorf("raw sql %q: %d arguments for %d parameters: %w", r.SQL, len(r.Args), len(ordinals), ErrInvalidQuery)
	}
	return string(out), nil
}

// inlineParams replaces $n placeholders with literals, for statements
// PostgreSQL does not accept parameters in.
func inlineParams(text string, values []any) (string, error) {
	tokenizer := sqlp.Tokenizer{Source: text}
	var out []byte
	for {
		node := tokenizer.Next()
		if node == nil {
			break
		}
		ord, ok := node.(sqlp.NodeOrdinalParam)
		if !ok {
			node.Append(&out)
			continue
		}
		index := ord.Index()
		if index < 0 || index >= len(values) {
			return "", fmt.Errorf("placeholder %v out of range: %w", ord, ErrInvalidQuery)
		}
		lit, err := literal(values[index])
		if err != nil {
			return "", err
		}
		out = append(out, lit...)
	}
	return string(out), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
