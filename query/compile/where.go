package compile

import (
	"fmt"
	"strings"

	"github.com/shipq/pgq/query"
)

// pred is a compiled boolean expression. or is set when the top-level
// operator is OR, so callers know to parenthesize before ANDing.
type pred struct {
	sql string
	or  bool
}

func (p pred) empty() bool { return p.sql == "" }

// and combines p with more terms.
func (p pred) and(terms ...string) pred {
	var all []string
	if !p.empty() {
		if p.or && len(terms) > 0 {
			all = append(all, "("+p.sql+")")
		} else {
			all = append(all, p.sql)
		}
	}
	for _, t := range terms {
		if t != "" {
			all = append(all, t)
		}
	}
	return pred{sql: strings.Join(all, " AND "), or: p.or && len(all) == 1}
}

// predicate compiles the AND-group and OR-ed with each of the or groups.
func (c *Context) predicate(s *scope, and []query.Where, or [][]query.Where) (pred, error) {
	var branches [][]string
	if len(and) > 0 {
		terms, err := c.terms(s, and)
		if err != nil {
			return pred{}, err
		}
		if len(terms) > 0 {
			branches = append(branches, terms)
		}
	}
	for _, group := range or {
		terms, err := c.terms(s, group)
		if err != nil {
			return pred{}, err
		}
		if len(terms) > 0 {
			branches = append(branches, terms)
		}
	}
	return joinBranches(branches), nil
}

func joinBranches(branches [][]string) pred {
	switch len(branches) {
	case 0:
		return pred{}
	case 1:
		return pred{sql: strings.Join(branches[0], " AND ")}
	}
	parts := make([]string, len(branches))
	for i, terms := range branches {
		if len(terms) > 1 {
			parts[i] = "(" + strings.Join(terms, " AND ") + ")"
		} else {
			parts[i] = terms[0]
		}
	}
	return pred{sql: strings.Join(parts, " OR "), or: true}
}

// terms compiles a list of sibling nodes into AND-ed terms.
func (c *Context) terms(s *scope, list []query.Where) ([]string, error) {
	var out []string
	for _, w := range list {
		ts, err := c.node(s, w)
		if err != nil {
			return nil, err
		}
		out = append(out, ts...)
	}
	return out, nil
}

func (c *Context) node(s *scope, w query.Where) ([]string, error) {
	switch n := w.(type) {
	case query.Cols:
		return c.cols(s, n)

	case query.Raw:
		sql, err := c.raw(s, n)
		if err != nil {
			return nil, err
		}
		return []string{sql}, nil

	case query.Not:
		terms, err := c.terms(s, n)
		if err != nil || len(terms) == 0 {
			return nil, err
		}
		return []string{"NOT (" + strings.Join(terms, " AND ") + ")"}, nil

	case query.Or:
		p, err := c.predicate(s, nil, n)
		if err != nil || p.empty() {
			return nil, err
		}
		if p.or {
			return []string{"(" + p.sql + ")"}, nil
		}
		return []string{p.sql}, nil

	case query.Group:
		p, err := c.predicate(s, n.And, n.Or)
		if err != nil || p.empty() {
			return nil, err
		}
		return []string{"(" + p.sql + ")"}, nil

	case query.In:
		sql, err := c.in(s, n)
		if err != nil {
			return nil, err
		}
		return []string{sql}, nil

	case query.Exists:
		sql, err := c.exists(s, n)
		if err != nil {
			return nil, err
		}
		return []string{sql}, nil

	case query.On:
		if err := validateComparison(n.Op); err != nil {
			return nil, err
		}
		left, _, err := c.column(s, n.Left)
		if err != nil {
			return nil, err
		}
		right, _, err := c.column(s, n.Right)
		if err != nil {
			return nil, err
		}
		return []string{left + " " + n.Op + " " + right}, nil

	case query.OnJSONPathEquals:
		left, _, err := c.column(s, n.Left)
		if err != nil {
			return nil, err
		}
		right, _, err := c.column(s, n.Right)
		if err != nil {
			return nil, err
		}
		return []string{
			"jsonb_path_query_first(" + left + ", " + c.Encode(n.LeftPath) + ") = " +
				"jsonb_path_query_first(" + right + ", " + c.Encode(n.RightPath) + ")",
		}, nil

	case query.Compare:
		if err := validateComparison(n.Op); err != nil {
			return nil, err
		}
		left, err := c.exprSQL(s, n.Left)
		if err != nil {
			return nil, err
		}
		right, err := c.valueSQL(s, n.Right)
		if err != nil {
			return nil, err
		}
		return []string{left + " " + n.Op + " " + right}, nil
	}
	return nil, fmt.Errorf("unsupported predicate %T: %w", w, ErrInvalidQuery)
}

// cols compiles a column→condition map in sorted key order.
func (c *Context) cols(s *scope, m query.Cols) ([]string, error) {
	var out []string
	for _, key := range sortedKeys(m) {
		col, def, err := c.column(s, key)
		if err != nil {
			return nil, err
		}
		switch v := m[key].(type) {
		case nil:
			out = append(out, col+" IS NULL")
		case query.Ops:
			for _, op := range sortedKeys(v) {
				sql, err := c.operator(s, def, col, op, v[op])
				if err != nil {
					return nil, fmt.Errorf("%q: %w", key, err)
				}
				out = append(out, sql)
			}
		default:
			val, err := c.valueSQL(s, v)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", key, err)
			}
			out = append(out, col+" = "+val)
		}
	}
	return out, nil
}

// in compiles a (NOT) IN test. An empty value list is constant: false for
// IN, true for NOT IN.
func (c *Context) in(s *scope, n query.In) (string, error) {
	if len(n.Columns) == 0 {
		return "", fmt.Errorf("IN without columns: %w", ErrInvalidQuery)
	}
	cols := make([]string, len(n.Columns))
	for i, name := range n.Columns {
		sql, _, err := c.column(s, name)
		if err != nil {
			return "", err
		}
		cols[i] = sql
	}
	left := cols[0]
	if len(cols) > 1 {
		left = "(" + strings.Join(cols, ", ") + ")"
	}
	return c.inSQL(s, left, len(cols), n)
}

// inSQL renders the right side of an IN test against a resolved left side
// of width columns.
func (c *Context) inSQL(s *scope, left string, width int, n query.In) (string, error) {
	op := " IN "
	if n.Not {
		op = " NOT IN "
	}

	switch {
	case n.Query != nil:
		var b strings.Builder
		if err := c.subquery(&b, n.Query, c.keyReturning(n.Query)); err != nil {
			return "", err
		}
		return left + op + "(" + b.String() + ")", nil
	case n.Raw != nil:
		sql, err := c.raw(s, *n.Raw)
		if err != nil {
			return "", err
		}
		return left + op + "(" + sql + ")", nil
	case len(n.Values) == 0:
		if n.Not {
			return "true", nil
		}
		return "false", nil
	}

	rows := make([]string, len(n.Values))
	for i, row := range n.Values {
		if len(row) != width {
			return "", fmt.Errorf("IN row %d has %d values for %d columns: %w", i, len(row), width, ErrInvalidQuery)
		}
		vals := make([]string, len(row))
		for j, v := range row {
			sql, err := c.valueSQL(s, v)
			if err != nil {
				return "", err
			}
			vals[j] = sql
		}
		if len(vals) > 1 {
			rows[i] = "(" + strings.Join(vals, ", ") + ")"
		} else {
			rows[i] = vals[0]
		}
	}
	return left + op + "(" + strings.Join(rows, ", ") + ")", nil
}

// exists compiles a correlated EXISTS (SELECT 1 FROM ... LIMIT 1).
func (c *Context) exists(s *scope, n query.Exists) (string, error) {
	sub, err := c.existsQuery(s, n)
	if err != nil {
		return "", err
	}
	prefix := "EXISTS ("
	if n.Not {
		prefix = "NOT EXISTS ("
	}

	var b strings.Builder
	if sub.Kind.Mutative() {
		if err := c.subquery(&b, sub, c.keyReturning(sub)); err != nil {
			return "", err
		}
		return prefix + b.String() + ")", nil
	}

	sel := sub.Clone()
	sel.Select = []query.SelectItem{{Expr: query.Raw{SQL: "1"}}}
	sel.HookSelect = nil
	sel.Limit = nil
	sel.Order = nil
	if err := c.statement(&b, sel); err != nil {
		return "", err
	}
	return prefix + b.String() + " LIMIT 1)", nil
}

func (c *Context) existsQuery(s *scope, n query.Exists) (*query.Query, error) {
	var sub *query.Query
	switch {
	case n.Query != nil:
		sub = n.Query.Clone()
	case n.Target == "":
		return nil, fmt.Errorf("EXISTS without target: %w", ErrInvalidQuery)
	default:
		if s.query != nil {
			if rel, ok := s.query.Relations[n.Target]; ok {
				sub = rel.JoinQuery(s.query, rel.Target()).Clone()
				break
			}
			if _, ok := c.withShape(s.query, n.Target); ok {
				sub = &query.Query{From: &query.Source{Name: n.Target}, WithShapes: s.query.WithShapes}
				break
			}
		}
		sub = &query.Query{Table: n.Target}
	}
	sub.And = append(sub.And, n.On...)
	if n.Callback != nil {
		sub = n.Callback(sub)
	}
	return sub, nil
}
