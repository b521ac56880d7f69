package compile

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shipq/pgq/query"
)

// statement renders a nested statement with its own WITH list. Read-only
// CTEs stay local; CTEs holding writes are hoisted to the outermost
// statement, the only place PostgreSQL accepts them. When the body hoists
// a write, the local CTEs it may read move up ahead of it.
func (c *Context) statement(b *strings.Builder, q *query.Query) error {
	c.reserve(q)
	local, err := c.withList(q.With, false)
	if err != nil {
		return err
	}
	mark := len(c.top)
	var body strings.Builder
	if err := c.body(&body, q); err != nil {
		return err
	}
	if len(local) > 0 && len(c.top) > mark {
		for _, l := range local {
			if c.hoisted(l.name) {
				return fmt.Errorf("CTE %q is defined twice: %w", l.name, ErrInvalidQuery)
			}
		}
		c.top = slices.Concat(c.top[:mark], local, c.top[mark:])
		local = nil
	}
	b.WriteString(withClause(local))
	b.WriteString(body.String())
	return nil
}

// subquery renders q where a read is expected. A write is lowered into a
// hoisted CTE returning ret (unless it selects its own columns) and
// replaced by a select from it.
func (c *Context) subquery(b *strings.Builder, q *query.Query, ret []query.SelectItem) error {
	if !q.Kind.Mutative() {
		return c.statement(b, q)
	}
	alias, err := c.lower(q, ret)
	if err != nil {
		return err
	}
	b.WriteString("SELECT * FROM ")
	b.WriteString(quote(alias))
	return nil
}

// lower moves a write into a hoisted CTE and returns its alias.
func (c *Context) lower(q *query.Query, ret []query.SelectItem) (string, error) {
	if len(q.Select) == 0 && len(ret) > 0 {
		q = q.Clone()
		q.Select = ret
	}
	return c.hoistQuery(q)
}

// hoistQuery compiles q into a CTE of the outermost statement. The alias
// is allocated after compiling so that CTEs q depends on come first.
func (c *Context) hoistQuery(q *query.Query) (string, error) {
	var b strings.Builder
	if err := c.statement(&b, q); err != nil {
		return "", err
	}
	alias := c.alias()
	c.hoist(cte{name: alias, sql: quote(alias) + " AS (" + b.String() + ")"})
	if shape, ok := c.projection(q); ok {
		c.cteShapes[alias] = shape
	} else {
		c.cteShapes[alias] = nil
	}
	return alias, nil
}

// withList compiles explicit WITH items. At the top level every item
// joins the outermost list after whatever its compile hoisted; below it,
// only items holding writes are hoisted and the rest are returned.
func (c *Context) withList(items []query.WithItem, top bool) ([]cte, error) {
	var out []cte
	for _, it := range items {
		c.reserved[it.Name] = true
		entry, err := c.withItem(it)
		if err != nil {
			return nil, fmt.Errorf("with %q: %w", it.Name, err)
		}
		if top || (it.Query != nil && it.Query.Kind.Mutative()) {
			c.hoist(entry)
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (c *Context) withItem(it query.WithItem) (cte, error) {
	if it.Name == "" {
		return cte{}, fmt.Errorf("unnamed CTE: %w", ErrInvalidQuery)
	}
	cols := it.Options.Columns
	entry := cte{name: it.Name, recursive: it.Options.Recursive}
	var body strings.Builder
	var shape query.Shape
	var known bool

	switch {
	case it.Recursive != nil:
		entry.recursive = true
		r := it.Recursive
		if r.Base == nil || r.Step == nil {
			return cte{}, fmt.Errorf("recursive CTE needs a base and a step: %w", ErrInvalidQuery)
		}
		if err := c.statement(&body, r.Base); err != nil {
			return cte{}, err
		}
		shape, known = c.projection(r.Base)
		if err := checkColumns(cols, shape, known); err != nil {
			return cte{}, err
		}
		// The step reads from the CTE itself, so its shape is registered
		// before the step is built and compiled.
		c.cteShapes[it.Name] = cteShape(cols, shape, known)
		step := r.Step(&query.Query{From: &query.Source{Name: it.Name}})
		if step == nil {
			return cte{}, fmt.Errorf("recursive step returned nil: %w", ErrInvalidQuery)
		}
		union := r.Union
		if union == "" {
			union = query.UnionAll
		}
		body.WriteString(" ")
		body.WriteString(string(union))
		body.WriteString(" ")
		if err := c.statement(&body, step); err != nil {
			return cte{}, err
		}

	case it.SQL != nil:
		sql, err := c.raw(emptyScope(), *it.SQL)
		if err != nil {
			return cte{}, err
		}
		body.WriteString(sql)

	case it.Query != nil:
		if err := c.statement(&body, it.Query); err != nil {
			return cte{}, err
		}
		shape, known = c.projection(it.Query)
		if err := checkColumns(cols, shape, known); err != nil {
			return cte{}, err
		}

	default:
		return cte{}, fmt.Errorf("CTE without a query: %w", ErrInvalidQuery)
	}

	c.cteShapes[it.Name] = cteShape(cols, shape, known)

	var b strings.Builder
	b.WriteString(quote(it.Name))
	if len(cols) > 0 {
		b.WriteString("(")
		b.WriteString(quoteList(cols))
		b.WriteString(")")
	}
	b.WriteString(" AS ")
	switch {
	case it.Options.Materialized:
		b.WriteString("MATERIALIZED ")
	case it.Options.NotMaterialized:
		b.WriteString("NOT MATERIALIZED ")
	}
	b.WriteString("(")
	b.WriteString(body.String())
	b.WriteString(")")
	entry.sql = b.String()
	return entry, nil
}

func checkColumns(cols []string, shape query.Shape, known bool) error {
	if len(cols) > 0 && known && len(cols) != len(shape) {
		return fmt.Errorf("%d columns declared, %d selected: %w", len(cols), len(shape), ErrCTEColumns)
	}
	return nil
}

// cteShape is the shape a CTE exposes: declared column names take
// precedence over the inner projection.
func cteShape(cols []string, shape query.Shape, known bool) query.Shape {
	if len(cols) == 0 {
		if known {
			return shape
		}
		return nil
	}
	out := query.ShapeOf(cols...)
	if known {
		for i := range out {
			out[i].Type = shape[i].Type
			out[i].Operators = shape[i].Operators
			if out[i].Operators == "" {
				out[i].Operators = query.OpsAny
			}
		}
	}
	return out
}
