package compile

import (
	"fmt"
	"strings"

	"github.com/shipq/pgq/query"
)

func (c *Context) selectQuery(b *strings.Builder, q *query.Query) error {
	if q.OrCreate != nil {
		return c.orCreateQuery(b, q)
	}

	s, err := c.scopeOf(q)
	if err != nil {
		return err
	}
	joins, err := c.resolveJoins(s, q)
	if err != nil {
		return err
	}

	// SELECT clause
	b.WriteString("SELECT ")
	if q.Distinct {
		b.WriteString("DISTINCT ")
		if len(q.DistinctOn) > 0 {
			cols := make([]string, len(q.DistinctOn))
			for i, name := range q.DistinctOn {
				sql, _, err := c.column(s, name)
				if err != nil {
					return err
				}
				cols[i] = sql
			}
			b.WriteString("ON (")
			b.WriteString(strings.Join(cols, ", "))
			b.WriteString(") ")
		}
	}
	list, err := c.selectList(s, q, len(joins) > 0)
	if err != nil {
		return err
	}
	b.WriteString(list)

	// FROM clause
	from, err := c.from(q)
	if err != nil {
		return err
	}
	if from != "" {
		b.WriteString(" FROM ")
		b.WriteString(from)
	}

	// JOIN clauses
	if err := c.writeJoins(b, s, joins); err != nil {
		return err
	}

	// WHERE clause
	where, err := c.predicate(s, q.And, q.Or)
	if err != nil {
		return err
	}
	if !where.empty() {
		b.WriteString(" WHERE ")
		b.WriteString(where.sql)
	}

	// GROUP BY clause
	if len(q.Group) > 0 {
		groups := make([]string, len(q.Group))
		for i, g := range q.Group {
			sql, err := c.exprSQL(s, g)
			if err != nil {
				return fmt.Errorf("group: %w", err)
			}
			groups[i] = sql
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(groups, ", "))
	}

	// HAVING clause
	if len(q.Having) > 0 {
		having, err := c.predicate(s, q.Having, nil)
		if err != nil {
			return fmt.Errorf("having: %w", err)
		}
		b.WriteString(" HAVING ")
		b.WriteString(having.sql)
	}

	// WINDOW clause
	if len(q.Window) > 0 {
		parts := make([]string, len(q.Window))
		for i, w := range q.Window {
			if w.Name == "" {
				return fmt.Errorf("window %d has no name: %w", i, ErrInvalidQuery)
			}
			spec, err := c.windowSpec(s, w)
			if err != nil {
				return err
			}
			parts[i] = quote(w.Name) + " AS " + spec
		}
		b.WriteString(" WINDOW ")
		b.WriteString(strings.Join(parts, ", "))
	}

	// Set operations
	if err := c.writeUnion(b, q); err != nil {
		return err
	}

	// ORDER BY clause
	if len(q.Order) > 0 {
		order, err := c.orderList(s, q.Order)
		if err != nil {
			return err
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	}

	// LIMIT / OFFSET
	if q.Limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(c.Encode(*q.Limit))
	}
	if q.Offset != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(c.Encode(*q.Offset))
	}

	// Row locking
	if q.For != nil {
		lock, err := lockClause(q.For)
		if err != nil {
			return err
		}
		b.WriteString(lock)
	}
	return nil
}

// from renders the FROM target with its alias. A query with neither table
// nor source selects without FROM.
func (c *Context) from(q *query.Query) (string, error) {
	alias := q.Alias()
	if q.From == nil {
		if q.Table == "" {
			return "", nil
		}
		t := quoteTable(q.Schema, q.Table)
		if alias != q.Table {
			t += " AS " + quote(alias)
		}
		return t, nil
	}

	switch {
	case q.From.Name != "":
		t := quote(q.From.Name)
		if alias != q.From.Name {
			t += " AS " + quote(alias)
		}
		return t, nil
	case q.From.Query != nil:
		var b strings.Builder
		if q.From.Query.Kind.Mutative() {
			name, err := c.lower(q.From.Query, returnAll)
			if err != nil {
				return "", err
			}
			if name == alias {
				return quote(name), nil
			}
			return quote(name) + " AS " + quote(alias), nil
		}
		if err := c.statement(&b, q.From.Query); err != nil {
			return "", err
		}
		return "(" + b.String() + ") AS " + quote(alias), nil
	case q.From.Raw != nil:
		return c.raw(emptyScope(), *q.From.Raw)
	}
	return "", fmt.Errorf("empty source: %w", ErrInvalidQuery)
}

// writeUnion appends set operations. Writes are lowered and return NULL
// placeholders matching the select's width, so columns line up.
func (c *Context) writeUnion(b *strings.Builder, q *query.Query) error {
	for i, u := range q.Union {
		kind := u.Kind
		if kind == "" {
			kind = query.Union
		}
		b.WriteString(" ")
		b.WriteString(string(kind))
		b.WriteString(" ")

		switch {
		case u.Raw != nil:
			sql, err := c.raw(emptyScope(), *u.Raw)
			if err != nil {
				return err
			}
			b.WriteString(sql)
		case u.Query != nil:
			var ret []query.SelectItem
			if u.Query.Kind.Mutative() {
				ret = c.nullReturning(q)
			}
			var sb strings.Builder
			if err := c.subquery(&sb, u.Query, ret); err != nil {
				return fmt.Errorf("union %d: %w", i, err)
			}
			if needsParens(u.Query) {
				b.WriteString("(" + sb.String() + ")")
			} else {
				b.WriteString(sb.String())
			}
		default:
			return fmt.Errorf("union %d is empty: %w", i, ErrInvalidQuery)
		}
	}
	return nil
}

// nullReturning returns one NULL per column q selects, or every column
// when the width is unknown.
func (c *Context) nullReturning(q *query.Query) []query.SelectItem {
	shape, ok := c.projection(q)
	if !ok {
		return returnAll
	}
	items := make([]query.SelectItem, len(shape))
	for i := range items {
		items[i] = query.SelectItem{Expr: query.Raw{SQL: "NULL"}}
	}
	return items
}

// needsParens reports whether a set operand carries clauses that would
// otherwise bind to the whole set operation.
func needsParens(q *query.Query) bool {
	return !q.Kind.Mutative() &&
		(len(q.Order) > 0 || q.Limit != nil || q.Offset != nil || q.For != nil || len(q.Union) > 0 || len(q.With) > 0)
}

// returnAll is RETURNING *.
var returnAll = []query.SelectItem{{Column: "*"}}

func lockClause(l *query.Lock) (string, error) {
	switch l.Mode {
	case query.ForUpdate, query.ForNoKeyUpdate, query.ForShare, query.ForKeyShare:
	default:
		return "", fmt.Errorf("lock mode %q: %w", l.Mode, ErrInvalidQuery)
	}
	var b strings.Builder
	b.WriteString(" FOR ")
	b.WriteString(string(l.Mode))
	if len(l.Of) > 0 {
		b.WriteString(" OF ")
		b.WriteString(quoteList(l.Of))
	}
	switch l.Wait {
	case query.LockWaitDefault:
	case query.NoWait, query.SkipLocked:
		b.WriteString(" ")
		b.WriteString(string(l.Wait))
	default:
		return "", fmt.Errorf("lock wait %q: %w", l.Wait, ErrInvalidQuery)
	}
	return b.String(), nil
}
