package compile

import (
	"fmt"
	"strings"

	"github.com/shipq/pgq/query"
)

// guardWrite rejects UPDATE and DELETE statements that would touch every
// row without the caller opting in.
func guardWrite(q *query.Query) error {
	if q.Table == "" {
		return ErrMissingTable
	}
	if !q.HasPredicate() && !q.All {
		return fmt.Errorf("%s on %q: %w", q.Kind, q.Table, ErrMissingWhere)
	}
	return nil
}

// writeTarget renders the written table with its alias.
func writeTarget(q *query.Query) string {
	t := quoteTable(q.Schema, q.Table)
	if q.As != "" && q.As != q.Table {
		t += " AS " + quote(q.As)
	}
	return t
}

func (c *Context) updateQuery(b *strings.Builder, q *query.Query) error {
	if err := guardWrite(q); err != nil {
		return err
	}
	if len(q.Update) == 0 {
		// Nothing to set: count the rows the update would have matched.
		count := q.Clone()
		count.Kind = query.SelectQuery
		if len(count.Select) == 0 {
			count.Select = []query.SelectItem{{Expr: query.Count(), As: "count"}}
		}
		return c.selectQuery(b, count)
	}

	s, err := c.scopeOf(q)
	if err != nil {
		return err
	}
	joins, err := c.resolveJoins(s, q)
	if err != nil {
		return err
	}

	b.WriteString("UPDATE ")
	b.WriteString(writeTarget(q))
	b.WriteString(" SET ")
	us := *s
	us.unqualified = true
	assignments, err := c.sets(&us, q.Update)
	if err != nil {
		return err
	}
	b.WriteString(assignments)

	targets, conds, err := c.joinTargets(s, joins)
	if err != nil {
		return err
	}
	if targets != "" {
		b.WriteString(" FROM ")
		b.WriteString(targets)
	}
	if err := c.writeWhere(b, s, q, conds); err != nil {
		return err
	}

	ret, err := c.returning(s, q)
	if err != nil {
		return err
	}
	b.WriteString(ret)
	return nil
}

func (c *Context) deleteQuery(b *strings.Builder, q *query.Query) error {
	if err := guardWrite(q); err != nil {
		return err
	}
	s, err := c.scopeOf(q)
	if err != nil {
		return err
	}
	joins, err := c.resolveJoins(s, q)
	if err != nil {
		return err
	}

	b.WriteString("DELETE FROM ")
	b.WriteString(writeTarget(q))

	targets, conds, err := c.joinTargets(s, joins)
	if err != nil {
		return err
	}
	if targets != "" {
		b.WriteString(" USING ")
		b.WriteString(targets)
	}
	if err := c.writeWhere(b, s, q, conds); err != nil {
		return err
	}

	ret, err := c.returning(s, q)
	if err != nil {
		return err
	}
	b.WriteString(ret)
	return nil
}

// writeWhere renders the predicate of a write, ANDed with the conditions
// of its joined tables.
func (c *Context) writeWhere(b *strings.Builder, s *scope, q *query.Query, conds []string) error {
	where, err := c.predicate(s, q.And, q.Or)
	if err != nil {
		return err
	}
	where = where.and(conds...)
	if !where.empty() {
		b.WriteString(" WHERE ")
		b.WriteString(where.sql)
	}
	return nil
}
