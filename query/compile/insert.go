package compile

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shipq/pgq/query"
)

func (c *Context) insertQuery(b *strings.Builder, q *query.Query) error {
	if q.Insert == nil {
		return fmt.Errorf("insert without data: %w", ErrInvalidQuery)
	}
	s, err := c.scopeOf(q)
	if err != nil {
		return err
	}
	head, err := c.insertHead(s, q)
	if err != nil {
		return err
	}
	b.WriteString(head)

	data := q.Insert
	switch {
	case data.From != nil:
		sel, err := c.insertSelect(data)
		if err != nil {
			return err
		}
		b.WriteString(" ")
		b.WriteString(sel)
	case len(data.Columns) == 0:
		if len(data.Rows) > 1 {
			return fmt.Errorf("%d rows without columns: %w", len(data.Rows), ErrInvalidQuery)
		}
		b.WriteString(" DEFAULT VALUES")
	default:
		b.WriteString(" VALUES ")
		for i, row := range data.Rows {
			if i > 0 {
				b.WriteString(", ")
			}
			sql, err := c.insertRow(s, row, len(data.Columns))
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			b.WriteString(sql)
		}
	}

	tail, err := c.insertTail(s, q)
	if err != nil {
		return err
	}
	b.WriteString(tail)
	return nil
}

// insertHead renders INSERT INTO "t"[ AS "a"]("col", ...).
func (c *Context) insertHead(s *scope, q *query.Query) (string, error) {
	if q.Table == "" {
		return "", ErrMissingTable
	}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quoteTable(q.Schema, q.Table))
	if q.As != "" && q.As != q.Table {
		b.WriteString(" AS ")
		b.WriteString(quote(q.As))
	}
	if len(q.Insert.Columns) > 0 {
		cols, err := physicalColumns(s, q.Insert.Columns)
		if err != nil {
			return "", err
		}
		b.WriteString("(")
		b.WriteString(quoteList(cols))
		b.WriteString(")")
	}
	return b.String(), nil
}

// physicalColumns maps logical column names to the names stored in the
// table. Computed columns cannot be written.
func physicalColumns(s *scope, names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		if !s.shape.Declared() {
			out[i] = name
			continue
		}
		def, ok := s.shape.Get(name)
		if !ok {
			return nil, fmt.Errorf("%q on %q: %w", name, s.alias, ErrUnknownColumn)
		}
		if def.Computed != nil {
			return nil, fmt.Errorf("computed column %q is not writable: %w", name, ErrInvalidQuery)
		}
		out[i] = def.Physical()
	}
	return out, nil
}

// insertRow renders one parenthesized VALUES row. Missing trailing values
// insert DEFAULT.
func (c *Context) insertRow(s *scope, row []any, width int) (string, error) {
	if len(row) > width {
		return "", fmt.Errorf("%d values for %d columns: %w", len(row), width, ErrInvalidQuery)
	}
	vals := make([]string, width)
	for i := range vals {
		if i >= len(row) {
			vals[i] = "DEFAULT"
			continue
		}
		sql, err := c.valueSQL(s, row[i])
		if err != nil {
			return "", err
		}
		vals[i] = sql
	}
	return "(" + strings.Join(vals, ", ") + ")", nil
}

// insertSelect renders the SELECT feeding an INSERT ... SELECT. FromValues
// are appended to the source's projection.
func (c *Context) insertSelect(data *query.InsertData) (string, error) {
	src := data.From
	if len(data.FromValues) > 0 {
		src = src.Clone()
		if len(src.Select) == 0 {
			shape, ok := c.projection(src)
			if !ok {
				src.Select = []query.SelectItem{{Column: src.Alias() + ".*"}}
			} else {
				for _, col := range shape {
					src.Select = append(src.Select, query.SelectItem{Column: col.Name})
				}
			}
		}
		for _, v := range data.FromValues {
			src.Select = append(src.Select, query.SelectItem{Expr: query.Value{V: v}})
		}
	}
	var b strings.Builder
	if err := c.subquery(&b, src, returnAll); err != nil {
		return "", fmt.Errorf("insert source: %w", err)
	}
	return b.String(), nil
}

// insertTail renders ON CONFLICT and RETURNING.
func (c *Context) insertTail(s *scope, q *query.Query) (string, error) {
	var b strings.Builder
	if q.OnConflict != nil {
		oc, err := c.onConflict(s, q)
		if err != nil {
			return "", err
		}
		b.WriteString(oc)
	}
	ret, err := c.returning(s, q)
	if err != nil {
		return "", err
	}
	b.WriteString(ret)
	return b.String(), nil
}

func (c *Context) onConflict(s *scope, q *query.Query) (string, error) {
	oc := q.OnConflict
	var b strings.Builder
	b.WriteString(" ON CONFLICT")

	var target []string
	switch {
	case oc.Constraint != "":
		b.WriteString(" ON CONSTRAINT ")
		b.WriteString(quote(oc.Constraint))
	case oc.Raw != nil:
		sql, err := c.raw(s, *oc.Raw)
		if err != nil {
			return "", err
		}
		b.WriteString(" ")
		b.WriteString(sql)
	case len(oc.Columns) > 0:
		cols, err := physicalColumns(s, oc.Columns)
		if err != nil {
			return "", fmt.Errorf("conflict target: %w", err)
		}
		target = oc.Columns
		b.WriteString(" (")
		b.WriteString(quoteList(cols))
		b.WriteString(")")
	}

	if oc.DoNothing || (len(oc.Set) == 0 && !oc.Merge) {
		b.WriteString(" DO NOTHING")
		return b.String(), nil
	}
	if oc.Constraint == "" && oc.Raw == nil && len(oc.Columns) == 0 {
		return "", ErrConflictTarget
	}

	sets := slices.Clone(oc.Set)
	if oc.Merge {
		merged := mergeSets(q.Insert, target, oc.Except, oc.Set)
		sets = append(merged, sets...)
	}

	us := *s
	us.unqualified = true
	assignments, err := c.sets(&us, sets)
	if err != nil {
		return "", err
	}
	b.WriteString(" DO UPDATE SET ")
	b.WriteString(assignments)

	if len(oc.Where) > 0 {
		where, err := c.predicate(s, oc.Where, nil)
		if err != nil {
			return "", err
		}
		b.WriteString(" WHERE ")
		b.WriteString(where.sql)
	}
	return b.String(), nil
}

// mergeSets assigns excluded.<col> to every inserted column that is not in
// the conflict target, not excepted and not set explicitly. When nothing is
// left one column is still assigned so the row is locked and RETURNING
// sees it.
func mergeSets(data *query.InsertData, target, except []string, explicit []query.Set) []query.Set {
	var cols []string
	if data != nil {
		cols = data.Columns
	}
	skip := map[string]bool{}
	for _, name := range target {
		skip[name] = true
	}
	for _, name := range except {
		skip[name] = true
	}
	for _, set := range explicit {
		skip[set.Column] = true
	}

	var out []query.Set
	for _, name := range cols {
		if !skip[name] {
			out = append(out, query.Set{Column: name, Value: query.Excluded(name)})
		}
	}
	if len(out) > 0 || len(explicit) > 0 {
		return out
	}
	var forced string
	switch {
	case len(target) > 0:
		forced = target[0]
	case len(cols) > 0:
		forced = cols[0]
	default:
		return nil
	}
	return []query.Set{{Column: forced, Value: query.Excluded(forced)}}
}

// sets renders UPDATE assignments. s must be unqualified.
func (c *Context) sets(s *scope, list []query.Set) (string, error) {
	if len(list) == 0 {
		return "", fmt.Errorf("no columns to set: %w", ErrInvalidQuery)
	}
	parts := make([]string, len(list))
	for i, set := range list {
		col, def, err := c.ownColumn(s, set.Column)
		if err != nil {
			return "", err
		}
		if def.Computed != nil {
			return "", fmt.Errorf("computed column %q is not writable: %w", set.Column, ErrInvalidQuery)
		}
		val, err := c.setValue(s, col, set.Value)
		if err != nil {
			return "", fmt.Errorf("set %q: %w", set.Column, err)
		}
		parts[i] = col + " = " + val
	}
	return strings.Join(parts, ", "), nil
}

func (c *Context) setValue(s *scope, col string, v any) (string, error) {
	switch x := v.(type) {
	case query.SetOp:
		if err := validateArithmetic(x.Op); err != nil {
			return "", err
		}
		arg, err := c.valueSQL(s, x.Arg)
		if err != nil {
			return "", err
		}
		return col + " " + x.Op + " " + arg, nil
	case *query.Query:
		var b strings.Builder
		if err := c.subquery(&b, x, c.keyReturning(x)); err != nil {
			return "", err
		}
		return "(" + b.String() + ")", nil
	}
	return c.valueSQL(s, v)
}
