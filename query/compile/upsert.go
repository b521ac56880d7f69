package compile

import (
	"fmt"
	"strings"

	"github.com/shipq/pgq/query"
)

// upsertQuery emulates an upsert with two writes lowered into CTEs: the
// update, and an insert that only runs when the update matched nothing.
//
//	WITH "q" AS (UPDATE ... RETURNING ...),
//	     "q2" AS (INSERT ... SELECT ... WHERE NOT EXISTS (SELECT 1 FROM "q") RETURNING ...)
//	SELECT * FROM "q" UNION ALL SELECT * FROM "q2"
func (c *Context) upsertQuery(b *strings.Builder, q *query.Query) error {
	if q.Upsert == nil || len(q.Upsert.Update) == 0 {
		return fmt.Errorf("upsert without update data: %w", ErrInvalidQuery)
	}
	ret := upsertReturning(q)

	// q.With is rendered by the enclosing statement.
	update := upsertUpdate(q)
	update.With = nil
	updated, err := c.hoistQuery(update)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	data, err := guardedInsert(q.Upsert.Create, updated)
	if err != nil {
		return err
	}
	insert := &query.Query{
		Kind:       query.InsertQuery,
		Table:      q.Table,
		Schema:     q.Schema,
		As:         q.As,
		Shape:      q.Shape,
		Select:     ret,
		HookSelect: q.HookSelect,
		Insert:     data,
	}
	created, err := c.hoistQuery(insert)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	b.WriteString("SELECT * FROM ")
	b.WriteString(quote(updated))
	b.WriteString(" UNION ALL SELECT * FROM ")
	b.WriteString(quote(created))
	return nil
}

// upsertUpdate is the update branch of an upsert. It also runs alone as
// the fallback after a unique violation.
func upsertUpdate(q *query.Query) *query.Query {
	u := q.Clone()
	u.Kind = query.UpdateQuery
	u.Update = q.Upsert.Update
	u.Upsert = nil
	u.Select = upsertReturning(q)
	return u
}

func upsertReturning(q *query.Query) []query.SelectItem {
	if len(q.Select) > 0 {
		return q.Select
	}
	return returnAll
}

// guardedInsert turns create into an INSERT ... SELECT that yields its row
// only when the CTE guard returned nothing. DEFAULT cannot appear in a
// select list, so defaulted columns are left out.
func guardedInsert(create query.InsertData, guard string) (*query.InsertData, error) {
	var row []any
	if len(create.Rows) > 0 {
		row = create.Rows[0]
	}
	src := &query.Query{
		And: []query.Where{query.Raw{SQL: "NOT EXISTS (SELECT 1 FROM " + quote(guard) + ")"}},
	}
	var cols []string
	for i, name := range create.Columns {
		if i >= len(row) || row[i] == query.Default {
			continue
		}
		cols = append(cols, name)
		src.Select = append(src.Select, valueItem(row[i]))
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("create needs at least one non-default value: %w", ErrInvalidQuery)
	}
	return &query.InsertData{Columns: cols, From: src}, nil
}

// valueItem selects v as a constant.
func valueItem(v any) query.SelectItem {
	if e, ok := v.(query.Expr); ok {
		return query.SelectItem{Expr: e}
	}
	return query.SelectItem{Expr: query.Value{V: v}}
}

// orCreateQuery finds a record, inserting it when the find returned
// nothing.
func (c *Context) orCreateQuery(b *strings.Builder, q *query.Query) error {
	find := q.Clone()
	find.OrCreate = nil
	find.With = nil
	if len(find.Select) == 0 {
		find.Select = returnAll
	}
	found, err := c.hoistQuery(find)
	if err != nil {
		return fmt.Errorf("find: %w", err)
	}

	data, err := guardedInsert(*q.OrCreate, found)
	if err != nil {
		return err
	}
	insert := &query.Query{
		Kind:       query.InsertQuery,
		Table:      q.Table,
		Schema:     q.Schema,
		As:         q.As,
		Shape:      q.Shape,
		Select:     find.Select,
		HookSelect: q.HookSelect,
		Insert:     data,
	}
	created, err := c.hoistQuery(insert)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	b.WriteString("SELECT * FROM ")
	b.WriteString(quote(found))
	b.WriteString(" UNION ALL SELECT * FROM ")
	b.WriteString(quote(created))
	return nil
}
