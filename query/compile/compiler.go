package compile

import (
	"fmt"
	"strings"

	"github.com/shipq/pgq/query"
)

// Compile lowers q into PostgreSQL text and bind values.
//
// Inserts whose rows exceed the bind limit come back as several
// statements in Result.Batch. Upserts carry the fallback update in
// Result.UpsertFallback.
func Compile(q *query.Query, opts ...Option) (*Result, error) {
	if q == nil {
		return nil, fmt.Errorf("compile nil query: %w", ErrInvalidQuery)
	}
	c := newContext(opts)
	c.reserveTree(q)

	if batchable(q) {
		return c.compileBatches(q)
	}

	text, err := c.topLevel(q)
	if err != nil {
		return nil, err
	}
	res := &Result{Statement: Statement{Text: text, Values: c.values}}

	if q.Kind == query.CopyQuery {
		// COPY takes no parameters.
		inlined, err := inlineParams(text, c.values)
		if err != nil {
			return nil, err
		}
		res.Statement = Statement{Text: inlined}
	}
	if len(res.Values) > c.bindLimit {
		return nil, fmt.Errorf("%s on %q uses %d parameters, limit %d: %w",
			q.Kind, q.Table, len(res.Values), c.bindLimit, ErrTooManyBinds)
	}

	if q.Kind == query.UpsertQuery {
		fb, err := Compile(upsertUpdate(q), opts...)
		if err != nil {
			return nil, fmt.Errorf("upsert fallback: %w", err)
		}
		res.UpsertFallback = &fb.Statement
	}
	return res, nil
}

// MustCompile is Compile for queries known to be valid, such as fixed
// queries in tests.
func MustCompile(q *query.Query, opts ...Option) *Result {
	res, err := Compile(q, opts...)
	if err != nil {
		panic(err)
	}
	return res
}

// topLevel renders the outermost statement behind one WITH list holding
// its own items and every hoisted CTE, each after what it references.
func (c *Context) topLevel(q *query.Query) (string, error) {
	if _, err := c.withList(q.With, true); err != nil {
		return "", err
	}
	var b strings.Builder
	if err := c.body(&b, q); err != nil {
		return "", err
	}
	return withClause(c.top) + b.String(), nil
}

// reserveTree reserves every name addressable anywhere in q. Recursive
// steps are built once here so that names inside them are reserved too.
func (c *Context) reserveTree(q *query.Query) {
	query.Walk(q, func(sub *query.Query) bool {
		c.reserve(sub)
		for _, w := range sub.With {
			if w.Recursive == nil || w.Recursive.Step == nil {
				continue
			}
			if step := w.Recursive.Step(&query.Query{From: &query.Source{Name: w.Name}}); step != nil {
				c.reserveTree(step)
			}
		}
		return true
	})
}

// body dispatches on the statement kind. It does not render q.With.
func (c *Context) body(b *strings.Builder, q *query.Query) error {
	if q.Kind.Mutative() && hasRelationSelect(q.Select) {
		return c.wrappedWrite(b, q)
	}

	var err error
	switch q.Kind {
	case query.SelectQuery:
		err = c.selectQuery(b, q)
	case query.InsertQuery:
		err = c.insertQuery(b, q)
	case query.UpdateQuery:
		err = c.updateQuery(b, q)
	case query.DeleteQuery:
		err = c.deleteQuery(b, q)
	case query.UpsertQuery:
		err = c.upsertQuery(b, q)
	case query.TruncateQuery:
		err = c.truncateQuery(b, q)
	case query.ColumnInfoQuery:
		err = c.columnInfoQuery(b, q)
	case query.CopyQuery:
		err = c.copyQuery(b, q)
	default:
		err = fmt.Errorf("unknown query kind %q: %w", q.Kind, ErrInvalidQuery)
	}
	if err != nil {
		return fmt.Errorf("compile %s %q: %w", q.Kind, q.Alias(), err)
	}
	return nil
}

// wrappedWrite runs a write in a CTE returning every column and selects
// from it, so relation selects can be computed from the written rows.
func (c *Context) wrappedWrite(b *strings.Builder, q *query.Query) error {
	w := q.Clone()
	w.Select = []query.SelectItem{{Column: "*"}}
	w.HookSelect = nil
	w.With = nil
	alias, err := c.hoistQuery(w)
	if err != nil {
		return err
	}
	return c.selectQuery(b, selectFromWrite(q, alias))
}

// selectFromWrite selects q's select items from the rows written into the
// CTE alias, addressed by q's own alias.
func selectFromWrite(q *query.Query, alias string) *query.Query {
	return &query.Query{
		From:       &query.Source{Name: alias},
		As:         q.Alias(),
		Shape:      q.Shape,
		Relations:  q.Relations,
		Select:     q.Select,
		HookSelect: q.HookSelect,
	}
}
