package compile

import (
	"fmt"
	"maps"

	"github.com/shipq/pgq/query"
)

// batchable reports whether q is a top-level VALUES insert that may be
// split across statements.
func batchable(q *query.Query) bool {
	return q.Kind == query.InsertQuery && q.Insert != nil && q.Insert.From == nil &&
		len(q.Insert.Rows) > 0 && len(q.Insert.Columns) > 0
}

// compileBatches splits an insert's rows into statements that each stay
// within the bind limit. Rows keep their order across batches.
func (c *Context) compileBatches(q *query.Query) (*Result, error) {
	rows := q.Insert.Rows
	cost, err := c.rowCosts(q)
	if err != nil {
		return nil, err
	}
	overhead, err := c.statementOverhead(q, cost[0])
	if err != nil {
		return nil, err
	}

	var out []Statement
	for start := 0; start < len(rows); {
		used := overhead
		end := start
		for end < len(rows) && used+cost[end] <= c.bindLimit {
			used += cost[end]
			end++
		}
		if end == start {
			return nil, fmt.Errorf("insert into %q row %d needs %d parameters, limit %d: %w",
				q.Table, start, overhead+cost[start], c.bindLimit, ErrRowTooLarge)
		}

		part := q.Clone()
		data := *q.Insert
		data.Rows = rows[start:end]
		part.Insert = &data

		bc := c.fork()
		bc.reserveTree(part)
		text, err := bc.topLevel(part)
		if err != nil {
			return nil, err
		}
		if len(bc.values) > c.bindLimit {
			return nil, fmt.Errorf("insert into %q uses %d parameters, limit %d: %w",
				q.Table, len(bc.values), c.bindLimit, ErrTooManyBinds)
		}
		out = append(out, Statement{Text: text, Values: bc.values})
		start = end
	}

	if len(out) == 1 {
		return &Result{Statement: out[0]}, nil
	}
	c.logger.Debug("insert split into batches",
		"table", q.Table,
		"rows", len(rows),
		"batches", len(out),
		"bind_limit", c.bindLimit)
	return &Result{Statement: out[0], Batch: out}, nil
}

// rowCosts returns the number of bind parameters each row adds.
func (c *Context) rowCosts(q *query.Query) ([]int, error) {
	scratch := c.fork()
	s, err := scratch.scopeOf(q)
	if err != nil {
		return nil, err
	}
	width := len(q.Insert.Columns)
	costs := make([]int, len(q.Insert.Rows))
	for i, row := range q.Insert.Rows {
		before := len(scratch.values)
		if _, err := scratch.insertRow(s, row, width); err != nil {
			return nil, fmt.Errorf("compile insert %q row %d: %w", q.Table, i, err)
		}
		costs[i] = len(scratch.values) - before
	}
	return costs, nil
}

// statementOverhead is the number of parameters the statement binds
// outside its VALUES rows: CTEs, ON CONFLICT and RETURNING.
func (c *Context) statementOverhead(q *query.Query, firstCost int) (int, error) {
	one := q.Clone()
	data := *q.Insert
	data.Rows = q.Insert.Rows[:1]
	one.Insert = &data

	scratch := c.fork()
	scratch.reserveTree(one)
	if _, err := scratch.topLevel(one); err != nil {
		return 0, err
	}
	return len(scratch.values) - firstCost, nil
}

// fork returns an empty context with the same options.
func (c *Context) fork() *Context {
	return &Context{
		cteShapes: map[string]query.Shape{},
		reserved:  maps.Clone(c.reserved),
		bindLimit: c.bindLimit,
		logger:    c.logger,
	}
}
