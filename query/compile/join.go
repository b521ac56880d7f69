package compile

import (
	"fmt"
	"strings"

	"github.com/shipq/pgq/query"
)

// join is a resolved join item: a target plus its ON conditions.
type join struct {
	item     query.JoinItem
	alias    string
	table    string       // quoted table or CTE name, when not a sub-query
	sub      *query.Query // rendered in parentheses
	on       []query.Where
	onOr     [][]query.Where
	shape    query.Shape
	relation bool
}

// resolveJoins resolves q's joins and registers their aliases in s, so
// select items can refer to them before the joins are rendered.
func (c *Context) resolveJoins(s *scope, q *query.Query) ([]*join, error) {
	joins := make([]*join, 0, len(q.Join))
	for i, item := range q.Join {
		j, err := c.resolveJoin(s, q, item)
		if err != nil {
			return nil, fmt.Errorf("join %d: %w", i, err)
		}
		s.add(j.alias, j.shape)
		joins = append(joins, j)
	}
	return joins, nil
}

func (c *Context) resolveJoin(s *scope, q *query.Query, item query.JoinItem) (*join, error) {
	j := &join{item: item, alias: item.As}

	if item.Query != nil {
		if j.alias == "" {
			j.alias = item.Query.Alias()
		}
		j.shape, _ = c.projection(item.Query)
		if item.Query.IsTableRef() && !item.Lateral {
			j.table = quoteTable(item.Query.Schema, item.Query.Table)
			j.shape = item.Query.Shape
		} else {
			j.sub = item.Query
		}
		return j, c.joinConditions(s, j)
	}

	if item.Target == "" {
		return nil, fmt.Errorf("join without target: %w", ErrInvalidQuery)
	}

	if rel, ok := q.Relations[item.Target]; ok {
		if j.alias == "" {
			j.alias = item.Target
		}
		j.relation = true
		to := rel.Target().Clone()
		to.As = j.alias
		j.shape = to.Shape

		jq := rel.JoinQuery(q, to)
		if item.Callback != nil {
			jq = item.Callback(withScopeShapes(jq, s))
		}
		jq = jq.Clone()
		jq.And = append(jq.And, item.On...)

		if item.Lateral {
			j.sub = jq
			return j, nil
		}
		// Conditions move to ON; whatever else the relation query carries
		// stays in a sub-query.
		j.on, j.onOr = jq.And, jq.Or
		rest := jq.Clone()
		rest.And, rest.Or, rest.As = nil, nil, ""
		if rest.IsTableRef() {
			j.table = quoteTable(rest.Schema, rest.Table)
		} else {
			rest.As = j.alias
			j.sub = rest
		}
		return j, nil
	}

	if j.alias == "" {
		j.alias = item.Target
	}
	if shape, ok := c.withShape(q, item.Target); ok {
		j.shape = shape
	} else {
		j.shape = q.JoinedShapes[j.alias]
	}
	j.table = quote(item.Target)
	return j, c.joinConditions(s, j)
}

// joinConditions collects ON conditions of a non-relation join, running
// its callback against a query that can see both sides.
func (c *Context) joinConditions(s *scope, j *join) error {
	j.on = append(j.on, j.item.On...)
	if j.item.Callback == nil {
		return nil
	}
	cb := &query.Query{As: j.alias, Shape: j.shape}
	if j.table != "" {
		cb.Table = j.alias
	}
	res := j.item.Callback(withScopeShapes(cb, s))
	if res == nil {
		return fmt.Errorf("join %q callback returned nil: %w", j.alias, ErrInvalidQuery)
	}
	j.on = append(j.on, res.And...)
	j.onOr = append(j.onOr, res.Or...)
	return nil
}

// withScopeShapes declares every alias of s on q.
func withScopeShapes(q *query.Query, s *scope) *query.Query {
	c := q.Clone()
	shapes := map[string]query.Shape{}
	for k, v := range q.JoinedShapes {
		shapes[k] = v
	}
	shapes[s.alias] = s.shape
	for _, a := range s.order {
		shapes[a] = s.joined[a]
	}
	c.JoinedShapes = shapes
	return c
}

// target renders the join target with its alias.
func (c *Context) target(j *join) (string, error) {
	if j.sub != nil {
		var b strings.Builder
		if err := c.statement(&b, j.sub); err != nil {
			return "", err
		}
		prefix := ""
		if j.item.Lateral {
			prefix = "LATERAL "
		}
		return prefix + "(" + b.String() + ") AS " + quote(j.alias), nil
	}
	if j.table == quote(j.alias) {
		return j.table, nil
	}
	return j.table + " AS " + quote(j.alias), nil
}

// onPredicate compiles the ON conditions of j.
func (c *Context) onPredicate(s *scope, j *join) (pred, error) {
	return c.predicate(s.child(j.alias, j.shape), j.on, j.onOr)
}

// writeJoins renders JOIN clauses for a select.
func (c *Context) writeJoins(b *strings.Builder, s *scope, joins []*join) error {
	for _, j := range joins {
		t, err := c.target(j)
		if err != nil {
			return fmt.Errorf("join %q: %w", j.alias, err)
		}
		on, err := c.onPredicate(s, j)
		if err != nil {
			return fmt.Errorf("join %q: %w", j.alias, err)
		}
		b.WriteString(" ")
		b.WriteString(string(j.item.Type))
		b.WriteString(" ")
		b.WriteString(t)
		b.WriteString(" ON ")
		if on.empty() {
			b.WriteString("true")
		} else {
			b.WriteString(on.sql)
		}
	}
	return nil
}

// joinTargets renders joins as a FROM or USING list for UPDATE and DELETE,
// returning their conditions for the WHERE clause. Only relation-derived
// LATERAL joins are accepted here; their conditions are folded into WHERE.
func (c *Context) joinTargets(s *scope, joins []*join) (string, []string, error) {
	var targets, conds []string
	for _, j := range joins {
		if j.item.Lateral {
			if !j.relation {
				return "", nil, fmt.Errorf("join %q: %w", j.alias, ErrLateralNotAllowed)
			}
			// Lift the relation's conditions out of the lateral sub-query.
			rel := j.sub.Clone()
			j.on, j.onOr = rel.And, rel.Or
			rel.And, rel.Or, rel.As = nil, nil, ""
			if rel.IsTableRef() {
				j.table, j.sub = quoteTable(rel.Schema, rel.Table), nil
			} else {
				rel.As = j.alias
				j.sub = rel
			}
			j.item.Lateral = false
		}
		t, err := c.target(j)
		if err != nil {
			return "", nil, fmt.Errorf("join %q: %w", j.alias, err)
		}
		targets = append(targets, t)
		on, err := c.onPredicate(s, j)
		if err != nil {
			return "", nil, fmt.Errorf("join %q: %w", j.alias, err)
		}
		if !on.empty() {
			if on.or {
				conds = append(conds, "("+on.sql+")")
			} else {
				conds = append(conds, on.sql)
			}
		}
	}
	return strings.Join(targets, ", "), conds, nil
}
