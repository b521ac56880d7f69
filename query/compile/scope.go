package compile

import (
	"fmt"
	"strings"

	"github.com/shipq/pgq/query"
)

// scope is the name-resolution context of one statement level: the
// statement's own alias and shape plus every alias joined into it.
type scope struct {
	alias string
	shape query.Shape
	query *query.Query

	joined map[string]query.Shape
	order  []string

	// unqualified renders own columns without the table alias, as SET and
	// INSERT column lists require.
	unqualified bool
}

// emptyScope resolves every name as an unqualified column.
func emptyScope() *scope {
	return &scope{joined: map[string]query.Shape{}}
}

func (c *Context) scopeOf(q *query.Query) (*scope, error) {
	s := &scope{
		alias:  q.Alias(),
		shape:  q.Shape,
		query:  q,
		joined: map[string]query.Shape{},
	}
	if q.From != nil {
		switch {
		case q.From.Name != "":
			shape, ok := c.withShape(q, q.From.Name)
			if !ok {
				return nil, fmt.Errorf("from %q: %w", q.From.Name, ErrUnknownWith)
			}
			if s.shape == nil {
				s.shape = shape
			}
		case q.From.Query != nil && s.shape == nil:
			if shape, ok := c.projection(q.From.Query); ok {
				s.shape = shape
			}
		}
	}
	for _, name := range sortedKeys(q.JoinedShapes) {
		s.add(name, q.JoinedShapes[name])
	}
	return s, nil
}

// withShape looks up a CTE compiled earlier in this statement or declared
// by the query.
func (c *Context) withShape(q *query.Query, name string) (query.Shape, bool) {
	if shape, ok := c.cteShapes[name]; ok {
		return shape, true
	}
	if shape, ok := q.WithShapes[name]; ok {
		return shape, true
	}
	return nil, false
}

func (s *scope) add(alias string, shape query.Shape) {
	if _, ok := s.joined[alias]; !ok {
		s.order = append(s.order, alias)
	}
	s.joined[alias] = shape
}

// child returns a scope for a join target that can see every alias of s.
func (s *scope) child(alias string, shape query.Shape) *scope {
	cs := &scope{alias: alias, shape: shape, joined: map[string]query.Shape{}}
	cs.add(s.alias, s.shape)
	for _, a := range s.order {
		if a != alias {
			cs.add(a, s.joined[a])
		}
	}
	return cs
}

// column resolves a column reference for use outside a select list.
func (c *Context) column(s *scope, name string) (string, query.Column, error) {
	table, col, qualified := strings.Cut(name, ".")
	if !qualified {
		col, table = name, ""
	}
	if col == "*" {
		if table == "" {
			return "*", query.Column{Name: "*"}, nil
		}
		return quote(table) + ".*", query.Column{Name: "*"}, nil
	}

	if qualified {
		if table == s.alias {
			return c.ownColumn(s, col)
		}
		if shape, ok := s.joined[table]; ok {
			return joinedColumn(table, shape, col)
		}
		// Aliases of enclosing statements are not tracked here.
		return quoteColumn(table, col), query.Column{Name: col}, nil
	}

	if !s.shape.Declared() {
		return c.ownColumn(s, col)
	}
	if _, ok := s.shape.Get(col); ok {
		return c.ownColumn(s, col)
	}

	var found []string
	for _, alias := range s.order {
		if _, ok := s.joined[alias].Get(col); ok {
			found = append(found, alias)
		}
	}
	switch len(found) {
	case 0:
		return "", query.Column{}, fmt.Errorf("%q on %q: %w", col, s.alias, ErrUnknownColumn)
	case 1:
		return joinedColumn(found[0], s.joined[found[0]], col)
	}
	return "", query.Column{}, fmt.Errorf("%q is in %s: %w", col, strings.Join(found, ", "), ErrAmbiguousColumn)
}

func (c *Context) ownColumn(s *scope, name string) (string, query.Column, error) {
	def := query.Column{Name: name}
	if s.shape.Declared() {
		var ok bool
		def, ok = s.shape.Get(name)
		if !ok {
			return "", query.Column{}, fmt.Errorf("%q on %q: %w", name, s.alias, ErrUnknownColumn)
		}
	}
	if def.Computed != nil {
		sql, err := c.exprSQL(s, def.Computed)
		if err != nil {
			return "", def, fmt.Errorf("computed column %q: %w", name, err)
		}
		return "(" + sql + ")", def, nil
	}
	if s.unqualified {
		return quote(def.Physical()), def, nil
	}
	return quoteColumn(s.alias, def.Physical()), def, nil
}

func joinedColumn(alias string, shape query.Shape, name string) (string, query.Column, error) {
	if !shape.Declared() {
		return quoteColumn(alias, name), query.Column{Name: name}, nil
	}
	def, ok := shape.Get(name)
	if !ok {
		return "", query.Column{}, fmt.Errorf("%q on %q: %w", name, alias, ErrUnknownColumn)
	}
	return quoteColumn(alias, def.Physical()), def, nil
}
