package proptest

import (
	"fmt"
	"strings"

	"github.com/shipq/pgq/query"
)

// =============================================================================
// Query IR generators
// =============================================================================

// columns is the pool generated predicates draw column names from.
var columns = []string{"a", "b", "c", "d", "e"}

// Column returns a column name from a small fixed pool.
func (g *Generator) Column() string {
	return OneOf(g, columns...)
}

// Value returns a bindable scalar: an int, a string or a bool.
func (g *Generator) Value() any {
	return OneOfFunc(g,
		func(g *Generator) any { return g.IntRange(-1000, 1000) },
		func(g *Generator) any { return g.IdentifierLower(12) },
		func(g *Generator) any { return g.Bool() },
	)
}

// Predicate returns a random predicate tree at most depth levels deep.
// Every bound value appears exactly once in the tree.
func (g *Generator) Predicate(depth int) query.Where {
	if depth <= 0 || g.BoolWithProb(0.4) {
		return g.leaf()
	}
	switch g.Intn(3) {
	case 0:
		return query.Not(g.Predicates(depth - 1))
	case 1:
		return query.Or(SliceN(g, 1, 3, func(g *Generator) []query.Where {
			return g.Predicates(depth - 1)
		}))
	}
	return query.Group{
		And: g.Predicates(depth - 1),
		Or: SliceN(g, 0, 2, func(g *Generator) []query.Where {
			return g.Predicates(depth - 1)
		}),
	}
}

// Predicates returns one to three sibling predicates.
func (g *Generator) Predicates(depth int) []query.Where {
	return SliceN(g, 1, 3, func(g *Generator) query.Where { return g.Predicate(depth) })
}

func (g *Generator) leaf() query.Where {
	switch g.Intn(5) {
	case 0:
		cols := query.Cols{}
		for _, c := range Sample(g, columns, g.IntRange(1, 3)) {
			cols[c] = g.Value()
		}
		return cols
	case 1:
		op := OneOf(g, "equals", "not", "lt", "lte", "gt", "gte")
		return query.Cols{g.Column(): query.Ops{op: g.Value()}}
	case 2:
		return query.Cols{g.Column(): nil}
	case 3:
		return query.In{
			Columns: []string{g.Column()},
			Values: SliceN(g, 0, 4, func(g *Generator) []any {
				return []any{g.Value()}
			}),
			Not: g.Bool(),
		}
	}
	return g.raw()
}

// raw returns a fragment with one to three ordinal parameters.
func (g *Generator) raw() query.Raw {
	n := g.IntRange(1, 3)
	parts := make([]string, n)
	args := make([]any, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s <> $%d", g.Column(), i+1)
		args[i] = g.Value()
	}
	return query.SQL(strings.Join(parts, " AND "), args...)
}

// Rows returns n rows of width values each.
func (g *Generator) Rows(width, n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		row := make([]any, width)
		for j := range row {
			row[j] = g.Value()
		}
		rows[i] = row
	}
	return rows
}
