package compile

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shipq/pgq/query"
)

// DefaultBindLimit is the number of bind parameters PostgreSQL accepts in
// one statement.
const DefaultBindLimit = 65535

// Statement is SQL text with $n placeholders and the values they bind.
type Statement struct {
	Text   string
	Values []any
}

// Result is the output of one compile.
type Result struct {
	Statement
	// Batch holds every statement, in execution order, when an insert was
	// split to respect the bind limit. It is nil for a single statement.
	Batch []Statement
	// UpsertFallback is the update branch of an emulated upsert, run once
	// when its insert hits a unique violation.
	UpsertFallback *Statement
}

// Statements returns the statements to execute in order.
func (r *Result) Statements() []Statement {
	if len(r.Batch) > 0 {
		return r.Batch
	}
	return []Statement{r.Statement}
}

// Option configures a compile.
type Option func(*Context)

// WithBindLimit overrides DefaultBindLimit.
func WithBindLimit(n int) Option {
	return func(c *Context) {
		if n > 0 {
			c.bindLimit = n
		}
	}
}

// WithLogger logs batch splits at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

// cte is a rendered CTE definition, name included.
type cte struct {
	name      string
	sql       string
	recursive bool
}

// Context is the mutable state of one compile call. It is passed by
// pointer through every nested compile so that bind values and hoisted
// CTEs land in the outermost statement.
type Context struct {
	values []any
	// top is the WITH list of the outermost statement in compile order:
	// its own items and CTEs hoisted out of nested positions, each after
	// the CTEs it depends on.
	top []cte
	// shapes of CTEs compiled so far, by name.
	cteShapes map[string]query.Shape
	reserved  map[string]bool

	bindLimit int
	logger    *slog.Logger
}

func newContext(opts []Option) *Context {
	c := &Context{
		cteShapes: map[string]query.Shape{},
		reserved:  map[string]bool{},
		bindLimit: DefaultBindLimit,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode appends v to the bind list and returns its placeholder.
func (c *Context) Encode(v any) string {
	c.values = append(c.values, v)
	return "$" + strconv.Itoa(len(c.values))
}

// Values returns the bind list accumulated so far.
func (c *Context) Values() []any {
	return c.values
}

// reserve marks names q can address (CTEs, tables, aliases, join targets
// and relation targets) so that generated CTE aliases never shadow them.
func (c *Context) reserve(q *query.Query) {
	if q == nil {
		return
	}
	mark := func(names ...string) {
		for _, n := range names {
			if n != "" {
				c.reserved[n] = true
			}
		}
	}
	mark(q.Table, q.As)
	if q.From != nil {
		mark(q.From.Name)
	}
	for _, w := range q.With {
		mark(w.Name)
	}
	for name := range q.WithShapes {
		mark(name)
	}
	for name := range q.JoinedShapes {
		mark(name)
	}
	for _, j := range q.Join {
		mark(j.Target, j.As)
	}
	for name, rel := range q.Relations {
		mark(name)
		if to := rel.Target(); to != nil {
			mark(to.Table, to.As)
		}
	}
}

// alias allocates a CTE name not used by the statement: q, q2, q3, ...
func (c *Context) alias() string {
	for i := 1; ; i++ {
		name := "q"
		if i > 1 {
			name = fmt.Sprintf("q%d", i)
		}
		if c.reserved[name] || c.hoisted(name) {
			continue
		}
		return name
	}
}

func (c *Context) hoisted(name string) bool {
	for _, t := range c.top {
		if t.name == name {
			return true
		}
	}
	return false
}

// hoist appends a CTE to the outermost statement.
func (c *Context) hoist(t cte) {
	c.top = append(c.top, t)
}

// withClause renders a WITH list, RECURSIVE when any item needs it.
func withClause(items []cte) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("WITH ")
	for _, it := range items {
		if it.recursive {
			b.WriteString("RECURSIVE ")
			break
		}
	}
	for i, it := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(it.sql)
	}
	b.WriteString(" ")
	return b.String()
}
