package compile

import (
	"fmt"
	"strings"

	"github.com/shipq/pgq/query"
)

// selectList renders q's select items, or the default projection when
// none are given. joined reports whether the statement has joins.
func (c *Context) selectList(s *scope, q *query.Query, joined bool) (string, error) {
	if len(q.Select) == 0 {
		return c.defaultSelect(s, joined)
	}
	return c.items(s, withHooks(q.Select, q.HookSelect))
}

// returning renders " RETURNING ..." for writes, or nothing when neither
// select items nor hook columns were requested.
func (c *Context) returning(s *scope, q *query.Query) (string, error) {
	items := withHooks(q.Select, q.HookSelect)
	if len(items) == 0 {
		return "", nil
	}
	list, err := c.items(s, items)
	if err != nil {
		return "", err
	}
	return " RETURNING " + list, nil
}

// withHooks appends hook columns not already selected by name.
func withHooks(items []query.SelectItem, hooks []string) []query.SelectItem {
	if len(hooks) == 0 {
		return items
	}
	out := append([]query.SelectItem(nil), items...)
	for _, h := range hooks {
		dup := false
		for _, it := range items {
			if it.Column == h || it.Column == "*" {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, query.SelectItem{Column: h})
		}
	}
	return out
}

func (c *Context) defaultSelect(s *scope, joined bool) (string, error) {
	if !s.shape.Declared() || s.shape.Plain() {
		if joined {
			return quote(s.alias) + ".*", nil
		}
		return "*", nil
	}
	var parts []string
	for _, col := range s.shape.Visible() {
		sql, err := c.selectColumn(s, query.SelectItem{Column: col.Name})
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return strings.Join(parts, ", "), nil
}

func (c *Context) items(s *scope, items []query.SelectItem) (string, error) {
	parts := make([]string, len(items))
	for i, it := range items {
		var sql string
		var err error
		switch {
		case it.Relation != "":
			sql, err = c.relationSelect(s, it)
		case it.JSONPath != nil:
			sql, err = c.jsonPathSelect(s, it)
		case it.Expr != nil:
			sql, err = c.exprSQL(s, it.Expr)
			if err == nil && it.As != "" {
				sql += " AS " + quote(it.As)
			}
		case it.Column != "":
			sql, err = c.selectColumn(s, it)
		default:
			err = fmt.Errorf("empty select item %d: %w", i, ErrInvalidQuery)
		}
		if err != nil {
			return "", err
		}
		parts[i] = sql
	}
	return strings.Join(parts, ", "), nil
}

// selectColumn renders a column in a select list, where aliasing is legal.
func (c *Context) selectColumn(s *scope, it query.SelectItem) (string, error) {
	table, name, qualified := strings.Cut(it.Column, ".")
	if qualified && name == "*" {
		if table == s.alias {
			return quote(table) + ".*", nil
		}
		shape, ok := s.joined[table]
		if !ok {
			return quote(table) + ".*", nil
		}
		as := table
		if it.As != "" {
			as = it.As
		}
		return jsonRow(table, shape) + " AS " + quote(as), nil
	}

	sql, def, err := c.column(s, it.Column)
	if err != nil {
		return "", err
	}
	if sql == "*" {
		return sql, nil
	}
	switch {
	case it.As != "":
		return sql + " AS " + quote(it.As), nil
	case def.Renamed() || def.Computed != nil:
		return sql + " AS " + quote(def.Name), nil
	}
	return sql, nil
}

// jsonRow folds a joined row into one JSON value. row_to_json keeps
// physical names, so shapes with hidden or renamed columns are spelled out.
func jsonRow(alias string, shape query.Shape) string {
	if !shape.Declared() || shape.Plain() {
		return "row_to_json(" + quote(alias) + ".*)"
	}
	var args []string
	for _, col := range shape.Visible() {
		if col.Computed != nil {
			continue
		}
		args = append(args, quoteString(col.Name), quoteColumn(alias, col.Physical()))
	}
	return "json_build_object(" + strings.Join(args, ", ") + ")"
}

// quoteString renders a SQL string constant for known-safe keys.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (c *Context) jsonPathSelect(s *scope, it query.SelectItem) (string, error) {
	col, _, err := c.column(s, it.JSONPath.Column)
	if err != nil {
		return "", err
	}
	sql := "jsonb_path_query_first(" + col + ", " + c.Encode(it.JSONPath.Path) + ")"
	if it.As != "" {
		sql += " AS " + quote(it.As)
	}
	return sql, nil
}

// relationSelect selects a related record as a JSON object, or a list of
// them as a JSON array.
func (c *Context) relationSelect(s *scope, it query.SelectItem) (string, error) {
	if s.query == nil {
		return "", fmt.Errorf("relation %q: %w", it.Relation, ErrUnknownRelation)
	}
	rel, ok := s.query.Relations[it.Relation]
	if !ok {
		return "", fmt.Errorf("relation %q on %q: %w", it.Relation, s.alias, ErrUnknownRelation)
	}
	to := rel.Target().Clone()
	to.As = it.Relation
	sub := rel.JoinQuery(s.query, to)
	if it.Build != nil {
		sub = it.Build(sub)
	}
	as := it.As
	if as == "" {
		as = it.Relation
	}

	var b strings.Builder
	if rel.Many() {
		b.WriteString(`(SELECT COALESCE(json_agg(row_to_json("t".*)), '[]') FROM (`)
		if err := c.statement(&b, sub); err != nil {
			return "", fmt.Errorf("relation %q: %w", it.Relation, err)
		}
		b.WriteString(`) AS "t") AS `)
	} else {
		one := sub.Clone()
		limit := 1
		one.Limit = &limit
		b.WriteString(`(SELECT row_to_json("t".*) FROM (`)
		if err := c.statement(&b, one); err != nil {
			return "", fmt.Errorf("relation %q: %w", it.Relation, err)
		}
		b.WriteString(`) AS "t") AS `)
	}
	b.WriteString(quote(as))
	return b.String(), nil
}

func hasRelationSelect(items []query.SelectItem) bool {
	for _, it := range items {
		if it.Relation != "" {
			return true
		}
	}
	return false
}

// projection returns the columns q's rows expose, when they can be known
// without the database.
func (c *Context) projection(q *query.Query) (query.Shape, bool) {
	items := q.Select
	if q.Kind.Mutative() || len(items) > 0 {
		items = withHooks(items, q.HookSelect)
	}
	if len(items) == 0 {
		if q.Kind.Mutative() {
			return nil, false
		}
		shape := q.Shape
		if shape == nil && q.From != nil && q.From.Name != "" {
			shape = c.cteShapes[q.From.Name]
		}
		if !shape.Declared() {
			return nil, false
		}
		return shape.Visible(), true
	}

	var out query.Shape
	for _, it := range items {
		switch {
		case it.Column == "*" || strings.HasSuffix(it.Column, ".*"):
			if !q.Shape.Declared() || (it.Column != "*" && !strings.HasPrefix(it.Column, q.Alias()+".")) {
				return nil, false
			}
			out = append(out, q.Shape.Visible()...)
		case it.Column != "":
			_, name, ok := strings.Cut(it.Column, ".")
			if !ok {
				name = it.Column
			}
			col, found := q.Shape.Get(name)
			if !found {
				col = query.Column{Name: name}
			}
			if it.As != "" {
				col.Name = it.As
			}
			col.DBName = ""
			col.Computed = nil
			out = append(out, col)
		default:
			name := it.As
			if name == "" {
				name = it.Relation
			}
			out = append(out, query.Column{Name: name, Operators: query.OpsAny})
		}
	}
	return out, true
}

// keyReturning is the returning list of a write lowered into a value
// position: its primary key.
func (c *Context) keyReturning(q *query.Query) []query.SelectItem {
	if len(q.Select) > 0 {
		return nil
	}
	keys := q.PrimaryKey()
	if len(keys) == 0 {
		return []query.SelectItem{{Column: "*"}}
	}
	items := make([]query.SelectItem, len(keys))
	for i, k := range keys {
		items[i] = query.SelectItem{Column: k}
	}
	return items
}
