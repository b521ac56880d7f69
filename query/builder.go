package query

import (
	"maps"
	"slices"
	"sort"
)

// Clone returns a shallow copy of q whose slices are clipped, so appending
// to the copy never writes into q's backing arrays.
func (q *Query) Clone() *Query {
	c := *q
	c.Select = slices.Clip(c.Select)
	c.DistinctOn = slices.Clip(c.DistinctOn)
	c.HookSelect = slices.Clip(c.HookSelect)
	c.And = slices.Clip(c.And)
	c.Or = slices.Clip(c.Or)
	c.Join = slices.Clip(c.Join)
	c.Group = slices.Clip(c.Group)
	c.Having = slices.Clip(c.Having)
	c.Window = slices.Clip(c.Window)
	c.Order = slices.Clip(c.Order)
	c.With = slices.Clip(c.With)
	c.Union = slices.Clip(c.Union)
	c.Update = slices.Clip(c.Update)
	return &c
}

// Builder accumulates a Query. Every method returns a new Builder and
// leaves the receiver untouched, so partial builders can be shared.
type Builder struct {
	q *Query
}

// From starts a select over table.
func From(table string) Builder {
	return Builder{q: &Query{Table: table}}
}

// Define starts a select over a table with a declared shape. Columns marked
// PrimaryKey become the primary key.
func Define(table string, cols ...Column) Builder {
	q := &Query{Table: table, Shape: Shape(cols)}
	q.PrimaryKeys = q.PrimaryKey()
	return Builder{q: q}
}

// FromWith starts a select reading from a CTE.
func FromWith(name string) Builder {
	return Builder{q: &Query{From: &Source{Name: name}}}
}

// FromQuery starts a select reading from a sub-query aliased as.
func FromQuery(sub *Query, as string) Builder {
	return Builder{q: &Query{From: &Source{Query: sub}, As: as}}
}

// Wrap returns a Builder continuing from q.
func Wrap(q *Query) Builder {
	return Builder{q: q}
}

// Query returns the built query.
func (b Builder) Query() *Query {
	if b.q == nil {
		return &Query{}
	}
	return b.q
}

func (b Builder) edit(fn func(q *Query)) Builder {
	c := b.Query().Clone()
	fn(c)
	return Builder{q: c}
}

// Schema qualifies the table name.
func (b Builder) Schema(schema string) Builder {
	return b.edit(func(q *Query) { q.Schema = schema })
}

// As aliases the table.
func (b Builder) As(alias string) Builder {
	return b.edit(func(q *Query) { q.As = alias })
}

// PrimaryKey overrides the primary key columns.
func (b Builder) PrimaryKey(cols ...string) Builder {
	return b.edit(func(q *Query) { q.PrimaryKeys = cols })
}

// Relation registers a named relation.
func (b Builder) Relation(name string, rel Relation) Builder {
	return b.edit(func(q *Query) {
		q.Relations = maps.Clone(q.Relations)
		if q.Relations == nil {
			q.Relations = map[string]Relation{}
		}
		q.Relations[name] = rel
	})
}

// JoinedShape declares the shape of an alias visible to this query.
func (b Builder) JoinedShape(alias string, shape Shape) Builder {
	return b.edit(func(q *Query) {
		q.JoinedShapes = maps.Clone(q.JoinedShapes)
		if q.JoinedShapes == nil {
			q.JoinedShapes = map[string]Shape{}
		}
		q.JoinedShapes[alias] = shape
	})
}

// WithShape declares the shape of a CTE defined outside this query.
func (b Builder) WithShape(name string, shape Shape) Builder {
	return b.edit(func(q *Query) {
		q.WithShapes = maps.Clone(q.WithShapes)
		if q.WithShapes == nil {
			q.WithShapes = map[string]Shape{}
		}
		q.WithShapes[name] = shape
	})
}

// =============================================================================
// Selection
// =============================================================================

// Select adds select (or returning) items. Strings are column references,
// Exprs are selected unaliased.
func (b Builder) Select(items ...any) Builder {
	return b.edit(func(q *Query) {
		for _, it := range items {
			q.Select = append(q.Select, toSelectItem(it))
		}
	})
}

// SelectAs adds an aliased expression.
func (b Builder) SelectAs(expr Expr, as string) Builder {
	return b.edit(func(q *Query) {
		q.Select = append(q.Select, SelectItem{Expr: expr, As: as})
	})
}

// SelectRelation selects a related record, or a list for many-relations,
// as JSON. build may narrow the related query and can be nil.
func (b Builder) SelectRelation(name string, build func(*Query) *Query) Builder {
	return b.edit(func(q *Query) {
		q.Select = append(q.Select, SelectItem{Relation: name, Build: build, As: name})
	})
}

// SelectJSONPath selects a value at a JSON path.
func (b Builder) SelectJSONPath(column, path, as string) Builder {
	return b.edit(func(q *Query) {
		q.Select = append(q.Select, SelectItem{JSONPath: &JSONPath{Column: column, Path: path}, As: as})
	})
}

// Returning is Select for writes.
func (b Builder) Returning(items ...any) Builder {
	return b.Select(items...)
}

// HookSelect adds columns required by after-hooks.
func (b Builder) HookSelect(cols ...string) Builder {
	return b.edit(func(q *Query) { q.HookSelect = append(q.HookSelect, cols...) })
}

// Distinct adds DISTINCT, or DISTINCT ON when columns are given.
func (b Builder) Distinct(on ...string) Builder {
	return b.edit(func(q *Query) {
		q.Distinct = true
		q.DistinctOn = append(q.DistinctOn, on...)
	})
}

func toSelectItem(it any) SelectItem {
	switch v := it.(type) {
	case SelectItem:
		return v
	case string:
		return SelectItem{Column: v}
	case Expr:
		return SelectItem{Expr: v}
	}
	return SelectItem{Expr: Value{V: it}}
}

// =============================================================================
// Predicates
// =============================================================================

// Where ANDs conditions to the query.
func (b Builder) Where(w ...Where) Builder {
	return b.edit(func(q *Query) { q.And = append(q.And, w...) })
}

// OrWhere adds an alternative AND-group.
func (b Builder) OrWhere(w ...Where) Builder {
	return b.edit(func(q *Query) { q.Or = append(q.Or, w) })
}

// WhereNot ANDs NOT (w...).
func (b Builder) WhereNot(w ...Where) Builder {
	return b.Where(Not(w))
}

// WhereIn ANDs column IN values. An empty list matches nothing.
func (b Builder) WhereIn(column string, values ...any) Builder {
	return b.Where(In{Columns: []string{column}, Values: singletonRows(values)})
}

// WhereNotIn ANDs column NOT IN values. An empty list matches everything.
func (b Builder) WhereNotIn(column string, values ...any) Builder {
	return b.Where(In{Columns: []string{column}, Values: singletonRows(values), Not: true})
}

// WhereInQuery ANDs columns IN (sub).
func (b Builder) WhereInQuery(sub *Query, columns ...string) Builder {
	return b.Where(In{Columns: columns, Query: sub})
}

// WhereExists ANDs EXISTS over a relation or table.
func (b Builder) WhereExists(target string, on ...Where) Builder {
	return b.Where(Exists{Target: target, On: on})
}

// WhereNotExists ANDs NOT EXISTS over a relation or table.
func (b Builder) WhereNotExists(target string, on ...Where) Builder {
	return b.Where(Exists{Target: target, On: on, Not: true})
}

// All allows an UPDATE or DELETE to run without a predicate.
func (b Builder) All() Builder {
	return b.edit(func(q *Query) { q.All = true })
}

func singletonRows(values []any) [][]any {
	rows := make([][]any, len(values))
	for i, v := range values {
		rows[i] = []any{v}
	}
	return rows
}

// =============================================================================
// Joins
// =============================================================================

// Join inner-joins a relation, CTE or table.
func (b Builder) Join(target string, on ...Where) Builder {
	return b.JoinItem(JoinItem{Type: InnerJoin, Target: target, On: on})
}

// LeftJoin left-joins a relation, CTE or table.
func (b Builder) LeftJoin(target string, on ...Where) Builder {
	return b.JoinItem(JoinItem{Type: LeftJoin, Target: target, On: on})
}

// JoinLateral joins a relation or sub-query laterally.
func (b Builder) JoinLateral(target string, build func(*Query) *Query) Builder {
	return b.JoinItem(JoinItem{Type: InnerJoin, Lateral: true, Target: target, Callback: build})
}

// JoinQuery joins a sub-query under alias as.
func (b Builder) JoinQuery(sub *Query, as string, on ...Where) Builder {
	return b.JoinItem(JoinItem{Type: InnerJoin, Query: sub, As: as, On: on})
}

// JoinItem appends a fully specified join.
func (b Builder) JoinItem(j JoinItem) Builder {
	if j.Type == "" {
		j.Type = InnerJoin
	}
	return b.edit(func(q *Query) { q.Join = append(q.Join, j) })
}

// =============================================================================
// CTEs and set operations
// =============================================================================

// With defines a CTE.
func (b Builder) With(name string, sub *Query, opts ...WithOptions) Builder {
	return b.withItem(WithItem{Name: name, Query: sub}, opts)
}

// WithSQL defines a CTE from raw SQL.
func (b Builder) WithSQL(name string, raw Raw, opts ...WithOptions) Builder {
	return b.withItem(WithItem{Name: name, SQL: &raw}, opts)
}

// WithRecursive defines a recursive CTE. step receives a query over the
// CTE itself.
func (b Builder) WithRecursive(name string, base *Query, union SetOpKind, step func(self *Query) *Query, opts ...WithOptions) Builder {
	return b.withItem(WithItem{Name: name, Recursive: &RecursiveWith{Base: base, Step: step, Union: union}}, opts)
}

func (b Builder) withItem(item WithItem, opts []WithOptions) Builder {
	if len(opts) > 0 {
		item.Options = opts[0]
	}
	return b.edit(func(q *Query) { q.With = append(q.With, item) })
}

// Union appends UNION sub.
func (b Builder) Union(sub *Query) Builder {
	return b.SetOp(Union, sub)
}

// UnionAll appends UNION ALL sub.
func (b Builder) UnionAll(sub *Query) Builder {
	return b.SetOp(UnionAll, sub)
}

// SetOp appends a set operation.
func (b Builder) SetOp(kind SetOpKind, sub *Query) Builder {
	return b.edit(func(q *Query) { q.Union = append(q.Union, UnionItem{Kind: kind, Query: sub}) })
}

// =============================================================================
// Grouping, ordering, paging, locking
// =============================================================================

// Group adds GROUP BY columns.
func (b Builder) Group(cols ...string) Builder {
	return b.edit(func(q *Query) {
		for _, c := range cols {
			q.Group = append(q.Group, Ref(c))
		}
	})
}

// Having ANDs HAVING conditions.
func (b Builder) Having(w ...Where) Builder {
	return b.edit(func(q *Query) { q.Having = append(q.Having, w...) })
}

// Window declares a named window.
func (b Builder) Window(w WindowSpec) Builder {
	return b.edit(func(q *Query) { q.Window = append(q.Window, w) })
}

// Order appends ascending column orders.
func (b Builder) Order(cols ...string) Builder {
	return b.edit(func(q *Query) {
		for _, c := range cols {
			q.Order = append(q.Order, OrderItem{Column: c})
		}
	})
}

// OrderDesc appends a descending column order.
func (b Builder) OrderDesc(col string) Builder {
	return b.edit(func(q *Query) { q.Order = append(q.Order, OrderItem{Column: col, Desc: true}) })
}

// Limit sets LIMIT.
func (b Builder) Limit(n int) Builder {
	return b.edit(func(q *Query) { q.Limit = &n })
}

// Offset sets OFFSET.
func (b Builder) Offset(n int) Builder {
	return b.edit(func(q *Query) { q.Offset = &n })
}

// For locks the selected rows.
func (b Builder) For(mode LockMode, wait LockWait, of ...string) Builder {
	return b.edit(func(q *Query) { q.For = &Lock{Mode: mode, Of: of, Wait: wait} })
}

// =============================================================================
// Writes
// =============================================================================

// Row is a column→value record for writes.
type Row map[string]any

// Insert inserts rows. Columns are the sorted union of the rows' keys;
// keys missing from a row insert DEFAULT.
func (b Builder) Insert(rows ...Row) Builder {
	cols := rowColumns(rows)
	data := &InsertData{Columns: cols, Rows: make([][]any, len(rows))}
	for i, r := range rows {
		vals := make([]any, len(cols))
		for j, c := range cols {
			v, ok := r[c]
			if !ok {
				v = Default
			}
			vals[j] = v
		}
		data.Rows[i] = vals
	}
	return b.edit(func(q *Query) {
		q.Kind = InsertQuery
		q.Insert = data
	})
}

// InsertValues inserts positional rows.
func (b Builder) InsertValues(columns []string, rows ...[]any) Builder {
	return b.edit(func(q *Query) {
		q.Kind = InsertQuery
		q.Insert = &InsertData{Columns: columns, Rows: rows}
	})
}

// InsertFrom inserts the rows of sub, with constant values appended.
func (b Builder) InsertFrom(sub *Query, columns []string, values ...any) Builder {
	return b.edit(func(q *Query) {
		q.Kind = InsertQuery
		q.Insert = &InsertData{Columns: columns, From: sub, FromValues: values}
	})
}

// OnConflict sets the conflict clause.
func (b Builder) OnConflict(oc OnConflict) Builder {
	return b.edit(func(q *Query) { q.OnConflict = &oc })
}

// OnConflictIgnore is ON CONFLICT (cols) DO NOTHING.
func (b Builder) OnConflictIgnore(cols ...string) Builder {
	return b.OnConflict(OnConflict{Columns: cols, DoNothing: true})
}

// OnConflictMerge updates every inserted column except the target ones.
func (b Builder) OnConflictMerge(cols []string, except ...string) Builder {
	return b.OnConflict(OnConflict{Columns: cols, Merge: true, Except: except})
}

// Update turns the query into an UPDATE with sorted assignments.
func (b Builder) Update(set Row) Builder {
	keys := sortedKeys(set)
	sets := make([]Set, len(keys))
	for i, k := range keys {
		sets[i] = Set{Column: k, Value: set[k]}
	}
	return b.UpdateSets(sets...)
}

// UpdateSets turns the query into an UPDATE with ordered assignments.
func (b Builder) UpdateSets(sets ...Set) Builder {
	return b.edit(func(q *Query) {
		q.Kind = UpdateQuery
		q.Update = append(q.Update, sets...)
	})
}

// Delete turns the query into a DELETE.
func (b Builder) Delete() Builder {
	return b.edit(func(q *Query) { q.Kind = DeleteQuery })
}

// Upsert updates matching rows, or inserts create when none matched.
func (b Builder) Upsert(update, create Row) Builder {
	upd := Wrap(&Query{}).Update(update).Query().Update
	cols := sortedKeys(create)
	row := make([]any, len(cols))
	for i, c := range cols {
		row[i] = create[c]
	}
	return b.edit(func(q *Query) {
		q.Kind = UpsertQuery
		q.Upsert = &UpsertData{Update: upd, Create: InsertData{Columns: cols, Rows: [][]any{row}}}
	})
}

// OrCreate returns the matching rows, or inserts create when none exist.
func (b Builder) OrCreate(create Row) Builder {
	cols := sortedKeys(create)
	row := make([]any, len(cols))
	for i, c := range cols {
		row[i] = create[c]
	}
	return b.edit(func(q *Query) { q.OrCreate = &InsertData{Columns: cols, Rows: [][]any{row}} })
}

// Truncate turns the query into TRUNCATE.
func (b Builder) Truncate(opts TruncateOptions) Builder {
	return b.edit(func(q *Query) {
		q.Kind = TruncateQuery
		q.Truncate = &opts
	})
}

// Copy turns the query into COPY.
func (b Builder) Copy(opts CopyOptions) Builder {
	return b.edit(func(q *Query) {
		q.Kind = CopyQuery
		q.Copy = &opts
	})
}

// ColumnInfo turns the query into a lookup of the table's column metadata,
// narrowed to one column when column is not empty.
func (b Builder) ColumnInfo(column string) Builder {
	return b.edit(func(q *Query) {
		q.Kind = ColumnInfoQuery
		q.ColumnInfo = column
	})
}

// Related starts a select over the target of relation name, narrowed to
// rows related to the rows this query matches.
func (b Builder) Related(name string) (Builder, bool) {
	q := b.Query()
	rel, ok := q.Relations[name]
	if !ok {
		return Builder{}, false
	}
	to := rel.Target()
	if to.Alias() == q.Alias() {
		to = to.Clone()
		to.As = name
	}
	from := rel.ReverseJoin(q, to)
	return Wrap(to).Where(Exists{Query: from}), true
}

func rowColumns(rows []Row) []string {
	seen := map[string]bool{}
	var cols []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
