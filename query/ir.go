package query

// Kind identifies the type of statement a Query compiles to.
type Kind string

const (
	SelectQuery     Kind = ""
	InsertQuery     Kind = "insert"
	UpdateQuery     Kind = "update"
	DeleteQuery     Kind = "delete"
	UpsertQuery     Kind = "upsert"
	TruncateQuery   Kind = "truncate"
	ColumnInfoQuery Kind = "columnInfo"
	CopyQuery       Kind = "copy"
)

// Mutative reports whether the statement writes rows. PostgreSQL only accepts
// such statements at the top level or inside WITH.
func (k Kind) Mutative() bool {
	switch k {
	case InsertQuery, UpdateQuery, DeleteQuery, UpsertQuery:
		return true
	}
	return false
}

func (k Kind) String() string {
	if k == SelectQuery {
		return "select"
	}
	return string(k)
}

// Query is the structured description of one logical statement.
//
// Values are treated as immutable: builder methods return modified copies
// and the compiler never writes to a Query it is given.
type Query struct {
	Kind   Kind
	Table  string
	Schema string
	As     string
	From   *Source

	Shape       Shape
	PrimaryKeys []string
	Relations   map[string]Relation

	Select     []SelectItem
	Distinct   bool
	DistinctOn []string
	// HookSelect lists extra columns required by after-hooks. They are
	// appended to an explicit select or returning list when missing.
	HookSelect []string

	And []Where
	Or  [][]Where

	Join   []JoinItem
	Group  []Expr
	Having []Where
	Window []WindowSpec
	Order  []OrderItem
	Limit  *int
	Offset *int
	For    *Lock

	With  []WithItem
	Union []UnionItem

	Insert     *InsertData
	OnConflict *OnConflict
	Update     []Set
	Upsert     *UpsertData
	OrCreate   *InsertData
	Truncate   *TruncateOptions
	Copy       *CopyOptions
	ColumnInfo string

	// JoinedShapes declares shapes of aliases that are in scope without
	// being joined by this query, such as an outer query's tables.
	JoinedShapes map[string]Shape
	// WithShapes declares shapes of CTEs defined outside this query.
	WithShapes map[string]Shape

	// All allows UPDATE and DELETE without a predicate.
	All bool
}

// Source is a FROM target other than the query's own table.
type Source struct {
	Name  string
	Query *Query
	Raw   *Raw
}

// Alias returns the name the query's rows are addressed by.
func (q *Query) Alias() string {
	switch {
	case q.As != "":
		return q.As
	case q.Table != "":
		return q.Table
	case q.From != nil && q.From.Name != "":
		return q.From.Name
	}
	return "t"
}

// HasPredicate reports whether any WHERE condition was supplied.
func (q *Query) HasPredicate() bool {
	return len(q.And) > 0 || len(q.Or) > 0
}

// PrimaryKey returns the declared primary key columns, falling back to the
// shape's primary key columns.
func (q *Query) PrimaryKey() []string {
	if len(q.PrimaryKeys) > 0 {
		return q.PrimaryKeys
	}
	var keys []string
	for _, c := range q.Shape {
		if c.PrimaryKey {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

// IsTableRef reports whether q is nothing but a reference to its table.
func (q *Query) IsTableRef() bool {
	return q.Kind == SelectQuery && q.Table != "" && q.From == nil &&
		len(q.Select) == 0 && !q.HasPredicate() && len(q.Join) == 0 &&
		len(q.Group) == 0 && len(q.Having) == 0 && len(q.Order) == 0 &&
		q.Limit == nil && q.Offset == nil && q.For == nil &&
		len(q.With) == 0 && len(q.Union) == 0 && !q.Distinct &&
		q.OrCreate == nil
}

// =============================================================================
// Select, order, window
// =============================================================================

// SelectItem is one entry of a SELECT or RETURNING list. Exactly one of
// Column, Expr, Relation or JSONPath is set.
type SelectItem struct {
	// Column is "name", "table.name", "table.*" or "*".
	Column string
	Expr   Expr
	As     string

	// Relation selects a related record (or list of records) as JSON.
	Relation string
	Build    func(*Query) *Query

	JSONPath *JSONPath
}

// JSONPath selects jsonb_path_query_first(Column, Path).
type JSONPath struct {
	Column string
	Path   string
}

// OrderItem is one ORDER BY entry.
type OrderItem struct {
	Column string
	Expr   Expr
	Desc   bool
	Nulls  string // "FIRST" or "LAST"
}

// WindowSpec is a named window in the WINDOW clause, or an inline OVER
// specification when used from Fn.
type WindowSpec struct {
	Name        string
	PartitionBy []string
	Order       []OrderItem
}

// LockMode is the strength of a row-level lock.
type LockMode string

const (
	ForUpdate      LockMode = "UPDATE"
	ForNoKeyUpdate LockMode = "NO KEY UPDATE"
	ForShare       LockMode = "SHARE"
	ForKeyShare    LockMode = "KEY SHARE"
)

// LockWait controls behavior on a locked row.
type LockWait string

const (
	LockWaitDefault LockWait = ""
	NoWait          LockWait = "NOWAIT"
	SkipLocked      LockWait = "SKIP LOCKED"
)

// Lock is a FOR ... clause.
type Lock struct {
	Mode LockMode
	Of   []string
	Wait LockWait
}

// =============================================================================
// Joins
// =============================================================================

// JoinType is the join keyword.
type JoinType string

const (
	InnerJoin JoinType = "JOIN"
	LeftJoin  JoinType = "LEFT JOIN"
	RightJoin JoinType = "RIGHT JOIN"
	FullJoin  JoinType = "FULL JOIN"
)

// JoinItem joins a relation, a CTE, a table or a sub-query.
//
// Target is resolved in order: relation of the joining query, CTE name,
// table name. Query, when set, takes precedence over Target.
type JoinItem struct {
	Type    JoinType
	Lateral bool
	Target  string
	Query   *Query
	As      string
	On      []Where
	// Callback receives a query over the join target with the joining
	// query's aliases in scope, and returns it with ON conditions added.
	Callback func(*Query) *Query
}

// =============================================================================
// CTEs and set operations
// =============================================================================

// WithOptions modifies a CTE definition.
type WithOptions struct {
	Columns         []string
	Recursive       bool
	Materialized    bool
	NotMaterialized bool
}

// WithItem is one named CTE. Exactly one of Query, SQL, Recursive is set.
type WithItem struct {
	Name      string
	Options   WithOptions
	Query     *Query
	SQL       *Raw
	Recursive *RecursiveWith
}

// RecursiveWith builds a recursive CTE from a base query and a step. Step
// receives a query reading from the CTE being defined. It may be called
// more than once per compile.
type RecursiveWith struct {
	Base  *Query
	Step  func(self *Query) *Query
	Union SetOpKind
}

// SetOpKind is a set operation joining two selects.
type SetOpKind string

const (
	Union        SetOpKind = "UNION"
	UnionAll     SetOpKind = "UNION ALL"
	Intersect    SetOpKind = "INTERSECT"
	IntersectAll SetOpKind = "INTERSECT ALL"
	Except       SetOpKind = "EXCEPT"
	ExceptAll    SetOpKind = "EXCEPT ALL"
)

// UnionItem appends a set operation to a select.
type UnionItem struct {
	Kind  SetOpKind
	Query *Query
	Raw   *Raw
}

// =============================================================================
// Writes
// =============================================================================

// InsertData holds inserted rows. A row shorter than Columns inserts
// DEFAULT for the missing trailing columns.
type InsertData struct {
	Columns []string
	Rows    [][]any
	// From inserts the rows of a select instead of Rows. FromValues are
	// appended to its projection as constants.
	From       *Query
	FromValues []any
}

// OnConflict is an INSERT ... ON CONFLICT clause.
type OnConflict struct {
	Columns    []string
	Constraint string
	Raw        *Raw

	DoNothing bool
	Set       []Set
	// Merge updates every inserted column except the target and Except.
	Merge  bool
	Except []string
	Where  []Where
}

// Set is one UPDATE assignment. Value is a literal, nil, Default, an Expr,
// a SetOp or a *Query.
type Set struct {
	Column string
	Value  any
}

// UpsertData describes an emulated upsert: Update runs against rows
// matching the query's predicate, Create inserts one row when nothing
// was updated.
type UpsertData struct {
	Update []Set
	Create InsertData
}

// TruncateOptions modifies TRUNCATE.
type TruncateOptions struct {
	Tables          []string
	RestartIdentity bool
	Cascade         bool
}

// CopyDirection is FROM (load) or TO (dump).
type CopyDirection string

const (
	CopyFrom CopyDirection = "FROM"
	CopyTo   CopyDirection = "TO"
)

// CopyOptions describe a COPY statement. An empty Path reads STDIN or
// writes STDOUT.
type CopyOptions struct {
	Direction CopyDirection
	Columns   []string
	Path      string
	Program   bool
	// Query copies the result of a select instead of the table.
	Query *Query

	Format       string
	Header       bool
	Delimiter    string
	Null         string
	Quote        string
	Escape       string
	Encoding     string
	Freeze       bool
	ForceQuote   []string
	ForceNotNull []string
}
