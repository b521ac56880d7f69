package query

// Expr is a SQL value expression. The set of implementations is closed.
type Expr interface {
	isExpr()
}

// Raw is a SQL fragment inlined as written. Its ordinal ($1) or named
// (:name) parameters are renumbered into the statement's bind list.
type Raw struct {
	SQL   string
	Args  []any
	Named map[string]any
}

// Ref references a column as "name" or "table.name".
type Ref string

// Value binds V as a parameter.
type Value struct {
	V any
}

// Fn calls a SQL function or aggregate.
type Fn struct {
	Name     string
	Args     []Expr
	Star     bool
	Distinct bool
	Order    []OrderItem
	Filter   []Where
	Over     *WindowSpec
}

// Excluded references the row proposed for insertion in ON CONFLICT.
type Excluded string

type defaultExpr struct{}

// Default compiles to the DEFAULT keyword in insert rows and assignments.
var Default Expr = defaultExpr{}

// SetOp assigns "col = col <Op> Arg" in UPDATE.
type SetOp struct {
	Op  string
	Arg any
}

func (Raw) isExpr()         {}
func (Ref) isExpr()         {}
func (Value) isExpr()       {}
func (Fn) isExpr()          {}
func (Excluded) isExpr()    {}
func (defaultExpr) isExpr() {}
func (*Query) isExpr()      {}

// SQL returns a Raw fragment with ordinal arguments.
func SQL(sql string, args ...any) Raw {
	return Raw{SQL: sql, Args: args}
}

// Count is count(*) or count(expr).
func Count(args ...Expr) Fn {
	if len(args) == 0 {
		return Fn{Name: "count", Star: true}
	}
	return Fn{Name: "count", Args: args}
}

// Increment is a SetOp adding n.
func Increment(n any) SetOp {
	return SetOp{Op: "+", Arg: n}
}

// Decrement is a SetOp subtracting n.
func Decrement(n any) SetOp {
	return SetOp{Op: "-", Arg: n}
}
