package query

// Where is one predicate node. Siblings in a list are ANDed.
type Where interface {
	isWhere()
}

// Cols maps column names to conditions. A condition is a literal (compared
// with =), nil (IS NULL), Ops, an Expr or a *Query.
type Cols map[string]any

// Ops maps operator names to arguments, e.g. Ops{"gt": 1, "lt": 10}.
type Ops map[string]any

// Not negates the AND of its members.
type Not []Where

// Or is a list of AND-groups joined with OR.
type Or [][]Where

// Group parenthesizes a nested predicate: And, OR-ed with each Or group.
type Group struct {
	And []Where
	Or  [][]Where
}

// In is a (NOT) IN test. Columns has one entry for a scalar test, several
// for a tuple test. The right side is Values, Query or Raw.
type In struct {
	Columns []string
	Values  [][]any
	Query   *Query
	Raw     *Raw
	Not     bool
}

// Exists is a correlated (NOT) EXISTS test. Target names a relation of the
// owning query or a table; Query supplies the sub-query directly.
type Exists struct {
	Target   string
	Query    *Query
	On       []Where
	Callback func(*Query) *Query
	Not      bool
}

// On compares two column references. Used for join and correlation
// conditions.
type On struct {
	Left  string
	Op    string
	Right string
}

// OnJSONPathEquals compares JSON path values of two columns.
type OnJSONPathEquals struct {
	Left      string
	LeftPath  string
	Right     string
	RightPath string
}

// Compare is "<Left> <Op> <Right>" where Right is a literal or Expr. It is
// the usual HAVING condition.
type Compare struct {
	Left  Expr
	Op    string
	Right any
}

func (Cols) isWhere()             {}
func (Not) isWhere()              {}
func (Or) isWhere()               {}
func (Group) isWhere()            {}
func (In) isWhere()               {}
func (Exists) isWhere()           {}
func (On) isWhere()               {}
func (OnJSONPathEquals) isWhere() {}
func (Compare) isWhere()          {}
func (Raw) isWhere()              {}

// JSONPathArg is the argument of the "jsonPath" operator.
type JSONPathArg struct {
	Path  string
	Op    string
	Value any
}
