package query

// OperatorSet names the set of predicate operators a column accepts.
type OperatorSet string

const (
	OpsAny     OperatorSet = "any"
	OpsBase    OperatorSet = "base"
	OpsNumeric OperatorSet = "numeric"
	OpsText    OperatorSet = "text"
	OpsBoolean OperatorSet = "boolean"
	OpsJSON    OperatorSet = "json"
	OpsDate    OperatorSet = "date"
	OpsArray   OperatorSet = "array"
)

// Column describes one column of a table shape.
type Column struct {
	// Name is the logical name used in queries and results.
	Name string
	// DBName is the physical name when it differs from Name.
	DBName    string
	Type      string
	Operators OperatorSet
	// Computed columns are substituted by their expression.
	Computed   Expr
	Hidden     bool
	PrimaryKey bool
}

// Physical returns the column name as stored in the database.
func (c Column) Physical() string {
	if c.DBName != "" {
		return c.DBName
	}
	return c.Name
}

// Renamed reports whether the physical name differs from the logical one.
func (c Column) Renamed() bool {
	return c.DBName != "" && c.DBName != c.Name
}

// Shape is the ordered list of columns a table or CTE exposes. A nil Shape
// is undeclared and accepts any column name.
type Shape []Column

// Get looks up a column by logical name.
func (s Shape) Get(name string) (Column, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Declared reports whether the shape constrains column names.
func (s Shape) Declared() bool {
	return s != nil
}

// Plain reports whether every column can be selected with "*" unchanged.
func (s Shape) Plain() bool {
	for _, c := range s {
		if c.Hidden || c.Renamed() || c.Computed != nil {
			return false
		}
	}
	return true
}

// Visible returns the columns that are not hidden.
func (s Shape) Visible() Shape {
	out := make(Shape, 0, len(s))
	for _, c := range s {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

// Names returns logical column names in order.
func (s Shape) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// ShapeOf builds an undeclared-operator shape from column names.
func ShapeOf(names ...string) Shape {
	s := make(Shape, len(names))
	for i, n := range names {
		s[i] = Column{Name: n, Operators: OpsAny}
	}
	return s
}
