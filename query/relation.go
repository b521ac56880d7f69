package query

// Relation links a table to a related one. Implementations live in the
// relation package.
//
// JoinQuery returns to narrowed to rows related to from. ReverseJoin
// returns from narrowed to rows related to to. Both reference the other
// side by its Alias.
type Relation interface {
	Target() *Query
	Many() bool
	JoinQuery(from, to *Query) *Query
	ReverseJoin(from, to *Query) *Query
}
