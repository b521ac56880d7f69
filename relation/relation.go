// Package relation defines how tables relate: belongs-to, has-one,
// has-many, has-and-belongs-to-many and through. Each kind narrows one
// side of the relation to the rows related to the other, which is all the
// compiler needs to join, select or filter by a relation.
//
// Keys left empty are derived from table names:
//
//	posts BelongsTo users        posts.user_id = users.id
//	users HasMany posts          posts.user_id = users.id
//	users HABTM roles            roles_users.user_id = users.id AND roles_users.role_id = roles.id
package relation

import (
	"github.com/shipq/pgq/dbstrings"
	"github.com/shipq/pgq/query"
)

// BelongsTo relates a row holding a foreign key to the row it references.
type BelongsTo struct {
	To *query.Query
	// ForeignKey is the column of the owning table, default <to>_id.
	ForeignKey string
	// PrimaryKey is the referenced column of To, default its primary key.
	PrimaryKey string
}

// HasOne relates a row to the single row referencing it.
type HasOne struct {
	To *query.Query
	// ForeignKey is the column of To, default <from>_id.
	ForeignKey string
	// PrimaryKey is the referenced column of the owning table.
	PrimaryKey string
}

// HasMany relates a row to every row referencing it.
type HasMany HasOne

// HasAndBelongsToMany relates rows of two tables through a join table
// holding a foreign key to each.
type HasAndBelongsToMany struct {
	To *query.Query
	// JoinTable defaults to both table names in alphabetical order.
	JoinTable string
	// ForeignKey references the owning table, default <from>_id.
	ForeignKey string
	// AssociationForeignKey references To, default <to>_id.
	AssociationForeignKey string
	PrimaryKey            string
	AssociationPrimaryKey string
}

// Through chains two relations: from to the Through target, and from
// there to the Source target.
type Through struct {
	Through query.Relation
	Source  query.Relation
}

var (
	_ query.Relation = BelongsTo{}
	_ query.Relation = HasOne{}
	_ query.Relation = HasMany{}
	_ query.Relation = HasAndBelongsToMany{}
	_ query.Relation = Through{}
)

func (r BelongsTo) Target() *query.Query { return r.To }
func (r BelongsTo) Many() bool           { return false }

func (r BelongsTo) JoinQuery(from, to *query.Query) *query.Query {
	return narrow(to, r.condition(from, to))
}

func (r BelongsTo) ReverseJoin(from, to *query.Query) *query.Query {
	return narrow(from, r.condition(from, to))
}

func (r BelongsTo) condition(from, to *query.Query) query.Where {
	fk := r.ForeignKey
	if fk == "" {
		fk = dbstrings.ForeignKey(to.Table)
	}
	return query.Cols{column(to, primaryKey(r.PrimaryKey, to)): query.Ref(column(from, fk))}
}

func (r HasOne) Target() *query.Query { return r.To }
func (r HasOne) Many() bool           { return false }

func (r HasOne) JoinQuery(from, to *query.Query) *query.Query {
	return narrow(to, r.condition(from, to))
}

func (r HasOne) ReverseJoin(from, to *query.Query) *query.Query {
	return narrow(from, r.condition(from, to))
}

func (r HasOne) condition(from, to *query.Query) query.Where {
	fk := r.ForeignKey
	if fk == "" {
		fk = dbstrings.ForeignKey(from.Table)
	}
	return query.Cols{column(to, fk): query.Ref(column(from, primaryKey(r.PrimaryKey, from)))}
}

func (r HasMany) Target() *query.Query { return r.To }
func (r HasMany) Many() bool           { return true }

func (r HasMany) JoinQuery(from, to *query.Query) *query.Query {
	return HasOne(r).JoinQuery(from, to)
}

func (r HasMany) ReverseJoin(from, to *query.Query) *query.Query {
	return HasOne(r).ReverseJoin(from, to)
}

func (r HasAndBelongsToMany) Target() *query.Query { return r.To }
func (r HasAndBelongsToMany) Many() bool           { return true }

func (r HasAndBelongsToMany) JoinQuery(from, to *query.Query) *query.Query {
	return narrow(to, r.condition(from, to))
}

func (r HasAndBelongsToMany) ReverseJoin(from, to *query.Query) *query.Query {
	return narrow(from, r.condition(from, to))
}

// condition is EXISTS over the join table row linking from and to.
func (r HasAndBelongsToMany) condition(from, to *query.Query) query.Where {
	jt := r.JoinTable
	if jt == "" {
		jt = dbstrings.JoinTable(from.Table, to.Table)
	}
	fk := r.ForeignKey
	if fk == "" {
		fk = dbstrings.ForeignKey(from.Table)
	}
	afk := r.AssociationForeignKey
	if afk == "" {
		afk = dbstrings.ForeignKey(to.Table)
	}
	link := &query.Query{
		Table: jt,
		And: []query.Where{
			query.Cols{jt + "." + fk: query.Ref(column(from, primaryKey(r.PrimaryKey, from)))},
			query.Cols{jt + "." + afk: query.Ref(column(to, primaryKey(r.AssociationPrimaryKey, to)))},
		},
	}
	return query.Exists{Query: link}
}

func (r Through) Target() *query.Query { return r.Source.Target() }
func (r Through) Many() bool           { return r.Through.Many() || r.Source.Many() }

func (r Through) JoinQuery(from, to *query.Query) *query.Query {
	return narrow(to, r.condition(from, to))
}

func (r Through) ReverseJoin(from, to *query.Query) *query.Query {
	return narrow(from, r.condition(from, to))
}

// condition is EXISTS over the intermediate rows related to both sides.
func (r Through) condition(from, to *query.Query) query.Where {
	mid := r.Through.Target().Clone()
	if mid.Alias() == from.Alias() || mid.Alias() == to.Alias() {
		mid.As = mid.Alias() + "_through"
	}
	related := r.Through.JoinQuery(from, mid)
	return query.Exists{Query: r.Source.ReverseJoin(related, to)}
}

// narrow returns q with w added to its conditions.
func narrow(q *query.Query, w query.Where) *query.Query {
	n := q.Clone()
	n.And = append(n.And, w)
	return n
}

func column(q *query.Query, name string) string {
	return q.Alias() + "." + name
}

func primaryKey(explicit string, q *query.Query) string {
	if explicit != "" {
		return explicit
	}
	if keys := q.PrimaryKey(); len(keys) > 0 {
		return keys[0]
	}
	return "id"
}
