package compile

import (
	"strings"

	"github.com/shipq/pgq/query"
)

// columnInfoQuery reads column metadata of q's table from
// information_schema, optionally for one column.
func (c *Context) columnInfoQuery(b *strings.Builder, q *query.Query) error {
	if q.Table == "" {
		return ErrMissingTable
	}
	b.WriteString(`SELECT column_name AS "name", column_default AS "defaultValue", ` +
		`is_nullable = 'YES' AS "allowNull", data_type AS "type", ` +
		`character_maximum_length AS "maxLength" ` +
		`FROM information_schema.columns WHERE table_name = `)
	b.WriteString(c.Encode(q.Table))
	b.WriteString(" AND table_catalog = current_database() AND table_schema = ")
	if q.Schema == "" {
		b.WriteString("current_schema()")
	} else {
		b.WriteString(c.Encode(q.Schema))
	}
	if q.ColumnInfo != "" {
		name := q.ColumnInfo
		if def, ok := q.Shape.Get(name); ok {
			name = def.Physical()
		}
		b.WriteString(" AND column_name = ")
		b.WriteString(c.Encode(name))
	}
	return nil
}

// truncateQuery renders TRUNCATE for q's table plus any extra tables.
func (c *Context) truncateQuery(b *strings.Builder, q *query.Query) error {
	if q.Table == "" {
		return ErrMissingTable
	}
	b.WriteString("TRUNCATE ")
	b.WriteString(quoteTable(q.Schema, q.Table))
	opts := q.Truncate
	if opts == nil {
		return nil
	}
	for _, t := range opts.Tables {
		b.WriteString(", ")
		b.WriteString(quote(t))
	}
	if opts.RestartIdentity {
		b.WriteString(" RESTART IDENTITY")
	}
	if opts.Cascade {
		b.WriteString(" CASCADE")
	}
	return nil
}
