package compile

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/shipq/pgq/query"
)

// copyQuery renders COPY. Values bound here are inlined by Compile since
// COPY accepts no parameters.
func (c *Context) copyQuery(b *strings.Builder, q *query.Query) error {
	opts := q.Copy
	if opts == nil {
		return fmt.Errorf("copy without options: %w", ErrInvalidQuery)
	}
	dir := opts.Direction
	if dir == "" {
		dir = query.CopyFrom
	}
	if dir != query.CopyFrom && dir != query.CopyTo {
		return fmt.Errorf("copy direction %q: %w", dir, ErrInvalidQuery)
	}

	b.WriteString("COPY ")
	switch {
	case opts.Query != nil:
		if dir != query.CopyTo {
			return fmt.Errorf("copying a query requires TO: %w", ErrInvalidQuery)
		}
		b.WriteString("(")
		if err := c.subquery(b, opts.Query, returnAll); err != nil {
			return err
		}
		b.WriteString(")")
	case q.Table != "":
		b.WriteString(quoteTable(q.Schema, q.Table))
		if len(opts.Columns) > 0 {
			s, err := c.scopeOf(q)
			if err != nil {
				return err
			}
			cols, err := physicalColumns(s, opts.Columns)
			if err != nil {
				return err
			}
			b.WriteString("(")
			b.WriteString(quoteList(cols))
			b.WriteString(")")
		}
	default:
		return ErrMissingTable
	}

	b.WriteString(" ")
	b.WriteString(string(dir))
	b.WriteString(" ")
	switch {
	case opts.Program:
		if opts.Path == "" {
			return fmt.Errorf("copy program without a command: %w", ErrInvalidQuery)
		}
		b.WriteString("PROGRAM ")
		b.WriteString(pq.QuoteLiteral(opts.Path))
	case opts.Path != "":
		b.WriteString(pq.QuoteLiteral(opts.Path))
	case dir == query.CopyFrom:
		b.WriteString("STDIN")
	default:
		b.WriteString("STDOUT")
	}

	if with := copyOptions(opts); with != "" {
		b.WriteString(" WITH (")
		b.WriteString(with)
		b.WriteString(")")
	}

	if q.HasPredicate() {
		if dir != query.CopyFrom || opts.Query != nil {
			return fmt.Errorf("copy WHERE requires FROM: %w", ErrInvalidQuery)
		}
		s, err := c.scopeOf(q)
		if err != nil {
			return err
		}
		s.unqualified = true
		where, err := c.predicate(s, q.And, q.Or)
		if err != nil {
			return err
		}
		b.WriteString(" WHERE ")
		b.WriteString(where.sql)
	}
	return nil
}

func copyOptions(o *query.CopyOptions) string {
	var parts []string
	if o.Format != "" {
		parts = append(parts, "FORMAT "+strings.ToLower(o.Format))
	}
	if o.Header {
		parts = append(parts, "HEADER true")
	}
	if o.Freeze {
		parts = append(parts, "FREEZE true")
	}
	if o.Delimiter != "" {
		parts = append(parts, "DELIMITER "+pq.QuoteLiteral(o.Delimiter))
	}
	if o.Null != "" {
		parts = append(parts, "NULL "+pq.QuoteLiteral(o.Null))
	}
	if o.Quote != "" {
		parts = append(parts, "QUOTE "+pq.QuoteLiteral(o.Quote))
	}
	if o.Escape != "" {
		parts = append(parts, "ESCAPE "+pq.QuoteLiteral(o.Escape))
	}
	if len(o.ForceQuote) > 0 {
		if len(o.ForceQuote) == 1 && o.ForceQuote[0] == "*" {
			parts = append(parts, "FORCE_QUOTE *")
		} else {
			parts = append(parts, "FORCE_QUOTE ("+quoteList(o.ForceQuote)+")")
		}
	}
	if len(o.ForceNotNull) > 0 {
		parts = append(parts, "FORCE_NOT_NULL ("+quoteList(o.ForceNotNull)+")")
	}
	if o.Encoding != "" {
		parts = append(parts, "ENCODING "+pq.QuoteLiteral(o.Encoding))
	}
	return strings.Join(parts, ", ")
}
