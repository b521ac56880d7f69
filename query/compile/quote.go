package compile

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// quote double-quotes an identifier.
func quote(name string) string {
	return pq.QuoteIdentifier(name)
}

// quoteTable quotes a possibly schema-qualified table name.
func quoteTable(schema, table string) string {
	if schema == "" {
		return quote(table)
	}
	return quote(schema) + "." + quote(table)
}

// quoteColumn quotes "table"."column", or "column" without a table.
func quoteColumn(table, column string) string {
	if table == "" {
		return quote(column)
	}
	return quote(table) + "." + quote(column)
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}

// literal renders v as an inline SQL literal, for statements that cannot
// take bind parameters.
func literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return pq.QuoteLiteral(x), nil
	case []byte:
		return `'\x` + hex.EncodeToString(x) + `'`, nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(x), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case time.Time:
		return pq.QuoteLiteral(x.Format(time.RFC3339Nano)), nil
	case fmt.Stringer:
		return pq.QuoteLiteral(x.String()), nil
	}
	return "", fmt.Errorf("cannot inline %T as a literal: %w", v, ErrInvalidQuery)
}
