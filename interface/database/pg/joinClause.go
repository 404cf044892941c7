package pg

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

func limitOffsetClause(page, limit int) string {
	switch {
	case limit <= 0:
		return ""
	case page <= 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	default:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, page*limit)
	}
}

// namePattern converts a name pattern to the value and the operator of a comparison:
// "*" and "?" wildcards are converted to "%" and "_" (LIKE),
// a "(?i)" suffix makes the comparison case-insensitive (ILIKE),
// a pattern without wildcard is compared with "="
func namePattern(pattern string) (value, operator string) {
	insensitive := strings.HasSuffix(pattern, "(?i)")
	pattern = strings.TrimSuffix(pattern, "(?i)")
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(pattern)
	value = strings.NewReplacer("*", "%", "?", "_").Replace(escaped)
	switch {
	case insensitive:
		return value, "ILIKE"
	case value != escaped:
		return value, "LIKE"
	default:
		return pattern, "="
	}
}

// joinClause builds a clause with positional parameters ($1, $2...)
type joinClause struct {
	Parameters []interface{}
	clause     []string
}

// append a condition. Each %d of the condition is replaced by the position of the corresponding parameter
func (wc *joinClause) append(condition string, parameters ...interface{}) {
	positions := make([]interface{}, len(parameters))
	for i := range parameters {
		positions[i] = len(wc.Parameters) + i + 1
	}
	wc.Parameters = append(wc.Parameters, parameters...)
	wc.clause = append(wc.clause, fmt.Sprintf(condition, positions...))
}

// appendAny appends the condition "column is one of the values", casted as sqlType[]
func (wc *joinClause) appendAny(column, sqlType string, values []string) {
	wc.append(column+" = ANY($%d::"+sqlType+"[])", pq.Array(values))
}

func (wc joinClause) WhereClause() string {
	return wc.Clause(" WHERE ", " AND ", "")
}

func (wc joinClause) Clause(prefix, sep, suffix string) string {
	if len(wc.clause) == 0 {
		return ""
	}
	return prefix + strings.Join(wc.clause, sep) + suffix
}
