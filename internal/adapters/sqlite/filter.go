package sqlite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/ports"
)

// fieldExpr maps a document field path to a SQL expression. "id" is a column.
func fieldExpr(path string) string {
	if path == "id" {
		return "id"
	}
	return fmt.Sprintf("json_extract(content, '$.%s')", path)
}

// buildWhere renders a WHERE clause for collection plus filter. Keys are
// sorted so the rendered SQL is stable.
func buildWhere(collection string, filter domain.Filter) (string, []any, error) {
	if err := ports.ValidateFilter(filter); err != nil {
		return "", nil, err
	}

	clauses := []string{"collection = ?"}
	args := []any{collection}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		expr := fieldExpr(k)
		switch v := filter[k].(type) {
		case nil:
			clauses = append(clauses, expr+" IS NULL")
		case bool:
			// json_extract yields 1/0 for JSON booleans.
			b := int64(0)
			if v {
				b = 1
			}
			clauses = append(clauses, expr+" = ?")
			args = append(args, b)
		case int:
			clauses = append(clauses, expr+" = ?")
			args = append(args, int64(v))
		case int32:
			clauses = append(clauses, expr+" = ?")
			args = append(args, int64(v))
		case float32:
			clauses = append(clauses, expr+" = ?")
			args = append(args, float64(v))
		default:
			clauses = append(clauses, expr+" = ?")
			args = append(args, v)
		}
	}

	return "WHERE " + strings.Join(clauses, " AND "), args, nil
}

func buildOrder(o ports.QueryOptions) (string, error) {
	if o.OrderBy == "" {
		return "ORDER BY created_at, rowid", nil
	}
	if err := ports.ValidateFieldPath(o.OrderBy); err != nil {
		return "", err
	}
	dir := "ASC"
	if o.Descending {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, rowid %s", fieldExpr(o.OrderBy), dir, dir), nil
}
