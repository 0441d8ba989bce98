package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SelectRows reads every row of schema.table as a column name to value map.
// Values are decoded through json, so numbers, booleans, json and arrays keep
// their json shape and other types (ranges, timestamps) become strings.
func SelectRows(ctx context.Context, conn Conn, schema, table string, limit int) ([]map[string]any, error) {
	ident := pgx.Identifier{schema, table}.Sanitize()
	sql := fmt.Sprintf("SELECT to_jsonb(t) FROM %s t", ident)
	args := []any{}
	if limit > 0 {
		sql += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", ident, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[map[string]any])
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", ident, err)
	}
	return out, nil
}
