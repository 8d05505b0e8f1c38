package store

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Report ejecuta query y escribe el resultado separado por '|', con los
// nombres de columna en la primera línea. Devuelve el número de filas.
func (s *Store) Report(ctx context.Context, query string, w io.Writer) (int, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	if _, err := fmt.Fprintln(w, strings.Join(columns, "|")); err != nil {
		return 0, err
	}

	values := make([]any, len(columns))
	scanArgs := make([]any, len(values))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	count := 0
	cells := make([]string, len(columns))
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return count, err
		}
		for i, v := range values {
			cells[i] = cell(v)
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, "|")); err != nil {
			return count, err
		}
		count++
	}
	return count, rows.Err()
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%f", val)
	default:
		return fmt.Sprintf("%v", v)
	}
}
