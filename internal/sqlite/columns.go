package sqlite

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/sectional/pkg/types"
)

// fromStorage converts a scanned SQLite value into the representation
// Record.Fields uses for the column.
func fromStorage(col types.Column, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch col.Kind {
	case types.ColumnBool:
		switch x := v.(type) {
		case int64:
			return x != 0
		case bool:
			return x
		case float64:
			return x != 0
		}
		return false
	case types.ColumnInt:
		switch x := v.(type) {
		case int64:
			return x
		case float64:
			return int64(x)
		}
		return int64(0)
	case types.ColumnRef:
		if s, ok := v.(string); ok {
			return s
		}
		return ""
	}
	if v == nil {
		return ""
	}
	return v
}

// toStorage converts a Fields value into a SQL argument. Unset references
// become NULL.
func toStorage(col types.Column, v any) any {
	if col.Kind == types.ColumnRef {
		if s, _ := v.(string); s != "" {
			return s
		}
		return nil
	}
	if col.Kind == types.ColumnInt {
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	}
	return types.SQLArg(v)
}

// selectColumns renders the quoted column list for proto, ID first.
func selectColumns(proto types.Entity) string {
	cols := proto.Columns()
	names := make([]string, 0, len(cols)+1)
	names = append(names, types.QuoteIdent(types.FieldID))
	for _, c := range cols {
		names = append(names, types.QuoteIdent(c.Name))
	}
	return strings.Join(names, ", ")
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads the ID and column values of one row selected with
// selectColumns.
func scanRecord(sc rowScanner, proto types.Entity) (string, map[string]any, error) {
	cols := proto.Columns()
	raw := make([]any, len(cols)+1)
	dest := make([]any, len(raw))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := sc.Scan(dest...); err != nil {
		return "", nil, err
	}

	id, ok := fromStorage(types.Column{Kind: types.ColumnText}, raw[0]).(string)
	if !ok || id == "" {
		return "", nil, fmt.Errorf("%w: %s row without id", types.ErrInvalidData, proto.EntityName())
	}
	values := make(map[string]any, len(cols))
	for i, c := range cols {
		values[c.Name] = fromStorage(c, raw[i+1])
	}
	return id, values, nil
}

func copyValues(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
