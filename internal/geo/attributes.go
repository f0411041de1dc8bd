package geo

import "fmt"

// AttributeTable maps feature identifiers to rows of typed values.
// Values are float64, string, bool or nil.
type AttributeTable struct {
	Columns []string

	ids  []string
	rows map[string][]any
}

// NewAttributeTable creates an empty table with the given column names.
func NewAttributeTable(columns []string) *AttributeTable {
	return &AttributeTable{
		Columns: columns,
		rows:    make(map[string][]any),
	}
}

// Add appends a row. Each identifier may appear once.
func (t *AttributeTable) Add(id string, values []any) error {
	if _, ok := t.rows[id]; ok {
		return fmt.Errorf("attribute table: duplicate identifier %q", id)
	}
	if len(values) != len(t.Columns) {
		return fmt.Errorf("attribute table: row %q has %d values, want %d", id, len(values), len(t.Columns))
	}
	t.ids = append(t.ids, id)
	t.rows[id] = values
	return nil
}

// Row returns the values for id.
func (t *AttributeTable) Row(id string) ([]any, bool) {
	r, ok := t.rows[id]
	return r, ok
}

// Value returns a single cell.
func (t *AttributeTable) Value(id, column string) (any, bool) {
	i := t.ColumnIndex(column)
	if i < 0 {
		return nil, false
	}
	r, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return r[i], true
}

// ColumnIndex returns the position of a column or -1.
func (t *AttributeTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// IDs returns identifiers in insertion order.
func (t *AttributeTable) IDs() []string { return t.ids }

// Len returns the number of rows.
func (t *AttributeTable) Len() int { return len(t.ids) }

// FormatValue renders a cell for tables and logs.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NA"
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(t)
	}
}
