package core

import "strings"

// StandardType is the normalized column type every connector maps into.
type StandardType string

// Standard type vocabulary. Unknown native types normalize to TypeString.
const (
	TypeInteger   StandardType = "integer"
	TypeFloat     StandardType = "float"
	TypeString    StandardType = "string"
	TypeDate      StandardType = "date"
	TypeTimestamp StandardType = "timestamp"
	TypeBoolean   StandardType = "boolean"
	TypeJSON      StandardType = "json"
)

// IsNumeric reports whether values of this type support arithmetic aggregation.
func (t StandardType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// TypeMap maps lower-cased native type names to standard types.
type TypeMap map[string]StandardType

// Normalize looks up a native type. Lookup is case-insensitive and falls back
// to the base name without any "(precision)" suffix, then to TypeString.
func (m TypeMap) Normalize(native string) StandardType {
	key := strings.ToLower(strings.TrimSpace(native))
	if t, ok := m[key]; ok {
		return t
	}
	if i := strings.IndexByte(key, '('); i > 0 {
		if t, ok := m[strings.TrimSpace(key[:i])]; ok {
			return t
		}
	}
	return TypeString
}

// Column describes one column of a physical table.
type Column struct {
	Name       string       `json:"name"`
	Type       StandardType `json:"type"`
	NativeType string       `json:"native_type,omitempty"`
	Nullable   bool         `json:"nullable"`
	Default    *string      `json:"default,omitempty"`
	Position   int          `json:"position,omitempty"`
}

// TableSchema holds normalized metadata about one physical table.
// RowCount and SizeBytes are nil when the backend could not compute them.
type TableSchema struct {
	Name      string   `json:"table_name"`
	Schema    string   `json:"schema_name,omitempty"`
	Columns   []Column `json:"columns"`
	RowCount  *int64   `json:"row_count,omitempty"`
	SizeBytes *int64   `json:"size_bytes,omitempty"`
}

// ColumnNames returns the column names in ordinal order.
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column.
func (s *TableSchema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
