// pkg/model/metadata.go
package model

import "strings"

// RowIDColumn is the synthetic column carrying the per-row identifier.
// It is computed at read time and never written to an output file.
const RowIDColumn = "__rowid"

// RowID is a 1-based ordinal derived from a deterministic scan order
type RowID int64

// FileMetadata contains the structure information for a columnar file
type FileMetadata struct {
	Path    string   // File reference as given by the client
	Columns []Column // Column definitions in file order
}

// Column represents metadata about a file column
type Column struct {
	Name     string `json:"name" yaml:"name"`
	DataType string `json:"type" yaml:"type"` // Engine data type (e.g. VARCHAR, BIGINT)
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty"` // Display kind derived from DataType
	Nullable bool   `json:"nullable,omitempty" yaml:"nullable,omitempty"`
}

// GetColumnByName returns a column by exact name.
// Returns nil if column not found
func (fm *FileMetadata) GetColumnByName(name string) *Column {
	for i, col := range fm.Columns {
		if col.Name == name {
			return &fm.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the column names in file order
func (fm *FileMetadata) ColumnNames() []string {
	names := make([]string, len(fm.Columns))
	for i, col := range fm.Columns {
		names[i] = col.Name
	}
	return names
}

// IsTextual reports whether the column holds character data
func (col *Column) IsTextual() bool {
	dataType := normalizeTypeName(col.DataType)
	return dataType == "varchar" || dataType == "text" || dataType == "string" ||
		strings.HasPrefix(dataType, "varchar(")
}

// IsNested reports whether the column holds a list, struct or map
func (col *Column) IsNested() bool {
	dataType := normalizeTypeName(col.DataType)
	return strings.HasSuffix(dataType, "[]") ||
		strings.HasPrefix(dataType, "struct(") ||
		strings.HasPrefix(dataType, "map(")
}

func normalizeTypeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
