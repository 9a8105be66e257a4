// pkg/model/edit.go
package model

import "time"

// CellEdit represents a replacement value for one (row, column) cell
// Original holds the value before the first edit so a review can show
// original -> final. Value nil means NULL.
type CellEdit struct {
	RowID    RowID       `json:"row_id" yaml:"row_id" validate:"gte=1"`
	Column   string      `json:"column" yaml:"column" validate:"required"`
	Original interface{} `json:"original,omitempty" yaml:"original,omitempty"`
	Value    interface{} `json:"value" yaml:"value"`
}

// EditSet is the wire form of an edit ledger
type EditSet struct {
	CellEdits      []CellEdit `json:"cell_edits" yaml:"cell_edits" validate:"dive"`
	RemovedRows    []RowID    `json:"removed_rows" yaml:"removed_rows" validate:"dive,gte=1"`
	RemovedColumns []string   `json:"removed_columns" yaml:"removed_columns" validate:"dive,required"`
}

// IsEmpty reports whether the set carries no edits of any kind
func (es *EditSet) IsEmpty() bool {
	return len(es.CellEdits) == 0 && len(es.RemovedRows) == 0 && len(es.RemovedColumns) == 0
}

// EditOperation represents one committed edit for the audit trail
type EditOperation struct {
	CommitID      string      // Commit that materialized the edit
	SourcePath    string      // File the edit was made against
	OutputPath    string      // File the edit was written to
	Operation     string      // "cell_edit", "row_removal" or "column_removal"
	RowID         RowID       // Zero for column removals
	ColumnName    string      // Empty for row removals
	OriginalValue interface{} // Original value (may be nil)
	NewValue      interface{} // New value (may be nil)
	CommittedAt   time.Time
}

// Audit operation names
const (
	OperationCellEdit      = "cell_edit"
	OperationRowRemoval    = "row_removal"
	OperationColumnRemoval = "column_removal"
)
