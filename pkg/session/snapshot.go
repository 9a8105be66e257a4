// pkg/session/snapshot.go
package session

import (
	"time"

	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
)

// Snapshot is a point-in-time copy of a ledger. Cell edits are in recording
// order, removed rows ascending, removed columns in removal order.
type Snapshot struct {
	Source         locator.Ref
	CellEdits      []model.CellEdit
	RemovedRows    []model.RowID
	RemovedColumns []string
	TakenAt        time.Time
	Version        uint64 // Ledger version the snapshot was taken at

	rows    map[model.RowID]struct{}
	columns map[string]struct{}
}

func newSnapshot(source locator.Ref, cells []model.CellEdit, rows []model.RowID, columns []string) Snapshot {
	snap := Snapshot{
		Source:         source,
		CellEdits:      cells,
		RemovedRows:    rows,
		RemovedColumns: columns,
		TakenAt:        time.Now(),
		rows:           make(map[model.RowID]struct{}, len(rows)),
		columns:        make(map[string]struct{}, len(columns)),
	}
	for _, rowID := range rows {
		snap.rows[rowID] = struct{}{}
	}
	for _, column := range columns {
		snap.columns[column] = struct{}{}
	}
	return snap
}

// FromEditSet builds a snapshot directly from a wire edit set.
// Later cell edits for the same cell replace earlier ones.
func FromEditSet(source locator.Ref, set model.EditSet) (Snapshot, error) {
	s := New(source)
	if err := s.Apply(set); err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(), nil
}

// IsEmpty reports whether the snapshot carries no edits
func (s Snapshot) IsEmpty() bool {
	return len(s.CellEdits) == 0 && len(s.RemovedRows) == 0 && len(s.RemovedColumns) == 0
}

// RowRemoved reports whether rowID is excluded from the output
func (s Snapshot) RowRemoved(rowID model.RowID) bool {
	_, ok := s.rows[rowID]
	return ok
}

// ColumnRemoved reports whether column is excluded from the output
func (s Snapshot) ColumnRemoved(column string) bool {
	_, ok := s.columns[column]
	return ok
}

// EditSet returns the wire form of the snapshot
func (s Snapshot) EditSet() model.EditSet {
	return model.EditSet{
		CellEdits:      append([]model.CellEdit(nil), s.CellEdits...),
		RemovedRows:    append([]model.RowID(nil), s.RemovedRows...),
		RemovedColumns: append([]string(nil), s.RemovedColumns...),
	}
}
