// Package session holds the edit ledger accumulated against one open file.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
)

var (
	// ErrInvalidRowID is returned for row identifiers below 1
	ErrInvalidRowID = errors.New("row id must be positive")
	// ErrInvalidColumn is returned for empty column names
	ErrInvalidColumn = errors.New("column name cannot be empty")
)

type cellKey struct {
	row    model.RowID
	column string
}

type cellEntry struct {
	edit    model.CellEdit
	seq     uint64 // Position of the first recording
	version uint64 // Ledger version of the last write
}

// Session is the edit ledger for one open file. It is safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu             sync.RWMutex
	source         locator.Ref
	updatedAt      time.Time
	version        uint64 // Bumped by every mutation, never reset
	seq            uint64
	cells          map[cellKey]*cellEntry
	removedRows    map[model.RowID]uint64   // Version of the removal
	removedColumns map[string]columnRemoval // Order and version of the removal
}

type columnRemoval struct {
	seq     uint64
	version uint64
}

// New creates an empty session for source
func New(source locator.Ref) *Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		source:    source,
		updatedAt: now,
	}
	s.resetLocked()
	return s
}

// Source returns the file the ledger applies to
func (s *Session) Source() locator.Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// UpdatedAt returns the time of the last mutation
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// RecordCellEdit inserts or replaces the edit for (rowID, column).
// A repeated edit keeps the first original value and recording position.
func (s *Session) RecordCellEdit(rowID model.RowID, column string, original, value interface{}) error {
	if err := validateCell(rowID, column); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.touchLocked()
	s.recordCellLocked(rowID, column, original, value)
	return nil
}

func (s *Session) recordCellLocked(rowID model.RowID, column string, original, value interface{}) {
	key := cellKey{row: rowID, column: column}
	if entry, ok := s.cells[key]; ok {
		entry.edit.Value = value
		entry.version = s.version
		return
	}

	s.seq++
	s.cells[key] = &cellEntry{
		edit: model.CellEdit{
			RowID:    rowID,
			Column:   column,
			Original: original,
			Value:    value,
		},
		seq:     s.seq,
		version: s.version,
	}
}

// HasCellEdit reports whether (rowID, column) already carries an edit
func (s *Session) HasCellEdit(rowID model.RowID, column string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cells[cellKey{row: rowID, column: column}]
	return ok
}

// DiscardCellEdit removes the edit for (rowID, column), reporting whether one existed
func (s *Session) DiscardCellEdit(rowID model.RowID, column string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cellKey{row: rowID, column: column}
	if _, ok := s.cells[key]; !ok {
		return false
	}
	delete(s.cells, key)
	s.touchLocked()
	return true
}

// RecordRowRemoval marks a row for exclusion from the output
func (s *Session) RecordRowRemoval(rowID model.RowID) error {
	if rowID < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidRowID, rowID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.touchLocked()
	s.removedRows[rowID] = s.version
	return nil
}

// RestoreRow cancels a row removal, reporting whether one existed
func (s *Session) RestoreRow(rowID model.RowID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.removedRows[rowID]; !ok {
		return false
	}
	delete(s.removedRows, rowID)
	s.touchLocked()
	return true
}

// RecordColumnRemoval marks a column for exclusion from the output
func (s *Session) RecordColumnRemoval(column string) error {
	if column == "" {
		return ErrInvalidColumn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.touchLocked()
	s.recordColumnLocked(column)
	return nil
}

func (s *Session) recordColumnLocked(column string) {
	if removal, ok := s.removedColumns[column]; ok {
		removal.version = s.version
		s.removedColumns[column] = removal
		return
	}
	s.seq++
	s.removedColumns[column] = columnRemoval{seq: s.seq, version: s.version}
}

// RestoreColumn cancels a column removal, reporting whether one existed
func (s *Session) RestoreColumn(column string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.removedColumns[column]; !ok {
		return false
	}
	delete(s.removedColumns, column)
	s.touchLocked()
	return true
}

// Apply records every edit in set. The set is validated first, so an invalid
// set leaves the ledger unchanged.
func (s *Session) Apply(set model.EditSet) error {
	for _, edit := range set.CellEdits {
		if err := validateCell(edit.RowID, edit.Column); err != nil {
			return err
		}
	}
	for _, rowID := range set.RemovedRows {
		if rowID < 1 {
			return fmt.Errorf("%w: %d", ErrInvalidRowID, rowID)
		}
	}
	for _, column := range set.RemovedColumns {
		if column == "" {
			return ErrInvalidColumn
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.touchLocked()
	for _, edit := range set.CellEdits {
		s.recordCellLocked(edit.RowID, edit.Column, edit.Original, edit.Value)
	}
	for _, rowID := range set.RemovedRows {
		s.removedRows[rowID] = s.version
	}
	for _, column := range set.RemovedColumns {
		s.recordColumnLocked(column)
	}
	return nil
}

// Reset empties the ledger
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.touchLocked()
}

// ClearCommitted removes the entries captured by snap that have not been
// written since. Edits recorded after snap was taken stay in the ledger.
// It returns the number of entries removed.
func (s *Session) ClearCommitted(snap Snapshot) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, edit := range snap.CellEdits {
		key := cellKey{row: edit.RowID, column: edit.Column}
		if entry, ok := s.cells[key]; ok && entry.version <= snap.Version {
			delete(s.cells, key)
			removed++
		}
	}
	for _, rowID := range snap.RemovedRows {
		if version, ok := s.removedRows[rowID]; ok && version <= snap.Version {
			delete(s.removedRows, rowID)
			removed++
		}
	}
	for _, column := range snap.RemovedColumns {
		if removal, ok := s.removedColumns[column]; ok && removal.version <= snap.Version {
			delete(s.removedColumns, column)
			removed++
		}
	}
	if removed > 0 {
		s.touchLocked()
	}
	return removed
}

// Select points the session at a new source and empties the ledger
func (s *Session) Select(source locator.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = source
	s.resetLocked()
	s.touchLocked()
}

// Len returns the number of recorded edits of all kinds
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells) + len(s.removedRows) + len(s.removedColumns)
}

// Snapshot returns an immutable copy of the ledger
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*cellEntry, 0, len(s.cells))
	for _, entry := range s.cells {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	cells := make([]model.CellEdit, len(entries))
	for i, entry := range entries {
		cells[i] = model.CellEdit{
			RowID:    entry.edit.RowID,
			Column:   entry.edit.Column,
			Original: copyValue(entry.edit.Original),
			Value:    copyValue(entry.edit.Value),
		}
	}

	rows := make([]model.RowID, 0, len(s.removedRows))
	for rowID := range s.removedRows {
		rows = append(rows, rowID)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })

	columns := make([]string, 0, len(s.removedColumns))
	for column := range s.removedColumns {
		columns = append(columns, column)
	}
	sort.Slice(columns, func(i, j int) bool {
		return s.removedColumns[columns[i]].seq < s.removedColumns[columns[j]].seq
	})

	snap := newSnapshot(s.source, cells, rows, columns)
	snap.Version = s.version
	return snap
}

func (s *Session) resetLocked() {
	s.seq = 0
	s.cells = make(map[cellKey]*cellEntry)
	s.removedRows = make(map[model.RowID]uint64)
	s.removedColumns = make(map[string]columnRemoval)
}

func (s *Session) touchLocked() {
	s.version++
	s.updatedAt = time.Now()
}

func validateCell(rowID model.RowID, column string) error {
	if rowID < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidRowID, rowID)
	}
	if column == "" {
		return ErrInvalidColumn
	}
	return nil
}

// copyValue deep-copies JSON-shaped values so snapshots never alias ledger state
func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case []byte:
		return append([]byte(nil), val...)
	default:
		return val
	}
}
