// Package compiler turns an edit ledger snapshot into a single rewrite statement.
//
// The statement re-reads the source with freshly assigned row identifiers,
// projects every surviving column (edited columns through a CASE on the
// identifier), filters removed rows and copies the result to the destination.
// Compilation is a pure function of the snapshot and the source columns.
package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
	"github.com/David-Botos/parquet-editor/pkg/quote"
	"github.com/David-Botos/parquet-editor/pkg/rowid"
	"github.com/David-Botos/parquet-editor/pkg/session"
)

var (
	// ErrNoColumns is returned when every column of the source was removed
	ErrNoColumns = errors.New("no columns left after column removals")
	// ErrNoSourceColumns is returned when the source schema is empty
	ErrNoSourceColumns = errors.New("source has no columns")
	// ErrUnsupportedType is returned for column types that cannot be used in a cast
	ErrUnsupportedType = errors.New("unsupported column type")
)

// Reasons an edit takes no part in the rewrite
const (
	ReasonColumnRemoved = "column removed"
	ReasonUnknownColumn = "unknown column"
	ReasonRowRemoved    = "row removed"
)

// DroppedEdit is a cell edit left out of the rewrite
type DroppedEdit struct {
	Edit   model.CellEdit
	Reason string
}

// Rewrite is a compiled ledger, ready to be bound to a destination
type Rewrite struct {
	Source          locator.Ref
	Query           string         // SELECT producing the output rows
	Columns         []model.Column // Output columns in source order
	AffectedColumns []string       // Columns projected through a CASE
	AppliedEdits    int            // Cell edits present in the query
	Applied         []model.CellEdit
	RemovedRows     []model.RowID
	RemovedColumns  []string // Removed columns that exist in the source
	Dropped         []DroppedEdit
	Warnings        []string
}

// IsPassThrough reports whether the rewrite copies the source unchanged
func (r *Rewrite) IsPassThrough() bool {
	return r.AppliedEdits == 0 && len(r.RemovedRows) == 0 && len(r.Dropped) == 0
}

// Compiler compiles ledger snapshots
type Compiler struct {
	logger *zap.Logger
}

// New creates a compiler
func New(logger *zap.Logger) *Compiler {
	return &Compiler{logger: logger.Named("compiler")}
}

// Compile builds the rewrite query for snap against a source with the given columns.
// Edits on removed or unknown columns are dropped with a warning; edits on
// removed rows are dropped silently since the row never reaches the output.
func (c *Compiler) Compile(snap session.Snapshot, columns []model.Column) (*Rewrite, error) {
	source := snap.Source

	if err := rowid.CheckColumns(source, columns); err != nil {
		return nil, err
	}

	// Step 1: final column set
	sourceCols := make(map[string]model.Column, len(columns))
	var final []model.Column
	for _, col := range columns {
		sourceCols[col.Name] = col
		if !snap.ColumnRemoved(col.Name) {
			final = append(final, col)
		}
	}
	if len(sourceCols) == 0 {
		return nil, ErrNoSourceColumns
	}
	if len(final) == 0 {
		return nil, ErrNoColumns
	}

	rw := &Rewrite{
		Source:      source,
		Columns:     final,
		RemovedRows: append([]model.RowID(nil), snap.RemovedRows...),
	}

	for _, removed := range snap.RemovedColumns {
		if _, ok := sourceCols[removed]; !ok {
			rw.Warnings = append(rw.Warnings, fmt.Sprintf("removed column %q does not exist in source", removed))
			continue
		}
		rw.RemovedColumns = append(rw.RemovedColumns, removed)
	}

	// Step 2: group surviving edits per column, keeping recording order
	branches := make(map[string][]model.CellEdit)
	for _, edit := range snap.CellEdits {
		switch {
		case snap.RowRemoved(edit.RowID):
			rw.Dropped = append(rw.Dropped, DroppedEdit{Edit: edit, Reason: ReasonRowRemoved})
			continue
		case snap.ColumnRemoved(edit.Column):
			rw.Dropped = append(rw.Dropped, DroppedEdit{Edit: edit, Reason: ReasonColumnRemoved})
			rw.Warnings = append(rw.Warnings, fmt.Sprintf("edit of row %d dropped: column %q is removed", edit.RowID, edit.Column))
			continue
		}
		if _, ok := sourceCols[edit.Column]; !ok {
			rw.Dropped = append(rw.Dropped, DroppedEdit{Edit: edit, Reason: ReasonUnknownColumn})
			rw.Warnings = append(rw.Warnings, fmt.Sprintf("edit of row %d dropped: column %q does not exist in source", edit.RowID, edit.Column))
			continue
		}
		branches[edit.Column] = append(branches[edit.Column], edit)
		rw.Applied = append(rw.Applied, edit)
		rw.AppliedEdits++
	}

	// Steps 3 and 4: projection in source column order
	projection := make([]string, 0, len(final))
	for _, col := range final {
		edits, ok := branches[col.Name]
		if !ok {
			projection = append(projection, quote.Ident(col.Name))
			continue
		}
		expr, err := caseExpression(col, edits)
		if err != nil {
			return nil, err
		}
		projection = append(projection, expr)
		rw.AffectedColumns = append(rw.AffectedColumns, col.Name)
	}

	relation, err := rowid.Relation(source)
	if err != nil {
		return nil, err
	}

	// Step 5 and 6: filter and source relation
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(projection, ", "))
	sb.WriteString("\nFROM ")
	sb.WriteString(relation)
	sb.WriteString(" AS src\nWHERE ")
	sb.WriteString(rowFilter(rw.RemovedRows))
	sb.WriteString("\nORDER BY ")
	sb.WriteString(quote.Ident(model.RowIDColumn))
	rw.Query = sb.String()

	if len(rw.Dropped) > 0 || len(rw.Warnings) > 0 {
		c.logger.Warn("Edits left out of rewrite",
			zap.String("source", source.Path),
			zap.Int("droppedEdits", len(rw.Dropped)),
			zap.Strings("warnings", rw.Warnings))
	}

	c.logger.Debug("Compiled rewrite",
		zap.String("source", source.Path),
		zap.Int("columns", len(rw.Columns)),
		zap.Strings("affectedColumns", rw.AffectedColumns),
		zap.Int("appliedEdits", rw.AppliedEdits),
		zap.Int("removedRows", len(rw.RemovedRows)))

	return rw, nil
}

// caseExpression renders the CASE projection for one edited column
func caseExpression(col model.Column, edits []model.CellEdit) (string, error) {
	ident := quote.Ident(col.Name)
	rowID := quote.Ident(model.RowIDColumn)

	var sb strings.Builder
	sb.WriteString("CASE")
	for _, edit := range edits {
		value, err := castValue(col, edit.Value)
		if err != nil {
			return "", fmt.Errorf("row %d, column %s: %w", edit.RowID, col.Name, err)
		}
		sb.WriteString(" WHEN ")
		sb.WriteString(rowID)
		sb.WriteString(" = ")
		sb.WriteString(strconv.FormatInt(int64(edit.RowID), 10))
		sb.WriteString(" THEN ")
		sb.WriteString(value)
	}
	sb.WriteString(" ELSE ")
	sb.WriteString(ident)
	sb.WriteString(" END AS ")
	sb.WriteString(ident)
	return sb.String(), nil
}

// castValue renders a value literal cast to the column type
func castValue(col model.Column, value interface{}) (string, error) {
	literal, err := quote.Value(value)
	if err != nil {
		return "", err
	}
	if col.DataType == "" {
		return literal, nil
	}
	if !safeTypeName(col.DataType) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, col.DataType)
	}
	return fmt.Sprintf("CAST(%s AS %s)", literal, col.DataType), nil
}

// safeTypeName rejects type names that could end the surrounding expression
func safeTypeName(name string) bool {
	return !strings.ContainsAny(name, ";'\x00") && !strings.Contains(name, "--") && !strings.Contains(name, "/*")
}

func rowFilter(removed []model.RowID) string {
	if len(removed) == 0 {
		return "TRUE"
	}
	ids := make([]string, len(removed))
	for i, rowID := range removed {
		ids[i] = strconv.FormatInt(int64(rowID), 10)
	}
	return fmt.Sprintf("%s NOT IN (%s)", quote.Ident(model.RowIDColumn), strings.Join(ids, ", "))
}
