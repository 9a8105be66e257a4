// pkg/editor/originals.go
package editor

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
	"github.com/David-Botos/parquet-editor/pkg/quote"
	"github.com/David-Botos/parquet-editor/pkg/rowid"
)

// readOriginals returns a copy of edits in which every edit without an
// Original, and not skipped by known, carries the value stored in the source
// file. Rows past the end of the file and unknown columns keep a nil Original.
func (s *Service) readOriginals(ctx context.Context, ref locator.Ref, edits []model.CellEdit, known func(model.RowID, string) bool) ([]model.CellEdit, error) {
	out := append([]model.CellEdit(nil), edits...)

	pending := make(map[model.RowID][]int)
	for i, edit := range out {
		if edit.Original != nil || (known != nil && known(edit.RowID, edit.Column)) {
			continue
		}
		pending[edit.RowID] = append(pending[edit.RowID], i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	columns, err := s.engine.Describe(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := rowid.CheckColumns(ref, columns); err != nil {
		return nil, err
	}
	byName := make(map[string]model.Column, len(columns))
	for _, col := range columns {
		byName[col.Name] = col
	}

	relation, err := rowid.Relation(ref)
	if err != nil {
		return nil, err
	}

	rowIDs := make([]model.RowID, 0, len(pending))
	for rowID := range pending {
		rowIDs = append(rowIDs, rowID)
	}
	sort.Slice(rowIDs, func(i, j int) bool { return rowIDs[i] < rowIDs[j] })

	for _, rowID := range rowIDs {
		var selected []model.Column
		seen := make(map[string]bool)
		for _, i := range pending[rowID] {
			col, ok := byName[out[i].Column]
			if !ok || seen[col.Name] {
				continue
			}
			seen[col.Name] = true
			selected = append(selected, col)
		}
		if len(selected) == 0 {
			continue
		}

		names := make([]string, len(selected))
		for i, col := range selected {
			names[i] = col.Name
		}
		query := fmt.Sprintf("SELECT %s FROM %s AS src WHERE %s = %s",
			quote.Idents(names), relation, quote.Ident(model.RowIDColumn), strconv.FormatInt(int64(rowID), 10))

		rows, err := s.engine.QueryRows(ctx, query, selected)
		if err != nil {
			return nil, fmt.Errorf("failed to read original values of row %d: %w", rowID, err)
		}
		if len(rows) == 0 {
			s.logger.Debug("Row not found for original values",
				zap.String("path", ref.Path),
				zap.Int64("rowID", int64(rowID)))
			continue
		}
		for _, i := range pending[rowID] {
			if value, ok := rows[0][out[i].Column]; ok {
				out[i].Original = value
			}
		}
	}
	return out, nil
}
