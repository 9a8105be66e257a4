package editor

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/config"
	"github.com/David-Botos/parquet-editor/pkg/connector"
	"github.com/David-Botos/parquet-editor/pkg/engine"
	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
)

func newDuckDBService(t *testing.T) (*Service, *engine.DuckDB) {
	t.Helper()
	if testing.Short() {
		t.Skip("opens an embedded engine")
	}

	conn, err := connector.NewDuckDBConnector(context.Background(), &config.DuckDBConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	eng := engine.NewDuckDB(conn, time.Minute, zap.NewNop())
	cfg := testConfig(t)
	cfg.VerifyOutput = true
	return NewService(cfg, eng, locator.NewObjectStore(nil, zap.NewNop()), zap.NewNop()), eng
}

func TestIntegration_EditAndReadBack(t *testing.T) {
	svc, eng := newDuckDBService(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "people.parquet")
	_, err := eng.Exec(ctx, fmt.Sprintf(
		"COPY (SELECT * FROM (VALUES ('a', 30), ('b', 40), ('c', 50)) AS t(name, age)) TO '%s' (FORMAT parquet)", src))
	require.NoError(t, err)

	page, err := svc.LoadPage(ctx, src, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Rows, 3)
	assert.Equal(t, int64(3), page.TotalRows)

	sess, err := svc.OpenSession(src)
	require.NoError(t, err)
	require.NoError(t, sess.RecordCellEdit(1, "name", "a", "z"))
	require.NoError(t, sess.RecordRowRemoval(2))
	require.NoError(t, sess.RecordColumnRemoval("age"))

	dest := filepath.Join(t.TempDir(), "people_out.parquet")
	result, err := svc.CommitSession(ctx, sess.ID, dest, "zstd")
	require.NoError(t, err)
	require.NotNil(t, result.Verification)
	assert.True(t, result.Verification.Passed())
	assert.Equal(t, int64(2), result.RowsWritten)
	assert.Zero(t, sess.Len())

	out, err := svc.LoadPage(ctx, dest, 10, 0)
	require.NoError(t, err)
	require.Len(t, out.Columns, 1)
	assert.Equal(t, "name", out.Columns[0].Name)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "z", out.Rows[0]["name"])
	assert.Equal(t, "c", out.Rows[1]["name"])
	assert.Equal(t, int64(1), out.Rows[0]["__rowid"])
}

func TestIntegration_MissingSource(t *testing.T) {
	svc, _ := newDuckDBService(t)

	_, err := svc.LoadPage(context.Background(), filepath.Join(t.TempDir(), "missing.parquet"), 10, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachableSource)
}

func TestIntegration_PageOffsetEditReadsOriginal(t *testing.T) {
	svc, eng := newDuckDBService(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "numbers.parquet")
	_, err := eng.Exec(ctx, fmt.Sprintf(
		"COPY (SELECT 'r' || CAST(i AS VARCHAR) AS label FROM range(1, 8) AS t(i)) TO '%s' (FORMAT parquet)", src))
	require.NoError(t, err)

	page, err := svc.LoadPage(ctx, src, 2, 4)
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	rowID := page.Rows[0]["__rowid"].(int64)
	assert.Equal(t, int64(5), rowID)

	sess, err := svc.OpenSession(src)
	require.NoError(t, err)
	_, err = svc.ApplyEdits(ctx, sess.ID, model.EditSet{
		CellEdits: []model.CellEdit{{RowID: model.RowID(rowID), Column: "label", Value: "edited"}},
	})
	require.NoError(t, err)
	snap := sess.Snapshot()
	require.Len(t, snap.CellEdits, 1)
	assert.Equal(t, page.Rows[0]["label"], snap.CellEdits[0].Original)

	dest := filepath.Join(t.TempDir(), "out.parquet")
	_, err = svc.CommitSession(ctx, sess.ID, dest, "")
	require.NoError(t, err)

	out, err := svc.LoadPage(ctx, dest, 0, 0)
	require.NoError(t, err)
	require.Len(t, out.Rows, 7)
	assert.Equal(t, "edited", out.Rows[4]["label"])
	assert.Equal(t, "r4", out.Rows[3]["label"])
	assert.Equal(t, "r6", out.Rows[5]["label"])
}

func TestIntegration_ReservedColumnName(t *testing.T) {
	svc, eng := newDuckDBService(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "positions.parquet")
	_, err := eng.Exec(ctx, fmt.Sprintf(
		"COPY (SELECT * FROM (VALUES ('a', 7), ('b', 8)) AS t(name, file_row_number)) TO '%s' (FORMAT parquet)", src))
	require.NoError(t, err)

	_, err = svc.LoadPage(ctx, src, 10, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompilationRejected)
	assert.Contains(t, err.Error(), "file_row_number")

	_, err = svc.Commit(ctx, CommitRequest{Source: src, Destination: filepath.Join(t.TempDir(), "out.parquet")})
	assert.ErrorIs(t, err, ErrCompilationRejected)
}
