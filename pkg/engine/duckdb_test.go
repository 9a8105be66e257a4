package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/compiler"
	"github.com/David-Botos/parquet-editor/pkg/config"
	"github.com/David-Botos/parquet-editor/pkg/connector"
	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
	"github.com/David-Botos/parquet-editor/pkg/rowid"
	"github.com/David-Botos/parquet-editor/pkg/session"
)

func newTestEngine(t *testing.T) *DuckDB {
	t.Helper()
	if testing.Short() {
		t.Skip("opens an embedded engine")
	}

	conn, err := connector.NewDuckDBConnector(context.Background(), &config.DuckDBConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewDuckDB(conn, time.Minute, zap.NewNop())
}

// writeFixture writes a three row file with a name and an age column
func writeFixture(t *testing.T, eng *DuckDB) locator.Ref {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.parquet")
	_, err := eng.Exec(context.Background(), fmt.Sprintf(
		"COPY (SELECT * FROM (VALUES ('a', 30), ('b', 40), ('c', 50)) AS t(name, age)) TO '%s' (FORMAT parquet)", path))
	require.NoError(t, err)

	ref, err := locator.Parse(path)
	require.NoError(t, err)
	return ref
}

func TestDuckDB_DescribeCountRows(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	ref := writeFixture(t, eng)

	cols, err := eng.Describe(ctx, ref)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "name", cols[0].Name)
	assert.Equal(t, "VARCHAR", cols[0].DataType)
	assert.Equal(t, "string", cols[0].Kind)
	assert.Equal(t, "age", cols[1].Name)
	assert.Equal(t, "integer", cols[1].Kind)

	count, err := eng.QueryCount(ctx, fmt.Sprintf("SELECT count(*) FROM read_parquet('%s')", ref.Path))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	rows, err := eng.QueryRows(ctx, fmt.Sprintf("SELECT name FROM read_parquet('%s') ORDER BY name", ref.Path), cols)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0]["name"])
}

func TestDuckDB_MissingFileIsUnreachable(t *testing.T) {
	eng := newTestEngine(t)
	ref, err := locator.Parse(filepath.Join(t.TempDir(), "missing.parquet"))
	require.NoError(t, err)

	_, err = eng.Describe(context.Background(), ref)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestMaterialize_ConcreteScenarios(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	source := writeFixture(t, eng)

	cols, err := eng.Describe(ctx, source)
	require.NoError(t, err)

	tests := []struct {
		name    string
		edit    func(s *session.Session)
		names   []string
		columns []string
	}{
		{
			name:  "cell edit",
			edit:  func(s *session.Session) { require.NoError(t, s.RecordCellEdit(2, "name", "b", "z")) },
			names: []string{"a", "z", "c"},
		},
		{
			name:  "row removal",
			edit:  func(s *session.Session) { require.NoError(t, s.RecordRowRemoval(1)) },
			names: []string{"b", "c"},
		},
		{
			name: "removal wins over edit",
			edit: func(s *session.Session) {
				require.NoError(t, s.RecordCellEdit(3, "name", "c", "q"))
				require.NoError(t, s.RecordRowRemoval(3))
			},
			names: []string{"a", "b"},
		},
		{
			name:  "pass through",
			edit:  func(s *session.Session) {},
			names: []string{"a", "b", "c"},
		},
		{
			name: "column removal drops edits on it",
			edit: func(s *session.Session) {
				require.NoError(t, s.RecordColumnRemoval("name"))
				require.NoError(t, s.RecordCellEdit(1, "name", "a", "q"))
			},
			columns: []string{"age"},
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := session.New(source)
			tt.edit(s)

			rw, err := compiler.New(zap.NewNop()).Compile(s.Snapshot(), cols)
			require.NoError(t, err)

			dest, err := locator.Parse(filepath.Join(t.TempDir(), fmt.Sprintf("out%d.parquet", i)))
			require.NoError(t, err)

			_, err = Materialize(ctx, eng, rw, dest, "zstd", nil, zap.NewNop())
			require.NoError(t, err)

			outCols, err := eng.Describe(ctx, dest)
			require.NoError(t, err)
			if tt.columns != nil {
				names := make([]string, len(outCols))
				for j, col := range outCols {
					names[j] = col.Name
				}
				assert.Equal(t, tt.columns, names, "helper columns must not reach the output")

				rows, err := eng.QueryRows(ctx, fmt.Sprintf("SELECT age FROM read_parquet('%s')", dest.Path), outCols)
				require.NoError(t, err)
				require.Len(t, rows, 3)
				for j, want := range []int32{30, 40, 50} {
					assert.EqualValues(t, want, rows[j]["age"])
				}
				return
			}
			assert.Len(t, outCols, 2, "helper columns must not reach the output")

			rows, err := eng.QueryRows(ctx, fmt.Sprintf("SELECT name FROM read_parquet('%s')", dest.Path), cols)
			require.NoError(t, err)

			got := make([]string, len(rows))
			for j, row := range rows {
				got[j] = row["name"].(string)
			}
			assert.Equal(t, tt.names, got)
		})
	}
}

func TestMaterialize_PageRowIDsMatchRewrite(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "numbers.parquet")
	_, err := eng.Exec(ctx, fmt.Sprintf(
		"COPY (SELECT 'r' || CAST(i AS VARCHAR) AS label, i AS n FROM range(1, 11) AS t(i)) TO '%s' (FORMAT parquet, ROW_GROUP_SIZE 4)", path))
	require.NoError(t, err)
	source, err := locator.Parse(path)
	require.NoError(t, err)

	cols, err := eng.Describe(ctx, source)
	require.NoError(t, err)

	// Same query the page view runs, at a non-zero offset
	relation, err := rowid.Relation(source)
	require.NoError(t, err)
	page, err := eng.QueryRows(ctx, fmt.Sprintf(
		`SELECT * EXCLUDE ("file_row_number") FROM %s AS src ORDER BY "__rowid" LIMIT 3 OFFSET 5`, relation), cols)
	require.NoError(t, err)
	require.Len(t, page, 3)

	target := page[1]
	targetID, ok := target["__rowid"].(int64)
	require.True(t, ok, "row id is %T", target["__rowid"])
	assert.Equal(t, int64(7), targetID)

	s := session.New(source)
	require.NoError(t, s.RecordCellEdit(model.RowID(targetID), "label", target["label"], "edited"))
	rw, err := compiler.New(zap.NewNop()).Compile(s.Snapshot(), cols)
	require.NoError(t, err)

	dest, err := locator.Parse(filepath.Join(t.TempDir(), "out.parquet"))
	require.NoError(t, err)
	_, err = Materialize(ctx, eng, rw, dest, "", nil, zap.NewNop())
	require.NoError(t, err)

	rows, err := eng.QueryRows(ctx, fmt.Sprintf("SELECT label, n FROM read_parquet('%s')", dest.Path), cols)
	require.NoError(t, err)
	require.Len(t, rows, 10)
	for i, row := range rows {
		if row["label"] == "edited" {
			assert.EqualValues(t, target["n"], row["n"], "edit landed on row %d", i+1)
			continue
		}
		assert.Equal(t, fmt.Sprintf("r%d", i+1), row["label"])
	}
	assert.Equal(t, "edited", rows[targetID-1]["label"])
}

func TestMaterialize_ReservedSourceColumn(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "positions.parquet")
	_, err := eng.Exec(ctx, fmt.Sprintf(
		"COPY (SELECT * FROM (VALUES ('a', 7), ('b', 8)) AS t(name, file_row_number)) TO '%s' (FORMAT parquet)", path))
	require.NoError(t, err)
	source, err := locator.Parse(path)
	require.NoError(t, err)

	cols, err := eng.Describe(ctx, source)
	require.NoError(t, err)
	require.Len(t, cols, 2)

	_, err = compiler.New(zap.NewNop()).Compile(session.New(source).Snapshot(), cols)
	assert.ErrorIs(t, err, rowid.ErrReservedColumn)
	assert.Contains(t, err.Error(), "file_row_number")
}

func TestMaterialize_RejectedCheckLeavesNoFiles(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	source := writeFixture(t, eng)

	cols, err := eng.Describe(ctx, source)
	require.NoError(t, err)
	rw, err := compiler.New(zap.NewNop()).Compile(session.New(source).Snapshot(), cols)
	require.NoError(t, err)

	dir := t.TempDir()
	dest, err := locator.Parse(filepath.Join(dir, "out.parquet"))
	require.NoError(t, err)

	var checked string
	rejected := errors.New("row count mismatch")
	_, err = Materialize(ctx, eng, rw, dest, "", func(ctx context.Context, written locator.Ref) error {
		checked = written.Path
		assert.FileExists(t, written.Path)
		return rejected
	}, zap.NewNop())
	assert.ErrorIs(t, err, rejected)
	assert.NotEqual(t, dest.Path, checked, "check runs before the output is moved into place")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type failingEngine struct {
	Engine
	statements []string
}

func (f *failingEngine) Exec(ctx context.Context, statement string) (int64, error) {
	f.statements = append(f.statements, statement)
	return 0, errors.New("boom")
}

func TestMaterialize_FailureLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	source, err := locator.Parse(filepath.Join(dir, "in.parquet"))
	require.NoError(t, err)
	dest, err := locator.Parse(filepath.Join(dir, "out", "result.parquet"))
	require.NoError(t, err)

	rw, err := compiler.New(zap.NewNop()).Compile(session.New(source).Snapshot(), []model.Column{{Name: "name", DataType: "VARCHAR"}})
	require.NoError(t, err)

	eng := &failingEngine{}
	_, err = Materialize(context.Background(), eng, rw, dest, "", nil, zap.NewNop())
	require.Error(t, err)

	require.Len(t, eng.statements, 1)
	assert.Contains(t, eng.statements[0], filepath.Join(dir, "out", ".result.parquet."))
	assert.NotContains(t, eng.statements[0], "'"+dest.Path+"'")

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
