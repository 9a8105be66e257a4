package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/engine"
	"github.com/David-Botos/parquet-editor/pkg/engine/enginetest"
	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
	"github.com/David-Botos/parquet-editor/pkg/rowid"
)

func mustParse(t *testing.T, raw string) locator.Ref {
	t.Helper()
	ref, err := locator.Parse(raw)
	require.NoError(t, err)
	return ref
}

func TestBuildPlan(t *testing.T) {
	plan, err := BuildPlan(mustParse(t, "/data/people.parquet"), 100, 200)
	require.NoError(t, err)

	assert.Equal(t, "SELECT count(*) FROM read_parquet('/data/people.parquet')", plan.CountQuery)
	assert.Equal(t,
		`SELECT * EXCLUDE ("file_row_number") FROM (SELECT ROW_NUMBER() OVER (ORDER BY "file_row_number") AS "__rowid", * FROM read_parquet('/data/people.parquet', file_row_number = true)) AS src ORDER BY "__rowid" LIMIT 100 OFFSET 200`,
		plan.PageQuery)
}

func TestBuildPlan_WholeFile(t *testing.T) {
	plan, err := BuildPlan(mustParse(t, "/data/people.parquet"), 0, 0)
	require.NoError(t, err)
	assert.NotContains(t, plan.PageQuery, "LIMIT")
	assert.NotContains(t, plan.PageQuery, "OFFSET")
}

func TestBuildPlan_GlobHidesFileName(t *testing.T) {
	plan, err := BuildPlan(mustParse(t, "s3://bucket/part-*.parquet"), 10, 0)
	require.NoError(t, err)
	assert.Contains(t, plan.PageQuery, `EXCLUDE ("file_row_number", "filename")`)
}

func TestBuildPlan_RejectsNegativeWindow(t *testing.T) {
	_, err := BuildPlan(mustParse(t, "/data/a.parquet"), -1, 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = BuildPlan(mustParse(t, "/data/a.parquet"), 10, -5)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestLoad(t *testing.T) {
	fake := &enginetest.Fake{
		Columns: []model.Column{{Name: "name", DataType: "VARCHAR"}},
		Count:   3,
		PageRows: []map[string]interface{}{
			{model.RowIDColumn: int64(2), "name": "b"},
			{model.RowIDColumn: int64(3), "name": "c"},
		},
	}
	p := New(fake, 1000, zap.NewNop())

	page, err := p.Load(context.Background(), mustParse(t, "/data/people.parquet"), 2, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(3), page.TotalRows)
	assert.Len(t, page.Rows, 2)
	assert.Equal(t, []model.Column{{Name: "name", DataType: "VARCHAR"}}, page.Columns)
	assert.False(t, page.HasMore())
	assert.Len(t, fake.Queries, 2)
}

func TestLoad_ClampsLimit(t *testing.T) {
	fake := &enginetest.Fake{
		Columns:  []model.Column{{Name: "name", DataType: "VARCHAR"}},
		Count:    1,
		PageRows: []map[string]interface{}{{model.RowIDColumn: int64(1), "name": "a"}},
	}
	p := New(fake, 50, zap.NewNop())

	page, err := p.Load(context.Background(), mustParse(t, "/data/people.parquet"), 500, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, page.Limit)
}

func TestLoad_EmptyResults(t *testing.T) {
	ref := mustParse(t, "/data/people.parquet")
	cols := []model.Column{{Name: "name", DataType: "VARCHAR"}}

	// Empty file
	p := New(&enginetest.Fake{Columns: cols, Count: 0}, 0, zap.NewNop())
	_, err := p.Load(context.Background(), ref, 10, 0)
	assert.ErrorIs(t, err, ErrEmptyResult)

	// No rows although the offset is inside the file
	p = New(&enginetest.Fake{Columns: cols, Count: 10}, 0, zap.NewNop())
	_, err = p.Load(context.Background(), ref, 10, 5)
	assert.ErrorIs(t, err, ErrEmptyResult)

	// Offset past the end is an empty page, not an error
	p = New(&enginetest.Fake{Columns: cols, Count: 10}, 0, zap.NewNop())
	page, err := p.Load(context.Background(), ref, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Rows)
}

func TestLoad_PropagatesEngineErrors(t *testing.T) {
	unreachable := errors.Join(engine.ErrUnreachable, errors.New("No files found"))
	p := New(&enginetest.Fake{CountErr: unreachable}, 0, zap.NewNop())

	_, err := p.Load(context.Background(), mustParse(t, "/data/missing.parquet"), 10, 0)
	assert.ErrorIs(t, err, engine.ErrUnreachable)
}

func TestLoad_RejectsReservedColumnNames(t *testing.T) {
	fake := &enginetest.Fake{
		Columns: []model.Column{{Name: "name", DataType: "VARCHAR"}, {Name: "file_row_number", DataType: "BIGINT"}},
		Count:   3,
	}
	p := New(fake, 0, zap.NewNop())

	_, err := p.Load(context.Background(), mustParse(t, "/data/people.parquet"), 10, 0)
	assert.ErrorIs(t, err, rowid.ErrReservedColumn)
	assert.Contains(t, err.Error(), "file_row_number")
	for _, q := range fake.Queries {
		assert.NotContains(t, q, "file_row_number = true", "page query must not run")
	}
}
