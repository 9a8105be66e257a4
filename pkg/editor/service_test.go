package editor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/config"
	"github.com/David-Botos/parquet-editor/pkg/engine"
	"github.com/David-Botos/parquet-editor/pkg/engine/enginetest"
	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
)

type stubStore struct {
	exists bool
	err    error
	calls  int
}

func (p *stubStore) Exists(ctx context.Context, ref locator.Ref) (bool, error) {
	p.calls++
	return p.exists, p.err
}

// removingStore also records removals
type removingStore struct {
	stubStore
	mu      sync.Mutex
	removed []string
}

func (p *removingStore) Remove(ctx context.Context, ref locator.Ref) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, ref.Path)
	return nil
}

type recordingAuditor struct {
	mu  sync.Mutex
	ops []model.EditOperation
	err error
}

func (a *recordingAuditor) Record(ctx context.Context, ops []model.EditOperation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ops = append(a.ops, ops...)
	return a.err
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		PageSize:    100,
		MaxPageSize: 1000,
		OutputDir:   t.TempDir(),
		Compression: "snappy",
	}
}

func peopleColumns() []model.Column {
	return []model.Column{
		{Name: "name", DataType: "VARCHAR", Kind: "string", Nullable: true},
		{Name: "age", DataType: "INTEGER", Kind: "integer", Nullable: true},
	}
}

// copyTarget extracts the file path from a COPY ... TO '<path>' statement
func copyTarget(statement string) string {
	idx := strings.LastIndex(statement, " TO '")
	rest := statement[idx+len(" TO '"):]
	return rest[:strings.Index(rest, "'")]
}

// writingHook simulates the engine writing the COPY target
func writingHook(ctx context.Context, statement string) (int64, error) {
	if err := os.WriteFile(copyTarget(statement), []byte("PAR1"), 0o644); err != nil {
		return 0, err
	}
	return 3, nil
}

func newTestService(t *testing.T, eng engine.Engine, store locator.Checker, opts ...Option) *Service {
	t.Helper()
	return NewService(testConfig(t), eng, store, zap.NewNop(), opts...)
}

func sourcePath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.parquet")
	require.NoError(t, os.WriteFile(path, []byte("PAR1"), 0o644))
	return path
}

func TestLoadPage(t *testing.T) {
	eng := &enginetest.Fake{
		Columns:  peopleColumns(),
		Count:    3,
		PageRows: []map[string]interface{}{{"__rowid": int64(1), "name": "a", "age": int32(30)}},
	}
	svc := newTestService(t, eng, nil)

	page, err := svc.LoadPage(context.Background(), sourcePath(t), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalRows)
	assert.Len(t, page.Rows, 1)
	assert.True(t, page.HasMore())
}

func TestLoadPage_InvalidPath(t *testing.T) {
	svc := newTestService(t, &enginetest.Fake{}, nil)

	_, err := svc.LoadPage(context.Background(), "ftp://host/file.parquet", 10, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, ErrorCategoryInvalidRequest, CategoryOf(err))
}

func TestLoadPage_EmptyResultChecksSource(t *testing.T) {
	tests := []struct {
		name   string
		exists bool
		want   error
	}{
		{name: "missing file is unreachable", exists: false, want: ErrUnreachableSource},
		{name: "existing empty file is empty", exists: true, want: ErrEmptyResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &stubStore{exists: tt.exists}
			eng := &enginetest.Fake{Columns: peopleColumns(), Count: 0}
			svc := newTestService(t, eng, store)

			_, err := svc.LoadPage(context.Background(), "/data/people.parquet", 10, 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, store.calls)
		})
	}
}

func TestLoadPage_UnreachableFromEngine(t *testing.T) {
	eng := &enginetest.Fake{DescribeErr: engine.ErrUnreachable, CountErr: engine.ErrUnreachable}
	svc := newTestService(t, eng, nil)

	_, err := svc.LoadPage(context.Background(), "/data/missing.parquet", 10, 0)
	assert.ErrorIs(t, err, ErrUnreachableSource)
}

func TestCommit_WritesDestination(t *testing.T) {
	eng := &enginetest.Fake{Columns: peopleColumns(), ExecHook: writingHook}
	auditor := &recordingAuditor{}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc := newTestService(t, eng, nil, WithAuditor(auditor), WithMetrics(metrics))

	src := sourcePath(t)
	dest := filepath.Join(t.TempDir(), "out.parquet")
	result, err := svc.Commit(context.Background(), CommitRequest{
		Source:      src,
		Destination: dest,
		Edits: model.EditSet{
			CellEdits:   []model.CellEdit{{RowID: 1, Column: "name", Original: "a", Value: "z"}},
			RemovedRows: []model.RowID{2},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, dest, result.Destination)
	assert.Equal(t, 1, result.AppliedEdits)
	assert.Equal(t, 1, result.RemovedRows)
	assert.Equal(t, []string{"name"}, result.AffectedColumns)
	assert.FileExists(t, dest)

	stmts := eng.ExecutedStatements()
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], `CASE WHEN "__rowid" = 1 THEN CAST('z' AS VARCHAR) ELSE "name" END AS "name"`)
	assert.Contains(t, stmts[0], `WHERE "__rowid" NOT IN (2)`)
	assert.Contains(t, stmts[0], "COMPRESSION snappy")

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not remain")

	require.Len(t, auditor.ops, 2)
	assert.Equal(t, model.OperationCellEdit, auditor.ops[0].Operation)
	assert.Equal(t, "a", auditor.ops[0].OriginalValue)
	assert.Equal(t, model.OperationRowRemoval, auditor.ops[1].Operation)
	assert.Equal(t, result.JobID, auditor.ops[1].CommitID)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CommitsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EditsTotal.WithLabelValues("cell")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.InflightCommits))
}

func TestCommit_DefaultDestination(t *testing.T) {
	eng := &enginetest.Fake{Columns: peopleColumns(), ExecHook: writingHook}
	svc := newTestService(t, eng, nil)

	result, err := svc.Commit(context.Background(), CommitRequest{Source: sourcePath(t)})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(svc.cfg.OutputDir, "people_edited.parquet"), result.Destination)
	assert.FileExists(t, result.Destination)
}

func TestCommit_RejectsInPlaceRewrite(t *testing.T) {
	eng := &enginetest.Fake{Columns: peopleColumns(), ExecHook: writingHook}
	svc := newTestService(t, eng, nil)

	src := sourcePath(t)
	_, err := svc.Commit(context.Background(), CommitRequest{Source: src, Destination: src})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInPlaceRewrite)
	assert.Equal(t, ErrorCategoryConflict, CategoryOf(err))
	assert.Empty(t, eng.ExecutedStatements())
}

func TestCommit_ValidatesRequest(t *testing.T) {
	svc := newTestService(t, &enginetest.Fake{Columns: peopleColumns()}, nil)

	tests := []struct {
		name string
		req  CommitRequest
	}{
		{name: "missing source", req: CommitRequest{}},
		{name: "bad compression", req: CommitRequest{Source: "/a.parquet", Compression: "rar"}},
		{name: "bad row id", req: CommitRequest{Source: "/a.parquet", Edits: model.EditSet{RemovedRows: []model.RowID{0}}}},
		{name: "empty column", req: CommitRequest{Source: "/a.parquet", Edits: model.EditSet{
			CellEdits: []model.CellEdit{{RowID: 1, Column: ""}},
		}}},
		{name: "glob destination", req: CommitRequest{Source: "/a.parquet", Destination: "/out/*.parquet"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Commit(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestCommit_CompilationRejected(t *testing.T) {
	eng := &enginetest.Fake{Columns: peopleColumns(), ExecHook: writingHook}
	svc := newTestService(t, eng, nil)

	_, err := svc.Commit(context.Background(), CommitRequest{
		Source: sourcePath(t),
		Edits:  model.EditSet{RemovedColumns: []string{"name", "age"}},
	})
	assert.ErrorIs(t, err, ErrCompilationRejected)
	assert.Empty(t, eng.ExecutedStatements())
}

func TestCommit_BusyDestinationFailsFast(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	eng := &enginetest.Fake{Columns: peopleColumns()}
	eng.ExecHook = func(ctx context.Context, statement string) (int64, error) {
		close(started)
		<-release
		return writingHook(ctx, statement)
	}
	svc := newTestService(t, eng, nil)

	src := sourcePath(t)
	dest := filepath.Join(t.TempDir(), "out.parquet")
	req := CommitRequest{Source: src, Destination: dest}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Commit(context.Background(), req)
		done <- err
	}()
	<-started

	_, err := svc.Commit(context.Background(), req)
	assert.ErrorIs(t, err, ErrDestinationBusy)

	close(release)
	require.NoError(t, <-done)

	// the lock is released once the first commit finishes
	eng.ExecHook = writingHook
	_, err = svc.Commit(context.Background(), req)
	assert.NoError(t, err)
}

func TestCommit_ExecutionFailureClassification(t *testing.T) {
	tests := []struct {
		name    string
		execErr error
		exists  bool
		want    error
	}{
		{name: "io error with source present", execErr: engine.ErrUnreachable, exists: true, want: ErrEngineExecution},
		{name: "io error with source gone", execErr: engine.ErrUnreachable, exists: false, want: ErrUnreachableSource},
		{name: "execution error", execErr: engine.ErrExecution, exists: true, want: ErrEngineExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &enginetest.Fake{Columns: peopleColumns(), ExecErr: tt.execErr}
			svc := newTestService(t, eng, &stubStore{exists: tt.exists})

			dest := filepath.Join(t.TempDir(), "out.parquet")
			result, err := svc.Commit(context.Background(), CommitRequest{Source: "/data/people.parquet", Destination: dest})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			require.NotNil(t, result)
			assert.False(t, result.Success)
			assert.NoFileExists(t, dest)
		})
	}
}

func TestCommit_UnverifiedRemoteOutputIsRemoved(t *testing.T) {
	eng := &enginetest.Fake{
		Columns: peopleColumns(),
		Count:   3,
		ExecHook: func(ctx context.Context, statement string) (int64, error) {
			return 3, nil
		},
	}
	store := &removingStore{stubStore: stubStore{exists: true}}
	cfg := testConfig(t)
	cfg.VerifyOutput = true
	svc := NewService(cfg, eng, store, zap.NewNop())

	// The engine reports three output rows where two are expected
	result, err := svc.Commit(context.Background(), CommitRequest{
		Source:      "s3://bucket/people.parquet",
		Destination: "s3://bucket/out/people.parquet",
		Edits:       model.EditSet{RemovedRows: []model.RowID{1}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	require.NotNil(t, result.Verification)
	assert.Equal(t, int64(2), result.Verification.ExpectedRowCount)
	assert.False(t, result.Success)
	assert.Equal(t, []string{"s3://bucket/out/people.parquet"}, store.removed)
}

func TestCommit_ReadsOriginalsForAudit(t *testing.T) {
	eng := &enginetest.Fake{
		Columns:  peopleColumns(),
		PageRows: []map[string]interface{}{{"age": int32(30)}},
		ExecHook: writingHook,
	}
	auditor := &recordingAuditor{}
	svc := newTestService(t, eng, nil, WithAuditor(auditor))

	_, err := svc.Commit(context.Background(), CommitRequest{
		Source:      sourcePath(t),
		Destination: filepath.Join(t.TempDir(), "out.parquet"),
		Edits: model.EditSet{
			CellEdits: []model.CellEdit{{RowID: 1, Column: "age", Value: 31}},
		},
	})
	require.NoError(t, err)
	require.Len(t, auditor.ops, 1)
	assert.Equal(t, int32(30), auditor.ops[0].OriginalValue)
	assert.Equal(t, 31, auditor.ops[0].NewValue)
}

func TestCommit_AuditFailureIsAWarning(t *testing.T) {
	eng := &enginetest.Fake{Columns: peopleColumns(), ExecHook: writingHook}
	auditor := &recordingAuditor{err: errors.New("connection refused")}
	svc := newTestService(t, eng, nil, WithAuditor(auditor))

	result, err := svc.Commit(context.Background(), CommitRequest{
		Source: sourcePath(t),
		Edits:  model.EditSet{RemovedColumns: []string{"age"}},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "audit trail not recorded")
}

func TestPreview(t *testing.T) {
	eng := &enginetest.Fake{Columns: peopleColumns()}
	svc := newTestService(t, eng, nil)

	p, err := svc.Preview(context.Background(), CommitRequest{
		Source:      "/data/people.parquet",
		Destination: "/out/people.parquet",
		Compression: "zstd",
		Edits: model.EditSet{
			CellEdits: []model.CellEdit{
				{RowID: 1, Column: "age", Value: 31},
				{RowID: 2, Column: "height", Value: 180},
			},
			RemovedColumns: []string{"name"},
		},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.Statement, "COPY ("))
	assert.Contains(t, p.Statement, "TO '/out/people.parquet' (FORMAT parquet, COMPRESSION zstd)")
	assert.Equal(t, []string{"age"}, p.AffectedColumns)
	assert.Equal(t, []string{"name"}, p.RemovedColumns)
	require.Len(t, p.Dropped, 1)
	assert.Equal(t, "height", p.Dropped[0].Column)
	assert.NotEmpty(t, p.Warnings)
	assert.Empty(t, eng.ExecutedStatements(), "preview must not execute")
}

func TestAuditOperations(t *testing.T) {
	job := NewCommitJob(locator.Ref{Path: "/a.parquet"}, locator.Ref{Path: "/b.parquet"})
	eng := &enginetest.Fake{Columns: peopleColumns()}
	svc := newTestService(t, eng, nil)

	_, snap, err := svc.prepare("test", CommitRequest{
		Source: "/a.parquet",
		Edits: model.EditSet{
			CellEdits:      []model.CellEdit{{RowID: 3, Column: "age", Value: nil}},
			RemovedRows:    []model.RowID{1},
			RemovedColumns: []string{"name"},
		},
	})
	require.NoError(t, err)
	rw, err := svc.compiler.Compile(snap, peopleColumns())
	require.NoError(t, err)

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ops := auditOperations(job, rw, at)
	require.Len(t, ops, 3)
	assert.Equal(t, model.OperationCellEdit, ops[0].Operation)
	assert.Equal(t, model.RowID(3), ops[0].RowID)
	assert.Nil(t, ops[0].NewValue)
	assert.Equal(t, model.OperationRowRemoval, ops[1].Operation)
	assert.Equal(t, model.OperationColumnRemoval, ops[2].Operation)
	assert.Equal(t, "name", ops[2].ColumnName)
	for _, op := range ops {
		assert.Equal(t, job.ID, op.CommitID)
		assert.Equal(t, at, op.CommittedAt)
	}
}

func TestNewJob_Compression(t *testing.T) {
	svc := newTestService(t, &enginetest.Fake{}, nil)
	source, err := locator.Parse("/data/people.parquet")
	require.NoError(t, err)

	job, err := svc.newJob("commit", source, "/out/people.parquet", "GZIP")
	require.NoError(t, err)
	assert.Equal(t, "gzip", job.Compression)

	job, err = svc.newJob("commit", source, "/out/people.parquet", "")
	require.NoError(t, err)
	assert.Equal(t, "snappy", job.Compression, "falls back to the configured codec")

	_, err = svc.newJob("commit", source, "/out/people.parquet", "lz4_raw")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
