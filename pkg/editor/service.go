// Package editor ties the ledger, compiler, planner and engine together.
//
// A Service serves pages of parquet files, keeps edit sessions, and commits
// ledgers by compiling them into a single rewrite statement executed by the
// engine. Every error it returns is an *Error matching one of the sentinels
// in error.go.
package editor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/compiler"
	"github.com/David-Botos/parquet-editor/pkg/config"
	"github.com/David-Botos/parquet-editor/pkg/engine"
	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
	"github.com/David-Botos/parquet-editor/pkg/planner"
	"github.com/David-Botos/parquet-editor/pkg/session"
)

// Auditor records committed edits
type Auditor interface {
	Record(ctx context.Context, operations []model.EditOperation) error
}

// CommitRequest describes a stateless commit of an edit set
type CommitRequest struct {
	Source      string        `json:"source" yaml:"source" validate:"required"`
	Destination string        `json:"destination,omitempty" yaml:"destination,omitempty"`
	Compression string        `json:"compression,omitempty" yaml:"compression,omitempty"`
	Edits       model.EditSet `json:"edits" yaml:"edits"`
}

// DroppedEditView is the reviewable form of an edit left out of a rewrite
type DroppedEditView struct {
	RowID  model.RowID `json:"row_id"`
	Column string      `json:"column"`
	Value  interface{} `json:"value"`
	Reason string      `json:"reason"`
}

// Preview is a compiled but unexecuted commit
type Preview struct {
	Source          string            `json:"source"`
	Destination     string            `json:"destination"`
	Statement       string            `json:"statement"`
	Columns         []model.Column    `json:"columns"`
	AffectedColumns []string          `json:"affected_columns"`
	CellEdits       []model.CellEdit  `json:"cell_edits"`
	RemovedRows     []model.RowID     `json:"removed_rows"`
	RemovedColumns  []string          `json:"removed_columns"`
	Dropped         []DroppedEditView `json:"dropped"`
	Warnings        []string          `json:"warnings"`
}

// SessionInfo summarizes an open session
type SessionInfo struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Edits     int       `json:"edits"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Option configures a Service
type Option func(*Service)

// WithAuditor sends committed edits to a
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// WithMetrics reports service activity to m
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service is the editing facade used by the HTTP server and the CLI
type Service struct {
	cfg      *config.Config
	engine   engine.Engine
	store    locator.Checker
	planner  *planner.Planner
	compiler *compiler.Compiler
	verifier *Verifier
	auditor  Auditor
	metrics  *Metrics
	validate *validator.Validate
	sessions *sessionRegistry
	locks    *destinationLocks
	logger   *zap.Logger
}

// NewService creates a service. store may be nil, in which case empty
// results are never re-classified as unreachable sources.
func NewService(cfg *config.Config, eng engine.Engine, store locator.Checker, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		engine:   eng,
		store:    store,
		planner:  planner.New(eng, cfg.MaxPageSize, logger),
		compiler: compiler.New(logger),
		verifier: NewVerifier(eng, logger),
		validate: validator.New(),
		sessions: newSessionRegistry(),
		locks:    newDestinationLocks(),
		logger:   logger.Named("editor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadPage returns one page of the file at path. A limit of zero loads every row.
func (s *Service) LoadPage(ctx context.Context, path string, limit, offset int) (*model.Page, error) {
	start := time.Now()
	page, err := s.loadPage(ctx, path, limit, offset)
	s.metrics.recordPage(err, time.Since(start))
	return page, err
}

func (s *Service) loadPage(ctx context.Context, path string, limit, offset int) (*model.Page, error) {
	const op = "load page"

	ref, err := locator.Parse(path)
	if err != nil {
		return nil, newError(ErrInvalidRequest, op, path, err)
	}

	page, err := s.planner.Load(ctx, ref, limit, offset)
	if err != nil {
		return nil, s.readError(ctx, op, ref, err)
	}
	return page, nil
}

// Preview compiles a stateless commit without executing it
func (s *Service) Preview(ctx context.Context, req CommitRequest) (*Preview, error) {
	const op = "preview"

	job, snap, err := s.prepare(op, req)
	if err != nil {
		return nil, err
	}
	return s.preview(ctx, op, job, snap)
}

// Commit materializes a stateless edit set. When an auditor is configured,
// cell edits without an original value get it from the source file.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	const op = "commit"

	job, snap, err := s.prepare(op, req)
	if err != nil {
		s.metrics.recordCommit(nil, err)
		return nil, err
	}
	if s.auditor != nil {
		if snap.CellEdits, err = s.readOriginals(ctx, job.Source, snap.CellEdits, nil); err != nil {
			err = s.readError(ctx, op, job.Source, err)
			s.metrics.recordCommit(nil, err)
			return nil, err
		}
	}
	return s.commit(ctx, op, job, snap)
}

// prepare validates a request and resolves its paths
func (s *Service) prepare(op string, req CommitRequest) (CommitJob, session.Snapshot, error) {
	if err := s.validate.Struct(req); err != nil {
		return CommitJob{}, session.Snapshot{}, newError(ErrInvalidRequest, op, req.Source, err)
	}

	source, err := locator.Parse(req.Source)
	if err != nil {
		return CommitJob{}, session.Snapshot{}, newError(ErrInvalidRequest, op, req.Source, err)
	}

	job, err := s.newJob(op, source, req.Destination, req.Compression)
	if err != nil {
		return CommitJob{}, session.Snapshot{}, err
	}

	snap, err := session.FromEditSet(source, req.Edits)
	if err != nil {
		return CommitJob{}, session.Snapshot{}, newError(ErrInvalidRequest, op, req.Source, err)
	}
	return job, snap, nil
}

// newJob resolves the destination and rejects in-place rewrites
func (s *Service) newJob(op string, source locator.Ref, destination, compression string) (CommitJob, error) {
	var (
		dest locator.Ref
		err  error
	)
	if destination == "" {
		dest, err = locator.DefaultOutput(source, s.cfg.OutputDir)
	} else {
		dest, err = locator.Parse(destination)
	}
	if err != nil {
		return CommitJob{}, newError(ErrInvalidRequest, op, destination, err)
	}
	if dest.IsGlob() {
		return CommitJob{}, newError(ErrInvalidRequest, op, dest.Path, errors.New("destination must name a single file"))
	}
	if dest.Same(source) {
		return CommitJob{}, newError(ErrInPlaceRewrite, op, dest.Path, nil)
	}

	if compression == "" {
		compression = s.cfg.Compression
	}
	if compression != "" {
		codec, ok := config.ParquetCodec(compression)
		if !ok {
			return CommitJob{}, newError(ErrInvalidRequest, op, dest.Path,
				fmt.Errorf("unsupported compression %q, expected one of %v", compression, config.ParquetCodecs))
		}
		compression = codec
	}
	return NewCommitJob(source, dest).WithCompression(compression), nil
}

func (s *Service) preview(ctx context.Context, op string, job CommitJob, snap session.Snapshot) (*Preview, error) {
	rw, err := s.compile(ctx, op, job, snap)
	if err != nil {
		return nil, err
	}

	stmt, err := rw.Statement(job.Destination, job.Compression)
	if err != nil {
		return nil, newError(ErrCompilationRejected, op, job.Destination.Path, err)
	}

	p := &Preview{
		Source:          job.Source.Path,
		Destination:     job.Destination.Path,
		Statement:       stmt,
		Columns:         rw.Columns,
		AffectedColumns: rw.AffectedColumns,
		CellEdits:       rw.Applied,
		RemovedRows:     rw.RemovedRows,
		RemovedColumns:  rw.RemovedColumns,
		Dropped:         make([]DroppedEditView, 0, len(rw.Dropped)),
		Warnings:        rw.Warnings,
	}
	for _, d := range rw.Dropped {
		p.Dropped = append(p.Dropped, DroppedEditView{
			RowID:  d.Edit.RowID,
			Column: d.Edit.Column,
			Value:  d.Edit.Value,
			Reason: d.Reason,
		})
	}
	return p, nil
}

// compile describes the source and compiles snap against it
func (s *Service) compile(ctx context.Context, op string, job CommitJob, snap session.Snapshot) (*compiler.Rewrite, error) {
	columns, err := s.engine.Describe(ctx, job.Source)
	if err != nil {
		return nil, s.readError(ctx, op, job.Source, err)
	}

	rw, err := s.compiler.Compile(snap, columns)
	if err != nil {
		return nil, newError(kindOf(err), op, job.Source.Path, err)
	}
	return rw, nil
}

// commit runs one commit job. Only one commit per destination runs at a time;
// a second commit to a busy destination fails immediately.
func (s *Service) commit(ctx context.Context, op string, job CommitJob, snap session.Snapshot) (*CommitResult, error) {
	result, err := s.runCommit(ctx, op, job, snap)
	s.metrics.recordCommit(result, err)
	return result, err
}

func (s *Service) runCommit(ctx context.Context, op string, job CommitJob, snap session.Snapshot) (*CommitResult, error) {
	lockKey := job.Destination.String()
	if !s.locks.tryAcquire(lockKey) {
		return nil, newError(ErrDestinationBusy, op, job.Destination.Path, nil)
	}
	defer s.locks.release(lockKey)

	s.metrics.commitStarted()
	defer s.metrics.commitFinished()

	result := NewCommitResult(job)
	logger := s.logger.With(
		zap.String("jobID", job.ID),
		zap.String("source", job.Source.Path),
		zap.String("destination", job.Destination.Path))
	if job.SessionID != "" {
		logger = logger.With(zap.String("sessionID", job.SessionID))
	}
	logger.Info("Starting commit",
		zap.Int("cellEdits", len(snap.CellEdits)),
		zap.Int("removedRows", len(snap.RemovedRows)),
		zap.Int("removedColumns", len(snap.RemovedColumns)))

	rw, err := s.compile(ctx, op, job, snap)
	if err != nil {
		result.Complete(false)
		return result, err
	}
	result.AppliedEdits = rw.AppliedEdits
	result.RemovedRows = len(rw.RemovedRows)
	result.RemovedColumns = len(rw.RemovedColumns)
	result.AffectedColumns = rw.AffectedColumns
	result.Dropped = rw.Dropped
	for _, warning := range rw.Warnings {
		result.AddWarning(warning)
	}

	var check engine.Check
	if s.cfg.VerifyOutput {
		check = func(ctx context.Context, written locator.Ref) error {
			report, err := s.verifier.Verify(ctx, rw, written)
			if err != nil {
				return newError(ErrVerificationFailed, op, job.Destination.Path, err)
			}
			result.Verification = report
			if !report.Passed() {
				return newError(ErrVerificationFailed, op, job.Destination.Path,
					fmt.Errorf("expected %d rows, wrote %d; missing columns %v, unexpected columns %v",
						report.ExpectedRowCount, report.OutputRowCount, report.MissingColumns, report.UnexpectedColumns))
			}
			return nil
		}
	}

	rows, err := engine.Materialize(ctx, s.engine, rw, job.Destination, job.Compression, check, logger)
	if err != nil {
		result.Complete(false)
		if errors.Is(err, ErrVerificationFailed) {
			s.discardOutput(ctx, job.Destination, logger)
			return result, err
		}
		return result, s.writeError(ctx, op, job, err)
	}
	result.RowsWritten = rows
	if result.Verification != nil && result.Verification.OutputRowCount > 0 {
		result.RowsWritten = result.Verification.OutputRowCount
	}

	if s.auditor != nil {
		if err := s.auditor.Record(ctx, auditOperations(job, rw, time.Now())); err != nil {
			logger.Warn("Failed to record audit trail", zap.Error(err))
			result.AddWarning(fmt.Sprintf("audit trail not recorded: %v", err))
		}
	}

	result.Complete(true)
	logger.Info("Commit completed",
		zap.Int64("rowsWritten", result.RowsWritten),
		zap.Int("appliedEdits", result.AppliedEdits),
		zap.Int("removedRows", result.RemovedRows),
		zap.Int("removedColumns", result.RemovedColumns),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// discardOutput removes a remote output that failed verification. Local
// outputs never reach the destination when verification fails.
func (s *Service) discardOutput(ctx context.Context, dest locator.Ref, logger *zap.Logger) {
	if !dest.IsRemote() {
		return
	}
	remover, ok := s.store.(locator.Remover)
	if !ok {
		logger.Warn("Unverified output left at destination")
		return
	}
	if err := remover.Remove(ctx, dest); err != nil {
		logger.Error("Failed to remove unverified output", zap.Error(err))
		return
	}
	logger.Info("Removed unverified output")
}

// readError classifies a failure to read ref. An empty result from a file
// that does not exist is reported as an unreachable source.
func (s *Service) readError(ctx context.Context, op string, ref locator.Ref, err error) error {
	kind := kindOf(err)
	if kind == ErrEmptyResult && s.store != nil {
		exists, statErr := s.store.Exists(ctx, ref)
		switch {
		case statErr != nil:
			s.logger.Warn("Failed to check source",
				zap.String("path", ref.Path),
				zap.Error(statErr))
		case !exists:
			kind = ErrUnreachableSource
		}
	}
	return newError(kind, op, ref.Path, err)
}

// writeError classifies a failed rewrite. I/O failures while the source is
// still present are blamed on the destination.
func (s *Service) writeError(ctx context.Context, op string, job CommitJob, err error) error {
	kind := kindOf(err)
	if kind == ErrUnreachableSource && s.store != nil {
		exists, statErr := s.store.Exists(ctx, job.Source)
		if statErr == nil && exists {
			kind = ErrEngineExecution
		}
	}
	path := job.Source.Path
	if kind != ErrUnreachableSource {
		path = job.Destination.Path
	}
	return newError(kind, op, path, err)
}

// auditOperations lists the edits a rewrite committed
func auditOperations(job CommitJob, rw *compiler.Rewrite, at time.Time) []model.EditOperation {
	ops := make([]model.EditOperation, 0, len(rw.Applied)+len(rw.RemovedRows)+len(rw.RemovedColumns))
	base := model.EditOperation{
		CommitID:    job.ID,
		SourcePath:  job.Source.Path,
		OutputPath:  job.Destination.Path,
		CommittedAt: at,
	}
	for _, edit := range rw.Applied {
		op := base
		op.Operation = model.OperationCellEdit
		op.RowID = edit.RowID
		op.ColumnName = edit.Column
		op.OriginalValue = edit.Original
		op.NewValue = edit.Value
		ops = append(ops, op)
	}
	for _, rowID := range rw.RemovedRows {
		op := base
		op.Operation = model.OperationRowRemoval
		op.RowID = rowID
		ops = append(ops, op)
	}
	for _, column := range rw.RemovedColumns {
		op := base
		op.Operation = model.OperationColumnRemoval
		op.ColumnName = column
		ops = append(ops, op)
	}
	return ops
}
