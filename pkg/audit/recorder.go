// pkg/audit/recorder.go
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/model"
	"github.com/David-Botos/parquet-editor/pkg/quote"
)

// Record is one row of the audit table
type Record struct {
	ID            int64          `db:"id" json:"id"`
	CommitID      string         `db:"commit_id" json:"commit_id"`
	SourcePath    string         `db:"source_path" json:"source_path"`
	OutputPath    string         `db:"output_path" json:"output_path"`
	Operation     string         `db:"operation" json:"operation"`
	RowID         sql.NullInt64  `db:"row_id" json:"-"`
	ColumnName    sql.NullString `db:"column_name" json:"-"`
	OriginalValue sql.NullString `db:"original_value" json:"-"`
	NewValue      sql.NullString `db:"new_value" json:"-"`
	CommittedAt   time.Time      `db:"committed_at" json:"committed_at"`
}

// Recorder writes committed edits to a tracking table in PostgreSQL
type Recorder struct {
	db     *sqlx.DB
	table  string
	logger *zap.Logger
}

// NewRecorder creates a Recorder and ensures the tracking table exists
func NewRecorder(ctx context.Context, db *sql.DB, table string, logger *zap.Logger) (*Recorder, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if table == "" {
		table = "edit_audit"
	}

	r := &Recorder{
		db:     sqlx.NewDb(db, "pgx"),
		table:  quote.Ident(table),
		logger: logger.Named("audit"),
	}

	if err := r.setupTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup audit table: %w", err)
	}

	return r, nil
}

// setupTable ensures the tracking table exists
func (r *Recorder) setupTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS ` + r.table + ` (
			id BIGSERIAL PRIMARY KEY,
			commit_id TEXT NOT NULL,
			source_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			operation TEXT NOT NULL,
			row_id BIGINT,
			column_name TEXT,
			original_value TEXT,
			new_value TEXT,
			committed_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}

	r.logger.Info("Ensured audit table exists", zap.String("table", r.table))
	return nil
}

// Record batch inserts committed edits in a single transaction
func (r *Recorder) Record(ctx context.Context, operations []model.EditOperation) (err error) {
	if len(operations) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Begin transaction
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO `+r.table+`
		(commit_id, source_path, output_path, operation, row_id,
		 column_name, original_value, new_value, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, op := range operations {
		if _, err = stmt.ExecContext(ctx, insertArgs(op)...); err != nil {
			return fmt.Errorf("failed to insert audit record: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("Recorded committed edits",
		zap.String("commitID", operations[0].CommitID),
		zap.Int("count", len(operations)))
	return nil
}

// History returns the most recent audit records for a source file, newest first
func (r *Recorder) History(ctx context.Context, sourcePath string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	var records []Record
	query := `SELECT id, commit_id, source_path, output_path, operation, row_id,
		column_name, original_value, new_value, committed_at
		FROM ` + r.table + `
		WHERE source_path = $1
		ORDER BY committed_at DESC, id DESC
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &records, query, sourcePath, limit); err != nil {
		return nil, fmt.Errorf("failed to query audit history: %w", err)
	}
	return records, nil
}

// insertArgs orders an operation's values for the insert statement
func insertArgs(op model.EditOperation) []interface{} {
	var rowID *int64
	if op.RowID > 0 {
		id := int64(op.RowID)
		rowID = &id
	}
	var column *string
	if op.ColumnName != "" {
		column = &op.ColumnName
	}

	var original, value *string
	if op.Operation == model.OperationCellEdit {
		original = toNullableString(op.OriginalValue)
		value = toNullableString(op.NewValue)
	}

	committedAt := op.CommittedAt
	if committedAt.IsZero() {
		committedAt = time.Now()
	}

	return []interface{}{
		op.CommitID,
		op.SourcePath,
		op.OutputPath,
		op.Operation,
		rowID,
		column,
		original,
		value,
		committedAt,
	}
}

// toNullableString safely converts an interface to a nullable string
func toNullableString(v interface{}) *string {
	if v == nil {
		return nil
	}
	s, err := quote.Text(v)
	if err != nil {
		s = fmt.Sprintf("%v", v)
	}
	return &s
}
