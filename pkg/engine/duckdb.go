// pkg/engine/duckdb.go
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/connector"
	"github.com/David-Botos/parquet-editor/pkg/converter"
	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
	"github.com/David-Botos/parquet-editor/pkg/rowid"
)

// DuckDB implements Engine over an embedded DuckDB connection
type DuckDB struct {
	conn      connector.DatabaseConnector
	db        *sqlx.DB
	converter *converter.TypeConverter
	logger    *zap.Logger
	timeout   time.Duration
}

// describeRow is one row of DESCRIBE output
type describeRow struct {
	Name    string         `db:"column_name"`
	Type    string         `db:"column_type"`
	Null    sql.NullString `db:"null"`
	Key     sql.NullString `db:"key"`
	Default sql.NullString `db:"default"`
	Extra   sql.NullString `db:"extra"`
}

// NewDuckDB wraps a DuckDB connector. timeout bounds every query.
func NewDuckDB(conn connector.DatabaseConnector, timeout time.Duration, logger *zap.Logger) *DuckDB {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &DuckDB{
		conn:      conn,
		db:        sqlx.NewDb(conn.DB(), "duckdb"),
		converter: converter.NewTypeConverter(logger.Named("converter")),
		logger:    logger.Named("engine"),
		timeout:   timeout,
	}
}

// Describe returns the columns of the file in file order
func (e *DuckDB) Describe(ctx context.Context, ref locator.Ref) ([]model.Column, error) {
	scan, err := rowid.Scan(ref)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var rows []describeRow
	if err := e.db.Unsafe().SelectContext(queryCtx, &rows, "DESCRIBE SELECT * FROM "+scan); err != nil {
		return nil, classify(err, "describe "+ref.Path)
	}

	columns := make([]model.Column, len(rows))
	for i, row := range rows {
		columns[i] = model.Column{
			Name:     row.Name,
			DataType: row.Type,
			Kind:     converter.KindOf(row.Type),
			Nullable: !row.Null.Valid || strings.EqualFold(row.Null.String, "YES"),
		}
	}

	e.logger.Debug("Described file",
		zap.String("path", ref.Path),
		zap.Int("columns", len(columns)))
	return columns, nil
}

// QueryCount runs a query returning a single integer
func (e *DuckDB) QueryCount(ctx context.Context, query string) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var count int64
	if err := e.db.GetContext(queryCtx, &count, query); err != nil {
		return 0, classify(err, "count")
	}
	return count, nil
}

// QueryRows runs a query and returns every row as a column -> value map
func (e *DuckDB) QueryRows(ctx context.Context, query string, columns []model.Column) ([]map[string]interface{}, error) {
	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.db.QueryxContext(queryCtx, query)
	if err != nil {
		return nil, classify(err, "query")
	}
	defer rows.Close()

	result := make([]map[string]interface{}, 0)
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, e.converter.ConvertRow(row, columns))
	}

	if err := rows.Err(); err != nil {
		return nil, classify(err, "query")
	}

	return result, nil
}

// Exec runs a statement and returns the number of rows it reported
func (e *DuckDB) Exec(ctx context.Context, statement string) (int64, error) {
	start := time.Now()
	result, err := e.conn.ExecWithTimeout(ctx, statement, e.timeout)
	if err != nil {
		return 0, classify(err, "exec")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		e.logger.Warn("Couldn't get rows affected", zap.Error(err))
		affected = -1
	}

	e.logger.Debug("Executed statement",
		zap.Int64("rows", affected),
		zap.Duration("duration", time.Since(start)))
	return affected, nil
}

// classify maps engine errors onto ErrUnreachable or ErrExecution
func classify(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, ErrExecution, err)
	}

	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) {
		switch duckErr.Type {
		case duckdb.ErrorTypeIO, duckdb.ErrorTypeHTTP:
			return fmt.Errorf("%s: %w: %w", op, ErrUnreachable, err)
		}
	}

	msg := err.Error()
	for _, marker := range unreachableMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%s: %w: %w", op, ErrUnreachable, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrExecution, err)
}

var unreachableMarkers = []string{
	"IO Error",
	"HTTP Error",
	"No files found",
	"No such file",
	"Cannot open file",
	"HTTP 404",
	"HTTP 403",
}
