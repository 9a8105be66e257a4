// Package engine executes queries and rewrite statements against columnar files.
package engine

import (
	"context"
	"errors"

	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
)

var (
	// ErrUnreachable is returned when the engine cannot open a file
	ErrUnreachable = errors.New("file unreachable")
	// ErrExecution is returned when a query or statement fails for another reason
	ErrExecution = errors.New("engine execution failed")
)

// Engine is the query engine used by the planner and the editor
type Engine interface {
	// Describe returns the columns of the file in file order
	Describe(ctx context.Context, ref locator.Ref) ([]model.Column, error)

	// QueryCount runs a query returning a single integer
	QueryCount(ctx context.Context, query string) (int64, error)

	// QueryRows runs a query and returns every row as a column -> value map
	QueryRows(ctx context.Context, query string, columns []model.Column) ([]map[string]interface{}, error)

	// Exec runs a statement and returns the number of rows it reported
	Exec(ctx context.Context, statement string) (int64, error)
}
