// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
)

// Fake is a scripted engine. It records every query and statement it receives.
type Fake struct {
	mu sync.Mutex

	Columns  []model.Column
	Count    int64
	PageRows []map[string]interface{}
	ExecRows int64

	DescribeErr error
	CountErr    error
	RowsErr     error
	ExecErr     error

	// ExecHook replaces the default Exec behaviour when set
	ExecHook func(ctx context.Context, statement string) (int64, error)

	Described  []string
	Queries    []string
	Statements []string
}

// Describe returns the scripted columns
func (f *Fake) Describe(ctx context.Context, ref locator.Ref) ([]model.Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Described = append(f.Described, ref.Path)
	if f.DescribeErr != nil {
		return nil, f.DescribeErr
	}
	return append([]model.Column(nil), f.Columns...), nil
}

// QueryCount returns the scripted count
func (f *Fake) QueryCount(ctx context.Context, query string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queries = append(f.Queries, query)
	return f.Count, f.CountErr
}

// QueryRows returns the scripted page rows
func (f *Fake) QueryRows(ctx context.Context, query string, columns []model.Column) ([]map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queries = append(f.Queries, query)
	if f.RowsErr != nil {
		return nil, f.RowsErr
	}
	return f.PageRows, nil
}

// Exec records the statement and returns the scripted result
func (f *Fake) Exec(ctx context.Context, statement string) (int64, error) {
	f.mu.Lock()
	f.Statements = append(f.Statements, statement)
	hook := f.ExecHook
	rows, err := f.ExecRows, f.ExecErr
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, statement)
	}
	return rows, err
}

// ExecutedStatements returns a copy of the statements received so far
func (f *Fake) ExecutedStatements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Statements...)
}
