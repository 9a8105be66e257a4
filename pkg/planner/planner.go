// Package planner builds and runs the count and page queries behind a paginated view.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/David-Botos/parquet-editor/pkg/engine"
	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
	"github.com/David-Botos/parquet-editor/pkg/quote"
	"github.com/David-Botos/parquet-editor/pkg/rowid"
)

var (
	// ErrEmptyResult is returned when a read yields no rows where rows were expected
	ErrEmptyResult = errors.New("empty result")
	// ErrInvalidWindow is returned for negative limits or offsets
	ErrInvalidWindow = errors.New("invalid page window")
)

// Plan holds the queries for one page
type Plan struct {
	CountQuery string
	PageQuery  string
	Limit      int // 0 means no limit
	Offset     int
}

// BuildPlan returns the count and page queries for a window of ref.
// A limit of 0 reads the entire file.
func BuildPlan(ref locator.Ref, limit, offset int) (Plan, error) {
	if limit < 0 || offset < 0 {
		return Plan{}, fmt.Errorf("%w: limit=%d offset=%d", ErrInvalidWindow, limit, offset)
	}

	scan, err := rowid.Scan(ref)
	if err != nil {
		return Plan{}, err
	}
	relation, err := rowid.Relation(ref)
	if err != nil {
		return Plan{}, err
	}

	// Keep the row identifier, drop the other helpers
	var hidden []string
	for _, col := range rowid.HelperColumns(ref) {
		if col != model.RowIDColumn {
			hidden = append(hidden, col)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT * EXCLUDE (%s) FROM %s AS src ORDER BY %s",
		quote.Idents(hidden), relation, quote.Ident(model.RowIDColumn))
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", offset)
	}

	return Plan{
		CountQuery: "SELECT count(*) FROM " + scan,
		PageQuery:  sb.String(),
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// Planner loads pages of a file
type Planner struct {
	engine      engine.Engine
	logger      *zap.Logger
	maxPageSize int
}

// New creates a planner. Non-zero limits above maxPageSize are clamped.
func New(eng engine.Engine, maxPageSize int, logger *zap.Logger) *Planner {
	return &Planner{
		engine:      eng,
		logger:      logger.Named("planner"),
		maxPageSize: maxPageSize,
	}
}

// Load returns one page of ref together with the total row count.
// The count and the page are read concurrently.
func (p *Planner) Load(ctx context.Context, ref locator.Ref, limit, offset int) (*model.Page, error) {
	if p.maxPageSize > 0 && limit > p.maxPageSize {
		p.logger.Debug("Clamping page size",
			zap.Int("requested", limit),
			zap.Int("max", p.maxPageSize))
		limit = p.maxPageSize
	}

	plan, err := BuildPlan(ref, limit, offset)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		total   int64
		columns []model.Column
		rows    []map[string]interface{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		count, err := p.engine.QueryCount(gctx, plan.CountQuery)
		if err != nil {
			return fmt.Errorf("failed to count rows of %s: %w", ref.Path, err)
		}
		total = count
		return nil
	})
	g.Go(func() error {
		cols, err := p.engine.Describe(gctx, ref)
		if err != nil {
			return fmt.Errorf("failed to describe %s: %w", ref.Path, err)
		}
		if err := rowid.CheckColumns(ref, cols); err != nil {
			return err
		}
		columns = cols

		pageRows, err := p.engine.QueryRows(gctx, plan.PageQuery, cols)
		if err != nil {
			return fmt.Errorf("failed to read page of %s: %w", ref.Path, err)
		}
		rows = pageRows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if total == 0 {
		return nil, fmt.Errorf("%w: %s has no rows", ErrEmptyResult, ref.Path)
	}
	if len(rows) == 0 && int64(offset) < total {
		return nil, fmt.Errorf("%w: no rows returned at offset %d of %d", ErrEmptyResult, offset, total)
	}

	p.logger.Info("Loaded page",
		zap.String("path", ref.Path),
		zap.Int("limit", plan.Limit),
		zap.Int("offset", plan.Offset),
		zap.Int("rows", len(rows)),
		zap.Int64("totalRows", total),
		zap.Duration("duration", time.Since(start)))

	return &model.Page{
		Path:      ref.Path,
		Columns:   columns,
		Rows:      rows,
		TotalRows: total,
		Limit:     plan.Limit,
		Offset:    plan.Offset,
	}, nil
}
