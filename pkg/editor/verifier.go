// pkg/editor/verifier.go
package editor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow/go/v17/parquet/file"
	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/compiler"
	"github.com/David-Botos/parquet-editor/pkg/engine"
	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/rowid"
)

// VerificationReport contains the results of an output verification
type VerificationReport struct {
	VerificationTime  time.Time     `json:"verification_time"`
	SourceRowCount    int64         `json:"source_row_count"`
	ExpectedRowCount  int64         `json:"expected_row_count"`
	OutputRowCount    int64         `json:"output_row_count"`
	RowCountMatches   bool          `json:"row_count_matches"`
	ColumnsMatch      bool          `json:"columns_match"`
	MissingColumns    []string      `json:"missing_columns,omitempty"`
	UnexpectedColumns []string      `json:"unexpected_columns,omitempty"`
	Duration          time.Duration `json:"duration_ns"`
}

// Passed reports whether the output matched expectations
func (r *VerificationReport) Passed() bool {
	return r.RowCountMatches && r.ColumnsMatch
}

// Verifier checks a written output against the rewrite that produced it
type Verifier struct {
	engine engine.Engine
	logger *zap.Logger
}

// NewVerifier creates a new verifier
func NewVerifier(eng engine.Engine, logger *zap.Logger) *Verifier {
	return &Verifier{
		engine: eng,
		logger: logger.Named("verifier"),
	}
}

// Verify compares the output row count and columns with what the rewrite should produce.
// Local outputs are checked from the parquet footer; remote outputs through the engine.
func (v *Verifier) Verify(ctx context.Context, rw *compiler.Rewrite, dest locator.Ref) (*VerificationReport, error) {
	start := time.Now()
	report := &VerificationReport{VerificationTime: start}

	scan, err := rowid.Scan(rw.Source)
	if err != nil {
		return nil, err
	}
	sourceCount, err := v.engine.QueryCount(ctx, "SELECT count(*) FROM "+scan)
	if err != nil {
		return nil, fmt.Errorf("failed to count source rows: %w", err)
	}
	report.SourceRowCount = sourceCount
	report.ExpectedRowCount = expectedRows(sourceCount, rw)

	var outputColumns []string
	if dest.IsRemote() {
		outputColumns, report.OutputRowCount, err = v.inspectWithEngine(ctx, dest)
	} else {
		outputColumns, report.OutputRowCount, err = inspectFooter(dest.Path)
	}
	if err != nil {
		return nil, err
	}

	report.RowCountMatches = report.OutputRowCount == report.ExpectedRowCount
	report.MissingColumns, report.UnexpectedColumns = diffColumns(rw, outputColumns)
	report.ColumnsMatch = len(report.MissingColumns) == 0 && len(report.UnexpectedColumns) == 0
	report.Duration = time.Since(start)

	if report.Passed() {
		v.logger.Info("Output verification successful",
			zap.String("destination", dest.Path),
			zap.Int64("rows", report.OutputRowCount))
	} else {
		v.logger.Warn("Output verification failed",
			zap.String("destination", dest.Path),
			zap.Int64("expectedRows", report.ExpectedRowCount),
			zap.Int64("outputRows", report.OutputRowCount),
			zap.Strings("missingColumns", report.MissingColumns),
			zap.Strings("unexpectedColumns", report.UnexpectedColumns))
	}

	return report, nil
}

// expectedRows subtracts removed rows that exist in the source
func expectedRows(sourceCount int64, rw *compiler.Rewrite) int64 {
	expected := sourceCount
	for _, rowID := range rw.RemovedRows {
		if int64(rowID) >= 1 && int64(rowID) <= sourceCount {
			expected--
		}
	}
	return expected
}

func diffColumns(rw *compiler.Rewrite, output []string) (missing, unexpected []string) {
	want := make(map[string]bool, len(rw.Columns))
	for _, col := range rw.Columns {
		want[col.Name] = true
	}
	got := make(map[string]bool, len(output))
	for _, name := range output {
		got[name] = true
		if !want[name] {
			unexpected = append(unexpected, name)
		}
	}
	for _, col := range rw.Columns {
		if !got[col.Name] {
			missing = append(missing, col.Name)
		}
	}
	return missing, unexpected
}

// inspectFooter reads the top-level column names and row count of a local parquet file
func inspectFooter(path string) ([]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open output: %w", err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pf.Close()

	root := pf.MetaData().Schema.Root()
	columns := make([]string, root.NumFields())
	for i := range columns {
		columns[i] = root.Field(i).Name()
	}
	return columns, pf.NumRows(), nil
}

func (v *Verifier) inspectWithEngine(ctx context.Context, dest locator.Ref) ([]string, int64, error) {
	cols, err := v.engine.Describe(ctx, dest)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to describe output: %w", err)
	}
	scan, err := rowid.Scan(dest)
	if err != nil {
		return nil, 0, err
	}
	count, err := v.engine.QueryCount(ctx, "SELECT count(*) FROM "+scan)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count output rows: %w", err)
	}

	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names, count, nil
}
