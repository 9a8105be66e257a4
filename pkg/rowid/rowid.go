// Package rowid assigns stable per-row identifiers to files without a key column.
//
// The identifier is the 1-based position of a row in the scan order
// (file name, then the row's position inside its file). The order depends only
// on the file contents, so re-reading an unmodified file reproduces the same
// identifiers. They are recomputed on every read and never stored.
package rowid

import (
	"errors"
	"fmt"
	"strings"

	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/model"
	"github.com/David-Botos/parquet-editor/pkg/quote"
)

const (
	fileRowNumberColumn = "file_row_number"
	fileNameColumn      = "filename"
)

// ErrReservedColumn is returned when a source column shares its name with a helper column
var ErrReservedColumn = errors.New("source column name is reserved")

// Scan returns the table function reading ref without helper columns
func Scan(ref locator.Ref) (string, error) {
	src, err := quote.String(ref.Path)
	if err != nil {
		return "", fmt.Errorf("invalid source path: %w", err)
	}
	return fmt.Sprintf("read_parquet(%s)", src), nil
}

// Relation returns a subquery exposing every source column plus model.RowIDColumn
func Relation(ref locator.Ref) (string, error) {
	src, err := quote.String(ref.Path)
	if err != nil {
		return "", fmt.Errorf("invalid source path: %w", err)
	}

	options := fileRowNumberColumn + " = true"
	if ref.IsGlob() {
		options += ", " + fileNameColumn + " = true"
	}

	return fmt.Sprintf(
		"(SELECT ROW_NUMBER() OVER (ORDER BY %s) AS %s, * FROM read_parquet(%s, %s))",
		orderBy(ref),
		quote.Ident(model.RowIDColumn),
		src,
		options,
	), nil
}

// HelperColumns lists the columns Relation adds that must never reach an output file
func HelperColumns(ref locator.Ref) []string {
	cols := []string{model.RowIDColumn, fileRowNumberColumn}
	if ref.IsGlob() {
		cols = append(cols, fileNameColumn)
	}
	return cols
}

// IsHelperColumn reports whether name is one of the helper columns for ref
func IsHelperColumn(ref locator.Ref, name string) bool {
	for _, col := range HelperColumns(ref) {
		if col == name {
			return true
		}
	}
	return false
}

// CheckColumns rejects sources whose columns collide with the helper columns
// Relation adds. Such files cannot be scanned with row positions without
// hiding or overwriting user data.
func CheckColumns(ref locator.Ref, columns []model.Column) error {
	for _, col := range columns {
		if IsHelperColumn(ref, col.Name) {
			return fmt.Errorf("%w: %q", ErrReservedColumn, col.Name)
		}
	}
	return nil
}

func orderBy(ref locator.Ref) string {
	keys := []string{quote.Ident(fileRowNumberColumn)}
	if ref.IsGlob() {
		keys = append([]string{quote.Ident(fileNameColumn)}, keys...)
	}
	return strings.Join(keys, ", ")
}
