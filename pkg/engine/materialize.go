// pkg/engine/materialize.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/compiler"
	"github.com/David-Botos/parquet-editor/pkg/locator"
)

// Check inspects a written file before it is accepted as the output
type Check func(ctx context.Context, written locator.Ref) error

// Materialize executes the rewrite into dest and returns the number of rows written.
// Local destinations are written to a temporary file in the same directory,
// checked, and renamed into place, so a failed or rejected rewrite never
// leaves a file at dest. Remote destinations are written directly, since
// object stores publish whole objects, and checked afterwards; the caller
// owns removing a remote output that fails the check. check may be nil.
func Materialize(
	ctx context.Context,
	eng Engine,
	rw *compiler.Rewrite,
	dest locator.Ref,
	compression string,
	check Check,
	logger *zap.Logger,
) (int64, error) {
	if dest.IsRemote() {
		stmt, err := rw.Statement(dest, compression)
		if err != nil {
			return 0, err
		}
		rows, err := eng.Exec(ctx, stmt)
		if err != nil {
			return 0, err
		}
		if check != nil {
			if err := check(ctx, dest); err != nil {
				return rows, err
			}
		}
		return rows, nil
	}

	dir := filepath.Dir(dest.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(dest.Path), uuid.New().String()))
	stmt, err := rw.StatementTo(tmpPath, compression)
	if err != nil {
		return 0, err
	}

	rows, err := eng.Exec(ctx, stmt)
	if err != nil {
		removeTemp(tmpPath, logger)
		return 0, err
	}

	if check != nil {
		written := locator.Ref{Kind: locator.KindLocal, Raw: tmpPath, Path: tmpPath}
		if err := check(ctx, written); err != nil {
			removeTemp(tmpPath, logger)
			return rows, err
		}
	}

	if err := os.Rename(tmpPath, dest.Path); err != nil {
		removeTemp(tmpPath, logger)
		return 0, fmt.Errorf("failed to move output into place: %w", err)
	}

	logger.Debug("Moved output into place",
		zap.String("temp", tmpPath),
		zap.String("destination", dest.Path))
	return rows, nil
}

func removeTemp(path string, logger *zap.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to remove temporary output",
			zap.String("path", path),
			zap.Error(err))
	}
}
