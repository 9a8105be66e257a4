// pkg/compiler/statement.go
package compiler

import (
	"fmt"

	"github.com/David-Botos/parquet-editor/pkg/config"
	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/quote"
)


// Statement binds the rewrite to a destination file.
// An empty compression selects snappy.
func (r *Rewrite) Statement(dest locator.Ref, compression string) (string, error) {
	return r.StatementTo(dest.Path, compression)
}

// StatementTo binds the rewrite to a raw destination path, such as a temp file
func (r *Rewrite) StatementTo(path, compression string) (string, error) {
	if compression == "" {
		compression = "snappy"
	}
	codec, ok := config.ParquetCodec(compression)
	if !ok {
		return "", fmt.Errorf("unsupported parquet compression %q", compression)
	}

	target, err := quote.String(path)
	if err != nil {
		return "", fmt.Errorf("invalid destination path: %w", err)
	}

	return fmt.Sprintf("COPY (%s) TO %s (FORMAT parquet, COMPRESSION %s)", r.Query, target, codec), nil
}
