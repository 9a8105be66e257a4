// Command parqedit edits parquet files by compiling edit ledgers into a
// single rewrite statement. It runs as an HTTP service or as a one-shot CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parqedit",
	Short: "Edit parquet files through a query engine",
	Long: `parqedit views and edits parquet files (local, S3, GCS or HTTP).

Edits are collected as a ledger of cell replacements, row removals and
column removals, and committed as one COPY statement that writes a new file.

Configuration is read from the environment and an optional .env file.

Examples:
  parqedit serve
  parqedit page data.parquet --limit 50 --offset 100
  parqedit compile data.parquet --edits edits.yaml
  parqedit commit data.parquet --edits edits.yaml --out edited.parquet`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, pageCmd, compileCmd, commitCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
