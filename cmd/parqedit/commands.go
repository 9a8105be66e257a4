package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/David-Botos/parquet-editor/pkg/editor"
	"github.com/David-Botos/parquet-editor/pkg/model"
	"github.com/David-Botos/parquet-editor/pkg/server"
)

var (
	serveAddr string // Listen address, overrides HTTP_ADDR

	pageLimit  int // Rows per page, -1 uses PAGE_SIZE
	pageOffset int // Rows to skip

	editsFile   string // YAML or JSON edit set
	outputPath  string // Destination file, empty uses OUTPUT_DIR
	compression string // Parquet codec, empty uses PARQUET_COMPRESSION
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := []server.Option{server.WithGatherer(a.registry)}
		if a.recorder != nil {
			opts = append(opts, server.WithHistory(a.recorder))
		}
		srv := server.New(a.svc, a.cfg, a.logger, opts...)

		go a.pruneSessions(ctx)

		addr := a.cfg.HTTPAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		return srv.Run(ctx, addr)
	},
}

var pageCmd = &cobra.Command{
	Use:   "page <path>",
	Short: "Print one page of a parquet file as JSON",
	Long: `Print one page of a parquet file as JSON.

Every row carries its __rowid, the identifier edits refer to.
A limit of 0 prints the whole file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		limit := pageLimit
		if limit < 0 {
			limit = a.cfg.PageSize
		}
		page, err := a.svc.LoadPage(cmd.Context(), args[0], limit, pageOffset)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), page)
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile <source>",
	Short: "Print the rewrite statement for an edit set without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := commitRequest(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		preview, err := a.svc.Preview(cmd.Context(), req)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, warning := range preview.Warnings {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning:", warning)
		}
		_, err = fmt.Fprintln(out, preview.Statement)
		return err
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit <source>",
	Short: "Apply an edit set and write the edited file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := commitRequest(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.svc.Commit(cmd.Context(), req)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default HTTP_ADDR)")

	pageCmd.Flags().IntVarP(&pageLimit, "limit", "n", -1, "rows per page, 0 for the whole file (default PAGE_SIZE)")
	pageCmd.Flags().IntVar(&pageOffset, "offset", 0, "rows to skip")

	for _, cmd := range []*cobra.Command{compileCmd, commitCmd} {
		cmd.Flags().StringVarP(&editsFile, "edits", "e", "", "YAML or JSON edit set; - reads stdin")
		cmd.Flags().StringVarP(&outputPath, "out", "o", "", "destination file (default OUTPUT_DIR/<name>_edited.parquet)")
		cmd.Flags().StringVar(&compression, "compression", "", "parquet codec (default PARQUET_COMPRESSION)")
	}
}

// commitRequest builds a request from the command line flags
func commitRequest(source string) (editor.CommitRequest, error) {
	req := editor.CommitRequest{
		Source:      source,
		Destination: outputPath,
		Compression: compression,
	}
	if editsFile == "" {
		return req, nil
	}

	set, err := readEditSet(editsFile)
	if err != nil {
		return editor.CommitRequest{}, err
	}
	req.Edits = set
	return req, nil
}

// readEditSet reads an edit set file. JSON is accepted as a subset of YAML.
func readEditSet(path string) (model.EditSet, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return model.EditSet{}, fmt.Errorf("failed to read edit set: %w", err)
	}
	return parseEditSet(data)
}

func parseEditSet(data []byte) (model.EditSet, error) {
	var set model.EditSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return model.EditSet{}, fmt.Errorf("failed to parse edit set: %w", err)
	}
	return set, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
