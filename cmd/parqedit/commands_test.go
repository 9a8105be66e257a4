package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/parquet-editor/pkg/model"
)

func TestParseEditSet_YAML(t *testing.T) {
	set, err := parseEditSet([]byte(`
cell_edits:
  - row_id: 2
    column: name
    value: z
  - row_id: 3
    column: age
    value: null
removed_rows: [1, 4]
removed_columns:
  - notes
`))
	require.NoError(t, err)
	require.Len(t, set.CellEdits, 2)
	assert.Equal(t, model.RowID(2), set.CellEdits[0].RowID)
	assert.Equal(t, "z", set.CellEdits[0].Value)
	assert.Nil(t, set.CellEdits[1].Value)
	assert.Equal(t, []model.RowID{1, 4}, set.RemovedRows)
	assert.Equal(t, []string{"notes"}, set.RemovedColumns)
}

func TestParseEditSet_JSON(t *testing.T) {
	set, err := parseEditSet([]byte(`{"cell_edits": [{"row_id": 1, "column": "age", "value": 31}], "removed_rows": []}`))
	require.NoError(t, err)
	require.Len(t, set.CellEdits, 1)
	assert.Equal(t, 31, set.CellEdits[0].Value)
	assert.Empty(t, set.RemovedRows)
}

func TestParseEditSet_Invalid(t *testing.T) {
	_, err := parseEditSet([]byte("cell_edits: [row_id: {"))
	assert.Error(t, err)
}

func TestCommitRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("removed_rows: [5]\n"), 0o644))

	editsFile, outputPath, compression = path, "/out/edited.parquet", "zstd"
	t.Cleanup(func() { editsFile, outputPath, compression = "", "", "" })

	req, err := commitRequest("/data/people.parquet")
	require.NoError(t, err)
	assert.Equal(t, "/data/people.parquet", req.Source)
	assert.Equal(t, "/out/edited.parquet", req.Destination)
	assert.Equal(t, "zstd", req.Compression)
	assert.Equal(t, []model.RowID{5}, req.Edits.RemovedRows)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]int{"rows": 3}))
	assert.Equal(t, "{\n  \"rows\": 3\n}\n", buf.String())
}
