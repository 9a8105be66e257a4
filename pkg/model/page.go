// pkg/model/page.go
package model

// Page is one window of rows from a file, ordered by row identifier
type Page struct {
	Path      string                   `json:"path"`
	Columns   []Column                 `json:"columns"`    // Visible columns, without the row identifier
	Rows      []map[string]interface{} `json:"rows"`       // Each row carries RowIDColumn
	TotalRows int64                    `json:"total_rows"` // Row count of the whole file
	Limit     int                      `json:"limit"`      // 0 means the whole file was requested
	Offset    int                      `json:"offset"`
}

// HasMore reports whether rows remain after this page
func (p *Page) HasMore() bool {
	return int64(p.Offset+len(p.Rows)) < p.TotalRows
}
