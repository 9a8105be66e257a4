// pkg/server/handlers.go
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/David-Botos/parquet-editor/pkg/editor"
	"github.com/David-Botos/parquet-editor/pkg/model"
)

type pageQuery struct {
	Path   string `form:"path" validate:"required"`
	Limit  *int   `form:"limit" validate:"omitempty,gte=0"`
	Offset int    `form:"offset" validate:"gte=0"`
}

type historyQuery struct {
	Source string `form:"source" validate:"required"`
	Limit  int    `form:"limit" validate:"gte=0,lte=10000"`
}

type sourceRequest struct {
	Path string `json:"path" validate:"required"`
}

type commitSessionRequest struct {
	Destination string `json:"destination"`
	Compression string `json:"compression"`
}

type sessionResponse struct {
	editor.SessionInfo
	CellEdits      []model.CellEdit `json:"cell_edits"`
	RemovedRows    []model.RowID    `json:"removed_rows"`
	RemovedColumns []string         `json:"removed_columns"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": len(s.svc.Sessions()),
	})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Summary())
}

func (s *Server) handleLoadPage(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.validate.Struct(q); err != nil {
		badRequest(c, err)
		return
	}

	limit := s.cfg.PageSize
	if q.Limit != nil {
		limit = *q.Limit
	}

	page, err := s.svc.LoadPage(c.Request.Context(), q.Path, limit, q.Offset)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"path":       page.Path,
		"columns":    page.Columns,
		"rows":       page.Rows,
		"total_rows": page.TotalRows,
		"limit":      page.Limit,
		"offset":     page.Offset,
		"has_more":   page.HasMore(),
	})
}

func (s *Server) handleCompile(c *gin.Context) {
	var req editor.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	preview, err := s.svc.Preview(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (s *Server) handleCommit(c *gin.Context) {
	var req editor.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.svc.Commit(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit trail is not enabled"})
		return
	}

	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.validate.Struct(q); err != nil {
		badRequest(c, err)
		return
	}

	records, err := s.history.History(c.Request.Context(), q.Source, q.Limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) handleOpenSession(c *gin.Context) {
	var req sourceRequest
	if !s.bindJSON(c, &req) {
		return
	}

	sess, err := s.svc.OpenSession(req.Path)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": sess.ID, "source": sess.Source().Path})
}

func (s *Server) handleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Sessions())
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.svc.Session(c.Param("sessionId"))
	if err != nil {
		abort(c, err)
		return
	}

	snap := sess.Snapshot()
	c.JSON(http.StatusOK, sessionResponse{
		SessionInfo: editor.SessionInfo{
			ID:        sess.ID,
			Source:    snap.Source.Path,
			Edits:     sess.Len(),
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt(),
		},
		CellEdits:      snap.CellEdits,
		RemovedRows:    snap.RemovedRows,
		RemovedColumns: snap.RemovedColumns,
	})
}

func (s *Server) handleCloseSession(c *gin.Context) {
	if err := s.svc.CloseSession(c.Param("sessionId")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleApplyEdits(c *gin.Context) {
	var set model.EditSet
	if err := c.ShouldBindJSON(&set); err != nil {
		badRequest(c, err)
		return
	}

	info, err := s.svc.ApplyEdits(c.Request.Context(), c.Param("sessionId"), set)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleSelectSource(c *gin.Context) {
	var req sourceRequest
	if !s.bindJSON(c, &req) {
		return
	}

	info, err := s.svc.SelectSource(c.Param("sessionId"), req.Path)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handlePreviewSession(c *gin.Context) {
	var req commitSessionRequest
	if !s.bindOptionalJSON(c, &req) {
		return
	}

	preview, err := s.svc.PreviewSession(c.Request.Context(), c.Param("sessionId"), req.Destination, req.Compression)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (s *Server) handleCommitSession(c *gin.Context) {
	var req commitSessionRequest
	if !s.bindOptionalJSON(c, &req) {
		return
	}

	result, err := s.svc.CommitSession(c.Request.Context(), c.Param("sessionId"), req.Destination, req.Compression)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// bindJSON decodes and validates a JSON body, writing a 400 on failure
func (s *Server) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, err)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

// bindOptionalJSON decodes a JSON body when one is present
func (s *Server) bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, errors.New("invalid request body: "+err.Error()))
		return false
	}
	return true
}
