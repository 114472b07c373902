package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"almaseo-go/internal/model"
	"almaseo-go/internal/seo"
)

// maxDocumentBytes bounds an imported export document.
const maxDocumentBytes = 1 << 20

// RestoreRequest is the body of POST /posts/:id/history/restore.
type RestoreRequest struct {
	SnapshotID int64 `json:"snapshot_id"`
}

// SaveFieldsRequest is the body of PUT /posts/:id/fields.
type SaveFieldsRequest struct {
	Fields model.Fields `json:"fields"`
}

func (s *Server) registerHistoryRoutes(r *gin.RouterGroup) {
	r.PUT("/posts/:id/fields", s.saveFields)
	r.GET("/posts/:id/history", s.listSnapshots)
	r.POST("/posts/:id/history", s.captureSnapshot)
	r.GET("/posts/:id/history/compare", s.compareSnapshots)
	r.POST("/posts/:id/history/restore", s.restoreSnapshot)
	r.POST("/posts/:id/history/import", s.importSnapshot)
	r.GET("/snapshots/:id", s.getSnapshot)
	r.DELETE("/snapshots/:id", s.deleteSnapshot)
	r.GET("/snapshots/:id/export", s.exportSnapshot)
	r.POST("/snapshots/:id/archive", s.archiveSnapshot)
}

func (s *Server) saveFields(c *gin.Context) {
	postID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req SaveFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Fields == nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := s.svc.History.SaveFields(c.Request.Context(), postID, req.Fields); err != nil {
		s.writeError(c, err)
		return
	}

	fields, err := s.svc.History.TrackedFields(c.Request.Context(), postID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post_id": postID, "fields": fields})
}

func (s *Server) listSnapshots(c *gin.Context) {
	postID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	snaps, err := s.svc.History.List(c.Request.Context(), postID, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]SnapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		resp, err := newSnapshotResponse(snap)
		if err != nil {
			s.writeError(c, err)
			return
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, gin.H{"post_id": postID, "snapshots": out})
}

func (s *Server) captureSnapshot(c *gin.Context) {
	postID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	snap, created, err := s.svc.History.Capture(c.Request.Context(), postID, model.SourceManual)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeCapture(c, snap, created)
}

// writeCapture answers 201 for a new version and 200 for a no-op. A no-op
// on a post without history has no snapshot to show.
func (s *Server) writeCapture(c *gin.Context, snap *model.Snapshot, created bool) {
	if snap == nil {
		c.JSON(http.StatusOK, gin.H{"created": false})
		return
	}
	resp, err := newSnapshotResponse(snap)
	if err != nil {
		s.writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, CaptureResponse{Created: created, Snapshot: resp})
}

func (s *Server) compareSnapshots(c *gin.Context) {
	postID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	from, ok := intQuery(c, "from", 0)
	if !ok {
		return
	}
	to, ok := intQuery(c, "to", 0)
	if !ok {
		return
	}
	if from <= 0 || to <= 0 {
		badRequest(c, "from and to versions are required")
		return
	}

	cmp, err := s.svc.History.Compare(c.Request.Context(), postID, from, to)
	if err != nil {
		s.writeError(c, err)
		return
	}
	fromResp, err := newSnapshotResponse(cmp.From)
	if err != nil {
		s.writeError(c, err)
		return
	}
	toResp, err := newSnapshotResponse(cmp.To)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, CompareResponse{From: fromResp, To: toResp, Changes: cmp.Changes})
}

func (s *Server) restoreSnapshot(c *gin.Context) {
	postID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SnapshotID <= 0 {
		badRequest(c, "snapshot_id is required")
		return
	}
	res, err := s.svc.History.Restore(c.Request.Context(), postID, req.SnapshotID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeCapture(c, res.Snapshot, res.Created)
}

// importSnapshot accepts a plain export document. Encrypted documents need
// the private key passphrase and are only importable from the CLI.
func (s *Server) importSnapshot(c *gin.Context) {
	postID, ok := int64Param(c, "id")
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDocumentBytes+1))
	if err != nil {
		badRequest(c, "reading request body failed")
		return
	}
	if len(body) > maxDocumentBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "document too large"})
		return
	}

	doc, err := seo.ReadDocument(bytes.NewReader(body), nil)
	if errors.Is(err, seo.ErrEncryptedDocument) {
		badRequest(c, "encrypted documents must be imported with the almaseo CLI")
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	res, err := s.svc.History.Import(c.Request.Context(), postID, doc)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.writeCapture(c, res.Snapshot, res.Created)
}

func (s *Server) getSnapshot(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	snap, err := s.svc.History.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp, err := newSnapshotResponse(snap)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) deleteSnapshot(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := s.svc.History.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) exportSnapshot(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	encrypt, _, ok := boolQuery(c, "encrypt")
	if !ok {
		return
	}

	var buf bytes.Buffer
	doc, err := s.svc.Exports.WriteSnapshot(c.Request.Context(), &buf, id, encrypt)
	if err != nil {
		s.writeError(c, err)
		return
	}

	contentType, ext := "application/json", ".json"
	if encrypt {
		contentType, ext = "text/plain; charset=utf-8", ".json.age"
	}
	filename := fmt.Sprintf("post-%d-v%d%s", doc.PostID, doc.Version, ext)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (s *Server) archiveSnapshot(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	encrypt, _, ok := boolQuery(c, "encrypt")
	if !ok {
		return
	}
	name, err := s.svc.Exports.ArchiveSnapshot(c.Request.Context(), id, encrypt)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name})
}
