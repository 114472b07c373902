package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"almaseo-go/internal/model"
	"almaseo-go/internal/seo"
)

// RedirectResponse is the JSON form of a redirect row.
type RedirectResponse struct {
	ID        int64      `json:"id"`
	Source    string     `json:"source"`
	Target    string     `json:"target"`
	Status    int        `json:"status"`
	IsEnabled bool       `json:"is_enabled"`
	Hits      int64      `json:"hits"`
	LastHit   *time.Time `json:"last_hit"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func newRedirectResponse(r *model.Redirect) RedirectResponse {
	return RedirectResponse{
		ID:        r.ID,
		Source:    r.Source,
		Target:    r.Target,
		Status:    r.Status,
		IsEnabled: r.IsEnabled,
		Hits:      r.Hits,
		LastHit:   r.LastHit,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// RedirectListResponse is one page of redirects.
type RedirectListResponse struct {
	Redirects []RedirectResponse `json:"redirects"`
	Total     int                `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// SnapshotResponse is the JSON form of a snapshot with its decoded fields.
type SnapshotResponse struct {
	ID        int64                `json:"id"`
	PostID    int64                `json:"post_id"`
	Version   int                  `json:"version"`
	CreatedAt time.Time            `json:"created_at"`
	UserID    *int64               `json:"user_id"`
	Source    model.SnapshotSource `json:"source"`
	Hash      string               `json:"snapshot_hash"`
	SizeBytes int                  `json:"size_bytes"`
	Fields    model.Fields         `json:"fields"`
}

func newSnapshotResponse(snap *model.Snapshot) (SnapshotResponse, error) {
	fields, err := seo.DecodeFields(snap.SnapshotJSON)
	if err != nil {
		return SnapshotResponse{}, err
	}
	return SnapshotResponse{
		ID:        snap.ID,
		PostID:    snap.PostID,
		Version:   snap.Version,
		CreatedAt: snap.CreatedAt,
		UserID:    snap.UserID,
		Source:    snap.Source,
		Hash:      snap.SnapshotHash,
		SizeBytes: snap.SizeBytes,
		Fields:    fields,
	}, nil
}

// CaptureResponse reports the outcome of a capture, restore or import.
type CaptureResponse struct {
	Created  bool             `json:"created"`
	Snapshot SnapshotResponse `json:"snapshot"`
}

// CompareResponse holds both sides of a version comparison.
type CompareResponse struct {
	From    SnapshotResponse `json:"from"`
	To      SnapshotResponse `json:"to"`
	Changes []string         `json:"changes"`
}

// ErrorResponse is the body of every failed admin request.
type ErrorResponse struct {
	Error  string           `json:"error"`
	Fields []seo.FieldError `json:"errors,omitempty"`
}

// writeError maps service errors to status codes: validation failures are
// 422 with the field list, missing rows 404, everything else a generic 500.
func (s *Server) writeError(c *gin.Context, err error) {
	if verr, ok := seo.AsValidationError(err); ok {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "validation failed", Fields: verr.Errors})
		return
	}
	if errors.Is(err, seo.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	_ = c.Error(err)
	s.logger.Error("admin request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// int64Param parses a positive path parameter, answering 400 on failure.
func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

// intQuery parses an optional integer query parameter.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(c *gin.Context, name string) (value, present, ok bool) {
	raw, found := c.GetQuery(name)
	if !found || raw == "" {
		return false, false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		badRequest(c, "invalid "+name)
		return false, false, false
	}
	return v, true, true
}
