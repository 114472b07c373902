package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"almaseo-go/internal/model"
	"almaseo-go/internal/seo"
)

// CreateRedirectRequest is the body of POST /redirects.
type CreateRedirectRequest struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Status    int    `json:"status"`
	IsEnabled *bool  `json:"is_enabled"`
}

// UpdateRedirectRequest is the body of PATCH /redirects/:id. Omitted fields
// are left unchanged.
type UpdateRedirectRequest struct {
	Source    *string `json:"source"`
	Target    *string `json:"target"`
	Status    *int    `json:"status"`
	IsEnabled *bool   `json:"is_enabled"`
}

// BulkRequest is the body of POST /redirects/bulk.
type BulkRequest struct {
	Action string  `json:"action"`
	IDs    []int64 `json:"ids"`
}

func (s *Server) registerRedirectRoutes(r *gin.RouterGroup) {
	r.GET("/redirects", s.listRedirects)
	r.POST("/redirects", s.createRedirect)
	r.POST("/redirects/bulk", s.bulkRedirects)
	r.GET("/redirects/test", s.testRedirect)
	r.GET("/redirects/export.csv", s.exportRedirects)
	r.POST("/redirects/export", s.archiveRedirects)
	r.GET("/redirects/:id", s.getRedirect)
	r.PATCH("/redirects/:id", s.updateRedirect)
	r.DELETE("/redirects/:id", s.deleteRedirect)
	r.POST("/redirects/:id/toggle", s.toggleRedirect)
}

func (s *Server) listRedirects(c *gin.Context) {
	filter := model.RedirectFilter{
		Search:  c.Query("search"),
		OrderBy: c.Query("order_by"),
	}
	var ok bool
	if filter.Status, ok = intQuery(c, "status", 0); !ok {
		return
	}
	if filter.Limit, ok = intQuery(c, "limit", 0); !ok {
		return
	}
	if filter.Offset, ok = intQuery(c, "offset", 0); !ok {
		return
	}
	enabled, present, ok := boolQuery(c, "enabled")
	if !ok {
		return
	}
	if present {
		filter.Enabled = &enabled
	}
	if filter.Desc, _, ok = boolQuery(c, "desc"); !ok {
		return
	}
	switch filter.OrderBy {
	case "", "id", "source", "hits", "created_at":
	default:
		badRequest(c, "invalid order_by")
		return
	}

	page, err := s.svc.Redirects.List(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp := RedirectListResponse{
		Redirects: make([]RedirectResponse, len(page.Redirects)),
		Total:     page.Total,
		Limit:     page.Limit,
		Offset:    page.Offset,
	}
	for i, r := range page.Redirects {
		resp.Redirects[i] = newRedirectResponse(r)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) createRedirect(c *gin.Context) {
	var req CreateRedirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Status == 0 {
		req.Status = model.StatusPermanent
	}
	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}

	r, err := s.svc.Redirects.Create(c.Request.Context(), req.Source, req.Target, req.Status, enabled)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRedirectResponse(r))
}

func (s *Server) getRedirect(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	r, err := s.svc.Redirects.Get(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRedirectResponse(r))
}

func (s *Server) updateRedirect(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req UpdateRedirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	r, err := s.svc.Redirects.Update(c.Request.Context(), id, seo.RedirectInput{
		Source:    req.Source,
		Target:    req.Target,
		Status:    req.Status,
		IsEnabled: req.IsEnabled,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRedirectResponse(r))
}

func (s *Server) deleteRedirect(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Redirects.Delete(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) toggleRedirect(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	r, err := s.svc.Redirects.Toggle(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRedirectResponse(r))
}

func (s *Server) bulkRedirects(c *gin.Context) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	switch action := seo.BulkAction(req.Action); action {
	case seo.BulkEnable, seo.BulkDisable, seo.BulkDelete:
		res, err := s.svc.Redirects.Bulk(c.Request.Context(), action, req.IDs)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	default:
		badRequest(c, "action must be enable, disable or delete")
	}
}

func (s *Server) testRedirect(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		badRequest(c, "path is required")
		return
	}
	d, err := s.svc.Matcher.Test(c.Request.Context(), path)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) exportRedirects(c *gin.Context) {
	filename := "redirects-" + time.Now().UTC().Format("20060102") + ".csv"
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)
	if _, err := s.svc.Redirects.ExportCSV(c.Request.Context(), c.Writer); err != nil {
		// Headers are already sent; the truncated body is all we can do.
		_ = c.Error(err)
		s.logger.Error("csv export failed", "error", err)
	}
}

func (s *Server) archiveRedirects(c *gin.Context) {
	name, rows, err := s.svc.Exports.ArchiveRedirectsCSV(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name, "rows": rows})
}
