package httpserver

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"almaseo-go/internal/seo"
)

// UserHeader carries the acting user's ID for snapshot attribution.
const UserHeader = "X-AlmaSEO-User"

// frontEndRedirects runs the matcher for visitor GET and HEAD requests and
// answers matches with a redirect, ending the request.
func (s *Server) frontEndRedirects() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		req := seo.Request{
			URI:        c.Request.URL.RequestURI(),
			Admin:      strings.HasPrefix(path, "/admin"),
			Async:      c.GetHeader("X-Requested-With") == "XMLHttpRequest",
			Background: path == "/metrics" || path == "/healthz",
		}
		if s.opts.TestParam != "" {
			if _, ok := c.GetQuery(s.opts.TestParam); ok && s.isAdmin(c) {
				req.TestBypass = true
			}
		}

		d := s.svc.Matcher.Match(c.Request.Context(), req)
		if !d.Redirect {
			c.Next()
			return
		}
		c.Redirect(d.Status, d.Location)
		c.Abort()
	}
}

// requireAdmin rejects requests without the configured bearer token.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.AdminToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin api disabled: no admin token configured"})
			return
		}
		if !s.isAdmin(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if raw := c.GetHeader(UserHeader); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
				c.Request = c.Request.WithContext(seo.WithUserID(c.Request.Context(), id))
			}
		}
		c.Next()
	}
}

func (s *Server) isAdmin(c *gin.Context) bool {
	if s.opts.AdminToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AdminToken)) == 1
}

// observeAdmin records admin API latency by route template.
func (s *Server) observeAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.svc.Metrics.AdminRequests.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// requestLogger logs every request; server errors are logged as warnings.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		}
		for _, e := range c.Errors {
			args = append(args, "error", e.Err)
		}
		if status >= http.StatusInternalServerError {
			s.logger.Warn("request failed", args...)
			return
		}
		s.logger.Debug("request completed", args...)
	}
}
