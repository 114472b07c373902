package seo

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// schemeHost matches a leading "scheme://host[:port]" prefix.
var schemeHost = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*://[^/]*`)

// NormalizePath turns raw into a canonical absolute path: any scheme and host
// are stripped, runs of "/" are collapsed, a single leading "/" is ensured and
// a trailing "/" is removed (except for the root path).
// Returns false if raw is empty or contains whitespace, '<', '>' or '"'.
func NormalizePath(raw string) (string, bool) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", false
	}

	p = schemeHost.ReplaceAllString(p, "")
	if strings.ContainsAny(p, `<>"`) || strings.IndexFunc(p, unicode.IsSpace) >= 0 {
		return "", false
	}

	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p, true
}

// CanonicalPath reduces raw to the form sources are stored and matched in.
// The query and fragment are dropped and percent-escapes are decoded before
// normalizing, and the result is re-escaped, so "/café" and "/caf%C3%A9"
// yield the same path.
func CanonicalPath(raw string) (string, bool) {
	p := raw
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}
	p, ok := NormalizePath(p)
	if !ok {
		return "", false
	}
	return (&url.URL{Path: p}).EscapedPath(), true
}

// IsAbsoluteURL reports whether raw is an http(s) URL with a host.
func IsAbsoluteURL(raw string) bool {
	if strings.ContainsAny(raw, `<>"`) || strings.IndexFunc(raw, unicode.IsSpace) >= 0 {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidateTarget returns raw unchanged (trimmed) if it is an absolute URL,
// otherwise it is treated as a path and normalized.
func ValidateTarget(raw string) (string, bool) {
	t := strings.TrimSpace(raw)
	if IsAbsoluteURL(t) {
		return t, true
	}
	return NormalizePath(t)
}

// Site describes the public site redirects are served for.
type Site struct {
	baseURL  *url.URL
	basePath string // canonical, "" when the site lives at the host root
}

// NewSite parses the site's base URL, e.g. "https://example.com/blog".
func NewSite(rawBaseURL string) (*Site, error) {
	u, err := url.Parse(strings.TrimSpace(rawBaseURL))
	if err != nil {
		return nil, fmt.Errorf("parsing site base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("site base url must be absolute: %q", rawBaseURL)
	}

	basePath := ""
	if p, ok := CanonicalPath(u.EscapedPath()); ok && p != "/" {
		basePath = p
	}
	return &Site{baseURL: u, basePath: basePath}, nil
}

// Host returns the site's host (including any port), lower-cased.
func (s *Site) Host() string {
	return strings.ToLower(s.baseURL.Host)
}

// BasePath returns the normalized path prefix the site is mounted under.
func (s *Site) BasePath() string {
	return s.basePath
}

// StripBasePath removes the site's base path from an already normalized path.
func (s *Site) StripBasePath(path string) string {
	if s.basePath == "" {
		return path
	}
	if path == s.basePath {
		return "/"
	}
	if strings.HasPrefix(path, s.basePath+"/") {
		return path[len(s.basePath):]
	}
	return path
}

// RequestPath derives the normalized, site-relative path of a request URI.
func (s *Site) RequestPath(requestURI string) (string, bool) {
	raw := requestURI
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		raw = "/"
	}
	p, ok := CanonicalPath(raw)
	if !ok {
		return "", false
	}
	return s.StripBasePath(p), true
}

// ResolveTarget returns the absolute URL a visitor is sent to.
// Absolute targets pass through; path targets are joined to the site URL.
func (s *Site) ResolveTarget(target string) string {
	if IsAbsoluteURL(target) {
		return target
	}
	base := url.URL{
		Scheme: s.baseURL.Scheme,
		User:   s.baseURL.User,
		Host:   s.baseURL.Host,
	}
	return base.String() + s.basePath + target
}

// LocalPath maps a target to a site-relative path comparable with request
// paths. Only the path component counts: a visitor sent to "/a?x=1" requests
// "/a" next. It returns false for targets on another host, which can never loop.
func (s *Site) LocalPath(target string) (string, bool) {
	if !IsAbsoluteURL(target) {
		p := target
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
		if p == "" {
			p = "/"
		}
		return CanonicalPath(p)
	}

	u, err := url.Parse(target)
	if err != nil || !strings.EqualFold(u.Host, s.baseURL.Host) {
		return "", false
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	normalized, ok := CanonicalPath(p)
	if !ok {
		return "", false
	}
	return s.StripBasePath(normalized), true
}
