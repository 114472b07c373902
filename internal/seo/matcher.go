package seo

import (
	"context"
	"fmt"
)

// Request describes an inbound front-end request as seen by the Matcher.
type Request struct {
	// URI is the raw request URI, including any query string.
	URI string

	// Admin, Async and Background mark administrative pages, AJAX/API calls
	// and background jobs. All three are skipped.
	Admin      bool
	Async      bool
	Background bool

	// TestBypass is set for an authenticated administrator's explicit
	// "test" request, which must not be redirected away.
	TestBypass bool
}

// Decision is the outcome of matching one request.
type Decision struct {
	Redirect   bool   `json:"would_redirect"`
	Path       string `json:"path"`
	RedirectID int64  `json:"redirect_id,omitempty"`
	Status     int    `json:"status,omitempty"`
	Location   string `json:"target,omitempty"`
	Reason     string `json:"reason"`
}

// Decision reasons.
const (
	ReasonMatched     = "matched"
	ReasonSkipped     = "skipped"
	ReasonInvalidPath = "invalid_path"
	ReasonNoMatch     = "no_match"
	ReasonLoop        = "loop"
)

// Matcher decides whether a request should be redirected.
type Matcher struct {
	redirects  *RedirectService
	site       *Site
	dispatcher Dispatcher
	hooks      *Hooks
	logger     Logger
}

// NewMatcher creates a Matcher. Hit counting is handed to dispatcher.
func NewMatcher(redirects *RedirectService, site *Site, dispatcher Dispatcher, hooks *Hooks, logger Logger) *Matcher {
	if hooks == nil {
		hooks = NewHooks()
	}
	logger = WithComponent(logger, "matcher")
	if dispatcher == nil {
		dispatcher = SyncDispatcher{Logger: logger}
	}
	return &Matcher{
		redirects:  redirects,
		site:       site,
		dispatcher: dispatcher,
		hooks:      hooks,
		logger:     logger,
	}
}

// Match evaluates req and, on a match, schedules the hit-counter update.
// It never returns an error: every failure degrades to a pass-through.
func (m *Matcher) Match(ctx context.Context, req Request) Decision {
	if req.Admin || req.Async || req.Background || req.TestBypass {
		return Decision{Reason: ReasonSkipped}
	}

	d, err := m.evaluate(ctx, req.URI)
	if err != nil {
		m.logger.Error("redirect lookup failed", "uri", req.URI, "error", err)
		return Decision{Path: d.Path, Reason: ReasonNoMatch}
	}

	switch d.Reason {
	case ReasonLoop:
		m.logger.Warn("redirect loop suppressed", "path", d.Path, "redirect_id", d.RedirectID)
		m.hooks.fireRedirect(ctx, RedirectEvent{Path: d.Path, RedirectID: d.RedirectID, Status: d.Status, Suppressed: true})
	case ReasonMatched:
		id := d.RedirectID
		m.dispatcher.Dispatch("record_hit", func(ctx context.Context) error {
			m.redirects.RecordHit(ctx, id)
			return nil
		})
		m.hooks.fireRedirect(ctx, RedirectEvent{Path: d.Path, RedirectID: id, Status: d.Status, Target: d.Location})
	}
	return d
}

// Test reports what Match would do for path without recording a hit.
func (m *Matcher) Test(ctx context.Context, path string) (Decision, error) {
	return m.evaluate(ctx, path)
}

func (m *Matcher) evaluate(ctx context.Context, uri string) (Decision, error) {
	path, ok := m.site.RequestPath(uri)
	if !ok {
		return Decision{Reason: ReasonInvalidPath}, nil
	}

	idx, err := m.redirects.EnabledIndex(ctx)
	if err != nil {
		return Decision{Path: path, Reason: ReasonNoMatch}, fmt.Errorf("loading redirect index: %w", err)
	}

	entry, found := idx[path]
	if !found {
		return Decision{Path: path, Reason: ReasonNoMatch}, nil
	}

	d := Decision{Path: path, RedirectID: entry.ID, Status: entry.Status}
	if local, ok := m.site.LocalPath(entry.Target); ok && local == path {
		d.Reason = ReasonLoop
		return d, nil
	}

	d.Redirect = true
	d.Reason = ReasonMatched
	d.Location = m.site.ResolveTarget(entry.Target)
	return d, nil
}
