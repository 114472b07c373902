package seo

import (
	"context"
	"sync"

	"almaseo-go/internal/model"
)

// FieldsFilter may add, drop or rewrite tracked fields before they are normalized.
type FieldsFilter func(ctx context.Context, postID int64, fields model.Fields) model.Fields

// CaptureEvent is emitted after a snapshot row has been persisted.
type CaptureEvent struct {
	PostID  int64
	Version int
	Source  model.SnapshotSource
	Fields  model.Fields // normalized
}

// RestoreEvent is emitted after a restore or import has written fields back.
type RestoreEvent struct {
	PostID     int64
	SnapshotID int64 // 0 for imports
	Source     model.SnapshotSource
	NewVersion int // 0 when the restored content matched the latest version
}

// RedirectEvent is emitted for every front-end request that matched a rule.
type RedirectEvent struct {
	Path       string
	RedirectID int64
	Status     int
	Target     string
	Suppressed bool // loop guard prevented the redirect
}

// Hooks is a registry of typed extension points. The zero value is not
// usable; create one with NewHooks. Safe for concurrent use.
type Hooks struct {
	mu         sync.RWMutex
	filters    []FieldsFilter
	captured   []func(context.Context, CaptureEvent)
	restored   []func(context.Context, RestoreEvent)
	redirected []func(context.Context, RedirectEvent)
}

func NewHooks() *Hooks {
	return &Hooks{}
}

func (h *Hooks) AddFieldsFilter(f FieldsFilter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.filters = append(h.filters, f)
}

func (h *Hooks) OnCaptured(fn func(context.Context, CaptureEvent)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.captured = append(h.captured, fn)
}

func (h *Hooks) OnRestored(fn func(context.Context, RestoreEvent)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restored = append(h.restored, fn)
}

func (h *Hooks) OnRedirect(fn func(context.Context, RedirectEvent)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redirected = append(h.redirected, fn)
}

// filterFields runs every registered filter in registration order.
func (h *Hooks) filterFields(ctx context.Context, postID int64, fields model.Fields) model.Fields {
	h.mu.RLock()
	filters := h.filters
	h.mu.RUnlock()

	for _, f := range filters {
		if out := f(ctx, postID, fields); out != nil {
			fields = out
		}
	}
	return fields
}

func (h *Hooks) fireCaptured(ctx context.Context, ev CaptureEvent) {
	h.mu.RLock()
	listeners := h.captured
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, ev)
	}
}

func (h *Hooks) fireRestored(ctx context.Context, ev RestoreEvent) {
	h.mu.RLock()
	listeners := h.restored
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, ev)
	}
}

func (h *Hooks) fireRedirect(ctx context.Context, ev RedirectEvent) {
	h.mu.RLock()
	listeners := h.redirected
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn(ctx, ev)
	}
}
