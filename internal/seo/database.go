package seo

import (
	"context"
	"time"

	"almaseo-go/internal/model"
)

// RedirectStore persists redirect rows.
// Lookups return (nil, nil) when no row matches.
type RedirectStore interface {
	// InsertRedirect stores a new row and returns its assigned ID.
	InsertRedirect(ctx context.Context, r *model.Redirect) (int64, error)

	// UpdateRedirect overwrites the mutable columns of an existing row.
	UpdateRedirect(ctx context.Context, r *model.Redirect) error

	// DeleteRedirect removes a row. Returns false if the ID did not exist.
	DeleteRedirect(ctx context.Context, id int64) (bool, error)

	FindRedirectByID(ctx context.Context, id int64) (*model.Redirect, error)

	// FindRedirectBySource performs a case-sensitive exact match on source.
	FindRedirectBySource(ctx context.Context, source string) (*model.Redirect, error)

	// ListRedirects returns one page of rows plus the total matching count.
	ListRedirects(ctx context.Context, filter model.RedirectFilter) ([]*model.Redirect, int, error)

	ListEnabledRedirects(ctx context.Context) ([]*model.Redirect, error)

	// IncrementRedirectHits bumps the hit counter and sets last_hit.
	IncrementRedirectHits(ctx context.Context, id int64, at time.Time) error
}

// SnapshotStore persists metadata history rows.
// Lookups return (nil, nil) when no row matches.
type SnapshotStore interface {
	// InsertSnapshot stores a snapshot, assigning s.ID and the post's next
	// version number to s.Version. Version numbers are never reused, even
	// after the highest version has been deleted.
	InsertSnapshot(ctx context.Context, s *model.Snapshot) error

	// LatestSnapshot returns the highest version for a post.
	LatestSnapshot(ctx context.Context, postID int64) (*model.Snapshot, error)

	FindSnapshotByID(ctx context.Context, id int64) (*model.Snapshot, error)
	FindSnapshotByVersion(ctx context.Context, postID int64, version int) (*model.Snapshot, error)

	// ListSnapshots returns up to limit snapshots for a post, newest first.
	ListSnapshots(ctx context.Context, postID int64, limit int) ([]*model.Snapshot, error)

	CountSnapshots(ctx context.Context, postID int64) (int, error)

	// DeleteSnapshot removes one row. Returns false if the ID did not exist.
	DeleteSnapshot(ctx context.Context, id int64) (bool, error)

	// DeleteOldestSnapshots removes the n lowest versions for a post.
	DeleteOldestSnapshots(ctx context.Context, postID int64, n int) (int64, error)
}

// MetaStore is the per-post metadata key/value store the content layer renders from.
// GetMeta returns "" for unset keys.
type MetaStore interface {
	GetMeta(ctx context.Context, postID int64, key string) (string, error)
	SetMeta(ctx context.Context, postID int64, key, value string) error
}
