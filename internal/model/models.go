package model

import "time"

// Redirect status codes accepted by the redirect store.
const (
	StatusPermanent = 301
	StatusTemporary = 302
)

// Redirect maps a normalized source path to a target URL or path.
type Redirect struct {
	ID        int64
	Source    string // Normalized absolute path, unique
	Target    string // Absolute URL or normalized absolute path
	Status    int    // 301 or 302
	IsEnabled bool
	Hits      int64
	LastHit   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IndexEntry is the part of an enabled redirect needed to serve a match.
type IndexEntry struct {
	ID     int64  `msgpack:"id"`
	Target string `msgpack:"target"`
	Status int    `msgpack:"status"`
}

// RedirectIndex maps normalized source paths to enabled redirects.
type RedirectIndex map[string]IndexEntry

// RedirectFilter narrows a redirect listing. Zero values mean "no filter".
type RedirectFilter struct {
	Search  string // Substring of source or target
	Status  int    // 301 or 302
	Enabled *bool
	OrderBy string // "id", "source", "hits" or "created_at"
	Desc    bool
	Limit   int
	Offset  int
}

// SnapshotSource records what triggered a snapshot.
type SnapshotSource string

const (
	SourceAuto    SnapshotSource = "auto"
	SourceManual  SnapshotSource = "manual"
	SourceRestore SnapshotSource = "restore"
	SourceImport  SnapshotSource = "import"
)

// Valid reports whether s is one of the known snapshot sources.
func (s SnapshotSource) Valid() bool {
	switch s {
	case SourceAuto, SourceManual, SourceRestore, SourceImport:
		return true
	}
	return false
}

// Fields holds tracked SEO field values keyed by canonical field name.
type Fields map[string]string

// Snapshot is one immutable version of a post's tracked fields.
type Snapshot struct {
	ID           int64
	PostID       int64
	Version      int
	CreatedAt    time.Time
	UserID       *int64 // nil for system-triggered captures
	Source       SnapshotSource
	SnapshotJSON string // Canonical JSON of the normalized fields
	SnapshotHash string // Digest of SnapshotJSON, used for change detection
	SizeBytes    int
}
