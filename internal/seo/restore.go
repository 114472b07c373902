package seo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"almaseo-go/internal/model"
)

// RestoreResult describes the version appended by a restore or import.
type RestoreResult struct {
	PostID int64
	// Snapshot is the newly appended version, or the latest version when the
	// restored content already matched it (Created is then false).
	Snapshot *model.Snapshot
	Created  bool
}

// Restore writes a prior snapshot's fields back to the post and appends a
// new version tagged "restore". History is never rewound or rewritten.
func (s *HistoryService) Restore(ctx context.Context, postID, snapshotID int64) (*RestoreResult, error) {
	snap, err := s.Get(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap.PostID != postID {
		return nil, fmt.Errorf("snapshot %d for post %d: %w", snapshotID, postID, ErrNotFound)
	}

	fields, err := DecodeFields(snap.SnapshotJSON)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, postID, fields, model.SourceRestore, snap.ID)
}

// apply writes fields with auto-capture suppressed, then captures once with source.
func (s *HistoryService) apply(ctx context.Context, postID int64, fields model.Fields, source model.SnapshotSource, fromID int64) (*RestoreResult, error) {
	rctx := withRestoring(ctx)

	known := make(model.Fields, len(fields))
	for name, value := range fields {
		if _, ok := s.metaKey(name); !ok {
			s.logger.Warn("skipping untracked field", "post_id", postID, "field", name)
			continue
		}
		known[name] = value
	}
	if err := s.SaveFields(rctx, postID, known); err != nil {
		return nil, err
	}

	snap, created, err := s.Capture(rctx, postID, source)
	if err != nil {
		return nil, err
	}

	ev := RestoreEvent{PostID: postID, SnapshotID: fromID, Source: source}
	if created {
		ev.NewVersion = snap.Version
	}
	s.hooks.fireRestored(ctx, ev)
	s.logger.Info("fields restored", "post_id", postID, "from_snapshot", fromID, "source", string(source), "version", snap.Version)
	return &RestoreResult{PostID: postID, Snapshot: snap, Created: created}, nil
}

// Comparison holds both sides of a version comparison.
type Comparison struct {
	From       *model.Snapshot
	To         *model.Snapshot
	FromFields model.Fields
	ToFields   model.Fields
	Changes    []string // sorted names of fields that differ
}

// Compare loads two versions of a post and reports which fields differ.
func (s *HistoryService) Compare(ctx context.Context, postID int64, fromVersion, toVersion int) (*Comparison, error) {
	from, err := s.version(ctx, postID, fromVersion)
	if err != nil {
		return nil, err
	}
	to, err := s.version(ctx, postID, toVersion)
	if err != nil {
		return nil, err
	}

	fromFields, err := DecodeFields(from.SnapshotJSON)
	if err != nil {
		return nil, err
	}
	toFields, err := DecodeFields(to.SnapshotJSON)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		From:       from,
		To:         to,
		FromFields: fromFields,
		ToFields:   toFields,
		Changes:    diffFields(fromFields, toFields),
	}, nil
}

func (s *HistoryService) version(ctx context.Context, postID int64, version int) (*model.Snapshot, error) {
	snap, err := s.snapshots.FindSnapshotByVersion(ctx, postID, version)
	if err != nil {
		return nil, fmt.Errorf("finding version %d of post %d: %w", version, postID, err)
	}
	if snap == nil {
		return nil, fmt.Errorf("version %d of post %d: %w", version, postID, ErrNotFound)
	}
	return snap, nil
}

// ChangedFields returns the sorted names of fields whose values differ
// between two snapshots. A field missing on one side counts as "".
func ChangedFields(a, b *model.Snapshot) ([]string, error) {
	fa, err := DecodeFields(a.SnapshotJSON)
	if err != nil {
		return nil, err
	}
	fb, err := DecodeFields(b.SnapshotJSON)
	if err != nil {
		return nil, err
	}
	return diffFields(fa, fb), nil
}

func diffFields(a, b model.Fields) []string {
	changed := []string{}
	for name, va := range a {
		if b[name] != va {
			changed = append(changed, name)
		}
	}
	for name, vb := range b {
		if _, ok := a[name]; !ok && vb != "" {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

// ExportFormat identifies a snapshot export document.
const ExportFormat = "almaseo.history.snapshot/v1"

// ExportDocument is a self-describing, portable copy of one snapshot.
type ExportDocument struct {
	Format     string               `json:"format"`
	ExportID   string               `json:"export_id"`
	ExportedAt time.Time            `json:"exported_at"`
	PostID     int64                `json:"post_id"`
	Version    int                  `json:"version"`
	CreatedAt  time.Time            `json:"created_at"`
	Source     model.SnapshotSource `json:"source"`
	Fields     model.Fields         `json:"fields"`
}

// Export builds an export document for a snapshot.
func (s *HistoryService) Export(ctx context.Context, snapshotID int64) (*ExportDocument, error) {
	snap, err := s.Get(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	fields, err := DecodeFields(snap.SnapshotJSON)
	if err != nil {
		return nil, err
	}
	return &ExportDocument{
		Format:     ExportFormat,
		ExportID:   s.idgen.New(),
		ExportedAt: s.clock.Now(),
		PostID:     snap.PostID,
		Version:    snap.Version,
		CreatedAt:  snap.CreatedAt,
		Source:     snap.Source,
		Fields:     fields,
	}, nil
}

// Import writes a document's fields onto postID (which may differ from the
// document's origin) and appends a version tagged "import".
func (s *HistoryService) Import(ctx context.Context, postID int64, doc *ExportDocument) (*RestoreResult, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return s.apply(ctx, postID, doc.Fields, model.SourceImport, 0)
}

func (d *ExportDocument) validate() error {
	verr := &ValidationError{}
	if d.Format != ExportFormat {
		verr.Add("format", CodeInvalidDocument, fmt.Sprintf("unsupported document format %q", d.Format))
	}
	if d.Fields == nil {
		verr.Add("fields", CodeInvalidDocument, "document has no fields")
	}
	return verr.errOrNil()
}

// WriteExportDocument encodes doc as indented JSON.
func WriteExportDocument(w io.Writer, doc *ExportDocument) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding export document: %w", err)
	}
	return nil
}

// ReadExportDocument decodes and validates an export document.
func ReadExportDocument(r io.Reader) (*ExportDocument, error) {
	var doc ExportDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		verr := &ValidationError{}
		verr.Add("document", CodeInvalidDocument, "document is not valid JSON: "+err.Error())
		return nil, verr
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}
