package seo

import (
	"context"
	"fmt"

	"almaseo-go/internal/model"
)

// DefaultRetentionCap is the number of versions kept per post when unset.
const DefaultRetentionCap = 20

// HistoryService captures, lists, compares and restores versioned snapshots
// of a post's tracked SEO fields.
type HistoryService struct {
	snapshots SnapshotStore
	meta      MetaStore
	hooks     *Hooks
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	fields    []TrackedField
	retention int
}

// HistoryOptions configures a HistoryService. Zero values select defaults.
type HistoryOptions struct {
	Fields       []TrackedField
	RetentionCap int
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(snapshots SnapshotStore, meta MetaStore, hooks *Hooks, logger Logger, clock Clock, idgen IDGenerator, opts HistoryOptions) *HistoryService {
	if hooks == nil {
		hooks = NewHooks()
	}
	if len(opts.Fields) == 0 {
		opts.Fields = DefaultTrackedFields
	}
	if opts.RetentionCap <= 0 {
		opts.RetentionCap = DefaultRetentionCap
	}
	return &HistoryService{
		snapshots: snapshots,
		meta:      meta,
		hooks:     hooks,
		logger:    WithComponent(logger, "history"),
		clock:     clock,
		idgen:     idgen,
		fields:    opts.Fields,
		retention: opts.RetentionCap,
	}
}

// TrackedFields reads the current value of every tracked field of a post,
// then applies registered field filters.
func (s *HistoryService) TrackedFields(ctx context.Context, postID int64) (model.Fields, error) {
	fields := make(model.Fields, len(s.fields))
	for _, f := range s.fields {
		v, err := s.meta.GetMeta(ctx, postID, f.MetaKey)
		if err != nil {
			return nil, fmt.Errorf("reading %s for post %d: %w", f.Name, postID, err)
		}
		fields[f.Name] = v
	}
	return s.hooks.filterFields(ctx, postID, fields), nil
}

// Capture records a new version if the post's normalized fields differ from
// its latest snapshot. created is false for a no-op, which is not an error.
func (s *HistoryService) Capture(ctx context.Context, postID int64, source model.SnapshotSource) (snap *model.Snapshot, created bool, err error) {
	if !source.Valid() {
		return nil, false, fmt.Errorf("unknown snapshot source: %q", source)
	}

	fields, err := s.TrackedFields(ctx, postID)
	if err != nil {
		return nil, false, err
	}
	normalized := NormalizeFields(fields)
	doc, digest, err := EncodeFields(normalized)
	if err != nil {
		return nil, false, err
	}

	latest, err := s.snapshots.LatestSnapshot(ctx, postID)
	if err != nil {
		return nil, false, fmt.Errorf("loading latest snapshot: %w", err)
	}
	if latest != nil && latest.SnapshotHash == digest {
		s.logger.Debug("snapshot unchanged", "post_id", postID, "version", latest.Version)
		return latest, false, nil
	}

	snap = &model.Snapshot{
		PostID:       postID,
		CreatedAt:    s.clock.Now(),
		UserID:       UserIDFromContext(ctx),
		Source:       source,
		SnapshotJSON: doc,
		SnapshotHash: digest,
		SizeBytes:    len(doc),
	}
	if err := s.snapshots.InsertSnapshot(ctx, snap); err != nil {
		return nil, false, fmt.Errorf("inserting snapshot: %w", err)
	}

	if err := s.enforceRetention(ctx, postID); err != nil {
		return nil, false, err
	}

	s.logger.Info("snapshot captured", "post_id", postID, "version", snap.Version, "source", string(source))
	s.hooks.fireCaptured(ctx, CaptureEvent{PostID: postID, Version: snap.Version, Source: source, Fields: normalized})
	return snap, true, nil
}

// enforceRetention deletes the oldest versions beyond the retention cap.
func (s *HistoryService) enforceRetention(ctx context.Context, postID int64) error {
	count, err := s.snapshots.CountSnapshots(ctx, postID)
	if err != nil {
		return fmt.Errorf("counting snapshots: %w", err)
	}
	if count <= s.retention {
		return nil
	}
	removed, err := s.snapshots.DeleteOldestSnapshots(ctx, postID, count-s.retention)
	if err != nil {
		return fmt.Errorf("evicting old snapshots: %w", err)
	}
	s.logger.Debug("evicted old snapshots", "post_id", postID, "removed", removed)
	return nil
}

// SaveFields writes tracked fields for a post, then auto-captures a snapshot
// unless ctx belongs to a restore in flight. Unknown field names are rejected.
func (s *HistoryService) SaveFields(ctx context.Context, postID int64, fields model.Fields) error {
	if err := s.writeFields(ctx, postID, fields); err != nil {
		return err
	}
	if IsRestoring(ctx) {
		return nil
	}
	if _, _, err := s.Capture(ctx, postID, model.SourceAuto); err != nil {
		return fmt.Errorf("auto-capturing snapshot: %w", err)
	}
	return nil
}

func (s *HistoryService) writeFields(ctx context.Context, postID int64, fields model.Fields) error {
	verr := &ValidationError{}
	keys := make(map[string]string, len(fields))
	for name := range fields {
		key, ok := s.metaKey(name)
		if !ok {
			verr.Add(name, CodeInvalidDocument, "not a tracked field")
			continue
		}
		keys[name] = key
	}
	if err := verr.errOrNil(); err != nil {
		return err
	}

	for name, value := range fields {
		if err := s.meta.SetMeta(ctx, postID, keys[name], value); err != nil {
			return fmt.Errorf("writing %s for post %d: %w", name, postID, err)
		}
	}
	return nil
}

func (s *HistoryService) metaKey(name string) (string, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f.MetaKey, true
		}
	}
	return "", false
}

// List returns up to limit snapshots for a post, newest first.
func (s *HistoryService) List(ctx context.Context, postID int64, limit int) ([]*model.Snapshot, error) {
	if limit <= 0 {
		limit = s.retention
	}
	snaps, err := s.snapshots.ListSnapshots(ctx, postID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return snaps, nil
}

// Get returns one snapshot by ID.
func (s *HistoryService) Get(ctx context.Context, id int64) (*model.Snapshot, error) {
	snap, err := s.snapshots.FindSnapshotByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding snapshot %d: %w", id, err)
	}
	if snap == nil {
		return nil, fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
	}
	return snap, nil
}

// Delete removes one snapshot. Later versions keep their numbers.
func (s *HistoryService) Delete(ctx context.Context, id int64) error {
	deleted, err := s.snapshots.DeleteSnapshot(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting snapshot %d: %w", id, err)
	}
	if !deleted {
		return fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
	}
	s.logger.Info("snapshot deleted", "id", id)
	return nil
}
