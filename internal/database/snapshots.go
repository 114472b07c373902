package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"almaseo-go/internal/model"
)

const snapshotColumns = "id, post_id, version, created_at, user_id, source, snapshot_json, snapshot_hash, size_bytes"

func scanSnapshot(row rowScanner) (*model.Snapshot, error) {
	var (
		snap   model.Snapshot
		userID sql.NullInt64
		source string
	)
	err := row.Scan(&snap.ID, &snap.PostID, &snap.Version, &snap.CreatedAt, &userID, &source,
		&snap.SnapshotJSON, &snap.SnapshotHash, &snap.SizeBytes)
	if err != nil {
		return nil, err
	}
	snap.Source = model.SnapshotSource(source)
	if userID.Valid {
		id := userID.Int64
		snap.UserID = &id
	}
	return &snap, nil
}

func (s *SQLiteDatabase) findSnapshot(ctx context.Context, query string, args ...any) (*model.Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return snap, nil
}

// InsertSnapshot allocates the next version from metadata_history_versions and
// inserts the row in the same transaction.
func (s *SQLiteDatabase) InsertSnapshot(ctx context.Context, snap *model.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// Seed the sequence from existing rows so databases populated before the
	// sequence table still continue from their highest version.
	var version int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO metadata_history_versions (post_id, last_version)
		 VALUES (?, (SELECT COALESCE(MAX(version), 0) + 1 FROM metadata_history WHERE post_id = ?))
		 ON CONFLICT(post_id) DO UPDATE SET last_version = last_version + 1
		 RETURNING last_version`,
		snap.PostID, snap.PostID).Scan(&version)
	if err != nil {
		return fmt.Errorf("allocating snapshot version: %w", err)
	}

	var userID sql.NullInt64
	if snap.UserID != nil {
		userID = sql.NullInt64{Int64: *snap.UserID, Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO metadata_history (post_id, version, created_at, user_id, source, snapshot_json, snapshot_hash, size_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.PostID, version, snap.CreatedAt, userID, string(snap.Source), snap.SnapshotJSON, snap.SnapshotHash, snap.SizeBytes)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading snapshot id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	snap.ID = id
	snap.Version = version
	return nil
}

func (s *SQLiteDatabase) LatestSnapshot(ctx context.Context, postID int64) (*model.Snapshot, error) {
	snap, err := s.findSnapshot(ctx,
		"SELECT "+snapshotColumns+" FROM metadata_history WHERE post_id = ? ORDER BY version DESC LIMIT 1", postID)
	if err != nil {
		return nil, fmt.Errorf("finding latest snapshot: %w", err)
	}
	return snap, nil
}

func (s *SQLiteDatabase) FindSnapshotByID(ctx context.Context, id int64) (*model.Snapshot, error) {
	snap, err := s.findSnapshot(ctx, "SELECT "+snapshotColumns+" FROM metadata_history WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("finding snapshot by id: %w", err)
	}
	return snap, nil
}

func (s *SQLiteDatabase) FindSnapshotByVersion(ctx context.Context, postID int64, version int) (*model.Snapshot, error) {
	snap, err := s.findSnapshot(ctx,
		"SELECT "+snapshotColumns+" FROM metadata_history WHERE post_id = ? AND version = ?", postID, version)
	if err != nil {
		return nil, fmt.Errorf("finding snapshot by version: %w", err)
	}
	return snap, nil
}

func (s *SQLiteDatabase) ListSnapshots(ctx context.Context, postID int64, limit int) ([]*model.Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+snapshotColumns+" FROM metadata_history WHERE post_id = ? ORDER BY version DESC LIMIT ?", postID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var result []*model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("listing snapshots: %w", err)
		}
		result = append(result, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return result, nil
}

func (s *SQLiteDatabase) CountSnapshots(ctx context.Context, postID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM metadata_history WHERE post_id = ?", postID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) DeleteSnapshot(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM metadata_history WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting snapshot: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) DeleteOldestSnapshots(ctx context.Context, postID int64, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM metadata_history WHERE id IN (
		   SELECT id FROM metadata_history WHERE post_id = ? ORDER BY version ASC LIMIT ?
		 )`, postID, n)
	if err != nil {
		return 0, fmt.Errorf("deleting oldest snapshots: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting oldest snapshots: %w", err)
	}
	return deleted, nil
}
