package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *SQLiteDatabase) GetMeta(ctx context.Context, postID int64, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT meta_value FROM post_meta WHERE post_id = ? AND meta_key = ?", postID, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("getting post meta: %w", err)
	}
	return value, nil
}

func (s *SQLiteDatabase) SetMeta(ctx context.Context, postID int64, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO post_meta (post_id, meta_key, meta_value) VALUES (?, ?, ?)
		 ON CONFLICT(post_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value`,
		postID, key, value)
	if err != nil {
		return fmt.Errorf("setting post meta: %w", err)
	}
	return nil
}
