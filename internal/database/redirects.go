package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"almaseo-go/internal/model"
	"almaseo-go/internal/seo"
)

const redirectColumns = "id, source, target, status, is_enabled, hits, last_hit, created_at, updated_at"

// orderColumns whitelists the sortable columns of a redirect listing.
var orderColumns = map[string]string{
	"":           "id",
	"id":         "id",
	"source":     "source",
	"hits":       "hits",
	"created_at": "created_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRedirect(row rowScanner) (*model.Redirect, error) {
	var (
		r       model.Redirect
		lastHit sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Source, &r.Target, &r.Status, &r.IsEnabled, &r.Hits, &lastHit, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastHit.Valid {
		t := lastHit.Time
		r.LastHit = &t
	}
	return &r, nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (s *SQLiteDatabase) InsertRedirect(ctx context.Context, r *model.Redirect) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO redirects (source, target, status, is_enabled, hits, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		r.Source, r.Target, r.Status, r.IsEnabled, r.CreatedAt, r.UpdatedAt)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("inserting redirect %s: %w", r.Source, seo.ErrDuplicateSource)
	}
	if err != nil {
		return 0, fmt.Errorf("inserting redirect: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading redirect id: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) UpdateRedirect(ctx context.Context, r *model.Redirect) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE redirects SET source = ?, target = ?, status = ?, is_enabled = ?, updated_at = ? WHERE id = ?`,
		r.Source, r.Target, r.Status, r.IsEnabled, r.UpdatedAt, r.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("updating redirect %s: %w", r.Source, seo.ErrDuplicateSource)
	}
	if err != nil {
		return fmt.Errorf("updating redirect: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteRedirect(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM redirects WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting redirect: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting redirect: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) FindRedirectByID(ctx context.Context, id int64) (*model.Redirect, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+redirectColumns+" FROM redirects WHERE id = ?", id)
	r, err := scanRedirect(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding redirect by id: %w", err)
	}
	return r, nil
}

func (s *SQLiteDatabase) FindRedirectBySource(ctx context.Context, source string) (*model.Redirect, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+redirectColumns+" FROM redirects WHERE source = ?", source)
	r, err := scanRedirect(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding redirect by source: %w", err)
	}
	return r, nil
}

func (s *SQLiteDatabase) ListRedirects(ctx context.Context, filter model.RedirectFilter) ([]*model.Redirect, int, error) {
	column, ok := orderColumns[filter.OrderBy]
	if !ok {
		return nil, 0, fmt.Errorf("unknown order column: %q", filter.OrderBy)
	}

	var (
		conds []string
		args  []any
	)
	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		conds = append(conds, `(source LIKE ? ESCAPE '\' OR target LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if filter.Status != 0 {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Enabled != nil {
		conds = append(conds, "is_enabled = ?")
		args = append(args, *filter.Enabled)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM redirects"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting redirects: %w", err)
	}

	dir := "ASC"
	if filter.Desc {
		dir = "DESC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := fmt.Sprintf("SELECT %s FROM redirects%s ORDER BY %s %s, id %s LIMIT ? OFFSET ?",
		redirectColumns, where, column, dir, dir)
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing redirects: %w", err)
	}
	defer rows.Close()

	result, err := collectRedirects(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("listing redirects: %w", err)
	}
	return result, total, nil
}

func (s *SQLiteDatabase) ListEnabledRedirects(ctx context.Context) ([]*model.Redirect, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+redirectColumns+" FROM redirects WHERE is_enabled = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing enabled redirects: %w", err)
	}
	defer rows.Close()

	result, err := collectRedirects(rows)
	if err != nil {
		return nil, fmt.Errorf("listing enabled redirects: %w", err)
	}
	return result, nil
}

func (s *SQLiteDatabase) IncrementRedirectHits(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE redirects SET hits = hits + 1, last_hit = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("incrementing redirect hits: %w", err)
	}
	return nil
}

func collectRedirects(rows *sql.Rows) ([]*model.Redirect, error) {
	var result []*model.Redirect
	for rows.Next() {
		r, err := scanRedirect(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
