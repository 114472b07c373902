package seo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"almaseo-go/internal/model"
)

var csvHeader = []string{"source", "target", "status", "is_enabled", "hits", "last_hit", "created_at", "updated_at"}

const csvPageSize = 500

// ExportCSV writes every redirect to w, one row each, with all fields
// double-quoted. Returns the number of rows written (excluding the header).
func (s *RedirectService) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	if err := writeQuotedRow(bw, csvHeader); err != nil {
		return 0, fmt.Errorf("writing csv header: %w", err)
	}

	count := 0
	filter := model.RedirectFilter{OrderBy: "id", Limit: csvPageSize}
	for {
		rows, _, err := s.store.ListRedirects(ctx, filter)
		if err != nil {
			return count, fmt.Errorf("listing redirects: %w", err)
		}
		for _, r := range rows {
			if err := writeQuotedRow(bw, csvRecord(r)); err != nil {
				return count, fmt.Errorf("writing csv row: %w", err)
			}
			count++
		}
		if len(rows) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}

	if err := bw.Flush(); err != nil {
		return count, fmt.Errorf("flushing csv: %w", err)
	}
	return count, nil
}

func csvRecord(r *model.Redirect) []string {
	lastHit := ""
	if r.LastHit != nil {
		lastHit = r.LastHit.UTC().Format(time.DateTime)
	}
	enabled := "0"
	if r.IsEnabled {
		enabled = "1"
	}
	return []string{
		r.Source,
		r.Target,
		strconv.Itoa(r.Status),
		enabled,
		strconv.FormatInt(r.Hits, 10),
		lastHit,
		r.CreatedAt.UTC().Format(time.DateTime),
		r.UpdatedAt.UTC().Format(time.DateTime),
	}
}

// writeQuotedRow always quotes, unlike encoding/csv which quotes only when needed.
func writeQuotedRow(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(`"` + strings.ReplaceAll(f, `"`, `""`) + `"`); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}
