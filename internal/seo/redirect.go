package seo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"almaseo-go/internal/model"
)

// EnabledIndexKey is the cache key holding the encoded enabled-redirect index.
const EnabledIndexKey = "redirects:enabled"

// DefaultIndexTTL bounds how long a cached index may be served after a
// missed invalidation.
const DefaultIndexTTL = time.Hour

// RedirectInput carries a partial update. Nil fields are left unchanged.
type RedirectInput struct {
	Source    *string
	Target    *string
	Status    *int
	IsEnabled *bool
}

// RedirectPage is one page of a filtered listing.
type RedirectPage struct {
	Redirects []*model.Redirect
	Total     int
	Limit     int
	Offset    int
}

// BulkAction names an operation applied to many redirects at once.
type BulkAction string

const (
	BulkEnable  BulkAction = "enable"
	BulkDisable BulkAction = "disable"
	BulkDelete  BulkAction = "delete"
)

// BulkResult counts per-ID outcomes of a bulk action.
type BulkResult struct {
	SuccessCount int `json:"success_count"`
	FailedCount  int `json:"failed_count"`
}

// RedirectService validates and persists redirects and maintains the cached
// enabled-redirect index used by the Matcher.
type RedirectService struct {
	store    RedirectStore
	cache    Cache
	site     *Site
	logger   Logger
	clock    Clock
	indexTTL time.Duration
}

// NewRedirectService creates a RedirectService. A nil cache disables caching.
func NewRedirectService(store RedirectStore, cache Cache, site *Site, logger Logger, clock Clock, indexTTL time.Duration) *RedirectService {
	if cache == nil {
		cache = NopCache{}
	}
	if indexTTL <= 0 {
		indexTTL = DefaultIndexTTL
	}
	return &RedirectService{
		store:    store,
		cache:    cache,
		site:     site,
		logger:   WithComponent(logger, "redirects"),
		clock:    clock,
		indexTTL: indexTTL,
	}
}

// Create validates and stores a new redirect.
func (s *RedirectService) Create(ctx context.Context, source, target string, status int, enabled bool) (*model.Redirect, error) {
	r := &model.Redirect{Status: status, IsEnabled: enabled}
	if err := s.validate(ctx, r, source, target, 0); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	id, err := s.store.InsertRedirect(ctx, r)
	if errors.Is(err, ErrDuplicateSource) {
		return nil, duplicateSourceError(r.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("inserting redirect: %w", err)
	}
	r.ID = id

	s.invalidate(ctx)
	s.logger.Info("redirect created", "id", id, "source", r.Source, "target", r.Target, "status", r.Status)
	return r, nil
}

// Update applies the supplied fields to an existing redirect, re-validating
// the resulting row. The row is left untouched on any failure.
func (s *RedirectService) Update(ctx context.Context, id int64, in RedirectInput) (*model.Redirect, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	source, target := existing.Source, existing.Target
	if in.Source != nil {
		source = *in.Source
	}
	if in.Target != nil {
		target = *in.Target
	}
	if in.Status != nil {
		updated.Status = *in.Status
	}
	if in.IsEnabled != nil {
		updated.IsEnabled = *in.IsEnabled
	}

	if err := s.validate(ctx, &updated, source, target, id); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.clock.Now()

	err = s.store.UpdateRedirect(ctx, &updated)
	if errors.Is(err, ErrDuplicateSource) {
		return nil, duplicateSourceError(updated.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("updating redirect %d: %w", id, err)
	}

	s.invalidate(ctx)
	s.logger.Info("redirect updated", "id", id, "source", updated.Source)
	return &updated, nil
}

// Delete removes a redirect.
func (s *RedirectService) Delete(ctx context.Context, id int64) error {
	deleted, err := s.store.DeleteRedirect(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting redirect %d: %w", id, err)
	}
	if !deleted {
		return fmt.Errorf("redirect %d: %w", id, ErrNotFound)
	}

	s.invalidate(ctx)
	s.logger.Info("redirect deleted", "id", id)
	return nil
}

// Toggle flips a redirect's enabled flag.
func (s *RedirectService) Toggle(ctx context.Context, id int64) (*model.Redirect, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	enabled := !r.IsEnabled
	return s.setEnabled(ctx, r, enabled)
}

func (s *RedirectService) setEnabled(ctx context.Context, r *model.Redirect, enabled bool) (*model.Redirect, error) {
	updated := *r
	updated.IsEnabled = enabled
	updated.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateRedirect(ctx, &updated); err != nil {
		return nil, fmt.Errorf("updating redirect %d: %w", r.ID, err)
	}
	s.invalidate(ctx)
	return &updated, nil
}

// Get returns one redirect by ID.
func (s *RedirectService) Get(ctx context.Context, id int64) (*model.Redirect, error) {
	r, err := s.store.FindRedirectByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding redirect %d: %w", id, err)
	}
	if r == nil {
		return nil, fmt.Errorf("redirect %d: %w", id, ErrNotFound)
	}
	return r, nil
}

// List returns a filtered, paginated listing. Limit defaults to 20.
func (s *RedirectService) List(ctx context.Context, filter model.RedirectFilter) (*RedirectPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	rows, total, err := s.store.ListRedirects(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing redirects: %w", err)
	}
	return &RedirectPage{Redirects: rows, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Bulk applies action to every ID independently. One failure never aborts
// the remaining IDs.
func (s *RedirectService) Bulk(ctx context.Context, action BulkAction, ids []int64) (BulkResult, error) {
	var op func(int64) error
	switch action {
	case BulkEnable, BulkDisable:
		enabled := action == BulkEnable
		op = func(id int64) error {
			r, err := s.Get(ctx, id)
			if err != nil {
				return err
			}
			_, err = s.setEnabled(ctx, r, enabled)
			return err
		}
	case BulkDelete:
		op = func(id int64) error { return s.Delete(ctx, id) }
	default:
		return BulkResult{}, fmt.Errorf("unknown bulk action: %q", action)
	}

	var res BulkResult
	for _, id := range ids {
		if err := op(id); err != nil {
			s.logger.Warn("bulk action failed", "action", string(action), "id", id, "error", err)
			res.FailedCount++
			continue
		}
		res.SuccessCount++
	}
	return res, nil
}

// EnabledIndex returns the enabled redirects keyed by source, reading through
// the cache. Cache failures degrade to a direct store read.
func (s *RedirectService) EnabledIndex(ctx context.Context) (model.RedirectIndex, error) {
	if data, ok, err := s.cache.Get(ctx, EnabledIndexKey); err != nil {
		s.logger.Warn("redirect index cache read failed", "error", err)
	} else if ok {
		var idx model.RedirectIndex
		if err := msgpack.Unmarshal(data, &idx); err == nil {
			return idx, nil
		}
		s.logger.Warn("discarding undecodable redirect index", "error", err)
	}

	rows, err := s.store.ListEnabledRedirects(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading enabled redirects: %w", err)
	}
	idx := make(model.RedirectIndex, len(rows))
	for _, r := range rows {
		idx[r.Source] = model.IndexEntry{ID: r.ID, Target: r.Target, Status: r.Status}
	}

	data, err := msgpack.Marshal(idx)
	if err != nil {
		s.logger.Warn("encoding redirect index", "error", err)
		return idx, nil
	}
	if err := s.cache.Set(ctx, EnabledIndexKey, data, s.indexTTL); err != nil {
		s.logger.Warn("redirect index cache write failed", "error", err)
	}
	return idx, nil
}

// RecordHit increments a redirect's hit counter. Failures are logged and
// swallowed so they can never affect the redirect response.
func (s *RedirectService) RecordHit(ctx context.Context, id int64) {
	if err := s.store.IncrementRedirectHits(ctx, id, s.clock.Now()); err != nil {
		s.logger.Warn("recording redirect hit failed", "id", id, "error", err)
	}
}

// invalidate drops the cached index. Failure leaves a stale entry that
// expires after indexTTL.
func (s *RedirectService) invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, EnabledIndexKey); err != nil {
		s.logger.Warn("redirect index invalidation failed", "error", err)
	}
}

// validate normalizes source and target into r and checks status,
// uniqueness (excluding selfID) and direct loops.
func (s *RedirectService) validate(ctx context.Context, r *model.Redirect, source, target string, selfID int64) error {
	verr := &ValidationError{}

	var (
		normSource string
		ok         bool
	)
	if strings.ContainsAny(source, "?#") {
		verr.Add("source", CodeInvalidSource, "source must not include a query string or fragment")
	} else if normSource, ok = CanonicalPath(source); !ok {
		verr.Add("source", CodeInvalidSource, "source must be a path without whitespace, '<', '>' or '\"'")
	}
	normTarget, targetOK := ValidateTarget(target)
	if !targetOK {
		verr.Add("target", CodeInvalidTarget, "target must be an absolute http(s) URL or a valid path")
	}
	if r.Status != model.StatusPermanent && r.Status != model.StatusTemporary {
		verr.Add("status", CodeInvalidStatus, "status must be 301 or 302")
	}

	if ok {
		existing, err := s.store.FindRedirectBySource(ctx, normSource)
		if err != nil {
			return fmt.Errorf("checking for duplicate source: %w", err)
		}
		if existing != nil && existing.ID != selfID {
			verr.Errors = append(verr.Errors, duplicateSourceError(normSource).Errors...)
		}
	}

	if ok && targetOK && s.isSelfLoop(normSource, normTarget) {
		verr.Add("target", CodeRedirectLoop, "target resolves to the source path")
	}

	if err := verr.errOrNil(); err != nil {
		return err
	}
	r.Source = normSource
	r.Target = normTarget
	return nil
}

// duplicateSourceError covers both the pre-write lookup and a concurrent
// writer winning the unique index.
func duplicateSourceError(source string) *ValidationError {
	verr := &ValidationError{}
	verr.Add("source", CodeDuplicateSource, fmt.Sprintf("a redirect for %s already exists", source))
	return verr
}

// isSelfLoop reports whether target points back at source on this site.
func (s *RedirectService) isSelfLoop(source, target string) bool {
	if s.site == nil {
		if IsAbsoluteURL(target) {
			return false
		}
		local, ok := CanonicalPath(target)
		return ok && local == source
	}
	local, ok := s.site.LocalPath(target)
	return ok && local == source
}

// IsNotFound reports whether err signals a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
