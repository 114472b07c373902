package seo_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"almaseo-go/internal/cache"
	"almaseo-go/internal/database"
	"almaseo-go/internal/model"
	"almaseo-go/internal/seo"
	"almaseo-go/internal/testutil"
)

type redirectFixture struct {
	db      *database.SQLiteDatabase
	cache   *cache.MemoryCache
	clock   *testutil.StubClock
	site    *seo.Site
	service *seo.RedirectService
}

func newRedirectFixture(t *testing.T) *redirectFixture {
	t.Helper()

	db := testutil.NewTestDatabase(t)
	clock := testutil.FixedClock()
	site, err := seo.NewSite("https://example.com")
	if err != nil {
		t.Fatalf("NewSite() error = %v", err)
	}
	c, err := cache.NewMemoryCache(16, clock)
	if err != nil {
		t.Fatalf("NewMemoryCache() error = %v", err)
	}
	return &redirectFixture{
		db:      db,
		cache:   c,
		clock:   clock,
		site:    site,
		service: seo.NewRedirectService(db, c, site, seo.NewNopLogger(), clock, time.Hour),
	}
}

func (f *redirectFixture) mustCreate(t *testing.T, source, target string, status int, enabled bool) *model.Redirect {
	t.Helper()
	r, err := f.service.Create(context.Background(), source, target, status, enabled)
	if err != nil {
		t.Fatalf("Create(%q, %q) error = %v", source, target, err)
	}
	return r
}

func requireValidation(t *testing.T, err error, field, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected validation error %s/%s, got nil", field, code)
	}
	verr, ok := seo.AsValidationError(err)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	for _, fe := range verr.Errors {
		if fe.Field == field && fe.Code == code {
			return
		}
	}
	t.Fatalf("validation errors %+v do not include %s/%s", verr.Errors, field, code)
}

func TestRedirectService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		f := newRedirectFixture(t)
		created := f.mustCreate(t, "/old", "/new", 301, true)

		got, err := f.service.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Source != "/old" || got.Target != "/new" || got.Status != 301 || got.Hits != 0 {
			t.Errorf("Get() = %+v", got)
		}
		if !got.IsEnabled {
			t.Error("expected redirect to be enabled")
		}
		if got.LastHit != nil {
			t.Errorf("LastHit = %v, want nil", got.LastHit)
		}
		if !got.CreatedAt.Equal(f.clock.Now()) || !got.UpdatedAt.Equal(f.clock.Now()) {
			t.Errorf("timestamps = %v / %v, want %v", got.CreatedAt, got.UpdatedAt, f.clock.Now())
		}
	})

	t.Run("normalizes source and target", func(t *testing.T) {
		f := newRedirectFixture(t)
		r := f.mustCreate(t, "https://example.com//old-page/", "new//page/", 302, true)
		if r.Source != "/old-page" || r.Target != "/new/page" {
			t.Errorf("got source %q target %q", r.Source, r.Target)
		}
	})

	t.Run("absolute target kept verbatim", func(t *testing.T) {
		f := newRedirectFixture(t)
		r := f.mustCreate(t, "/away", "https://other.com/Landing/?a=1", 301, true)
		if r.Target != "https://other.com/Landing/?a=1" {
			t.Errorf("Target = %q", r.Target)
		}
	})

	t.Run("reports every invalid field", func(t *testing.T) {
		f := newRedirectFixture(t)
		_, err := f.service.Create(ctx, "/bad source", "<nope>", 307, true)
		requireValidation(t, err, "source", seo.CodeInvalidSource)
		requireValidation(t, err, "target", seo.CodeInvalidTarget)
		requireValidation(t, err, "status", seo.CodeInvalidStatus)
	})

	t.Run("duplicate source", func(t *testing.T) {
		f := newRedirectFixture(t)
		f.mustCreate(t, "/a", "/b", 301, true)

		_, err := f.service.Create(ctx, "/a", "/c", 301, true)
		requireValidation(t, err, "source", seo.CodeDuplicateSource)

		_, err = f.service.Create(ctx, "/a/", "/c", 301, true)
		requireValidation(t, err, "source", seo.CodeDuplicateSource)
	})

	t.Run("duplicate of disabled redirect", func(t *testing.T) {
		f := newRedirectFixture(t)
		f.mustCreate(t, "/a", "/b", 301, false)
		_, err := f.service.Create(ctx, "/a", "/c", 301, true)
		requireValidation(t, err, "source", seo.CodeDuplicateSource)
	})

	t.Run("source match is case sensitive", func(t *testing.T) {
		f := newRedirectFixture(t)
		f.mustCreate(t, "/a", "/b", 301, true)
		f.mustCreate(t, "/A", "/b", 301, true)
	})

	t.Run("rejects loops", func(t *testing.T) {
		f := newRedirectFixture(t)
		for _, target := range []string{
			"/x", "/x/", "https://example.com/x", "https://EXAMPLE.com/x/",
			"/x?utm=1", "/x#top", "/x/?utm=1#top", "https://example.com/x?utm=1",
		} {
			_, err := f.service.Create(ctx, "/x", target, 301, true)
			requireValidation(t, err, "target", seo.CodeRedirectLoop)
		}
	})

	t.Run("same path on another host is not a loop", func(t *testing.T) {
		f := newRedirectFixture(t)
		f.mustCreate(t, "/x", "https://other.com/x", 301, true)
	})

	t.Run("rejects query or fragment in source", func(t *testing.T) {
		f := newRedirectFixture(t)
		for _, source := range []string{"/old?x=1", "/old#top", "https://example.com/old?x=1"} {
			_, err := f.service.Create(ctx, source, "/new", 301, true)
			requireValidation(t, err, "source", seo.CodeInvalidSource)
		}
	})

	t.Run("stores non-ascii source escaped", func(t *testing.T) {
		f := newRedirectFixture(t)
		r := f.mustCreate(t, "/café", "/new", 301, true)
		if r.Source != "/caf%C3%A9" {
			t.Errorf("Source = %q, want %q", r.Source, "/caf%C3%A9")
		}
		_, err := f.service.Create(ctx, "/caf%C3%A9", "/other", 301, true)
		requireValidation(t, err, "source", seo.CodeDuplicateSource)
	})

	t.Run("duplicate source from a concurrent writer", func(t *testing.T) {
		f := newRedirectFixture(t)
		f.mustCreate(t, "/a", "/b", 301, true)

		svc := seo.NewRedirectService(blindStore{f.db}, nil, f.site, seo.NewNopLogger(), f.clock, time.Hour)
		_, err := svc.Create(ctx, "/a", "/c", 301, true)
		requireValidation(t, err, "source", seo.CodeDuplicateSource)

		other, err := svc.Create(ctx, "/d", "/e", 301, true)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		taken := "/a"
		_, err = svc.Update(ctx, other.ID, seo.RedirectInput{Source: &taken})
		requireValidation(t, err, "source", seo.CodeDuplicateSource)
	})
}

// blindStore never sees an existing source, like a writer racing another
// create between the lookup and the insert.
type blindStore struct {
	*database.SQLiteDatabase
}

func (blindStore) FindRedirectBySource(context.Context, string) (*model.Redirect, error) {
	return nil, nil
}

func TestRedirectService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate source leaves row unchanged", func(t *testing.T) {
		f := newRedirectFixture(t)
		ab := f.mustCreate(t, "/a", "/b", 301, true)
		f.mustCreate(t, "/c", "/d", 301, true)

		newSource := "/c"
		_, err := f.service.Update(ctx, ab.ID, seo.RedirectInput{Source: &newSource})
		requireValidation(t, err, "source", seo.CodeDuplicateSource)

		got, err := f.service.Get(ctx, ab.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Source != "/a" || got.Target != "/b" {
			t.Errorf("row changed: %+v", got)
		}
	})

	t.Run("partial update", func(t *testing.T) {
		f := newRedirectFixture(t)
		r := f.mustCreate(t, "/a", "/b", 301, true)
		f.clock.Advance(time.Minute)

		status := 302
		updated, err := f.service.Update(ctx, r.ID, seo.RedirectInput{Status: &status})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if updated.Status != 302 || updated.Source != "/a" || updated.Target != "/b" {
			t.Errorf("Update() = %+v", updated)
		}

		got, _ := f.service.Get(ctx, r.ID)
		if got.Status != 302 {
			t.Errorf("stored status = %d, want 302", got.Status)
		}
		if !got.UpdatedAt.Equal(f.clock.Now()) {
			t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, f.clock.Now())
		}
		if !got.CreatedAt.Equal(r.CreatedAt) {
			t.Errorf("CreatedAt changed to %v", got.CreatedAt)
		}
	})

	t.Run("keeping own source is not a duplicate", func(t *testing.T) {
		f := newRedirectFixture(t)
		r := f.mustCreate(t, "/a", "/b", 301, true)
		same := "/a/"
		target := "/z"
		updated, err := f.service.Update(ctx, r.ID, seo.RedirectInput{Source: &same, Target: &target})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if updated.Source != "/a" || updated.Target != "/z" {
			t.Errorf("Update() = %+v", updated)
		}
	})

	t.Run("rejects loop", func(t *testing.T) {
		f := newRedirectFixture(t)
		r := f.mustCreate(t, "/a", "/b", 301, true)
		target := "/a"
		_, err := f.service.Update(ctx, r.ID, seo.RedirectInput{Target: &target})
		requireValidation(t, err, "target", seo.CodeRedirectLoop)
	})

	t.Run("missing redirect", func(t *testing.T) {
		f := newRedirectFixture(t)
		status := 302
		_, err := f.service.Update(ctx, 999, seo.RedirectInput{Status: &status})
		if !seo.IsNotFound(err) {
			t.Errorf("Update() error = %v, want not found", err)
		}
		if _, ok := seo.AsValidationError(err); ok {
			t.Error("not found must not be a validation error")
		}
	})
}

func TestRedirectService_DeleteAndToggle(t *testing.T) {
	ctx := context.Background()
	f := newRedirectFixture(t)
	r := f.mustCreate(t, "/a", "/b", 301, true)

	toggled, err := f.service.Toggle(ctx, r.ID)
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if toggled.IsEnabled {
		t.Error("expected toggle to disable")
	}
	toggled, _ = f.service.Toggle(ctx, r.ID)
	if !toggled.IsEnabled {
		t.Error("expected second toggle to enable")
	}

	if err := f.service.Delete(ctx, r.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.service.Get(ctx, r.ID); !errors.Is(err, seo.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := f.service.Delete(ctx, r.ID); !seo.IsNotFound(err) {
		t.Errorf("second Delete() error = %v, want not found", err)
	}
	if _, err := f.service.Toggle(ctx, r.ID); !seo.IsNotFound(err) {
		t.Errorf("Toggle() of deleted error = %v, want not found", err)
	}
}

func TestRedirectService_Bulk(t *testing.T) {
	ctx := context.Background()

	t.Run("partial failure does not abort", func(t *testing.T) {
		f := newRedirectFixture(t)
		a := f.mustCreate(t, "/a", "/x", 301, true)
		b := f.mustCreate(t, "/b", "/x", 301, true)

		res, err := f.service.Bulk(ctx, seo.BulkDisable, []int64{a.ID, 404, b.ID})
		if err != nil {
			t.Fatalf("Bulk() error = %v", err)
		}
		if res.SuccessCount != 2 || res.FailedCount != 1 {
			t.Errorf("Bulk() = %+v, want 2 ok / 1 failed", res)
		}
		for _, id := range []int64{a.ID, b.ID} {
			got, _ := f.service.Get(ctx, id)
			if got.IsEnabled {
				t.Errorf("redirect %d still enabled", id)
			}
		}

		res, _ = f.service.Bulk(ctx, seo.BulkEnable, []int64{a.ID})
		if res.SuccessCount != 1 {
			t.Errorf("enable = %+v", res)
		}
	})

	t.Run("delete", func(t *testing.T) {
		f := newRedirectFixture(t)
		a := f.mustCreate(t, "/a", "/x", 301, true)
		b := f.mustCreate(t, "/b", "/x", 301, true)

		res, err := f.service.Bulk(ctx, seo.BulkDelete, []int64{a.ID, b.ID, a.ID})
		if err != nil {
			t.Fatalf("Bulk() error = %v", err)
		}
		if res.SuccessCount != 2 || res.FailedCount != 1 {
			t.Errorf("Bulk() = %+v, want 2 ok / 1 failed", res)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		f := newRedirectFixture(t)
		if _, err := f.service.Bulk(ctx, seo.BulkAction("archive"), []int64{1}); err == nil {
			t.Error("expected error for unknown action")
		}
	})
}

func TestRedirectService_List(t *testing.T) {
	ctx := context.Background()
	f := newRedirectFixture(t)
	for i := 1; i <= 25; i++ {
		f.mustCreate(t, fmt.Sprintf("/page-%02d", i), "/dest", 301, i%5 != 0)
	}

	page, err := f.service.List(ctx, model.RedirectFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Limit != 20 || len(page.Redirects) != 20 || page.Total != 25 {
		t.Errorf("List() limit=%d len=%d total=%d, want 20/20/25", page.Limit, len(page.Redirects), page.Total)
	}

	disabled := false
	page, err = f.service.List(ctx, model.RedirectFilter{Enabled: &disabled, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 5 || page.Offset != 0 {
		t.Errorf("disabled total=%d offset=%d, want 5/0", page.Total, page.Offset)
	}
}

func TestRedirectService_EnabledIndex(t *testing.T) {
	ctx := context.Background()

	t.Run("only enabled rows", func(t *testing.T) {
		f := newRedirectFixture(t)
		on := f.mustCreate(t, "/on", "/dest", 302, true)
		f.mustCreate(t, "/off", "/dest", 301, false)

		idx, err := f.service.EnabledIndex(ctx)
		if err != nil {
			t.Fatalf("EnabledIndex() error = %v", err)
		}
		if len(idx) != 1 {
			t.Fatalf("index = %v, want one entry", idx)
		}
		want := model.IndexEntry{ID: on.ID, Target: "/dest", Status: 302}
		if idx["/on"] != want {
			t.Errorf("idx[/on] = %+v, want %+v", idx["/on"], want)
		}
	})

	t.Run("served from cache until invalidated", func(t *testing.T) {
		f := newRedirectFixture(t)
		f.mustCreate(t, "/a", "/b", 301, true)

		if _, err := f.service.EnabledIndex(ctx); err != nil {
			t.Fatalf("EnabledIndex() error = %v", err)
		}
		if f.cache.Len() != 1 {
			t.Fatalf("cache len = %d, want 1", f.cache.Len())
		}

		// Written behind the service's back: the cached index is stale.
		_, err := f.db.InsertRedirect(ctx, &model.Redirect{
			Source: "/direct", Target: "/b", Status: 301, IsEnabled: true,
			CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
		})
		if err != nil {
			t.Fatalf("InsertRedirect() error = %v", err)
		}
		idx, _ := f.service.EnabledIndex(ctx)
		if _, ok := idx["/direct"]; ok {
			t.Error("expected cached index without /direct")
		}

		f.mustCreate(t, "/c", "/b", 301, true)
		idx, _ = f.service.EnabledIndex(ctx)
		if len(idx) != 3 {
			t.Errorf("index after create has %d entries, want 3", len(idx))
		}
	})

	t.Run("expires after ttl", func(t *testing.T) {
		f := newRedirectFixture(t)
		f.mustCreate(t, "/a", "/b", 301, true)
		f.service.EnabledIndex(ctx)

		f.db.InsertRedirect(ctx, &model.Redirect{
			Source: "/late", Target: "/b", Status: 301, IsEnabled: true,
			CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
		})
		f.clock.Advance(time.Hour)

		idx, _ := f.service.EnabledIndex(ctx)
		if _, ok := idx["/late"]; !ok {
			t.Error("expected index reloaded after ttl")
		}
	})

	t.Run("toggle and delete invalidate", func(t *testing.T) {
		f := newRedirectFixture(t)
		r := f.mustCreate(t, "/a", "/b", 301, true)
		f.service.EnabledIndex(ctx)

		f.service.Toggle(ctx, r.ID)
		idx, _ := f.service.EnabledIndex(ctx)
		if len(idx) != 0 {
			t.Errorf("index after disable = %v, want empty", idx)
		}

		f.service.Toggle(ctx, r.ID)
		f.service.EnabledIndex(ctx)
		f.service.Delete(ctx, r.ID)
		idx, _ = f.service.EnabledIndex(ctx)
		if len(idx) != 0 {
			t.Errorf("index after delete = %v, want empty", idx)
		}
	})
}

func TestRedirectService_RecordHit(t *testing.T) {
	ctx := context.Background()
	f := newRedirectFixture(t)
	r := f.mustCreate(t, "/a", "/b", 301, true)

	f.clock.Advance(time.Minute)
	f.service.RecordHit(ctx, r.ID)
	f.service.RecordHit(ctx, r.ID)
	// Unknown IDs are swallowed.
	f.service.RecordHit(ctx, 999)

	got, _ := f.service.Get(ctx, r.ID)
	if got.Hits != 2 {
		t.Errorf("Hits = %d, want 2", got.Hits)
	}
	if got.LastHit == nil || !got.LastHit.Equal(f.clock.Now()) {
		t.Errorf("LastHit = %v, want %v", got.LastHit, f.clock.Now())
	}
}
