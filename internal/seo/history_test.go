package seo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"almaseo-go/internal/database"
	"almaseo-go/internal/model"
	"almaseo-go/internal/seo"
	"almaseo-go/internal/testutil"
)

type historyFixture struct {
	db      *database.SQLiteDatabase
	clock   *testutil.StubClock
	hooks   *seo.Hooks
	service *seo.HistoryService
}

func newHistoryFixture(t *testing.T, opts seo.HistoryOptions) *historyFixture {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	clock := testutil.FixedClock()
	hooks := seo.NewHooks()
	return &historyFixture{
		db:      db,
		clock:   clock,
		hooks:   hooks,
		service: seo.NewHistoryService(db, db, hooks, seo.NewNopLogger(), clock, testutil.NewExportIDs(), opts),
	}
}

// setMeta writes a raw meta value without triggering a capture.
func (f *historyFixture) setMeta(t *testing.T, postID int64, key, value string) {
	t.Helper()
	if err := f.db.SetMeta(context.Background(), postID, key, value); err != nil {
		t.Fatalf("SetMeta() error = %v", err)
	}
}

// captureTitle sets the post's title and captures a manual snapshot.
func (f *historyFixture) captureTitle(t *testing.T, postID int64, title string) (*model.Snapshot, bool) {
	t.Helper()
	f.setMeta(t, postID, "_almaseo_title", title)
	f.clock.Advance(time.Second)
	snap, created, err := f.service.Capture(context.Background(), postID, model.SourceManual)
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	return snap, created
}

func (f *historyFixture) versions(t *testing.T, postID int64) []int {
	t.Helper()
	snaps, err := f.service.List(context.Background(), postID, 100)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	out := make([]int, len(snaps))
	for i, s := range snaps {
		out[i] = s.Version
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHistoryService_TrackedFields(t *testing.T) {
	ctx := context.Background()
	f := newHistoryFixture(t, seo.HistoryOptions{})
	f.setMeta(t, 1, "_almaseo_title", "Title")
	f.setMeta(t, 1, "_almaseo_schema_json", `{"a":1}`)
	f.setMeta(t, 1, "unrelated", "ignored")

	fields, err := f.service.TrackedFields(ctx, 1)
	if err != nil {
		t.Fatalf("TrackedFields() error = %v", err)
	}
	want := model.Fields{"title": "Title", "description": "", "focus_keyword": "", "schema_json": `{"a":1}`}
	if len(fields) != len(want) {
		t.Fatalf("TrackedFields() = %v, want %v", fields, want)
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, fields[k], v)
		}
	}

	t.Run("filters extend fields", func(t *testing.T) {
		f.hooks.AddFieldsFilter(func(_ context.Context, postID int64, fields model.Fields) model.Fields {
			fields["canonical"] = fmt.Sprintf("/post/%d", postID)
			return fields
		})
		fields, err := f.service.TrackedFields(ctx, 1)
		if err != nil {
			t.Fatalf("TrackedFields() error = %v", err)
		}
		if fields["canonical"] != "/post/1" {
			t.Errorf("canonical = %q", fields["canonical"])
		}
	})
}

func TestHistoryService_Capture(t *testing.T) {
	ctx := context.Background()

	t.Run("first capture is version 1", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{})
		snap, created := f.captureTitle(t, 1, "Hello")
		if !created || snap.Version != 1 || snap.PostID != 1 {
			t.Fatalf("Capture() = %+v created=%v", snap, created)
		}
		if snap.Source != model.SourceManual {
			t.Errorf("Source = %q", snap.Source)
		}
		if snap.SizeBytes != len(snap.SnapshotJSON) {
			t.Errorf("SizeBytes = %d, want %d", snap.SizeBytes, len(snap.SnapshotJSON))
		}
		want := `{"description":"","focus_keyword":"","schema_json":"","title":"Hello"}`
		if snap.SnapshotJSON != want {
			t.Errorf("SnapshotJSON = %s, want %s", snap.SnapshotJSON, want)
		}
		digest, _ := seo.HashFields(model.Fields{"description": "", "focus_keyword": "", "schema_json": "", "title": "Hello"})
		if snap.SnapshotHash != digest {
			t.Errorf("SnapshotHash = %s, want %s", snap.SnapshotHash, digest)
		}
		if snap.UserID != nil {
			t.Errorf("UserID = %v, want nil", *snap.UserID)
		}
	})

	t.Run("unchanged capture is a no-op", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{})
		first, _ := f.captureTitle(t, 1, "Hello")
		again, created, err := f.service.Capture(ctx, 1, model.SourceAuto)
		if err != nil {
			t.Fatalf("Capture() error = %v", err)
		}
		if created {
			t.Error("expected no-op capture")
		}
		if again.ID != first.ID {
			t.Errorf("no-op returned snapshot %d, want latest %d", again.ID, first.ID)
		}
		if got := f.versions(t, 1); !equalInts(got, []int{1}) {
			t.Errorf("versions = %v, want [1]", got)
		}
	})

	t.Run("whitespace-only change is a no-op", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{})
		f.captureTitle(t, 1, "Hello  World")
		_, created := f.captureTitle(t, 1, "Hello World")
		if created {
			t.Error("expected normalized-equal title to be a no-op")
		}
		if got := f.versions(t, 1); len(got) != 1 {
			t.Errorf("versions = %v, want one", got)
		}
	})

	t.Run("json formatting change is a no-op", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{})
		f.setMeta(t, 1, "_almaseo_schema_json", `{"b":2,"a":1}`)
		f.service.Capture(ctx, 1, model.SourceManual)
		f.setMeta(t, 1, "_almaseo_schema_json", "{\n  \"a\": 1,\n  \"b\": 2\n}")
		_, created, _ := f.service.Capture(ctx, 1, model.SourceManual)
		if created {
			t.Error("expected reformatted JSON to be a no-op")
		}
	})

	t.Run("versions are sequential", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{})
		for i := 1; i <= 5; i++ {
			snap, created := f.captureTitle(t, 1, fmt.Sprintf("Title %d", i))
			if !created || snap.Version != i {
				t.Fatalf("capture %d: version %d created=%v", i, snap.Version, created)
			}
		}
		if got := f.versions(t, 1); !equalInts(got, []int{5, 4, 3, 2, 1}) {
			t.Errorf("versions = %v", got)
		}
	})

	t.Run("posts are versioned independently", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{})
		f.captureTitle(t, 1, "a")
		f.captureTitle(t, 1, "b")
		snap, _ := f.captureTitle(t, 2, "a")
		if snap.Version != 1 {
			t.Errorf("post 2 version = %d, want 1", snap.Version)
		}
	})

	t.Run("attributes acting user", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{})
		f.setMeta(t, 1, "_almaseo_title", "x")
		snap, _, err := f.service.Capture(seo.WithUserID(ctx, 7), 1, model.SourceManual)
		if err != nil {
			t.Fatalf("Capture() error = %v", err)
		}
		if snap.UserID == nil || *snap.UserID != 7 {
			t.Errorf("UserID = %v, want 7", snap.UserID)
		}
		stored, _ := f.service.Get(ctx, snap.ID)
		if stored.UserID == nil || *stored.UserID != 7 {
			t.Errorf("stored UserID = %v, want 7", stored.UserID)
		}
	})

	t.Run("unknown source", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{})
		if _, _, err := f.service.Capture(ctx, 1, model.SnapshotSource("cron")); err == nil {
			t.Error("expected error for unknown source")
		}
	})

	t.Run("fires captured hook", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{})
		var events []seo.CaptureEvent
		f.hooks.OnCaptured(func(_ context.Context, ev seo.CaptureEvent) {
			events = append(events, ev)
		})
		f.captureTitle(t, 3, "  Spaced   out ")
		f.captureTitle(t, 3, "Spaced out")

		if len(events) != 1 {
			t.Fatalf("events = %+v, want 1", events)
		}
		ev := events[0]
		if ev.PostID != 3 || ev.Version != 1 || ev.Source != model.SourceManual || ev.Fields["title"] != "Spaced out" {
			t.Errorf("event = %+v", ev)
		}
	})
}

func TestHistoryService_Retention(t *testing.T) {
	t.Run("default cap keeps newest 20", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{})
		for i := 1; i <= 25; i++ {
			f.captureTitle(t, 1, fmt.Sprintf("Title %d", i))
		}

		count, err := f.db.CountSnapshots(context.Background(), 1)
		if err != nil {
			t.Fatalf("CountSnapshots() error = %v", err)
		}
		if count != 20 {
			t.Errorf("count = %d, want 20", count)
		}

		var want []int
		for v := 25; v >= 6; v-- {
			want = append(want, v)
		}
		if got := f.versions(t, 1); !equalInts(got, want) {
			t.Errorf("versions = %v, want %v", got, want)
		}
	})

	t.Run("custom cap", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{RetentionCap: 3})
		for i := 1; i <= 5; i++ {
			f.captureTitle(t, 1, fmt.Sprintf("Title %d", i))
		}
		f.captureTitle(t, 2, "other post")

		if got := f.versions(t, 1); !equalInts(got, []int{5, 4, 3}) {
			t.Errorf("versions = %v, want [5 4 3]", got)
		}
		if got := f.versions(t, 2); !equalInts(got, []int{1}) {
			t.Errorf("post 2 versions = %v, want [1]", got)
		}
	})

	t.Run("list defaults to cap", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{RetentionCap: 2})
		f.captureTitle(t, 1, "a")
		f.captureTitle(t, 1, "b")
		snaps, err := f.service.List(context.Background(), 1, 0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(snaps) != 2 {
			t.Errorf("List() len = %d, want 2", len(snaps))
		}
	})
}

func TestHistoryService_SaveFields(t *testing.T) {
	ctx := context.Background()

	t.Run("writes and auto captures", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{})
		err := f.service.SaveFields(ctx, 1, model.Fields{"title": "T", "description": "D"})
		if err != nil {
			t.Fatalf("SaveFields() error = %v", err)
		}

		title, _ := f.db.GetMeta(ctx, 1, "_almaseo_title")
		if title != "T" {
			t.Errorf("title meta = %q, want T", title)
		}
		snaps, _ := f.service.List(ctx, 1, 0)
		if len(snaps) != 1 || snaps[0].Source != model.SourceAuto {
			t.Fatalf("snapshots = %+v, want one auto snapshot", snaps)
		}

		if err := f.service.SaveFields(ctx, 1, model.Fields{"title": " T "}); err != nil {
			t.Fatalf("SaveFields() error = %v", err)
		}
		if got := f.versions(t, 1); len(got) != 1 {
			t.Errorf("versions after unchanged save = %v, want one", got)
		}
	})

	t.Run("rejects untracked fields", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{})
		err := f.service.SaveFields(ctx, 1, model.Fields{"title": "T", "bogus": "x"})
		requireValidation(t, err, "bogus", seo.CodeInvalidDocument)

		title, _ := f.db.GetMeta(ctx, 1, "_almaseo_title")
		if title != "" {
			t.Errorf("title meta = %q, want nothing written", title)
		}
		if got := f.versions(t, 1); len(got) != 0 {
			t.Errorf("versions = %v, want none", got)
		}
	})

	t.Run("custom tracked fields", func(t *testing.T) {
		f := newHistoryFixture(t, seo.HistoryOptions{
			Fields: []seo.TrackedField{{Name: "og_title", MetaKey: "_og_title"}},
		})
		if err := f.service.SaveFields(ctx, 1, model.Fields{"og_title": "OG"}); err != nil {
			t.Fatalf("SaveFields() error = %v", err)
		}
		snaps, _ := f.service.List(ctx, 1, 0)
		if len(snaps) != 1 || snaps[0].SnapshotJSON != `{"og_title":"OG"}` {
			t.Errorf("snapshots = %+v", snaps)
		}
	})
}

func TestHistoryService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newHistoryFixture(t, seo.HistoryOptions{})
	f.captureTitle(t, 1, "a")
	f.captureTitle(t, 1, "b")
	latest, _ := f.captureTitle(t, 1, "c")

	if err := f.service.Delete(ctx, latest.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.service.Get(ctx, latest.ID); !seo.IsNotFound(err) {
		t.Errorf("Get() after delete error = %v, want not found", err)
	}
	if err := f.service.Delete(ctx, latest.ID); !seo.IsNotFound(err) {
		t.Errorf("second Delete() error = %v, want not found", err)
	}

	snap, created := f.captureTitle(t, 1, "d")
	if !created || snap.Version != 4 {
		t.Errorf("capture after delete = version %d created=%v, want 4", snap.Version, created)
	}
	if got := f.versions(t, 1); !equalInts(got, []int{4, 2, 1}) {
		t.Errorf("versions = %v, want [4 2 1]", got)
	}
}
