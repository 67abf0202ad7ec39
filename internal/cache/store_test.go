package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeClock returns a Store whose clock is advanced by hand.
func fakeClock(t *testing.T, strict bool) (*Store, *time.Time) {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "http"), strict)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestStore_PutLookupBody(t *testing.T) {
	t.Parallel()
	s, _ := fakeClock(t, false)
	ctx := context.Background()
	const u = "https://docs.example.com/start"

	if _, ok := s.Lookup(ctx, u); ok {
		t.Fatal("empty cache must miss")
	}
	if err := s.Put(ctx, u, Entry{ContentType: "text/html", ETag: `"v1"`}, []byte("<p>hi</p>")); err != nil {
		t.Fatalf("put: %v", err)
	}
	e, ok := s.Lookup(ctx, u)
	if !ok {
		t.Fatal("expected hit")
	}
	if e.ETag != `"v1"` || e.ContentType != "text/html" || e.Size != 9 || !e.Revalidatable() {
		t.Fatalf("unexpected entry: %+v", e)
	}
	body, err := s.Body(ctx, u)
	if err != nil || string(body) != "<p>hi</p>" {
		t.Fatalf("body = %q, %v", body, err)
	}
	if (Entry{}).Revalidatable() {
		t.Fatal("entry without validators is not revalidatable")
	}
}

func TestStore_NilIsDisabled(t *testing.T) {
	t.Parallel()
	var s *Store
	ctx := context.Background()
	if err := s.Put(ctx, "https://a.example/", Entry{}, []byte("x")); err != nil {
		t.Fatalf("put on nil store: %v", err)
	}
	if _, ok := s.Lookup(ctx, "https://a.example/"); ok {
		t.Fatal("nil store must miss")
	}
	if _, err := s.Body(ctx, "https://a.example/"); err == nil {
		t.Fatal("nil store has no bodies")
	}
	if rep, err := s.Maintain(Policy{Clear: true}); err != nil || rep.Cleared {
		t.Fatalf("maintain on nil store: %+v %v", rep, err)
	}
	if _, err := Open(" ", false); err == nil {
		t.Fatal("blank dir must be rejected")
	}
}

func TestMaintain_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()
	s, now := fakeClock(t, false)
	ctx := context.Background()
	urls := []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"}
	for _, u := range urls {
		if err := s.Put(ctx, u, Entry{}, []byte("body")); err != nil {
			t.Fatalf("put %s: %v", u, err)
		}
		*now = now.Add(time.Minute)
	}
	if _, err := s.Body(ctx, urls[0]); err != nil {
		t.Fatalf("touch: %v", err)
	}

	rep, err := s.Maintain(Policy{MaxEntries: 2})
	if err != nil {
		t.Fatalf("maintain: %v", err)
	}
	if rep.Evicted != 1 {
		t.Fatalf("evicted = %d, want 1", rep.Evicted)
	}
	if _, ok := s.Lookup(ctx, urls[1]); ok {
		t.Fatal("least recently used entry should be gone")
	}
	for _, u := range []string{urls[0], urls[2]} {
		if _, ok := s.Lookup(ctx, u); !ok {
			t.Fatalf("%s evicted", u)
		}
	}
}

func TestMaintain_ByteLimit(t *testing.T) {
	t.Parallel()
	s, now := fakeClock(t, false)
	ctx := context.Background()
	if err := s.Put(ctx, "https://b.example/big", Entry{}, []byte("1111111111")); err != nil {
		t.Fatal(err)
	}
	*now = now.Add(time.Minute)
	if err := s.Put(ctx, "https://b.example/small", Entry{}, []byte("22")); err != nil {
		t.Fatal(err)
	}
	rep, err := s.Maintain(Policy{MaxBytes: 5})
	if err != nil || rep.Evicted != 1 {
		t.Fatalf("maintain: %+v %v", rep, err)
	}
	if _, ok := s.Lookup(ctx, "https://b.example/small"); !ok {
		t.Fatal("newer entry within the limit should survive")
	}
}

func TestMaintain_ExpiresAndClears(t *testing.T) {
	t.Parallel()
	s, now := fakeClock(t, false)
	ctx := context.Background()
	if err := s.Put(ctx, "https://old.example/", Entry{}, []byte("old")); err != nil {
		t.Fatal(err)
	}
	*now = now.Add(48 * time.Hour)
	if err := s.Put(ctx, "https://new.example/", Entry{}, []byte("new")); err != nil {
		t.Fatal(err)
	}

	rep, err := s.Maintain(Policy{MaxAge: time.Hour})
	if err != nil || rep.Expired != 1 || rep.Evicted != 0 {
		t.Fatalf("maintain: %+v %v", rep, err)
	}
	if _, err := s.Body(ctx, "https://old.example/"); err == nil {
		t.Fatal("stale body still present")
	}
	if _, ok := s.Lookup(ctx, "https://new.example/"); !ok {
		t.Fatal("fresh entry purged")
	}

	rep, err = s.Maintain(Policy{Clear: true, MaxAge: time.Hour})
	if err != nil || !rep.Cleared {
		t.Fatalf("clear: %+v %v", rep, err)
	}
	if _, ok := s.Lookup(ctx, "https://new.example/"); ok {
		t.Fatal("cache should be empty after clear")
	}
	if info, err := os.Stat(s.Dir); err != nil || !info.IsDir() {
		t.Fatalf("cleared dir must be recreated: %v", err)
	}
}

func TestStore_StrictPerms(t *testing.T) {
	t.Parallel()
	s, _ := fakeClock(t, true)
	const u = "https://example.com/x"
	if err := s.Put(context.Background(), u, Entry{ETag: "etag"}, []byte("hello")); err != nil {
		t.Fatalf("put: %v", err)
	}
	shard, base := s.paths(u)
	for _, dir := range []string{s.Dir, shard} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if got := info.Mode().Perm(); got != 0o700 {
			t.Fatalf("%s mode = %o, want 0700", dir, got)
		}
	}
	for _, f := range []string{base + bodySuffix, base + metaSuffix} {
		info, err := os.Stat(f)
		if err != nil {
			t.Fatalf("stat %s: %v", f, err)
		}
		if got := info.Mode().Perm(); got != 0o600 {
			t.Fatalf("%s mode = %o, want 0600", f, got)
		}
	}
}
