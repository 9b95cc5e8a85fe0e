package cache

import (
    "context"
    "os"
    "path/filepath"
    "testing"
    "time"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestStore_SaveLoadRoundTrip(t *testing.T) {
    t.Parallel()
    s := &Store{Dir: t.TempDir()}
    ctx := context.Background()
    e := Entry{URL: "https://lms.example/d2l/le/calendar/1", FinalURL: "https://lms.example/d2l/le/calendar/1/list", ContentType: "text/html", ETag: `"v1"`}
    if err := s.Save(ctx, e, []byte("<html>cal</html>")); err != nil {
        t.Fatalf("save: %v", err)
    }
    meta, body, err := s.Load(ctx, e.URL)
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if string(body) != "<html>cal</html>" {
        t.Fatalf("body = %q", body)
    }
    if meta.FinalURL != e.FinalURL || meta.ETag != e.ETag {
        t.Fatalf("meta mismatch: %+v", meta)
    }
    if meta.SavedAt.IsZero() {
        t.Fatalf("SavedAt not stamped")
    }
}

func TestStore_MissingEntry(t *testing.T) {
    t.Parallel()
    s := &Store{Dir: t.TempDir()}
    if _, _, err := s.Load(context.Background(), "https://nope.example/"); err == nil {
        t.Fatalf("expected error for missing snapshot")
    }
}

func TestStore_NotConfigured(t *testing.T) {
    t.Parallel()
    var s *Store
    if err := s.Save(context.Background(), Entry{URL: "x"}, nil); err != ErrNotConfigured {
        t.Fatalf("err = %v, want ErrNotConfigured", err)
    }
}

func TestStore_Fresh(t *testing.T) {
    t.Parallel()
    base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
    s := &Store{Dir: t.TempDir(), Now: fixedClock(base)}
    ctx := context.Background()
    url := "https://lms.example/d2l/home/1"
    if err := s.Save(ctx, Entry{URL: url}, []byte("x")); err != nil {
        t.Fatalf("save: %v", err)
    }
    s.Now = fixedClock(base.Add(30 * time.Minute))
    if !s.Fresh(ctx, url, time.Hour) {
        t.Fatalf("expected fresh within an hour")
    }
    if s.Fresh(ctx, url, 10*time.Minute) {
        t.Fatalf("expected stale after ten minutes")
    }
    if s.Fresh(ctx, url, 0) {
        t.Fatalf("zero max age must never be fresh")
    }
}

func TestStore_StrictPerms(t *testing.T) {
    t.Parallel()
    dir := filepath.Join(t.TempDir(), "pages")
    s := &Store{Dir: dir, StrictPerms: true}
    url := "https://lms.example/x"
    if err := s.Save(context.Background(), Entry{URL: url, ContentType: "text/html"}, []byte("hello")); err != nil {
        t.Fatalf("save: %v", err)
    }
    info, err := os.Stat(dir)
    if err != nil {
        t.Fatalf("stat dir: %v", err)
    }
    if got := info.Mode() & 0o777; got != 0o700 {
        t.Fatalf("dir mode = %o, want 0700", got)
    }
    key := Key(url)
    for _, f := range []string{filepath.Join(dir, key+".body"), filepath.Join(dir, key+".meta.json")} {
        finfo, err := os.Stat(f)
        if err != nil {
            t.Fatalf("stat %s: %v", f, err)
        }
        if got := finfo.Mode() & 0o777; got != 0o600 {
            t.Fatalf("%s mode = %o, want 0600", f, got)
        }
    }
}

func TestPurgeByAge(t *testing.T) {
    t.Parallel()
    dir := t.TempDir()
    base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
    s := &Store{Dir: dir, Now: fixedClock(base)}
    ctx := context.Background()
    if err := s.Save(ctx, Entry{URL: "https://a/old"}, []byte("old")); err != nil {
        t.Fatalf("save old: %v", err)
    }
    s.Now = fixedClock(base.Add(48 * time.Hour))
    if err := s.Save(ctx, Entry{URL: "https://a/new"}, []byte("new")); err != nil {
        t.Fatalf("save new: %v", err)
    }
    removed, err := PurgeByAge(dir, 24*time.Hour, base.Add(49*time.Hour))
    if err != nil {
        t.Fatalf("purge: %v", err)
    }
    if removed != 1 {
        t.Fatalf("removed = %d, want 1", removed)
    }
    if _, err := os.Stat(filepath.Join(dir, Key("https://a/old")+".body")); !os.IsNotExist(err) {
        t.Fatalf("old body should be gone, stat err = %v", err)
    }
    if _, _, err := s.Load(ctx, "https://a/new"); err != nil {
        t.Fatalf("new snapshot should survive: %v", err)
    }
}

func TestPurgeByAge_MissingDir(t *testing.T) {
    t.Parallel()
    n, err := PurgeByAge(filepath.Join(t.TempDir(), "absent"), time.Hour, time.Now())
    if err != nil || n != 0 {
        t.Fatalf("got %d, %v", n, err)
    }
}

func TestClearDir(t *testing.T) {
    t.Parallel()
    dir := t.TempDir()
    s := &Store{Dir: dir}
    if err := s.Save(context.Background(), Entry{URL: "https://a/1"}, []byte("x")); err != nil {
        t.Fatalf("save: %v", err)
    }
    if err := ClearDir(dir); err != nil {
        t.Fatalf("clear: %v", err)
    }
    entries, err := os.ReadDir(dir)
    if err != nil {
        t.Fatalf("readdir: %v", err)
    }
    if len(entries) != 0 {
        t.Fatalf("expected empty dir, got %d entries", len(entries))
    }
    if err := ClearDir("  "); err == nil {
        t.Fatalf("expected error for blank dir")
    }
}
