package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry describes one saved page snapshot. The validators let the fetcher
// revalidate with the LMS instead of downloading the page again.
type Entry struct {
	URL          string    `json:"url"`
	FinalURL     string    `json:"final_url,omitempty"`
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Rendered     bool      `json:"rendered,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Store keeps snapshots on disk as <key>.meta.json and <key>.body where key
// is sha256(url). Snapshots carry session-bound course data, so StrictPerms
// writes them owner-only.
type Store struct {
	Dir         string
	StrictPerms bool
	// Now defaults to time.Now.
	Now func() time.Time
}

var ErrNotConfigured = errors.New("cache dir not configured")

func (s *Store) ensureDir() error {
	if s == nil || s.Dir == "" {
		return ErrNotConfigured
	}
	mode := os.FileMode(0o755)
	if s.StrictPerms {
		mode = 0o700
	}
	if err := os.MkdirAll(s.Dir, mode); err != nil {
		return err
	}
	if s.StrictPerms {
		return os.Chmod(s.Dir, 0o700)
	}
	return nil
}

func (s *Store) fileMode() os.FileMode {
	if s.StrictPerms {
		return 0o600
	}
	return 0o644
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Key returns the file stem used for url.
func Key(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}

func (s *Store) metaPath(key string) string { return filepath.Join(s.Dir, key+".meta.json") }
func (s *Store) bodyPath(key string) string { return filepath.Join(s.Dir, key+".body") }

// LoadMeta returns the snapshot metadata for url if present.
func (s *Store) LoadMeta(_ context.Context, url string) (*Entry, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.metaPath(Key(url)))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var e Entry
	if err := json.NewDecoder(f).Decode(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// LoadBody returns the saved page body for url.
func (s *Store) LoadBody(_ context.Context, url string) ([]byte, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	return os.ReadFile(s.bodyPath(Key(url)))
}

// Load returns metadata and body together, or an error when either is missing.
func (s *Store) Load(ctx context.Context, url string) (*Entry, []byte, error) {
	meta, err := s.LoadMeta(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	body, err := s.LoadBody(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return meta, body, nil
}

// Fresh reports whether a snapshot of url exists and is younger than maxAge.
// A non-positive maxAge never counts as fresh.
func (s *Store) Fresh(ctx context.Context, url string, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	meta, err := s.LoadMeta(ctx, url)
	if err != nil {
		return false
	}
	return s.now().Sub(meta.SavedAt) <= maxAge
}

// Save writes body and its metadata. e.URL selects the key; SavedAt is
// stamped here.
func (s *Store) Save(_ context.Context, e Entry, body []byte) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if e.URL == "" {
		return errors.New("snapshot url is empty")
	}
	key := Key(e.URL)
	// Body first so a meta file never points at a missing body.
	if err := os.WriteFile(s.bodyPath(key), body, s.fileMode()); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	e.SavedAt = s.now()
	tmp := s.metaPath(key) + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, s.fileMode())
	if err != nil {
		return fmt.Errorf("create meta: %w", err)
	}
	if err := json.NewEncoder(f).Encode(&e); err != nil {
		f.Close()
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.metaPath(key))
}

// Touch restamps SavedAt after a 304 revalidation.
func (s *Store) Touch(ctx context.Context, url string) error {
	meta, err := s.LoadMeta(ctx, url)
	if err != nil {
		return err
	}
	body, err := s.LoadBody(ctx, url)
	if err != nil {
		return err
	}
	return s.Save(ctx, *meta, body)
}
