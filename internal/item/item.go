// Package item defines the canonical record produced by every page
// extractor, along with the title classifier and the identity key used to
// suppress duplicates within one scrape pass.
package item

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hyperifyio/studysync/internal/dates"
)

// Kind is the category of a dated academic item.
type Kind string

const (
	KindExam       Kind = "exam"
	KindQuiz       Kind = "quiz"
	KindLab        Kind = "lab"
	KindProject    Kind = "project"
	KindAssignment Kind = "assignment"
)

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindExam, KindQuiz, KindLab, KindProject, KindAssignment:
		return k, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// Identity key prefixes, one per extractor variant.
const (
	TagCalendar    = "cal"
	TagAssignments = "assign"
	TagQuizzes     = "quiz"
	TagHome        = "home"
)

const uidTitleRunes = 64

// Record is one dated item ready for delivery. Course is empty when no
// secondary line was confidently identified.
type Record struct {
	Title     string
	Course    string
	DueAt     time.Time
	Kind      Kind
	SourceUID string
}

// ErrInvalidRecord is wrapped by Validate failures.
var ErrInvalidRecord = errors.New("invalid record")

// Validate checks the invariants every emitted record must hold.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidRecord)
	}
	if r.DueAt.IsZero() {
		return fmt.Errorf("%w: unresolved due date for %q", ErrInvalidRecord, r.Title)
	}
	if _, err := ParseKind(string(r.Kind)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

// wireRecord is the shape accepted by the bulk ingest endpoint.
type wireRecord struct {
	Title     string  `json:"title"`
	Course    *string `json:"course"`
	DueAt     string  `json:"due_at"`
	Kind      Kind    `json:"kind"`
	SourceUID string  `json:"source_uid"`
}

// MarshalJSON encodes the record in the ingest wire shape: due_at as a UTC
// ISO-8601 string with milliseconds and course as null when absent.
func (r Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{
		Title:     r.Title,
		DueAt:     dates.ISO(r.DueAt),
		Kind:      r.Kind,
		SourceUID: r.SourceUID,
	}
	if r.Course != "" {
		c := r.Course
		w.Course = &c
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the wire shape written by MarshalJSON.
func (r *Record) UnmarshalJSON(b []byte) error {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	due, err := time.Parse(time.RFC3339Nano, w.DueAt)
	if err != nil {
		return fmt.Errorf("parse due_at: %w", err)
	}
	*r = Record{Title: w.Title, DueAt: due.UTC(), Kind: w.Kind, SourceUID: w.SourceUID}
	if w.Course != nil {
		r.Course = *w.Course
	}
	return nil
}

// UID builds the intra-pass identity key:
// tag-year-month-day-<first 64 runes of the lowercased title>.
func UID(tag string, year, month, day int, title string) string {
	t := []rune(strings.ToLower(title))
	if len(t) > uidTitleRunes {
		t = t[:uidTitleRunes]
	}
	var b strings.Builder
	b.WriteString(tag)
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(year))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(month))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(day))
	b.WriteByte('-')
	b.WriteString(string(t))
	return b.String()
}

// Seen tracks identity keys emitted during a single extractor pass. The zero
// value is ready to use.
type Seen struct {
	keys map[string]struct{}
}

// Add records uid and reports whether it was new. A repeat returns false so
// the earliest occurrence wins.
func (s *Seen) Add(uid string) bool {
	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}
	if _, dup := s.keys[uid]; dup {
		return false
	}
	s.keys[uid] = struct{}{}
	return true
}

// Len returns the number of distinct keys recorded.
func (s *Seen) Len() int { return len(s.keys) }
