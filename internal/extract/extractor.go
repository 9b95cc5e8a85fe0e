package extract

import (
    "regexp"
    "time"

    "github.com/rs/zerolog"

    "github.com/hyperifyio/studysync/internal/dates"
    "github.com/hyperifyio/studysync/internal/item"
)

// Prefs is the read-only preferences snapshot supplied with every scrape.
type Prefs struct {
    // IncludeAll keeps "available" notices that are not framed as due.
    IncludeAll bool
    // DefaultTime is the time-of-day used when a row has no explicit time.
    DefaultTime string
}

// Extractor is one page-shape-specific strategy. Extract must be
// deterministic, must not mutate the page, and returns nil when the page
// does not have the shape it understands.
type Extractor interface {
    Name() string
    Extract(p *Page, prefs Prefs) []item.Record
}

// DefaultStaleAfter is how far in the past a due date inferred with the
// current year may lie before it is reported as a likely year-boundary
// misdate.
const DefaultStaleAfter = 120 * 24 * time.Hour

// Env carries what extractors need from the outside world: the clock that
// supplies the current year, the zone wall-clock times are read in, and a
// logger.
type Env struct {
    Now        func() time.Time
    Location   *time.Location
    Logger     zerolog.Logger
    StaleAfter time.Duration
}

// NewEnv returns an Env using the system clock, time.Local and a no-op logger.
func NewEnv() Env {
    return Env{Now: time.Now, Location: time.Local, Logger: zerolog.Nop(), StaleAfter: DefaultStaleAfter}
}

func (e Env) now() time.Time {
    if e.Now == nil {
        return time.Now()
    }
    return e.Now()
}

func (e Env) location() *time.Location {
    if e.Location == nil {
        return time.Local
    }
    return e.Location
}

func (e Env) currentYear() int {
    return e.now().In(e.location()).Year()
}

// yearFor returns the explicit year in fragment, or the current year.
func (e Env) yearFor(fragment string) (int, bool) {
    if y, ok := dates.FindYear(fragment); ok {
        return y, true
    }
    return e.currentYear(), false
}

// resolve wraps dates.Resolve with logging. An inferred year that puts the
// item far in the past is flagged, never silently rolled forward.
func (e Env) resolve(tag string, year, month, day int, clock, fallback string, explicitYear bool) (time.Time, bool) {
    due, ok := dates.Resolve(year, month, day, clock, fallback, e.location())
    if !ok {
        e.Logger.Debug().Str("extractor", tag).Int("year", year).Int("month", month).Int("day", day).Str("time", clock).Msg("unresolvable date; row skipped")
        return time.Time{}, false
    }
    if !explicitYear && e.StaleAfter > 0 && e.now().Sub(due) > e.StaleAfter {
        e.Logger.Warn().Str("extractor", tag).Str("due_at", dates.ISO(due)).Msg("possible year-boundary misdate")
    }
    return due, true
}

var (
    availableRe = regexp.MustCompile(`(?i)available`)
    dueWordRe   = regexp.MustCompile(`(?i)due`)
)

// skipAvailability reports whether a title is a bare availability notice
// that should be dropped unless the user asked for everything.
func skipAvailability(title string, prefs Prefs) bool {
    return !prefs.IncludeAll && availableRe.MatchString(title) && !dueWordRe.MatchString(title)
}
