// Package dates resolves loosely formatted month/day/time fragments found on
// LMS pages into absolute UTC timestamps.
//
// Resolution is strict: a fragment that does not name a real calendar day
// (Feb 30, Apr 31) or a real clock time is rejected rather than rolled over.
// Callers treat a rejected fragment as "skip this row".
package dates

import (
    "regexp"
    "strconv"
    "strings"
    "time"

    "github.com/hyperifyio/studysync/internal/textnorm"
)

// DefaultTime is used when neither an explicit nor a fallback time-of-day is
// available.
const DefaultTime = "23:59"

// ISOLayout matches what browsers emit from Date.prototype.toISOString and
// what the ingest API already stores.
const ISOLayout = "2006-01-02T15:04:05.000Z"

var (
    monthTokenRe = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\b`)
    monthDayRe   = regexp.MustCompile(`(?i)\b((?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*)\.?\s+(\d{1,2})\b`)
    dayRe        = regexp.MustCompile(`\b([1-9]|[12]\d|3[01])\b`)
    timeRe       = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\s?(?:AM|PM)\b`)
    // the year must follow the month and day: "Sep 19, 2025", "Sep 19 2025"
    yearRe       = regexp.MustCompile(`(?i)\b((?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*)\.?\s+\d{1,2},?\s+((?:19|20)\d{2})\b`)
    clockRe      = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(?::(\d{2}))?\s*(AM|PM|A\.M\.|P\.M\.)?$`)
)

var fullMonths = [...]string{
    "january", "february", "march", "april", "may", "june",
    "july", "august", "september", "october", "november", "december",
}

// MonthNumber maps an English month name or abbreviation ("Sep", "sept",
// "September") to 1..12. Unknown tokens yield 0.
func MonthNumber(tok string) int {
    t := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(tok), "."))
    if len(t) < 3 {
        return 0
    }
    for i, name := range fullMonths {
        if strings.HasPrefix(name, t) {
            return i + 1
        }
    }
    return 0
}

// MonthToken returns the first month-name token found in text along with its
// month number, or ("", 0) when none is present.
func MonthToken(text string) (string, int) {
    for _, loc := range monthTokenRe.FindAllStringIndex(text, -1) {
        tok := text[loc[0]:loc[1]]
        if n := MonthNumber(tok); n > 0 {
            return tok, n
        }
    }
    return "", 0
}

// HasMonth reports whether text contains a recognizable month token.
func HasMonth(text string) bool {
    _, n := MonthToken(text)
    return n > 0
}

// FindMonthDay extracts a month and day-of-month from text. A day number that
// directly follows the month token is preferred ("Oct 2, 11:59 PM"); otherwise
// the first standalone 1..31 number that is not part of a clock time is used.
func FindMonthDay(text string) (month, day int, ok bool) {
    for _, m := range monthDayRe.FindAllStringSubmatch(text, -1) {
        mon := MonthNumber(m[1])
        d, err := strconv.Atoi(m[2])
        if mon > 0 && err == nil && d >= 1 && d <= 31 {
            return mon, d, true
        }
    }
    _, mon := MonthToken(text)
    if mon == 0 {
        return 0, 0, false
    }
    d, ok := FindDay(text)
    if !ok {
        return 0, 0, false
    }
    return mon, d, true
}

// FindDay returns the first standalone 1..31 number in text, skipping digits
// that belong to an h:mm clock time.
func FindDay(text string) (int, bool) {
    _, idx := findDayIndex(text)
    if idx == nil {
        return 0, false
    }
    d, _ := strconv.Atoi(text[idx[0]:idx[1]])
    return d, true
}

func findDayIndex(text string) (string, []int) {
    for _, loc := range dayRe.FindAllStringIndex(text, -1) {
        if loc[0] > 0 && text[loc[0]-1] == ':' {
            continue
        }
        if loc[1] < len(text) && text[loc[1]] == ':' {
            continue
        }
        return text[loc[0]:loc[1]], loc
    }
    return "", nil
}

// StripDay removes the first standalone day number from text, using the same
// rules as FindDay.
func StripDay(text string) string {
    _, loc := findDayIndex(text)
    if loc == nil {
        return text
    }
    return text[:loc[0]] + text[loc[1]:]
}

// FindTime returns the first 12-hour "h:mm AM/PM" token in text, or "".
func FindTime(text string) string {
    return timeRe.FindString(text)
}

// StripTime removes the first clock token from text.
func StripTime(text string) string {
    loc := timeRe.FindStringIndex(text)
    if loc == nil {
        return text
    }
    return text[:loc[0]] + text[loc[1]:]
}

// StripMonth removes the first month token from text.
func StripMonth(text string) string {
    for _, loc := range monthTokenRe.FindAllStringIndex(text, -1) {
        if MonthNumber(text[loc[0]:loc[1]]) > 0 {
            return text[:loc[0]] + text[loc[1]:]
        }
    }
    return text
}

// FindYear returns the four-digit year written right after a month and day.
// Other four-digit numbers, such as course codes, are not years.
func FindYear(text string) (int, bool) {
    for _, m := range yearRe.FindAllStringSubmatch(text, -1) {
        if MonthNumber(m[1]) == 0 {
            continue
        }
        if y, err := strconv.Atoi(m[2]); err == nil {
            return y, true
        }
    }
    return 0, false
}

// ParseClock parses a time-of-day in 12-hour ("11:59 PM", "11:59pm", "3 PM")
// or 24-hour ("23:59", "23:59:30") form.
func ParseClock(s string) (hour, minute, sec int, ok bool) {
    s = strings.ToUpper(textnorm.Clean(s))
    m := clockRe.FindStringSubmatch(s)
    if m == nil {
        return 0, 0, 0, false
    }
    meridiem := strings.ReplaceAll(m[4], ".", "")
    if m[2] == "" && meridiem == "" {
        // a bare number is not a time
        return 0, 0, 0, false
    }
    hour, _ = strconv.Atoi(m[1])
    if m[2] != "" {
        minute, _ = strconv.Atoi(m[2])
    }
    if m[3] != "" {
        sec, _ = strconv.Atoi(m[3])
    }
    if minute > 59 || sec > 59 {
        return 0, 0, 0, false
    }
    switch meridiem {
    case "AM", "PM":
        if hour < 1 || hour > 12 {
            return 0, 0, 0, false
        }
        if hour == 12 {
            hour = 0
        }
        if meridiem == "PM" {
            hour += 12
        }
    default:
        if hour > 23 {
            return 0, 0, 0, false
        }
    }
    return hour, minute, sec, true
}

// ValidClock reports whether s is an accepted time-of-day.
func ValidClock(s string) bool {
    _, _, _, ok := ParseClock(s)
    return ok
}

// Resolve builds an absolute timestamp from calendar parts. The time of day
// is timeText when non-blank, else fallback, else DefaultTime. The wall clock
// is interpreted in loc (time.Local when nil) and returned in UTC. ok is false
// when the parts do not form a real date and time.
func Resolve(year, month, day int, timeText, fallback string, loc *time.Location) (time.Time, bool) {
    clock := textnorm.Clean(timeText)
    if clock == "" {
        clock = textnorm.Clean(fallback)
    }
    if clock == "" {
        clock = DefaultTime
    }
    if month < 1 || month > 12 || day < 1 || day > 31 {
        return time.Time{}, false
    }
    h, m, s, ok := ParseClock(clock)
    if !ok {
        return time.Time{}, false
    }
    if loc == nil {
        loc = time.Local
    }
    t := time.Date(year, time.Month(month), day, h, m, s, 0, loc)
    // time.Date normalizes Feb 30 into March; reject instead.
    if t.Year() != year || int(t.Month()) != month || t.Day() != day {
        return time.Time{}, false
    }
    return t.UTC(), true
}

// ISO formats t in UTC with millisecond precision.
func ISO(t time.Time) string {
    return t.UTC().Format(ISOLayout)
}
