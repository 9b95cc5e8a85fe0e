package dates

import (
    "testing"
    "time"
)

func mustLoad(t *testing.T, name string) *time.Location {
    t.Helper()
    loc, err := time.LoadLocation(name)
    if err != nil {
        t.Skipf("tzdata for %s unavailable: %v", name, err)
    }
    return loc
}

func TestResolve_ExplicitTimeWins(t *testing.T) {
    got, ok := Resolve(2025, 9, 19, "11:59 PM", "08:00", time.UTC)
    if !ok {
        t.Fatalf("expected resolution to succeed")
    }
    if ISO(got) != "2025-09-19T23:59:00.000Z" {
        t.Fatalf("unexpected timestamp: %s", ISO(got))
    }
}

func TestResolve_FallbackThenDefault(t *testing.T) {
    got, ok := Resolve(2025, 10, 2, "", "9:30 AM", time.UTC)
    if !ok || ISO(got) != "2025-10-02T09:30:00.000Z" {
        t.Fatalf("fallback time not applied: %v %s", ok, ISO(got))
    }
    got, ok = Resolve(2025, 10, 2, " ", "", time.UTC)
    if !ok || ISO(got) != "2025-10-02T23:59:00.000Z" {
        t.Fatalf("default time not applied: %v %s", ok, ISO(got))
    }
}

func TestResolve_ConvertsLocalToUTC(t *testing.T) {
    loc := mustLoad(t, "America/Toronto")
    got, ok := Resolve(2025, 9, 19, "11:59 PM", "", loc)
    if !ok {
        t.Fatalf("expected success")
    }
    // EDT is UTC-4 in September
    if ISO(got) != "2025-09-20T03:59:00.000Z" {
        t.Fatalf("unexpected UTC conversion: %s", ISO(got))
    }
}

func TestResolve_StrictCalendar(t *testing.T) {
    cases := []struct {
        y, m, d int
    }{
        {2025, 2, 30},
        {2025, 4, 31},
        {2025, 2, 29},
        {2025, 13, 1},
        {2025, 0, 10},
        {2025, 5, 0},
        {2025, 5, 32},
    }
    for _, c := range cases {
        if _, ok := Resolve(c.y, c.m, c.d, "", "", time.UTC); ok {
            t.Fatalf("expected %d-%d-%d to be rejected", c.y, c.m, c.d)
        }
    }
    if _, ok := Resolve(2024, 2, 29, "", "", time.UTC); !ok {
        t.Fatalf("leap day 2024-02-29 should resolve")
    }
}

func TestResolve_RejectsBadTime(t *testing.T) {
    for _, tt := range []string{"25:00", "13:00 PM", "0:30 AM", "noon", "7", "11:60"} {
        if _, ok := Resolve(2025, 9, 19, tt, "", time.UTC); ok {
            t.Fatalf("expected time %q to be rejected", tt)
        }
    }
}

func TestResolve_OutputAlwaysParsesAsISO(t *testing.T) {
    for m := 1; m <= 12; m++ {
        for d := 1; d <= 31; d++ {
            got, ok := Resolve(2025, m, d, "", "", time.UTC)
            if !ok {
                continue
            }
            if _, err := time.Parse(time.RFC3339, ISO(got)); err != nil {
                t.Fatalf("ISO output %q does not parse: %v", ISO(got), err)
            }
        }
    }
}

func TestParseClock_Forms(t *testing.T) {
    cases := map[string][2]int{
        "11:59 PM": {23, 59},
        "11:59pm":  {23, 59},
        "12:00 AM": {0, 0},
        "12:15 PM": {12, 15},
        "3 PM":     {15, 0},
        "23:59":    {23, 59},
        "7:05":     {7, 5},
        "8:00 a.m.": {8, 0},
    }
    for in, want := range cases {
        h, m, _, ok := ParseClock(in)
        if !ok || h != want[0] || m != want[1] {
            t.Fatalf("ParseClock(%q) = %d:%d ok=%v; want %d:%d", in, h, m, ok, want[0], want[1])
        }
    }
}

func TestMonthNumber(t *testing.T) {
    cases := map[string]int{"Sep": 9, "sept": 9, "September": 9, "DEC": 12, "may": 5, "Ma": 0, "Marching": 0, "": 0}
    for in, want := range cases {
        if got := MonthNumber(in); got != want {
            t.Fatalf("MonthNumber(%q) = %d; want %d", in, got, want)
        }
    }
}

func TestFindMonthDay(t *testing.T) {
    cases := []struct {
        in       string
        mon, day int
        ok       bool
    }{
        {"Oct 2, 11:59 PM", 10, 2, true},
        {"Sep 19, 2025 11:59 PM", 9, 19, true},
        {"11:59 PM on 5 March", 3, 5, true},
        {"Due September 30", 9, 30, true},
        {"11:59 PM", 0, 0, false},
        {"Oct", 0, 0, false},
    }
    for _, c := range cases {
        mon, day, ok := FindMonthDay(c.in)
        if ok != c.ok || mon != c.mon || day != c.day {
            t.Fatalf("FindMonthDay(%q) = %d,%d,%v; want %d,%d,%v", c.in, mon, day, ok, c.mon, c.day, c.ok)
        }
    }
}

func TestFindTimeAndYear(t *testing.T) {
    if got := FindTime("Ends Oct 2, 2025 11:59 PM EDT"); got != "11:59 PM" {
        t.Fatalf("FindTime = %q", got)
    }
    if got := FindTime("Oct 2"); got != "" {
        t.Fatalf("expected no time, got %q", got)
    }
    if y, ok := FindYear("Oct 2, 2026 11:59 PM"); !ok || y != 2026 {
        t.Fatalf("FindYear = %d,%v", y, ok)
    }
    if _, ok := FindYear("Oct 2, 11:59 PM"); ok {
        t.Fatalf("expected no year")
    }
    if y, ok := FindYear("Sep 22 2025 - Problem Set 3"); !ok || y != 2025 {
        t.Fatalf("FindYear without comma = %d,%v", y, ok)
    }
    if y, ok := FindYear("SEP 22 - Problem Set 3 11:59 PM\nECON 2010"); ok {
        t.Fatalf("course code taken as year: %d", y)
    }
}

func TestStripTokens(t *testing.T) {
    s := StripTime(StripDay(StripMonth("SEP 19 Essay 1 11:59 PM")))
    if s != "  Essay 1 " {
        t.Fatalf("unexpected stripped text: %q", s)
    }
}
