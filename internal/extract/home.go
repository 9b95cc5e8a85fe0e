package extract

import (
    "regexp"
    "strings"

    "github.com/PuerkitoBio/goquery"

    "github.com/hyperifyio/studysync/internal/dates"
    "github.com/hyperifyio/studysync/internal/item"
    "github.com/hyperifyio/studysync/internal/textnorm"
)

const (
    upcomingHeadingSelector   = "h1, h2, h3, div, span, strong"
    upcomingContainerSelector = `section, [role="region"], d2l-card, div[class*="widget"], div[id]`
    upcomingEntrySelector     = `li, [role="listitem"], div, article`
    upcomingItemSelector      = `li, [role="listitem"], article`
)

var (
    upcomingRe   = regexp.MustCompile(`(?i)upcoming\s+events`)
    weekdayRe    = regexp.MustCompile(`(?i)^(?:mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?,?$`)
    digitsOnlyRe = regexp.MustCompile(`^\d{1,2}$`)
    yearTokenRe  = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

// HomeUpcoming scrapes the "Upcoming events" widget on course and org home
// pages. It is the last resort and applies to any address.
type HomeUpcoming struct {
    Env Env
}

func (HomeUpcoming) Name() string { return "home-upcoming" }

func (h HomeUpcoming) Extract(p *Page, prefs Prefs) []item.Record {
    if p == nil || p.Doc == nil {
        return nil
    }
    heading := findUpcomingHeading(p.Doc.Selection)
    if heading == nil {
        return nil
    }
    container := heading.Parent().Closest(upcomingContainerSelector)
    if container.Length() == 0 {
        container = heading.Parent()
    }

    var (
        seen item.Seen
        out  []item.Record
    )
    for _, node := range upcomingEntries(container) {
        text := InnerText(node)
        month, day, ok := dates.FindMonthDay(text)
        if !ok {
            continue
        }
        year, explicit := h.Env.yearFor(text)
        due, ok := h.Env.resolve(item.TagHome, year, month, day, dates.FindTime(text), prefs.DefaultTime, explicit)
        if !ok {
            continue
        }

        title, course := titleAndCourse(textnorm.Lines(text))
        if title == "" {
            continue
        }
        if skipAvailability(title, prefs) {
            continue
        }
        uid := item.UID(item.TagHome, year, month, day, title)
        if !seen.Add(uid) {
            continue
        }
        out = append(out, item.Record{
            Title:     title,
            Course:    course,
            DueAt:     due,
            Kind:      item.Classify(title),
            SourceUID: uid,
        })
    }
    return out
}

// findUpcomingHeading returns the innermost element whose text mentions
// "upcoming events", so a page-wide wrapper div is never mistaken for it.
func findUpcomingHeading(root *goquery.Selection) *goquery.Selection {
    matches := func(_ int, s *goquery.Selection) bool {
        return upcomingRe.MatchString(s.Text())
    }
    var found *goquery.Selection
    root.Find(upcomingHeadingSelector).FilterFunction(matches).EachWithBreak(func(_ int, s *goquery.Selection) bool {
        if s.Find(upcomingHeadingSelector).FilterFunction(matches).Length() > 0 {
            return true
        }
        found = s
        return false
    })
    return found
}

// upcomingEntries returns the innermost elements under container whose text
// carries both a clock time and a month name. An entry that is the only one
// inside a list item is widened to that item, so sibling lines such as the
// course stay with it.
func upcomingEntries(container *goquery.Selection) []*goquery.Selection {
    isEntry := func(_ int, s *goquery.Selection) bool {
        t := InnerText(s)
        return dates.FindTime(t) != "" && dates.HasMonth(t)
    }
    var inner []*goquery.Selection
    container.Find(upcomingEntrySelector).FilterFunction(isEntry).Each(func(_ int, s *goquery.Selection) {
        if s.Find(upcomingEntrySelector).FilterFunction(isEntry).Length() > 0 {
            return
        }
        inner = append(inner, s)
    })
    out := make([]*goquery.Selection, 0, len(inner))
    for _, s := range inner {
        out = append(out, widenEntry(container, s, inner))
    }
    return out
}

func widenEntry(container, entry *goquery.Selection, entries []*goquery.Selection) *goquery.Selection {
    if entry.Is(upcomingItemSelector) {
        return entry
    }
    li := entry.ParentsUntilSelection(container).Filter(upcomingItemSelector).First()
    if li.Length() == 0 {
        return entry
    }
    n := 0
    for _, e := range entries {
        if li.Contains(e.Get(0)) {
            n++
        }
    }
    if n != 1 {
        return entry
    }
    return li
}

// titleAndCourse picks the first line that still has content once the
// month, day and time tokens are stripped; the next such line is the course.
func titleAndCourse(lines []string) (title, course string) {
    for _, line := range lines {
        s := stripDateTokens(line)
        if s == "" {
            continue
        }
        if title == "" {
            title = s
            continue
        }
        course = s
        break
    }
    return title, course
}

func stripDateTokens(line string) string {
    if weekdayRe.MatchString(line) {
        return ""
    }
    hadMonth := dates.HasMonth(line)
    s := dates.StripMonth(line)
    if hadMonth || digitsOnlyRe.MatchString(line) {
        s = dates.StripDay(s)
        s = yearTokenRe.ReplaceAllString(s, "")
    }
    s = dates.StripTime(s)
    s = textnorm.Clean(s)
    s = strings.TrimLeft(s, "-–—•:, ")
    return textnorm.Clean(s)
}
