package extract

import (
    "regexp"
    "strconv"

    "github.com/PuerkitoBio/goquery"

    "github.com/hyperifyio/studysync/internal/dates"
    "github.com/hyperifyio/studysync/internal/item"
    "github.com/hyperifyio/studysync/internal/textnorm"
)

var (
    calendarPathRe = regexp.MustCompile(`(?i)/d2l/le/calendar/`)
    // "Sep 19, 2025 11:59 PM"
    calendarDateTimeRe = regexp.MustCompile(`(?i)\b((?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*)\.?\s+(\d{1,2}),\s+(\d{4})\s+(\d{1,2}:\d{2}\s?(?:AM|PM))\b`)
)

const calendarRowSelector = `li, [role="listitem"], article, d2l-list-item`

// CalendarList scrapes the Calendar > List view, where each row carries a
// full "Mon D, YYYY h:mm AM/PM" stamp.
type CalendarList struct {
    Env Env
}

func (CalendarList) Name() string { return "calendar-list" }

func (c CalendarList) Extract(p *Page, prefs Prefs) []item.Record {
    if p == nil || p.URL == nil || p.Doc == nil || !calendarPathRe.MatchString(p.URL.Path) {
        return nil
    }
    var (
        seen item.Seen
        out  []item.Record
    )
    p.Doc.Find(calendarRowSelector).Each(func(_ int, row *goquery.Selection) {
        text := InnerText(row)
        m := calendarDateTimeRe.FindStringSubmatchIndex(text)
        if m == nil {
            return
        }
        // Day-group wrappers hold several events; their own rows are scraped instead.
        if len(calendarDateTimeRe.FindAllStringIndex(text, 2)) > 1 && hasMatchingRow(row) {
            return
        }

        title := firstLine(text[:m[0]])
        if title == "" {
            title = textnorm.Clean(InnerText(row.Find(`a, [role="link"]`).First()))
        }
        if title == "" {
            return
        }

        month := dates.MonthNumber(text[m[2]:m[3]])
        day, _ := strconv.Atoi(text[m[4]:m[5]])
        year, _ := strconv.Atoi(text[m[6]:m[7]])
        clock := text[m[8]:m[9]]
        due, ok := c.Env.resolve(item.TagCalendar, year, month, day, clock, prefs.DefaultTime, true)
        if !ok {
            return
        }

        var course string
        if line2 := textnorm.Line(text, 1); line2 != "" && line2 != title && !looksLikeDateTime(line2) {
            course = line2
        }

        if skipAvailability(title, prefs) {
            return
        }

        uid := item.UID(item.TagCalendar, year, month, day, title)
        if !seen.Add(uid) {
            return
        }
        out = append(out, item.Record{
            Title:     title,
            Course:    course,
            DueAt:     due,
            Kind:      item.Classify(title),
            SourceUID: uid,
        })
    })
    return out
}

func hasMatchingRow(row *goquery.Selection) bool {
    return row.Find(calendarRowSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
        return calendarDateTimeRe.MatchString(InnerText(s))
    }).Length() > 0
}

func looksLikeDateTime(s string) bool {
    return calendarDateTimeRe.MatchString(s) || dates.FindTime(s) != ""
}
