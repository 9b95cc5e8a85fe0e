package extract

import (
    "regexp"
    "strings"

    "github.com/PuerkitoBio/goquery"

    "github.com/hyperifyio/studysync/internal/dates"
    "github.com/hyperifyio/studysync/internal/item"
    "github.com/hyperifyio/studysync/internal/textnorm"
)

// tableShape describes one tabular LMS listing.
type tableShape struct {
    tag           string
    hrefRe        *regexp.Regexp
    titleHeaderRe *regexp.Regexp
    dueHeaderRe   *regexp.Regexp
    // kind overrides the classifier when set.
    kind item.Kind
    // narrow picks the due part out of a cell such as an availability range.
    narrow func(string) string
}

var assignmentsShape = tableShape{
    tag:           item.TagAssignments,
    hrefRe:        regexp.MustCompile(`(?i)/d2l/lms/dropbox/`),
    titleHeaderRe: regexp.MustCompile(`assignment|folder|name|title`),
    dueHeaderRe:   regexp.MustCompile(`due`),
}

var quizzesShape = tableShape{
    tag:           item.TagQuizzes,
    hrefRe:        regexp.MustCompile(`(?i)/d2l/lms/quizzing/`),
    titleHeaderRe: regexp.MustCompile(`quiz|name|title`),
    dueHeaderRe:   regexp.MustCompile(`due|end date|end time|availability`),
    kind:          item.KindQuiz,
    narrow:        afterLastDeadlineWord,
}

var deadlineWordRe = regexp.MustCompile(`(?i)\b(?:until|ends?|due)\b`)

// afterLastDeadlineWord returns the text after the last "until"/"end"/"due"
// keyword, so "Available Sep 1 ... until Sep 19 ..." yields the closing date.
func afterLastDeadlineWord(s string) string {
    locs := deadlineWordRe.FindAllStringIndex(s, -1)
    if len(locs) == 0 {
        return s
    }
    return s[locs[len(locs)-1][1]:]
}

// AssignmentsTable scrapes the Assignments (dropbox) folder listing.
type AssignmentsTable struct {
    Env Env
}

func (AssignmentsTable) Name() string { return "assignments-table" }

func (a AssignmentsTable) Extract(p *Page, prefs Prefs) []item.Record {
    return scrapeTables(p, prefs, assignmentsShape, a.Env)
}

// QuizzesTable scrapes the Quizzes listing. Every row is a quiz regardless
// of its title.
type QuizzesTable struct {
    Env Env
}

func (QuizzesTable) Name() string { return "quizzes-table" }

func (q QuizzesTable) Extract(p *Page, prefs Prefs) []item.Record {
    return scrapeTables(p, prefs, quizzesShape, q.Env)
}

func scrapeTables(p *Page, prefs Prefs, shape tableShape, env Env) []item.Record {
    if p == nil || p.URL == nil || p.Doc == nil || !shape.hrefRe.MatchString(p.URL.String()) {
        return nil
    }
    var (
        seen item.Seen
        out  []item.Record
    )
    p.Doc.Find("table").Each(func(ti int, table *goquery.Selection) {
        var headers []string
        table.Find("thead th").Each(func(_ int, th *goquery.Selection) {
            headers = append(headers, strings.ToLower(textnorm.Clean(InnerText(th))))
        })
        iTitle := indexMatching(headers, shape.titleHeaderRe)
        iDue := indexMatching(headers, shape.dueHeaderRe)
        if iTitle < 0 || iDue < 0 {
            env.Logger.Debug().Str("extractor", shape.tag).Int("table", ti).Strs("headers", headers).Msg("table lacks title or due column; skipped")
            return
        }

        table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
            cells := tr.ChildrenFiltered("td, th")
            title := firstLine(InnerText(cells.Eq(iTitle)))
            due := textnorm.Clean(InnerText(cells.Eq(iDue)))
            if title == "" || due == "" {
                return
            }

            fragment := due
            if shape.narrow != nil {
                if n := shape.narrow(due); hasMonthDay(n) {
                    fragment = n
                }
            }
            month, day, ok := dates.FindMonthDay(fragment)
            if !ok {
                return
            }
            year, explicit := env.yearFor(fragment)
            at, ok := env.resolve(shape.tag, year, month, day, dates.FindTime(fragment), prefs.DefaultTime, explicit)
            if !ok {
                return
            }

            kind := shape.kind
            if kind == "" {
                kind = item.Classify(title)
            }
            uid := item.UID(shape.tag, year, month, day, title)
            if !seen.Add(uid) {
                return
            }
            out = append(out, item.Record{
                Title:     title,
                DueAt:     at,
                Kind:      kind,
                SourceUID: uid,
            })
        })
    })
    return out
}

func hasMonthDay(s string) bool {
    _, _, ok := dates.FindMonthDay(s)
    return ok
}

func indexMatching(headers []string, re *regexp.Regexp) int {
    for i, h := range headers {
        if re.MatchString(h) {
            return i
        }
    }
    return -1
}
