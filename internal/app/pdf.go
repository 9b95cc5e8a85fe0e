package app

import (
    "fmt"
    "sort"
    "time"

    "github.com/jung-kurt/gofpdf"

    "github.com/hyperifyio/studysync/internal/item"
)

// sortByDue orders records by due time, then title, without touching the input.
func sortByDue(records []item.Record) []item.Record {
    out := append([]item.Record(nil), records...)
    sort.SliceStable(out, func(i, j int) bool {
        if !out[i].DueAt.Equal(out[j].DueAt) {
            return out[i].DueAt.Before(out[j].DueAt)
        }
        return out[i].Title < out[j].Title
    })
    return out
}

// writeAgendaPDF renders records as a printable agenda grouped by day, with
// times shown in loc. Each line carries the time, kind, title and course.
func writeAgendaPDF(records []item.Record, loc *time.Location, generated time.Time, outPath string) error {
    if loc == nil {
        loc = time.Local
    }
    pdf := gofpdf.New("P", "mm", "A4", "")
    pdf.SetTitle("StudySync agenda", true)
    pdf.SetFont("Helvetica", "B", 16)
    pdf.AddPage()
    pdf.CellFormat(0, 10, "Upcoming deadlines", "", 1, "L", false, 0, "")
    pdf.SetFont("Helvetica", "", 9)
    pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s, times in %s", generated.In(loc).Format("Jan 2, 2006 15:04"), loc.String()), "", 1, "L", false, 0, "")
    pdf.Ln(3)

    // gofpdf core fonts are cp1252; translate so accented course names survive
    tr := pdf.UnicodeTranslatorFromDescriptor("")
    var day string
    for _, r := range sortByDue(records) {
        local := r.DueAt.In(loc)
        if d := local.Format("Monday, January 2, 2006"); d != day {
            day = d
            pdf.Ln(2)
            pdf.SetFont("Helvetica", "B", 12)
            pdf.CellFormat(0, 8, day, "B", 1, "L", false, 0, "")
        }
        pdf.SetFont("Helvetica", "", 10)
        pdf.CellFormat(18, 6, local.Format("15:04"), "", 0, "L", false, 0, "")
        pdf.CellFormat(24, 6, string(r.Kind), "", 0, "L", false, 0, "")
        line := r.Title
        if r.Course != "" {
            line += "  (" + r.Course + ")"
        }
        pdf.MultiCell(0, 6, tr(line), "", "L", false)
    }
    if len(records) == 0 {
        pdf.SetFont("Helvetica", "I", 10)
        pdf.CellFormat(0, 8, "Nothing due.", "", 1, "L", false, 0, "")
    }
    return pdf.OutputFileAndClose(outPath)
}
