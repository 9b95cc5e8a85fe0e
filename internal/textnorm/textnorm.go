// Package textnorm normalizes free text scraped from rendered pages.
package textnorm

import (
    "strings"

    "golang.org/x/text/unicode/norm"
)

// Clean applies NFKC compatibility normalization and collapses every
// whitespace run, newlines included, into a single space. The result is
// trimmed. Clean never fails.
func Clean(s string) string {
    if s == "" {
        return ""
    }
    // NFKC folds NBSP, narrow NBSP (common before AM/PM) and full-width digits.
    s = norm.NFKC.String(s)
    return strings.Join(strings.Fields(s), " ")
}

// Lines splits rendered text on newlines, cleans each line and drops the
// empty ones.
func Lines(s string) []string {
    raw := strings.Split(s, "\n")
    out := make([]string, 0, len(raw))
    for _, line := range raw {
        if c := Clean(line); c != "" {
            out = append(out, c)
        }
    }
    return out
}

// Line returns the i-th non-empty cleaned line of s, or "" when there are
// fewer lines.
func Line(s string, i int) string {
    lines := Lines(s)
    if i < 0 || i >= len(lines) {
        return ""
    }
    return lines[i]
}
