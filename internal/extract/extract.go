package extract

import (
    "bytes"
    "fmt"
    "net/url"
    "strings"

    "github.com/PuerkitoBio/goquery"
    "golang.org/x/net/html"

    "github.com/hyperifyio/studysync/internal/textnorm"
)

// Page is a static snapshot of an LMS page: the address it was loaded from
// and its parsed DOM. Extractors only read from it.
type Page struct {
    URL *url.URL
    Doc *goquery.Document
}

// NewPage parses an HTML snapshot taken at rawURL.
func NewPage(rawURL string, body []byte) (*Page, error) {
    u, err := url.Parse(strings.TrimSpace(rawURL))
    if err != nil {
        return nil, fmt.Errorf("parse page url: %w", err)
    }
    doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
    if err != nil {
        return nil, fmt.Errorf("parse page html: %w", err)
    }
    return &Page{URL: u, Doc: doc}, nil
}

// Title returns the document <title>, cleaned.
func (p *Page) Title() string {
    if p == nil || p.Doc == nil {
        return ""
    }
    return textnorm.Clean(p.Doc.Find("head title").First().Text())
}

// blockTags start a new rendered line, mirroring the default display of
// these elements in a browser.
var blockTags = map[string]bool{
    "address": true, "article": true, "aside": true, "blockquote": true,
    "dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
    "figcaption": true, "figure": true, "footer": true, "form": true,
    "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
    "header": true, "hr": true, "li": true, "main": true, "nav": true,
    "ol": true, "p": true, "pre": true, "section": true, "table": true,
    "tbody": true, "tfoot": true, "thead": true, "tr": true, "ul": true,
    "caption": true, "summary": true, "details": true,
}

// InnerText approximates the browser's innerText for every node in sel:
// block elements and <br> break lines, table cells are space separated,
// hidden and non-rendered elements are skipped, and whitespace inside text
// nodes collapses. Lines are cleaned and blank lines dropped.
func InnerText(sel *goquery.Selection) string {
    if sel == nil {
        return ""
    }
    var b strings.Builder
    for _, n := range sel.Nodes {
        collectText(&b, n)
        b.WriteString("\n")
    }
    return strings.Join(textnorm.Lines(b.String()), "\n")
}

func collectText(b *strings.Builder, n *html.Node) {
    block := false
    if n.Type == html.ElementNode {
        if isHidden(n) {
            return
        }
        name := strings.ToLower(n.Data)
        switch name {
        case "script", "style", "noscript", "template", "head", "title":
            return
        case "br":
            b.WriteString("\n")
            return
        case "td", "th":
            b.WriteString(" ")
        }
        // Brightspace custom elements (d2l-list-item, d2l-card...) render as blocks.
        block = blockTags[name] || strings.HasPrefix(name, "d2l-")
        if block {
            b.WriteString("\n")
        }
    }

    if n.Type == html.TextNode {
        b.WriteString(collapseSpaces(n.Data))
    }

    for c := n.FirstChild; c != nil; c = c.NextSibling {
        collectText(b, c)
    }

    if block {
        b.WriteString("\n")
    }
}

// isHidden reports elements a browser would not render.
func isHidden(n *html.Node) bool {
    for _, attr := range n.Attr {
        switch strings.ToLower(attr.Key) {
        case "hidden":
            return true
        case "style":
            style := strings.ToLower(strings.ReplaceAll(attr.Val, " ", ""))
            if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
                return true
            }
        }
    }
    return false
}

// collapseSpaces folds every whitespace run, newlines included, into a
// single space, as white-space:normal does.
func collapseSpaces(s string) string {
    var b strings.Builder
    lastSpace := false
    for _, r := range s {
        if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' {
            if !lastSpace {
                b.WriteByte(' ')
                lastSpace = true
            }
            continue
        }
        b.WriteRune(r)
        lastSpace = false
    }
    return b.String()
}

// firstLine returns the first non-empty cleaned line of s.
func firstLine(s string) string {
    return textnorm.Line(s, 0)
}
