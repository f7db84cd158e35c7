package ingest

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxBodyChars caps the page text handed to the summarizer.
const maxBodyChars = 1000

var boilerplate = regexp.MustCompile(`(?i)(©|\ball rights\b|cookie|advertisement)`)

// Page is the text extracted from a saved page's HTML.
type Page struct {
	Title       string
	Description string
	Keywords    []string
	Body        string
}

// skipped elements never contribute visible text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Button:   true,
}

// block elements end a line of text.
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Main: true, atom.Tr: true,
	atom.Blockquote: true, atom.Pre: true, atom.Ul: true, atom.Ol: true, atom.Table: true,
}

// ExtractPage pulls the title, meta description, meta keywords and the
// visible body text out of raw HTML. Navigation, scripts and lines that
// look like legal or cookie boilerplate are dropped.
func ExtractPage(raw string) (Page, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return Page{}, err
	}

	var page Page
	var body strings.Builder

	var walk func(n *html.Node, inBody bool)
	walk = func(n *html.Node, inBody bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if page.Title == "" {
					page.Title = strings.TrimSpace(nodeText(n))
				}
				return
			case atom.Meta:
				readMeta(n, &page)
				return
			case atom.Body:
				inBody = true
			}
			if skipped[n.DataAtom] {
				return
			}
		}
		if n.Type == html.TextNode && inBody {
			body.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inBody)
		}
		if n.Type == html.ElementNode && block[n.DataAtom] {
			body.WriteByte('\n')
		}
	}
	walk(doc, false)

	page.Body = cleanText(body.String(), maxBodyChars)
	return page, nil
}

func readMeta(n *html.Node, page *Page) {
	var name, property, content string
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "name":
			name = strings.ToLower(a.Val)
		case "property":
			property = strings.ToLower(a.Val)
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}
	switch {
	case name == "description" && page.Description == "":
		page.Description = content
	case property == "og:description" && content != "":
		page.Description = content
	case name == "keywords":
		page.Keywords = page.Keywords[:0]
		for _, k := range strings.Split(content, ",") {
			if k = strings.TrimSpace(k); k != "" {
				page.Keywords = append(page.Keywords, k)
			}
		}
	}
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// cleanText joins the non-blank, non-boilerplate lines of text with single
// spaces and truncates to max runes.
func cleanText(text string, max int) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" || boilerplate.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	joined := strings.Join(kept, " ")
	if r := []rune(joined); len(r) > max {
		joined = string(r[:max])
	}
	return joined
}

// SummaryInput renders the page for the summarizer. It is empty when the
// page carried no usable text.
func (p Page) SummaryInput() string {
	var parts []string
	if p.Title != "" {
		parts = append(parts, "Title: "+p.Title)
	}
	if p.Description != "" {
		parts = append(parts, "Description: "+p.Description)
	}
	if len(p.Keywords) > 0 {
		parts = append(parts, "Tags: "+strings.Join(p.Keywords, ", "))
	}
	if p.Body != "" {
		parts = append(parts, "Content:\n\n"+p.Body)
	}
	return strings.Join(parts, "\n")
}
