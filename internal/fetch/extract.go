package fetch

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// page is what scrape_page reports about an HTML document.
type page struct {
	Title       string
	Description string
	Text        string
}

// dropElements never contribute text. Site chrome around the content
// (navigation, headers, sidebars, forms) goes too.
var dropElements = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Button:   true,
	atom.Select:   true,
}

// extractHTML parses raw HTML into a page. The text comes from the
// document's <main> element when there is one, otherwise from its only
// <article>, otherwise from the whole body.
func extractHTML(raw string) page {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return page{Text: stripTags(raw)}
	}

	var p page
	readMeta(doc, &p)

	var w textWriter
	w.walk(contentRoot(doc))
	p.Text = cleanWhitespace(w.String())
	return p
}

// readMeta fills the title and description from <title> and <meta>
// tags. Open Graph values are used when the plain ones are missing.
func readMeta(n *html.Node, p *page) {
	var ogTitle, ogDesc string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if p.Title == "" {
					p.Title = collapse(textContent(n))
				}
			case atom.Meta:
				content := collapse(attr(n, "content"))
				switch {
				case strings.EqualFold(attr(n, "name"), "description"):
					p.Description = content
				case attr(n, "property") == "og:description":
					ogDesc = content
				case attr(n, "property") == "og:title":
					ogTitle = content
				}
			case atom.Body:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)

	if p.Title == "" {
		p.Title = ogTitle
	}
	if p.Description == "" {
		p.Description = ogDesc
	}
}

func contentRoot(doc *html.Node) *html.Node {
	if m := findAll(doc, atom.Main); len(m) > 0 {
		return m[0]
	}
	if a := findAll(doc, atom.Article); len(a) == 1 {
		return a[0]
	}
	if b := findAll(doc, atom.Body); len(b) > 0 {
		return b[0]
	}
	return doc
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	if n.Type == html.ElementNode && n.DataAtom == a {
		return append(out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, findAll(c, a)...)
	}
	return out
}

// textWriter renders visible text with light markdown: headings get
// '#' markers and list items get "- ".
type textWriter struct {
	strings.Builder
}

func (w *textWriter) paragraph() {
	if w.Len() > 0 {
		w.WriteString("\n\n")
	}
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if t := collapse(n.Data); t != "" {
			w.WriteString(t)
			w.WriteString(" ")
		}
		return
	case html.ElementNode:
		if dropElements[n.DataAtom] || isHidden(n) {
			return
		}
		switch {
		case n.DataAtom == atom.Br:
			w.WriteString("\n")
			return
		case n.DataAtom == atom.Li:
			w.WriteString("\n- ")
		case headingLevel(n.DataAtom) > 0:
			w.paragraph()
			w.WriteString(strings.Repeat("#", headingLevel(n.DataAtom)) + " ")
		case isBlockElement(n.DataAtom):
			w.paragraph()
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	if n.Type == html.ElementNode && headingLevel(n.DataAtom) > 0 {
		w.WriteString("\n")
	}
}

func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch {
		case a.Key == "hidden":
			return true
		case a.Key == "aria-hidden" && a.Val == "true":
			return true
		}
	}
	return false
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4, atom.H5, atom.H6:
		return 4
	}
	return 0
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Tr, atom.Dl, atom.Dd, atom.Dt, atom.Figcaption, atom.Figure,
		atom.Details, atom.Summary, atom.Hr:
		return true
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanWhitespace collapses spaces within lines and keeps at most one
// blank line between paragraphs.
func cleanWhitespace(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = collapse(line)
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// stripTags keeps only text tokens. It serves markup the parser
// rejects.
func stripTags(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return cleanWhitespace(b.String())
		case html.TextToken:
			b.Write(z.Text())
			b.WriteString(" ")
		}
	}
}
