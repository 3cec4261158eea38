// Package format renders message bodies for display.
package format

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	htmlHint   = regexp.MustCompile(`(?i)<\s*(html|body|div|p|br|table|span|a)\b`)
	spaceRun   = regexp.MustCompile(`[ \t\f\r]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// LooksLikeHTML reports whether body carries HTML markup.
func LooksLikeHTML(body string) bool {
	return htmlHint.MatchString(body)
}

// PlainText turns a message body into readable plain text. Non-HTML bodies
// only get their whitespace tidied. Table rows become lines with cells
// separated by " | ", links keep their target in parentheses.
func PlainText(body string) string {
	if !LooksLikeHTML(body) {
		return tidy(body)
	}

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return tidy(body)
	}

	var w textWriter
	w.walk(doc)

	return tidy(w.String())
}

type textWriter struct {
	strings.Builder
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.WriteString(n.Data)
		return
	case html.ElementNode:
	case html.DocumentNode:
		w.children(n)
		return
	default:
		return
	}

	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Title, atom.Noscript:
		return
	case atom.Br:
		w.WriteByte('\n')
		return
	case atom.Hr:
		w.WriteString("\n----\n")
		return
	case atom.Img:
		if alt := attr(n, "alt"); alt != "" {
			w.WriteString("[" + alt + "]")
		}
		return
	case atom.A:
		w.link(n)
		return
	case atom.Li:
		w.newline()
		w.WriteString("- ")
		w.children(n)
		return
	case atom.Tr:
		w.row(n)
		return
	}

	if !isBlock(n.DataAtom) {
		w.children(n)
		return
	}

	w.newline()
	w.children(n)
	if isParagraph(n.DataAtom) {
		w.WriteString("\n\n")
	} else {
		w.newline()
	}
}

// newline ends the current line unless it is already ended.
func (w *textWriter) newline() {
	s := w.String()
	if s != "" && !strings.HasSuffix(s, "\n") {
		w.WriteByte('\n')
	}
}

func (w *textWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *textWriter) link(n *html.Node) {
	var inner textWriter
	inner.children(n)
	text := strings.TrimSpace(spaceRun.ReplaceAllString(inner.String(), " "))
	href := attr(n, "href")

	switch {
	case href == "" || strings.HasPrefix(href, "#"):
		w.WriteString(text)
	case text == "" || text == href || "mailto:"+text == href:
		w.WriteString(href)
	default:
		w.WriteString(text + " (" + href + ")")
	}
}

func (w *textWriter) row(tr *html.Node) {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		var cell textWriter
		cell.children(c)
		if text := strings.TrimSpace(tidy(cell.String())); text != "" {
			cells = append(cells, text)
		}
	}
	if len(cells) == 0 {
		return
	}
	w.newline()
	w.WriteString(strings.Join(cells, " | "))
	w.WriteByte('\n')
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer,
		atom.Main, atom.Center, atom.Tbody, atom.Thead, atom.Tfoot:
		return true
	}
	return isParagraph(a)
}

// isParagraph is a block followed by a blank line.
func isParagraph(a atom.Atom) bool {
	switch a {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Ul, atom.Ol, atom.Table, atom.Blockquote, atom.Pre:
		return true
	}
	return false
}

func tidy(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
