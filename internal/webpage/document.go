// Package webpage lays out HTML pages as terminal text and exposes them as
// scriptable pages for the pointer engine.
package webpage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxPageBytes = 4 << 20

// ErrUnsupported is returned for responses that are not HTML or text.
var ErrUnsupported = errors.New("unsupported page content")

// Cell is one terminal cell of laid-out text. Wide runes are followed by
// a placeholder cell with R == 0.
type Cell struct {
	R rune
	// Link is the innermost interactive element covering the cell, or -1.
	Link int
}

// Line is one row of cells.
type Line []Cell

// Element is an element node with the cell rectangle its text occupies.
type Element struct {
	Tag    string            `json:"tag"`
	Attrs  map[string]string `json:"attrs"`
	Parent int               `json:"parent"`
	Row0   int               `json:"row0"`
	Col0   int               `json:"col0"`
	Row1   int               `json:"row1"`
	Col1   int               `json:"col1"`
	// Laid reports whether the element covers any cell.
	Laid bool `json:"laid"`
}

// Href returns the resolved link or media target of the element.
func (e Element) Href() string {
	if h := e.Attrs["href"]; h != "" {
		return h
	}
	return e.Attrs["src"]
}

// Document is a page laid out for a fixed column count.
type Document struct {
	URL      string
	Title    string
	Cols     int
	Lines    []Line
	Elements []Element
}

// Fetch downloads rawURL and lays it out in cols columns.
func Fetch(ctx context.Context, client *http.Client, userAgent, rawURL string, cols int) (*Document, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body := io.LimitReader(resp.Body, maxPageBytes)
	final := resp.Request.URL
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		root, err := html.Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parsing page: %w", err)
		}
		return Layout(root, final, cols), nil
	case strings.HasPrefix(mediaType, "text/"):
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		return LayoutText(string(data), final, cols), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mediaType)
	}
}

var skipped = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true, atom.Noscript: true,
	atom.Template: true, atom.Svg: true, atom.Iframe: true, atom.Select: true,
}

var blocks = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true, atom.Fieldset: true,
	atom.Figure: true, atom.Footer: true, atom.Form: true, atom.Header: true,
	atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true, atom.Section: true,
	atom.Table: true, atom.Tr: true, atom.Ul: true, atom.Video: true,
}

var paragraphs = map[atom.Atom]bool{
	atom.P: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Pre: true,
}

var keptAttrs = []string{"id", "class", "href", "src", "role", "onclick", "style", "alt", "type", "value", "title"}

type layout struct {
	cols  int
	base  *url.URL
	doc   *Document
	cur   Line
	space bool
	pre   int
	open  []int // element stack
	links []int // interactive element stack
}

// Layout lays out a parsed HTML tree.
func Layout(root *html.Node, base *url.URL, cols int) *Document {
	if cols < 10 {
		cols = 10
	}
	l := &layout{cols: cols, base: base, doc: &Document{Cols: cols}}
	if base != nil {
		l.doc.URL = base.String()
	}
	l.doc.Title = findTitle(root)
	l.walk(root)
	l.breakLine()
	return l.doc
}

// LayoutText lays out plain text, one paragraph per line.
func LayoutText(text string, base *url.URL, cols int) *Document {
	if cols < 10 {
		cols = 10
	}
	l := &layout{cols: cols, base: base, doc: &Document{Cols: cols}}
	if base != nil {
		l.doc.URL = base.String()
		l.doc.Title = base.String()
	}
	l.pre = 1
	l.text(text)
	l.breakLine()
	return l.doc
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		return strings.Join(strings.Fields(sb.String()), " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func (l *layout) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		l.text(n.Data)
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			l.walk(c)
		}
		return
	}
	if skipped[n.DataAtom] || hidden(n) {
		return
	}

	idx := l.element(n)
	l.open = append(l.open, idx)
	interactive := l.interactive(l.doc.Elements[idx])
	if interactive {
		l.links = append(l.links, idx)
	}

	switch {
	case paragraphs[n.DataAtom]:
		l.paragraphBreak()
	case blocks[n.DataAtom]:
		l.breakLine()
	}
	if n.DataAtom == atom.Pre {
		l.pre++
	}

	switch n.DataAtom {
	case atom.Br:
		l.breakLine()
	case atom.Hr:
		l.breakLine()
		l.word(strings.Repeat("─", l.cols))
		l.breakLine()
	case atom.Li:
		l.word("•")
		l.space = true
	case atom.Img:
		if alt := strings.TrimSpace(attr(n, "alt")); alt != "" {
			l.word("[" + alt + "]")
			l.space = true
		}
	case atom.Video:
		l.word("[▶ video]")
		l.space = true
	case atom.Input:
		switch strings.ToLower(attr(n, "type")) {
		case "submit", "button":
			l.word("[" + attr(n, "value") + "]")
			l.space = true
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		l.walk(c)
	}

	if n.DataAtom == atom.Pre {
		l.pre--
	}
	switch {
	case paragraphs[n.DataAtom]:
		l.paragraphBreak()
	case blocks[n.DataAtom]:
		l.breakLine()
	}

	if interactive {
		l.links = l.links[:len(l.links)-1]
	}
	l.open = l.open[:len(l.open)-1]
}

func hidden(n *html.Node) bool {
	if _, ok := lookupAttr(n, "hidden"); ok || strings.EqualFold(attr(n, "aria-hidden"), "true") {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(attr(n, "style")), " ", "")
	return strings.Contains(style, "display:none")
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func (l *layout) element(n *html.Node) int {
	attrs := make(map[string]string)
	for _, a := range n.Attr {
		for _, k := range keptAttrs {
			if a.Key == k {
				attrs[k] = a.Val
			}
		}
	}
	for _, k := range []string{"href", "src"} {
		if v, ok := attrs[k]; ok {
			attrs[k] = l.resolve(v)
		}
	}
	parent := -1
	if len(l.open) > 0 {
		parent = l.open[len(l.open)-1]
	}
	l.doc.Elements = append(l.doc.Elements, Element{
		Tag:    strings.ToUpper(n.Data),
		Attrs:  attrs,
		Parent: parent,
	})
	return len(l.doc.Elements) - 1
}

func (l *layout) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(strings.ToLower(ref), "javascript:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if l.base != nil {
		u = l.base.ResolveReference(u)
	}
	return u.String()
}

func (l *layout) interactive(e Element) bool {
	switch e.Tag {
	case "A":
		return e.Attrs["href"] != ""
	case "BUTTON", "VIDEO":
		return true
	}
	_, onclick := e.Attrs["onclick"]
	return onclick || e.Attrs["role"] == "button"
}

func (l *layout) text(s string) {
	if l.pre > 0 {
		for i, part := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
			if i > 0 {
				l.breakLine()
			}
			for _, r := range strings.ReplaceAll(part, "\t", "    ") {
				if l.col()+runewidth.RuneWidth(r) > l.cols {
					l.breakLine()
				}
				l.cell(r)
			}
		}
		return
	}
	if s != "" && unicode.IsSpace([]rune(s)[0]) {
		l.space = true
	}
	for _, w := range strings.Fields(s) {
		l.word(w)
		l.space = true
	}
	if s != "" && !unicode.IsSpace([]rune(s)[len([]rune(s))-1]) {
		l.space = false
	}
}

// word writes w, wrapping before it when it does not fit and hard-wrapping
// words longer than a line.
func (l *layout) word(w string) {
	width := runewidth.StringWidth(w)
	sep := 0
	if l.space && l.col() > 0 {
		sep = 1
	}
	if l.col() > 0 && l.col()+sep+width > l.cols {
		l.breakLine()
		sep = 0
	}
	row, at := len(l.doc.Lines), -1
	if sep == 1 {
		l.cell(' ')
		at = len(l.cur) - 1
		l.cur[at].Link = -1
	}
	for _, r := range w {
		if l.col()+runewidth.RuneWidth(r) > l.cols {
			l.breakLine()
		}
		l.cell(r)
	}
	// A separator is linked only when it sits inside one link.
	if at > 0 && row == len(l.doc.Lines) && at+1 < len(l.cur) && l.cur[at-1].Link == l.cur[at+1].Link {
		l.cur[at].Link = l.cur[at-1].Link
	}
	l.space = false
}

func (l *layout) col() int {
	return len(l.cur)
}

func (l *layout) cell(r rune) {
	link := -1
	if len(l.links) > 0 {
		link = l.links[len(l.links)-1]
	}
	row, col := len(l.doc.Lines), len(l.cur)
	w := runewidth.RuneWidth(r)
	if w < 1 {
		w = 1
	}
	l.cur = append(l.cur, Cell{R: r, Link: link})
	if w == 2 {
		l.cur = append(l.cur, Cell{R: 0, Link: link})
	}
	if r == ' ' {
		return
	}
	for _, idx := range l.open {
		e := &l.doc.Elements[idx]
		if !e.Laid {
			e.Row0, e.Row1, e.Col0, e.Col1 = row, row, col, col+w-1
			e.Laid = true
			continue
		}
		e.Row0 = min(e.Row0, row)
		e.Row1 = max(e.Row1, row)
		e.Col0 = min(e.Col0, col)
		e.Col1 = max(e.Col1, col+w-1)
	}
}

func (l *layout) breakLine() {
	if len(l.cur) == 0 {
		return
	}
	l.doc.Lines = append(l.doc.Lines, l.cur)
	l.cur = nil
	l.space = false
}

// paragraphBreak ends the line and leaves one blank line.
func (l *layout) paragraphBreak() {
	l.breakLine()
	if n := len(l.doc.Lines); n > 0 && len(l.doc.Lines[n-1]) > 0 {
		l.doc.Lines = append(l.doc.Lines, Line{})
	}
}

// Text returns the characters of a line.
func (ln Line) Text() string {
	var sb strings.Builder
	for _, c := range ln {
		if c.R != 0 {
			sb.WriteRune(c.R)
		}
	}
	return sb.String()
}
