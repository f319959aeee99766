package ui

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/net/html"

	"github.com/olivier-w/csvtv/internal/loop"
	"github.com/olivier-w/csvtv/internal/media"
	"github.com/olivier-w/csvtv/internal/pointer"
	"github.com/olivier-w/csvtv/internal/webpage"
)

func layoutDoc(t *testing.T, src, rawURL string, cols int) *webpage.Document {
	t.Helper()
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	base, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	doc := webpage.Layout(root, base, cols)
	doc.URL = rawURL
	return doc
}

func newTestPage(t *testing.T) (*pageModel, *loop.Manual, *recorder) {
	t.Helper()
	sched := loop.NewManual()
	rec := &recorder{}
	out := &sender{}
	out.attach(rec.send)

	ch := media.Channel{Title: "Guide", URL: "http://example.com/", Group: "Web"}
	m, err := newPageModel(ch, sched, out, pointer.DefaultConfig())
	if err != nil {
		t.Fatalf("newPageModel: %v", err)
	}
	m.resize(40, 10+pageChrome)
	return m, sched, rec
}

func loadDoc(t *testing.T, m *pageModel, sched *loop.Manual, doc *webpage.Document) {
	t.Helper()
	m.load(doc.URL)
	m.fetched(pageFetchedMsg{url: doc.URL, doc: doc})
	sched.Drain()
}

func isBackFromPage(msg tea.Msg) bool {
	b, ok := msg.(backMsg)
	return ok && b.from == screenPage
}

func TestPageShowsFetchedDocument(t *testing.T) {
	m, sched, _ := newTestPage(t)
	doc := layoutDoc(t, `<title>Guide</title><h1>Tonight</h1><p>Channel list</p>`, "http://example.com/", 40)

	m.load(doc.URL)
	if !strings.Contains(m.View(""), "Loading http://example.com/") {
		t.Fatal("expected loading text while fetching")
	}
	m.fetched(pageFetchedMsg{url: doc.URL, doc: doc})
	sched.Drain()

	view := m.View("")
	if !strings.Contains(view, "Tonight") || !strings.Contains(view, "Channel list") {
		t.Fatalf("expected page text in view:\n%s", view)
	}
	if lines := strings.Count(view, "\n") + 1; lines != 10+pageChrome {
		t.Fatalf("expected %d lines, got %d", 10+pageChrome, lines)
	}
	if !m.engine.State().Visible {
		t.Fatal("expected pointer to show after load")
	}
}

func TestPageDropsStaleFetch(t *testing.T) {
	m, sched, _ := newTestPage(t)
	m.load("http://example.com/b")

	m.fetched(pageFetchedMsg{url: "http://example.com/a", doc: layoutDoc(t, "<p>old</p>", "http://example.com/a", 40)})
	sched.Drain()
	if !m.loading || m.page.Document() != nil {
		t.Fatal("expected stale document to be ignored")
	}
}

func TestPageSelectFollowsLink(t *testing.T) {
	m, sched, rec := newTestPage(t)
	doc := layoutDoc(t, `<a href="/next">`+strings.Repeat("watch ", 80)+`</a>`, "http://example.com/", 40)
	loadDoc(t, m, sched, doc)

	m.Update(keyEnter)
	sched.Drain()

	navs := rec.count(func(msg tea.Msg) bool {
		n, ok := msg.(pageNavigateMsg)
		return ok && n.url == "http://example.com/next"
	})
	if navs != 1 {
		t.Fatalf("expected one navigation, got %d", navs)
	}
}

func TestPageBackWithoutHistoryLeaves(t *testing.T) {
	m, sched, rec := newTestPage(t)
	loadDoc(t, m, sched, layoutDoc(t, "<p>home</p>", "http://example.com/", 40))

	m.Update(keyEsc)
	sched.Drain()
	if rec.count(isBackFromPage) != 1 {
		t.Fatal("expected back message")
	}
}

func TestPageBackGoesThroughHistory(t *testing.T) {
	m, sched, rec := newTestPage(t)
	loadDoc(t, m, sched, layoutDoc(t, "<p>home</p>", "http://example.com/", 40))
	loadDoc(t, m, sched, layoutDoc(t, "<p>second</p>", "http://example.com/2", 40))

	m.Update(keyEsc)
	sched.Drain()
	if rec.count(isBackFromPage) != 0 {
		t.Fatal("expected history navigation, not leaving")
	}
	navs := rec.count(func(msg tea.Msg) bool {
		n, ok := msg.(pageNavigateMsg)
		return ok && n.url == "http://example.com/"
	})
	if navs != 1 {
		t.Fatalf("expected navigation to previous page, got %d", navs)
	}
}

func TestPageFetchErrorNotifiesAndLeaves(t *testing.T) {
	m, sched, rec := newTestPage(t)
	m.load("http://example.com/")
	m.fetched(pageFetchedMsg{url: "http://example.com/", err: errors.New("HTTP 404 Not Found")})
	sched.Drain()

	notices := rec.count(func(msg tea.Msg) bool {
		n, ok := msg.(noticeMsg)
		return ok && strings.Contains(n.text, "HTTP 404")
	})
	if notices != 1 {
		t.Fatalf("expected one error notice, got %d", notices)
	}
	if rec.count(isBackFromPage) != 0 {
		t.Fatal("expected error to stay visible before leaving")
	}
	sched.Advance(3 * time.Second)
	if rec.count(isBackFromPage) != 1 {
		t.Fatal("expected back message after the error delay")
	}
}

func TestPageFullscreenVideo(t *testing.T) {
	m, sched, _ := newTestPage(t)

	loadDoc(t, m, sched, layoutDoc(t, "<p>no video</p>", "http://example.com/", 40))
	cmd := m.Update(runeKey('f'))
	if cmd == nil {
		t.Fatal("expected notice command")
	}
	if _, ok := cmd().(noticeMsg); !ok {
		t.Fatalf("expected noticeMsg, got %T", cmd())
	}

	loadDoc(t, m, sched, layoutDoc(t, `<video src="/live.m3u8"></video>`, "http://example.com/tv", 40))
	m.Update(runeKey('f'))
	sched.Drain()
	if !m.engine.Fullscreen() {
		t.Fatal("expected fullscreen")
	}
	if m.page.Visible() {
		t.Fatal("expected page hidden in fullscreen")
	}
	view := m.View("")
	if !strings.Contains(view, "http://example.com/live.m3u8") {
		t.Fatalf("expected video source in fullscreen view:\n%s", view)
	}

	m.Update(keyEsc)
	sched.Drain()
	if m.engine.Fullscreen() || !m.page.Visible() {
		t.Fatal("expected fullscreen to exit on back")
	}
}
