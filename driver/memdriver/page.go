// Package memdriver is an in-memory driver.Page for exercising conditions,
// waits and the DSL without a browser.
//
// The page holds an HTML document parsed with golang.org/x/net/html and
// matches selectors with cascadia, so fixtures can use descendant and child
// combinators like a real browser. Mutators are safe to call from other
// goroutines while a wait is polling, which is how tests simulate a UI that
// renders asynchronously:
//
//	page := memdriver.New().Load(`<form id="signup"><input id="email"></form>`)
//	page.Append(memdriver.NewNode(`<p id="status" hidden>Saved</p>`))
//	page.After(50*time.Millisecond, func(p *memdriver.Page) { p.SetHidden("#status", false) })
package memdriver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/teranos/dolly/driver"
)

// ScriptFunc answers a script passed to Execute.
type ScriptFunc func(p *Page, args []any) (any, error)

// Page is an in-memory browser tab.
type Page struct {
	mu      sync.RWMutex
	url     string
	title   string
	doc     *html.Node
	body    *html.Node
	focused *html.Node
	closed  bool

	scripts    map[string]ScriptFunc
	clicks     []clickHandler
	onNavigate func(p *Page, url string)

	timers []*time.Timer
	finds  int64
}

var _ driver.Page = (*Page)(nil)

type clickHandler struct {
	sel cascadia.Selector
	fn  func(p *Page)
}

// New returns an empty page at about:blank.
func New() *Page {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	root := &html.Node{Type: html.ElementNode, Data: "html", DataAtom: atom.Html}
	root.AppendChild(&html.Node{Type: html.ElementNode, Data: "head", DataAtom: atom.Head})
	root.AppendChild(body)
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(root)

	return &Page{
		url:     "about:blank",
		doc:     doc,
		body:    body,
		scripts: make(map[string]ScriptFunc),
	}
}

// Navigate implements driver.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return driver.ErrClosed
	}
	p.url = url
	hook := p.onNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(p, url)
	}
	return nil
}

// URL implements driver.Page.
func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return "", driver.ErrClosed
	}
	return p.url, nil
}

// Title implements driver.Page.
func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return "", driver.ErrClosed
	}
	return p.title, nil
}

// FindAll implements driver.Page.
func (p *Page) FindAll(ctx context.Context, css string) ([]driver.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	atomic.AddInt64(&p.finds, 1)

	sel, err := compile(css)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, driver.ErrClosed
	}

	var out []driver.Element
	for _, n := range cascadia.QueryAll(p.doc, sel) {
		out = append(out, &element{page: p, node: n})
	}
	return out, nil
}

func compile(css string) (cascadia.Selector, error) {
	if strings.TrimSpace(css) == "" {
		return nil, fmt.Errorf("memdriver: empty selector")
	}
	sel, err := cascadia.Compile(css)
	if err != nil {
		return nil, fmt.Errorf("memdriver: invalid selector %q: %w", css, err)
	}
	return sel, nil
}

func mustCompile(css string) cascadia.Selector {
	sel, err := compile(css)
	if err != nil {
		panic(err)
	}
	return sel
}

// Execute implements driver.Page. Scripts must be registered with
// HandleScript; the script text is the lookup key after trimming.
func (p *Page) Execute(ctx context.Context, script string, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	closed := p.closed
	fn, ok := p.scripts[strings.TrimSpace(script)]
	p.mu.RUnlock()

	if closed {
		return nil, driver.ErrClosed
	}
	if !ok {
		return nil, fmt.Errorf("memdriver: no handler for script %q", script)
	}
	return fn(p, args)
}

// Screenshot implements driver.Page. The in-memory page has no pixels.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, driver.ErrUnsupported
}

// Close implements driver.Page and cancels pending After callbacks.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
	return nil
}

// SetTitle sets the document title.
func (p *Page) SetTitle(title string) {
	p.mu.Lock()
	p.title = title
	p.mu.Unlock()
}

// Load replaces the body with markup.
func (p *Page) Load(markup string) *Page {
	nodes, err := html.ParseFragment(strings.NewReader(markup), bodyContext)
	if err != nil {
		panic(fmt.Sprintf("memdriver: cannot parse page: %v", err))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	setText(p.body, "")
	for _, n := range nodes {
		p.body.AppendChild(n)
	}
	return p
}

// Append adds nodes at the end of the body.
func (p *Page) Append(nodes ...*Node) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range nodes {
		p.body.AppendChild(n.el)
	}
	return p
}

// AppendTo adds nodes as the last children of the first element matching
// sel, and reports whether there was one.
func (p *Page) AppendTo(sel string, nodes ...*Node) bool {
	s := mustCompile(sel)
	p.mu.Lock()
	defer p.mu.Unlock()
	parent := cascadia.Query(p.doc, s)
	if parent == nil {
		return false
	}
	for _, n := range nodes {
		parent.AppendChild(n.el)
	}
	return true
}

// Remove detaches every element matching sel. Elements already handed out
// for them report driver.ErrStale.
func (p *Page) Remove(sel string) int {
	return p.mutate(sel, func(n *html.Node) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	})
}

// SetText replaces the children of every element matching sel with text.
func (p *Page) SetText(sel, text string) int {
	return p.mutate(sel, func(n *html.Node) { setText(n, text) })
}

// SetHidden sets or clears the hidden attribute of every element matching
// sel.
func (p *Page) SetHidden(sel string, hidden bool) int {
	return p.mutate(sel, func(n *html.Node) { toggleAttr(n, "hidden", hidden) })
}

// SetChecked sets or clears the checked attribute of every element matching
// sel.
func (p *Page) SetChecked(sel string, checked bool) int {
	return p.mutate(sel, func(n *html.Node) { toggleAttr(n, "checked", checked) })
}

// SetAttribute sets an attribute on every element matching sel.
func (p *Page) SetAttribute(sel, name, value string) int {
	return p.mutate(sel, func(n *html.Node) { setAttr(n, name, value) })
}

// mutate applies fn to the elements matching sel under the write lock.
func (p *Page) mutate(sel string, fn func(n *html.Node)) int {
	s := mustCompile(sel)
	p.mu.Lock()
	defer p.mu.Unlock()
	matched := cascadia.QueryAll(p.doc, s)
	for _, n := range matched {
		fn(n)
	}
	return len(matched)
}

// attached reports whether n is still part of the document. Callers hold
// the lock.
func (p *Page) attached(n *html.Node) bool {
	for x := n; x != nil; x = x.Parent {
		if x == p.doc {
			return true
		}
	}
	return false
}

// uncheckGroup clears the other radios sharing n's name. Callers hold the
// write lock.
func (p *Page) uncheckGroup(n *html.Node) {
	name, ok := getAttr(n, "name")
	if !ok {
		return
	}
	for _, other := range cascadia.QueryAll(p.doc, radios) {
		if v, _ := getAttr(other, "name"); v == name {
			removeAttr(other, "checked")
		}
	}
}

var radios = cascadia.MustCompile(`input[type=radio]`)

// After runs fn once d has elapsed, unless the page is closed first.
func (p *Page) After(d time.Duration, fn func(p *Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := time.AfterFunc(d, func() {
		p.mu.RLock()
		closed := p.closed
		p.mu.RUnlock()
		if !closed {
			fn(p)
		}
	})
	p.timers = append(p.timers, t)
}

// HandleScript registers the answer for a script passed to Execute.
func (p *Page) HandleScript(script string, fn ScriptFunc) *Page {
	p.mu.Lock()
	p.scripts[strings.TrimSpace(script)] = fn
	p.mu.Unlock()
	return p
}

// OnClick registers fn to run after a click on an element matching sel.
func (p *Page) OnClick(sel string, fn func(p *Page)) *Page {
	s := mustCompile(sel)
	p.mu.Lock()
	p.clicks = append(p.clicks, clickHandler{sel: s, fn: fn})
	p.mu.Unlock()
	return p
}

// OnNavigate registers fn to run after every Navigate.
func (p *Page) OnNavigate(fn func(p *Page, url string)) *Page {
	p.mu.Lock()
	p.onNavigate = fn
	p.mu.Unlock()
	return p
}

// Focused returns the selector-ish description of the focused node, or "".
func (p *Page) Focused() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.focused == nil {
		return ""
	}
	return describe(p.focused)
}

// FindCalls reports how many times FindAll has been called.
func (p *Page) FindCalls() int {
	return int(atomic.LoadInt64(&p.finds))
}

// VisibleText returns the text of every displayed text node in the body,
// trimmed, one per line.
func (p *Page) VisibleText() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if hiddenSelf(n) || n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				lines = append(lines, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(p.body)
	return strings.Join(lines, "\n")
}

func (p *Page) clickHandlers(n *html.Node) []func(p *Page) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var fns []func(p *Page)
	for _, h := range p.clicks {
		if h.sel.Match(n) {
			fns = append(fns, h.fn)
		}
	}
	return fns
}
