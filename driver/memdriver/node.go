package memdriver

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/teranos/dolly/driver"
)

// Node is an element built for a test fixture. Configure it before Append;
// afterwards change it through the Page mutators so polling readers never
// race with writers.
type Node struct {
	el *html.Node
}

var bodyContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

// NewNode parses markup holding exactly one element, such as
// `<input id="agree" type="checkbox" checked>`. Children are kept. It panics
// on anything else, which only happens with a typo in a test fixture.
func NewNode(markup string) *Node {
	nodes, err := html.ParseFragment(strings.NewReader(markup), bodyContext)
	if err != nil {
		panic(fmt.Sprintf("memdriver: cannot parse %q: %v", markup, err))
	}
	var el *html.Node
	for _, n := range nodes {
		switch {
		case n.Type == html.TextNode && strings.TrimSpace(n.Data) == "":
		case n.Type == html.ElementNode && el == nil:
			el = n
		default:
			panic(fmt.Sprintf("memdriver: %q must hold exactly one element", markup))
		}
	}
	if el == nil {
		panic(fmt.Sprintf("memdriver: %q holds no element", markup))
	}
	return &Node{el: el}
}

// WithText replaces the node's children with text.
func (n *Node) WithText(text string) *Node {
	setText(n.el, text)
	return n
}

// Hide sets the hidden attribute.
func (n *Node) Hide() *Node {
	setAttr(n.el, "hidden", "")
	return n
}

// Check sets the checked attribute.
func (n *Node) Check() *Node {
	setAttr(n.el, "checked", "")
	return n
}

func (n *Node) String() string { return describe(n.el) }

// describe renders n like a selector: tag#id.class.
func describe(n *html.Node) string {
	var b strings.Builder
	b.WriteString(n.Data)
	if id, ok := getAttr(n, "id"); ok && id != "" {
		b.WriteString("#" + id)
	}
	if class, ok := getAttr(n, "class"); ok {
		for _, c := range strings.Fields(class) {
			b.WriteString("." + c)
		}
	}
	return b.String()
}

func getAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace != "" || a.Key != name {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

func toggleAttr(n *html.Node, name string, on bool) {
	if on {
		setAttr(n, name, "")
	} else {
		removeAttr(n, name)
	}
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

// textContent concatenates every descendant text node, like the DOM
// property of the same name.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// hiddenSelf reports whether n itself is not rendered.
func hiddenSelf(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if _, ok := getAttr(n, "hidden"); ok {
		return true
	}
	style, _ := getAttr(n, "style")
	return strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none")
}

// displayed reports whether n and all of its ancestors are rendered.
func displayed(n *html.Node) bool {
	for x := n; x != nil; x = x.Parent {
		if hiddenSelf(x) {
			return false
		}
	}
	return true
}

func isCheckable(n *html.Node) (radio bool, ok bool) {
	if n.DataAtom != atom.Input {
		return false, false
	}
	switch t, _ := getAttr(n, "type"); strings.ToLower(t) {
	case "checkbox":
		return false, true
	case "radio":
		return true, true
	}
	return false, false
}

type element struct {
	page *Page
	node *html.Node
}

var _ driver.Element = (*element)(nil)

// read runs fn under the page read lock after the liveness checks every
// accessor shares.
func (e *element) read(ctx context.Context, fn func(n *html.Node)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.page.mu.RLock()
	defer e.page.mu.RUnlock()
	if e.page.closed {
		return driver.ErrClosed
	}
	if !e.page.attached(e.node) {
		return fmt.Errorf("%s: %w", describe(e.node), driver.ErrStale)
	}
	fn(e.node)
	return nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.read(ctx, func(n *html.Node) { text = textContent(n) })
	return text, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := e.read(ctx, func(n *html.Node) { v, ok = getAttr(n, name) })
	return v, ok, err
}

func (e *element) Displayed(ctx context.Context) (bool, error) {
	var shown bool
	err := e.read(ctx, func(n *html.Node) { shown = displayed(n) })
	return shown, err
}

func (e *element) Checked(ctx context.Context) (bool, error) {
	var checked bool
	err := e.read(ctx, func(n *html.Node) { _, checked = getAttr(n, "checked") })
	return checked, err
}

func (e *element) Click(ctx context.Context) error {
	if err := e.interactable(ctx); err != nil {
		return err
	}

	e.page.mu.Lock()
	if radio, ok := isCheckable(e.node); ok {
		if radio {
			e.page.uncheckGroup(e.node)
			setAttr(e.node, "checked", "")
		} else {
			_, checked := getAttr(e.node, "checked")
			toggleAttr(e.node, "checked", !checked)
		}
	}
	e.page.focused = e.node
	e.page.mu.Unlock()

	for _, fn := range e.page.clickHandlers(e.node) {
		fn(e.page)
	}
	return nil
}

func (e *element) Focus(ctx context.Context) error {
	if err := e.interactable(ctx); err != nil {
		return err
	}
	e.page.mu.Lock()
	e.page.focused = e.node
	e.page.mu.Unlock()
	return nil
}

func (e *element) Fill(ctx context.Context, text string) error {
	if err := e.interactable(ctx); err != nil {
		return err
	}
	e.page.mu.Lock()
	setAttr(e.node, "value", text)
	e.page.focused = e.node
	e.page.mu.Unlock()
	return nil
}

func (e *element) interactable(ctx context.Context) error {
	var shown bool
	if err := e.read(ctx, func(n *html.Node) { shown = displayed(n) }); err != nil {
		return err
	}
	if !shown {
		return fmt.Errorf("memdriver: %s is not displayed", describe(e.node))
	}
	return nil
}
