package chromedp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chromedp/chromedp"

	"github.com/teranos/dolly/driver"
)

type element struct {
	page  *Page
	css   string
	sel   string // css as a JS string literal
	index int
}

var _ driver.Element = (*element)(nil)

// elementScript resolves the element and applies body to it as el. The
// result is {stale: true} when the index no longer resolves.
const elementScript = `(function(sel, i, arg) {
	const el = document.querySelectorAll(sel)[i];
	if (!el) { return {stale: true}; }
	return {value: (function(el, arg) { %s })(el, arg)};
})(%s, %d, %s)`

type elementResult struct {
	Stale bool            `json:"stale"`
	Value json.RawMessage `json:"value"`
}

var errNotInteractable = errors.New("element is not displayed")

func (e *element) eval(ctx context.Context, body string, arg any, dst any) error {
	encoded, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	var res elementResult
	script := fmt.Sprintf(elementScript, body, e.sel, e.index, encoded)
	if err := e.page.run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return err
	}
	if res.Stale {
		return fmt.Errorf("%s[%d]: %w", e.css, e.index, driver.ErrStale)
	}
	if dst == nil || len(res.Value) == 0 {
		return nil
	}
	return json.Unmarshal(res.Value, dst)
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.eval(ctx, `return el.innerText !== undefined ? el.innerText : el.textContent;`, nil, &text)
	return text, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var attr struct {
		Present bool   `json:"present"`
		Value   string `json:"value"`
	}
	err := e.eval(ctx, `return {present: el.hasAttribute(arg), value: el.getAttribute(arg) || ""};`, name, &attr)
	return attr.Value, attr.Present, err
}

const displayedBody = `
	const style = window.getComputedStyle(el);
	if (style.display === 'none' || style.visibility === 'hidden') { return false; }
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;`

func (e *element) Displayed(ctx context.Context) (bool, error) {
	var shown bool
	err := e.eval(ctx, displayedBody, nil, &shown)
	return shown, err
}

func (e *element) Checked(ctx context.Context) (bool, error) {
	var checked bool
	err := e.eval(ctx, `return !!el.checked;`, nil, &checked)
	return checked, err
}

// interact runs body when the element is displayed.
func (e *element) interact(ctx context.Context, body string, arg any) error {
	var ok bool
	script := `(function() {` + displayedBody + `})() ? (function() { ` + body + ` return true; })() : false`
	if err := e.eval(ctx, "return "+script+";", arg, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s[%d]: %w", e.css, e.index, errNotInteractable)
	}
	return nil
}

func (e *element) Click(ctx context.Context) error {
	return e.interact(ctx, `el.scrollIntoView({block: 'center'}); el.click();`, nil)
}

func (e *element) Focus(ctx context.Context) error {
	return e.interact(ctx, `el.focus();`, nil)
}

// Fill sets the value and fires the events frameworks listen for.
func (e *element) Fill(ctx context.Context, text string) error {
	return e.interact(ctx, `
		el.focus();
		el.value = arg;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));`, text)
}
