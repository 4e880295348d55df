package playwright

import (
	"context"
	"errors"
	"fmt"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/teranos/dolly/driver"
)

type element struct {
	page *Page
	loc  pw.Locator
	desc string
}

var _ driver.Element = (*element)(nil)

const attributeScript = `(el, name) => el.hasAttribute(name) ? [true, el.getAttribute(name)] : [false, ""]`

func (e *element) Text(ctx context.Context) (string, error) {
	if err := e.page.ready(ctx); err != nil {
		return "", err
	}
	text, err := e.loc.TextContent(pw.LocatorTextContentOptions{Timeout: e.readTimeout(ctx)})
	return text, e.readErr(err)
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.page.ready(ctx); err != nil {
		return "", false, err
	}
	v, err := e.loc.Evaluate(attributeScript, name, pw.LocatorEvaluateOptions{Timeout: e.readTimeout(ctx)})
	if err != nil {
		return "", false, e.readErr(err)
	}
	pair, ok := v.([]interface{})
	if !ok || len(pair) != 2 {
		return "", false, fmt.Errorf("%s: unexpected attribute result %v", e.desc, v)
	}
	present, _ := pair[0].(bool)
	value, _ := pair[1].(string)
	return value, present, nil
}

// Displayed does not wait; a missing element is reported as not displayed.
func (e *element) Displayed(ctx context.Context) (bool, error) {
	if err := e.page.ready(ctx); err != nil {
		return false, err
	}
	shown, err := e.loc.IsVisible()
	return shown, translate(err)
}

func (e *element) Checked(ctx context.Context) (bool, error) {
	if err := e.page.ready(ctx); err != nil {
		return false, err
	}
	checked, err := e.loc.IsChecked(pw.LocatorIsCheckedOptions{Timeout: e.readTimeout(ctx)})
	return checked, e.readErr(err)
}

func (e *element) Click(ctx context.Context) error {
	if err := e.page.ready(ctx); err != nil {
		return err
	}
	return translate(e.loc.Click(pw.LocatorClickOptions{Timeout: e.page.timeoutMS(ctx)}))
}

func (e *element) Focus(ctx context.Context) error {
	if err := e.page.ready(ctx); err != nil {
		return err
	}
	return translate(e.loc.Focus(pw.LocatorFocusOptions{Timeout: e.page.timeoutMS(ctx)}))
}

func (e *element) Fill(ctx context.Context, text string) error {
	if err := e.page.ready(ctx); err != nil {
		return err
	}
	return translate(e.loc.Fill(text, pw.LocatorFillOptions{Timeout: e.page.timeoutMS(ctx)}))
}

func (e *element) readTimeout(ctx context.Context) *float64 {
	d := readTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return pw.Float(float64(d.Milliseconds()))
}

// readErr reports an element that stopped resolving during a read as stale.
func (e *element) readErr(err error) error {
	if err != nil && errors.Is(err, pw.ErrTimeout) {
		return fmt.Errorf("%s: %w", e.desc, driver.ErrStale)
	}
	return translate(err)
}
