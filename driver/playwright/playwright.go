// Package playwright adapts playwright-go to driver.Page.
//
// Elements are Locators pinned to an index (selector + nth), so a re-render
// between lookup and use is resolved again by Playwright rather than acting
// on a detached node. Reads use a short timeout and report a missing element
// as driver.ErrStale; the wait engine handles the retry.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/teranos/dolly/driver"
)

// Browsers accepted by Options.Browser and Install.
const (
	Chromium = "chromium"
	Firefox  = "firefox"
	WebKit   = "webkit"
)

// Options configures Launch.
type Options struct {
	Browser  string        // chromium (default), firefox or webkit
	Headless bool          // run without a window
	Timeout  time.Duration // default for actions without a context deadline
	SlowMo   time.Duration // delay between playwright operations, for demos
	Viewport *Viewport
}

// Viewport is the page size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// DefaultOptions launches headless Chromium with a 5s action timeout.
func DefaultOptions() Options {
	return Options{Browser: Chromium, Headless: true, Timeout: 5 * time.Second}
}

// readTimeout bounds element reads, which must not auto-wait like actions.
const readTimeout = 250 * time.Millisecond

// Page is a playwright page that owns its browser.
type Page struct {
	runtime *pw.Playwright
	browser pw.Browser
	page    pw.Page
	timeout time.Duration
}

var _ driver.Page = (*Page)(nil)

// Install downloads the playwright driver and the given browsers.
func Install(browsers ...string) error {
	if len(browsers) == 0 {
		browsers = []string{Chromium}
	}
	if err := pw.Install(&pw.RunOptions{Browsers: browsers}); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}
	return nil
}

// Launch starts playwright, a browser and one page.
func Launch(ctx context.Context, opts Options) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Browser == "" {
		opts.Browser = Chromium
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}

	runtime, err := pw.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	var browserType pw.BrowserType
	switch opts.Browser {
	case Chromium:
		browserType = runtime.Chromium
	case Firefox:
		browserType = runtime.Firefox
	case WebKit:
		browserType = runtime.WebKit
	default:
		_ = runtime.Stop()
		return nil, fmt.Errorf("unknown browser %q", opts.Browser)
	}

	launch := pw.BrowserTypeLaunchOptions{Headless: pw.Bool(opts.Headless)}
	if opts.SlowMo > 0 {
		launch.SlowMo = pw.Float(float64(opts.SlowMo.Milliseconds()))
	}
	browser, err := browserType.Launch(launch)
	if err != nil {
		_ = runtime.Stop()
		return nil, fmt.Errorf("failed to launch %s: %w", opts.Browser, err)
	}

	var pageOpts pw.BrowserNewPageOptions
	if opts.Viewport != nil {
		pageOpts.Viewport = &pw.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	}
	page, err := browser.NewPage(pageOpts)
	if err != nil {
		_ = browser.Close()
		_ = runtime.Stop()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	return &Page{runtime: runtime, browser: browser, page: page, timeout: opts.Timeout}, nil
}

// Raw exposes the underlying playwright page for anything dolly does not
// cover.
func (p *Page) Raw() pw.Page {
	return p.page
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.ready(ctx); err != nil {
		return err
	}
	_, err := p.page.Goto(url, pw.PageGotoOptions{
		Timeout:   p.timeoutMS(ctx),
		WaitUntil: pw.WaitUntilStateDomcontentloaded,
	})
	return translate(err)
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := p.ready(ctx); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	if err := p.ready(ctx); err != nil {
		return "", err
	}
	title, err := p.page.Title()
	return title, translate(err)
}

func (p *Page) FindAll(ctx context.Context, css string) ([]driver.Element, error) {
	if err := p.ready(ctx); err != nil {
		return nil, err
	}
	loc := p.page.Locator(css)
	n, err := loc.Count()
	if err != nil {
		return nil, translate(err)
	}
	els := make([]driver.Element, n)
	for i := range els {
		els[i] = &element{page: p, loc: loc.Nth(i), desc: fmt.Sprintf("%s >> nth=%d", css, i)}
	}
	return els, nil
}

// executeWrapper turns a function body using arguments[i] into the
// single-argument function playwright evaluates.
const executeWrapper = `(args) => (function() { %s }).apply(null, args)`

func (p *Page) Execute(ctx context.Context, script string, args ...any) (any, error) {
	if err := p.ready(ctx); err != nil {
		return nil, err
	}
	if args == nil {
		args = []any{}
	}
	v, err := p.page.Evaluate(fmt.Sprintf(executeWrapper, script), args)
	return v, translate(err)
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.ready(ctx); err != nil {
		return nil, err
	}
	png, err := p.page.Screenshot(pw.PageScreenshotOptions{Timeout: p.timeoutMS(ctx)})
	return png, translate(err)
}

// Close closes the page, the browser and the playwright driver.
func (p *Page) Close() error {
	var errs []error
	if !p.page.IsClosed() {
		errs = append(errs, p.page.Close())
	}
	errs = append(errs, p.browser.Close(), p.runtime.Stop())
	return errors.Join(errs...)
}

func (p *Page) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.page.IsClosed() {
		return driver.ErrClosed
	}
	return nil
}

// timeoutMS is the time left before ctx's deadline, or the page default.
func (p *Page) timeoutMS(ctx context.Context) *float64 {
	d := p.timeout
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

// translate maps playwright errors onto driver sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pw.ErrTargetClosed):
		return fmt.Errorf("%w: %v", driver.ErrClosed, err)
	default:
		return err
	}
}
