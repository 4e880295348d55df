// Package chromedp adapts a chromedp browser tab to driver.Page.
//
// chromedp works on CDP nodes rather than locators, so elements here are a
// selector plus an index and every primitive is a small script evaluated in
// the page. An element whose index no longer resolves is reported as
// driver.ErrStale.
package chromedp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chromedp/chromedp"

	"github.com/teranos/dolly/driver"
)

// Options configures Launch.
type Options struct {
	Headless  bool
	ExecPath  string // browser binary; empty uses chromedp's lookup
	RemoteURL string // devtools websocket of an already running browser
	Width     int
	Height    int
	Debugf    func(string, ...any) // chromedp protocol logging, e.g. t.Logf
}

// DefaultOptions is a headless 1280x800 local browser.
func DefaultOptions() Options {
	return Options{Headless: true, Width: 1280, Height: 800}
}

// Page is a chromedp tab that owns its allocator.
type Page struct {
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

var _ driver.Page = (*Page)(nil)

// Launch starts (or connects to) a browser and opens a tab. ctx bounds the
// startup only; the tab lives until Close.
func Launch(ctx context.Context, opts Options) (*Page, error) {
	var (
		alloc       context.Context
		cancelAlloc context.CancelFunc
	)
	if opts.RemoteURL != "" {
		alloc, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
		)
		if opts.ExecPath != "" {
			execOpts = append(execOpts, chromedp.ExecPath(opts.ExecPath))
		}
		if opts.Width > 0 && opts.Height > 0 {
			execOpts = append(execOpts, chromedp.WindowSize(opts.Width, opts.Height))
		}
		alloc, cancelAlloc = chromedp.NewExecAllocator(context.Background(), execOpts...)
	}

	var ctxOpts []chromedp.ContextOption
	if opts.Debugf != nil {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(opts.Debugf))
	}
	tab, cancelTab := chromedp.NewContext(alloc, ctxOpts...)

	p := &Page{tab: tab, cancelTab: cancelTab, cancelAlloc: cancelAlloc}

	// The first Run starts the browser.
	if err := p.run(ctx); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return p, nil
}

// Context returns the chromedp tab context for running raw chromedp actions.
func (p *Page) Context() context.Context {
	return p.tab
}

// run executes actions on the tab, bounded by ctx as well as the tab's
// own lifetime.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.tab.Err() != nil {
		return driver.ErrClosed
	}

	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case p.tab.Err() != nil:
		return fmt.Errorf("%w: %v", driver.ErrClosed, err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return err
	}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, chromedp.Title(&title))
	return title, err
}

const countScript = `document.querySelectorAll(%s).length`

func (p *Page) FindAll(ctx context.Context, css string) ([]driver.Element, error) {
	sel, err := json.Marshal(css)
	if err != nil {
		return nil, err
	}
	var n int
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(countScript, sel), &n)); err != nil {
		return nil, err
	}
	els := make([]driver.Element, n)
	for i := range els {
		els[i] = &element{page: p, css: css, sel: string(sel), index: i}
	}
	return els, nil
}

const executeScript = `(function() { %s }).apply(null, %s)`

func (p *Page) Execute(ctx context.Context, script string, args ...any) (any, error) {
	if args == nil {
		args = []any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode script arguments: %w", err)
	}
	var result any
	err = p.run(ctx, chromedp.Evaluate(fmt.Sprintf(executeScript, script, encoded), &result))
	return result, err
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

// Close closes the tab and shuts the browser down.
func (p *Page) Close() error {
	p.cancelTab()
	p.cancelAlloc()
	if err := p.tab.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
