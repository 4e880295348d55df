// Package driver defines the boundary between dolly and a browser-automation
// client.
//
// A backend only has to locate elements, execute scripts and read element
// state. Everything dolly adds (conditions, waits, expectations) is expressed
// in terms of these primitives, so the same test reads the same against
// playwright, chromedp or the in-memory page used by unit tests.
package driver

import (
	"context"
	"errors"
)

var (
	// ErrUnsupported is returned when a backend cannot perform an operation,
	// e.g. screenshots on the in-memory page.
	ErrUnsupported = errors.New("driver: operation not supported")

	// ErrClosed is returned once the page or browser has gone away. Waits
	// stop polling when they see it.
	ErrClosed = errors.New("driver: page closed")

	// ErrStale is returned when an element was detached from the document
	// between lookup and use. It is always worth retrying.
	ErrStale = errors.New("driver: stale element")
)

// Page is a single browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	// FindAll returns every element matching the CSS selector, in document
	// order. No match is not an error.
	FindAll(ctx context.Context, css string) ([]Element, error)

	// Execute runs script as the body of a function whose arguments are args
	// and returns its JSON-decoded result.
	Execute(ctx context.Context, script string, args ...any) (any, error)

	// Screenshot returns PNG bytes of the viewport.
	Screenshot(ctx context.Context) ([]byte, error)

	Close() error
}

// Element is a located DOM element.
type Element interface {
	Text(ctx context.Context) (string, error)
	// Attribute reports the attribute value and whether it was present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	Displayed(ctx context.Context) (bool, error)
	Checked(ctx context.Context) (bool, error)

	Click(ctx context.Context) error
	Focus(ctx context.Context) error
	Fill(ctx context.Context, text string) error
}

// IsFatal reports whether err means the page can no longer answer, so
// polling it again is pointless.
func IsFatal(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, ErrUnsupported)
}
