// Package trip provides error handling for dolly scenes.
//
// When a scene step fails it "trips". A trip records what kind of step
// failed, how bad it is, and the browser state around it, so a failed scene
// can be explained after the fact without rerunning it.
package trip

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kinds of trips recorded by the director.
const (
	KindAction      = "action"      // click, focus, fill, navigate
	KindWait        = "wait"        // a WaitFor* step ran out of time
	KindExpectation = "expectation" // an Expect* step never became true
	KindAssertion   = "assertion"   // an immediate Assert failed
	KindScript      = "script"      // Execute returned an error
	KindVisual      = "visual"      // screenshot or baseline problems
	KindSystem      = "system"      // driver or setup failures
)

// Trip is a failed scene step with context.
//
// Example:
//
//	t := NewTrip(KindExpectation, `"#done" never became visible`,
//	    Context{"selector": "#done", "observed": "1 element, 0 visible"})
//
//	if t.CanRecover() {
//	    // keep going
//	}
type Trip struct {
	Kind      string    // what kind of step failed
	Message   string    // human-readable description
	Context   Context   // additional debugging information
	Timestamp time.Time // when the step failed
	Attempt   int       // which attempt/retry this was
	Severity  Severity  // how serious this is
	Err       error     // underlying error, if any
}

// Context carries the browser state around a trip.
type Context map[string]interface{}

// Severity indicates how serious a trip is and how it should be handled.
type Severity int

const (
	// Stumble is a minor issue that does not invalidate the scene, such as a
	// screenshot that could not be written.
	Stumble Severity = iota

	// Error fails the scene. Later steps are skipped.
	Error

	// Fall means the browser itself is gone. It is reported to the test
	// immediately.
	Fall
)

func (s Severity) String() string {
	switch s {
	case Stumble:
		return "stumble"
	case Error:
		return "error"
	case Fall:
		return "fall"
	default:
		return "unknown"
	}
}

// NewTrip creates a trip with Error severity.
func NewTrip(kind, message string, context Context) *Trip {
	return &Trip{
		Kind:      kind,
		Message:   message,
		Context:   context,
		Timestamp: time.Now(),
		Severity:  Error,
	}
}

// NewStumble creates a trip with Stumble severity.
func NewStumble(kind, message string, context Context) *Trip {
	return NewTrip(kind, message, context).WithSeverity(Stumble)
}

// NewFall creates a trip with Fall severity.
func NewFall(kind, message string, context Context) *Trip {
	return NewTrip(kind, message, context).WithSeverity(Fall)
}

// FromError wraps err in a trip of the given kind.
func FromError(kind string, err error, context Context) *Trip {
	t := NewTrip(kind, err.Error(), context)
	t.Err = err
	return t
}

// WithAttempt sets the attempt number.
func (t *Trip) WithAttempt(attemptNumber int) *Trip {
	t.Attempt = attemptNumber
	return t
}

// WithSeverity sets the severity.
func (t *Trip) WithSeverity(severity Severity) *Trip {
	t.Severity = severity
	return t
}

// Error implements the error interface.
func (t *Trip) Error() string {
	return fmt.Sprintf("[%s:%s] %s", t.Kind, t.Severity, t.Message)
}

// Unwrap returns the underlying error.
func (t *Trip) Unwrap() error { return t.Err }

// CanRecover returns true if the scene can continue despite this trip.
func (t *Trip) CanRecover() bool {
	return t.Severity == Stumble
}

// IsFall returns true if the scene should stop and report immediately.
func (t *Trip) IsFall() bool {
	return t.Severity == Fall
}

// GetContext returns a context value if present.
func (t *Trip) GetContext(key string) (interface{}, bool) {
	if t.Context == nil {
		return nil, false
	}
	val, exists := t.Context[key]
	return val, exists
}

// DetailedString returns the trip with its context, keys sorted.
func (t *Trip) DetailedString() string {
	var details strings.Builder

	details.WriteString(t.Error())
	details.WriteString(fmt.Sprintf("\n  Time: %s", t.Timestamp.Format("15:04:05.000")))

	if t.Attempt > 0 {
		details.WriteString(fmt.Sprintf("\n  Attempt: %d", t.Attempt))
	}

	if len(t.Context) > 0 {
		details.WriteString("\n  Context:")
		for _, key := range t.sortedKeys() {
			details.WriteString(fmt.Sprintf("\n    %s: %v", key, t.Context[key]))
		}
	}

	return details.String()
}

func (t *Trip) sortedKeys() []string {
	keys := make([]string, 0, len(t.Context))
	for k := range t.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// As finds the first *Trip in err's chain.
func As(err error) (*Trip, bool) {
	var t *Trip
	ok := errors.As(err, &t)
	return t, ok
}
