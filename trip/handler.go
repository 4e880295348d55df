package trip

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Handler collects the trips of one scene.
type Handler struct {
	mu        sync.Mutex
	component string
	trips     []*Trip
	stumbles  []*Trip
	policy    *Policy
}

// Policy defines how trips are handled.
type Policy struct {
	// StopOnFall stops the scene on the first fall.
	StopOnFall bool

	// MaxStumbles stops the scene once more stumbles than this accumulate.
	// Zero means no limit.
	MaxStumbles int

	// RecoverableKinds are recorded as stumbles regardless of the
	// severity they were created with.
	RecoverableKinds []string

	// RetryPolicy configures retries per kind.
	RetryPolicy map[string]RetryConfig
}

// RetryConfig defines retry behavior for a kind of step.
type RetryConfig struct {
	MaxRetries  int           // retries after the first attempt
	Backoff     time.Duration // delay before the first retry
	Exponential bool          // double the delay after each retry
}

// Delay returns how long to wait before retry number attempt (1-based).
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt <= 1 || !c.Exponential {
		return c.Backoff
	}
	return c.Backoff << (attempt - 1)
}

// DefaultPolicy returns the policy used by the director.
//
// Actions are retried because an element found by the visibility wait may
// be re-rendered before the click lands.
func DefaultPolicy() *Policy {
	return &Policy{
		StopOnFall:       true,
		MaxStumbles:      10,
		RecoverableKinds: []string{KindVisual},
		RetryPolicy: map[string]RetryConfig{
			KindAction: {MaxRetries: 2, Backoff: 50 * time.Millisecond, Exponential: true},
			KindVisual: {MaxRetries: 1, Backoff: 100 * time.Millisecond},
		},
	}
}

// NewHandler creates a handler for a component (usually the scene name).
func NewHandler(component string, policy *Policy) *Handler {
	if policy == nil {
		policy = DefaultPolicy()
	}

	return &Handler{
		component: component,
		trips:     make([]*Trip, 0),
		stumbles:  make([]*Trip, 0),
		policy:    policy,
	}
}

// Rename changes the component shown in summaries. Recorded trips are kept.
func (h *Handler) Rename(component string) {
	h.mu.Lock()
	h.component = component
	h.mu.Unlock()
}

// Record adds a trip. Trips of a recoverable kind are downgraded to stumbles.
func (h *Handler) Record(trip *Trip) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if trip.Severity == Error && h.canRecover(trip.Kind) {
		trip.Severity = Stumble
	}
	if trip.Severity == Stumble {
		h.stumbles = append(h.stumbles, trip)
	} else {
		h.trips = append(h.trips, trip)
	}
}

// ShouldContinue reports whether the scene may keep running.
func (h *Handler) ShouldContinue() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.policy.StopOnFall {
		for _, trip := range h.trips {
			if trip.IsFall() {
				return false
			}
		}
	}

	if h.policy.MaxStumbles > 0 && len(h.stumbles) > h.policy.MaxStumbles {
		return false
	}

	return true
}

// HasTrips returns true if any non-stumble trips have been recorded.
func (h *Handler) HasTrips() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.trips) > 0
}

// HasStumbles returns true if any stumbles have been recorded.
func (h *Handler) HasStumbles() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stumbles) > 0
}

// GetTrips returns all recorded non-stumble trips.
func (h *Handler) GetTrips() []*Trip {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Trip(nil), h.trips...)
}

// GetStumbles returns all recorded stumbles.
func (h *Handler) GetStumbles() []*Trip {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Trip(nil), h.stumbles...)
}

// First returns the first non-stumble trip, or nil.
func (h *Handler) First() *Trip {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.trips) == 0 {
		return nil
	}
	return h.trips[0]
}

// GetRetryConfig returns the retry configuration for a kind.
func (h *Handler) GetRetryConfig(kind string) (RetryConfig, bool) {
	config, exists := h.policy.RetryPolicy[kind]
	return config, exists
}

// CanRecover returns true if the given kind is recoverable.
func (h *Handler) CanRecover(kind string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canRecover(kind)
}

func (h *Handler) canRecover(kind string) bool {
	for _, k := range h.policy.RecoverableKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Summary is a one-line overview.
func (h *Handler) Summary() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.summary()
}

func (h *Handler) summary() string {
	if len(h.trips) == 0 && len(h.stumbles) == 0 {
		return fmt.Sprintf("[%s] no trips", h.component)
	}
	return fmt.Sprintf("[%s] %d trips, %d stumbles", h.component, len(h.trips), len(h.stumbles))
}

// DetailedReport lists every trip and stumble.
func (h *Handler) DetailedReport() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var report strings.Builder

	report.WriteString(fmt.Sprintf("=== %s ===\n", h.component))
	report.WriteString(h.summary() + "\n")

	if len(h.trips) > 0 {
		report.WriteString("\nTrips:\n")
		for i, trip := range h.trips {
			report.WriteString(fmt.Sprintf("%d. %s\n", i+1, trip.DetailedString()))
		}
	}

	if len(h.stumbles) > 0 {
		report.WriteString("\nStumbles:\n")
		for i, stumble := range h.stumbles {
			report.WriteString(fmt.Sprintf("%d. %s\n", i+1, stumble.DetailedString()))
		}
	}

	return report.String()
}
