// Package dolly is a fluent DSL for end-to-end browser tests.
//
// A Director drives one browser page through a scene: actions, waits and
// expectations chain together, and every step waits for the UI to settle
// instead of sleeping. Failures are collected as trips and returned in the
// SceneResult rather than aborting the test at the first problem.
//
// Basic usage:
//
//	page, _ := playwright.Launch(ctx, playwright.Options{Headless: true})
//
//	result := dolly.NewDirector(t, page).
//		WithTimeout(5 * time.Second).
//		Start().
//		Navigate(server.URL + "/signup").
//		Type("#email", "ada@example.com").
//		Click("#terms").
//		ExpectChecked("#terms").
//		Click("button[type=submit]").
//		ExpectText("h1", "Welcome").
//		Stop()
//
//	result.Require(t)
//
// Any driver.Page works; driver/memdriver is an in-memory page for unit
// tests of the DSL itself.
package dolly

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/dolly/driver"
	"github.com/teranos/dolly/trip"
)

// Director orchestrates one scene against a browser page.
//
// Steps after the first failure are skipped, so the trip that caused the
// failure is the one reported. The director does not own the page; closing
// it is up to the caller.
type Director struct {
	t      testing.TB
	name   string
	page   driver.Page
	ctx    context.Context
	cancel context.CancelFunc

	actions   []SceneAction
	snapshots []SceneSnapshot
	frames    []Frame

	trips      *trip.Handler
	failed     bool
	supervisor *ScriptSupervisor
	renderer   *RenderingStage

	config    Config
	started   bool
	startedAt time.Time
}

// SceneAction records a single step.
type SceneAction struct {
	Timestamp time.Time
	Type      string        // "navigate", "click", "wait", "expect", "assert", "execute", "screenshot"
	Target    string        // selector, URL or condition description
	Duration  time.Duration // how long the step took, waits included
	Result    interface{}   // script results, comparison results
}

// SceneSnapshot is the page location after a step.
type SceneSnapshot struct {
	Timestamp time.Time
	Reason    string
	URL       string
	Title     string
}

// Frame is a captured image.
type Frame struct {
	Label     string
	Timestamp time.Time
	PNG       []byte
	Path      string // file it was written to, if any
	Rendered  bool   // true when drawn from page text rather than a screenshot
}

// SceneResult is everything a scene produced.
//
// Example usage:
//
//	result := director.Stop()
//	if !result.Success {
//		t.Logf("Scene failed after %v", result.Duration)
//		t.Logf("Error: %s", result.ErrorMessage)
//		for _, s := range result.Snapshots {
//			t.Logf("%s at %s", s.Reason, s.URL)
//		}
//	}
type SceneResult struct {
	Name         string
	RunID        string
	Actions      []SceneAction
	Snapshots    []SceneSnapshot
	Frames       []Frame
	Success      bool
	StartedAt    time.Time
	Duration     time.Duration
	ErrorMessage string     // first failure, human readable
	Error        error      // first failure as a *trip.Trip
	ErrorDetails string     // first failure with its context
	TripReport   string     // every trip and stumble
	Trips        []*trip.Trip
	Stumbles     []*trip.Trip
	ReportPath   string // HTML report, when Config.ReportDir is set
}

// Require fails the test immediately when the scene did not succeed.
func (r *SceneResult) Require(t testing.TB) {
	t.Helper()
	if !r.Success {
		t.Fatalf("scene %s failed: %s\n%s", r.Name, r.ErrorMessage, r.ErrorDetails)
	}
}

// NewDirector creates a director with DefaultConfig. The scene is named
// after the test.
func NewDirector(t testing.TB, page driver.Page) *Director {
	return NewDirectorWithConfig(t, page, DefaultConfig())
}

// NewDirectorWithConfig creates a director with a custom configuration.
//
// Example:
//
//	config := dolly.DefaultConfig()
//	config.Timeout = time.Second
//	director := dolly.NewDirectorWithConfig(t, page, config)
func NewDirectorWithConfig(t testing.TB, page driver.Page, config Config) *Director {
	ctx, cancel := context.WithCancel(context.Background())

	name := "scene"
	if t != nil {
		name = t.Name()
	}

	d := &Director{
		t:          t,
		name:       name,
		page:       page,
		ctx:        ctx,
		cancel:     cancel,
		actions:    make([]SceneAction, 0),
		snapshots:  make([]SceneSnapshot, 0),
		trips:      trip.NewHandler(name, trip.DefaultPolicy()),
		config:     config,
		supervisor: NewScriptSupervisor(config.BaselineDir).WithTolerance(config.Tolerance),
	}

	if err := config.Validate(); err != nil {
		d.recordTrip(trip.FromError(trip.KindSystem, err, nil))
	}
	return d
}

// WithName overrides the scene name used in reports and frame file names.
func (d *Director) WithName(name string) *Director {
	if d.started {
		d.logf("cannot rename a started scene - ignoring WithName(%q)", name)
		return d
	}
	d.name = name
	d.trips.Rename(name)
	return d
}

// WithContext bounds the whole scene by ctx. Must be called before Start.
func (d *Director) WithContext(ctx context.Context) *Director {
	if d.started {
		d.logf("cannot change context after Start - ignoring WithContext")
		return d
	}
	d.cancel()
	d.ctx, d.cancel = context.WithCancel(ctx)
	return d
}

// WithTimeout sets the timeout for waits, expectations and actions.
func (d *Director) WithTimeout(timeout time.Duration) *Director {
	d.config.Timeout = timeout
	return d
}

// WithPollInterval sets the delay between condition checks.
func (d *Director) WithPollInterval(interval time.Duration) *Director {
	d.config.PollInterval = interval
	return d
}

// WithScreenshots writes captured frames to dir.
func (d *Director) WithScreenshots(dir string) *Director {
	d.config.ScreenshotDir = dir
	return d
}

// WithSnapshots enables or disables URL/title snapshots.
func (d *Director) WithSnapshots(enabled bool) *Director {
	d.config.CaptureSnapshots = enabled
	return d
}

// Start begins the scene.
func (d *Director) Start() *Director {
	if d.started {
		d.logf("director already started")
		return d
	}
	if d.page == nil {
		d.recordTrip(trip.NewFall(trip.KindSystem, "no page to direct", nil))
		return d
	}

	d.started = true
	d.startedAt = time.Now()
	d.tracef("Start: scene %q, timeout=%v, poll=%v", d.name, d.config.Timeout, d.config.PollInterval)
	d.captureSnapshot("start")
	return d
}

// Stop ends the scene and returns its result. When Config.ReportDir is set
// an HTML report is written under ReportDir/<scene>/<timestamp>/.
func (d *Director) Stop() *SceneResult {
	if !d.started {
		d.cancel()
		return &SceneResult{
			Name:         d.name,
			Success:      false,
			ErrorMessage: "director was never started",
			Error:        errors.New("director was never started"),
			TripReport:   d.trips.DetailedReport(),
		}
	}

	d.captureSnapshot("stop")
	d.cancel()

	result := &SceneResult{
		Name:       d.name,
		RunID:      uuid.NewString(),
		Actions:    d.actions,
		Snapshots:  d.snapshots,
		Frames:     d.frames,
		Success:    !d.HasFailed(),
		StartedAt:  d.startedAt,
		Duration:   time.Since(d.startedAt),
		TripReport: d.trips.DetailedReport(),
		Trips:      d.trips.GetTrips(),
		Stumbles:   d.trips.GetStumbles(),
	}

	if first := d.trips.First(); first != nil {
		result.Error = first
		result.ErrorMessage = fmt.Sprintf("[%s] %s", first.Kind, first.Message)
		result.ErrorDetails = first.DetailedString()
	}

	if d.config.ReportDir != "" {
		dir := filepath.Join(d.config.ReportDir, sanitizeName(d.name), reportDirName(d.startedAt, result.RunID))
		if err := NewHTMLReportGenerator(dir).GenerateReport(BuildReport(result)); err != nil {
			d.logf("failed to write scene report: %v", err)
		} else {
			result.ReportPath = filepath.Join(dir, "index.html")
		}
	}

	d.tracef("Stop: success=%t duration=%v actions=%d", result.Success, result.Duration, len(result.Actions))
	return result
}

// HasFailed returns true once a non-recoverable trip has been recorded.
func (d *Director) HasFailed() bool {
	return d.failed || !d.trips.ShouldContinue()
}

// GetError returns the first failure, or nil.
func (d *Director) GetError() error {
	if first := d.trips.First(); first != nil {
		return first
	}
	return nil
}

// GetTripHandler returns the trip handler for detailed error analysis.
func (d *Director) GetTripHandler() *trip.Handler {
	return d.trips
}

// Page returns the page being directed.
func (d *Director) Page() driver.Page {
	return d.page
}

// ActionCount returns the number of recorded steps.
func (d *Director) ActionCount() int {
	return len(d.actions)
}

// LatestSnapshot returns the most recent snapshot.
func (d *Director) LatestSnapshot() SceneSnapshot {
	if len(d.snapshots) == 0 {
		return SceneSnapshot{}
	}
	return d.snapshots[len(d.snapshots)-1]
}

// skip reports whether step should not run, logging why.
func (d *Director) skip(step string) bool {
	if !d.started {
		d.recordTrip(trip.NewTrip(trip.KindSystem, fmt.Sprintf("%s called before Start", step), nil))
		return true
	}
	if d.HasFailed() {
		d.tracef("%s: skipped after earlier failure", step)
		return true
	}
	return false
}

func (d *Director) recordAction(actionType, target string, began time.Time, result interface{}) {
	d.actions = append(d.actions, SceneAction{
		Timestamp: time.Now(),
		Type:      actionType,
		Target:    target,
		Duration:  time.Since(began),
		Result:    result,
	})
}

func (d *Director) captureSnapshot(reason string) {
	if !d.config.CaptureSnapshots || d.page == nil {
		return
	}
	snapshot := SceneSnapshot{Timestamp: time.Now(), Reason: reason}
	if u, err := d.page.URL(d.ctx); err == nil {
		snapshot.URL = u
	}
	if title, err := d.page.Title(d.ctx); err == nil {
		snapshot.Title = title
	}
	d.snapshots = append(d.snapshots, snapshot)
}

// recordTrip stores a trip and reports it to the test according to its
// severity.
func (d *Director) recordTrip(tr *trip.Trip) {
	d.trips.Record(tr)
	if !tr.CanRecover() {
		d.failed = true
	}

	if d.t == nil {
		return
	}
	d.t.Helper()
	switch {
	case tr.IsFall():
		d.t.Error(tr.DetailedString())
	case !tr.CanRecover() && d.config.ReportTrips:
		d.t.Errorf("%s", tr.DetailedString())
	default:
		d.t.Log(tr.DetailedString())
	}
}

// severityFor escalates errors that mean the browser is gone.
func severityFor(err error) trip.Severity {
	if errors.Is(err, driver.ErrClosed) {
		return trip.Fall
	}
	return trip.Error
}

func (d *Director) tracef(format string, args ...interface{}) {
	if d.config.Trace && d.t != nil {
		d.t.Helper()
		d.t.Logf("[TRACE] "+format, args...)
	}
}

func (d *Director) logf(format string, args ...interface{}) {
	if d.t != nil {
		d.t.Helper()
		d.t.Logf(format, args...)
	}
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
