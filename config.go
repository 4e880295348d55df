package dolly

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/dolly/wait"
)

// Config configures a Director.
//
// Example usage:
//
//	config := dolly.DefaultConfig()
//	config.Timeout = 2 * time.Second     // fail fast
//	config.ScreenshotDir = "tmp/frames"  // keep every captured frame
//
//	director := dolly.NewDirectorWithConfig(t, page, config)
type Config struct {
	// Timeout bounds every wait, expectation and the visibility wait in
	// front of element actions.
	Timeout time.Duration
	// PollInterval is the minimum delay between two condition checks.
	PollInterval time.Duration
	// CaptureSnapshots records URL and title after every step.
	CaptureSnapshots bool
	// ScreenshotDir, when set, receives a PNG per Screenshot call.
	ScreenshotDir string
	// BaselineDir holds reference frames for MatchBaseline.
	BaselineDir string
	// Tolerance is the fraction of pixels allowed to differ from a baseline.
	Tolerance float64
	// RenderedTolerance replaces Tolerance for frames rendered from page
	// text. Rendering is deterministic, so any change is a real one.
	RenderedTolerance float64
	// ReportDir, when set, receives an HTML report per scene on Stop.
	ReportDir string
	// ReportTrips reports failed steps to the test with t.Errorf. Turn it
	// off when a test expects a scene to fail.
	ReportTrips bool
	// Trace logs every step with t.Logf.
	Trace bool
	// Frame sizes the text rendering used when the backend has no
	// screenshots.
	Frame FrameConfig
}

// DefaultConfig returns a Config with sensible defaults.
//
// The default configuration provides:
//   - 5 second timeout for waits, expectations and actions
//   - 50ms between condition checks
//   - URL/title snapshots after every step
//   - 5% baseline tolerance for screenshots, none for rendered text frames
//   - failed steps reported to the test
func DefaultConfig() Config {
	return Config{
		Timeout:           wait.DefaultTimeout,
		PollInterval:      wait.DefaultInterval,
		CaptureSnapshots:  true,
		BaselineDir:       "testdata/baselines",
		Tolerance:         0.05,
		RenderedTolerance: 0,
		ReportTrips:       true,
		Frame:             DefaultFrameConfig(),
	}
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dolly configuration invalid:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks the configuration for values the director cannot use.
func (c Config) Validate() error {
	var errs []string
	if c.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("timeout must not be negative, got %v", c.Timeout))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Sprintf("poll interval must be positive, got %v", c.PollInterval))
	}
	if c.Tolerance < 0 || c.Tolerance > 1 {
		errs = append(errs, fmt.Sprintf("tolerance must be between 0 and 1, got %v", c.Tolerance))
	}
	if c.RenderedTolerance < 0 || c.RenderedTolerance > 1 {
		errs = append(errs, fmt.Sprintf("rendered tolerance must be between 0 and 1, got %v", c.RenderedTolerance))
	}
	if c.Frame.Width <= 0 || c.Frame.Height <= 0 {
		errs = append(errs, fmt.Sprintf("frame size must be positive, got %dx%d", c.Frame.Width, c.Frame.Height))
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ConfigFromEnv starts from DefaultConfig and applies DOLLY_* environment
// variables:
//
//	DOLLY_TIMEOUT             duration, e.g. "10s"
//	DOLLY_POLL_INTERVAL       duration
//	DOLLY_SNAPSHOTS           bool
//	DOLLY_SCREENSHOT_DIR      path
//	DOLLY_BASELINE_DIR        path
//	DOLLY_TOLERANCE           float between 0 and 1
//	DOLLY_RENDERED_TOLERANCE  float between 0 and 1
//	DOLLY_REPORT_DIR          path
//	DOLLY_TRACE               bool
func ConfigFromEnv() (Config, error) {
	return configFromLookup(os.LookupEnv)
}

func configFromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	var errs []string

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}
	str := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	fraction := func(key string, dst *float64) {
		if v, ok := get(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = f
		}
	}

	duration("DOLLY_TIMEOUT", &cfg.Timeout)
	duration("DOLLY_POLL_INTERVAL", &cfg.PollInterval)
	boolean("DOLLY_SNAPSHOTS", &cfg.CaptureSnapshots)
	boolean("DOLLY_TRACE", &cfg.Trace)
	str("DOLLY_SCREENSHOT_DIR", &cfg.ScreenshotDir)
	str("DOLLY_BASELINE_DIR", &cfg.BaselineDir)
	str("DOLLY_REPORT_DIR", &cfg.ReportDir)
	fraction("DOLLY_TOLERANCE", &cfg.Tolerance)
	fraction("DOLLY_RENDERED_TOLERANCE", &cfg.RenderedTolerance)

	if len(errs) > 0 {
		return cfg, &ValidationError{Errors: errs}
	}
	return cfg, cfg.Validate()
}

func (c Config) waitOptions() wait.Options {
	return wait.Options{Timeout: c.Timeout, Interval: c.PollInterval}
}
