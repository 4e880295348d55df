package dolly

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/teranos/dolly/driver"
	"github.com/teranos/dolly/trip"
)

// textSource is implemented by backends that can report the page's visible
// text directly.
type textSource interface {
	VisibleText() string
}

// Screenshot captures the page as a frame. Backends without screenshots get
// a rendering of the page's visible text instead, which still diffs against
// a baseline. With Config.ScreenshotDir set the frame is also written to
// ScreenshotDir/<scene>/<nnn>_<label>.png.
func (d *Director) Screenshot(label string) *Director {
	if d.skip("Screenshot") {
		return d
	}
	d.tracef("Screenshot: %s", label)
	began := time.Now()

	frame, err := d.capture(label)
	if err != nil {
		d.recordTrip(trip.FromError(trip.KindVisual, err, trip.Context{"label": label}).WithSeverity(severityFor(err)))
		return d
	}

	if d.config.ScreenshotDir != "" {
		path := filepath.Join(d.config.ScreenshotDir, sanitizeName(d.name),
			fmt.Sprintf("%03d_%s.png", len(d.frames)+1, sanitizeName(label)))
		if err := writeFile(path, frame.PNG); err != nil {
			d.recordTrip(trip.NewStumble(trip.KindVisual, "failed to write screenshot", trip.Context{
				"path":  path,
				"error": err.Error(),
			}))
		} else {
			frame.Path = path
		}
	}

	d.frames = append(d.frames, frame)
	d.recordAction("screenshot", label, began, nil)
	return d
}

func (d *Director) capture(label string) (Frame, error) {
	frame := Frame{Label: label, Timestamp: time.Now()}

	png, err := d.page.Screenshot(d.ctx)
	if err == nil {
		frame.PNG = png
		return frame, nil
	}
	if !errors.Is(err, driver.ErrUnsupported) {
		return frame, err
	}

	text, err := d.visibleText()
	if err != nil {
		return frame, fmt.Errorf("failed to read page text: %w", err)
	}
	if d.renderer == nil {
		d.renderer = NewRenderingStage(d.config.Frame)
	}
	d.renderer.RenderText(text)
	png, err = d.renderer.PNG()
	if err != nil {
		return frame, fmt.Errorf("failed to render frame: %w", err)
	}
	frame.PNG = png
	frame.Rendered = true
	return frame, nil
}

func (d *Director) visibleText() (string, error) {
	if src, ok := d.page.(textSource); ok {
		return src.VisibleText(), nil
	}
	els, err := d.page.FindAll(d.ctx, "body")
	if err != nil {
		return "", err
	}
	if len(els) == 0 {
		return "", nil
	}
	return els[0].Text(d.ctx)
}

// MatchBaseline captures a frame and compares it with the baseline stored
// under label in Config.BaselineDir. The first run stores the frame as the
// baseline. A difference above the tolerance fails the scene and leaves a
// diff image next to the baselines. Frames rendered from page text are
// deterministic and use Config.RenderedTolerance instead of
// Config.Tolerance.
func (d *Director) MatchBaseline(label string) *Director {
	if d.skip("MatchBaseline") {
		return d
	}
	began := time.Now()
	name := sanitizeName(label)

	frame, err := d.capture(label)
	if err != nil {
		d.recordTrip(trip.FromError(trip.KindVisual, err, trip.Context{"label": label}).WithSeverity(severityFor(err)))
		return d
	}
	d.frames = append(d.frames, frame)

	tolerance := d.config.Tolerance
	if frame.Rendered {
		tolerance = d.config.RenderedTolerance
	}
	result, err := d.supervisor.CompareWithin(name, frame.PNG, tolerance)
	if errors.Is(err, ErrNoBaseline) {
		if err := d.supervisor.SetBaseline(name, frame.PNG); err != nil {
			d.recordTrip(trip.FromError(trip.KindSystem, err, trip.Context{
				"baseline": d.supervisor.BaselinePath(name),
			}))
			return d
		}
		d.logf("created baseline %s", d.supervisor.BaselinePath(name))
		d.recordAction("baseline", label, began, "created")
		return d
	}

	// A mismatch fails the scene even when the diff image could not be
	// written.
	if !result.Passed() {
		context := trip.Context{
			"baseline":   d.supervisor.BaselinePath(name),
			"difference": fmt.Sprintf("%.2f%%", result.Difference*100),
			"tolerance":  fmt.Sprintf("%.2f%%", result.Tolerance*100),
		}
		if result.DiffPath != "" {
			context["diff"] = result.DiffPath
		}
		if err != nil {
			context["error"] = err.Error()
		}
		d.recordTrip(trip.NewTrip(trip.KindExpectation,
			fmt.Sprintf("%s differs from its baseline", label), context))
		return d
	}
	if err != nil {
		d.recordTrip(trip.FromError(trip.KindSystem, err, trip.Context{
			"label":    label,
			"baseline": d.supervisor.BaselinePath(name),
		}))
		return d
	}

	d.recordAction("baseline", label, began, result)
	return d
}

// Frames returns the frames captured so far.
func (d *Director) Frames() []Frame {
	return d.frames
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
