package dolly

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/teranos/dolly/condition"
	"github.com/teranos/dolly/driver"
	"github.com/teranos/dolly/trip"
	"github.com/teranos/dolly/wait"
)

// Navigate loads url in the page.
func (d *Director) Navigate(url string) *Director {
	if d.skip("Navigate") {
		return d
	}
	d.tracef("Navigate: %s", url)
	began := time.Now()

	if err := d.page.Navigate(d.ctx, url); err != nil {
		d.recordTrip(trip.FromError(trip.KindAction, err, trip.Context{
			"action": "navigate",
			"url":    url,
		}).WithSeverity(severityFor(err)))
		return d
	}

	d.recordAction("navigate", url, began, nil)
	d.captureSnapshot("navigate " + url)
	return d
}

// Click waits for sel to be visible and clicks its first visible match.
func (d *Director) Click(sel string) *Director {
	return d.elementAction("Click", "click", sel, func(el driver.Element) error {
		return el.Click(d.ctx)
	})
}

// Focus waits for sel to be visible and focuses its first visible match.
func (d *Director) Focus(sel string) *Director {
	return d.elementAction("Focus", "focus", sel, func(el driver.Element) error {
		return el.Focus(d.ctx)
	})
}

// Type waits for sel to be visible and replaces its value with text.
func (d *Director) Type(sel, text string) *Director {
	return d.elementAction("Type", "type", sel, func(el driver.Element) error {
		return el.Fill(d.ctx, text)
	})
}

// elementAction waits for sel to be visible, then applies act to the first
// visible match. Stale or vanished elements are looked up again using the
// action retry policy.
func (d *Director) elementAction(step, actionType, sel string, act func(driver.Element) error) *Director {
	if d.skip(step) {
		return d
	}
	d.tracef("%s: %s", step, sel)
	began := time.Now()

	if err := wait.Until(d.ctx, d.page, condition.Visible(sel), d.config.waitOptions()); err != nil {
		d.recordTrip(trip.FromError(trip.KindAction, err, trip.Context{
			"action":   actionType,
			"selector": sel,
			"waited":   time.Since(began).Round(time.Millisecond).String(),
		}).WithSeverity(severityFor(err)))
		return d
	}

	retry, _ := d.trips.GetRetryConfig(trip.KindAction)
	var (
		err      error
		attempts int // tries actually made
	)
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			d.tracef("%s: retry %d for %s after: %v", step, attempt, sel, err)
			if !d.sleep(retry.Delay(attempt)) {
				err = d.ctx.Err()
				break
			}
		}
		attempts++
		err = d.withVisible(sel, act)
		if err == nil || !retryable(err) {
			break
		}
	}

	if err != nil {
		d.recordTrip(trip.FromError(trip.KindAction, err, trip.Context{
			"action":   actionType,
			"selector": sel,
		}).WithAttempt(attempts).WithSeverity(severityFor(err)))
		return d
	}

	d.recordAction(actionType, sel, began, nil)
	d.captureSnapshot(actionType + " " + sel)
	return d
}

// errVanished means the element was visible during the wait but not when
// the action looked it up again.
var errVanished = errors.New("element no longer visible")

func (d *Director) withVisible(sel string, act func(driver.Element) error) error {
	els, err := d.page.FindAll(d.ctx, sel)
	if err != nil {
		return err
	}
	for _, el := range els {
		shown, err := el.Displayed(d.ctx)
		if err != nil {
			if errors.Is(err, driver.ErrStale) {
				continue
			}
			return err
		}
		if shown {
			return act(el)
		}
	}
	return fmt.Errorf("%q: %w", sel, errVanished)
}

func retryable(err error) bool {
	return errors.Is(err, driver.ErrStale) || errors.Is(err, errVanished)
}

// sleep pauses for dur unless the scene context ends first.
func (d *Director) sleep(dur time.Duration) bool {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-d.ctx.Done():
		return false
	}
}

// Execute runs script in the page and records its result. Inside the
// script the arguments are available as arguments[i].
func (d *Director) Execute(script string, args ...any) *Director {
	d.execute(script, args, nil)
	return d
}

// ExecuteInto runs script and decodes its result into dst, which must be a
// pointer. The result goes through JSON, so numbers decode into any numeric
// field and objects into structs.
func (d *Director) ExecuteInto(dst any, script string, args ...any) *Director {
	d.execute(script, args, dst)
	return d
}

func (d *Director) execute(script string, args []any, dst any) {
	if d.skip("Execute") {
		return
	}
	d.tracef("Execute: %s", abbreviateScript(script))
	began := time.Now()

	context := trip.Context{"script": abbreviateScript(script)}
	if len(args) > 0 {
		context["args"] = args
	}

	result, err := d.page.Execute(d.ctx, script, args...)
	if err != nil {
		d.recordTrip(trip.FromError(trip.KindScript, err, context).WithSeverity(severityFor(err)))
		return
	}

	if dst != nil {
		if err := decodeInto(result, dst); err != nil {
			context["result"] = result
			d.recordTrip(trip.FromError(trip.KindScript, err, context))
			return
		}
	}

	d.recordAction("execute", abbreviateScript(script), began, result)
	d.captureSnapshot("execute")
}

func decodeInto(v, dst any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode script result: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode script result into %T: %w", dst, err)
	}
	return nil
}

// Pause waits for a fixed duration. Prefer WaitFor; Pause is for demos and
// for animations no condition can observe.
func (d *Director) Pause(dur time.Duration) *Director {
	if d.skip("Pause") {
		return d
	}
	began := time.Now()
	if !d.sleep(dur) {
		d.recordTrip(trip.FromError(trip.KindSystem, d.ctx.Err(), trip.Context{"pause": dur.String()}))
		return d
	}
	d.recordAction("pause", dur.String(), began, nil)
	return d
}

func abbreviateScript(script string) string {
	const max = 80
	r := []rune(script)
	if len(r) <= max {
		return script
	}
	return string(r[:max-3]) + "..."
}
