package dolly

import (
	"errors"
	"time"

	"github.com/teranos/dolly/condition"
	"github.com/teranos/dolly/trip"
	"github.com/teranos/dolly/wait"
)

// WaitFor polls cond until it holds or the timeout elapses.
//
// Use WaitFor to synchronize with the UI and Expect to state what the test
// is checking. They behave the same; only the trip kind in the report
// differs.
func (d *Director) WaitFor(cond condition.Condition) *Director {
	return d.await("WaitFor", "wait", trip.KindWait, cond, d.config.waitOptions())
}

// WaitForVisible waits until sel is displayed.
func (d *Director) WaitForVisible(sel string) *Director {
	return d.WaitFor(condition.Visible(sel))
}

// WaitForHidden waits until nothing matching sel is displayed.
func (d *Director) WaitForHidden(sel string) *Director {
	return d.WaitFor(condition.Hidden(sel))
}

// WaitForText waits until the text of sel contains text.
func (d *Director) WaitForText(sel, text string) *Director {
	return d.WaitFor(condition.TextContains(sel, text))
}

// WaitForCount waits until exactly n elements match sel.
func (d *Director) WaitForCount(sel string, n int) *Director {
	return d.WaitFor(condition.CountIs(sel, n))
}

// Expect polls cond until it holds and fails the scene if it never does.
func (d *Director) Expect(cond condition.Condition) *Director {
	return d.await("Expect", "expect", trip.KindExpectation, cond, d.config.waitOptions())
}

// ExpectChecked expects the first match of sel to be checked.
func (d *Director) ExpectChecked(sel string) *Director {
	return d.Expect(condition.Checked(sel))
}

// ExpectUnchecked expects the first match of sel to be unchecked.
func (d *Director) ExpectUnchecked(sel string) *Director {
	return d.Expect(condition.Unchecked(sel))
}

// ExpectVisible expects sel to be displayed.
func (d *Director) ExpectVisible(sel string) *Director {
	return d.Expect(condition.Visible(sel))
}

// ExpectHidden expects nothing matching sel to be displayed.
func (d *Director) ExpectHidden(sel string) *Director {
	return d.Expect(condition.Hidden(sel))
}

// ExpectText expects the trimmed text of sel to equal text.
func (d *Director) ExpectText(sel, text string) *Director {
	return d.Expect(condition.TextIs(sel, text))
}

// ExpectTextContains expects the text of sel to contain text.
func (d *Director) ExpectTextContains(sel, text string) *Director {
	return d.Expect(condition.TextContains(sel, text))
}

// ExpectCount expects exactly n elements to match sel.
func (d *Director) ExpectCount(sel string, n int) *Director {
	return d.Expect(condition.CountIs(sel, n))
}

// ExpectAttribute expects attribute name of sel to equal value.
func (d *Director) ExpectAttribute(sel, name, value string) *Director {
	return d.Expect(condition.AttributeIs(sel, name, value))
}

// ExpectURLContains expects the page URL to contain s.
func (d *Director) ExpectURLContains(s string) *Director {
	return d.Expect(condition.URLContains(s))
}

// Assert checks cond exactly once, without waiting.
func (d *Director) Assert(cond condition.Condition) *Director {
	opts := d.config.waitOptions()
	opts.Timeout = 0
	return d.await("Assert", "assert", trip.KindAssertion, cond, opts)
}

func (d *Director) await(step, actionType, kind string, cond condition.Condition, opts wait.Options) *Director {
	if d.skip(step) {
		return d
	}
	d.tracef("%s: %s (timeout=%v)", step, cond.Description, opts.Timeout)
	began := time.Now()

	if err := wait.Until(d.ctx, d.page, cond, opts); err != nil {
		context := trip.Context{
			"condition": cond.Description,
			"timeout":   opts.Timeout.String(),
		}
		var te *wait.TimeoutError
		if errors.As(err, &te) {
			context["attempts"] = te.Attempts
			if te.Observed != "" {
				context["observed"] = te.Observed
			}
		}
		if u, uerr := d.page.URL(d.ctx); uerr == nil {
			context["url"] = u
		}
		d.recordTrip(trip.FromError(kind, err, context).WithSeverity(severityFor(err)))
		return d
	}

	d.tracef("%s: %s met after %v", step, cond.Description, time.Since(began).Round(time.Millisecond))
	d.recordAction(actionType, cond.Description, began, nil)
	return d
}
