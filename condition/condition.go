// Package condition provides composable predicates over browser state.
//
// A Condition is evaluated once per poll by the wait engine. Constructors
// here never block and never retry; retrying is the engine's job. Each check
// reports what it actually saw so a timeout can say more than "false".
package condition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/teranos/dolly/driver"
)

// Result is the outcome of a single evaluation.
type Result struct {
	Met      bool
	Observed string // what the page showed, for timeout messages
}

// CheckFunc evaluates a condition against the page once.
type CheckFunc func(ctx context.Context, page driver.Page) (Result, error)

// Condition is a named, re-evaluable predicate.
type Condition struct {
	Description string
	Check       CheckFunc
}

func (c Condition) String() string { return c.Description }

// Evaluate runs the check once. Stale elements are folded into a not-met
// result since the next poll will look them up again.
func (c Condition) Evaluate(ctx context.Context, page driver.Page) (Result, error) {
	res, err := check(ctx, c, page)
	if errors.Is(err, driver.ErrStale) {
		return Result{Observed: err.Error()}, nil
	}
	return res, err
}

// Func builds a condition from an arbitrary check.
func Func(description string, check CheckFunc) Condition {
	return Condition{Description: description, Check: check}
}

func met(ok bool, format string, args ...any) Result {
	return Result{Met: ok, Observed: fmt.Sprintf(format, args...)}
}

// first returns the first element matching sel, or nil.
func first(ctx context.Context, page driver.Page, sel string) (driver.Element, error) {
	els, err := page.FindAll(ctx, sel)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

// Checked holds when the first element matching sel is checked.
func Checked(sel string) Condition {
	return checkState(sel, true)
}

// Unchecked holds when the first element matching sel exists and is not
// checked.
func Unchecked(sel string) Condition {
	return checkState(sel, false)
}

func checkState(sel string, want bool) Condition {
	state := "unchecked"
	if want {
		state = "checked"
	}
	return Func(fmt.Sprintf("%q to be %s", sel, state), func(ctx context.Context, page driver.Page) (Result, error) {
		el, err := first(ctx, page, sel)
		if err != nil {
			return Result{}, err
		}
		if el == nil {
			return met(false, "no element"), nil
		}
		checked, err := el.Checked(ctx)
		if err != nil {
			return Result{}, err
		}
		if checked {
			return met(checked == want, "checked"), nil
		}
		return met(checked == want, "unchecked"), nil
	})
}

// Visible holds when any element matching sel is displayed.
func Visible(sel string) Condition {
	return Func(fmt.Sprintf("%q to be visible", sel), func(ctx context.Context, page driver.Page) (Result, error) {
		shown, total, err := displayed(ctx, page, sel)
		if err != nil {
			return Result{}, err
		}
		return met(shown > 0, "%s, %d visible", plural(total, "element"), shown), nil
	})
}

// Hidden holds when no element matching sel is displayed. A missing element
// counts as hidden.
func Hidden(sel string) Condition {
	return Func(fmt.Sprintf("%q to be hidden", sel), func(ctx context.Context, page driver.Page) (Result, error) {
		shown, total, err := displayed(ctx, page, sel)
		if err != nil {
			return Result{}, err
		}
		return met(shown == 0, "%s, %d visible", plural(total, "element"), shown), nil
	})
}

func displayed(ctx context.Context, page driver.Page, sel string) (shown, total int, err error) {
	els, err := page.FindAll(ctx, sel)
	if err != nil {
		return 0, 0, err
	}
	for _, el := range els {
		ok, err := el.Displayed(ctx)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			shown++
		}
	}
	return shown, len(els), nil
}

// Present holds when at least one element matches sel.
func Present(sel string) Condition {
	c := CountAtLeast(sel, 1)
	c.Description = fmt.Sprintf("%q to be present", sel)
	return c
}

// Absent holds when nothing matches sel.
func Absent(sel string) Condition {
	c := CountIs(sel, 0)
	c.Description = fmt.Sprintf("%q to be absent", sel)
	return c
}

// TextIs holds when the trimmed text of the first match equals want.
func TextIs(sel, want string) Condition {
	return textCondition(sel, fmt.Sprintf("text %q", want), func(s string) bool { return s == want })
}

// TextContains holds when the text of the first match contains want.
func TextContains(sel, want string) Condition {
	return textCondition(sel, fmt.Sprintf("text containing %q", want), func(s string) bool { return strings.Contains(s, want) })
}

// TextMatches holds when the trimmed text of the first match matches re.
func TextMatches(sel string, re *regexp.Regexp) Condition {
	return textCondition(sel, fmt.Sprintf("text matching /%s/", re), re.MatchString)
}

func textCondition(sel, what string, ok func(string) bool) Condition {
	return Func(fmt.Sprintf("%q to have %s", sel, what), func(ctx context.Context, page driver.Page) (Result, error) {
		el, err := first(ctx, page, sel)
		if err != nil {
			return Result{}, err
		}
		if el == nil {
			return met(false, "no element"), nil
		}
		text, err := el.Text(ctx)
		if err != nil {
			return Result{}, err
		}
		text = strings.TrimSpace(text)
		return met(ok(text), "text %q", text), nil
	})
}

// CountIs holds when exactly n elements match sel.
func CountIs(sel string, n int) Condition {
	return countCondition(sel, fmt.Sprintf("exactly %d", n), func(got int) bool { return got == n })
}

// CountAtLeast holds when n or more elements match sel.
func CountAtLeast(sel string, n int) Condition {
	return countCondition(sel, fmt.Sprintf("at least %d", n), func(got int) bool { return got >= n })
}

// CountAtMost holds when at most n elements match sel.
func CountAtMost(sel string, n int) Condition {
	return countCondition(sel, fmt.Sprintf("at most %d", n), func(got int) bool { return got <= n })
}

func countCondition(sel, what string, ok func(int) bool) Condition {
	return Func(fmt.Sprintf("%q to match %s elements", sel, what), func(ctx context.Context, page driver.Page) (Result, error) {
		els, err := page.FindAll(ctx, sel)
		if err != nil {
			return Result{}, err
		}
		return met(ok(len(els)), "%s", plural(len(els), "element")), nil
	})
}

// AttributeIs holds when the first match has attribute name equal to want.
func AttributeIs(sel, name, want string) Condition {
	return attrCondition(sel, name, fmt.Sprintf("= %q", want), func(v string) bool { return v == want })
}

// AttributeContains holds when the first match has attribute name
// containing want.
func AttributeContains(sel, name, want string) Condition {
	return attrCondition(sel, name, fmt.Sprintf("containing %q", want), func(v string) bool { return strings.Contains(v, want) })
}

func attrCondition(sel, name, what string, ok func(string) bool) Condition {
	return Func(fmt.Sprintf("%q to have attribute %s %s", sel, name, what), func(ctx context.Context, page driver.Page) (Result, error) {
		el, err := first(ctx, page, sel)
		if err != nil {
			return Result{}, err
		}
		if el == nil {
			return met(false, "no element"), nil
		}
		v, present, err := el.Attribute(ctx, name)
		if err != nil {
			return Result{}, err
		}
		if !present {
			return met(false, "no attribute %s", name), nil
		}
		return met(ok(v), "%s=%q", name, v), nil
	})
}

// URLContains holds when the page URL contains s.
func URLContains(s string) Condition {
	return Func(fmt.Sprintf("URL to contain %q", s), func(ctx context.Context, page driver.Page) (Result, error) {
		u, err := page.URL(ctx)
		if err != nil {
			return Result{}, err
		}
		return met(strings.Contains(u, s), "URL %q", u), nil
	})
}

// TitleIs holds when the document title equals want.
func TitleIs(want string) Condition {
	return Func(fmt.Sprintf("title to be %q", want), func(ctx context.Context, page driver.Page) (Result, error) {
		title, err := page.Title(ctx)
		if err != nil {
			return Result{}, err
		}
		return met(title == want, "title %q", title), nil
	})
}

// ScriptTrue holds when script returns a truthy value.
func ScriptTrue(script string, args ...any) Condition {
	return Func(fmt.Sprintf("script %s to return true", abbreviate(script, 60)), func(ctx context.Context, page driver.Page) (Result, error) {
		v, err := page.Execute(ctx, script, args...)
		if err != nil {
			return Result{}, err
		}
		return met(Truthy(v), "returned %v", v), nil
	})
}

// Truthy applies JavaScript truthiness to a JSON-decoded value.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case int64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func abbreviate(s string, max int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "..."
}
