package condition

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teranos/dolly/driver"
)

// Not inverts c. A stale read is not evidence either way, so it stays
// not met instead of being flipped.
func Not(c Condition) Condition {
	return Func("not "+c.Description, func(ctx context.Context, page driver.Page) (Result, error) {
		res, err := check(ctx, c, page)
		if err != nil {
			return Result{}, err
		}
		return Result{Met: !res.Met, Observed: res.Observed}, nil
	})
}

// All holds when every condition holds. Evaluation stops at the first
// condition that does not, and its observation is reported. All of nothing
// holds.
func All(cs ...Condition) Condition {
	return Func(join(cs, " and "), func(ctx context.Context, page driver.Page) (Result, error) {
		var stale error
		for _, c := range cs {
			res, err := check(ctx, c, page)
			if errors.Is(err, driver.ErrStale) {
				stale = err
				continue
			}
			if err != nil {
				return Result{}, err
			}
			if !res.Met {
				return Result{Observed: fmt.Sprintf("%s: %s", c.Description, res.Observed)}, nil
			}
		}
		if stale != nil {
			return Result{}, stale
		}
		return Result{Met: true, Observed: "all met"}, nil
	})
}

// Any holds when at least one condition holds. Any of nothing does not.
func Any(cs ...Condition) Condition {
	return Func(join(cs, " or "), func(ctx context.Context, page driver.Page) (Result, error) {
		var (
			seen  []string
			stale error
		)
		for _, c := range cs {
			res, err := check(ctx, c, page)
			if errors.Is(err, driver.ErrStale) {
				stale = err
				continue
			}
			if err != nil {
				return Result{}, err
			}
			if res.Met {
				return Result{Met: true, Observed: fmt.Sprintf("%s: %s", c.Description, res.Observed)}, nil
			}
			seen = append(seen, res.Observed)
		}
		if stale != nil {
			return Result{}, stale
		}
		return Result{Observed: strings.Join(seen, "; ")}, nil
	})
}

// check runs c without folding stale reads, so combinators can tell
// "not met" apart from "could not look". Evaluate folds them at the top.
func check(ctx context.Context, c Condition, page driver.Page) (Result, error) {
	if c.Check == nil {
		return Result{}, fmt.Errorf("condition %q has no check", c.Description)
	}
	return c.Check(ctx, page)
}

func join(cs []Condition, sep string) string {
	if len(cs) == 0 {
		return "nothing"
	}
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.Description
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, sep) + ")"
}
