// Package probe models selector cascades as ordered lists of strategies.
// Each strategy reports a match or false; none of them error.
package probe

import (
	"context"
	"time"

	"github.com/eduseek/eduseek/internal/interfaces"
)

// Probe is one selector strategy. It reports the matched selector, or false.
type Probe func(ctx context.Context, page interfaces.Page) (interfaces.Selector, bool)

// VisibleWithin matches when sel becomes visible before timeout
func VisibleWithin(sel interfaces.Selector, timeout time.Duration) Probe {
	return func(ctx context.Context, page interfaces.Page) (interfaces.Selector, bool) {
		if err := page.WaitForSelector(ctx, sel, timeout); err != nil {
			return interfaces.Selector{}, false
		}
		return sel, true
	}
}

// VisibleNow matches when sel is visible without waiting
func VisibleNow(sel interfaces.Selector) Probe {
	return func(ctx context.Context, page interfaces.Page) (interfaces.Selector, bool) {
		visible, err := page.IsVisible(ctx, sel)
		if err != nil || !visible {
			return interfaces.Selector{}, false
		}
		return sel, true
	}
}

// Present matches when sel exists in the DOM, visible or not
func Present(sel interfaces.Selector) Probe {
	return func(ctx context.Context, page interfaces.Page) (interfaces.Selector, bool) {
		n, err := page.Count(ctx, sel)
		if err != nil || n == 0 {
			return interfaces.Selector{}, false
		}
		return sel, true
	}
}

// FirstMatch tries probes in order and returns the first match
func FirstMatch(ctx context.Context, page interfaces.Page, probes []Probe) (interfaces.Selector, bool) {
	for _, p := range probes {
		if ctx.Err() != nil {
			return interfaces.Selector{}, false
		}
		if sel, ok := p(ctx, page); ok {
			return sel, true
		}
	}
	return interfaces.Selector{}, false
}

// All wraps each selector with build, preserving order
func All(selectors []interfaces.Selector, build func(interfaces.Selector) Probe) []Probe {
	probes := make([]Probe, 0, len(selectors))
	for _, sel := range selectors {
		probes = append(probes, build(sel))
	}
	return probes
}

// Within adapts VisibleWithin for All
func Within(timeout time.Duration) func(interfaces.Selector) Probe {
	return func(sel interfaces.Selector) Probe {
		return VisibleWithin(sel, timeout)
	}
}
