package container

import (
	"math"
	"sort"
)

// Ordered assigns an extension a sort position within its tier. Lower values
// run earlier. Extensions without Ordered sort last within their tier.
type Ordered interface {
	Order() int
}

// PriorityOrdered marks an extension as belonging to the highest ordering
// tier. The marker method is never called; implementations provide an empty
// body.
type PriorityOrdered interface {
	Ordered
	PriorityOrdered()
}

// Comparator compares two extension instances for sorting.
// Negative means a runs before b.
type Comparator func(a, b any) int

// DependencyComparatorProvider is implemented by engines that expose a custom
// dependency comparator. When present it replaces the default order
// comparator for all sorting done by the orchestrator.
type DependencyComparatorProvider interface {
	DependencyComparator() Comparator
}

// OrderOf extracts the declared order value, or the maximum int for
// instances that do not implement Ordered.
func OrderOf(v any) int {
	if o, ok := v.(Ordered); ok {
		return o.Order()
	}
	return math.MaxInt
}

// DefaultComparator orders by PriorityOrdered first, then by declared order
// value. Equal entries keep their relative position when used with a stable
// sort, which preserves discovery order for ties.
func DefaultComparator(a, b any) int {
	_, pa := a.(PriorityOrdered)
	_, pb := b.(PriorityOrdered)
	if pa != pb {
		if pa {
			return -1
		}
		return 1
	}
	oa, ob := OrderOf(a), OrderOf(b)
	switch {
	case oa < ob:
		return -1
	case oa > ob:
		return 1
	default:
		return 0
	}
}

// comparatorFor resolves the comparator: the engine's own dependency
// comparator when it provides one, the default otherwise.
func comparatorFor(engine Engine) Comparator {
	if p, ok := engine.(DependencyComparatorProvider); ok {
		if cmp := p.DependencyComparator(); cmp != nil {
			return cmp
		}
	}
	return DefaultComparator
}

// sortProcessors stable-sorts extension instances with the resolved
// comparator. Stability breaks ties by discovery order.
func sortProcessors[T any](items []T, cmp Comparator) {
	sort.SliceStable(items, func(i, j int) bool {
		return cmp(items[i], items[j]) < 0
	})
}
