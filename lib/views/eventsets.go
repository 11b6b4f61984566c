package views

import (
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
)

// EventGroup is one partition produced by ComputeEventSets: the union of
// field masks that overlapped transitively, and a single event merging
// every contributing event.
type EventGroup struct {
	Mask  fieldmask.FieldMask
	Event event.Event
}

// ComputeEventSets groups a set of (event, mask) pairs so that
// afterward at most one group covers any given field — the compaction
// step both the composite planner (spec.md §4.7 point 4, "compress the
// per-field postconditions by grouping events that share a field subset
// and merging each group into a single event") and the fill planner
// (spec.md §4.9, "partitions preconditions into equal-mask sets") need.
// Entries whose masks share no field end up in separate groups; entries
// that transitively overlap (directly, or via a chain of other entries)
// are merged into one.
func ComputeEventSets(entries map[event.Event]fieldmask.FieldMask) []EventGroup {
	type item struct {
		ev   event.Event
		mask fieldmask.FieldMask
	}
	items := make([]item, 0, len(entries))
	for ev, m := range entries {
		items = append(items, item{ev: ev, mask: m})
	}

	parent := make([]int, len(items))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if !fieldmask.Disjoint(items[i].mask, items[j].mask) {
				union(i, j)
			}
		}
	}

	order := make([]int, 0)
	masks := make(map[int]fieldmask.FieldMask)
	evs := make(map[int][]event.Event)
	for i, it := range items {
		root := find(i)
		if _, ok := masks[root]; !ok {
			order = append(order, root)
		}
		masks[root] = fieldmask.Union(masks[root], it.mask)
		evs[root] = append(evs[root], it.ev)
	}

	out := make([]EventGroup, 0, len(order))
	for _, root := range order {
		out = append(out, EventGroup{Mask: masks[root], Event: event.Merge(evs[root]...)})
	}
	return out
}
