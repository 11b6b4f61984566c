package analyzer

import (
	"github.com/vkolb/viewmesh/lib/epoch"
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/region"
	"github.com/vkolb/viewmesh/lib/versions"
)

// Request describes one precondition query against a view's epoch table.
// Copy selects which dependence rule set applies: false runs the task-path
// rule (region.DependenceOf on Usage), true runs the copy-path rule
// (reader/reducer cut-offs plus the same-version WAR/WAW skip).
type Request struct {
	Mask       fieldmask.FieldMask
	ChildColor region.ColorPoint

	// Task-path fields (Copy == false).
	Usage region.Usage

	// Copy-path fields (Copy == true).
	Copy     bool
	Redop    region.RedopID
	Reading  bool
	Versions versions.FieldVersions
}

// Plan is the result of Scan: events the caller must depend on, plus the
// mutations Apply must perform under an exclusive lock. A zero Plan (no
// dead events, no filtered-previous entries, empty Dominated) requires no
// Apply call at all — mirroring the original's "only retake the lock in
// exclusive mode if there is something to change".
type Plan struct {
	Preconditions event.Set
	// PreconditionMasks is Preconditions with the overlap mask that made
	// each event a precondition attached, accumulated across every user
	// bucket that contributed to it. Only the copy path exposes this to
	// its caller (spec.md §4.2: copies get "Event -> FieldMask", tasks get
	// a plain set) but Scan fills it in for both request kinds.
	PreconditionMasks map[event.Event]fieldmask.FieldMask
	DeadEvents        []event.Event
	FilterPrevious    map[event.Event]fieldmask.FieldMask
	Dominated         fieldmask.FieldMask
}

// NeedsApply reports whether Apply would do anything.
func (p Plan) NeedsApply() bool {
	return len(p.DeadEvents) > 0 || len(p.FilterPrevious) > 0 || !p.Dominated.IsEmpty()
}

// Scan runs the current-epoch pass followed by the previous-epoch pass
// and returns the combined plan. The caller must hold tbl's owning view
// lock, read-only mode is sufficient.
func Scan(tbl *epoch.Table, tree region.Tree, req Request) Plan {
	plan := Plan{
		Preconditions:     event.NewSet(),
		PreconditionMasks: make(map[event.Event]fieldmask.FieldMask),
		FilterPrevious:    make(map[event.Event]fieldmask.FieldMask),
	}

	var observed, nonDominated fieldmask.FieldMask

	for ev, bucket := range tbl.Current {
		if ev.HasTriggered() {
			plan.DeadEvents = append(plan.DeadEvents, ev)
			continue
		}
		if fieldmask.Intersect(bucket.UserMask, req.Mask).IsEmpty() {
			continue
		}
		bucket.ForEach(func(u *epoch.PhysicalUser, mask fieldmask.FieldMask) {
			overlap := fieldmask.Intersect(mask, req.Mask)
			if overlap.IsEmpty() {
				return
			}
			observed = fieldmask.Union(observed, overlap)
			if childShortCircuit(tree, req.ChildColor, u.Child) {
				nonDominated = fieldmask.Union(nonDominated, overlap)
				return
			}
			if !dependent(u, overlap, req) {
				nonDominated = fieldmask.Union(nonDominated, overlap)
				return
			}
			plan.Preconditions.Add(ev)
			plan.PreconditionMasks[ev] = fieldmask.Union(plan.PreconditionMasks[ev], overlap)
		})
	}

	// Only safe to dominate fields we actually observed on the current pass.
	dominated := fieldmask.Intersect(observed, fieldmask.Subtract(req.Mask, nonDominated))
	nonDom := fieldmask.Subtract(req.Mask, dominated)
	skipPrevious := nonDom.IsEmpty()
	plan.Dominated = dominated

	for ev, bucket := range tbl.Previous {
		if ev.HasTriggered() {
			plan.DeadEvents = append(plan.DeadEvents, ev)
			continue
		}
		if !dominated.IsEmpty() {
			domOverlap := fieldmask.Intersect(bucket.UserMask, dominated)
			if !domOverlap.IsEmpty() {
				plan.FilterPrevious[ev] = domOverlap
			}
		}
		if skipPrevious {
			continue
		}
		if fieldmask.Intersect(bucket.UserMask, nonDom).IsEmpty() {
			continue
		}
		bucket.ForEach(func(u *epoch.PhysicalUser, mask fieldmask.FieldMask) {
			overlap := fieldmask.Intersect(mask, nonDom)
			if overlap.IsEmpty() {
				return
			}
			if childShortCircuit(tree, req.ChildColor, u.Child) {
				return
			}
			if !dependent(u, overlap, req) {
				return
			}
			plan.Preconditions.Add(ev)
			plan.PreconditionMasks[ev] = fieldmask.Union(plan.PreconditionMasks[ev], overlap)
		})
	}

	return plan
}

// FindTaskPreconditions is the task-path entry point (spec.md §4.2): it
// runs Scan using the privilege/coherence dependence table and returns
// the events the caller must wait on, plus the Plan Apply needs applied
// under an exclusive lock.
func FindTaskPreconditions(tbl *epoch.Table, tree region.Tree, usage region.Usage, childColor region.ColorPoint, mask fieldmask.FieldMask) (event.Set, Plan) {
	plan := Scan(tbl, tree, Request{Mask: mask, Usage: usage, ChildColor: childColor})
	return plan.Preconditions, plan
}

// FindCopyPreconditions is the copy-path entry point (spec.md §4.2): it
// runs Scan using the reader/reducer cutoffs and the same-version WAR/WAW
// skip instead of the task-path dependence table. Unlike
// FindTaskPreconditions, it returns a mask-keyed map rather than a plain
// set — spec.md §4.2 specifies the copy path yields "Event -> FieldMask"
// so a caller can eventually split the resulting wait into per-field
// copy work, matching the original's LegionMap<Event,FieldMask>::aligned
// preconditions (legion_views.cc's find_copy_preconditions family).
func FindCopyPreconditions(tbl *epoch.Table, tree region.Tree, redop region.RedopID, reading bool, mask fieldmask.FieldMask, childColor region.ColorPoint, vers versions.FieldVersions) (map[event.Event]fieldmask.FieldMask, Plan) {
	plan := Scan(tbl, tree, Request{
		Mask:       mask,
		Copy:       true,
		Redop:      redop,
		Reading:    reading,
		ChildColor: childColor,
		Versions:   vers,
	})
	return plan.PreconditionMasks, plan
}

// Apply performs the mutations Scan deferred: dropping dead events,
// filtering dominated fields out of previous_epoch, and migrating
// dominated fields out of current_epoch into previous_epoch. The caller
// must hold tbl's owning view lock in exclusive mode.
func Apply(tbl *epoch.Table, plan Plan) {
	for _, ev := range plan.DeadEvents {
		tbl.FilterLocal(ev)
	}
	if len(plan.FilterPrevious) > 0 {
		tbl.FilterPrevious(plan.FilterPrevious)
	}
	if !plan.Dominated.IsEmpty() {
		tbl.FilterCurrent(plan.Dominated)
	}
}

// childShortCircuit implements the child-color skip shared by all four
// original routines: a query made on behalf of child childColor never
// needs a dependence test against a user already known to be local to
// that same child, or against a user local to a sibling child provably
// disjoint from it.
func childShortCircuit(tree region.Tree, childColor, userChild region.ColorPoint) bool {
	if !childColor.IsValid() {
		return false
	}
	if region.SameColor(childColor, userChild) {
		return true
	}
	if userChild.IsValid() && tree != nil && tree.Disjoint(childColor, userChild) {
		return true
	}
	return false
}

// dependent decides whether a recorded user is a true precondition for
// the incoming request, restricted to the task-path or copy-path rule
// set per req.Copy.
func dependent(user *epoch.PhysicalUser, overlap fieldmask.FieldMask, req Request) bool {
	if !req.Copy {
		dt := region.DependenceOf(user.Usage, req.Usage)
		return dt == region.TrueDependence || dt == region.AntiDependence
	}

	if req.Reading && user.Usage.IsReadOnly() {
		return false
	}
	if req.Redop > 0 && user.Usage.Redop == req.Redop {
		return false
	}
	// WAR/WAW same-version skip: only applies to a non-reducing write
	// copy, and only once both sides actually recorded a version.
	if !req.Reading && req.Redop == 0 && req.Versions != nil && !user.Usage.IsReduce() &&
		versions.SameOnOverlap(user.Versions, req.Versions, overlap) {
		return false
	}
	return true
}
