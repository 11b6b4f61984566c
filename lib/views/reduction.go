package views

import (
	"sync"

	"github.com/vkolb/viewmesh/lib/alloc"
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/region"
	"github.com/vkolb/viewmesh/lib/registry"
	"github.com/vkolb/viewmesh/lib/versions"
	"github.com/vkolb/viewmesh/wire"
)

// ReductionView tracks the bipartite reader/reducer usage of a reduction
// buffer (spec.md §4.8). Unlike MaterializedView it has no current/
// previous epoch split — reducers never conflict with reducers of the
// same op, readers never conflict with readers, and that is the only
// coherence rule, so a flat per-event mask is sufficient.
type ReductionView struct {
	did   id.DID
	redop region.RedopID
	alloc alloc.Manager

	mu       sync.RWMutex
	readers  map[event.Event]fieldmask.FieldMask
	reducers map[event.Event]fieldmask.FieldMask
}

// NewReductionView mints a fresh DID and registers the view.
func NewReductionView(alloc_ *id.Allocator, redop region.RedopID, allocMgr alloc.Manager, reg *registry.Registry) (*ReductionView, error) {
	did, err := alloc_.New(id.KindReduction)
	if err != nil {
		return nil, err
	}
	v := &ReductionView{
		did:      did,
		redop:    redop,
		alloc:    allocMgr,
		readers:  make(map[event.Event]fieldmask.FieldMask),
		reducers: make(map[event.Event]fieldmask.FieldMask),
	}
	reg.Register(v, registry.Resource)
	return v, nil
}

// NewReductionViewReplica installs a non-owning replica for a DID
// announced by its owning node (spec.md §6 ReductionViewAnnounce),
// analogous to NewMaterializedViewReplica.
func NewReductionViewReplica(did id.DID, redop region.RedopID, allocMgr alloc.Manager, reg *registry.Registry) *ReductionView {
	v := &ReductionView{
		did:      did,
		redop:    redop,
		alloc:    allocMgr,
		readers:  make(map[event.Event]fieldmask.FieldMask),
		reducers: make(map[event.Event]fieldmask.FieldMask),
	}
	reg.Register(v, registry.Resource)
	return v
}

// DID implements registry.Object.
func (v *ReductionView) DID() id.DID { return v.did }

// Kind implements LogicalView.
func (v *ReductionView) Kind() id.Kind { return id.KindReduction }

// FindCopyPreconditions implements spec.md §4.8's single coherence rule:
// a reading caller depends on every reducer overlapping mask, a reducing
// caller depends on every reader overlapping mask.
func (v *ReductionView) FindCopyPreconditions(reading bool, mask fieldmask.FieldMask) event.Set {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := event.NewSet()
	source := v.readers
	if reading {
		source = v.reducers
	}
	for ev, m := range source {
		if ev.HasTriggered() {
			continue
		}
		if fieldmask.Intersect(m, mask).IsEmpty() {
			continue
		}
		out.Add(ev)
	}
	return out
}

// AddReader records ev as a user that read this reduction view over
// mask.
func (v *ReductionView) AddReader(ev event.Event, mask fieldmask.FieldMask) {
	if ev == event.NoEvent {
		return
	}
	v.mu.Lock()
	v.readers[ev] = fieldmask.Union(v.readers[ev], mask)
	v.mu.Unlock()
}

// AddReducer records ev as a user that reduced into this view over mask.
func (v *ReductionView) AddReducer(ev event.Event, mask fieldmask.FieldMask) {
	if ev == event.NoEvent {
		return
	}
	v.mu.Lock()
	v.reducers[ev] = fieldmask.Union(v.reducers[ev], mask)
	v.mu.Unlock()
}

// PerformReduction composes the preconditions from both this view
// (reading, so it depends on prior reducers) and target (writing under
// this view's redop), issues the reduction through the allocation
// manager, and registers the resulting event on both views (spec.md
// §4.8).
func (v *ReductionView) PerformReduction(target *MaterializedView, mask fieldmask.FieldMask, vers versions.FieldVersions) event.Event {
	readPre := v.FindCopyPreconditions(true, mask)
	writePre := target.FindCopyPreconditions(v.redop, false, mask, vers, false)

	merged := event.NewSet()
	for ev := range readPre {
		merged.Add(ev)
	}
	for ev := range writePre {
		merged.Add(ev)
	}

	result := v.alloc.IssueReduction(alloc.ReduceItem{Fields: mask, Redop: v.redop, Precondition: merged.Merge()})

	v.AddReader(result, mask)
	target.AddUser(region.Usage{Privilege: region.Reduce, Coherence: region.Exclusive, Redop: v.redop}, result, mask, vers, region.NoColor)

	return result
}

// PerformDeferredReduction is the variant used by composite planners
// (spec.md §4.8): it accepts externally supplied preconditions instead
// of consulting a target materialized view, and registers the output
// only on this reduction view — the caller is responsible for
// registering it on whatever destination it composed the reduction for.
// intersect names the region the reduction was computed against; it is
// accepted for bookkeeping symmetry with the original but not consulted
// here since region-tree intersection is out of this package's scope.
func (v *ReductionView) PerformDeferredReduction(mask fieldmask.FieldMask, external event.Set, intersect region.ColorPoint) event.Event {
	readPre := v.FindCopyPreconditions(true, mask)

	merged := event.NewSet()
	for ev := range readPre {
		merged.Add(ev)
	}
	for ev := range external {
		merged.Add(ev)
	}

	result := v.alloc.IssueReduction(alloc.ReduceItem{Fields: mask, Redop: v.redop, Precondition: merged.Merge()})
	v.AddReader(result, mask)
	return result
}

// SendViewUpdates packs this view's reader/reducer tables restricted to
// updateMask into a wire.ReductionUpdate (spec.md §4.5, analogous to
// MaterializedView's update). Unlike the materialized form there is no
// current/previous split or dedup table to build — each event already
// maps to exactly one mask.
func (v *ReductionView) SendViewUpdates(updateMask fieldmask.FieldMask) *wire.ReductionUpdate {
	v.mu.RLock()
	defer v.mu.RUnlock()

	pack := func(source map[event.Event]fieldmask.FieldMask) []wire.EventMaskEntry {
		var out []wire.EventMaskEntry
		for ev, m := range source {
			overlap := fieldmask.Intersect(m, updateMask)
			if overlap.IsEmpty() {
				continue
			}
			out = append(out, wire.EventMaskEntry{Event: ev, Mask: overlap})
		}
		return out
	}

	return &wire.ReductionUpdate{
		DID:      v.did,
		Readers:  pack(v.readers),
		Reducers: pack(v.reducers),
	}
}

// ApplyRemoteUpdate installs a remote reduction view's update using the
// same AddReader/AddReducer primitives a local caller would use (spec.md
// §4.5: "installs entries with the same add_current/add_previous
// primitives").
func (v *ReductionView) ApplyRemoteUpdate(upd *wire.ReductionUpdate) {
	for _, e := range upd.Readers {
		v.AddReader(e.Event, e.Mask)
	}
	for _, e := range upd.Reducers {
		v.AddReducer(e.Event, e.Mask)
	}
}
