package views

import (
	"github.com/vkolb/viewmesh/lib/alloc"
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/registry"
)

// FillView is a constant-value view: every field it covers reads as the
// same byte payload until overwritten (spec.md §4.9).
type FillView struct {
	did   id.DID
	value []byte
	alloc alloc.Manager
}

// NewFillView mints a fresh DID for a fill view holding value.
func NewFillView(alloc_ *id.Allocator, value []byte, allocMgr alloc.Manager, reg *registry.Registry) (*FillView, error) {
	did, err := alloc_.New(id.KindFill)
	if err != nil {
		return nil, err
	}
	v := &FillView{did: did, value: value, alloc: allocMgr}
	reg.Register(v, registry.Resource)
	return v, nil
}

// NewFillViewReplica installs a non-owning replica for a DID announced
// by its owning node (spec.md §6 FillViewAnnounce), analogous to
// NewMaterializedViewReplica.
func NewFillViewReplica(did id.DID, value []byte, allocMgr alloc.Manager, reg *registry.Registry) *FillView {
	v := &FillView{did: did, value: value, alloc: allocMgr}
	reg.Register(v, registry.Resource)
	return v
}

// DID implements registry.Object.
func (v *FillView) DID() id.DID { return v.did }

// Kind implements LogicalView.
func (v *FillView) Kind() id.Kind { return id.KindFill }

// Value returns the constant payload this view fills with.
func (v *FillView) Value() []byte { return v.value }

// IssueDeferredCopies partitions preconditions into groups of
// overlapping masks via ComputeEventSets, issues one fill per set through the allocation
// manager, and returns a single post-event per set keyed by that set's
// field mask (spec.md §4.9).
func (v *FillView) IssueDeferredCopies(preconditions map[event.Event]fieldmask.FieldMask) map[string]EventGroup {
	groups := ComputeEventSets(preconditions)
	out := make(map[string]EventGroup, len(groups))
	for _, g := range groups {
		post := v.alloc.IssueFill(alloc.FillItem{Fields: g.Mask, Value: v.value, Precondition: g.Event})
		out[g.Mask.String()] = EventGroup{Mask: g.Mask, Event: post}
	}
	return out
}
