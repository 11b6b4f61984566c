package views

import (
	"fmt"

	"github.com/vkolb/viewmesh/lib/alloc"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/gc"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/region"
	"github.com/vkolb/viewmesh/lib/registry"
	"github.com/vkolb/viewmesh/wire"
)

// Engine is one node's live set of logical views, addressed by DID
// through the shared registry (spec.md §5's concurrency model: "every
// view is independently lockable; the registry is the only structure
// shared across all of them"). It is the receiving end of every
// Announce/Update wire message — rpc/server's view adapter decodes a
// wire.Message and calls the matching Engine method.
type Engine struct {
	Tree     region.Tree
	Alloc    alloc.Manager
	Sched    *gc.Scheduler
	Registry *registry.Registry
}

// NewEngine wires together the collaborators every replica constructor
// needs. tree and allocMgr are out-of-scope collaborators supplied by
// the node's caller, matching MaterializedView's own constructor.
func NewEngine(tree region.Tree, allocMgr alloc.Manager, sched *gc.Scheduler, reg *registry.Registry) *Engine {
	return &Engine{Tree: tree, Alloc: allocMgr, Sched: sched, Registry: reg}
}

func (e *Engine) materialized(did id.DID) (*MaterializedView, bool) {
	entry, ok := e.Registry.Lookup(did)
	if !ok {
		return nil, false
	}
	v, ok := entry.Object.(*MaterializedView)
	return v, ok
}

func (e *Engine) reduction(did id.DID) (*ReductionView, bool) {
	entry, ok := e.Registry.Lookup(did)
	if !ok {
		return nil, false
	}
	v, ok := entry.Object.(*ReductionView)
	return v, ok
}

// HandleMaterializedViewAnnounce installs a local non-owning replica for
// a remotely created materialized view (spec.md §6). A duplicate
// announce for a DID already known locally is a no-op — the registry's
// Register/Lookup idiom already collapses races of this shape.
func (e *Engine) HandleMaterializedViewAnnounce(m *wire.MaterializedViewAnnounce) error {
	if _, ok := e.materialized(m.DID); ok {
		return nil
	}
	parent, _ := e.materialized(m.ParentDID)
	NewMaterializedViewReplica(m.DID, e.Tree, e.Alloc, e.Sched, e.Registry, parent, region.NoColor)
	e.Registry.RecordRemoteOwner(m.DID, m.DID.NodeID())
	return nil
}

// HandleSubviewDidRequest answers a non-owner's subview_did_request by
// resolving or creating the child subview locally (spec.md §4.4's
// owner-miss path, now serving a remote caller instead of a local one).
func (e *Engine) HandleSubviewDidRequest(m *wire.SubviewDidRequest, alloc_ *id.Allocator) (*wire.SubviewDidResponse, error) {
	parent, ok := e.materialized(m.ParentDID)
	if !ok {
		return nil, registry.NewError(registry.RetCMisroutedDID, fmt.Sprintf("unknown parent view %s", m.ParentDID))
	}
	child, err := parent.GetMaterializedSubview(m.Color, alloc_, nil)
	if err != nil {
		return nil, err
	}
	return &wire.SubviewDidResponse{ChildDID: child.DID(), ReplySlot: m.ReplySlot, CompletionEvent: m.CompletionEvent}, nil
}

// HandleMaterializedUpdate installs a remote epoch-table update onto the
// named local view (spec.md §4.5).
func (e *Engine) HandleMaterializedUpdate(m *wire.MaterializedUpdate) error {
	v, ok := e.materialized(m.DID)
	if !ok {
		return registry.NewError(registry.RetCMisroutedDID, fmt.Sprintf("unknown materialized view %s", m.DID))
	}
	v.ApplyRemoteUpdate(m)
	return nil
}

// HandleAtomicReservationRequest leases every requested field against
// the named root view's reservation source and packs the results for
// the reply (spec.md §4.6).
func (e *Engine) HandleAtomicReservationRequest(m *wire.AtomicReservationRequest) (*wire.AtomicReservationResponse, error) {
	v, ok := e.materialized(m.DID)
	if !ok {
		return nil, registry.NewError(registry.RetCMisroutedDID, fmt.Sprintf("unknown materialized view %s", m.DID))
	}
	mask := fieldmask.FromBits(m.Fields...)
	handles, err := v.FindAtomicReservations(mask, 0, true)
	if err != nil {
		return nil, err
	}
	resp := &wire.AtomicReservationResponse{DID: m.DID, CompletionEvent: m.CompletionEvent}
	for _, f := range m.Fields {
		h, ok := handles[f]
		if !ok {
			continue
		}
		tok, ok := h.(interface{ Token() []byte })
		if !ok {
			continue
		}
		resp.Reservations = append(resp.Reservations, wire.ReservationEntry{Field: f, Reservation: tok.Token()})
	}
	return resp, nil
}

// HandleReductionViewAnnounce installs a local non-owning replica for a
// remotely created reduction view (spec.md §6).
func (e *Engine) HandleReductionViewAnnounce(m *wire.ReductionViewAnnounce) error {
	if _, ok := e.reduction(m.DID); ok {
		return nil
	}
	NewReductionViewReplica(m.DID, m.Redop, e.Alloc, e.Registry)
	e.Registry.RecordRemoteOwner(m.DID, m.DID.NodeID())
	return nil
}

// HandleReductionUpdate installs a remote reader/reducer update onto the
// named local reduction view (spec.md §4.5/§4.8).
func (e *Engine) HandleReductionUpdate(m *wire.ReductionUpdate) error {
	v, ok := e.reduction(m.DID)
	if !ok {
		return registry.NewError(registry.RetCMisroutedDID, fmt.Sprintf("unknown reduction view %s", m.DID))
	}
	v.ApplyRemoteUpdate(m)
	return nil
}

// HandleFillViewAnnounce installs a local non-owning replica of a
// remotely created fill view (spec.md §6/§4.9).
func (e *Engine) HandleFillViewAnnounce(m *wire.FillViewAnnounce) error {
	if entry, ok := e.Registry.Lookup(m.DID); ok {
		if _, ok := entry.Object.(*FillView); ok {
			return nil
		}
	}
	NewFillViewReplica(m.DID, m.Value, e.Alloc, e.Registry)
	e.Registry.RecordRemoteOwner(m.DID, m.DID.NodeID())
	return nil
}

// HandleCompositeViewAnnounce rebuilds the announced snapshot tree
// against locally resolvable DIDs and installs a composite view replica
// (spec.md §6/§4.7). A source or reduction DID that does not resolve
// locally yet is dropped from that node rather than failing the whole
// install — the composite planner degenerates gracefully to "nothing
// valid at this node" for the missing source, matching the original's
// tolerance of partially-replicated snapshot state.
func (e *Engine) HandleCompositeViewAnnounce(m *wire.CompositeViewAnnounce) error {
	root := e.rebuildCompositeNode(m.Tree)
	NewCompositeViewReplica(m.DID, root, e.Tree, e.Alloc, e.Registry)
	e.Registry.RecordRemoteOwner(m.DID, m.DID.NodeID())
	return nil
}

func (e *Engine) rebuildCompositeNode(wn *wire.CompositeTreeNode) *CompositeNode {
	node := NewCompositeNode(region.NoColor)
	for _, sv := range wn.Views {
		switch sv.DID.Kind() {
		case id.KindMaterialized:
			if mv, ok := e.materialized(sv.DID); ok {
				node.AddSource(CompositeSource{Materialized: mv, Fields: sv.Mask})
			}
		case id.KindComposite, id.KindFill:
			if entry, ok := e.Registry.Lookup(sv.DID); ok {
				if lv, ok := entry.Object.(LogicalView); ok {
					node.AddSource(CompositeSource{Deferred: lv, Fields: sv.Mask})
				}
			}
		}
	}
	for _, rv := range wn.Reductions {
		if red, ok := e.reduction(rv.DID); ok {
			node.AddReduction(red, rv.Mask)
		}
	}
	for _, c := range wn.Children {
		node.AddChild(c.Color, e.rebuildCompositeNode(c.Node))
	}
	return node
}
