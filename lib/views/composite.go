package views

import (
	"github.com/vkolb/viewmesh/lib/alloc"
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/region"
	"github.com/vkolb/viewmesh/lib/registry"
)

// CompositeSource is one valid source view recorded at a CompositeNode:
// either a materialized view or a deferred source (another composite or
// a fill view), restricted to the fields it is valid for at this node.
type CompositeSource struct {
	Materialized *MaterializedView
	Deferred     LogicalView
	Fields       fieldmask.FieldMask
}

// CompositeNode is one node of an immutable snapshot tree (spec.md §4.7,
// §3 "CompositeView"). dst is the color this node captures within its
// parent; NoColor marks the tree root.
type CompositeNode struct {
	dst        region.ColorPoint
	sources    []CompositeSource
	children   map[region.ColorPoint]*CompositeNode
	reductions []*ReductionView
	reductFlds map[*ReductionView]fieldmask.FieldMask
}

// NewCompositeNode creates an empty node that will capture color dst
// within its parent (region.NoColor for the tree root).
func NewCompositeNode(dst region.ColorPoint) *CompositeNode {
	return &CompositeNode{
		dst:        dst,
		children:   make(map[region.ColorPoint]*CompositeNode),
		reductFlds: make(map[*ReductionView]fieldmask.FieldMask),
	}
}

// AddSource records src as valid at this node.
func (n *CompositeNode) AddSource(src CompositeSource) {
	n.sources = append(n.sources, src)
}

// AddChild attaches child under color.
func (n *CompositeNode) AddChild(color region.ColorPoint, child *CompositeNode) {
	n.children[color] = child
}

// AddReduction registers r as a reduction that must be folded in at this
// node, restricted to mask.
func (n *CompositeNode) AddReduction(r *ReductionView, mask fieldmask.FieldMask) {
	n.reductions = append(n.reductions, r)
	n.reductFlds[r] = fieldmask.Union(n.reductFlds[r], mask)
}

// NotifyInactive and NotifyInvalid are preserved as documented no-ops.
// The original implementation's equivalent notification step appears to
// iterate an empty range over this node's valid source views (see
// DESIGN.md "Open Question decisions" — recorded rather than silently
// "fixed" per the design note that possibly-buggy original behavior
// should be preserved and documented). Both visit zero entries here.
func (n *CompositeNode) NotifyInactive() {}
func (n *CompositeNode) NotifyInvalid()  {}

// CapturedChecker answers whether some other already-materialized view
// ("the closer") fully covers a color's fields, letting Simplify elide
// subtrees that would contribute nothing (spec.md §4.7 "simplify").
type CapturedChecker interface {
	FullyCaptured(color region.ColorPoint, mask fieldmask.FieldMask) bool
}

// Simplify returns an equivalent tree restricted to captureMask, eliding
// subtrees already fully captured by closer. It returns n itself,
// unmodified, when nothing would change — callers distinguish "no
// change" from "rebuilt" by pointer identity, matching spec.md §4.7's
// "returns the same tree object (no change) or a new one."
func (n *CompositeNode) Simplify(closer CapturedChecker, captureMask fieldmask.FieldMask) *CompositeNode {
	if closer != nil && closer.FullyCaptured(n.dst, captureMask) {
		return nil
	}

	changed := false
	newChildren := make(map[region.ColorPoint]*CompositeNode, len(n.children))
	for color, child := range n.children {
		simplified := child.Simplify(closer, captureMask)
		if simplified != child {
			changed = true
		}
		if simplified != nil {
			newChildren[color] = simplified
		}
	}

	var restricted []CompositeSource
	for _, src := range n.sources {
		overlap := fieldmask.Intersect(src.Fields, captureMask)
		if overlap.IsEmpty() {
			changed = true
			continue
		}
		if !fieldmask.Equal(overlap, src.Fields) {
			changed = true
		}
		restricted = append(restricted, CompositeSource{
			Materialized: src.Materialized,
			Deferred:     src.Deferred,
			Fields:       overlap,
		})
	}

	if !changed {
		return n
	}

	out := NewCompositeNode(n.dst)
	out.sources = restricted
	out.children = newChildren
	out.reductions = n.reductions
	out.reductFlds = n.reductFlds
	return out
}

// CompositeView owns an immutable snapshot tree and plans the copies
// needed to replay it into a materialized destination.
type CompositeView struct {
	did   id.DID
	root  *CompositeNode
	tree  region.Tree
	alloc alloc.Manager
}

// NewCompositeView mints a fresh DID for a composite view rooted at
// root.
func NewCompositeView(alloc_ *id.Allocator, root *CompositeNode, tree region.Tree, allocMgr alloc.Manager, reg *registry.Registry) (*CompositeView, error) {
	did, err := alloc_.New(id.KindComposite)
	if err != nil {
		return nil, err
	}
	v := &CompositeView{did: did, root: root, tree: tree, alloc: allocMgr}
	reg.Register(v, registry.Resource)
	return v, nil
}

// NewCompositeViewReplica installs a non-owning replica for a DID
// announced by its owning node (spec.md §6 CompositeViewAnnounce),
// analogous to NewMaterializedViewReplica. root is the snapshot tree
// rebuilt locally from the announce's wire tree.
func NewCompositeViewReplica(did id.DID, root *CompositeNode, tree region.Tree, allocMgr alloc.Manager, reg *registry.Registry) *CompositeView {
	v := &CompositeView{did: did, root: root, tree: tree, alloc: allocMgr}
	reg.Register(v, registry.Resource)
	return v
}

// DID implements registry.Object.
func (v *CompositeView) DID() id.DID { return v.did }

// Kind implements LogicalView.
func (v *CompositeView) Kind() id.Kind { return id.KindComposite }

// IssueDeferredCopies plans the minimum set of typed copy/fill
// operations needed to make a destination addressed by dstColor contain
// the snapshot's contents on mask (spec.md §4.7). It returns the
// resulting postconditions: at most one event per field.
func (v *CompositeView) IssueDeferredCopies(dstColor region.ColorPoint, mask fieldmask.FieldMask, preconditions map[event.Event]fieldmask.FieldMask) map[event.Event]fieldmask.FieldMask {
	return v.issueNode(v.root, dstColor, mask, preconditions)
}

func (v *CompositeView) dominates(child, dst region.ColorPoint) bool {
	if !dst.IsValid() {
		return true
	}
	return region.SameColor(child, dst)
}

func (v *CompositeView) intersects(child, dst region.ColorPoint) bool {
	if !dst.IsValid() || region.SameColor(child, dst) {
		return true
	}
	if v.tree != nil && v.tree.Disjoint(child, dst) {
		return false
	}
	return true
}

func (v *CompositeView) issueNode(node *CompositeNode, dstColor region.ColorPoint, mask fieldmask.FieldMask, preconditions map[event.Event]fieldmask.FieldMask) map[event.Event]fieldmask.FieldMask {
	// Step 1: a single dominating child and no reductions at this level
	// means this level contributes nothing on its own — tail-call down.
	if len(node.reductions) == 0 && len(node.children) == 1 {
		for color, child := range node.children {
			if v.dominates(color, dstColor) {
				return v.issueNode(child, dstColor, mask, preconditions)
			}
		}
	}

	mergedPre := event.NewSet()
	for ev := range preconditions {
		mergedPre.Add(ev)
	}
	pre := mergedPre.Merge()

	var items []alloc.CopyItem
	for _, src := range node.sources {
		overlap := fieldmask.Intersect(src.Fields, mask)
		if overlap.IsEmpty() {
			continue
		}
		items = append(items, alloc.CopyItem{Fields: overlap, Precondition: pre})
	}

	postconditions := make(map[event.Event]fieldmask.FieldMask)
	if len(items) > 0 {
		post := v.alloc.IssueGroupedCopy(items)
		postconditions[post] = mask
	} else {
		for ev, m := range preconditions {
			postconditions[ev] = m
		}
	}

	// Recurse into every child whose region intersects dst.
	childResults := make(map[event.Event]fieldmask.FieldMask)
	for color, child := range node.children {
		if !v.intersects(color, dstColor) {
			continue
		}
		for ev, m := range v.issueNode(child, dstColor, mask, postconditions) {
			childResults[ev] = fieldmask.Union(childResults[ev], m)
		}
	}
	if len(childResults) > 0 {
		postconditions = childResults
	}

	// Step 3: fold in reductions registered at this node, using the
	// just-produced postconditions as their preconditions.
	for _, r := range node.reductions {
		rmask := fieldmask.Intersect(node.reductFlds[r], mask)
		if rmask.IsEmpty() {
			continue
		}
		extPre := event.NewSet()
		for ev, m := range postconditions {
			if !fieldmask.Intersect(m, rmask).IsEmpty() {
				extPre.Add(ev)
			}
		}
		out := r.PerformDeferredReduction(rmask, extPre, dstColor)
		postconditions[out] = rmask
	}

	// Step 4: compress postconditions whenever this level combined more
	// than its own single copy — either by recursing into children or by
	// folding in a reduction — so at most one event covers any given
	// field.
	if len(node.children) > 0 || len(node.reductions) > 0 {
		groups := ComputeEventSets(postconditions)
		compressed := make(map[event.Event]fieldmask.FieldMask, len(groups))
		for _, g := range groups {
			compressed[g.Event] = g.Mask
		}
		postconditions = compressed
	}

	return postconditions
}
