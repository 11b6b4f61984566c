package views

import (
	"testing"

	"github.com/vkolb/viewmesh/lib/alloc"
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/region"
	"github.com/vkolb/viewmesh/lib/registry"
)

func newTestCompositeView(t *testing.T, root *CompositeNode) (*CompositeView, *alloc.InMemory) {
	t.Helper()
	alloc_ := id.NewAllocator(1)
	reg := registry.New(1)
	mgr := alloc.NewInMemory()
	v, err := NewCompositeView(alloc_, root, disjointTree{}, mgr, reg)
	if err != nil {
		t.Fatalf("NewCompositeView: %v", err)
	}
	return v, mgr
}

func TestCompositeViewIssuesCopyFromSingleSource(t *testing.T) {
	root := NewCompositeNode(region.NoColor)
	root.AddSource(CompositeSource{Fields: fieldmask.FromBits(0, 1)})

	v, mgr := newTestCompositeView(t, root)

	gate := event.NewSource()
	defer gate.Trigger()
	pre := map[event.Event]fieldmask.FieldMask{gate.Event(): fieldmask.FromBits(0, 1)}

	post := v.IssueDeferredCopies(region.NoColor, fieldmask.FromBits(0, 1), pre)
	if len(post) != 1 {
		t.Fatalf("expected exactly one postcondition event, got %d", len(post))
	}
	if len(mgr.Log()) != 1 || mgr.Log()[0] != "copy" {
		t.Fatalf("expected a single grouped copy, got %v", mgr.Log())
	}
}

func TestCompositeViewTailCallsThroughDominatingChild(t *testing.T) {
	root := NewCompositeNode(region.NoColor)
	child := NewCompositeNode(region.NewColor(1))
	child.AddSource(CompositeSource{Fields: fieldmask.FromBits(0)})
	root.AddChild(region.NewColor(1), child)

	v, mgr := newTestCompositeView(t, root)

	gate := event.NewSource()
	defer gate.Trigger()
	pre := map[event.Event]fieldmask.FieldMask{gate.Event(): fieldmask.FromBits(0)}

	// dst is NoColor (a root-level query), so the single child
	// unconditionally dominates it and the root level itself should
	// contribute no copy of its own.
	post := v.IssueDeferredCopies(region.NoColor, fieldmask.FromBits(0), pre)
	if len(post) != 1 {
		t.Fatalf("expected exactly one postcondition event, got %d", len(post))
	}
	if len(mgr.Log()) != 1 {
		t.Fatalf("tail-call should issue exactly one copy (from the child only), got %v", mgr.Log())
	}
}

func TestCompositeViewFoldsInReductions(t *testing.T) {
	alloc_ := id.NewAllocator(1)
	reg := registry.New(1)
	mgr := alloc.NewInMemory()
	reduction, err := NewReductionView(alloc_, region.RedopID(9), mgr, reg)
	if err != nil {
		t.Fatalf("NewReductionView: %v", err)
	}

	root := NewCompositeNode(region.NoColor)
	root.AddSource(CompositeSource{Fields: fieldmask.FromBits(0)})
	root.AddReduction(reduction, fieldmask.FromBits(0))

	v, err := NewCompositeView(alloc_, root, disjointTree{}, mgr, reg)
	if err != nil {
		t.Fatalf("NewCompositeView: %v", err)
	}

	gate := event.NewSource()
	defer gate.Trigger()
	pre := map[event.Event]fieldmask.FieldMask{gate.Event(): fieldmask.FromBits(0)}

	post := v.IssueDeferredCopies(region.NoColor, fieldmask.FromBits(0), pre)
	if len(post) != 1 {
		t.Fatalf("expected one merged postcondition after folding reduction, got %d", len(post))
	}
	if len(mgr.Log()) < 2 {
		t.Fatalf("expected both a copy and a reduction issued, got %v", mgr.Log())
	}
	sawReduce := false
	for _, op := range mgr.Log() {
		if op == "reduce" {
			sawReduce = true
		}
	}
	if !sawReduce {
		t.Fatalf("expected a reduce op in %v", mgr.Log())
	}
}

type alwaysCaptured struct{}

func (alwaysCaptured) FullyCaptured(region.ColorPoint, fieldmask.FieldMask) bool { return true }

type neverCaptured struct{}

func (neverCaptured) FullyCaptured(region.ColorPoint, fieldmask.FieldMask) bool { return false }

func TestCompositeNodeSimplifyElidesFullyCaptured(t *testing.T) {
	root := NewCompositeNode(region.NoColor)
	root.AddSource(CompositeSource{Fields: fieldmask.FromBits(0)})

	out := root.Simplify(alwaysCaptured{}, fieldmask.FromBits(0))
	if out != nil {
		t.Fatalf("expected a fully-captured node to be elided (nil), got %v", out)
	}
}

func TestCompositeNodeSimplifyNoChangeReturnsSameObject(t *testing.T) {
	root := NewCompositeNode(region.NoColor)
	root.AddSource(CompositeSource{Fields: fieldmask.FromBits(0)})

	out := root.Simplify(neverCaptured{}, fieldmask.FromBits(0, 1))
	if out != root {
		t.Fatalf("expected the same node back when nothing changes")
	}
}

func TestCompositeNodeSimplifyRestrictsSources(t *testing.T) {
	root := NewCompositeNode(region.NoColor)
	root.AddSource(CompositeSource{Fields: fieldmask.FromBits(0, 5)})

	out := root.Simplify(neverCaptured{}, fieldmask.FromBits(0))
	if out == root {
		t.Fatalf("expected a rebuilt node when the capture mask narrows a source")
	}
	if len(out.sources) != 1 || !fieldmask.Equal(out.sources[0].Fields, fieldmask.FromBits(0)) {
		t.Fatalf("expected source restricted to {0}, got %+v", out.sources)
	}
}
