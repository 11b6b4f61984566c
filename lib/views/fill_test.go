package views

import (
	"testing"

	"github.com/vkolb/viewmesh/lib/alloc"
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/registry"
)

func newTestFillView(t *testing.T, value []byte) (*FillView, *alloc.InMemory) {
	t.Helper()
	alloc_ := id.NewAllocator(1)
	reg := registry.New(1)
	mgr := alloc.NewInMemory()
	v, err := NewFillView(alloc_, value, mgr, reg)
	if err != nil {
		t.Fatalf("NewFillView: %v", err)
	}
	return v, mgr
}

func TestFillViewIssueDeferredCopiesPartitionsByMask(t *testing.T) {
	v, mgr := newTestFillView(t, []byte{0xAB})

	gate1 := event.NewSource()
	gate2 := event.NewSource()
	defer gate1.Trigger()
	defer gate2.Trigger()

	pre := map[event.Event]fieldmask.FieldMask{
		gate1.Event(): fieldmask.FromBits(0, 1),
		gate2.Event(): fieldmask.FromBits(5),
	}

	groups := v.IssueDeferredCopies(pre)
	if len(groups) != 2 {
		t.Fatalf("expected 2 fill groups, got %d", len(groups))
	}
	if len(mgr.Log()) != 2 {
		t.Fatalf("expected 2 fills issued, got %d", len(mgr.Log()))
	}
	for _, op := range mgr.Log() {
		if op != "fill" {
			t.Fatalf("expected only fill operations, got %q", op)
		}
	}
}

func TestFillViewValue(t *testing.T) {
	v, _ := newTestFillView(t, []byte{1, 2, 3})
	if string(v.Value()) != string([]byte{1, 2, 3}) {
		t.Fatalf("unexpected fill value: %v", v.Value())
	}
}
