package views

import (
	"testing"

	"github.com/vkolb/viewmesh/lib/alloc"
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/gc"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/region"
	"github.com/vkolb/viewmesh/lib/registry"
)

func newTestReductionView(t *testing.T) *ReductionView {
	t.Helper()
	alloc_ := id.NewAllocator(1)
	reg := registry.New(1)
	v, err := NewReductionView(alloc_, region.RedopID(1), alloc.NewInMemory(), reg)
	if err != nil {
		t.Fatalf("NewReductionView: %v", err)
	}
	return v
}

func TestReductionViewReadersDontConflictWithReaders(t *testing.T) {
	v := newTestReductionView(t)
	mask := fieldmask.FromBits(0)

	r1 := event.NewSource()
	v.AddReader(r1.Event(), mask)

	pre := v.FindCopyPreconditions(true, mask)
	if len(pre) != 0 {
		t.Fatalf("a second reader must not depend on an existing reader, got %d deps", len(pre))
	}
	r1.Trigger()
}

func TestReductionViewReducersDontConflictWithReducers(t *testing.T) {
	v := newTestReductionView(t)
	mask := fieldmask.FromBits(0)

	r1 := event.NewSource()
	v.AddReducer(r1.Event(), mask)

	pre := v.FindCopyPreconditions(false, mask)
	if len(pre) != 0 {
		t.Fatalf("a second reducer must not depend on an existing reducer, got %d deps", len(pre))
	}
	r1.Trigger()
}

func TestReductionViewReaderDependsOnReducer(t *testing.T) {
	v := newTestReductionView(t)
	mask := fieldmask.FromBits(0)

	reducer := event.NewSource()
	v.AddReducer(reducer.Event(), mask)

	pre := v.FindCopyPreconditions(true, mask)
	if _, ok := pre[reducer.Event()]; !ok {
		t.Fatalf("a reading caller must depend on every overlapping reducer")
	}
	reducer.Trigger()
}

func TestReductionViewReducerDependsOnReader(t *testing.T) {
	v := newTestReductionView(t)
	mask := fieldmask.FromBits(0)

	reader := event.NewSource()
	v.AddReader(reader.Event(), mask)

	pre := v.FindCopyPreconditions(false, mask)
	if _, ok := pre[reader.Event()]; !ok {
		t.Fatalf("a reducing caller must depend on every overlapping reader")
	}
	reader.Trigger()
}

func TestReductionViewPerformDeferredReductionRegistersOnlySelf(t *testing.T) {
	v := newTestReductionView(t)
	mask := fieldmask.FromBits(0)

	// Block the issued reduction's completion on a source we control, so
	// the assertion below cannot race against the InMemory manager's
	// asynchronous trigger.
	gate := event.NewSource()
	external := event.NewSet()
	external.Add(gate.Event())

	out := v.PerformDeferredReduction(mask, external, region.NoColor)
	if out == event.NoEvent {
		t.Fatalf("expected a real completion event")
	}

	pre := v.FindCopyPreconditions(false, mask)
	if _, ok := pre[out]; !ok {
		t.Fatalf("deferred reduction must register itself as a reader on this view")
	}
	gate.Trigger()
}

func TestReductionViewSendAndApplyRemoteUpdate(t *testing.T) {
	src := newTestReductionView(t)
	mask := fieldmask.FromBits(0)

	reader := event.NewSource()
	src.AddReader(reader.Event(), mask)
	reducer := event.NewSource()
	src.AddReducer(reducer.Event(), mask)

	upd := src.SendViewUpdates(mask)
	if len(upd.Readers) != 1 || len(upd.Reducers) != 1 {
		t.Fatalf("expected 1 reader and 1 reducer entry, got %d/%d", len(upd.Readers), len(upd.Reducers))
	}

	dst := newTestReductionView(t)
	dst.ApplyRemoteUpdate(upd)

	readPre := dst.FindCopyPreconditions(true, mask)
	if _, ok := readPre[reducer.Event()]; !ok {
		t.Fatalf("expected installed reducer among dst's read preconditions, got %v", readPre)
	}
	reducePre := dst.FindCopyPreconditions(false, mask)
	if _, ok := reducePre[reader.Event()]; !ok {
		t.Fatalf("expected installed reader among dst's reduce preconditions, got %v", reducePre)
	}

	reader.Trigger()
	reducer.Trigger()
}
