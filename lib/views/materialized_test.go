package views

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vkolb/viewmesh/lib/alloc"
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/gc"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/region"
	"github.com/vkolb/viewmesh/lib/registry"
	"github.com/vkolb/viewmesh/lib/versions"
)

type disjointTree struct{}

func (disjointTree) Disjoint(a, b region.ColorPoint) bool {
	return a.IsValid() && b.IsValid() && a.Value() != b.Value()
}

func newTestView(t *testing.T) (*MaterializedView, *id.Allocator, *registry.Registry, *gc.Scheduler) {
	t.Helper()
	alloc_ := id.NewAllocator(1)
	reg := registry.New(1)
	sched := gc.NewScheduler()
	t.Cleanup(sched.Close)
	v, err := NewMaterializedView(alloc_, disjointTree{}, alloc.NewInMemory(), sched, reg, nil, region.NoColor)
	if err != nil {
		t.Fatalf("NewMaterializedView: %v", err)
	}
	return v, alloc_, reg, sched
}

func TestMaterializedViewAddUserThenConflict(t *testing.T) {
	v, _, _, _ := newTestView(t)
	mask := fieldmask.FromBits(0)

	writer := event.NewSource()
	pre, _ := v.AddUser(region.Usage{Privilege: region.ReadWrite, Coherence: region.Exclusive}, writer.Event(), mask, nil, region.NoColor)
	if len(pre) != 0 {
		t.Fatalf("expected no preconditions for first writer, got %d", len(pre))
	}

	reader := event.NewSource()
	pre2, _ := v.AddUser(region.Usage{Privilege: region.ReadOnly, Coherence: region.Exclusive}, reader.Event(), mask, nil, region.NoColor)
	if _, ok := pre2[writer.Event()]; !ok {
		t.Fatalf("reader should depend on prior writer")
	}

	writer.Trigger()
	reader.Trigger()
}

func TestMaterializedViewAddCopyUserThenConflict(t *testing.T) {
	v, _, _, _ := newTestView(t)
	mask := fieldmask.FromBits(0)

	copyWriter := event.NewSource()
	v.AddCopyUser(0, false, copyWriter.Event(), mask, nil, false)

	reader := event.NewSource()
	pre, _ := v.AddUser(region.Usage{Privilege: region.ReadOnly, Coherence: region.Exclusive}, reader.Event(), mask, nil, region.NoColor)
	if _, ok := pre[copyWriter.Event()]; !ok {
		t.Fatalf("task reader should depend on prior copy-issued writer")
	}

	copyReader := event.NewSource()
	pre2 := v.FindCopyPreconditions(0, true, mask, nil, true)
	if _, ok := pre2[copyWriter.Event()]; !ok {
		t.Fatalf("copy read should depend on prior copy-issued writer")
	}

	copyWriter.Trigger()
	reader.Trigger()
	copyReader.Trigger()
}

func TestMaterializedViewSubviewOwnerPath(t *testing.T) {
	v, alloc_, _, _ := newTestView(t)
	color := region.NewColor(7)

	child, err := v.GetMaterializedSubview(color, alloc_, nil)
	if err != nil {
		t.Fatalf("GetMaterializedSubview: %v", err)
	}
	again, err := v.GetMaterializedSubview(color, alloc_, nil)
	if err != nil {
		t.Fatalf("GetMaterializedSubview (cached): %v", err)
	}
	if child != again {
		t.Fatalf("expected cached subview to be returned")
	}
}

func TestMaterializedViewSubviewNonOwnerRemote(t *testing.T) {
	reg := registry.New(1)
	alloc_ := id.NewAllocator(2) // different node than reg's node 1
	sched := gc.NewScheduler()
	t.Cleanup(sched.Close)
	v, err := NewMaterializedView(id.NewAllocator(1), disjointTree{}, alloc.NewInMemory(), sched, reg, nil, region.NoColor)
	if err != nil {
		t.Fatalf("NewMaterializedView: %v", err)
	}
	// Force a non-owner DID by re-registering under a view whose DID's
	// node differs from the registry's local node.
	foreignDID, err := alloc_.New(id.KindMaterialized)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v.did = foreignDID

	color := region.NewColor(3)
	called := false
	remote := func(parent id.DID, c region.ColorPoint) (*MaterializedView, error) {
		called = true
		return NewMaterializedView(id.NewAllocator(2), disjointTree{}, alloc.NewInMemory(), sched, reg, nil, region.NoColor)
	}
	if _, err := v.GetMaterializedSubview(color, alloc_, remote); err != nil {
		t.Fatalf("GetMaterializedSubview: %v", err)
	}
	if !called {
		t.Fatalf("expected remote resolver to be invoked for non-owner miss")
	}
}

func TestMaterializedViewSubviewNonOwnerMissDedupsConcurrentRequests(t *testing.T) {
	reg := registry.New(1)
	alloc_ := id.NewAllocator(2)
	sched := gc.NewScheduler()
	t.Cleanup(sched.Close)
	v, err := NewMaterializedView(id.NewAllocator(1), disjointTree{}, alloc.NewInMemory(), sched, reg, nil, region.NoColor)
	if err != nil {
		t.Fatalf("NewMaterializedView: %v", err)
	}
	foreignDID, err := alloc_.New(id.KindMaterialized)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v.did = foreignDID

	color := region.NewColor(9)
	var calls atomic.Int32
	release := make(chan struct{})
	remote := func(parent id.DID, c region.ColorPoint) (*MaterializedView, error) {
		calls.Add(1)
		<-release
		return NewMaterializedView(id.NewAllocator(2), disjointTree{}, alloc.NewInMemory(), sched, reg, nil, region.NoColor)
	}

	const n = 8
	results := make(chan *MaterializedView, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			child, err := v.GetMaterializedSubview(color, alloc_, remote)
			if err != nil {
				t.Errorf("GetMaterializedSubview: %v", err)
				return
			}
			results <- child
		}()
	}
	// Give every goroutine a chance to reach the single-flight gate before
	// letting the (only) in-flight remote call proceed.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 remote call for %d concurrent requests, got %d", n, got)
	}
	var first *MaterializedView
	for child := range results {
		if first == nil {
			first = child
			continue
		}
		if child != first {
			t.Fatalf("expected every concurrent caller to observe the same subview")
		}
	}
}

func TestMaterializedViewAtomicReservationsNoSource(t *testing.T) {
	v, _, _, _ := newTestView(t)
	mask := fieldmask.FromBits(0, 1)
	if _, err := v.FindAtomicReservations(mask, 0, true); err == nil {
		t.Fatalf("expected error with no reservation source configured")
	}
}

type fakeHandle struct{ field int }

func (h *fakeHandle) Field() int { return h.field }
func (h *fakeHandle) Release()   {}

type fakeReservationSource struct{}

func (fakeReservationSource) Lease(field int, op uint32, exclusive bool) (ReservationHandle, error) {
	return &fakeHandle{field: field}, nil
}

func TestMaterializedViewAtomicReservationsWithSource(t *testing.T) {
	v, _, _, _ := newTestView(t)
	v.SetReservationSource(fakeReservationSource{})
	mask := fieldmask.FromBits(0, 1)
	handles, err := v.FindAtomicReservations(mask, 5, true)
	if err != nil {
		t.Fatalf("FindAtomicReservations: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(handles))
	}

	// Second call for the same fields should reuse cached handles rather
	// than leasing again.
	handles2, err := v.FindAtomicReservations(mask, 5, true)
	if err != nil {
		t.Fatalf("FindAtomicReservations (cached): %v", err)
	}
	for f, h := range handles {
		if handles2[f] != h {
			t.Fatalf("expected cached handle reuse for field %d", f)
		}
	}
}

var _ versions.FieldVersions = versions.Map(nil)

func TestMaterializedViewSendAndApplyRemoteUpdate(t *testing.T) {
	src, _, _, _ := newTestView(t)
	mask := fieldmask.FromBits(0)

	writer := event.NewSource()
	src.AddUser(region.Usage{Privilege: region.ReadWrite, Coherence: region.Exclusive}, writer.Event(), mask, versions.Map{0: 7}, region.NoColor)
	reader := event.NewSource()
	src.AddUser(region.Usage{Privilege: region.ReadOnly, Coherence: region.Exclusive}, reader.Event(), mask, versions.Map{0: 8}, region.NoColor)

	upd := src.SendViewUpdates(mask)
	if len(upd.UserTable) == 0 {
		t.Fatalf("expected at least one dedup table entry")
	}
	if len(upd.CurrentBlock)+len(upd.PreviousBlock) == 0 {
		t.Fatalf("expected at least one epoch entry in the update")
	}

	dst, _, _, _ := newTestView(t)
	dst.ApplyRemoteUpdate(upd)

	// A fresh writer against the destination view should see the same
	// preconditions a fresh writer against the source view would see,
	// proving the update actually installed the epoch entries rather
	// than just round-tripping bytes.
	wantWriter := event.NewSource()
	want, _ := src.AddUser(region.Usage{Privilege: region.ReadWrite, Coherence: region.Exclusive}, wantWriter.Event(), mask, nil, region.NoColor)

	gotWriter := event.NewSource()
	got, _ := dst.AddUser(region.Usage{Privilege: region.ReadWrite, Coherence: region.Exclusive}, gotWriter.Event(), mask, nil, region.NoColor)

	if len(got) != len(want) {
		t.Fatalf("precondition count mismatch: src=%d dst=%d", len(want), len(got))
	}

	writer.Trigger()
	reader.Trigger()
	wantWriter.Trigger()
	gotWriter.Trigger()
}
