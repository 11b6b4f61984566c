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
	"github.com/vkolb/viewmesh/wire"
)

func newTestEngine(t *testing.T) (*Engine, *id.Allocator) {
	t.Helper()
	reg := registry.New(1)
	sched := gc.NewScheduler()
	t.Cleanup(sched.Close)
	return NewEngine(disjointTree{}, alloc.NewInMemory(), sched, reg), id.NewAllocator(2)
}

func TestEngineMaterializedAnnounceThenUpdateRoundTrip(t *testing.T) {
	eng, remoteAlloc := newTestEngine(t)

	// Build an "owner" view on a different node and ship its announce +
	// an update to this engine, as the owner's real network path would.
	ownerReg := registry.New(2)
	ownerSched := gc.NewScheduler()
	t.Cleanup(ownerSched.Close)
	owner, err := NewMaterializedView(remoteAlloc, disjointTree{}, alloc.NewInMemory(), ownerSched, ownerReg, nil, region.NoColor)
	if err != nil {
		t.Fatalf("NewMaterializedView: %v", err)
	}

	if err := eng.HandleMaterializedViewAnnounce(&wire.MaterializedViewAnnounce{DID: owner.DID()}); err != nil {
		t.Fatalf("HandleMaterializedViewAnnounce: %v", err)
	}
	replica, ok := eng.materialized(owner.DID())
	if !ok {
		t.Fatalf("expected replica installed for %s", owner.DID())
	}

	mask := fieldmask.FromBits(0)
	writer := event.NewSource()
	owner.AddUser(region.Usage{Privilege: region.ReadWrite, Coherence: region.Exclusive}, writer.Event(), mask, nil, region.NoColor)

	upd := owner.SendViewUpdates(mask)
	if err := eng.HandleMaterializedUpdate(upd); err != nil {
		t.Fatalf("HandleMaterializedUpdate: %v", err)
	}

	newWriter := event.NewSource()
	pre, _ := replica.AddUser(region.Usage{Privilege: region.ReadWrite, Coherence: region.Exclusive}, newWriter.Event(), mask, nil, region.NoColor)
	if len(pre) == 0 {
		t.Fatalf("expected replica to have absorbed the remote writer as a precondition")
	}

	writer.Trigger()
	newWriter.Trigger()
}

func TestEngineMaterializedUpdateUnknownDIDErrors(t *testing.T) {
	eng, _ := newTestEngine(t)
	unknown := id.NewAllocator(9)
	did, err := unknown.New(id.KindMaterialized)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.HandleMaterializedUpdate(&wire.MaterializedUpdate{DID: did}); err == nil {
		t.Fatalf("expected error applying update for unregistered DID")
	}
}

func TestEngineFillAnnounceInstallsReplica(t *testing.T) {
	eng, _ := newTestEngine(t)
	remoteAlloc := id.NewAllocator(3)
	did, err := remoteAlloc.New(id.KindFill)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.HandleFillViewAnnounce(&wire.FillViewAnnounce{DID: did, Value: []byte("zero")}); err != nil {
		t.Fatalf("HandleFillViewAnnounce: %v", err)
	}
	entry, ok := eng.Registry.Lookup(did)
	if !ok {
		t.Fatalf("expected fill view registered under %s", did)
	}
	fv, ok := entry.Object.(*FillView)
	if !ok {
		t.Fatalf("expected *FillView, got %T", entry.Object)
	}
	if string(fv.Value()) != "zero" {
		t.Fatalf("expected fill value %q, got %q", "zero", fv.Value())
	}
}

func TestEngineReductionAnnounceThenUpdateRoundTrip(t *testing.T) {
	eng, _ := newTestEngine(t)
	ownerReg := registry.New(4)
	owner, err := NewReductionView(id.NewAllocator(4), region.RedopID(1), alloc.NewInMemory(), ownerReg)
	if err != nil {
		t.Fatalf("NewReductionView: %v", err)
	}

	if err := eng.HandleReductionViewAnnounce(&wire.ReductionViewAnnounce{DID: owner.DID(), Redop: owner.redop}); err != nil {
		t.Fatalf("HandleReductionViewAnnounce: %v", err)
	}

	mask := fieldmask.FromBits(0)
	reader := event.NewSource()
	owner.AddReader(reader.Event(), mask)

	if err := eng.HandleReductionUpdate(owner.SendViewUpdates(mask)); err != nil {
		t.Fatalf("HandleReductionUpdate: %v", err)
	}

	replica, ok := eng.reduction(owner.DID())
	if !ok {
		t.Fatalf("expected reduction replica for %s", owner.DID())
	}
	pre := replica.FindCopyPreconditions(false, mask)
	if _, ok := pre[reader.Event()]; !ok {
		t.Fatalf("expected installed reader among replica's reduce preconditions, got %v", pre)
	}
	reader.Trigger()
}
