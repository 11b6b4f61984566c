package registry

import (
	"testing"

	"github.com/vkolb/viewmesh/lib/id"
)

type fakeObject struct{ did id.DID }

func (f fakeObject) DID() id.DID { return f.did }

func TestRegisterAddsReferenceAndReusesEntry(t *testing.T) {
	reg := New(1)
	alloc := id.NewAllocator(1)
	did, err := alloc.New(id.KindMaterialized)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	obj := fakeObject{did: did}

	entry := reg.Register(obj, Resource)
	if entry.Count(Resource) != 1 {
		t.Fatalf("resource refs = %d, want 1", entry.Count(Resource))
	}

	entry2 := reg.Register(obj, Valid)
	if entry2 != entry {
		t.Fatalf("expected the same Entry to be reused across Register calls")
	}
	if entry.Count(Valid) != 1 || entry.Count(Resource) != 1 {
		t.Fatalf("expected both kinds tracked independently, got resource=%d valid=%d",
			entry.Count(Resource), entry.Count(Valid))
	}
	if entry.Total() != 2 {
		t.Fatalf("total = %d, want 2", entry.Total())
	}
}

func TestRemoveReferenceReportsCollectableOnlyWhenAllKindsZero(t *testing.T) {
	reg := New(1)
	alloc := id.NewAllocator(1)
	did, _ := alloc.New(id.KindFill)
	obj := fakeObject{did: did}

	entry := reg.Register(obj, Resource)
	reg.Register(obj, GC)

	if entry.RemoveReference(Resource) {
		t.Fatalf("should not be collectable while GC reference is still held")
	}
	if !entry.RemoveReference(GC) {
		t.Fatalf("should be collectable once every kind's count is zero")
	}
}

func TestUnregisterRemovesEntry(t *testing.T) {
	reg := New(1)
	alloc := id.NewAllocator(1)
	did, _ := alloc.New(id.KindComposite)
	obj := fakeObject{did: did}
	reg.Register(obj, Resource)

	reg.Unregister(did)

	if _, ok := reg.Lookup(did); ok {
		t.Fatalf("entry should be gone after Unregister")
	}
}

func TestIsOwnerAndRemoteOwnerTracking(t *testing.T) {
	reg := New(1)
	alloc := id.NewAllocator(2)
	remoteDID, _ := alloc.New(id.KindReduction)

	if reg.IsOwner(remoteDID) {
		t.Fatalf("node 1 should not own a DID minted by node 2")
	}

	reg.RecordRemoteOwner(remoteDID, 2)
	owner, ok := reg.RemoteOwner(remoteDID)
	if !ok || owner != 2 {
		t.Fatalf("remote owner = (%d,%v), want (2,true)", owner, ok)
	}
}
