package reservation

import (
	"testing"

	"github.com/vkolb/viewmesh/lib/db"
	"github.com/vkolb/viewmesh/lib/db/engines/maple"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/store"
	"github.com/vkolb/viewmesh/lib/store/lstore"
)

func newTestStore(t *testing.T) store.IStore {
	t.Helper()
	kv := maple.NewMapleDB(nil)
	t.Cleanup(func() { _ = kv.Close() })
	return lstore.NewLocalStore(func() db.KVDB { return kv })
}

func newTestManager(t *testing.T, did id.DID) *Manager {
	t.Helper()
	return NewManager(did, newTestStore(t))
}

func TestManagerLeaseCachesLocally(t *testing.T) {
	m := newTestManager(t, id.DID(1))

	h1, err := m.Lease(3, 0, true)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if h1.Field() != 3 {
		t.Fatalf("expected field 3, got %d", h1.Field())
	}

	h2, err := m.Lease(3, 0, true)
	if err != nil {
		t.Fatalf("Lease (second call): %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected the cached handle to be returned on a repeat lease")
	}
}

func TestManagerLeaseDistinctFields(t *testing.T) {
	m := newTestManager(t, id.DID(1))

	h1, err := m.Lease(1, 0, false)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	h2, err := m.Lease(2, 0, false)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected distinct handles for distinct fields")
	}
}

func TestManagerReleaseDropsCacheEntry(t *testing.T) {
	m := newTestManager(t, id.DID(1))

	h1, err := m.Lease(4, 0, true)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	h1.Release()

	h2, err := m.Lease(4, 0, true)
	if err != nil {
		t.Fatalf("Lease (after release): %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected a fresh handle after Release dropped the cache entry")
	}
}

func TestManagerDistinctViewsDoNotShareKeys(t *testing.T) {
	st := newTestStore(t)
	m1 := NewManager(id.DID(1), st)
	m2 := NewManager(id.DID(2), st)

	if m1.key(5) == m2.key(5) {
		t.Fatalf("expected distinct store keys for distinct view DIDs")
	}
}
