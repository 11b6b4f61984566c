package reservation

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/registry"
	"github.com/vkolb/viewmesh/lib/store"
	"github.com/vkolb/viewmesh/lib/views"
)

const tokenBytes = 32

// generateToken mints a random value to mark this node as the creator of
// a reservation key, mirroring lib/lockmgr's generateOwnerID shape.
func generateToken() ([]byte, error) {
	token := make([]byte, tokenBytes)
	_, err := rand.Read(token)
	return token, err
}

// Manager is one root view's connection to the distributed reservation
// store (spec.md §4.6). It is constructed once per root MaterializedView
// and installed via MaterializedView.SetReservationSource.
type Manager struct {
	did   id.DID
	store store.IStore

	mu   sync.Mutex
	held map[int]*Handle
}

var _ views.ReservationSource = (*Manager)(nil)

// NewManager creates a Manager scoped to the given root view's DID,
// backed by st. st may be a local lib/store/lstore instance or a
// Raft-replicated lib/store/dstore instance — Manager is agnostic.
func NewManager(did id.DID, st store.IStore) *Manager {
	return &Manager{did: did, store: st, held: make(map[int]*Handle)}
}

func (m *Manager) key(field int) string {
	return fmt.Sprintf("viewmesh/reservation/%d/%d", uint64(m.did), field)
}

// Lease implements views.ReservationSource. It returns the reservation
// object for field, creating it network-wide on first request via an
// atomic SetEIfUnset and caching the result locally. op and exclusive
// mirror the original's find_atomic_reservations(mask, op, excl)
// signature; neither affects which reservation object is returned — the
// original looks one up the same way regardless of op or access mode,
// since the Reservation itself (not this lookup) is what enforces
// exclusion.
func (m *Manager) Lease(field int, op uint32, exclusive bool) (views.ReservationHandle, error) {
	m.mu.Lock()
	if h, ok := m.held[field]; ok {
		m.mu.Unlock()
		return h, nil
	}
	m.mu.Unlock()

	key := m.key(field)
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	if err := m.store.SetEIfUnset(key, token, 0, 0); err != nil {
		return nil, registry.NewError(registry.RetCNoReservationSource, err.Error())
	}

	value, ok, err := m.store.Get(key)
	if err != nil {
		return nil, registry.NewError(registry.RetCNoReservationSource, err.Error())
	}
	if !ok {
		return nil, registry.NewError(registry.RetCNoReservationSource, "reservation key vanished after creation")
	}

	h := &Handle{manager: m, field: field, token: value}

	m.mu.Lock()
	if existing, ok := m.held[field]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.held[field] = h
	m.mu.Unlock()
	return h, nil
}

// Handle is the reservation object for one field, cached for the
// lifetime of its owning root view.
type Handle struct {
	manager *Manager
	field   int
	token   []byte
}

var _ views.ReservationHandle = (*Handle)(nil)

// Field implements views.ReservationHandle.
func (h *Handle) Field() int { return h.field }

// Token returns the opaque reservation token stored for this field, for
// callers (e.g. rpc/server's view adapter) that need to ship it to a
// remote requester over the wire.
func (h *Handle) Token() []byte { return h.token }

// Release drops this node's local cache entry for the reservation. It
// does not delete the underlying store key: the original engine never
// frees an atomic_reservations entry once created — every node that has
// seen it keeps it cached for the view's lifetime, and the reservation
// itself (not this cache) is what other nodes will still reference.
func (h *Handle) Release() {
	h.manager.mu.Lock()
	if h.manager.held[h.field] == h {
		delete(h.manager.held, h.field)
	}
	h.manager.mu.Unlock()
}
