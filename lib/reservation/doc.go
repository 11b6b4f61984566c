// Package reservation implements the atomic-coherence leasing side of
// spec.md §4.6: "root owns leases, others forward." A Manager backs
// exactly one root MaterializedView and lazily creates, on first
// request, a reservation object per field — cached for the view's
// lifetime and never re-acquired, matching the original engine's
// atomic_reservations map.
//
// Distribution is delegated entirely to lib/store: a Manager is handed
// a store.IStore, which may be lib/store/lstore (single-node) or
// lib/store/dstore (Raft-replicated via dragonboat), so the same lease
// logic works whether the root view's node is alone or part of a
// cluster.
package reservation
