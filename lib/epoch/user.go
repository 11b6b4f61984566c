package epoch

import (
	"sync/atomic"

	"github.com/vkolb/viewmesh/lib/region"
	"github.com/vkolb/viewmesh/lib/versions"
)

// PhysicalUser is an immutable record of one use of a view: the usage it
// requested, the child it was recorded against (if any), and — for
// read-only users only — the field versions it observed (spec.md §3).
//
// PhysicalUser is reference-counted because a single instance may be
// shared between the current- and previous-epoch tables of one view, and
// across nodes once it has been serialized into a remote update
// (spec.md §3 Invariant 4).
type PhysicalUser struct {
	Usage    region.Usage
	Child    region.ColorPoint
	Versions versions.FieldVersions

	refs atomic.Int32
}

// NewPhysicalUser creates a user record with one reference already held
// by the caller (the entry that is about to be inserted into a Table).
func NewPhysicalUser(usage region.Usage, child region.ColorPoint, vers versions.FieldVersions) *PhysicalUser {
	u := &PhysicalUser{Usage: usage, Child: child, Versions: vers}
	u.refs.Store(1)
	return u
}

// AddRef records an additional owner of u. Called whenever u is inserted
// into a second EventUsers entry (e.g. shared between current and
// previous epoch for overlapping-but-not-fully-dominated fields).
func (u *PhysicalUser) AddRef() {
	u.refs.Add(1)
}

// RemoveRef drops one owner's reference. It reports whether that was the
// last reference — callers do not need to act on a true result (Go's
// garbage collector reclaims the value), but tests use it to verify
// invariant 4 ("released exactly once when its last hosting EventUsers
// entry is removed").
func (u *PhysicalUser) RemoveRef() bool {
	return u.refs.Add(-1) == 0
}

// RefCount reports the current reference count. Exposed for tests only.
func (u *PhysicalUser) RefCount() int32 {
	return u.refs.Load()
}
