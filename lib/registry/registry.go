package registry

import (
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/vkolb/viewmesh/lib/id"
)

// Object is anything a Registry can track: a view, a subview cache
// entry, or any other DID-addressed value. Kept deliberately minimal so
// registry has no compile-time dependency on lib/views.
type Object interface {
	DID() id.DID
}

// Kind names one of the six paired reference kinds used throughout the
// engine to justify why an object must stay alive. Each kind is added
// and removed independently; an object is collectable only once every
// kind's count has returned to zero (spec.md "reference kinds").
type Kind int

const (
	// Resource holds an object alive because some operation is actively
	// using it right now (e.g. an in-flight copy referencing a view).
	Resource Kind = iota
	// Valid holds an object alive because it represents live, readable
	// data rather than a superseded snapshot.
	Valid
	// GC holds an object alive because a deferred-collection task has
	// been scheduled against one of its events and has not fired yet.
	GC
	// RemoteDID holds an object alive because a remote node has a
	// replica referencing it.
	RemoteDID
	// NestedResource holds a parent view alive because a child view in
	// its hierarchy still references it.
	NestedResource
	// CompositeNode holds a composite view's snapshot tree alive
	// because a CompositeNode still points into it.
	CompositeNode

	numKinds
)

func (k Kind) String() string {
	switch k {
	case Resource:
		return "resource"
	case Valid:
		return "valid"
	case GC:
		return "gc"
	case RemoteDID:
		return "remote_did"
	case NestedResource:
		return "nested_resource"
	case CompositeNode:
		return "composite_node"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Entry pairs a registered object with one atomic counter per reference
// kind.
type Entry struct {
	Object Object
	refs   [numKinds]atomic.Int32
}

func newEntry(obj Object) *Entry {
	return &Entry{Object: obj}
}

// AddReference records one more holder of kind k.
func (e *Entry) AddReference(k Kind) {
	e.refs[k].Add(1)
}

// RemoveReference drops one reference of kind k and reports whether the
// object is now held by nothing at all — every kind's count is zero.
// A true result means the entry may be passed to Registry.Unregister.
func (e *Entry) RemoveReference(k Kind) (collectable bool) {
	e.refs[k].Add(-1)
	return e.Total() == 0
}

// Count reports the current reference count for kind k.
func (e *Entry) Count(k Kind) int32 {
	return e.refs[k].Load()
}

// Total reports the sum of every kind's reference count.
func (e *Entry) Total() int32 {
	var n int32
	for i := range e.refs {
		n += e.refs[i].Load()
	}
	return n
}

func didHasher(d id.DID, _ uint64) uint64 {
	return uint64(d)
}

// Registry is the per-node DID registry.
type Registry struct {
	objects *xsync.MapOf[id.DID, *Entry]
	owners  *xsync.MapOf[id.DID, uint64]
	node    uint64
}

// New creates a Registry for the given local node id.
func New(node uint64) *Registry {
	return &Registry{
		objects: xsync.NewMapOfWithHasher[id.DID, *Entry](didHasher),
		owners:  xsync.NewMapOfWithHasher[id.DID, uint64](didHasher),
		node:    node,
	}
}

// Register records obj under its own DID, adding one reference of kind
// initial, and returns the resulting Entry. If the DID was already
// registered (e.g. a remote announce raced a local materialization) the
// existing Entry is reused and gains the new reference rather than being
// replaced.
func (r *Registry) Register(obj Object, initial Kind) *Entry {
	var result *Entry
	r.objects.Compute(obj.DID(), func(existing *Entry, loaded bool) (*Entry, bool) {
		if !loaded {
			existing = newEntry(obj)
		}
		existing.AddReference(initial)
		result = existing
		return existing, false
	})
	return result
}

// Lookup returns the locally-registered Entry for did, if any.
func (r *Registry) Lookup(did id.DID) (*Entry, bool) {
	return r.objects.Load(did)
}

// Unregister removes did from the local registry outright. Callers must
// have already confirmed the entry is collectable via
// Entry.RemoveReference.
func (r *Registry) Unregister(did id.DID) {
	r.objects.Delete(did)
	r.owners.Delete(did)
}

// IsOwner reports whether did was minted by this node.
func (r *Registry) IsOwner(did id.DID) bool {
	return did.NodeID() == r.node
}

// RecordRemoteOwner notes that did is owned by node, for a DID this node
// has observed (typically via a wire announce message) but has not
// materialized a local replica of yet.
func (r *Registry) RecordRemoteOwner(did id.DID, node uint64) {
	r.owners.Store(did, node)
}

// RemoteOwner returns the node previously recorded via RecordRemoteOwner.
func (r *Registry) RemoteOwner(did id.DID) (uint64, bool) {
	return r.owners.Load(did)
}

// Range calls fn once per locally-registered entry. Iteration order is
// unspecified; fn must not call back into the Registry.
func (r *Registry) Range(fn func(did id.DID, entry *Entry) bool) {
	r.objects.Range(func(did id.DID, entry *Entry) bool {
		return fn(did, entry)
	})
}
