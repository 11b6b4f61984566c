// Package registry is the per-node distributed-object substrate: the
// DID-addressed table every view lives in, plus the six reference kinds
// the rest of the engine uses to justify why an object is still alive
// (spec.md "reference kinds": resource, valid, gc, remote_did,
// nested_resource, composite_node).
//
// Registry tracks two disjoint things per DID: a locally-materialized
// Entry (this node owns the object, or has already pulled a replica of
// it), and a remote-owner hint (this node has observed the DID — e.g. in
// a wire message — but has not yet materialized anything for it). The
// owner/non-owner subview-miss paths in lib/views consult both.
package registry
