// Package region defines the small set of types the dependency engine
// borrows from the region tree, and the privilege/coherence dependence
// table used by the task-precondition analyzer.
//
// The region tree itself — color-addressed node graph, domain
// intersection, disjointness queries — is out of scope (spec.md §1); this
// package only defines the interface the analyzer consumes from it.
package region
