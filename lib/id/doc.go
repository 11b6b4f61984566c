// Package id implements the engine's distributed identifiers.
//
// A DID is unique cluster-wide and its two low bits encode the view kind
// it addresses, so a handler on a foreign node can dispatch on a DID
// before the referenced object has been materialized locally (see
// spec.md §3, §7 "Remote misrouting ... is fatal").
package id
