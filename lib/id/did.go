package id

import (
	"fmt"
	"sync/atomic"
)

// Kind identifies which of the four view variants a DID addresses. It is
// packed into the two low bits of every DID so a node can dispatch on a
// foreign DID before the object behind it has been materialized.
type Kind uint8

const (
	KindMaterialized Kind = iota
	KindReduction
	KindComposite
	KindFill
)

func (k Kind) String() string {
	switch k {
	case KindMaterialized:
		return "materialized"
	case KindReduction:
		return "reduction"
	case KindComposite:
		return "composite"
	case KindFill:
		return "fill"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

const (
	kindBits = 2
	kindMask = (1 << kindBits) - 1
)

// DID is a globally-unique view identifier. The low kindBits bits encode
// the Kind; the remaining bits are a per-node, per-kind sequence number
// combined with the owning node's id.
type DID uint64

// Kind extracts the view kind tag without requiring the object it
// addresses to exist locally.
func (d DID) Kind() Kind {
	return Kind(uint64(d) & kindMask)
}

// NodeID reports the owning node encoded in the id.
func (d DID) NodeID() uint64 {
	return uint64(d) >> (kindBits + sequenceBits)
}

func (d DID) String() string {
	return fmt.Sprintf("DID(%d,kind=%s,node=%d)", uint64(d), d.Kind(), d.NodeID())
}

// Valid reports whether d is a non-zero, well-formed id. The zero DID is
// reserved and never assigned.
func (d DID) Valid() bool {
	return d != 0
}

const sequenceBits = 32

// MaxSequence is the number of distinct ids a single (node, kind) pair can
// allocate before the space is exhausted. Per spec.md §7, exhaustion is
// fatal: the caller is expected to treat it as an unrecoverable protocol
// error rather than attempt recovery.
const MaxSequence = 1<<sequenceBits - 1

// ErrSpaceExhausted is returned by Allocator.New when a node has issued
// every id available to it for a given kind.
type ErrSpaceExhausted struct {
	Node uint64
	Kind Kind
}

func (e *ErrSpaceExhausted) Error() string {
	return fmt.Sprintf("id: DID space exhausted for node %d, kind %s", e.Node, e.Kind)
}

// Allocator issues fresh DIDs for a single owning node. It is the only
// component permitted to mint ids; every other component treats DID as an
// opaque, already-minted value.
type Allocator struct {
	node     uint64
	counters [4]atomic.Uint64
}

// NewAllocator creates an id Allocator that stamps every minted DID with
// node as the owning node.
func NewAllocator(node uint64) *Allocator {
	return &Allocator{node: node}
}

// New mints a fresh DID of the given kind, owned by this allocator's node.
func (a *Allocator) New(kind Kind) (DID, error) {
	seq := a.counters[kind&kindMask].Add(1)
	if seq > MaxSequence {
		return 0, &ErrSpaceExhausted{Node: a.node, Kind: kind}
	}
	raw := (a.node << (kindBits + sequenceBits)) | (seq << kindBits) | uint64(kind)
	return DID(raw), nil
}

// Free releases a speculatively-allocated id that lost a creation race
// (spec.md §4.4: "If a racing call won, free the allocated DID"). The
// sequence space is monotonic and not reused — Free exists so callers have
// a symmetrical call to make, matching the paired-reference discipline
// used everywhere else in the engine, but it does not reclaim the slot.
func (a *Allocator) Free(DID) {}
