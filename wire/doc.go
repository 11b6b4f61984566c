// Package wire implements the binary encoding of the engine's remote
// messages (spec.md §6 "External interfaces"). Each message type gets
// its own Go struct rather than one flat struct shared by every
// operation, because the payloads are too heterogeneous (dedup tables,
// preorder trees) for that to stay readable — but the on-the-wire
// primitives (a flags/length-prefix discipline over big-endian integers)
// are carried over from rpc/serializer's binary codec.
package wire
