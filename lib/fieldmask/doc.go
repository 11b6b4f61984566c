// Package fieldmask provides a fixed-width bitset over a view's field
// space. A FieldMask is the unit of fine-grained interference analysis
// throughout the dependency engine: every recorded user, every query, and
// every wire message carries one.
package fieldmask
