package region

// ConservativeTree is a Tree that never reports two subregions as
// disjoint. Building the real partition/color-space disjointness
// analysis (Legion's IndexPartition machinery) is out of scope here —
// Tree is consumed, not implemented, by the dependence analyzer — so
// this is the safe default for wiring a running node: reporting false
// can only ever add a precondition the real partition tree would have
// pruned, never drop one it would have kept.
type ConservativeTree struct{}

// NewConservativeTree returns the always-overlapping Tree.
func NewConservativeTree() ConservativeTree { return ConservativeTree{} }

func (ConservativeTree) Disjoint(_, _ ColorPoint) bool { return false }
