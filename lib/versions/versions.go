package versions

import "github.com/vkolb/viewmesh/lib/fieldmask"

// FieldVersions is a read-only snapshot of per-field version identifiers,
// recorded only for read-only users (spec.md §3: "Versions are recorded
// only for read-only users — the single case where the WAW/WAR skip below
// needs them").
type FieldVersions interface {
	// Version returns the version id recorded for field, and whether one
	// was recorded at all.
	Version(field int) (id uint64, ok bool)
}

// Map is the straightforward FieldVersions implementation: an explicit
// field -> version id table, built by the caller from whatever the
// out-of-scope version tracker reports.
type Map map[int]uint64

// Version implements FieldVersions.
func (m Map) Version(field int) (uint64, bool) {
	id, ok := m[field]
	return id, ok
}

// SameOnOverlap reports whether a and b record identical version ids for
// every field in mask. An empty mask is vacuously true. A field present in
// mask but missing from either side is treated as "not proven equal" —
// the skip only ever fires when both sides actually recorded a version.
func SameOnOverlap(a, b FieldVersions, mask fieldmask.FieldMask) bool {
	if a == nil || b == nil {
		return false
	}
	for _, f := range mask.Fields() {
		av, aok := a.Version(f)
		bv, bok := b.Version(f)
		if !aok || !bok || av != bv {
			return false
		}
	}
	return true
}
