package epoch

import (
	"testing"

	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/region"
)

func rw() region.Usage {
	return region.Usage{Privilege: region.ReadWrite, Coherence: region.Exclusive}
}

func TestAddCurrentPromotesSingleToMulti(t *testing.T) {
	tbl := NewTable()
	ev := event.NewSource().Event()

	u1 := NewPhysicalUser(rw(), region.NoColor, nil)
	tbl.AddCurrent(u1, ev, fieldmask.FromBits(0))

	bucket := tbl.Current[ev]
	if !bucket.IsSingle() {
		t.Fatalf("expected single-form bucket after first insert")
	}

	u2 := NewPhysicalUser(rw(), region.NoColor, nil)
	tbl.AddCurrent(u2, ev, fieldmask.FromBits(1))

	bucket = tbl.Current[ev]
	if bucket.IsSingle() {
		t.Fatalf("expected promotion to multi-form after second distinct user")
	}
	if !fieldmask.Equal(bucket.UserMask, fieldmask.FromBits(0, 1)) {
		t.Fatalf("summary mask = %v, want {0,1}", bucket.UserMask.Fields())
	}
}

func TestFilterLocalReleasesReferences(t *testing.T) {
	tbl := NewTable()
	ev := event.NewSource().Event()
	u := NewPhysicalUser(rw(), region.NoColor, nil)
	tbl.AddCurrent(u, ev, fieldmask.FromBits(0))

	if u.RefCount() != 1 {
		t.Fatalf("refcount = %d, want 1", u.RefCount())
	}

	tbl.FilterLocal(ev)

	if u.RefCount() != 0 {
		t.Fatalf("refcount after FilterLocal = %d, want 0", u.RefCount())
	}
	if _, ok := tbl.Current[ev]; ok {
		t.Fatalf("event should be gone from current_epoch")
	}
	if _, ok := tbl.Outstanding[ev]; ok {
		t.Fatalf("event should be gone from outstanding")
	}

	// Safe to call again with an event never recorded.
	tbl.FilterLocal(event.NewSource().Event())
}

func TestFilterCurrentMovesDominatedFieldsToPrevious(t *testing.T) {
	tbl := NewTable()
	e1 := event.NewSource().Event()
	u := NewPhysicalUser(rw(), region.NoColor, nil)
	tbl.AddCurrent(u, e1, fieldmask.FromBits(0))

	tbl.FilterCurrent(fieldmask.FromBits(0))

	if _, ok := tbl.Current[e1]; ok {
		t.Fatalf("current bucket should be erased once its summary is empty")
	}
	prevBucket, ok := tbl.Previous[e1]
	if !ok {
		t.Fatalf("expected e1 to appear in previous_epoch")
	}
	if !fieldmask.Equal(prevBucket.UserMask, fieldmask.FromBits(0)) {
		t.Fatalf("previous mask = %v, want {0}", prevBucket.UserMask.Fields())
	}
	if u.RefCount() != 1 {
		t.Fatalf("reference should have flowed, not duplicated: refcount=%d", u.RefCount())
	}
}

func TestFilterCurrentPartialOverlapKeepsBothCopies(t *testing.T) {
	tbl := NewTable()
	e1 := event.NewSource().Event()
	u := NewPhysicalUser(rw(), region.NoColor, nil)
	tbl.AddCurrent(u, e1, fieldmask.FromBits(0, 1))

	// Only field 0 is dominated; field 1 survives in current.
	tbl.FilterCurrent(fieldmask.FromBits(0))

	cur, ok := tbl.Current[e1]
	if !ok {
		t.Fatalf("current bucket should survive with field 1")
	}
	if !fieldmask.Equal(cur.UserMask, fieldmask.FromBits(1)) {
		t.Fatalf("current mask = %v, want {1}", cur.UserMask.Fields())
	}
	prev, ok := tbl.Previous[e1]
	if !ok {
		t.Fatalf("expected previous entry for field 0")
	}
	if !fieldmask.Equal(prev.UserMask, fieldmask.FromBits(0)) {
		t.Fatalf("previous mask = %v, want {0}", prev.UserMask.Fields())
	}
	if u.RefCount() != 2 {
		t.Fatalf("user should now be referenced from both tables: refcount=%d", u.RefCount())
	}
}

func TestFilterPreviousDeletesEmptiedUsers(t *testing.T) {
	tbl := NewTable()
	e1 := event.NewSource().Event()
	u := NewPhysicalUser(rw(), region.NoColor, nil)
	tbl.AddPrevious(u, e1, fieldmask.FromBits(0))

	tbl.FilterPrevious(map[event.Event]fieldmask.FieldMask{e1: fieldmask.FromBits(0)})

	if _, ok := tbl.Previous[e1]; ok {
		t.Fatalf("previous bucket should be erased")
	}
	if u.RefCount() != 0 {
		t.Fatalf("refcount = %d, want 0", u.RefCount())
	}
}

func TestScenario1WAWOnIdenticalFields(t *testing.T) {
	// spec.md §8 scenario 1.
	tbl := NewTable()
	e1 := event.NewSource().Event()
	e2 := event.NewSource().Event()
	f0 := fieldmask.FromBits(0)

	a := NewPhysicalUser(rw(), region.NoColor, nil)
	tbl.AddCurrent(a, e1, f0)

	// B queries for f0 and (in the analyzer's real flow) would depend on
	// e1, then install itself and dominate A out of current_epoch.
	tbl.FilterCurrent(f0)
	b := NewPhysicalUser(rw(), region.NoColor, nil)
	tbl.AddCurrent(b, e2, f0)

	if _, ok := tbl.Previous[e1]; !ok {
		t.Fatalf("A should have moved to previous_epoch[e1]")
	}
	cur := tbl.Current[e2]
	if cur == nil || !cur.IsSingle() {
		t.Fatalf("current_epoch[e2] should hold exactly B")
	}
	user, mask := cur.Single()
	if user != b || !fieldmask.Equal(mask, f0) {
		t.Fatalf("current_epoch[e2] holds wrong user/mask")
	}
}
