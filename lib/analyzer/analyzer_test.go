package analyzer

import (
	"testing"

	"github.com/vkolb/viewmesh/lib/epoch"
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/region"
	"github.com/vkolb/viewmesh/lib/versions"
)

func readWrite() region.Usage {
	return region.Usage{Privilege: region.ReadWrite, Coherence: region.Exclusive}
}

func readOnly() region.Usage {
	return region.Usage{Privilege: region.ReadOnly, Coherence: region.Exclusive}
}

// disjointPair is a minimal region.Tree that only knows one specific pair
// of children is disjoint.
type disjointPair struct{ a, b region.ColorPoint }

func (d disjointPair) Disjoint(x, y region.ColorPoint) bool {
	return (region.SameColor(x, d.a) && region.SameColor(y, d.b)) ||
		(region.SameColor(x, d.b) && region.SameColor(y, d.a))
}

func TestTaskPathWriteWriteRecordsPreconditionAndDominates(t *testing.T) {
	tbl := epoch.NewTable()
	ev := event.NewSource().Event()
	f0 := fieldmask.FromBits(0)

	writer := epoch.NewPhysicalUser(readWrite(), region.NoColor, nil)
	tbl.AddCurrent(writer, ev, f0)

	plan := Scan(tbl, nil, Request{Mask: f0, Usage: readWrite(), ChildColor: region.NoColor})

	if len(plan.Preconditions) != 1 {
		t.Fatalf("preconditions = %v, want exactly {ev}", plan.Preconditions)
	}
	if _, ok := plan.Preconditions[ev]; !ok {
		t.Fatalf("expected ev to be a precondition")
	}
	if !fieldmask.Equal(plan.Dominated, f0) {
		t.Fatalf("dominated = %v, want {0}", plan.Dominated.Fields())
	}

	Apply(tbl, plan)
	if _, ok := tbl.Current[ev]; ok {
		t.Fatalf("current bucket should have been fully migrated to previous")
	}
	if _, ok := tbl.Previous[ev]; !ok {
		t.Fatalf("expected writer to have migrated to previous_epoch")
	}
}

// Scenario 2 (spec.md §8): two disjoint sibling subregions never generate
// a dependence even though their usages conflict and their field masks
// overlap.
func TestScenario2DisjointSiblingsSkip(t *testing.T) {
	tbl := epoch.NewTable()
	ev := event.NewSource().Event()
	f0 := fieldmask.FromBits(0)

	childA := region.NewColor(1)
	childB := region.NewColor(2)
	tree := disjointPair{a: childA, b: childB}

	writer := epoch.NewPhysicalUser(readWrite(), childA, nil)
	tbl.AddCurrent(writer, ev, f0)

	plan := Scan(tbl, tree, Request{
		Mask:       f0,
		Usage:      readWrite(),
		ChildColor: childB,
	})

	if len(plan.Preconditions) != 0 {
		t.Fatalf("disjoint siblings should never depend on each other, got %v", plan.Preconditions)
	}
	if !plan.Dominated.IsEmpty() {
		t.Fatalf("disjoint-sibling overlap must not be dominated: %v", plan.Dominated.Fields())
	}
}

// Scenario 3 (spec.md §8): a write copy against a prior read-only user
// recording the identical field version is a no-op WAR dependence.
func TestScenario3SameVersionWARSkip(t *testing.T) {
	tbl := epoch.NewTable()
	ev := event.NewSource().Event()
	f0 := fieldmask.FromBits(0)

	vers := versions.Map{0: 7}
	reader := epoch.NewPhysicalUser(readOnly(), region.NoColor, vers)
	tbl.AddCurrent(reader, ev, f0)

	plan := Scan(tbl, nil, Request{
		Mask:     f0,
		Copy:     true,
		Reading:  false,
		Redop:    0,
		Versions: vers,
	})

	if len(plan.Preconditions) != 0 {
		t.Fatalf("same-version WAR should be skipped, got preconditions %v", plan.Preconditions)
	}

	// A different version on the overlap must NOT be skipped.
	tbl2 := epoch.NewTable()
	ev2 := event.NewSource().Event()
	reader2 := epoch.NewPhysicalUser(readOnly(), region.NoColor, versions.Map{0: 9})
	tbl2.AddCurrent(reader2, ev2, f0)
	plan2 := Scan(tbl2, nil, Request{Mask: f0, Copy: true, Reading: false, Redop: 0, Versions: vers})
	if len(plan2.Preconditions) != 1 {
		t.Fatalf("differing versions on overlap must still produce a dependence, got %v", plan2.Preconditions)
	}
}

// Copy-path cut-offs: a reading copy against a prior read-only user never
// conflicts, but the same reading copy against a prior writer does.
func TestCopyPathReaderAndReducerCutoffs(t *testing.T) {
	tbl := epoch.NewTable()
	ev := event.NewSource().Event()
	f0 := fieldmask.FromBits(0)

	reader := epoch.NewPhysicalUser(readOnly(), region.NoColor, nil)
	tbl.AddCurrent(reader, ev, f0)

	plan := Scan(tbl, nil, Request{Mask: f0, Copy: true, Reading: true})
	if len(plan.Preconditions) != 0 {
		t.Fatalf("read-after-read copy must not depend on a prior reader, got %v", plan.Preconditions)
	}

	tbl2 := epoch.NewTable()
	ev2 := event.NewSource().Event()
	writer := epoch.NewPhysicalUser(readWrite(), region.NoColor, nil)
	tbl2.AddCurrent(writer, ev2, f0)
	plan2 := Scan(tbl2, nil, Request{Mask: f0, Copy: true, Reading: true})
	if len(plan2.Preconditions) != 1 {
		t.Fatalf("read copy must depend on a prior writer, got %v", plan2.Preconditions)
	}

	// A reduction copy against a prior user reducing with the same
	// operator is compatible and skipped.
	tbl3 := epoch.NewTable()
	ev3 := event.NewSource().Event()
	reducer := epoch.NewPhysicalUser(region.Usage{Privilege: region.Reduce, Coherence: region.Exclusive, Redop: 5}, region.NoColor, nil)
	tbl3.AddCurrent(reducer, ev3, f0)
	plan3 := Scan(tbl3, nil, Request{Mask: f0, Copy: true, Redop: 5})
	if len(plan3.Preconditions) != 0 {
		t.Fatalf("same-operator reductions must not order each other, got %v", plan3.Preconditions)
	}
}

func TestApplyDropsDeadEventsFromBothTables(t *testing.T) {
	tbl := epoch.NewTable()
	src := event.NewSource()
	ev := src.Event()
	f0 := fieldmask.FromBits(0)

	u := epoch.NewPhysicalUser(readWrite(), region.NoColor, nil)
	tbl.AddCurrent(u, ev, f0)
	src.Trigger()

	plan := Scan(tbl, nil, Request{Mask: fieldmask.New(0), Usage: readWrite()})
	if len(plan.DeadEvents) != 1 || plan.DeadEvents[0] != ev {
		t.Fatalf("expected ev to be reported dead, got %v", plan.DeadEvents)
	}

	Apply(tbl, plan)
	if _, ok := tbl.Current[ev]; ok {
		t.Fatalf("dead event should have been filtered out of current_epoch")
	}
	if u.RefCount() != 0 {
		t.Fatalf("refcount after filtering dead event = %d, want 0", u.RefCount())
	}
}

func TestPreviousEpochOnlyConsultedForNonDominatedFields(t *testing.T) {
	tbl := epoch.NewTable()
	evPrev := event.NewSource().Event()
	f0 := fieldmask.FromBits(0)
	f1 := fieldmask.FromBits(1)

	prevUser := epoch.NewPhysicalUser(readWrite(), region.NoColor, nil)
	tbl.AddPrevious(prevUser, evPrev, f1)

	evCur := event.NewSource().Event()
	curUser := epoch.NewPhysicalUser(readWrite(), region.NoColor, nil)
	tbl.AddCurrent(curUser, evCur, f0)

	// Query touches both fields: field 0 is dominated by the current-epoch
	// writer, field 1 is only visible in previous_epoch.
	plan := Scan(tbl, nil, Request{Mask: fieldmask.Union(f0, f1), Usage: readWrite()})

	if _, ok := plan.Preconditions[evCur]; !ok {
		t.Fatalf("expected current-epoch writer to be a precondition")
	}
	if _, ok := plan.Preconditions[evPrev]; !ok {
		t.Fatalf("expected previous-epoch writer on the non-dominated field to be a precondition")
	}
}
