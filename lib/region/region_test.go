package region

import "testing"

func TestDependenceTable(t *testing.T) {
	cases := []struct {
		name string
		prev Usage
		next Usage
		want Dependence
	}{
		{"read-read", Usage{Privilege: ReadOnly}, Usage{Privilege: ReadOnly}, NoDependence},
		{"write-write", Usage{Privilege: ReadWrite}, Usage{Privilege: ReadWrite}, TrueDependence},
		{"read-write", Usage{Privilege: ReadWrite}, Usage{Privilege: ReadOnly}, TrueDependence},
		{"write-read (anti)", Usage{Privilege: ReadOnly}, Usage{Privilege: ReadWrite}, AntiDependence},
		{"both atomic", Usage{Privilege: ReadWrite, Coherence: Atomic}, Usage{Privilege: ReadWrite, Coherence: Atomic}, AtomicDependence},
		{"both simultaneous", Usage{Privilege: ReadWrite, Coherence: Simultaneous}, Usage{Privilege: ReadWrite, Coherence: Simultaneous}, SimultaneousDependence},
		{"no-access prev", Usage{Privilege: NoAccess}, Usage{Privilege: ReadWrite}, NoDependence},
	}
	for _, c := range cases {
		if got := DependenceOf(c.prev, c.next); got != c.want {
			t.Errorf("%s: DependenceOf(%v,%v) = %v, want %v", c.name, c.prev, c.next, got, c.want)
		}
	}
}

func TestRequiresWait(t *testing.T) {
	if NoDependence.RequiresWait() || AtomicDependence.RequiresWait() || SimultaneousDependence.RequiresWait() {
		t.Fatalf("only True/Anti should require a wait")
	}
	if !TrueDependence.RequiresWait() || !AntiDependence.RequiresWait() {
		t.Fatalf("True/Anti must require a wait")
	}
}

func TestColorPoint(t *testing.T) {
	if NoColor.IsValid() {
		t.Fatalf("NoColor must be invalid")
	}
	c0 := NewColor(0)
	c1 := NewColor(1)
	if !c0.IsValid() {
		t.Fatalf("c0 must be valid")
	}
	if SameColor(c0, c1) {
		t.Fatalf("distinct colors must not be SameColor")
	}
	if !SameColor(c0, NewColor(0)) {
		t.Fatalf("same value colors must be SameColor")
	}
}

func TestConservativeTreeNeverDisjoint(t *testing.T) {
	tr := NewConservativeTree()
	if tr.Disjoint(NewColor(0), NewColor(1)) {
		t.Fatalf("ConservativeTree must never report disjoint")
	}
	if tr.Disjoint(NoColor, NoColor) {
		t.Fatalf("ConservativeTree must never report disjoint")
	}
}
