package fieldmask

import "testing"

func TestSetTestClear(t *testing.T) {
	m := New(4)
	if !m.IsEmpty() {
		t.Fatalf("new mask should be empty")
	}
	m.Set(2)
	if !m.Test(2) || m.Test(1) {
		t.Fatalf("unexpected bits after Set(2): %v", m.Fields())
	}
	m.Clear(2)
	if !m.IsEmpty() {
		t.Fatalf("expected empty mask after Clear, got %v", m.Fields())
	}
}

func TestUnionIntersectSubtract(t *testing.T) {
	a := FromBits(0, 1, 2)
	b := FromBits(2, 3)

	if got := Union(a, b).Fields(); !eq(got, []int{0, 1, 2, 3}) {
		t.Fatalf("union = %v", got)
	}
	if got := Intersect(a, b).Fields(); !eq(got, []int{2}) {
		t.Fatalf("intersect = %v", got)
	}
	if got := Subtract(a, b).Fields(); !eq(got, []int{0, 1}) {
		t.Fatalf("subtract = %v", got)
	}
}

func TestDisjoint(t *testing.T) {
	a := FromBits(0, 1)
	b := FromBits(2, 3)
	c := FromBits(1, 5)

	if !Disjoint(a, b) {
		t.Fatalf("expected a, b disjoint")
	}
	if Disjoint(a, c) {
		t.Fatalf("expected a, c to overlap")
	}
}

func TestGrowsAcrossWordBoundary(t *testing.T) {
	m := FromBits(63, 64, 128)
	if got := m.Fields(); !eq(got, []int{63, 64, 128}) {
		t.Fatalf("got %v", got)
	}
	if m.PopCount() != 3 {
		t.Fatalf("popcount = %d", m.PopCount())
	}
}

func TestWordsRoundTrip(t *testing.T) {
	m := FromBits(1, 70, 200)
	rt := FromWords(m.Words())
	if !Equal(m, rt) {
		t.Fatalf("round trip mismatch: %v vs %v", m.Fields(), rt.Fields())
	}
}

func eq(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
