package id

import "testing"

func TestKindRoundTrip(t *testing.T) {
	a := NewAllocator(7)
	for _, k := range []Kind{KindMaterialized, KindReduction, KindComposite, KindFill} {
		did, err := a.New(k)
		if err != nil {
			t.Fatalf("New(%s): %v", k, err)
		}
		if did.Kind() != k {
			t.Fatalf("got kind %s, want %s", did.Kind(), k)
		}
		if did.NodeID() != 7 {
			t.Fatalf("got node %d, want 7", did.NodeID())
		}
	}
}

func TestDistinctSequences(t *testing.T) {
	a := NewAllocator(1)
	seen := map[DID]bool{}
	for i := 0; i < 1000; i++ {
		did, err := a.New(KindMaterialized)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if seen[did] {
			t.Fatalf("duplicate DID %v", did)
		}
		seen[did] = true
	}
}

func TestExhaustion(t *testing.T) {
	a := &Allocator{node: 1}
	a.counters[KindMaterialized].Store(MaxSequence)
	if _, err := a.New(KindMaterialized); err == nil {
		t.Fatalf("expected exhaustion error")
	}
}
