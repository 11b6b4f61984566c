package views

import (
	"testing"

	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
)

func TestComputeEventSetsMergesOverlapping(t *testing.T) {
	s1 := event.NewSource()
	s2 := event.NewSource()
	s3 := event.NewSource()
	defer s1.Trigger()
	defer s2.Trigger()
	defer s3.Trigger()

	m1 := fieldmask.FromBits(0, 1)
	m2 := fieldmask.FromBits(1, 2)
	m3 := fieldmask.FromBits(5)

	groups := ComputeEventSets(map[event.Event]fieldmask.FieldMask{
		s1.Event(): m1,
		s2.Event(): m2,
		s3.Event(): m3,
	})

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	var sawUnion, sawIsolated bool
	for _, g := range groups {
		switch {
		case fieldmask.Equal(g.Mask, fieldmask.FromBits(0, 1, 2)):
			sawUnion = true
		case fieldmask.Equal(g.Mask, m3):
			sawIsolated = true
		}
	}
	if !sawUnion || !sawIsolated {
		t.Fatalf("groups did not partition as expected: %+v", groups)
	}
}

func TestComputeEventSetsEmpty(t *testing.T) {
	groups := ComputeEventSets(nil)
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestComputeEventSetsSingleton(t *testing.T) {
	s := event.NewSource()
	defer s.Trigger()
	m := fieldmask.FromBits(3)
	groups := ComputeEventSets(map[event.Event]fieldmask.FieldMask{s.Event(): m})
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if !fieldmask.Equal(groups[0].Mask, m) {
		t.Fatalf("mask mismatch: %v", groups[0].Mask)
	}
}
