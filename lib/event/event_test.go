package event

import "testing"

func TestNoEventTriggeredAndWaits(t *testing.T) {
	if !NoEvent.HasTriggered() {
		t.Fatalf("NoEvent must report triggered")
	}
	NoEvent.Wait() // must not block
}

func TestSourceTrigger(t *testing.T) {
	src := NewSource()
	ev := src.Event()
	if ev.HasTriggered() {
		t.Fatalf("fresh event should not be triggered")
	}
	src.Trigger()
	if !ev.HasTriggered() {
		t.Fatalf("event should be triggered after Trigger")
	}
	ev.Wait() // must not block
}

func TestMergeEmptyIsNoEvent(t *testing.T) {
	if Merge() != NoEvent {
		t.Fatalf("Merge() should be NoEvent")
	}
	if Merge(NoEvent, NoEvent) != NoEvent {
		t.Fatalf("Merge(NoEvent...) should be NoEvent")
	}
}

func TestMergeSingleIsIdentity(t *testing.T) {
	src := NewSource()
	if Merge(src.Event()) != src.Event() {
		t.Fatalf("Merge of a single event should return it unchanged")
	}
}

func TestMergeFiresOnlyAfterAll(t *testing.T) {
	a := NewSource()
	b := NewSource()
	merged := Merge(a.Event(), b.Event())

	if merged.HasTriggered() {
		t.Fatalf("merged event fired too early")
	}
	a.Trigger()
	if merged.HasTriggered() {
		t.Fatalf("merged event fired before all inputs triggered")
	}
	b.Trigger()
	merged.Wait()
	if !merged.HasTriggered() {
		t.Fatalf("merged event should be triggered")
	}
}

func TestSetMerge(t *testing.T) {
	s := NewSet()
	a := NewSource()
	s.Add(a.Event())
	s.Add(NoEvent)
	if len(s) != 1 {
		t.Fatalf("NoEvent should not be added to set, got len %d", len(s))
	}
	a.Trigger()
	s.Merge().Wait()
}
