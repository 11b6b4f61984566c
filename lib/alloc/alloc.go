package alloc

import (
	"sync"

	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/region"
)

// FieldID identifies a single field of an allocation.
type FieldID int

// CopyItem describes one grouped copy: every field in Fields is copied
// from its recorded source to dst, after Precondition fires.
type CopyItem struct {
	Fields       fieldmask.FieldMask
	Precondition event.Event
}

// FillItem describes a fill of Fields with a constant Value.
type FillItem struct {
	Fields       fieldmask.FieldMask
	Value        []byte
	Precondition event.Event
}

// ReduceItem describes a reduction of Fields into dst using Redop.
type ReduceItem struct {
	Fields       fieldmask.FieldMask
	Redop        region.RedopID
	Precondition event.Event
}

// Manager is the narrow slice of the physical allocation manager the
// composite and fill view planners call into. Every method returns the
// event that fires when the issued work completes — the planners never
// wait on it themselves, they only weave it into postconditions.
type Manager interface {
	// IssueGroupedCopy issues one or more field-disjoint-or-not copy
	// operations that together produce items, and returns a single event
	// that fires once all of them have completed.
	IssueGroupedCopy(items []CopyItem) event.Event
	// IssueFill issues a fill for one FillItem and returns its completion
	// event.
	IssueFill(item FillItem) event.Event
	// IssueReduction issues a single reduction and returns its completion
	// event.
	IssueReduction(item ReduceItem) event.Event
}

// InMemory is a deterministic reference Manager: it performs no actual
// memory movement, it only threads preconditions into postconditions. It
// exists so the composite/fill/reduction planners can be exercised and
// tested without a real allocation manager, matching this package's
// out-of-scope, interface-only role (spec.md §1).
type InMemory struct {
	mu  sync.Mutex
	log []string
}

// NewInMemory returns a ready-to-use InMemory manager.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (m *InMemory) record(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, kind)
}

// Log returns every operation issued so far, in issue order. Intended for
// assertions in tests.
func (m *InMemory) Log() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.log))
	copy(out, m.log)
	return out
}

func (m *InMemory) IssueGroupedCopy(items []CopyItem) event.Event {
	m.record("copy")
	pre := event.NewSet()
	for _, it := range items {
		pre.Add(it.Precondition)
	}
	src := event.NewSource()
	go func() {
		pre.Merge().Wait()
		src.Trigger()
	}()
	return src.Event()
}

func (m *InMemory) IssueFill(item FillItem) event.Event {
	m.record("fill")
	src := event.NewSource()
	go func() {
		item.Precondition.Wait()
		src.Trigger()
	}()
	return src.Event()
}

func (m *InMemory) IssueReduction(item ReduceItem) event.Event {
	m.record("reduce")
	src := event.NewSource()
	go func() {
		item.Precondition.Wait()
		src.Trigger()
	}()
	return src.Event()
}
