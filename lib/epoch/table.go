package epoch

import (
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
)

// Table is the per-view user epoch table (spec.md §3, §4.1). All methods
// assume the caller already holds the owning view's lock; Table performs
// no locking of its own.
type Table struct {
	Current  map[event.Event]*EventUsers
	Previous map[event.Event]*EventUsers

	// Outstanding is the set of events for which a deferred-collection
	// task has been scheduled. The union of keys in Current and Previous
	// is always a subset of Outstanding (spec.md §3 Data model).
	Outstanding map[event.Event]struct{}
}

// NewTable returns an empty, ready-to-use Table.
func NewTable() *Table {
	return &Table{
		Current:     make(map[event.Event]*EventUsers),
		Previous:    make(map[event.Event]*EventUsers),
		Outstanding: make(map[event.Event]struct{}),
	}
}

// track records ev in Outstanding and reports whether it was newly added —
// the signal the analyzer uses to decide whether to ask the scheduler for
// a fresh GC defer (spec.md §4.2: "if term_event is newly tracked ...
// return a flag asking the scheduler to launch a GC defer on it").
func (t *Table) track(ev event.Event) (isNew bool) {
	if ev == event.NoEvent {
		return false
	}
	if _, ok := t.Outstanding[ev]; ok {
		return false
	}
	t.Outstanding[ev] = struct{}{}
	return true
}

// AddCurrent inserts user into current_epoch[ev] restricted to mask,
// promoting the bucket from single to multi form if needed, and reports
// whether ev is newly tracked for GC.
func (t *Table) AddCurrent(user *PhysicalUser, ev event.Event, mask fieldmask.FieldMask) (newlyTracked bool) {
	if ev == event.NoEvent {
		return false
	}
	bucket, ok := t.Current[ev]
	if !ok {
		bucket = newSingle(user, mask)
		t.Current[ev] = bucket
	} else if bucket.Add(user, mask) {
		user.AddRef()
	}
	return t.track(ev)
}

// AddPrevious is the symmetric insertion into previous_epoch.
func (t *Table) AddPrevious(user *PhysicalUser, ev event.Event, mask fieldmask.FieldMask) (newlyTracked bool) {
	if ev == event.NoEvent {
		return false
	}
	bucket, ok := t.Previous[ev]
	if !ok {
		bucket = newSingle(user, mask)
		t.Previous[ev] = bucket
	} else if bucket.Add(user, mask) {
		user.AddRef()
	}
	return t.track(ev)
}

// FilterLocal drops ev from both epoch tables and from Outstanding,
// releasing every reference it held. Safe to call with an event that was
// never recorded.
func (t *Table) FilterLocal(ev event.Event) {
	if bucket, ok := t.Current[ev]; ok {
		bucket.ForEach(func(u *PhysicalUser, _ fieldmask.FieldMask) { u.RemoveRef() })
		delete(t.Current, ev)
	}
	if bucket, ok := t.Previous[ev]; ok {
		bucket.ForEach(func(u *PhysicalUser, _ fieldmask.FieldMask) { u.RemoveRef() })
		delete(t.Previous, ev)
	}
	delete(t.Outstanding, ev)
}

// FilterCurrent subtracts dominated from every current_epoch entry's
// summary and per-user masks; any user whose mask becomes fully dominated
// moves into previous_epoch[event] (the reference transfers, it is not
// duplicated); any event whose summary becomes empty is erased from
// current_epoch.
func (t *Table) FilterCurrent(dominated fieldmask.FieldMask) {
	if dominated.IsEmpty() {
		return
	}
	for ev, bucket := range t.Current {
		overlap := fieldmask.Intersect(bucket.UserMask, dominated)
		if overlap.IsEmpty() {
			continue
		}

		var movedUsers []*PhysicalUser
		var movedMasks []fieldmask.FieldMask
		var fullyMovedUsers []*PhysicalUser

		bucket.ForEach(func(u *PhysicalUser, m fieldmask.FieldMask) {
			userOverlap := fieldmask.Intersect(m, dominated)
			if userOverlap.IsEmpty() {
				return
			}
			movedUsers = append(movedUsers, u)
			movedMasks = append(movedMasks, userOverlap)
		})

		for i, u := range movedUsers {
			_, removed := bucket.subtractMask(u, movedMasks[i])
			if removed {
				fullyMovedUsers = append(fullyMovedUsers, u)
			}
		}
		bucket.recomputeUserMask()

		prev, ok := t.Previous[ev]
		if !ok {
			prev = &EventUsers{single: true}
			t.Previous[ev] = prev
		}
		for i, u := range movedUsers {
			isFullyMoved := false
			for _, fu := range fullyMovedUsers {
				if fu == u {
					isFullyMoved = true
					break
				}
			}
			if prev.Add(u, movedMasks[i]) {
				// New to previous_epoch: if the reference left current
				// entirely, ownership transfers without a refcount
				// change; otherwise current still holds a reference too.
				if !isFullyMoved {
					u.AddRef()
				}
			} else if isFullyMoved {
				// Already present in previous and current's copy fully
				// moved: current's reference transferred into the
				// existing previous entry, so release the extra one.
				u.RemoveRef()
			}
		}

		if bucket.IsEmpty() {
			delete(t.Current, ev)
		}
	}
}

// FilterPrevious applies the same field-subtraction restricted to
// previous_epoch, using a distinct mask per event. A user whose mask
// becomes empty is deleted outright and its reference released.
func (t *Table) FilterPrevious(perEvent map[event.Event]fieldmask.FieldMask) {
	for ev, mask := range perEvent {
		bucket, ok := t.Previous[ev]
		if !ok || mask.IsEmpty() {
			continue
		}
		var toRemove []*PhysicalUser
		bucket.ForEach(func(u *PhysicalUser, m fieldmask.FieldMask) {
			if fieldmask.Intersect(m, mask).IsEmpty() {
				return
			}
			toRemove = append(toRemove, u)
		})
		for _, u := range toRemove {
			if _, removed := bucket.subtractMask(u, mask); removed {
				u.RemoveRef()
			}
		}
		bucket.recomputeUserMask()
		if bucket.IsEmpty() {
			delete(t.Previous, ev)
		}
	}
}
