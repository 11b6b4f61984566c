package epoch

import "github.com/vkolb/viewmesh/lib/fieldmask"

// EventUsers is the compact per-event bucket described in spec.md §3: one
// user plus its mask in the common case, a map from user to mask once a
// second distinct user arrives for the same event. UserMask is always the
// union of every contained user's mask (invariant P1).
//
// Both forms are part of this type's public contract via IsSingle,
// Single and Multi. The wire format (package wire) mirrors the split on
// its own: an epoch entry with one user uses the compact encoding, and
// the entries are built by walking ForEach.
type EventUsers struct {
	single     bool
	singleUser *PhysicalUser
	singleMask fieldmask.FieldMask

	multi map[*PhysicalUser]fieldmask.FieldMask

	UserMask fieldmask.FieldMask
}

// newSingle creates an EventUsers holding exactly one user.
func newSingle(user *PhysicalUser, mask fieldmask.FieldMask) *EventUsers {
	return &EventUsers{
		single:     true,
		singleUser: user,
		singleMask: mask,
		UserMask:   mask.Clone(),
	}
}

// IsSingle reports whether this bucket is in the single-user form.
func (e *EventUsers) IsSingle() bool {
	return e.single
}

// Single returns the lone user and its mask. Only valid when IsSingle.
func (e *EventUsers) Single() (*PhysicalUser, fieldmask.FieldMask) {
	return e.singleUser, e.singleMask
}

// Multi returns the map form. Only valid when !IsSingle.
func (e *EventUsers) Multi() map[*PhysicalUser]fieldmask.FieldMask {
	return e.multi
}

// Len reports how many distinct users this bucket holds.
func (e *EventUsers) Len() int {
	if e.single {
		if e.singleUser == nil {
			return 0
		}
		return 1
	}
	return len(e.multi)
}

// promote converts a single-form bucket into a map-form bucket, called the
// moment a second distinct user needs to be recorded (spec.md §3: "The
// single-user form must be promoted to the map form on second
// insertion").
func (e *EventUsers) promote() {
	e.multi = make(map[*PhysicalUser]fieldmask.FieldMask, 2)
	if e.singleUser != nil {
		e.multi[e.singleUser] = e.singleMask
	}
	e.single = false
	e.singleUser = nil
	e.singleMask = fieldmask.FieldMask{}
}

// collapse converts a map-form bucket with exactly one entry back into
// single form ("collapsed back to the single-user form whenever the map
// shrinks to one entry").
func (e *EventUsers) collapse() {
	if len(e.multi) != 1 {
		return
	}
	for u, m := range e.multi {
		e.single = true
		e.singleUser = u
		e.singleMask = m
	}
	e.multi = nil
}

// Add inserts user with mask into the bucket, merging with an existing
// entry for the same user if present, and promoting single->multi on a
// second distinct user. Returns true if user is new to this bucket (the
// caller must AddRef in that case unless it is transferring ownership of
// an existing reference).
func (e *EventUsers) Add(user *PhysicalUser, mask fieldmask.FieldMask) (isNew bool) {
	e.UserMask = fieldmask.Union(e.UserMask, mask)

	if e.single {
		if e.singleUser == nil {
			e.singleUser = user
			e.singleMask = mask.Clone()
			e.single = true
			return true
		}
		if e.singleUser == user {
			e.singleMask = fieldmask.Union(e.singleMask, mask)
			return false
		}
		e.promote()
	}

	if existing, ok := e.multi[user]; ok {
		e.multi[user] = fieldmask.Union(existing, mask)
		return false
	}
	e.multi[user] = mask.Clone()
	return true
}

// ForEach calls fn once per (user, mask) contained in the bucket.
func (e *EventUsers) ForEach(fn func(user *PhysicalUser, mask fieldmask.FieldMask)) {
	if e.single {
		if e.singleUser != nil {
			fn(e.singleUser, e.singleMask)
		}
		return
	}
	for u, m := range e.multi {
		fn(u, m)
	}
}

// removeUser deletes user from the bucket entirely (its mask becomes
// empty). Returns true if the bucket is now empty of users.
func (e *EventUsers) removeUser(user *PhysicalUser) (nowEmpty bool) {
	if e.single {
		if e.singleUser == user {
			e.singleUser = nil
			e.singleMask = fieldmask.FieldMask{}
		}
		return e.singleUser == nil
	}
	delete(e.multi, user)
	if len(e.multi) == 1 {
		e.collapse()
	}
	return len(e.multi) == 0
}

// subtractMask subtracts sub from user's recorded mask, deleting the user
// outright if its mask becomes empty. Returns the user's remaining mask
// (empty if it was removed) and whether it was removed.
func (e *EventUsers) subtractMask(user *PhysicalUser, sub fieldmask.FieldMask) (remaining fieldmask.FieldMask, removed bool) {
	if e.single {
		if e.singleUser != user {
			return fieldmask.FieldMask{}, false
		}
		e.singleMask = fieldmask.Subtract(e.singleMask, sub)
		if e.singleMask.IsEmpty() {
			e.singleUser = nil
			return fieldmask.FieldMask{}, true
		}
		return e.singleMask, false
	}
	m, ok := e.multi[user]
	if !ok {
		return fieldmask.FieldMask{}, false
	}
	m = fieldmask.Subtract(m, sub)
	if m.IsEmpty() {
		delete(e.multi, user)
		if len(e.multi) == 1 {
			e.collapse()
		}
		return fieldmask.FieldMask{}, true
	}
	e.multi[user] = m
	return m, false
}

// recomputeUserMask rebuilds UserMask as the union of every contained
// user's mask, restoring invariant P1 after a batch of subtractMask
// calls.
func (e *EventUsers) recomputeUserMask() {
	var union fieldmask.FieldMask
	e.ForEach(func(_ *PhysicalUser, m fieldmask.FieldMask) {
		union = fieldmask.Union(union, m)
	})
	e.UserMask = union
}

// IsEmpty reports whether the bucket holds no users at all.
func (e *EventUsers) IsEmpty() bool {
	return e.Len() == 0
}
