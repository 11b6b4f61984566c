package views

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/vkolb/viewmesh/lib/alloc"
	"github.com/vkolb/viewmesh/lib/analyzer"
	"github.com/vkolb/viewmesh/lib/epoch"
	"github.com/vkolb/viewmesh/lib/event"
	"github.com/vkolb/viewmesh/lib/fieldmask"
	"github.com/vkolb/viewmesh/lib/gc"
	"github.com/vkolb/viewmesh/lib/id"
	"github.com/vkolb/viewmesh/lib/region"
	"github.com/vkolb/viewmesh/lib/registry"
	"github.com/vkolb/viewmesh/lib/versions"
	"github.com/vkolb/viewmesh/wire"
)

// ReservationHandle is an acquired atomic-coherence lease for one field
// (spec.md §4.6). Concrete handles are minted by lib/reservation; views
// only needs to hold one and release it when done.
type ReservationHandle interface {
	Field() int
	Release()
}

// ReservationSource is the root materialized view's connection to the
// leasing subsystem, consumed only through this interface so lib/views
// carries no import-time dependency on lib/reservation.
type ReservationSource interface {
	Lease(field int, op uint32, exclusive bool) (ReservationHandle, error)
}

func colorHasher(c region.ColorPoint, _ uint64) uint64 {
	if !c.IsValid() {
		return 0
	}
	return c.Value()
}

// MaterializedView is a physical-allocation-backed view: one user epoch
// table analyzed with field-granularity WAR/WAW/RAW rules, plus the
// subview hierarchy, recycling, and atomic-reservation bookkeeping
// spec.md §3/§4.4/§4.6/§4.10 describe.
type MaterializedView struct {
	did   id.DID
	tree  region.Tree
	alloc alloc.Manager
	gc    *gc.Scheduler
	reg   *registry.Registry

	mu    sync.RWMutex
	table *epoch.Table

	parent *MaterializedView
	color  region.ColorPoint

	subviews *xsync.MapOf[region.ColorPoint, *MaterializedView]

	// initial_user_events (spec.md §3 supplement): never evicted by
	// filter_local, never a dependency source except via
	// FindInitialPreconditions.
	initialMu    sync.Mutex
	initialUsers map[event.Event]struct{}

	// recycle_events: merged to produce RecycleEvent.
	recycleMu sync.Mutex
	recycle   map[event.Event]struct{}

	reservationsMu     sync.Mutex
	atomicReservations map[int]ReservationHandle
	reservations       ReservationSource

	subviewCallsMu sync.Mutex
	subviewCalls   map[region.ColorPoint]*subviewCall
}

// subviewCall dedups concurrent non-owner-miss requests for the same
// color: the first caller for a color performs the remote round trip,
// every concurrent caller for that same color waits on done instead of
// also calling remote (spec.md §8 scenario 6: "a single request is
// sent... a concurrent duplicate request observes the cached entry
// without a second round-trip").
type subviewCall struct {
	done   chan struct{}
	result *MaterializedView
	err    error
}

// NewMaterializedView mints a fresh DID and constructs a root or child
// materialized view. When parent is non-nil the child records a
// NestedResource reference on the parent's registry entry, matching
// "recording parent-resource reference from child to parent" (spec.md
// §4.4 owner-miss path).
func NewMaterializedView(alloc_ *id.Allocator, tree region.Tree, allocMgr alloc.Manager, sched *gc.Scheduler, reg *registry.Registry, parent *MaterializedView, color region.ColorPoint) (*MaterializedView, error) {
	did, err := alloc_.New(id.KindMaterialized)
	if err != nil {
		return nil, err
	}
	v := &MaterializedView{
		did:                did,
		tree:               tree,
		alloc:              allocMgr,
		gc:                 sched,
		reg:                reg,
		table:              epoch.NewTable(),
		parent:             parent,
		color:              color,
		subviews:           xsync.NewMapOfWithHasher[region.ColorPoint, *MaterializedView](colorHasher),
		initialUsers:       make(map[event.Event]struct{}),
		recycle:            make(map[event.Event]struct{}),
		atomicReservations: make(map[int]ReservationHandle),
		subviewCalls:       make(map[region.ColorPoint]*subviewCall),
	}
	reg.Register(v, registry.Resource)
	if parent != nil {
		if parentEntry, ok := reg.Lookup(parent.DID()); ok {
			parentEntry.AddReference(registry.NestedResource)
		}
	}
	return v, nil
}

// NewMaterializedViewReplica installs a non-owning replica for a DID
// announced by its owning node (spec.md §6
// MaterializedViewAnnounce/§4.4), rather than minting a fresh one. The
// caller is responsible for recording the owning node via
// registry.Registry.RecordRemoteOwner — this constructor only builds and
// registers the local object.
func NewMaterializedViewReplica(did id.DID, tree region.Tree, allocMgr alloc.Manager, sched *gc.Scheduler, reg *registry.Registry, parent *MaterializedView, color region.ColorPoint) *MaterializedView {
	v := &MaterializedView{
		did:                did,
		tree:               tree,
		alloc:              allocMgr,
		gc:                 sched,
		reg:                reg,
		table:              epoch.NewTable(),
		parent:             parent,
		color:              color,
		subviews:           xsync.NewMapOfWithHasher[region.ColorPoint, *MaterializedView](colorHasher),
		initialUsers:       make(map[event.Event]struct{}),
		recycle:            make(map[event.Event]struct{}),
		atomicReservations: make(map[int]ReservationHandle),
		subviewCalls:       make(map[region.ColorPoint]*subviewCall),
	}
	reg.Register(v, registry.Resource)
	return v
}

// DID implements registry.Object.
func (v *MaterializedView) DID() id.DID { return v.did }

// Kind implements LogicalView.
func (v *MaterializedView) Kind() id.Kind { return id.KindMaterialized }

// SetReservationSource wires this root view to the leasing subsystem.
// Only meaningful on a root view (parent == nil); non-root views forward
// FindAtomicReservations up the hierarchy.
func (v *MaterializedView) SetReservationSource(src ReservationSource) {
	v.reservationsMu.Lock()
	v.reservations = src
	v.reservationsMu.Unlock()
}

// recordInitial marks ev as an initial user event: this caller had no
// prior writer, so term_event's user is the first one the allocation
// manager ever handed this view (spec.md §3 supplement, "initial_user_
// events").
func (v *MaterializedView) recordInitial(ev event.Event) {
	if ev == event.NoEvent {
		return
	}
	v.initialMu.Lock()
	v.initialUsers[ev] = struct{}{}
	v.initialMu.Unlock()
}

// FindInitialPreconditions returns every recorded initial-user event, for
// composing a full barrier before deletion/recycling (spec.md §3
// supplement).
func (v *MaterializedView) FindInitialPreconditions() event.Set {
	v.initialMu.Lock()
	defer v.initialMu.Unlock()
	out := event.NewSet()
	for ev := range v.initialUsers {
		out.Add(ev)
	}
	return out
}

// recordRecycle adds ev to the set of events that must all fire before
// this view's backing allocation may be reused for a different logical
// region.
func (v *MaterializedView) recordRecycle(ev event.Event) {
	if ev == event.NoEvent {
		return
	}
	v.recycleMu.Lock()
	v.recycle[ev] = struct{}{}
	v.recycleMu.Unlock()
}

// RecycleEvent merges every recorded recycle event into one.
func (v *MaterializedView) RecycleEvent() event.Event {
	v.recycleMu.Lock()
	evs := make([]event.Event, 0, len(v.recycle))
	for ev := range v.recycle {
		evs = append(evs, ev)
	}
	v.recycleMu.Unlock()
	return event.Merge(evs...)
}

// AddUser runs the task-path analyzer against this view, then installs
// termEvent's PhysicalUser into current_epoch (spec.md §4.2 final step).
// When no preconditions were found at all, termEvent is also recorded as
// an initial user event. launchGC reports whether the caller should ask
// lib/gc to schedule a defer on termEvent.
func (v *MaterializedView) AddUser(usage region.Usage, termEvent event.Event, mask fieldmask.FieldMask, vers versions.FieldVersions, childColor region.ColorPoint) (preconditions event.Set, launchGC bool) {
	v.mu.RLock()
	preconditions, plan := analyzer.FindTaskPreconditions(v.table, v.tree, usage, childColor, mask)
	v.mu.RUnlock()

	if plan.NeedsApply() {
		v.mu.Lock()
		analyzer.Apply(v.table, plan)
		v.mu.Unlock()
	}

	if termEvent == event.NoEvent {
		return preconditions, false
	}

	user := epoch.NewPhysicalUser(usage, childColor, vers)
	v.mu.Lock()
	launchGC = v.table.AddCurrent(user, termEvent, mask)
	v.mu.Unlock()

	if len(preconditions) == 0 {
		v.recordInitial(termEvent)
	}
	v.recordRecycle(termEvent)

	if launchGC && v.gc != nil {
		v.gc.Defer(termEvent, func() {
			v.mu.Lock()
			v.table.FilterLocal(termEvent)
			v.mu.Unlock()
		})
	}
	return preconditions, launchGC
}

// FindCopyPreconditions is the entry point a copy operation calls
// directly against this view (spec.md §4.2/§4.3): it analyzes this view
// at the root color and, unless stopAtVersionRoot is set (this view is
// the version-info upper bound), recurses into the parent hierarchy.
// Returns a mask-keyed map rather than a plain event set (spec.md §4.2:
// "the mask-keyed map (for copies)"), accumulating the overlap mask that
// made each event a precondition across every level it was observed at.
func (v *MaterializedView) FindCopyPreconditions(redop region.RedopID, reading bool, mask fieldmask.FieldMask, vers versions.FieldVersions, stopAtVersionRoot bool) map[event.Event]fieldmask.FieldMask {
	result := make(map[event.Event]fieldmask.FieldMask)
	if v.parent != nil && !stopAtVersionRoot {
		mergeCopyPreconditions(result, v.parent.findCopyPreconditionsAbove(redop, reading, mask, v.color, vers))
	}
	mergeCopyPreconditions(result, v.findLocalCopyPreconditions(redop, reading, mask, region.NoColor, vers))
	return result
}

// findCopyPreconditionsAbove is the hierarchy-recursion hop (spec.md
// §4.3): a child calls into its parent supplying its own color so the
// parent can skip users already known local to that child or to a
// sibling provably disjoint from it, then continues recursing upward.
func (v *MaterializedView) findCopyPreconditionsAbove(redop region.RedopID, reading bool, mask fieldmask.FieldMask, childColor region.ColorPoint, vers versions.FieldVersions) map[event.Event]fieldmask.FieldMask {
	result := make(map[event.Event]fieldmask.FieldMask)
	if v.parent != nil {
		mergeCopyPreconditions(result, v.parent.findCopyPreconditionsAbove(redop, reading, mask, v.color, vers))
	}
	mergeCopyPreconditions(result, v.findLocalCopyPreconditions(redop, reading, mask, childColor, vers))
	return result
}

func (v *MaterializedView) findLocalCopyPreconditions(redop region.RedopID, reading bool, mask fieldmask.FieldMask, childColor region.ColorPoint, vers versions.FieldVersions) map[event.Event]fieldmask.FieldMask {
	v.mu.RLock()
	events, plan := analyzer.FindCopyPreconditions(v.table, v.tree, redop, reading, mask, childColor, vers)
	v.mu.RUnlock()

	if plan.NeedsApply() {
		v.mu.Lock()
		analyzer.Apply(v.table, plan)
		v.mu.Unlock()
	}
	return events
}

// mergeCopyPreconditions folds src into dst, unioning the overlap mask
// for any event observed at more than one hierarchy level.
func mergeCopyPreconditions(dst, src map[event.Event]fieldmask.FieldMask) {
	for ev, m := range src {
		dst[ev] = fieldmask.Union(dst[ev], m)
	}
}

// copyUsage builds the RegionUsage a copy-issued read or write installs
// into current_epoch (spec.md §4.2 copy-path final step): a positive
// redop marks a reduction copy, reading a plain read, otherwise the copy
// is a write-discard.
func copyUsage(redop region.RedopID, reading bool) region.Usage {
	switch {
	case redop > 0:
		return region.Usage{Privilege: region.Reduce, Coherence: region.Exclusive, Redop: redop}
	case reading:
		return region.Usage{Privilege: region.ReadOnly, Coherence: region.Exclusive}
	default:
		return region.Usage{Privilege: region.WriteDiscard, Coherence: region.Exclusive}
	}
}

// AddCopyUser installs copyTerm's PhysicalUser into current_epoch once a
// copy has completed (spec.md §4.2 copy-path final step; mirrors
// legion_views.cc's MaterializedView::add_copy_user/add_copy_user_above/
// add_local_copy_user). Unlike FindCopyPreconditions it never recomputes
// preconditions — it only records the copy's own read or write so a later
// true dependant observes its completion event, which is what closes the
// gap a copy-issued user would otherwise leave against P3.
func (v *MaterializedView) AddCopyUser(redop region.RedopID, reading bool, copyTerm event.Event, mask fieldmask.FieldMask, vers versions.FieldVersions, stopAtVersionRoot bool) (launchGC bool) {
	if v.parent != nil && !stopAtVersionRoot {
		launchGC = v.parent.addCopyUserAbove(redop, reading, copyTerm, mask, v.color, vers) || launchGC
	}
	return v.addLocalCopyUser(redop, reading, copyTerm, mask, region.NoColor, vers) || launchGC
}

// addCopyUserAbove is the hierarchy-recursion hop (mirrors
// findCopyPreconditionsAbove): a child installs its own color into the
// parent's copy of this user before the parent recurses further upward.
func (v *MaterializedView) addCopyUserAbove(redop region.RedopID, reading bool, copyTerm event.Event, mask fieldmask.FieldMask, childColor region.ColorPoint, vers versions.FieldVersions) (launchGC bool) {
	if v.parent != nil {
		launchGC = v.parent.addCopyUserAbove(redop, reading, copyTerm, mask, v.color, vers) || launchGC
	}
	return v.addLocalCopyUser(redop, reading, copyTerm, mask, childColor, vers) || launchGC
}

func (v *MaterializedView) addLocalCopyUser(redop region.RedopID, reading bool, copyTerm event.Event, mask fieldmask.FieldMask, childColor region.ColorPoint, vers versions.FieldVersions) bool {
	if copyTerm == event.NoEvent {
		return false
	}

	user := epoch.NewPhysicalUser(copyUsage(redop, reading), childColor, vers)
	v.mu.Lock()
	launchGC := v.table.AddCurrent(user, copyTerm, mask)
	v.mu.Unlock()

	v.recordRecycle(copyTerm)

	if launchGC && v.gc != nil {
		v.gc.Defer(copyTerm, func() {
			v.mu.Lock()
			v.table.FilterLocal(copyTerm)
			v.mu.Unlock()
		})
	}
	return launchGC
}

// GetMaterializedSubview implements the fast/owner-miss/non-owner-miss
// paths of spec.md §4.4. remote is the out-of-scope collaborator used
// only on the non-owner-miss path: when this node does not own color's
// child DID, remote resolves it (typically a subview_did_request round
// trip to the owner).
func (v *MaterializedView) GetMaterializedSubview(color region.ColorPoint, alloc_ *id.Allocator, remote func(parent id.DID, color region.ColorPoint) (*MaterializedView, error)) (*MaterializedView, error) {
	if child, ok := v.subviews.Load(color); ok {
		return child, nil
	}

	if v.reg.IsOwner(v.did) {
		child, err := NewMaterializedView(alloc_, v.tree, v.alloc, v.gc, v.reg, v, color)
		if err != nil {
			return nil, err
		}
		actual, loaded := v.subviews.LoadOrStore(color, child)
		if loaded {
			// A racing call already installed a child: free our
			// speculative allocation and discard the loser.
			alloc_.Free(child.DID())
			return actual, nil
		}
		return child, nil
	}

	if remote == nil {
		return nil, registry.NewError(registry.RetCNoReservationSource, "non-owner subview miss with no remote resolver configured")
	}

	// Single-flight the remote round trip per color: a second caller
	// that arrives while the first is still waiting on remote joins the
	// same call instead of issuing its own request.
	v.subviewCallsMu.Lock()
	if call, ok := v.subviewCalls[color]; ok {
		v.subviewCallsMu.Unlock()
		<-call.done
		return call.result, call.err
	}
	call := &subviewCall{done: make(chan struct{})}
	v.subviewCalls[color] = call
	v.subviewCallsMu.Unlock()

	child, err := remote(v.did, color)
	if err == nil {
		actual, loaded := v.subviews.LoadOrStore(color, child)
		if loaded {
			child = actual
		}
	}
	call.result, call.err = child, err
	close(call.done)

	v.subviewCallsMu.Lock()
	delete(v.subviewCalls, color)
	v.subviewCallsMu.Unlock()

	return call.result, call.err
}

// FindAtomicReservations collects atomic-coherence leases for every
// field in mask, forwarding to the root view when this is not the root
// (spec.md §4.6).
func (v *MaterializedView) FindAtomicReservations(mask fieldmask.FieldMask, op uint32, exclusive bool) (map[int]ReservationHandle, error) {
	if v.parent != nil {
		return v.parent.FindAtomicReservations(mask, op, exclusive)
	}

	v.reservationsMu.Lock()
	defer v.reservationsMu.Unlock()

	result := make(map[int]ReservationHandle)
	var missing []int
	for _, f := range mask.Fields() {
		if h, ok := v.atomicReservations[f]; ok {
			result[f] = h
			continue
		}
		missing = append(missing, f)
	}
	if len(missing) == 0 {
		return result, nil
	}
	if v.reservations == nil {
		return nil, registry.NewError(registry.RetCNoReservationSource, "no reservation source configured on root view")
	}
	for _, f := range missing {
		h, err := v.reservations.Lease(f, op, exclusive)
		if err != nil {
			return nil, err
		}
		v.atomicReservations[f] = h
		result[f] = h
	}
	return result, nil
}

// SendViewUpdates packs a deduplicated payload of this view's epoch
// table restricted to updateMask (spec.md §4.5): walk current_epoch then
// previous_epoch, recording each overlapping event's users as
// (dedup-table index, mask) pairs: one pair for a single-user event,
// several when more users share it. Every user is entered once into the
// shared dedup table built during the same walk. region/handle identity is this engine's out-of-scope allocation
// collaborator; IsRegion/Handle are carried as zero values until a real
// allocation manager supplies them.
func (v *MaterializedView) SendViewUpdates(updateMask fieldmask.FieldMask) *wire.MaterializedUpdate {
	v.mu.RLock()
	defer v.mu.RUnlock()

	dedup := make(map[*epoch.PhysicalUser]int32)
	var table []wire.UserEntry

	indexOf := func(u *epoch.PhysicalUser) int32 {
		if idx, ok := dedup[u]; ok {
			return idx
		}
		idx := int32(len(table))
		dedup[u] = idx

		var vers map[int]uint64
		if u.Versions != nil {
			vers = make(map[int]uint64)
			for _, f := range updateMask.Fields() {
				if id, ok := u.Versions.Version(f); ok {
					vers[f] = id
				}
			}
		}
		table = append(table, wire.UserEntry{
			Privilege: int32(u.Usage.Privilege),
			Coherence: int32(u.Usage.Coherence),
			Redop:     uint32(u.Usage.Redop),
			Child:     u.Child,
			Versions:  vers,
		})
		return idx
	}

	packBlock := func(epochMap map[event.Event]*epoch.EventUsers) []wire.EpochEntry {
		var block []wire.EpochEntry
		for ev, bucket := range epochMap {
			if fieldmask.Intersect(bucket.UserMask, updateMask).IsEmpty() {
				continue
			}
			var refs []wire.EpochUserRef
			bucket.ForEach(func(u *epoch.PhysicalUser, m fieldmask.FieldMask) {
				overlap := fieldmask.Intersect(m, updateMask)
				if overlap.IsEmpty() {
					return
				}
				refs = append(refs, wire.EpochUserRef{UserIndex: indexOf(u), Mask: overlap})
			})
			if len(refs) == 0 {
				continue
			}
			block = append(block, wire.EpochEntry{Event: ev, Users: refs})
		}
		return block
	}

	return &wire.MaterializedUpdate{
		DID:           v.did,
		UserTable:     table,
		CurrentBlock:  packBlock(v.table.Current),
		PreviousBlock: packBlock(v.table.Previous),
	}
}

// ApplyRemoteUpdate installs a received MaterializedUpdate using the same
// AddCurrent/AddPrevious primitives a local caller would use (spec.md
// §4.5): the dedup table is resolved back into PhysicalUser objects once,
// then each block entry is installed under the view's own lock. Events
// newly tracked for GC are deferred the same way AddUser defers them.
func (v *MaterializedView) ApplyRemoteUpdate(upd *wire.MaterializedUpdate) {
	users := make([]*epoch.PhysicalUser, len(upd.UserTable))
	for i, ue := range upd.UserTable {
		users[i] = epoch.NewPhysicalUser(
			region.Usage{
				Privilege: region.Privilege(ue.Privilege),
				Coherence: region.Coherence(ue.Coherence),
				Redop:     region.RedopID(ue.Redop),
			},
			ue.Child,
			ue.VersionsMap(),
		)
	}

	var toDefer []event.Event

	install := func(block []wire.EpochEntry, add func(*epoch.PhysicalUser, event.Event, fieldmask.FieldMask) bool) {
		for _, entry := range block {
			for _, ref := range entry.Users {
				if ref.UserIndex < 0 || int(ref.UserIndex) >= len(users) {
					continue
				}
				if add(users[ref.UserIndex], entry.Event, ref.Mask) {
					toDefer = append(toDefer, entry.Event)
				}
			}
		}
	}

	v.mu.Lock()
	install(upd.CurrentBlock, v.table.AddCurrent)
	install(upd.PreviousBlock, v.table.AddPrevious)
	v.mu.Unlock()

	if v.gc == nil {
		return
	}
	for _, ev := range toDefer {
		ev := ev
		v.gc.Defer(ev, func() {
			v.mu.Lock()
			v.table.FilterLocal(ev)
			v.mu.Unlock()
		})
	}
}
