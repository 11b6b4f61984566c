// Package gc schedules deferred-collection tasks: work that must run
// once a specific event fires, with no bound on when that will happen
// and no way to cancel the wait (spec.md §4.1 "outstanding" set, §5 "no
// cancellation"). lib/epoch.Table.AddCurrent/AddPrevious report when an
// event is newly tracked; the owning view hands that event and a
// collection task (release the table's hold on it, propagate reference
// release through lib/registry) to a Scheduler.
//
// Scheduler's queueing is adapted from lib/db/util.LockFreeMPSC: one
// short-lived goroutine per deferred event blocks on event.Event.Wait(),
// then pushes the completed task onto a single MPSC queue that one
// background goroutine drains and executes serially — bounding how many
// collection tasks run concurrently against the same view without
// requiring the view's own lock to be held across the wait. Outstanding
// defers are also tracked in a lib/db/util.MapHeap keyed by registration
// sequence, giving O(1) visibility into how many are pending and the
// registration sequence of the oldest one (Scheduler.Outstanding). The
// pending count is reported as the viewmesh_gc_outstanding gauge on the
// Scheduler's own VictoriaMetrics/metrics set.
package gc
