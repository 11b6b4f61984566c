// Package views implements the four logical view variants — materialized,
// reduction, composite, fill — as a tagged sum dispatched through the
// LogicalView interface and each view's own id.Kind (spec.md §3, §4.4,
// §4.7, §4.8, §4.9). Each concrete view type owns one sync.RWMutex and a
// lib/epoch.Table (materialized, reduction) or its own snapshot
// bookkeeping (composite, fill), and drives lib/analyzer under that lock
// following the read-then-exclusive-retake discipline spec.md §5
// requires: no view ever suspends (on an event, or a network round trip)
// while holding its own lock.
package views
