// Package analyzer computes view preconditions against a lib/epoch.Table:
// it is the direct translation of MaterializedView::find_current_preconditions
// / find_previous_preconditions (task-path) and find_current_copy_preconditions
// / find_previous_copy_preconditions (copy-path) from the original engine
// (spec.md §4.2).
//
// Scan performs the two-pass read-only analysis — current epoch first,
// then previous epoch restricted to whatever the current pass left
// non-dominated — and returns a Plan describing what the caller must do
// next: events to wait on, and table mutations that require the view's
// lock to be held in exclusive mode. Scan and the Table it reads never
// take a lock themselves; the caller (lib/views) holds the view's RWMutex
// for the duration of Scan, releases it, and only re-acquires it
// exclusively to call Apply — matching the "analyze under read lock,
// mutate under write lock" discipline in spec.md §5.
//
// Hierarchy recursion into a parent view (spec.md §4.3) is not performed
// here: each view runs its own Scan/Apply pair and the view layer merges
// the resulting event sets across the chain.
package analyzer
