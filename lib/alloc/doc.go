// Package alloc defines the physical allocation manager's interface as
// consumed by the dependency engine.
//
// Memory layout, field offsets, and the actual issuing of copies and
// reductions live in the allocation manager, which is out of scope
// (spec.md §1): "The engine does not perform the copies or reductions
// itself; it computes orderings and hands typed work items ... to the
// allocation manager." This package defines those work items and the
// narrow interface the composite/fill planners call into, plus a
// deterministic in-memory Manager good enough to exercise the planners in
// tests.
package alloc
