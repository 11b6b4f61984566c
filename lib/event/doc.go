// Package event implements the engine's asynchronous completion handles.
//
// An Event is an opaque handle to something that will eventually finish —
// a copy, a reduction, a task, or the merge of several other events. Every
// suspension point in the engine (spec.md §5) is a wait on an Event; no
// view lock is ever held while waiting on one.
package event
