// Package epoch implements the per-view user epoch table: the primitive
// data structure recording which prior users touched which fields, keyed
// by the event that must fire before that use is complete (spec.md §3,
// §4.1).
//
// A Table holds two layers — current and previous — per the spec's
// "current epoch holds non-dominated users, previous holds users
// superseded on some subset of fields but not yet collected" (GLOSSARY).
// All Table methods assume the caller already holds the owning view's
// lock; Table itself does no locking.
package epoch
