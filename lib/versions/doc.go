// Package versions defines the field-version identifiers the copy-path
// analyzer consults for its write-after-read skip (spec.md §4.2,
// "Same-version WAR skip"). The version tracker that assigns these ids is
// an out-of-scope external collaborator; this package only carries the
// small read-only view of it the analyzer needs.
package versions
