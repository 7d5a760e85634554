// Package dag implements the DAG Builder component (spec §4.4): given a
// job's operation list, it produces a Plan describing how the broker should
// dispatch work. Plan is a tagged union (Chain, Chord) rather than a class
// hierarchy, matching the sum-type-over-subclassing idiom the rest of this
// repo follows.
package dag

import "pixtools/internal/jobstore"

// Step is a single task to enqueue: an operation tag and its resolved
// params. The queue is not stored here; the broker derives it from the tag
// (broker.QueueFor).
type Step struct {
	Operation jobstore.OperationTag
	Params    jobstore.OperationParams
}

// Kind discriminates the two Plan shapes.
type Kind int

const (
	KindChain Kind = iota
	KindChord
)

// Plan is the tagged union returned by Build. Exactly one of the two shapes
// is populated, selected by Kind.
type Plan struct {
	Kind  Kind
	JobID string

	// Chain: exactly one step, finalize runs directly after it.
	Chain Step

	// Chord: two or more sibling steps, joined by finalize once all
	// terminate (asynq Group + Aggregator).
	Chord []Step
}
