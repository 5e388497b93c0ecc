// Package pipeline implements the Extraction Pipeline (C6): a per-Document
// state machine driven by one worker at a time, from a queued attachment
// to a completed, fully-populated graph.Document. Orchestration shape
// (linear stage sequence, per-stage duration/error logging, continue past
// non-fatal stage failures) is grounded on
// pkg/enrichment/pipeline/pipeline.go's Pipeline.Process, generalized from
// that pipeline's fixed classification/enrichment/AI stage list to this
// spec's queued->fetching->extracting->classifying->populating->
// resolving->completed state machine.
package pipeline

// State is one point in a Document's extraction lifecycle (spec.md §4.6).
type State string

const (
	StateQueued      State = "queued"
	StateFetching    State = "fetching"
	StateExtracting  State = "extracting"
	StateClassifying State = "classifying"
	StatePopulating  State = "populating"
	StateResolving   State = "resolving"
	StateCompleted   State = "completed"
	StateSkipped     State = "skipped"
	StateFailed      State = "failed"
)
