package schemas

import "fmt"

// -- Error Taxonomy --
//
// Each kind wraps an optional cause and is matchable with errors.As. The
// split mirrors the subsystem boundaries: capture/grounding, completeness
// validation, availability scheduling, orchestration invariants, and input
// synthesis.

// DetectionError means a capture or a whole grounding attempt failed.
// Fatal to the attempt, not to the process.
type DetectionError struct {
	Op  string
	Err error
}

func (e *DetectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("detection: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("detection: %s", e.Op)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// ValidationError means grounding finished but required elements are missing.
// Partial carries whatever was found so the caller can retry or surface it.
type ValidationError struct {
	Missing []string
	Partial PositionSet
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: missing required elements %v", e.Missing)
}

// SchedulingError means the availability authority rejected the platform or
// a retry budget ran out.
type SchedulingError struct {
	Platform string
	Reason   string
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling: platform %q unavailable: %s", e.Platform, e.Reason)
}

// OrchestrationError means an orchestration invariant was violated: no
// grounded positions, illegal state transition, unknown task, etc.
type OrchestrationError struct {
	Op  string
	Err error
}

func (e *OrchestrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("orchestration: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("orchestration: %s", e.Op)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

// InteractionError means the input-synthesis layer failed mid-sequence.
type InteractionError struct {
	Step string
	Err  error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("interaction: %s: %v", e.Step, e.Err)
}

func (e *InteractionError) Unwrap() error { return e.Err }
