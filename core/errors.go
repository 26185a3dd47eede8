package core

import "errors"

// Error taxonomy for the pipeline. Stages wrap their underlying causes with
// one of these sentinels so the orchestrator can classify failures with
// errors.Is without inspecting provider-specific error types.
var (
	// ErrRetrieval marks a knowledge-store failure. Retriable once, then the
	// turn fails.
	ErrRetrieval = errors.New("retrieval failure")

	// ErrComposition marks a model error or timeout during generation.
	// Retriable once, then the turn fails.
	ErrComposition = errors.New("composition failure")

	// ErrEvaluation marks an evaluator failure. Never fatal: the turn
	// proceeds with a conservative zero-confidence evaluation.
	ErrEvaluation = errors.New("evaluation failure")

	// ErrPersistence marks a mastery/log write failure. Logged, never
	// retracted against an already-delivered response.
	ErrPersistence = errors.New("persistence failure")

	// ErrMasteryNotFound is returned when no mastery row exists for a
	// (student, concept) pair.
	ErrMasteryNotFound = errors.New("mastery row not found")

	// ErrDuplicateTurn is returned when a terminal turn is logged twice;
	// callers treat it as an idempotent no-op.
	ErrDuplicateTurn = errors.New("turn already logged")
)

// GenericRetryMessage is the only failure text shown to students.
const GenericRetryMessage = "Something went wrong on our side. Please try that question again."
