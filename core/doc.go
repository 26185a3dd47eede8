// Package core provides the foundational domain types and interfaces used by
// TutorFlow. It defines the core abstractions for:
//
//   - Turns (one student input and its full pipeline execution)
//   - PipelineState (the exclusively-owned per-turn execution record)
//   - TurnEvents (the ordered streaming contract delivered to callers)
//   - ConceptMastery (decayed per-student, per-concept confidence rows)
//   - Pluggable stores for mastery rows, the interaction log and the
//     external knowledge store
//
// The package intentionally keeps implementation concerns (persistence,
// pipeline orchestration, model adapters) out of scope, exposing small
// interfaces to enable custom backends and extensions.
package core
