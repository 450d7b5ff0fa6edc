// Package pipeline defines the data model shared by the diligence engine:
// step descriptors, statuses, execution contexts, execution results, and the
// monotonically-growing analysis accumulator.
//
// # Step Model
//
// A pipeline run walks a fixed, ordered list of six steps:
//
//	judgeChallenge → queryHistory → queryKnowledgeBase → buildSimulation →
//	answerChallenge → generateReport
//
// Each step moves through pending → in-progress → {completed, error}. The
// buildSimulation step carries ordered sub-steps whose parent status is
// derived: completed only when every child completed, in-progress while any
// child has produced a result.
//
// # Accumulator
//
// Step results accumulate into an Accumulator keyed by result name
// (judgeChallengeResult, queryHistoryResult, ...). Merges are shallow
// overlays: a step replaces only its own keys and never removes keys written
// by earlier steps.
package pipeline
