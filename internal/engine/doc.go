// Package engine drives the diligence pipeline: it owns the ordered step
// list, the current index, run state, the execution lock, the auto/manual
// mode flag, and per-step retry contexts, and advances the pipeline through
// a sense → decide → act cycle on a timer and on explicit operator actions.
//
// # Execution model
//
// A single cooperative scheduler drives the pipeline. At most one step
// execution is ever in flight, enforced by an atomic execution lock acquired
// at cycle entry and released unconditionally on every exit path. Pausing is
// cooperative: it cancels the ticker task so no further cycle starts, but an
// in-flight analysis call completes and its result is still applied.
//
// # Progression
//
// In auto mode a completed step advances the index on the next cycle. In
// manual mode every transition parks the pipeline until the operator
// approves the next step. A processor may also halt the pipeline despite
// succeeding (a gate rejection); the index does not advance and the operator
// decides whether to rerun, approve, or abandon.
//
// The engine never retries on its own. Rerun is the only operation that
// increments a step's retry count.
package engine
