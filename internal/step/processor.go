// Package step defines the step contract every pipeline stage implements and
// the registry that resolves, guards, and executes stages on behalf of the
// engine.
package step

import (
	"context"

	"github.com/fathomlabs/diligence/internal/pipeline"
)

// Processor is the executable behavior bound to a step kind.
//
// CanExecute is the stage precondition: the default requires the subject
// entity and the active agent; concrete processors may add stage-specific
// requirements. When it returns false no external call may happen.
//
// Execute performs exactly one external analysis call. Failures from the
// call are caught and normalized into the returned Result; Execute never
// panics and never returns a raw error to the registry.
type Processor interface {
	Kind() pipeline.StepKind
	CanExecute(ctx context.Context, ec *pipeline.ExecContext) bool
	Execute(ctx context.Context, ec *pipeline.ExecContext) pipeline.Result
}

// BaseCanExecute is the default stage precondition: subject entity and
// active agent must both be present.
func BaseCanExecute(ec *pipeline.ExecContext) bool {
	return ec != nil && ec.Entity != nil && ec.Agent != nil
}
