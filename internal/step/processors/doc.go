// Package processors implements the six built-in pipeline stages. Every
// processor is a state-free transformer with the same shape: call the
// external analysis service with the relevant accumulator slice, normalize
// the result, merge it into the accumulator overlay, emit log entries, and
// decide continuation. Service failures are caught here and never propagate
// past the step contract.
package processors
