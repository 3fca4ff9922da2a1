// Package credit exposes the per-principal credit decrement hook of
// spec.md §9's open question: "the core exposes a hook to an external
// collaborator before marking COMPLETED but does not prescribe the
// policy." SPEC_FULL.md decides this as a no-op default, injectable.
package credit

import "context"

// Hook is called once per job, immediately before it is marked COMPLETED.
// A non-nil error is logged by the caller but never fails the job — credit
// accounting is explicitly out of the core's enforcement (spec.md §9).
type Hook interface {
	OnJobCompleted(ctx context.Context, principalID, jobID string) error
}

// NoopHook is the default Hook: no external collaborator is configured.
type NoopHook struct{}

func (NoopHook) OnJobCompleted(ctx context.Context, principalID, jobID string) error {
	return nil
}
