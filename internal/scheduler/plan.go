package scheduler

import "viralclip-backend/internal/models"

// PlanResolver maps a principal to the priority class its subscription plan
// grants, per spec §4.2 ("derived from subscription plan of the
// principal"). The core only specifies the derivation point, not the plan
// store itself (spec.md §9 Open Questions) — SPEC_FULL.md resolves this as
// an injectable interface defaulting to a static map.
type PlanResolver interface {
	PriorityClassFor(principalID string) models.PriorityClass
}

// StaticPlanResolver is the default PlanResolver: an explicit allow-list of
// principals on the interactive plan, batch otherwise.
type StaticPlanResolver struct {
	interactive map[string]bool
}

func NewStaticPlanResolver(interactivePrincipals []string) *StaticPlanResolver {
	m := make(map[string]bool, len(interactivePrincipals))
	for _, id := range interactivePrincipals {
		m[id] = true
	}
	return &StaticPlanResolver{interactive: m}
}

func (r *StaticPlanResolver) PriorityClassFor(principalID string) models.PriorityClass {
	if r.interactive[principalID] {
		return models.PriorityInteractive
	}
	return models.PriorityBatch
}
