package scheduler

import "viralclip-backend/internal/models"

// SelectDispatchable applies the per-process and per-principal concurrency
// limits of spec §4.2 to a FIFO-ordered batch of ready jobs, without
// touching storage — kept pure so the admission policy is unit-testable
// independent of a database.
//
// A ready job that would exceed the per-principal limit is skipped (left at
// head-of-class, per spec: "liveness ensured by re-examining after every
// completion") rather than blocking jobs behind it from dispatching.
func SelectDispatchable(ready []*models.Job, runningByPrincipal map[string]int, perPrincipalLimit, availableSlots int) []*models.Job {
	if availableSlots <= 0 {
		return nil
	}

	running := make(map[string]int, len(runningByPrincipal))
	for k, v := range runningByPrincipal {
		running[k] = v
	}

	var dispatch []*models.Job
	for _, job := range ready {
		if len(dispatch) >= availableSlots {
			break
		}
		if running[job.PrincipalID] >= perPrincipalLimit {
			continue
		}
		dispatch = append(dispatch, job)
		running[job.PrincipalID]++
	}
	return dispatch
}

// priorityOrder is the fixed scan order across classes: interactive jobs
// dispatch ahead of batch jobs whenever slots are scarce, per spec's
// "interactive" plan naming implying higher responsiveness.
var priorityOrder = []models.PriorityClass{models.PriorityInteractive, models.PriorityBatch}
