package handlers

import (
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"viralclip-backend/internal/apperr"
	"viralclip-backend/internal/middleware"
	"viralclip-backend/internal/models"
	"viralclip-backend/internal/scheduler"
)

// EventsHandler streams a job's progress events (spec §4.6, §6.1): one
// text-framed message per event, a `seq` field per message so a client can
// detect gaps after a reconnect.
type EventsHandler struct {
	scheduler *scheduler.Scheduler
}

func NewEventsHandler(s *scheduler.Scheduler) *EventsHandler {
	return &EventsHandler{scheduler: s}
}

func (h *EventsHandler) Stream(c *gin.Context) {
	principalID := middleware.PrincipalFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidParameters, "parse job id", err))
		return
	}

	sub, err := h.scheduler.Subscribe(id, principalID)
	if err != nil {
		respondError(c, err)
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "seq: %d\n", event.Seq)
			fmt.Fprintf(w, "data: {\"job_id\":%q,\"status\":%q,\"phase\":%q,\"percent\":%d,\"description\":%q,\"timestamp\":%q}\n\n",
				event.JobID, event.Status, event.Phase, event.Percent, event.Description, event.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
			return !isTerminalStatus(event.Status)
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func isTerminalStatus(s models.JobStatus) bool {
	switch s {
	case models.JobCompleted, models.JobFailed, models.JobCancelled:
		return true
	default:
		return false
	}
}
