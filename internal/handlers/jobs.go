package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"viralclip-backend/internal/apperr"
	"viralclip-backend/internal/middleware"
	"viralclip-backend/internal/models"
	"viralclip-backend/internal/scheduler"
)

// JobsHandler exposes job submission, lookup, listing, and cancellation
// (spec §4.6) over the Job Scheduler.
type JobsHandler struct {
	scheduler *scheduler.Scheduler
}

func NewJobsHandler(s *scheduler.Scheduler) *JobsHandler {
	return &JobsHandler{scheduler: s}
}

func (h *JobsHandler) Submit(c *gin.Context) {
	principalID := middleware.PrincipalFrom(c)

	var req models.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidParameters, "decode submit job request", err))
		return
	}

	job, err := h.scheduler.Submit(principalID, req.BlobID, req.Options)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.SubmitJobResponse{JobID: job.ID.String()})
}

func (h *JobsHandler) Get(c *gin.Context) {
	principalID := middleware.PrincipalFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidParameters, "parse job id", err))
		return
	}

	job, err := h.scheduler.Status(id, principalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewJobResponse(job))
}

func (h *JobsHandler) List(c *gin.Context) {
	principalID := middleware.PrincipalFrom(c)
	status := models.JobStatus(c.Query("status"))

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	jobs, err := h.scheduler.List(principalID, status, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.JobResponse, len(jobs))
	for i, j := range jobs {
		responses[i] = models.NewJobResponse(j)
	}

	c.JSON(http.StatusOK, models.JobListResponse{Jobs: responses, Limit: limit, Offset: offset})
}

func (h *JobsHandler) Cancel(c *gin.Context) {
	principalID := middleware.PrincipalFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidParameters, "parse job id", err))
		return
	}

	if err := h.scheduler.Cancel(id, principalID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
