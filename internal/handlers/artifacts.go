package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"viralclip-backend/internal/apperr"
	"viralclip-backend/internal/blob"
	"viralclip-backend/internal/middleware"
	"viralclip-backend/internal/models"
	"viralclip-backend/internal/scheduler"
	"viralclip-backend/internal/store"
)

// ArtifactsHandler exposes the Artifact Registry's list_by_job/get
// operations (spec §4.5) over HTTP — not part of the core's fixed §4.6
// endpoint list, but the HTTP-reachable shape that part of the registry
// needs to be useful to a client.
type ArtifactsHandler struct {
	scheduler *scheduler.Scheduler
	artifacts *store.ArtifactRepo
	blobs     blob.Store
}

func NewArtifactsHandler(s *scheduler.Scheduler, artifacts *store.ArtifactRepo, blobs blob.Store) *ArtifactsHandler {
	return &ArtifactsHandler{scheduler: s, artifacts: artifacts, blobs: blobs}
}

func (h *ArtifactsHandler) ListByJob(c *gin.Context) {
	principalID := middleware.PrincipalFrom(c)

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidParameters, "parse job id", err))
		return
	}

	// Ownership of the parent job gates access to its artifacts (§4.5).
	if _, err := h.scheduler.Status(jobID, principalID); err != nil {
		respondError(c, err)
		return
	}

	rows, err := h.artifacts.ListByJob(jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.ArtifactResponse, len(rows))
	for i, a := range rows {
		responses[i] = h.toResponse(a)
	}
	c.JSON(http.StatusOK, responses)
}

func (h *ArtifactsHandler) Get(c *gin.Context) {
	principalID := middleware.PrincipalFrom(c)

	artifactID, err := uuid.Parse(c.Param("artifact_id"))
	if err != nil {
		respondError(c, apperr.Wrap(apperr.KindInvalidParameters, "parse artifact id", err))
		return
	}

	artifact, err := h.artifacts.Get(artifactID)
	if err != nil {
		respondError(c, err)
		return
	}

	if _, err := h.scheduler.Status(artifact.JobID, principalID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(artifact))
}

func (h *ArtifactsHandler) toResponse(a *models.Artifact) models.ArtifactResponse {
	url := a.BlobID
	if urler, ok := h.blobs.(blob.URLer); ok {
		url = urler.PublicURL(blob.BlobKey(a.BlobID))
	}
	return models.ArtifactResponse{
		ID:             a.ID.String(),
		JobID:          a.JobID.String(),
		Ordinal:        a.Ordinal,
		URL:            url,
		Duration:       a.Duration,
		SourceStart:    a.SourceStart,
		SourceEnd:      a.SourceEnd,
		AspectRatio:    string(a.AspectRatio),
		CaptionsAdded:  a.CaptionsAdded,
		ViralScore:     a.ViralScore,
		CaptionTrackID: a.CaptionTrackID,
	}
}
