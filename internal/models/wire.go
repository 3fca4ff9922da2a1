package models

import "time"

// This file holds the JSON request/response shapes of §6.1-6.3. Core
// components operate on the typed values above; these DTOs exist only at
// the HTTP boundary, the way the source's ad-hoc JSON blobs are replaced by
// an explicit schema per the design notes.

type ErrorPayload struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type ErrorResponse struct {
	Error ErrorPayload `json:"error"`
}

type InitUploadRequest struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	ChunkSize   int64  `json:"chunk_size,omitempty"`
}

type InitUploadResponse struct {
	UploadID    string    `json:"upload_id"`
	ChunkSize   int64     `json:"chunk_size"`
	TotalChunks int       `json:"total_chunks"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type CompleteUploadResponse struct {
	BlobID string `json:"blob_id"`
}

type SubmitJobRequest struct {
	BlobID  string     `json:"blob_id"`
	Options JobOptions `json:"options"`
}

type SubmitJobResponse struct {
	JobID string `json:"job_id"`
}

type JobResponse struct {
	ID          string      `json:"id"`
	Status      JobStatus   `json:"status"`
	Phase       string      `json:"phase"`
	Percent     int         `json:"percent"`
	Description string      `json:"description"`
	Error       *JobError   `json:"error,omitempty"`
	Results     *JobResults `json:"results,omitempty"`
	Attempts    int         `json:"attempts"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

func NewJobResponse(j *Job) JobResponse {
	return JobResponse{
		ID:          j.ID.String(),
		Status:      j.Status,
		Phase:       j.Progress.Phase,
		Percent:     j.Progress.Percent,
		Description: j.Progress.Description,
		Error:       j.Error,
		Results:     j.Results,
		Attempts:    j.Attempts,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
	}
}

type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Limit int           `json:"limit"`
	Offset int          `json:"offset"`
}

type ArtifactResponse struct {
	ID            string  `json:"id"`
	JobID         string  `json:"job_id"`
	Ordinal       int     `json:"ordinal"`
	URL           string  `json:"url"`
	Duration      float64 `json:"duration"`
	SourceStart   float64 `json:"source_start"`
	SourceEnd     float64 `json:"source_end"`
	AspectRatio   string  `json:"aspect_ratio"`
	CaptionsAdded bool    `json:"captions_added"`
	ViralScore    float64 `json:"viral_score"`
	CaptionTrackID *string `json:"caption_track_id,omitempty"`
}

// EventFrame is a single progress event on the §4.3/§6.1 stream; seq is
// strictly increasing per job.
type EventFrame struct {
	Seq         int64     `json:"seq"`
	JobID       string    `json:"job_id"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Percent     int       `json:"percent"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}
