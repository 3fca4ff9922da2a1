package models

import "github.com/google/uuid"

// Artifact is a finished clip belonging to a job. Ordinal is dense within a
// job: for N artifacts, ordinals are exactly 1..N.
type Artifact struct {
	ID            uuid.UUID
	JobID         uuid.UUID
	Ordinal       int
	BlobID        string
	Duration      float64
	SourceStart   float64
	SourceEnd     float64
	AspectRatio   AspectRatio
	CaptionsAdded bool
	ViralScore    float64
	CaptionTrackID *string
}
