package models

import "github.com/google/uuid"

type TranscriptWord struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

type TranscriptSegment struct {
	Start float64          `json:"start"`
	End   float64          `json:"end"`
	Text  string           `json:"text"`
	Words []TranscriptWord `json:"words,omitempty"`
}

// Transcript is produced by the transcribe stage and persisted so
// downstream collaborators (social-copy generation) can read it without
// re-running ASR. An empty Segments slice is a valid, persisted transcript
// for no-speech media.
type Transcript struct {
	JobID    uuid.UUID
	Segments []TranscriptSegment
}
