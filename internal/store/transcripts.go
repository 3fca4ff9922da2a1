package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"viralclip-backend/internal/models"
)

type TranscriptRepo struct {
	db *DB
}

func NewTranscriptRepo(db *DB) *TranscriptRepo {
	return &TranscriptRepo{db: db}
}

// Put is an upsert: the transcribe stage is idempotent, keyed by job id
// (§4.4), so re-running it overwrites the prior transcript deterministically.
func (r *TranscriptRepo) Put(t *models.Transcript) error {
	segments, err := json.Marshal(t.Segments)
	if err != nil {
		return fmt.Errorf("store: marshal transcript segments: %w", err)
	}
	_, err = r.db.SQL().Exec(`
		INSERT INTO transcripts (job_id, segments_json)
		VALUES ($1, $2)
		ON CONFLICT (job_id) DO UPDATE SET segments_json = EXCLUDED.segments_json
	`, t.JobID, segments)
	if err != nil {
		return fmt.Errorf("store: put transcript: %w", err)
	}
	return nil
}

func (r *TranscriptRepo) Get(jobID uuid.UUID) (*models.Transcript, error) {
	var segments []byte
	err := r.db.SQL().QueryRow(`SELECT segments_json FROM transcripts WHERE job_id = $1`, jobID).Scan(&segments)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get transcript: %w", err)
	}
	t := &models.Transcript{JobID: jobID}
	if err := json.Unmarshal(segments, &t.Segments); err != nil {
		return nil, fmt.Errorf("store: decode transcript: %w", err)
	}
	return t, nil
}
