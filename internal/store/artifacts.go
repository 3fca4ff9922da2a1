package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"viralclip-backend/internal/models"
)

type ArtifactRepo struct {
	db *DB
}

func NewArtifactRepo(db *DB) *ArtifactRepo {
	return &ArtifactRepo{db: db}
}

// ReplaceForJob atomically swaps a job's artifact rows inside one
// transaction, the single atomic write per job the finalize stage performs
// at its end (§4.4 idempotence note).
func (r *ArtifactRepo) ReplaceForJob(jobID uuid.UUID, artifacts []*models.Artifact) error {
	tx, err := r.db.SQL().Begin()
	if err != nil {
		return fmt.Errorf("store: begin artifact replace: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM artifacts WHERE job_id = $1`, jobID); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: clear artifacts: %w", err)
	}

	for _, a := range artifacts {
		_, err := tx.Exec(`
			INSERT INTO artifacts (id, job_id, ordinal, blob_id, duration, source_start, source_end, aspect_ratio, captions_added, viral_score, caption_track_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, a.ID, a.JobID, a.Ordinal, a.BlobID, a.Duration, a.SourceStart, a.SourceEnd, a.AspectRatio, a.CaptionsAdded, a.ViralScore, a.CaptionTrackID)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("store: insert artifact %d: %w", a.Ordinal, err)
		}
	}

	return tx.Commit()
}

func (r *ArtifactRepo) ListByJob(jobID uuid.UUID) ([]*models.Artifact, error) {
	rows, err := r.db.SQL().Query(`
		SELECT id, job_id, ordinal, blob_id, duration, source_start, source_end, aspect_ratio, captions_added, viral_score, caption_track_id
		FROM artifacts WHERE job_id = $1 ORDER BY ordinal ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("store: list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

func (r *ArtifactRepo) Get(id uuid.UUID) (*models.Artifact, error) {
	row := r.db.SQL().QueryRow(`
		SELECT id, job_id, ordinal, blob_id, duration, source_start, source_end, aspect_ratio, captions_added, viral_score, caption_track_id
		FROM artifacts WHERE id = $1
	`, id)
	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

func scanArtifact(row scanner) (*models.Artifact, error) {
	var a models.Artifact
	err := row.Scan(&a.ID, &a.JobID, &a.Ordinal, &a.BlobID, &a.Duration, &a.SourceStart, &a.SourceEnd,
		&a.AspectRatio, &a.CaptionsAdded, &a.ViralScore, &a.CaptionTrackID)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
