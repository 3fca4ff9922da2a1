package store

import (
	"database/sql"
	"fmt"
	"time"

	"viralclip-backend/internal/models"
)

type BlobRepo struct {
	db *DB
}

func NewBlobRepo(db *DB) *BlobRepo {
	return &BlobRepo{db: db}
}

// Create inserts a new blob row, or — if a blob with the same digest
// already exists — increments its refcount, the way the write-once,
// content-addressed store stays idempotent under concurrent writers of the
// same content (§5).
func (r *BlobRepo) Create(b *models.Blob) error {
	_, err := r.db.SQL().Exec(`
		INSERT INTO blobs (id, size, content_type, owner_principal_id, refcount, created_at)
		VALUES ($1, $2, $3, $4, 1, NOW())
		ON CONFLICT (id) DO UPDATE SET refcount = blobs.refcount + 1
	`, b.ID, b.Size, b.ContentType, b.OwnerPrincipalID)
	if err != nil {
		return fmt.Errorf("store: create blob: %w", err)
	}
	return nil
}

func (r *BlobRepo) Get(id string) (*models.Blob, error) {
	var b models.Blob
	var createdAt time.Time
	err := r.db.SQL().QueryRow(`
		SELECT id, size, content_type, owner_principal_id, refcount, created_at
		FROM blobs WHERE id = $1
	`, id).Scan(&b.ID, &b.Size, &b.ContentType, &b.OwnerPrincipalID, &b.RefCount, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get blob: %w", err)
	}
	b.CreatedAt = createdAt
	return &b, nil
}

func (r *BlobRepo) Exists(id string) (bool, error) {
	var count int
	err := r.db.SQL().QueryRow(`SELECT COUNT(*) FROM blobs WHERE id = $1`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: check blob exists: %w", err)
	}
	return count > 0, nil
}

// Release decrements refcount; a Blob whose refcount reaches zero is left
// for a separate sweep, not deleted here — callers that cascade-delete a
// job must not assume the backing bytes are gone immediately (§3).
func (r *BlobRepo) Release(id string) error {
	_, err := r.db.SQL().Exec(`UPDATE blobs SET refcount = GREATEST(refcount - 1, 0) WHERE id = $1`, id)
	return err
}
