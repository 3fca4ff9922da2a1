package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"viralclip-backend/internal/models"
)

type UploadRepo struct {
	db *DB
}

func NewUploadRepo(db *DB) *UploadRepo {
	return &UploadRepo{db: db}
}

func (r *UploadRepo) Create(u *models.UploadSession) error {
	lengths, err := json.Marshal(u.ChunkLengths)
	if err != nil {
		return fmt.Errorf("store: marshal chunk lengths: %w", err)
	}
	_, err = r.db.SQL().Exec(`
		INSERT INTO uploads (id, principal_id, filename, size, declared_type, chunk_size, total_chunks, received_bitmap, chunk_lengths_json, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`, u.ID, u.PrincipalID, u.Filename, u.DeclaredSize, u.DeclaredType, u.ChunkSize, u.TotalChunks, []byte(u.Received), lengths, u.ExpiresAt)
	if err != nil {
		return fmt.Errorf("store: create upload: %w", err)
	}
	return nil
}

func (r *UploadRepo) Get(id string) (*models.UploadSession, error) {
	var u models.UploadSession
	var bitmap []byte
	var lengths []byte
	var createdAt time.Time
	err := r.db.SQL().QueryRow(`
		SELECT id, principal_id, filename, size, declared_type, chunk_size, total_chunks, received_bitmap, chunk_lengths_json, expires_at, created_at
		FROM uploads WHERE id = $1
	`, id).Scan(&u.ID, &u.PrincipalID, &u.Filename, &u.DeclaredSize, &u.DeclaredType, &u.ChunkSize, &u.TotalChunks, &bitmap, &lengths, &u.ExpiresAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get upload: %w", err)
	}
	u.Received = models.Bitmap(bitmap)
	u.CreatedAt = createdAt
	u.ChunkLengths = map[int]int64{}
	if len(lengths) > 0 {
		if err := json.Unmarshal(lengths, &u.ChunkLengths); err != nil {
			return nil, fmt.Errorf("store: decode chunk lengths: %w", err)
		}
	}
	return &u, nil
}

// Save persists the session's mutable fields (bitmap, chunk lengths). The
// upload assembler serializes concurrent chunk writers to the same session
// id at the call site; this is a plain update, not a CAS.
func (r *UploadRepo) Save(u *models.UploadSession) error {
	lengths, err := json.Marshal(u.ChunkLengths)
	if err != nil {
		return fmt.Errorf("store: marshal chunk lengths: %w", err)
	}
	_, err = r.db.SQL().Exec(`
		UPDATE uploads SET received_bitmap = $1, chunk_lengths_json = $2 WHERE id = $3
	`, []byte(u.Received), lengths, u.ID)
	if err != nil {
		return fmt.Errorf("store: save upload: %w", err)
	}
	return nil
}

func (r *UploadRepo) Delete(id string) error {
	_, err := r.db.SQL().Exec(`DELETE FROM uploads WHERE id = $1`, id)
	return err
}

// ListExpired returns sessions whose TTL has passed, for the background
// expiry sweep referenced by §4.1's "abort / TTL expiry" operation.
func (r *UploadRepo) ListExpired(now time.Time) ([]*models.UploadSession, error) {
	rows, err := r.db.SQL().Query(`SELECT id FROM uploads WHERE expires_at < $1`, now)
	if err != nil {
		return nil, fmt.Errorf("store: list expired uploads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	sessions := make([]*models.UploadSession, 0, len(ids))
	for _, id := range ids {
		s, err := r.Get(id)
		if err != nil {
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}
