package models

import "time"

// Blob is an immutable, content-addressed byte sequence. ID is the
// lowercase hex SHA-256 digest of its full content.
type Blob struct {
	ID               string
	Size             int64
	ContentType      string
	OwnerPrincipalID string
	RefCount         int
	CreatedAt        time.Time
}
