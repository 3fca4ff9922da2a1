package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// NewLeaseToken mints an opaque worker lease token, the way a dispatched
// job claims exclusive ownership of its RUNNING slot (§4.2, §5).
func NewLeaseToken() string {
	return uuid.NewString()
}

// LeaseExpired reports whether a lease recorded on a job has gone stale —
// either never set, or past its expiry — the trigger for crash recovery.
func LeaseExpired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt == nil || now.After(*expiresAt)
}
