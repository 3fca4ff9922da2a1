package store

import "errors"

// ErrNotFound is returned by repository Get methods when no row matches.
// Callers translate this into apperr.KindNotFound at the boundary that
// knows about principals and HTTP status codes; this package stays
// storage-only.
var ErrNotFound = errors.New("store: not found")
