// Package apperr defines the error taxonomy shared by every core component.
//
// A component never returns a bare error for a condition the caller needs to
// branch on; it returns an *Error with a Kind from this taxonomy so the
// scheduler and the HTTP surface can make the same retryable/terminal,
// 4xx/5xx decisions without re-deriving them from error strings.
package apperr

import "fmt"

type Kind string

const (
	KindInvalidParameters    Kind = "invalid-parameters"
	KindNotFound             Kind = "not-found"
	KindForbidden            Kind = "forbidden"
	KindConflict             Kind = "conflict"
	KindExpired              Kind = "expired"
	KindIncomplete           Kind = "incomplete"
	KindOversize             Kind = "oversize"
	KindRejectedType         Kind = "rejected-type"
	KindUnreadable           Kind = "unreadable"
	KindUnsupportedCodec     Kind = "unsupported-codec"
	KindNoSpeechDetected     Kind = "no-speech-detected"
	KindTransientIO          Kind = "transient-io"
	KindTransientDependency  Kind = "transient-dependency"
	KindTimeout              Kind = "timeout"
	KindWorkerLost           Kind = "worker-lost"
	KindCancelled            Kind = "cancelled"
	KindInternal             Kind = "internal"
	KindRateLimited          Kind = "rate-limited"
	KindUnavailable          Kind = "unavailable"
)

// retryable is the authoritative retryable/terminal classification from
// spec §7. The worker and scheduler never decide retryability any other
// way.
var retryable = map[Kind]bool{
	KindTransientIO:         true,
	KindTransientDependency: true,
	KindTimeout:             true,
	KindWorkerLost:          true,
}

// Error is the structured error every core package returns for conditions
// callers branch on. It wraps an underlying cause (if any) the way the
// teacher wraps driver errors with fmt.Errorf("...: %w", err).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether this error's kind belongs to the retryable set
// of spec §7. Non-*Error values (programmer errors, unexpected driver
// errors) are never retryable.
func (e *Error) Retryable() bool {
	return retryable[e.Kind]
}

// As extracts an *Error from err, the way callers check classification
// without caring about the wrapping chain.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	if ok {
		return ae, true
	}
	type unwrapper interface{ Unwrap() error }
	for u, ok := err.(unwrapper); ok; u, ok = err.(unwrapper) {
		err = u.Unwrap()
		if ae, ok := err.(*Error); ok {
			return ae, true
		}
	}
	return nil, false
}

// HTTPStatus maps a Kind to the status codes enumerated in spec §6.1.
func HTTPStatus(k Kind) int {
	switch k {
	case KindInvalidParameters, KindUnreadable, KindUnsupportedCodec, KindNoSpeechDetected:
		return 400
	case KindForbidden:
		return 403
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindExpired:
		return 410
	case KindIncomplete:
		return 409
	case KindOversize:
		return 413
	case KindRejectedType:
		return 415
	case KindRateLimited:
		return 429
	case KindUnavailable:
		return 503
	default:
		return 500
	}
}
