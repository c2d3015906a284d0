package match

import (
	"errors"
	"fmt"

	"github.com/park285/liarslock/internal/store"
)

// Kind enumerates the business-rule failures callers can act on.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindInvalidPhase       Kind = "invalid_phase"
	KindInvalidInput       Kind = "invalid_input"
	KindAlreadySubmitted   Kind = "already_submitted"
	KindNotAParticipant    Kind = "not_a_participant"
	KindIntegrityViolation Kind = "integrity_violation"
	KindPhaseExpired       Kind = "phase_expired"
	KindConflict           Kind = "conflict"
)

// Error is a domain error. Two errors match under errors.Is when their
// kinds are equal, so callers compare against the Err* sentinels.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return string(e.Kind) + ": " + e.Msg
	}
	return string(e.Kind)
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidPhase       = &Error{Kind: KindInvalidPhase}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrAlreadySubmitted   = &Error{Kind: KindAlreadySubmitted}
	ErrNotAParticipant    = &Error{Kind: KindNotAParticipant}
	ErrIntegrityViolation = &Error{Kind: KindIntegrityViolation}
	ErrPhaseExpired       = &Error{Kind: KindPhaseExpired}
	ErrConflict           = &Error{Kind: KindConflict}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" for infrastructure failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, store.ErrConflict) {
		return KindConflict
	}
	return ""
}

// translate maps store-level failures onto domain kinds.
func translate(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return &Error{Kind: KindConflict, Msg: "too many concurrent updates, retry"}
	}
	return err
}
