package workflow

import (
	"errors"
	"strings"
)

// ErrorKind classifies why a request was rejected.
type ErrorKind string

const (
	KindUnknownTransition      ErrorKind = "unknown_transition"
	KindInsufficientRole       ErrorKind = "insufficient_role"
	KindPhaseMismatch          ErrorKind = "phase_mismatch"
	KindValidationFailed       ErrorKind = "validation_failed"
	KindQualityGateFailed      ErrorKind = "quality_gate_failed"
	KindInvalidIdentity        ErrorKind = "invalid_identity"
	KindConcurrentModification ErrorKind = "concurrent_modification"
)

// Sentinels matched by RejectionError.Is, one per kind.
var (
	ErrUnknownTransition      = errors.New("unknown transition")
	ErrInsufficientRole       = errors.New("insufficient role")
	ErrPhaseMismatch          = errors.New("phase mismatch")
	ErrValidationFailed       = errors.New("validation failed")
	ErrQualityGateFailed      = errors.New("quality gate failed")
	ErrInvalidIdentity        = errors.New("invalid identity")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Faults that are not business rejections.
var (
	ErrNotFound         = errors.New("assessment not found")
	ErrNoAssessment     = errors.New("assessment is required")
	ErrNoAuditSink      = errors.New("audit sink is required")
	ErrUnreachableState = errors.New("assessment holds an unreachable state")
	ErrAssessmentClosed = errors.New("assessment is closed")
	ErrForbidden        = errors.New("actor may not modify assessment")
)

var kindSentinels = map[ErrorKind]error{
	KindUnknownTransition:      ErrUnknownTransition,
	KindInsufficientRole:       ErrInsufficientRole,
	KindPhaseMismatch:          ErrPhaseMismatch,
	KindValidationFailed:       ErrValidationFailed,
	KindQualityGateFailed:      ErrQualityGateFailed,
	KindInvalidIdentity:        ErrInvalidIdentity,
	KindConcurrentModification: ErrConcurrentModification,
}

// TransitionError is one machine-readable rejection reason.
type TransitionError struct {
	Kind    ErrorKind         `json:"kind"`
	Message string            `json:"message"`
	Rule    string            `json:"rule,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Retryable reports whether repeating the request against fresh state may succeed.
func (e TransitionError) Retryable() bool {
	return e.Kind == KindConcurrentModification
}

// RejectionError wraps the errors of a rejected result for callers that prefer error values.
type RejectionError struct {
	Errors []TransitionError
}

func (e *RejectionError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, te := range e.Errors {
		msgs = append(msgs, string(te.Kind)+": "+te.Message)
	}
	return strings.Join(msgs, "; ")
}

// Kind returns the kind of the first error.
func (e *RejectionError) Kind() ErrorKind {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Kind
}

// Is matches the per-kind sentinels.
func (e *RejectionError) Is(target error) bool {
	for _, te := range e.Errors {
		if kindSentinels[te.Kind] == target {
			return true
		}
	}
	return false
}
