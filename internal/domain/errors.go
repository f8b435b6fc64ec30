package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	ErrPlayerNotFound       = errors.New("player not found")
	ErrSnapshotNotFound     = errors.New("snapshot not found")
	ErrCohortNotFound       = errors.New("cohort not found")
	ErrAccessDenied         = errors.New("access denied")
	ErrInvalidStat          = errors.New("invalid stat")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrAmendWindowClosed    = errors.New("amend window closed")
	ErrNotSubmitter         = errors.New("only the original submitter may amend a snapshot")
	ErrDirectoryUnavailable = errors.New("directory unavailable")
	ErrIndexUnavailable     = errors.New("max index unavailable")
)

// Request error reasons
const (
	ReasonInvalidStat   = "invalid_stat"
	ReasonInvalidRange  = "invalid_range"
	ReasonInvalidCohort = "invalid_cohort"
	ReasonInvalidPage   = "invalid_page"
)

// RejectedError is returned when a snapshot fails validation
type RejectedError struct {
	Result ValidationResult
}

func (e *RejectedError) Error() string {
	issues := e.Result.HardErrors
	if len(issues) == 0 {
		issues = e.Result.SoftWarnings
	}
	msgs := make([]string, 0, len(issues))
	for _, i := range issues {
		msgs = append(msgs, i.Error())
	}
	return fmt.Sprintf("snapshot rejected: %s", strings.Join(msgs, "; "))
}

// RequestError is a malformed leaderboard request carrying a machine-readable reason
type RequestError struct {
	Reason string
	Detail string
	Err    error
}

func (e *RequestError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *RequestError) Unwrap() error { return e.Err }

// NewInvalidStat returns the request error for an unknown or unrankable field
func NewInvalidStat(field string) *RequestError {
	return &RequestError{Reason: ReasonInvalidStat, Detail: fmt.Sprintf("%q is not a sortable stat", field), Err: ErrInvalidStat}
}

// NewInvalidRange returns the request error for an unusable time range
func NewInvalidRange(detail string) *RequestError {
	return &RequestError{Reason: ReasonInvalidRange, Detail: detail, Err: ErrInvalidRequest}
}

// AccessError means the cohort exists but the viewer may not see it
type AccessError struct {
	Cohort CohortRef
	Viewer string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("viewer %q cannot access cohort %s", e.Viewer, e.Cohort)
}

func (e *AccessError) Unwrap() error { return ErrAccessDenied }

// TransientError wraps a failure of an upstream directory. It is not retried internally.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() []error { return []error{ErrDirectoryUnavailable, e.Err} }

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrSnapshotNotFound) || errors.Is(err, ErrCohortNotFound)
}

// IsRejected checks if an error is a validation rejection and returns it
func IsRejected(err error) (*RejectedError, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsTransientError checks if an error came from an unavailable upstream
func IsTransientError(err error) bool {
	return errors.Is(err, ErrDirectoryUnavailable)
}
