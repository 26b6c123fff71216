package submit

import (
	"errors"

	"github.com/five82/excelextractor/internal/selection"
)

// State is a SubmissionController state.
type State int

const (
	StateIdle State = iota
	StateInvalid
	StateSubmitting
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInvalid:
		return "invalid"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrorKind classifies a failed or rejected attempt.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindValidation failed locally before any network call.
	KindValidation
	// KindAuth means the service rejected the credential (401/403).
	KindAuth
	// KindRequest covers every other non-success response and transport failure.
	KindRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindRequest:
		return "request"
	default:
		return "none"
	}
}

// User-visible messages.
const (
	MsgNoFiles        = "Please select at least one file."
	MsgNoCredential   = "User not authenticated. Please log in."
	MsgSessionExpired = "Your session has expired. Please log in again."
	MsgUploadFailed   = "Upload failed"
	MsgSuccess        = "Tables extracted and merged successfully!"
)

var (
	// ErrBusy is returned when an action arrives while a submission is in flight.
	ErrBusy = errors.New("a submission is already in progress")
	// ErrResultPending is returned by Submit and by selection edits while a
	// produced file awaits download or abandonment.
	ErrResultPending = errors.New("download or discard the current result first")
	// ErrNoResult is returned by Download and Abandon outside the success
	// state or while another Download or Abandon holds the result.
	ErrNoResult = errors.New("no produced file to download")

	errNoFiles      = errors.New("empty selection")
	errNoCredential = errors.New("no credential")
	errNoFileURL    = errors.New("service returned no file URL")
)

// Error is a classified attempt failure. Message is safe to show to the
// operator.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Result is the outcome of the current attempt. It lives until reset.
type Result struct {
	OutputName   string
	FileURL      string
	MonthlyCount int
	Kind         ErrorKind
	Message      string
}

// Snapshot is a copy of the controller's state for adapters.
type Snapshot struct {
	State      State
	OutputName string
	Files      []selection.Candidate
	Result     Result
	Warning    string
	Attempts   int
}

// CanSubmit reports whether the submit trigger should be enabled.
func (s Snapshot) CanSubmit() bool {
	return s.State != StateSubmitting && s.State != StateSuccess
}
