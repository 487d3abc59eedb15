package errs

import (
	"errors"
	"fmt"
)

// Platform errors reported by the YouTube client.
var (
	// ErrVideoUnavailable indicates that the requested video cannot be accessed.
	ErrVideoUnavailable = errors.New("video unavailable")
	// ErrPrivate indicates that the video is private and cannot be downloaded.
	ErrPrivate = errors.New("video is private")
	// ErrAgeRestricted indicates that the video has an age restriction.
	ErrAgeRestricted = errors.New("age restricted")
	// ErrCipherFailed indicates failure during signature deciphering.
	ErrCipherFailed = errors.New("cipher failed")
	// ErrGeoBlocked indicates the video is not available in the current region.
	ErrGeoBlocked = errors.New("geo blocked")
	// ErrRateLimited indicates throttling or rate limiting by the remote service.
	ErrRateLimited = errors.New("rate limited")
)

// Pipeline failure kinds.
var (
	// ErrInvalidInput indicates an identifier that does not parse to a video id.
	ErrInvalidInput = errors.New("invalid youtube url or id")
	// ErrMetadataFetch indicates a failure while retrieving metadata or the stream manifest.
	ErrMetadataFetch = errors.New("failed to obtain video information")
	// ErrNoAudioStreams indicates an empty audio-only candidate set.
	ErrNoAudioStreams = errors.New("no audio-only streams available")
	// ErrNoThumbnails indicates that cover extraction found no thumbnails.
	ErrNoThumbnails = errors.New("no thumbnails available")
	// ErrDownload indicates a network or write failure while staging a file.
	ErrDownload = errors.New("download failed")
	// ErrConversion indicates that the transcoder could not produce the output.
	ErrConversion = errors.New("conversion failed")
)

// Stage names a pipeline step.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageMetadata Stage = "metadata"
	StageSelect   Stage = "select"
	StageDownload Stage = "download"
	StageConvert  Stage = "convert"
	StageCover    Stage = "cover"
)

// StageError is the failure of one pipeline stage. Kind is one of the
// pipeline failure kinds above; Err is the underlying cause, if any.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Cause returns the underlying error message, falling back to the kind.
func (e *StageError) Cause() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

// NewStageError builds a StageError.
func NewStageError(stage Stage, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// Outcome is the tri-state result of a pipeline run.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeInvalidInput
	OutcomeStageFailure
)

// Exit codes returned by the command line tool.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInvalidInput = 2
)

// Classify maps a run error to its outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrInvalidInput):
		return OutcomeInvalidInput
	default:
		return OutcomeStageFailure
	}
}

// ExitCode returns the process exit code for the outcome.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return ExitOK
	case OutcomeInvalidInput:
		return ExitInvalidInput
	default:
		return ExitFailure
	}
}

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidInput:
		return "invalid-input"
	default:
		return "stage-failure"
	}
}

// ExitCode is a shorthand for Classify(err).ExitCode().
func ExitCode(err error) int {
	return Classify(err).ExitCode()
}
