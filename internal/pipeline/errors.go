package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maauso/videomaker/internal/encoder"
	"github.com/maauso/videomaker/internal/media"
	"github.com/maauso/videomaker/internal/storage"
)

// Static errors for pipeline operations.
var (
	// ErrMissingInputs is matched when the image or the audio is missing.
	ErrMissingInputs = errors.New("missing inputs")
	// ErrJobAlreadyRunning is returned when a job is submitted while another is in flight.
	ErrJobAlreadyRunning = errors.New("a video job is already running")
	// ErrJobNotComplete is returned when the video of an unfinished job is requested.
	ErrJobNotComplete = errors.New("job is not complete")
	// ErrJobInProgress is returned when deleting a job that is still being processed.
	ErrJobInProgress = errors.New("job is still in progress")
)

// Stable failure codes recorded on jobs and returned by the API.
const (
	CodeEngineNotReady    = "ENGINE_NOT_READY"
	CodeMissingInputs     = "MISSING_INPUTS"
	CodeDurationProbe     = "DURATION_PROBE_FAILED"
	CodeEngineExecution   = "ENGINE_EXECUTION_FAILED"
	CodeOutputNotFound    = "OUTPUT_NOT_FOUND"
	CodeJobAlreadyRunning = "JOB_ALREADY_RUNNING"
	CodeS3NotConfigured   = "S3_NOT_CONFIGURED"
	CodeInternal          = "INTERNAL_ERROR"
)

// MissingInputsError lists the roles that had no input.
type MissingInputsError struct {
	Missing []media.Role
}

func (e *MissingInputsError) Error() string {
	names := make([]string, len(e.Missing))
	for i, r := range e.Missing {
		names[i] = string(r)
	}
	return fmt.Sprintf("%s: %s", ErrMissingInputs, strings.Join(names, ", "))
}

// Is reports whether target is ErrMissingInputs.
func (e *MissingInputsError) Is(target error) bool {
	return target == ErrMissingInputs
}

// ErrorCode maps err to its stable failure code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, encoder.ErrNotReady):
		return CodeEngineNotReady
	case errors.Is(err, ErrMissingInputs):
		return CodeMissingInputs
	case errors.Is(err, media.ErrDurationProbe):
		return CodeDurationProbe
	case errors.Is(err, encoder.ErrExecution):
		return CodeEngineExecution
	case errors.Is(err, encoder.ErrOutputNotFound):
		return CodeOutputNotFound
	case errors.Is(err, ErrJobAlreadyRunning), errors.Is(err, encoder.ErrBusy):
		return CodeJobAlreadyRunning
	case errors.Is(err, storage.ErrS3NotConfigured):
		return CodeS3NotConfigured
	default:
		return CodeInternal
	}
}

