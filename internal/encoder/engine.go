// Package encoder provides the handle to the encoding engine that turns a
// still image and an audio clip into a video. The engine works inside an
// isolated file namespace: inputs are written to it by name, a run reads and
// writes those names, and outputs are read back by name.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// State is the lifecycle state of an engine handle.
type State string

const (
	// StateUninitialized is the state before Load has been called or after a failed load.
	StateUninitialized State = "UNINITIALIZED"
	// StateLoading indicates Load is in progress.
	StateLoading State = "LOADING"
	// StateReady indicates the engine can accept files and runs.
	StateReady State = "READY"
)

// Static errors for engine operations.
var (
	// ErrNotReady is returned when an operation requires a loaded engine.
	ErrNotReady = errors.New("encoder engine is not ready")
	// ErrBusy is returned when a run is requested while another is in flight.
	ErrBusy = errors.New("encoder engine is already running a job")
	// ErrExecution is matched by every *ExecutionError.
	ErrExecution = errors.New("encoder execution failed")
	// ErrOutputNotFound is returned when a requested file does not exist in the engine namespace.
	ErrOutputNotFound = errors.New("encoder output not found")
	// ErrInvalidPath is returned for names that would escape the engine namespace.
	ErrInvalidPath = errors.New("invalid engine path: must be a plain file name")
	// ErrVersionMismatch is returned by Load when the engine version is not the pinned one.
	ErrVersionMismatch = errors.New("encoder version does not match pinned version")
)

// Engine is the port to the encoding engine.
type Engine interface {
	// Load prepares the engine. It must complete before any run. Calling Load
	// on a ready engine is a no-op.
	Load(ctx context.Context) error

	// State reports the lifecycle state.
	State() State

	// Version reports the engine version detected by Load.
	Version() string

	// WriteFile stores data under name in the engine namespace. Last write wins.
	WriteFile(name string, data []byte) error

	// ReadFile returns the bytes stored under name.
	// Returns ErrOutputNotFound if nothing is stored there.
	ReadFile(name string) ([]byte, error)

	// Remove deletes name from the engine namespace. Missing names are ignored.
	Remove(name string) error

	// Logs returns the stream that carries the engine's log lines during runs.
	Logs() *LogStream

	// Run executes a single encoding job with the given argument list.
	// Only one run may be in flight at a time.
	Run(ctx context.Context, args []string) error
}

// ExecutionError describes a run the engine rejected or that crashed,
// including the tail of the engine's log output.
type ExecutionError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is reports ErrExecution as a match so callers can use errors.Is.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// logTail keeps the last n log lines of a run for error reports.
type logTail struct {
	max   int
	lines []string
}

func newLogTail(max int) *logTail {
	return &logTail{max: max, lines: make([]string, 0, max)}
}

func (t *logTail) add(line string) {
	if len(t.lines) == t.max {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.max-1]
	}
	t.lines = append(t.lines, line)
}

func (t *logTail) String() string {
	return strings.Join(t.lines, "\n")
}
