// Package job provides the Job aggregate for tracking video renders.
// It includes the Job entity with its state machine, as well as repository
// interfaces for persistence.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/videomaker/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusIdle indicates the job was created but not yet started.
	StatusIdle Status = "IDLE"
	// StatusValidating indicates the inputs are being classified.
	StatusValidating Status = "VALIDATING"
	// StatusProbing indicates the audio duration is being discovered.
	StatusProbing Status = "PROBING"
	// StatusRunning indicates the encoder is producing the video.
	StatusRunning Status = "RUNNING"
	// StatusComplete indicates the video is available.
	StatusComplete Status = "COMPLETE"
	// StatusFailed indicates the job stopped with an error.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusIdle:       {StatusValidating, StatusFailed},
	StatusValidating: {StatusProbing, StatusFailed},
	StatusProbing:    {StatusRunning, StatusFailed},
	StatusRunning:    {StatusComplete, StatusFailed},
	StatusComplete:   {},
	StatusFailed:     {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// Job represents one image + audio render.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Progress is the percentage of completion (0-100).
	Progress float64
	// Error contains the error message if the job failed.
	Error string
	// ErrorCode is a stable machine-readable failure kind.
	ErrorCode string
	// InputImageName is the name of the selected image.
	InputImageName string
	// InputAudioName is the name of the selected audio.
	InputAudioName string
	// DurationSeconds is the probed audio duration.
	DurationSeconds float64
	// FileName is the suggested download name of the video.
	FileName string
	// OutputPath is where the video is stored locally.
	OutputPath string
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool
	// VideoURL is where the video can be fetched.
	VideoURL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when the encoder started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IDLE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IDLE status.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusComplete:
		j.Progress = 100
		j.CompletedAt = j.UpdatedAt
	case StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Validate transitions the job from IDLE to VALIDATING.
func (j *Job) Validate() error {
	return j.TransitionTo(StatusValidating)
}

// Probe transitions the job from VALIDATING to PROBING.
func (j *Job) Probe() error {
	return j.TransitionTo(StatusProbing)
}

// Start transitions the job from PROBING to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETE and sets progress to 100.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusComplete)
}

// Fail transitions the job to FAILED with an error code and message.
// The code and message are recorded only if the transition is allowed.
func (j *Job) Fail(code, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.ErrorCode = code
	j.Error = errMsg
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// GetProgress returns the current progress (thread-safe).
func (j *Job) GetProgress() float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Progress
}

// UpdateProgress sets the progress percentage, clamped to 0-100.
func (j *Job) UpdateProgress(progress float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = min(max(progress, 0), 100)
	j.UpdatedAt = time.Now()
}

// SetInputs records the names of the selected inputs.
func (j *Job) SetInputs(imageName, audioName string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.InputImageName = imageName
	j.InputAudioName = audioName
	j.UpdatedAt = time.Now()
}

// SetDuration records the probed audio duration.
func (j *Job) SetDuration(seconds float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.DurationSeconds = seconds
	j.UpdatedAt = time.Now()
}

// SetOutput sets the download name, local path and URL of the video.
func (j *Job) SetOutput(fileName, outputPath, videoURL string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.FileName = fileName
	j.OutputPath = outputPath
	j.VideoURL = videoURL
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusComplete || j.Status == StatusFailed
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:              j.ID,
		Status:          j.Status,
		Progress:        j.Progress,
		Error:           j.Error,
		ErrorCode:       j.ErrorCode,
		InputImageName:  j.InputImageName,
		InputAudioName:  j.InputAudioName,
		DurationSeconds: j.DurationSeconds,
		FileName:        j.FileName,
		OutputPath:      j.OutputPath,
		PushToS3:        j.PushToS3,
		VideoURL:        j.VideoURL,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
}
