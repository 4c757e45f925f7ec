// Package server provides the HTTP server for the videomaker API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// UploadedFile describes one file of a multipart upload.
type UploadedFile struct {
	// Name is the client-side file name.
	Name string `validate:"required,max=255"`
	// ContentType is the MIME type the client declared. It may be empty.
	ContentType string `validate:"omitempty,max=255"`
	// Size is the number of bytes received.
	Size int64 `validate:"gte=0"`
}

// CreateJobRequest is the validated metadata of a POST /jobs upload.
// The files themselves arrive in the multipart "files" field.
type CreateJobRequest struct {
	// Files are the uploaded files in the order they were selected.
	Files []UploadedFile `validate:"max=16,dive"`
	// PushToS3 indicates whether to upload the final video to S3.
	PushToS3 bool
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Progress is the percentage of completion (0-100).
	Progress float64 `json:"progress"`
	// Error contains the error message if the job failed.
	Error string `json:"error,omitempty"`
	// Code is the stable failure code if the job failed.
	Code string `json:"code,omitempty"`
	// FileName is the suggested download name of the video.
	FileName string `json:"file_name,omitempty"`
	// DurationSeconds is the probed audio duration.
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	// VideoURL is where the finished video can be downloaded.
	VideoURL string `json:"video_url,omitempty"`
	// CreatedAt is when the job was submitted.
	CreatedAt time.Time `json:"created_at"`
}

// JobListResponse is the HTTP response for listing jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
	// Missing lists the absent inputs for MISSING_INPUTS errors.
	Missing []string `json:"missing,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Engine is the encoder engine lifecycle state.
	Engine string `json:"engine"`
	// Version is the loaded encoder version.
	Version string `json:"version,omitempty"`
}
