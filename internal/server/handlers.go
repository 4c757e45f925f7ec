package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"

	"github.com/maauso/videomaker/internal/encoder"
	"github.com/maauso/videomaker/internal/job"
	"github.com/maauso/videomaker/internal/media"
	"github.com/maauso/videomaker/internal/messages"
	"github.com/maauso/videomaker/internal/pipeline"
	"github.com/maauso/videomaker/internal/storage"
)

const (
	// DefaultMaxUploadBytes bounds the size of a POST /jobs body.
	DefaultMaxUploadBytes = 256 << 20
	// multipartMemory is how much of an upload is kept in memory before
	// spilling to disk.
	multipartMemory = 32 << 20
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service        *pipeline.Service
	validator      *validator.Validate
	logger         *slog.Logger
	maxUploadBytes int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxUploadBytes overrides DefaultMaxUploadBytes. Non-positive values are ignored.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *pipeline.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:        service,
		validator:      validator.New(),
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Engine:  string(h.service.EngineState()),
		Version: h.service.EngineVersion(),
	})
}

// CreateJob handles POST /jobs multipart uploads.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	lang := messages.Match(r.Header.Get("Accept-Language"))

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes), "UPLOAD_TOO_LARGE")
			return
		}
		h.logger.Warn("failed to parse upload",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid multipart upload", "INVALID_UPLOAD")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req, err := newCreateJobRequest(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	files, err := readUploadedFiles(r.MultipartForm.File["files"])
	if err != nil {
		h.logger.Warn("failed to read uploaded files",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "failed to read uploaded files", "INVALID_UPLOAD")
		return
	}

	createdJob, err := h.service.Submit(r.Context(), files, pipeline.SubmitOptions{
		PushToS3: req.PushToS3,
		Language: lang,
	})
	if err != nil {
		h.writeSubmitError(w, err, lang)
		return
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.Int("files", len(files)),
		slog.Bool("push_to_s3", req.PushToS3),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

func (h *Handlers) writeSubmitError(w http.ResponseWriter, err error, lang language.Tag) {
	var missing *pipeline.MissingInputsError
	switch {
	case errors.As(err, &missing):
		resp := ErrorResponse{
			Error: messages.MissingInputs(lang),
			Code:  pipeline.CodeMissingInputs,
		}
		for _, role := range missing.Missing {
			resp.Missing = append(resp.Missing, string(role))
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, encoder.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, messages.EngineNotReady(lang), pipeline.CodeEngineNotReady)
	case errors.Is(err, pipeline.ErrJobAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error(), pipeline.CodeJobAlreadyRunning)
	case errors.Is(err, storage.ErrS3NotConfigured):
		writeError(w, http.StatusBadRequest, err.Error(), pipeline.CodeS3NotConfigured)
	default:
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
	}
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeLookupError(w, jobID, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// DownloadVideo handles GET /jobs/{id}/video requests. Videos published to
// S3 are served by redirect.
func (h *Handlers) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeLookupError(w, jobID, err)
		return
	}
	if foundJob.Status != job.StatusComplete {
		writeError(w, http.StatusConflict, "job is not complete", "JOB_NOT_COMPLETE")
		return
	}
	if foundJob.PushToS3 && foundJob.VideoURL != "" {
		http.Redirect(w, r, foundJob.VideoURL, http.StatusFound)
		return
	}

	rc, foundJob, err := h.service.OpenVideo(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, encoder.ErrOutputNotFound) {
			writeError(w, http.StatusNotFound, "video not found", "VIDEO_NOT_FOUND")
			return
		}
		h.writeLookupError(w, jobID, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": foundJob.FileName,
	}))

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, foundJob.FileName, foundJob.CompletedAt, rs)
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream video",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteJob handles DELETE /jobs/{id} requests.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		if errors.Is(err, pipeline.ErrJobInProgress) {
			writeError(w, http.StatusConflict, err.Error(), "JOB_IN_PROGRESS")
			return
		}
		h.writeLookupError(w, jobID, err)
		return
	}

	h.logger.Info("job deleted", slog.String("job_id", jobID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	if errors.Is(err, pipeline.ErrJobNotComplete) {
		writeError(w, http.StatusConflict, "job is not complete", "JOB_NOT_COMPLETE")
		return
	}
	h.logger.Error("failed to get job",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
}

func toJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:              j.ID,
		Status:          string(j.Status),
		Progress:        j.Progress,
		Error:           j.Error,
		Code:            j.ErrorCode,
		FileName:        j.FileName,
		DurationSeconds: j.DurationSeconds,
		VideoURL:        j.VideoURL,
		CreatedAt:       j.CreatedAt,
	}
}

// newCreateJobRequest collects the upload metadata for validation.
func newCreateJobRequest(form *multipart.Form) (CreateJobRequest, error) {
	var req CreateJobRequest
	for _, fh := range form.File["files"] {
		req.Files = append(req.Files, UploadedFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
		})
	}

	if v := form.Value["push_to_s3"]; len(v) > 0 && v[0] != "" {
		push, err := strconv.ParseBool(v[0])
		if err != nil {
			return req, fmt.Errorf("push_to_s3: invalid boolean %q", v[0])
		}
		req.PushToS3 = push
	}
	return req, nil
}

func readUploadedFiles(headers []*multipart.FileHeader) ([]media.File, error) {
	files := make([]media.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		files = append(files, media.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
