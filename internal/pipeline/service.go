package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/text/language"

	"github.com/maauso/videomaker/internal/encoder"
	"github.com/maauso/videomaker/internal/job"
	"github.com/maauso/videomaker/internal/media"
	"github.com/maauso/videomaker/internal/progress"
	"github.com/maauso/videomaker/internal/storage"
)

// SubmitOptions configures a submitted job.
type SubmitOptions struct {
	// PushToS3 publishes the video to S3 instead of serving it locally.
	PushToS3 bool
	// Language selects the language of user-facing job messages.
	Language language.Tag
}

// Service runs pipeline jobs one at a time and keeps their records and videos.
type Service struct {
	pipeline  *Pipeline
	repo      job.Repository
	storage   storage.Storage
	logger    *slog.Logger
	s3Enabled bool
	async     bool

	running atomic.Bool
	wg      sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithS3Publishing allows jobs to request S3 publishing.
func WithS3Publishing(enabled bool) ServiceOption {
	return func(s *Service) { s.s3Enabled = enabled }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAsync controls whether Submit processes jobs in the background
// (the default) or before returning.
func WithAsync(async bool) ServiceOption {
	return func(s *Service) { s.async = async }
}

// NewService creates a Service.
func NewService(p *Pipeline, repo job.Repository, store storage.Storage, opts ...ServiceOption) *Service {
	s := &Service{
		pipeline: p,
		repo:     repo,
		storage:  store,
		logger:   slog.Default(),
		async:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates files and starts a job for them. Missing inputs, an
// unloaded engine and a job already in flight are reported immediately.
func (s *Service) Submit(ctx context.Context, files []media.File, opts SubmitOptions) (*job.Job, error) {
	if state := s.pipeline.Engine().State(); state != encoder.StateReady {
		return nil, fmt.Errorf("%w: state %s", encoder.ErrNotReady, state)
	}

	if c := media.Classify(files); !c.Complete() {
		return nil, &MissingInputsError{Missing: c.Missing()}
	}

	if opts.PushToS3 && !s.s3Enabled {
		return nil, storage.ErrS3NotConfigured
	}

	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrJobAlreadyRunning
	}

	j := job.New()
	j.PushToS3 = opts.PushToS3

	if err := s.repo.Save(ctx, j); err != nil {
		s.running.Store(false)
		return nil, fmt.Errorf("save job: %w", err)
	}

	s.logger.Info("video job submitted",
		slog.String("job_id", j.ID),
		slog.Int("files", len(files)),
		slog.Bool("push_to_s3", opts.PushToS3),
	)

	if !s.async {
		defer s.running.Store(false)
		_, _ = s.Process(ctx, j, files, opts)
		return j.Clone(), nil
	}

	snapshot := j.Clone()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		_, _ = s.Process(context.WithoutCancel(ctx), j, files, opts)
	}()

	return snapshot, nil
}

// Process runs the pipeline for j, saving the record on every state change
// and progress sample, and stores the finished video. It does not take the
// single-job guard; use Submit for that.
func (s *Service) Process(ctx context.Context, j *job.Job, files []media.File, opts SubmitOptions) (*Artifact, error) {
	lang := opts.Language
	if lang == language.Und {
		lang = language.English
	}

	save := func(j *job.Job) {
		if err := s.repo.Save(context.WithoutCancel(ctx), j); err != nil {
			s.logger.Error("failed to save job",
				slog.String("job_id", j.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	artifact, err := s.pipeline.ProduceVideo(ctx, j, files,
		WithLanguage(lang),
		WithStateChange(save),
		WithProgress(func(progress.Sample) { save(j) }),
		WithPublisher(s.publish),
	)
	save(j)
	return artifact, err
}

// publish stores the artifact locally and, when requested, on S3.
func (s *Service) publish(ctx context.Context, j *job.Job, a *Artifact) error {
	path, err := s.storage.SaveTemp(ctx, "video-"+j.ID+".mp4", bytes.NewReader(a.Data))
	if err != nil {
		return fmt.Errorf("store video: %w", err)
	}

	url := "/jobs/" + j.ID + "/video"
	if j.PushToS3 {
		key := fmt.Sprintf("videos/%s/%s", j.ID, a.FileName)
		u, err := s.storage.UploadToS3(ctx, key, bytes.NewReader(a.Data))
		if err != nil {
			_ = s.storage.CleanupTemp(context.WithoutCancel(ctx), []string{path})
			return err
		}
		url = u
		s.logger.Info("video published to S3",
			slog.String("job_id", j.ID),
			slog.String("key", key),
		)
	}

	a.URL = url
	j.SetOutput(a.FileName, path, url)
	return nil
}

// GetJob returns the job with the given ID.
func (s *Service) GetJob(ctx context.Context, id string) (*job.Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, oldest first.
func (s *Service) ListJobs(ctx context.Context) ([]*job.Job, error) {
	return s.repo.List(ctx)
}

// OpenVideo opens the locally stored video of a completed job.
// The caller is responsible for closing the returned ReadCloser.
func (s *Service) OpenVideo(ctx context.Context, id string) (io.ReadCloser, *job.Job, error) {
	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if j.Status != job.StatusComplete {
		return nil, j, fmt.Errorf("%w: status %s", ErrJobNotComplete, j.Status)
	}
	if j.OutputPath == "" {
		return nil, j, encoder.ErrOutputNotFound
	}

	rc, err := s.storage.LoadTemp(ctx, j.OutputPath)
	if err != nil {
		return nil, j, fmt.Errorf("%w: %w", encoder.ErrOutputNotFound, err)
	}
	return rc, j, nil
}

// DeleteJob removes a finished job and its stored video. Jobs that have not
// reached COMPLETE or FAILED, including queued IDLE ones, are refused.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !j.IsTerminal() {
		return ErrJobInProgress
	}

	if j.OutputPath != "" {
		if err := s.storage.CleanupTemp(ctx, []string{j.OutputPath}); err != nil {
			s.logger.Warn("failed to remove video file",
				slog.String("job_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	return s.repo.Delete(ctx, id)
}

// Running reports whether a job is in flight.
func (s *Service) Running() bool {
	return s.running.Load()
}

// EngineState reports the engine lifecycle state.
func (s *Service) EngineState() encoder.State {
	return s.pipeline.Engine().State()
}

// EngineVersion reports the loaded engine version.
func (s *Service) EngineVersion() string {
	return s.pipeline.Engine().Version()
}

// Wait blocks until background jobs have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
