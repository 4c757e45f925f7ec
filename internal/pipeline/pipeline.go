// Package pipeline turns one image and one audio clip into an MP4 by driving
// the encoder engine, and runs those renders as tracked jobs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/maauso/videomaker/internal/encoder"
	"github.com/maauso/videomaker/internal/job"
	"github.com/maauso/videomaker/internal/media"
	"github.com/maauso/videomaker/internal/messages"
	"github.com/maauso/videomaker/internal/progress"
	"github.com/maauso/videomaker/internal/render"
)

// DefaultRunTimeout bounds a single encoder run.
const DefaultRunTimeout = 30 * time.Minute

// fallbackFileName is used when the audio name yields no usable base name.
const fallbackFileName = "video"

// Artifact is a produced video.
type Artifact struct {
	Data            []byte
	MIMEType        string
	FileName        string
	DurationSeconds int
	Args            []string
	// URL is where the video was published, if it was.
	URL string
}

// Publisher stores a finished artifact before its job is marked complete.
// It may set Artifact.URL.
type Publisher func(ctx context.Context, j *job.Job, a *Artifact) error

// Pipeline produces videos with an engine and a duration prober.
type Pipeline struct {
	engine     encoder.Engine
	prober     media.Prober
	runTimeout time.Duration
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRunTimeout overrides DefaultRunTimeout. Non-positive values are ignored.
func WithRunTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.runTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Pipeline.
func New(engine encoder.Engine, prober media.Prober, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:     engine,
		prober:     prober,
		runTimeout: DefaultRunTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Engine returns the engine the pipeline drives.
func (p *Pipeline) Engine() encoder.Engine {
	return p.engine
}

// RunOption configures a single ProduceVideo call.
type RunOption func(*runConfig)

type runConfig struct {
	onProgress func(progress.Sample)
	onState    func(*job.Job)
	publish    Publisher
	lang       language.Tag
}

// WithProgress registers an observer for every progress sample of the run.
func WithProgress(fn func(progress.Sample)) RunOption {
	return func(c *runConfig) { c.onProgress = fn }
}

// WithStateChange registers an observer called after every job transition.
func WithStateChange(fn func(*job.Job)) RunOption {
	return func(c *runConfig) { c.onState = fn }
}

// WithPublisher stores the artifact before the job completes. A publisher
// error fails the job.
func WithPublisher(fn Publisher) RunOption {
	return func(c *runConfig) { c.publish = fn }
}

// WithLanguage selects the language of the message recorded for missing inputs.
func WithLanguage(tag language.Tag) RunOption {
	return func(c *runConfig) { c.lang = tag }
}

// ProduceVideo renders files into an MP4, advancing j through its states.
// If j is nil a new job is created. On failure j ends FAILED with a stable
// error code and the returned error matches one of the package sentinels.
func (p *Pipeline) ProduceVideo(ctx context.Context, j *job.Job, files []media.File, opts ...RunOption) (*Artifact, error) {
	if j == nil {
		j = job.New()
	}
	cfg := runConfig{lang: language.English}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := p.logger.With(slog.String("job_id", j.ID))

	if state := p.engine.State(); state != encoder.StateReady {
		return nil, p.fail(j, &cfg, logger, fmt.Errorf("%w: state %s", encoder.ErrNotReady, state))
	}

	if err := p.advance(j, &cfg, job.StatusValidating); err != nil {
		return nil, err
	}

	c := media.Classify(files)
	for _, d := range c.Discarded {
		logger.Info("input replaced by a later file",
			slog.String("role", string(d.Role)),
			slog.String("name", d.Name),
		)
	}
	if !c.Complete() {
		return nil, p.fail(j, &cfg, logger, &MissingInputsError{Missing: c.Missing()})
	}
	j.SetInputs(c.Image.Name, c.Audio.Name)

	if err := p.advance(j, &cfg, job.StatusProbing); err != nil {
		return nil, err
	}

	duration, err := p.probe(ctx, *c.Audio)
	if err != nil {
		return nil, p.fail(j, &cfg, logger, err)
	}
	j.SetDuration(duration)

	rj, err := render.Compose(render.CeilSeconds(duration))
	if err != nil {
		return nil, p.fail(j, &cfg, logger, err)
	}

	if err := p.stage(rj, c.Image.Data, c.Audio.Data); err != nil {
		return nil, p.fail(j, &cfg, logger, err)
	}

	if err := p.advance(j, &cfg, job.StatusRunning); err != nil {
		return nil, err
	}

	logger.Info("encoding video",
		slog.String("image", c.Image.Name),
		slog.String("audio", c.Audio.Name),
		slog.Float64("duration_seconds", duration),
		slog.Int("cap_seconds", rj.DurationSeconds()),
	)

	if err := p.run(ctx, j, &cfg, logger, rj, duration); err != nil {
		return nil, p.fail(j, &cfg, logger, err)
	}

	data, err := p.engine.ReadFile(rj.OutputPath())
	if err != nil {
		return nil, p.fail(j, &cfg, logger, err)
	}

	artifact := &Artifact{
		Data:            data,
		MIMEType:        render.OutputMIMEType,
		FileName:        OutputFileName(c.Audio.Name),
		DurationSeconds: rj.DurationSeconds(),
		Args:            rj.Args(),
	}

	if cfg.publish != nil {
		if err := cfg.publish(ctx, j, artifact); err != nil {
			return nil, p.fail(j, &cfg, logger, fmt.Errorf("publish video: %w", err))
		}
	}

	if err := p.advance(j, &cfg, job.StatusComplete); err != nil {
		return nil, err
	}

	logger.Info("video ready",
		slog.String("file_name", artifact.FileName),
		slog.Int("bytes", len(artifact.Data)),
	)
	return artifact, nil
}

func (p *Pipeline) probe(ctx context.Context, audio media.Input) (float64, error) {
	d, err := p.prober.ProbeDuration(ctx, audio)
	if err != nil {
		if !errors.Is(err, media.ErrDurationProbe) {
			err = fmt.Errorf("%w: %w", media.ErrDurationProbe, err)
		}
		return 0, err
	}
	if err := media.ValidateDuration(d); err != nil {
		return 0, err
	}
	return d, nil
}

// stage writes the inputs into the engine namespace and removes a stale output.
func (p *Pipeline) stage(rj render.Job, image, audio []byte) error {
	imagePath, audioPath := rj.InputPaths()
	if err := p.engine.WriteFile(imagePath, image); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if err := p.engine.WriteFile(audioPath, audio); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	if err := p.engine.Remove(rj.OutputPath()); err != nil {
		return fmt.Errorf("remove stale output: %w", err)
	}
	return nil
}

// run executes the composed job while a monitor turns the engine log into
// progress samples. The monitor is detached when the run returns.
func (p *Pipeline) run(ctx context.Context, j *job.Job, cfg *runConfig, logger *slog.Logger, rj render.Job, duration float64) error {
	sampler := progress.NewSampler(progress.DefaultBucketSize)
	monitor := progress.NewMonitor(duration, func(s progress.Sample) {
		j.UpdateProgress(s.Percent)
		if cfg.onProgress != nil {
			cfg.onProgress(s)
		}
		if sampler.ShouldLog(s.Percent) {
			logger.Info("encoding progress",
				slog.Float64("percent", s.Percent),
				slog.Float64("elapsed_seconds", s.ElapsedSeconds),
			)
		}
	})

	unsubscribe := p.engine.Logs().Subscribe(func(l encoder.Line) {
		logger.Debug("engine log", slog.Int64("seq", l.Seq), slog.String("line", l.Text))
		monitor.Observe(l.Text)
	})
	defer unsubscribe()

	runCtx, cancel := context.WithTimeout(ctx, p.runTimeout)
	defer cancel()

	if err := p.engine.Run(runCtx, rj.Args()); err != nil {
		return err
	}

	if last, ok := monitor.Last(); ok {
		logger.Info("encoder finished",
			slog.Int("samples", monitor.Count()),
			slog.Float64("last_percent", last.Percent),
			slog.Float64("last_elapsed_seconds", last.ElapsedSeconds),
		)
	} else {
		logger.Warn("encoder finished without progress markers")
	}
	return nil
}

func (p *Pipeline) advance(j *job.Job, cfg *runConfig, status job.Status) error {
	if err := j.TransitionTo(status); err != nil {
		return fmt.Errorf("job %s to %s: %w", j.ID, status, err)
	}
	if cfg.onState != nil {
		cfg.onState(j)
	}
	return nil
}

// fail records err on the job and returns it unchanged.
func (p *Pipeline) fail(j *job.Job, cfg *runConfig, logger *slog.Logger, err error) error {
	code := ErrorCode(err)
	msg := err.Error()
	if code == CodeMissingInputs {
		msg = messages.MissingInputs(cfg.lang)
	}

	if ferr := j.Fail(code, msg); ferr != nil {
		logger.Error("failed to record job failure",
			slog.String("error", ferr.Error()),
			slog.String("status", string(j.GetStatus())),
		)
		return err
	}
	if cfg.onState != nil {
		cfg.onState(j)
	}

	logger.Error("video job failed",
		slog.String("code", code),
		slog.String("error", err.Error()),
	)
	return err
}

// OutputFileName derives the download name from the audio file name: the
// last extension is replaced by ".mp4". Names without an extension, or whose
// only dot is the leading one, keep their full name.
func OutputFileName(audioName string) string {
	name := audioName
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	if strings.TrimSpace(name) == "" {
		name = fallbackFileName
	}
	return name + ".mp4"
}
