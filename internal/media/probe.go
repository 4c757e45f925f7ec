package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds a single ffprobe invocation.
const DefaultProbeTimeout = 30 * time.Second

// ErrDurationProbe is returned when the audio duration cannot be determined.
var ErrDurationProbe = errors.New("duration probe failed")

// Prober discovers the playback duration of an audio input.
type Prober interface {
	// ProbeDuration returns the duration in seconds. The result is finite and
	// positive; anything else is reported as ErrDurationProbe.
	ProbeDuration(ctx context.Context, in Input) (float64, error)
}

// TempStore holds the scratch copy that ffprobe reads.
type TempStore interface {
	SaveTemp(ctx context.Context, name string, data io.Reader) (string, error)
	CleanupTemp(ctx context.Context, paths []string) error
}

// FFprobeProber implements Prober using the ffprobe CLI.
type FFprobeProber struct {
	ffprobePath string
	store       TempStore
	timeout     time.Duration
	logger      *slog.Logger
}

// ProberOption configures an FFprobeProber.
type ProberOption func(*FFprobeProber)

// WithProbeTimeout overrides DefaultProbeTimeout. Non-positive values are ignored.
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *FFprobeProber) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProberLogger sets the logger.
func WithProberLogger(logger *slog.Logger) ProberOption {
	return func(p *FFprobeProber) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewFFprobeProber creates a prober. If ffprobePath is empty, it defaults to
// "ffprobe" (found via PATH).
func NewFFprobeProber(ffprobePath string, store TempStore, opts ...ProberOption) *FFprobeProber {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	p := &FFprobeProber{
		ffprobePath: ffprobePath,
		store:       store,
		timeout:     DefaultProbeTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProbeDuration writes the audio to a temp file, asks ffprobe for the
// container duration and removes the temp file again.
func (p *FFprobeProber) ProbeDuration(ctx context.Context, in Input) (float64, error) {
	if len(in.Data) == 0 {
		return 0, fmt.Errorf("%w: empty audio", ErrDurationProbe)
	}

	path, err := p.store.SaveTemp(ctx, "probe"+filepath.Ext(in.Name), bytes.NewReader(in.Data))
	if err != nil {
		return 0, fmt.Errorf("%w: save temp audio: %w", ErrDurationProbe, err)
	}
	defer func() {
		if err := p.store.CleanupTemp(context.WithoutCancel(ctx), []string{path}); err != nil {
			p.logger.Warn("failed to remove probe file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("%w: ffprobe cancelled: %w", ErrDurationProbe, ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrDurationProbe, err, strings.TrimSpace(stderr.String()))
	}

	duration, err := ParseDuration(stdout.String())
	if err != nil {
		return 0, err
	}

	p.logger.Debug("probed audio duration",
		slog.String("name", in.Name),
		slog.Float64("seconds", duration),
	)
	return duration, nil
}

// ParseDuration parses ffprobe's duration output. Values that are not finite
// positive numbers are rejected with ErrDurationProbe.
func ParseDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %q: %w", ErrDurationProbe, s, err)
	}
	if err := ValidateDuration(d); err != nil {
		return 0, err
	}
	return d, nil
}

// ValidateDuration rejects NaN, infinite and non-positive durations.
func ValidateDuration(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return fmt.Errorf("%w: unusable duration %v", ErrDurationProbe, d)
	}
	return nil
}
