package encoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// stderrTailLines is how many log lines an ExecutionError carries.
	stderrTailLines = 20
	// waitDelay bounds how long Run waits for output pipes after the process is killed.
	waitDelay = 2 * time.Second
)

// runnerFlags are prepended to every run: never read stdin, always
// overwrite outputs.
var runnerFlags = []string{"-nostdin", "-y"}

// Compile-time check that FFmpegEngine implements Engine.
var _ Engine = (*FFmpegEngine)(nil)

// FFmpegEngine implements Engine with the ffmpeg CLI. Its namespace is a
// private working directory created by Load; runs execute with that
// directory as the working directory so relative names resolve inside it.
type FFmpegEngine struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath    string
	versionPrefix string
	baseDir       string
	logger        *slog.Logger
	logs          *LogStream

	// loadMu serializes Load so concurrent callers see a single load.
	loadMu sync.Mutex

	mu      sync.Mutex
	state   State
	workDir string
	version string
	running bool
}

// Option configures an FFmpegEngine.
type Option func(*FFmpegEngine)

// WithVersionPrefix pins the engine version. Load fails with
// ErrVersionMismatch unless the reported version starts with prefix.
func WithVersionPrefix(prefix string) Option {
	return func(e *FFmpegEngine) {
		e.versionPrefix = strings.TrimSpace(prefix)
	}
}

// WithBaseDir sets the directory under which the engine namespace is created.
func WithBaseDir(dir string) Option {
	return func(e *FFmpegEngine) {
		e.baseDir = dir
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(e *FFmpegEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewFFmpegEngine creates an unloaded engine.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegEngine(ffmpegPath string, opts ...Option) *FFmpegEngine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	e := &FFmpegEngine{
		ffmpegPath: ffmpegPath,
		logger:     slog.Default(),
		logs:       NewLogStream(),
		state:      StateUninitialized,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load resolves the ffmpeg binary, checks its version and creates the
// engine namespace. A failed load leaves the engine uninitialized.
func (e *FFmpegEngine) Load(ctx context.Context) error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	if e.State() == StateReady {
		return nil
	}
	e.setState(StateLoading)

	version, workDir, err := e.load(ctx)
	if err != nil {
		e.setState(StateUninitialized)
		return err
	}

	e.mu.Lock()
	e.version = version
	e.workDir = workDir
	e.state = StateReady
	e.mu.Unlock()

	e.logger.Info("encoder engine ready",
		slog.String("version", version),
		slog.String("work_dir", workDir),
	)
	return nil
}

func (e *FFmpegEngine) load(ctx context.Context) (string, string, error) {
	binary, err := exec.LookPath(e.ffmpegPath)
	if err != nil {
		return "", "", fmt.Errorf("locate ffmpeg: %w", err)
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	out, err := exec.CommandContext(ctx, binary, "-version").Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", "", fmt.Errorf("ffmpeg load cancelled: %w", ctx.Err())
		}
		return "", "", fmt.Errorf("query ffmpeg version: %w", err)
	}

	version := parseVersion(out)
	if e.versionPrefix != "" && !strings.HasPrefix(version, e.versionPrefix) {
		return "", "", fmt.Errorf("%w: want %s*, got %q", ErrVersionMismatch, e.versionPrefix, version)
	}

	if e.baseDir != "" {
		if err := os.MkdirAll(e.baseDir, 0750); err != nil {
			return "", "", fmt.Errorf("create engine base directory: %w", err)
		}
	}
	workDir, err := os.MkdirTemp(e.baseDir, "engine-*")
	if err != nil {
		return "", "", fmt.Errorf("create engine namespace: %w", err)
	}

	e.ffmpegPath = binary
	return version, workDir, nil
}

// parseVersion extracts the version token from "ffmpeg version X ..." output.
func parseVersion(out []byte) string {
	firstLine, _, _ := bytes.Cut(out, []byte("\n"))
	fields := strings.Fields(string(firstLine))
	if len(fields) >= 3 && fields[1] == "version" {
		return fields[2]
	}
	return strings.TrimSpace(string(firstLine))
}

// State reports the lifecycle state.
func (e *FFmpegEngine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *FFmpegEngine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Version reports the ffmpeg version detected by Load.
func (e *FFmpegEngine) Version() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Logs returns the engine log stream.
func (e *FFmpegEngine) Logs() *LogStream {
	return e.logs
}

// WriteFile stores data under name in the engine namespace.
func (e *FFmpegEngine) WriteFile(name string, data []byte) error {
	path, err := e.resolve(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write engine file %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the bytes stored under name.
func (e *FFmpegEngine) ReadFile(name string) ([]byte, error) {
	path, err := e.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304 - path is confined to the engine namespace
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrOutputNotFound, name)
		}
		return nil, fmt.Errorf("read engine file %s: %w", name, err)
	}
	return data, nil
}

// Remove deletes name from the engine namespace.
func (e *FFmpegEngine) Remove(name string) error {
	path, err := e.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove engine file %s: %w", name, err)
	}
	return nil
}

// resolve maps a namespace name to a path inside the work directory.
func (e *FFmpegEngine) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateReady {
		return "", ErrNotReady
	}
	return filepath.Join(e.workDir, name), nil
}

// Run executes ffmpeg with args inside the engine namespace, publishing every
// stderr line to the log stream. Cancelling ctx kills the process.
func (e *FFmpegEngine) Run(ctx context.Context, args []string) error {
	e.mu.Lock()
	if e.state != StateReady {
		e.mu.Unlock()
		return ErrNotReady
	}
	if e.running {
		e.mu.Unlock()
		return ErrBusy
	}
	e.running = true
	dir := e.workDir
	binary := e.ffmpegPath
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	fullArgs := make([]string, 0, len(runnerFlags)+len(args))
	fullArgs = append(fullArgs, runnerFlags...)
	fullArgs = append(fullArgs, args...)

	e.logger.Debug("encoder run started",
		slog.Int("args", len(args)),
		slog.Int("log_subscribers", e.logs.Subscribers()),
	)

	// #nosec G204 - binary is set by the application; args come from the job composer
	cmd := exec.CommandContext(ctx, binary, fullArgs...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	pr, pw := io.Pipe()
	cmd.Stderr = pw

	tail := newLogTail(stderrTailLines)
	var runErr error

	var g errgroup.Group
	g.Go(func() error {
		runErr = cmd.Run()
		_ = pw.Close()
		return nil
	})
	g.Go(func() error {
		return e.pump(pr, tail)
	})
	pumpErr := g.Wait()

	if runErr != nil {
		if ctx.Err() != nil {
			return &ExecutionError{
				Args:   args,
				Stderr: tail.String(),
				Err:    fmt.Errorf("ffmpeg cancelled: %w", ctx.Err()),
			}
		}
		return &ExecutionError{
			Args:   args,
			Stderr: tail.String(),
			Err:    runErr,
		}
	}
	if pumpErr != nil {
		e.logger.Warn("encoder log stream interrupted",
			slog.String("error", pumpErr.Error()),
		)
	}
	return nil
}

// pump publishes lines read from r. On a read error it keeps draining r so
// the process never blocks on a full pipe.
func (e *FFmpegEngine) pump(r io.Reader, tail *logTail) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanLogLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tail.add(line)
		e.logs.Publish(line)
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		return fmt.Errorf("read ffmpeg output: %w", err)
	}
	return nil
}

// scanLogLines is a bufio.SplitFunc that ends lines at '\n' or '\r'.
// ffmpeg redraws its stats line with a bare carriage return.
func scanLogLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Close removes the engine namespace and returns the engine to the
// uninitialized state.
func (e *FFmpegEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.workDir == "" {
		return nil
	}
	err := os.RemoveAll(e.workDir)
	e.workDir = ""
	e.state = StateUninitialized
	if err != nil {
		return fmt.Errorf("remove engine namespace: %w", err)
	}
	return nil
}
