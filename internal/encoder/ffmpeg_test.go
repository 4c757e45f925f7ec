package encoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg is a shell stand-in for ffmpeg. It reports a version, records
// its arguments, emits progress lines with carriage returns and writes its
// last argument as the output file. "-fail" makes it exit with an error and
// "-hang" makes it sleep until killed.
const fakeFFmpeg = `#!/bin/sh
if [ "$1" = "-version" ]; then
  echo "ffmpeg version 6.1.1-test Copyright (c) 2000-2023 the FFmpeg developers"
  exit 0
fi
echo "$@" > args.txt
for a in "$@"; do
  if [ "$a" = "-fail" ]; then
    echo "Unrecognized option 'fail'." >&2
    exit 1
  fi
  if [ "$a" = "-hang" ]; then
    exec sleep 30
  fi
done
printf 'Input #0, image2, from image.jpg:\n' >&2
printf 'frame=    1 fps=0.0 q=0.0 size=       0kB time=00:00:01.00 bitrate=N/A\r' >&2
printf 'frame=    2 fps=0.0 q=0.0 size=       0kB time=00:00:02.50 bitrate=N/A\r' >&2
for last; do :; done
printf 'fake-mp4' > "$last"
`

// installFakeFFmpeg writes the fake binary into a temp dir and returns its path.
func installFakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(fakeFFmpeg), 0o755))
	return path
}

func newLoadedEngine(t *testing.T, opts ...Option) *FFmpegEngine {
	t.Helper()
	opts = append([]Option{WithBaseDir(t.TempDir())}, opts...)
	e := NewFFmpegEngine(installFakeFFmpeg(t), opts...)
	require.NoError(t, e.Load(context.Background()))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNewFFmpegEngine(t *testing.T) {
	t.Run("default path", func(t *testing.T) {
		e := NewFFmpegEngine("")
		assert.Equal(t, "ffmpeg", e.ffmpegPath)
		assert.Equal(t, StateUninitialized, e.State())
	})

	t.Run("custom path", func(t *testing.T) {
		e := NewFFmpegEngine("/usr/local/bin/ffmpeg")
		assert.Equal(t, "/usr/local/bin/ffmpeg", e.ffmpegPath)
	})
}

func TestFFmpegEngine_Load(t *testing.T) {
	t.Run("transitions to ready", func(t *testing.T) {
		e := newLoadedEngine(t)
		assert.Equal(t, StateReady, e.State())
		assert.Equal(t, "6.1.1-test", e.Version())
	})

	t.Run("is idempotent", func(t *testing.T) {
		e := newLoadedEngine(t)
		require.NoError(t, e.Load(context.Background()))
		assert.Equal(t, StateReady, e.State())
	})

	t.Run("accepts pinned version", func(t *testing.T) {
		e := newLoadedEngine(t, WithVersionPrefix("6.1"))
		assert.Equal(t, StateReady, e.State())
	})

	t.Run("rejects other version", func(t *testing.T) {
		e := NewFFmpegEngine(installFakeFFmpeg(t), WithBaseDir(t.TempDir()), WithVersionPrefix("7."))
		err := e.Load(context.Background())
		assert.ErrorIs(t, err, ErrVersionMismatch)
		assert.Equal(t, StateUninitialized, e.State())
	})

	t.Run("missing binary stays uninitialized", func(t *testing.T) {
		e := NewFFmpegEngine(filepath.Join(t.TempDir(), "no-such-ffmpeg"))
		err := e.Load(context.Background())
		require.Error(t, err)
		assert.Equal(t, StateUninitialized, e.State())
	})
}

func TestFFmpegEngine_NotReady(t *testing.T) {
	e := NewFFmpegEngine("")

	assert.ErrorIs(t, e.WriteFile("image.jpg", []byte("x")), ErrNotReady)
	_, err := e.ReadFile("output.mp4")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, e.Run(context.Background(), []string{"out.mp4"}), ErrNotReady)
}

func TestFFmpegEngine_Files(t *testing.T) {
	e := newLoadedEngine(t)

	t.Run("last write wins", func(t *testing.T) {
		require.NoError(t, e.WriteFile("audio.wav", []byte("first")))
		require.NoError(t, e.WriteFile("audio.wav", []byte("second")))

		data, err := e.ReadFile("audio.wav")
		require.NoError(t, err)
		assert.Equal(t, "second", string(data))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := e.ReadFile("output.mp4")
		assert.ErrorIs(t, err, ErrOutputNotFound)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, e.WriteFile("stale.mp4", []byte("x")))
		require.NoError(t, e.Remove("stale.mp4"))
		require.NoError(t, e.Remove("stale.mp4"))

		_, err := e.ReadFile("stale.mp4")
		assert.ErrorIs(t, err, ErrOutputNotFound)
	})

	t.Run("rejects escaping names", func(t *testing.T) {
		for _, name := range []string{"", ".", "..", "../x", "dir/file", `dir\file`, "/etc/passwd"} {
			assert.ErrorIs(t, e.WriteFile(name, []byte("x")), ErrInvalidPath, "name %q", name)
		}
	})
}

func TestFFmpegEngine_Run(t *testing.T) {
	t.Run("publishes log lines and writes output", func(t *testing.T) {
		e := newLoadedEngine(t)

		var lines []string
		unsubscribe := e.Logs().Subscribe(func(l Line) { lines = append(lines, l.Text) })
		defer unsubscribe()

		err := e.Run(context.Background(), []string{"-i", "image.jpg", "output.mp4"})
		require.NoError(t, err)

		data, err := e.ReadFile("output.mp4")
		require.NoError(t, err)
		assert.Equal(t, "fake-mp4", string(data))

		require.Len(t, lines, 3)
		assert.Contains(t, lines[1], "time=00:00:01.00")
		assert.Contains(t, lines[2], "time=00:00:02.50")

		args, err := e.ReadFile("args.txt")
		require.NoError(t, err)
		assert.Equal(t, "-nostdin -y -i image.jpg output.mp4", strings.TrimSpace(string(args)))
	})

	t.Run("rejected arguments", func(t *testing.T) {
		e := newLoadedEngine(t)

		err := e.Run(context.Background(), []string{"-fail", "output.mp4"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExecution)

		var execErr *ExecutionError
		require.True(t, errors.As(err, &execErr))
		assert.Contains(t, execErr.Stderr, "Unrecognized option")
		assert.Equal(t, []string{"-fail", "output.mp4"}, execErr.Args)
	})

	t.Run("context timeout kills the run", func(t *testing.T) {
		e := newLoadedEngine(t)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := e.Run(ctx, []string{"-hang", "output.mp4"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExecution)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("rejects concurrent run", func(t *testing.T) {
		e := newLoadedEngine(t)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- e.Run(ctx, []string{"-hang", "output.mp4"}) }()

		require.Eventually(t, func() bool {
			e.mu.Lock()
			defer e.mu.Unlock()
			return e.running
		}, 2*time.Second, 10*time.Millisecond)

		assert.ErrorIs(t, e.Run(context.Background(), []string{"output.mp4"}), ErrBusy)
		cancel()
		assert.Error(t, <-done)
	})
}

func TestFFmpegEngine_RunLogsSubscribers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := newLoadedEngine(t, WithLogger(logger))

	unsubscribe := e.Logs().Subscribe(func(Line) {})
	require.NoError(t, e.Run(context.Background(), []string{"output.mp4"}))
	unsubscribe()

	assert.Contains(t, buf.String(), `msg="encoder run started"`)
	assert.Contains(t, buf.String(), "log_subscribers=1")
	assert.Zero(t, e.Logs().Subscribers())
}

func TestScanLogLines(t *testing.T) {
	input := "header\nframe=1 time=00:00:01.00\rframe=2 time=00:00:02.00\r\nlast"
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanLogLines)

	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	require.NoError(t, scanner.Err())

	assert.Equal(t, []string{
		"header",
		"frame=1 time=00:00:01.00",
		"frame=2 time=00:00:02.00",
		"",
		"last",
	}, tokens)
}

func TestParseVersion(t *testing.T) {
	assert.Equal(t, "6.1.1-3ubuntu5", parseVersion([]byte("ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023\nbuilt with gcc")))
	assert.Equal(t, "something else", parseVersion([]byte("something else\n")))
}

func TestExecutionError(t *testing.T) {
	err := &ExecutionError{
		Args:   []string{"-i", "image.jpg", "output.mp4"},
		Stderr: "image.jpg: Invalid data found when processing input",
		Err:    errors.New("exit status 1"),
	}

	msg := err.Error()
	assert.Contains(t, msg, "exit status 1")
	assert.Contains(t, msg, "Invalid data found")
	assert.ErrorIs(t, err, ErrExecution)
	assert.Equal(t, "exit status 1", err.Unwrap().Error())
}

func TestLogTail(t *testing.T) {
	tail := newLogTail(2)
	tail.add("a")
	tail.add("b")
	tail.add("c")
	assert.Equal(t, "b\nc", tail.String())
}
