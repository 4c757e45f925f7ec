package media

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/videomaker/internal/storage"
)

// fakeFFprobe prints FAKE_DURATION after checking that its input exists.
const fakeFFprobe = `#!/bin/sh
for a; do last=$a; done
if [ ! -f "$last" ]; then
  echo "$last: No such file or directory" >&2
  exit 1
fi
if [ -n "$FAKE_PROBE_HANG" ]; then
  exec sleep 30
fi
if [ -n "$FAKE_PROBE_FAIL" ]; then
  echo "$last: Invalid data found when processing input" >&2
  exit 1
fi
echo "$FAKE_DURATION"
`

func installFakeFFprobe(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffprobe is a shell script")
	}
	path := filepath.Join(t.TempDir(), "ffprobe")
	require.NoError(t, os.WriteFile(path, []byte(fakeFFprobe), 0o755)) // #nosec G306 - test executable
	return path
}

func newTestProber(t *testing.T, opts ...ProberOption) (*FFprobeProber, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	return NewFFprobeProber(installFakeFFprobe(t), store, opts...), dir
}

func audioInput() Input {
	return Input{Role: RoleAudio, Name: "song.wav", ContentType: "audio/wav", Data: wavBytes}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files should be cleaned up")
}

func TestNewFFprobeProber(t *testing.T) {
	t.Run("default path", func(t *testing.T) {
		p := NewFFprobeProber("", nil)
		assert.Equal(t, "ffprobe", p.ffprobePath)
		assert.Equal(t, DefaultProbeTimeout, p.timeout)
	})

	t.Run("custom timeout", func(t *testing.T) {
		p := NewFFprobeProber("/opt/ffprobe", nil, WithProbeTimeout(5*time.Second), WithProbeTimeout(0))
		assert.Equal(t, "/opt/ffprobe", p.ffprobePath)
		assert.Equal(t, 5*time.Second, p.timeout)
	})
}

func TestProbeDuration(t *testing.T) {
	p, dir := newTestProber(t)
	t.Setenv("FAKE_DURATION", "83.450000")

	d, err := p.ProbeDuration(context.Background(), audioInput())
	require.NoError(t, err)
	assert.InDelta(t, 83.45, d, 1e-9)
	assertDirEmpty(t, dir)
}

func TestProbeDuration_Unusable(t *testing.T) {
	for _, out := range []string{"N/A", "", "0", "-1.5", "nan", "inf"} {
		t.Run(out, func(t *testing.T) {
			p, dir := newTestProber(t)
			t.Setenv("FAKE_DURATION", out)

			_, err := p.ProbeDuration(context.Background(), audioInput())
			assert.ErrorIs(t, err, ErrDurationProbe)
			assertDirEmpty(t, dir)
		})
	}
}

func TestProbeDuration_ProcessFailure(t *testing.T) {
	p, dir := newTestProber(t)
	t.Setenv("FAKE_PROBE_FAIL", "1")

	_, err := p.ProbeDuration(context.Background(), audioInput())
	require.ErrorIs(t, err, ErrDurationProbe)
	assert.Contains(t, err.Error(), "Invalid data found")
	assertDirEmpty(t, dir)
}

func TestProbeDuration_Timeout(t *testing.T) {
	p, dir := newTestProber(t, WithProbeTimeout(100*time.Millisecond))
	t.Setenv("FAKE_PROBE_HANG", "1")

	start := time.Now()
	_, err := p.ProbeDuration(context.Background(), audioInput())
	require.ErrorIs(t, err, ErrDurationProbe)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
	assertDirEmpty(t, dir)
}

func TestProbeDuration_EmptyAudio(t *testing.T) {
	p, _ := newTestProber(t)

	_, err := p.ProbeDuration(context.Background(), Input{Role: RoleAudio, Name: "empty.wav"})
	assert.ErrorIs(t, err, ErrDurationProbe)
}

func TestProbeDuration_MissingBinary(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	p := NewFFprobeProber(filepath.Join(t.TempDir(), "nope"), store)

	_, err = p.ProbeDuration(context.Background(), audioInput())
	assert.ErrorIs(t, err, ErrDurationProbe)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration(" 4.2\n")
	require.NoError(t, err)
	assert.InDelta(t, 4.2, d, 1e-9)

	_, err = ParseDuration("abc")
	assert.ErrorIs(t, err, ErrDurationProbe)
}

func TestValidateDuration(t *testing.T) {
	assert.NoError(t, ValidateDuration(0.01))
	assert.ErrorIs(t, ValidateDuration(0), ErrDurationProbe)
	assert.ErrorIs(t, ValidateDuration(-2), ErrDurationProbe)
	assert.ErrorIs(t, ValidateDuration(math.NaN()), ErrDurationProbe)
	assert.ErrorIs(t, ValidateDuration(math.Inf(1)), ErrDurationProbe)
}
