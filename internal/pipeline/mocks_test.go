package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/maauso/videomaker/internal/encoder"
	"github.com/maauso/videomaker/internal/media"
)

// mockEngine implements encoder.Engine for testing. Logs is a real stream so
// Run hooks can publish lines to whoever subscribed.
type mockEngine struct {
	mock.Mock
	logs *encoder.LogStream
}

func newMockEngine() *mockEngine {
	return &mockEngine{logs: encoder.NewLogStream()}
}

func (m *mockEngine) Load(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockEngine) State() encoder.State {
	args := m.Called()
	return args.Get(0).(encoder.State)
}

func (m *mockEngine) Version() string {
	args := m.Called()
	return args.String(0)
}

func (m *mockEngine) WriteFile(name string, data []byte) error {
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *mockEngine) ReadFile(name string) ([]byte, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockEngine) Remove(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *mockEngine) Logs() *encoder.LogStream {
	return m.logs
}

func (m *mockEngine) Run(ctx context.Context, runArgs []string) error {
	args := m.Called(ctx, runArgs)
	return args.Error(0)
}

// emit returns a Run hook that publishes lines on the engine log stream.
func (m *mockEngine) emit(lines ...string) func(mock.Arguments) {
	return func(mock.Arguments) {
		for _, l := range lines {
			m.logs.Publish(l)
		}
	}
}

// mockProber implements media.Prober for testing.
type mockProber struct {
	mock.Mock
}

func (m *mockProber) ProbeDuration(ctx context.Context, in media.Input) (float64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(float64), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func inputFiles() []media.File {
	return []media.File{
		{Name: "cover.jpg", ContentType: "image/jpeg", Data: []byte("img")},
		{Name: "song.mp3", ContentType: "audio/mpeg", Data: []byte("snd")},
	}
}

// expectRun prepares eng and prober for a successful render of inputFiles.
func expectRun(t *testing.T, eng *mockEngine, prober *mockProber, duration float64, output []byte, lines ...string) {
	t.Helper()
	eng.On("State").Return(encoder.StateReady)
	prober.On("ProbeDuration", mock.Anything, mock.MatchedBy(func(in media.Input) bool {
		return in.Role == media.RoleAudio
	})).Return(duration, nil)
	eng.On("WriteFile", "image.jpg", mock.Anything).Return(nil)
	eng.On("WriteFile", "audio.wav", mock.Anything).Return(nil)
	eng.On("Remove", "output.mp4").Return(nil)
	eng.On("Run", mock.Anything, mock.Anything).Run(eng.emit(lines...)).Return(nil)
	eng.On("ReadFile", "output.mp4").Return(output, nil)
}

func runArgs(t *testing.T, eng *mockEngine) []string {
	t.Helper()
	for _, c := range eng.Calls {
		if c.Method == "Run" {
			return c.Arguments.Get(1).([]string)
		}
	}
	t.Fatal("Run was not called")
	return nil
}
