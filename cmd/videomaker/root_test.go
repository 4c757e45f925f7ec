package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/maauso/videomaker/internal/pipeline"
	"github.com/maauso/videomaker/internal/progress"
)

func TestLocaleToTag(t *testing.T) {
	tests := []struct {
		locale string
		want   string
	}{
		{"fr_FR.UTF-8", "fr-FR"},
		{"en_US", "en-US"},
		{"de_DE@euro", "de-DE"},
		{"C", ""},
		{"POSIX", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			assert.Equal(t, tt.want, localeToTag(tt.locale))
		})
	}
}

func TestResolveLanguage(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "fr_FR.UTF-8")

	assert.Equal(t, language.French, resolveLanguage(""))
	assert.Equal(t, language.English, resolveLanguage("en"))

	t.Setenv("LANG", "C")
	assert.Equal(t, language.English, resolveLanguage(""))
}

func TestReadInputs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3"), 0o600))

	files, err := readInputs([]string{path})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "song.mp3", files[0].Name)
	assert.Empty(t, files[0].ContentType)
	assert.Equal(t, []byte("ID3"), files[0].Data)

	_, err = readInputs([]string{filepath.Join(dir, "missing.png")})
	assert.Error(t, err)
}

func TestWriteVideo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "videos")

	path, err := writeVideo(dir, &pipeline.Artifact{FileName: "song.mp4", Data: []byte("mp4")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "song.mp4"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4"), data)
}

func TestLineReporter(t *testing.T) {
	var buf bytes.Buffer
	r := newProgressReporter(&buf)
	require.IsType(t, &lineReporter{}, r)

	for _, p := range []float64{0, 4, 12.5, 19, 55, 100, 100} {
		r.Update(progress.Sample{Percent: p})
	}
	r.Finish()

	assert.Equal(t, "rendering:   0%\nrendering:  12%\nrendering:  55%\nrendering: 100%\n", buf.String())
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := newRootCommand()

	out := cmd.Flags().Lookup("output")
	require.NotNil(t, out)
	assert.Equal(t, "o", out.Shorthand)
	assert.Equal(t, ".", out.DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("lang"))

	check, _, err := cmd.Find([]string{"check"})
	require.NoError(t, err)
	assert.Equal(t, "check", check.Name())
}

const (
	fakeFFmpeg = `#!/bin/sh
if [ "$1" = "-version" ]; then
  echo "ffmpeg version 6.1.1-test Copyright (c) 2000-2023 the FFmpeg developers"
  exit 0
fi
printf 'frame=    1 fps=0.0 q=0.0 size=       0kB time=00:00:05.00 bitrate=N/A\r' >&2
for last; do :; done
printf 'fake-mp4' > "$last"
`
	fakeFFprobe = `#!/bin/sh
echo 4.2
`
)

// installFakeTools points the CLI configuration at shell scripts standing in
// for ffmpeg and ffprobe.
func installFakeTools(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake encoder tools are shell scripts")
	}
	bin := t.TempDir()
	ffmpeg := filepath.Join(bin, "ffmpeg")
	ffprobe := filepath.Join(bin, "ffprobe")
	require.NoError(t, os.WriteFile(ffmpeg, []byte(fakeFFmpeg), 0o755))   // #nosec G306 - test executable
	require.NoError(t, os.WriteFile(ffprobe, []byte(fakeFFprobe), 0o755)) // #nosec G306 - test executable

	t.Setenv("FFMPEG_PATH", ffmpeg)
	t.Setenv("FFPROBE_PATH", ffprobe)
	t.Setenv("FFMPEG_VERSION_PREFIX", "")
	t.Setenv("TEMP_DIR", t.TempDir())
	t.Setenv("S3_BUCKET", "")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("LOG_FORMAT", "text")
}

func writeInput(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestRunRender_WritesVideoNamedAfterAudio(t *testing.T) {
	installFakeTools(t)

	in := t.TempDir()
	image := writeInput(t, in, "cover.png", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	audio := writeInput(t, in, "song.wav", "RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00")
	out := filepath.Join(t.TempDir(), "videos")

	var stdout, stderr bytes.Buffer
	err := runRender(context.Background(), &stdout, &stderr, []string{image, audio}, renderOptions{
		outputDir: out,
		lang:      "en",
	})
	require.NoError(t, err, stderr.String())

	want := filepath.Join(out, "song.mp4")
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "fake-mp4", string(data))
	assert.Equal(t, "Video saved to "+want+"\n", stdout.String())
	assert.Contains(t, stderr.String(), "rendering: 100%")
}

func TestRunRender_MissingInputs(t *testing.T) {
	// The engine must not be needed to report absent inputs.
	t.Setenv("FFMPEG_PATH", "/nonexistent/bin/ffmpeg")
	t.Setenv("TEMP_DIR", t.TempDir())

	in := t.TempDir()
	image := writeInput(t, in, "cover.png", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	tests := []struct {
		name  string
		lang  string
		paths []string
		want  string
	}{
		{"no files", "en", nil, "Please select an image and an audio file."},
		{"image only", "en", []string{image}, "Please select an image and an audio file."},
		{"image only french", "fr", []string{image}, "Veuillez sélectionner une image et un fichier audio."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := runRender(context.Background(), &stdout, &stderr, tt.paths, renderOptions{
				outputDir: t.TempDir(),
				lang:      tt.lang,
			})
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.Empty(t, stdout.String())
			assert.Empty(t, stderr.String())
		})
	}
}
