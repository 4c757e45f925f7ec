// Package render composes the encoder argument list that turns one still
// image and one audio clip into an H.264/AAC MP4.
package render

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Fixed engine paths and output parameters. These are part of the external
// contract of the encoder invocation and must not change.
const (
	// ImagePath is where the still image is written in the engine namespace.
	ImagePath = "image.jpg"
	// AudioPath is where the audio clip is written in the engine namespace.
	AudioPath = "audio.wav"
	// OutputPath is where the engine writes the video.
	OutputPath = "output.mp4"
	// OutputMIMEType is the MIME type of the produced video.
	OutputMIMEType = "video/mp4"

	// FrameWidth and FrameHeight are the output frame size.
	FrameWidth  = 1920
	FrameHeight = 1080
	// AudioBitrate is the AAC bitrate.
	AudioBitrate = "192k"
)

// ErrInvalidDuration is returned when the duration is not positive.
var ErrInvalidDuration = errors.New("invalid duration: must be positive")

// Job is an immutable, composed encoding job.
type Job struct {
	durationSeconds int
	args            []string
}

// DurationSeconds is the hard cap passed to -t.
func (j Job) DurationSeconds() int {
	return j.durationSeconds
}

// Args returns a copy of the argument list.
func (j Job) Args() []string {
	out := make([]string, len(j.args))
	copy(out, j.args)
	return out
}

// InputPaths returns the engine paths of the image and audio inputs.
func (j Job) InputPaths() (image, audio string) {
	return ImagePath, AudioPath
}

// OutputPath returns the engine path the job writes.
func (j Job) OutputPath() string {
	return OutputPath
}

// CeilSeconds rounds a probed duration up to whole seconds so the video is
// never shorter than the audio. Non-finite or non-positive input yields 0.
func CeilSeconds(d float64) int {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return 0
	}
	return int(math.Ceil(d))
}

// LetterboxFilter scales the input to fit within w x h keeping its aspect
// ratio and pads it with black to exactly w x h.
func LetterboxFilter(w, h int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black", w, h, w, h)
}

// Compose builds the job for a video lasting durationSeconds.
func Compose(durationSeconds int) (Job, error) {
	if durationSeconds <= 0 {
		return Job{}, fmt.Errorf("%w: got %d", ErrInvalidDuration, durationSeconds)
	}

	args := []string{
		"-framerate", "1", // One input frame per second
		"-loop", "1", // Loop the single image
		"-r", "1", // Constant output frame rate
		"-i", ImagePath,
		"-i", AudioPath,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-c:a", "aac",
		"-b:a", AudioBitrate,
		"-shortest", // Stop at the shortest stream
		"-pix_fmt", "yuv420p", // Pixel format for compatibility
		"-vf", LetterboxFilter(FrameWidth, FrameHeight),
		"-t", strconv.Itoa(durationSeconds), // Hard cap
		OutputPath,
	}

	return Job{durationSeconds: durationSeconds, args: args}, nil
}
