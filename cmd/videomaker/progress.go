package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/maauso/videomaker/internal/progress"
)

type progressReporter interface {
	Update(progress.Sample)
	Finish()
}

// newProgressReporter draws a bar on terminals and prints sampled
// percentages everywhere else.
func newProgressReporter(w io.Writer) progressReporter {
	if isTerminal(w) {
		return newBarReporter(w)
	}
	return &lineReporter{w: w, sampler: progress.NewSampler(progress.DefaultBucketSize)}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type barReporter struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newBarReporter(w io.Writer) *barReporter {
	return &barReporter{
		w: w,
		bar: progressbar.NewOptions(100,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("rendering"),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetWidth(40),
		),
	}
}

func (r *barReporter) Update(s progress.Sample) {
	_ = r.bar.Set(int(math.Floor(s.Percent)))
}

func (r *barReporter) Finish() {
	_ = r.bar.Finish()
	fmt.Fprintln(r.w)
}

type lineReporter struct {
	w       io.Writer
	sampler *progress.Sampler
}

func (r *lineReporter) Update(s progress.Sample) {
	if r.sampler.ShouldLog(s.Percent) {
		fmt.Fprintf(r.w, "rendering: %3.0f%%\n", math.Floor(s.Percent))
	}
}

func (r *lineReporter) Finish() {}
