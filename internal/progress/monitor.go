// Package progress turns encoder log output into completion percentages.
package progress

import (
	"regexp"
	"strconv"
	"sync"
)

// timePattern matches the elapsed time ffmpeg reports on its stats line,
// e.g. "time=00:01:23.45".
var timePattern = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2})\.(\d{2})`)

// Sample is one progress observation.
type Sample struct {
	// ElapsedSeconds is the media time the encoder reported.
	ElapsedSeconds float64
	// Percent is ElapsedSeconds relative to the audio duration, capped at 100.
	Percent float64
}

// Parse extracts the elapsed time from a log line.
// It returns false when the line carries no time marker.
func Parse(line string) (float64, bool) {
	m := timePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	centis, _ := strconv.Atoi(m[4])

	return float64(hours*3600+minutes*60+seconds) + float64(centis)/100, true
}

// Percent converts elapsed seconds to a percentage of duration, capped at 100.
// A non-positive duration yields 0.
func Percent(elapsed, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	return min(100, elapsed/duration*100)
}

// Monitor converts log lines into samples for one run. Every matching line
// produces a sample; samples are neither deduplicated nor forced monotonic.
type Monitor struct {
	duration float64
	observer func(Sample)

	mu   sync.Mutex
	last Sample
	seen int
}

// NewMonitor creates a monitor for audio of the given probed duration.
// observer may be nil.
func NewMonitor(duration float64, observer func(Sample)) *Monitor {
	return &Monitor{duration: duration, observer: observer}
}

// Observe consumes one log line and reports whether it produced a sample.
func (m *Monitor) Observe(line string) bool {
	elapsed, ok := Parse(line)
	if !ok {
		return false
	}

	s := Sample{ElapsedSeconds: elapsed, Percent: Percent(elapsed, m.duration)}

	m.mu.Lock()
	m.last = s
	m.seen++
	m.mu.Unlock()

	if m.observer != nil {
		m.observer(s)
	}
	return true
}

// Last returns the most recent sample and whether any sample was produced.
func (m *Monitor) Last() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.seen > 0
}

// Count returns the number of samples produced so far.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen
}
