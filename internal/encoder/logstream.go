package encoder

import "sync"

// Line is one log line emitted by the engine.
type Line struct {
	// Seq increases by one for every published line.
	Seq int64
	// Text is the line without its terminator.
	Text string
}

// LogFunc receives log lines.
type LogFunc func(Line)

type subscriber struct {
	id int
	fn LogFunc
}

// LogStream is an ordered stream of engine log lines with any number of
// subscribers. Each subscriber sees every line published after it
// subscribed, in publication order, on the publishing goroutine.
type LogStream struct {
	mu      sync.Mutex
	nextID  int
	nextSeq int64
	subs    []subscriber

	// deliver serializes Publish so ordering holds across publishers.
	deliver sync.Mutex
}

// NewLogStream creates an empty stream.
func NewLogStream() *LogStream {
	return &LogStream{}
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is safe to call more than once.
func (s *LogStream) Subscribe(fn LogFunc) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

// Publish sends text to every current subscriber and returns the line.
func (s *LogStream) Publish(text string) Line {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.nextSeq++
	line := Line{Seq: s.nextSeq, Text: text}
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(line)
	}
	return line
}

// Subscribers returns the number of registered subscribers.
func (s *LogStream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *LogStream) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}
