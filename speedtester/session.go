package speedtester

import (
	"context"
	"sync"
)

// Session serialises detection cycles of one SpeedTester: starting a cycle
// cancels the one in flight, and only the newest cycle may publish a result.
type Session struct {
	tester *SpeedTester

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	latest *BandwidthSample
}

func NewSession(tester *SpeedTester) *Session {
	return &Session{tester: tester}
}

// Start begins a new cycle. The returned channel yields the sample if this
// cycle is still the newest when it finishes, and is closed either way.
func (s *Session) Start(parent context.Context) <-chan BandwidthSample {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.mu.Unlock()

	out := make(chan BandwidthSample, 1)
	go func() {
		defer close(out)
		defer cancel()

		sample, err := s.tester.Detect(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			return
		}
		s.cancel = nil
		if err != nil {
			return
		}
		s.latest = &sample
		out <- sample
	}()
	return out
}

// Stop cancels the cycle in flight, if any.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
}

// Running reports whether a cycle is in flight.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// State reports where the newest cycle is. Superseded cycles never move it.
func (s *Session) State() State {
	return s.tester.State()
}

// Latest returns the most recent published sample.
func (s *Session) Latest() (BandwidthSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return BandwidthSample{}, false
	}
	return *s.latest, true
}
