package speedtester

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// step is one scripted probe response: it takes d on the fake clock.
type step struct {
	d   time.Duration
	n   int64
	err error
}

var errRefused = errors.New("connection refused")

// scriptedProber replays per-path steps and advances the fake clock.
type scriptedProber struct {
	clock *fakeClock

	mu     sync.Mutex
	script map[string][]step
	calls  map[string]int
	urls   []string
	bodies []int
}

func newScriptedProber(clock *fakeClock, script map[string][]step) *scriptedProber {
	return &scriptedProber{clock: clock, script: script, calls: make(map[string]int)}
}

func (p *scriptedProber) next(u string) step {
	parsed, _ := url.Parse(u)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urls = append(p.urls, u)
	steps := p.script[parsed.Path]
	i := p.calls[parsed.Path]
	p.calls[parsed.Path]++
	if i >= len(steps) {
		return step{err: errors.New("unscripted request to " + parsed.Path)}
	}
	s := steps[i]
	p.clock.Advance(s.d)
	return s
}

func (p *scriptedProber) Get(ctx context.Context, u string) (int64, error) {
	s := p.next(u)
	return s.n, s.err
}

func (p *scriptedProber) Post(ctx context.Context, u string, body []byte) error {
	s := p.next(u)
	p.mu.Lock()
	p.bodies = append(p.bodies, len(body))
	p.mu.Unlock()
	return s.err
}

func failing(n int) []step {
	out := make([]step, n)
	for i := range out {
		out[i] = step{d: time.Millisecond, err: errRefused}
	}
	return out
}
