package speedtester

import (
	"context"
	"sync"
	"testing"
	"time"
)

// gatedProber blocks its first request until the request context ends, then
// answers every later request immediately.
type gatedProber struct {
	entered chan struct{}

	mu    sync.Mutex
	calls int
}

func (p *gatedProber) Get(ctx context.Context, url string) (int64, error) {
	p.mu.Lock()
	p.calls++
	first := p.calls == 1
	p.mu.Unlock()
	if first {
		close(p.entered)
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return 1024, nil
}

func (p *gatedProber) Post(ctx context.Context, url string, body []byte) error {
	return ctx.Err()
}

func receive(t *testing.T, ch <-chan BandwidthSample) (BandwidthSample, bool) {
	t.Helper()
	select {
	case s, ok := <-ch:
		return s, ok
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session result")
		return BandwidthSample{}, false
	}
}

func TestSessionLatestCycleWins(t *testing.T) {
	p := &gatedProber{entered: make(chan struct{})}
	st, err := NewSpeedTester("http://probe.test", WithProber(p), WithSampleDelay(0))
	if err != nil {
		t.Fatal(err)
	}
	session := NewSession(st)

	first := session.Start(context.Background())
	<-p.entered
	if !session.Running() {
		t.Fatal("expected a running cycle")
	}
	second := session.Start(context.Background())

	if s, ok := receive(t, first); ok {
		t.Fatalf("superseded cycle published %+v", s)
	}
	s, ok := receive(t, second)
	if !ok {
		t.Fatal("newest cycle published nothing")
	}
	if s.Status != StatusComplete {
		t.Errorf("Status = %s, want complete", s.Status)
	}
	latest, ok := session.Latest()
	if !ok || latest.CapturedAt != s.CapturedAt {
		t.Errorf("Latest() = %+v, %v", latest, ok)
	}
	if session.Running() {
		t.Error("session still running after result")
	}
}

func TestSessionStop(t *testing.T) {
	p := &gatedProber{entered: make(chan struct{})}
	st, err := NewSpeedTester("http://probe.test", WithProber(p), WithSampleDelay(0))
	if err != nil {
		t.Fatal(err)
	}
	session := NewSession(st)

	ch := session.Start(context.Background())
	<-p.entered
	session.Stop()

	if s, ok := receive(t, ch); ok {
		t.Fatalf("stopped cycle published %+v", s)
	}
	if session.Running() {
		t.Error("Running() = true after Stop")
	}
	if _, ok := session.Latest(); ok {
		t.Error("Latest() reported a sample after a stopped cycle")
	}
}

// slowCancelProber answers every request only after its context ends, and
// then lingers before returning.
type slowCancelProber struct {
	entered chan struct{}
	once    sync.Once
	linger  time.Duration
}

func (p *slowCancelProber) Get(ctx context.Context, url string) (int64, error) {
	p.once.Do(func() { close(p.entered) })
	<-ctx.Done()
	time.Sleep(p.linger)
	return 0, ctx.Err()
}

func (p *slowCancelProber) Post(ctx context.Context, url string, body []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

// blockingProber holds every request until release is closed.
type blockingProber struct {
	entered chan struct{}
	once    sync.Once
	release chan struct{}
}

func (p *blockingProber) Get(ctx context.Context, url string) (int64, error) {
	p.once.Do(func() { close(p.entered) })
	select {
	case <-p.release:
		return 1024, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *blockingProber) Post(ctx context.Context, url string, body []byte) error {
	return nil
}

// switchProber routes each request to the prober current at call time.
type switchProber struct {
	mu      sync.Mutex
	current Prober
}

func (p *switchProber) set(next Prober) {
	p.mu.Lock()
	p.current = next
	p.mu.Unlock()
}

func (p *switchProber) get() Prober {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *switchProber) Get(ctx context.Context, url string) (int64, error) {
	return p.get().Get(ctx, url)
}

func (p *switchProber) Post(ctx context.Context, url string, body []byte) error {
	return p.get().Post(ctx, url, body)
}

func TestSessionStateFollowsNewestCycle(t *testing.T) {
	old := &slowCancelProber{entered: make(chan struct{}), linger: 50 * time.Millisecond}
	sw := &switchProber{current: old}
	st, err := NewSpeedTester("http://probe.test", WithProber(sw), WithSampleDelay(0), WithLatencySamples(1))
	if err != nil {
		t.Fatal(err)
	}
	session := NewSession(st)
	if got := session.State(); got != StateIdle {
		t.Fatalf("initial State() = %s", got)
	}

	first := session.Start(context.Background())
	<-old.entered

	next := &blockingProber{entered: make(chan struct{}), release: make(chan struct{})}
	sw.set(next)
	second := session.Start(context.Background())

	if _, ok := receive(t, first); ok {
		t.Fatal("superseded cycle published a result")
	}
	<-next.entered
	// the cancelled cycle has returned; the newest one is still in flight
	if got := session.State(); got != StateProbing {
		t.Errorf("State() = %s while the newest cycle is probing", got)
	}

	close(next.release)
	if _, ok := receive(t, second); !ok {
		t.Fatal("newest cycle published nothing")
	}
	if got := session.State(); got != StateComplete {
		t.Errorf("State() = %s after the newest cycle, want complete", got)
	}
}
