package speedtester

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultLatencySamples = 5
	DefaultSampleDelay    = 100 * time.Millisecond
	DefaultUploadSize     = 64 * 1024
	DefaultDownloadSize   = 1 << 20
	DefaultRequestTimeout = 30 * time.Second

	// DefaultFallbackFactor scales the rate of the small fallback request up to a
	// download estimate, since a tiny response never reaches line rate.
	DefaultFallbackFactor = 10

	uploadFallbackRatio = 0.1
)

// State is the position of a SpeedTester in its detection cycle.
type State string

const (
	StateIdle     State = "idle"
	StateProbing  State = "probing"
	StateComplete State = "complete"
	StateDegraded State = "degraded"
)

// SpeedTester runs detection cycles against one vNetscan server.
type SpeedTester struct {
	base      *url.URL
	endpoints Endpoints
	prober    Prober
	netInfo   *ConnectionInfo
	logger    *log.Logger

	latencySamples int
	sampleDelay    time.Duration
	uploadSize     int
	downloadSize   int64
	fallbackFactor float64
	requestTimeout time.Duration
	insecureTLS    bool

	now func() time.Time

	mu    sync.Mutex
	state State
	// cycle numbers Detect calls; only the newest may move state
	cycle uint64
}

type SpeedTesterOption = func(s *SpeedTester)

func WithProber(p Prober) SpeedTesterOption {
	return func(s *SpeedTester) { s.prober = p }
}

func WithEndpoints(e Endpoints) SpeedTesterOption {
	return func(s *SpeedTester) { s.endpoints = e.withDefaults() }
}

// WithConnectionInfo injects the platform network information used to seed or
// override measured values.
func WithConnectionInfo(info *ConnectionInfo) SpeedTesterOption {
	return func(s *SpeedTester) { s.netInfo = info }
}

func WithLogger(l *log.Logger) SpeedTesterOption {
	return func(s *SpeedTester) { s.logger = l }
}

func WithLatencySamples(n int) SpeedTesterOption {
	return func(s *SpeedTester) {
		if n > 0 {
			s.latencySamples = n
		}
	}
}

// WithSampleDelay sets the pause between latency samples. Zero disables it.
func WithSampleDelay(d time.Duration) SpeedTesterOption {
	return func(s *SpeedTester) {
		if d >= 0 {
			s.sampleDelay = d
		}
	}
}

func WithCustomAmount(download int64, upload int) SpeedTesterOption {
	return func(s *SpeedTester) {
		if download > 0 {
			s.downloadSize = download
		}
		if upload > 0 {
			s.uploadSize = upload
		}
	}
}

func WithFallbackFactor(f float64) SpeedTesterOption {
	return func(s *SpeedTester) {
		if f > 0 {
			s.fallbackFactor = f
		}
	}
}

// WithRequestTimeout bounds every single probe request.
func WithRequestTimeout(d time.Duration) SpeedTesterOption {
	return func(s *SpeedTester) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

func WithInsecureTLS(insecure bool) SpeedTesterOption {
	return func(s *SpeedTester) { s.insecureTLS = insecure }
}

func withClock(now func() time.Time) SpeedTesterOption {
	return func(s *SpeedTester) { s.now = now }
}

// NewSpeedTester prepares a tester for the server at baseURL.
func NewSpeedTester(baseURL string, opts ...SpeedTesterOption) (*SpeedTester, error) {
	base, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	s := &SpeedTester{
		base:           base,
		endpoints:      DefaultEndpoints,
		latencySamples: DefaultLatencySamples,
		sampleDelay:    DefaultSampleDelay,
		uploadSize:     DefaultUploadSize,
		downloadSize:   DefaultDownloadSize,
		fallbackFactor: DefaultFallbackFactor,
		requestTimeout: DefaultRequestTimeout,
		now:            time.Now,
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prober == nil {
		s.prober = NewHTTPProber(s.requestTimeout, s.insecureTLS)
	}
	return s, nil
}

// Target returns the normalised base URL.
func (s *SpeedTester) Target() string { return s.base.String() }

// SampleDelay returns the pause between latency samples.
func (s *SpeedTester) SampleDelay() time.Duration { return s.sampleDelay }

// State returns the state of the most recently started cycle.
func (s *SpeedTester) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// beginCycle marks a new cycle as probing and returns its number.
func (s *SpeedTester) beginCycle() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle++
	s.state = StateProbing
	return s.cycle
}

// endCycle records the outcome of cycle unless a newer one has started.
func (s *SpeedTester) endCycle(cycle uint64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cycle == s.cycle {
		s.state = st
	}
}

func (s *SpeedTester) logf(format string, v ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, v...)
	}
}

// withTimeout scopes one probe request.
func (s *SpeedTester) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.requestTimeout)
}

// SampleLatency issues the configured number of sequential pings. Failed pings
// are skipped, never retried.
func (s *SpeedTester) SampleLatency(ctx context.Context) (LatencyReading, error) {
	reading := LatencyReading{Samples: make([]float64, 0, s.latencySamples)}
	for i := 0; i < s.latencySamples; i++ {
		if i > 0 {
			if err := sleepCtx(ctx, s.sampleDelay); err != nil {
				return reading, err
			}
		}
		if err := ctx.Err(); err != nil {
			return reading, err
		}
		reading.Attempts++

		pctx, cancel := s.withTimeout(ctx)
		start := s.now()
		_, err := s.prober.Get(pctx, resolve(s.base, s.endpoints.Ping, nil))
		elapsed := s.now().Sub(start)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return reading, ctx.Err()
			}
			s.logf("latency sample %d/%d failed: %v", i+1, s.latencySamples, err)
			continue
		}
		reading.Samples = append(reading.Samples, float64(elapsed)/float64(time.Millisecond))
	}
	return reading, nil
}

// TransferResult is the outcome of one download or upload estimate.
type TransferResult struct {
	Mbps     float64
	Bytes    int64
	Elapsed  time.Duration
	Fallback bool
	// Failures names the requests that failed while producing this estimate.
	Failures []string
}

// MeasureDownload times one download. When it fails, the fallback endpoint is
// timed instead and its rate scaled by the fallback factor.
func (s *SpeedTester) MeasureDownload(ctx context.Context) TransferResult {
	extra := url.Values{"bytes": {strconv.FormatInt(s.downloadSize, 10)}}
	n, elapsed, err := s.timedGet(ctx, resolve(s.base, s.endpoints.Download, extra))
	if err == nil {
		return TransferResult{Mbps: Round2(Mbps(n, elapsed.Seconds())), Bytes: n, Elapsed: elapsed}
	}
	s.logf("download test failed: %v", err)
	res := TransferResult{Fallback: true, Failures: []string{ProbeDownload}}
	if ctx.Err() != nil {
		return res
	}

	n, elapsed, err = s.timedGet(ctx, resolve(s.base, s.endpoints.Fallback, nil))
	if err != nil {
		s.logf("download fallback failed: %v", err)
		res.Failures = append(res.Failures, ProbeDownloadFallback)
		return res
	}
	res.Bytes = n
	res.Elapsed = elapsed
	res.Mbps = Round2(Mbps(n, elapsed.Seconds()) * s.fallbackFactor)
	return res
}

// MeasureUpload times one POST of the upload buffer. On failure the estimate is
// a tenth of downloadMbps.
func (s *SpeedTester) MeasureUpload(ctx context.Context, downloadMbps float64) TransferResult {
	body := make([]byte, s.uploadSize)

	pctx, cancel := s.withTimeout(ctx)
	defer cancel()
	start := s.now()
	err := s.prober.Post(pctx, resolve(s.base, s.endpoints.Upload, nil), body)
	elapsed := s.now().Sub(start)
	if err != nil {
		s.logf("upload test failed: %v", err)
		return TransferResult{
			Mbps:     Round2(downloadMbps * uploadFallbackRatio),
			Fallback: true,
			Failures: []string{ProbeUpload},
		}
	}
	n := int64(len(body))
	return TransferResult{Mbps: Round2(Mbps(n, elapsed.Seconds())), Bytes: n, Elapsed: elapsed}
}

func (s *SpeedTester) timedGet(ctx context.Context, u string) (int64, time.Duration, error) {
	pctx, cancel := s.withTimeout(ctx)
	defer cancel()
	start := s.now()
	n, err := s.prober.Get(pctx, u)
	return n, s.now().Sub(start), err
}

// Detect runs one full detection cycle. Probe failures are folded into the
// returned sample; the error is non-nil only when ctx is cancelled mid-cycle.
func (s *SpeedTester) Detect(ctx context.Context) (BandwidthSample, error) {
	cycle := s.beginCycle()

	reading, err := s.SampleLatency(ctx)
	if err != nil {
		s.endCycle(cycle, StateIdle)
		return BandwidthSample{}, fmt.Errorf("latency sampling interrupted: %w", err)
	}
	down := s.MeasureDownload(ctx)
	if err := ctx.Err(); err != nil {
		s.endCycle(cycle, StateIdle)
		return BandwidthSample{}, fmt.Errorf("download test interrupted: %w", err)
	}
	up := s.MeasureUpload(ctx, down.Mbps)
	if err := ctx.Err(); err != nil {
		s.endCycle(cycle, StateIdle)
		return BandwidthSample{}, fmt.Errorf("upload test interrupted: %w", err)
	}

	sample := Aggregate(s.Target(), reading, down, up, s.netInfo, s.now())
	if sample.Degraded() {
		s.endCycle(cycle, StateDegraded)
	} else {
		s.endCycle(cycle, StateComplete)
	}
	return sample, nil
}

// Aggregate combines the probe outcomes and optional platform info into a sample.
func Aggregate(target string, reading LatencyReading, down, up TransferResult, info *ConnectionInfo, at time.Time) BandwidthSample {
	var failures []string
	latencyOK := len(reading.Samples) > 0
	if !latencyOK {
		failures = append(failures, ProbeLatency)
	}
	failures = append(failures, down.Failures...)
	failures = append(failures, up.Failures...)

	downloadOK := !down.Fallback || len(down.Failures) < 2
	uploadOK := !up.Fallback
	anyOK := latencyOK || downloadOK || uploadOK

	sample := BandwidthSample{
		Target:         target,
		DownloadMbps:   Round2(down.Mbps),
		UploadMbps:     Round2(up.Mbps),
		LatencyMs:      Round2(reading.Mean()),
		JitterMs:       Round2(reading.Jitter()),
		ConnectionType: ConnUnknown,
		CapturedAt:     at,
		Method:         MethodSpeedTest,
		Status:         StatusComplete,
		Failures:       failures,
	}

	if info.Available() {
		sample.Method = MethodMixed
		if !anyOK {
			sample.Method = MethodNetworkAPI
		}
		if sample.DownloadMbps == 0 {
			sample.DownloadMbps = Round2(info.DownlinkMbps)
		}
		if sample.LatencyMs == 0 {
			sample.LatencyMs = Round2(info.RTTMs)
		}
		if sample.UploadMbps == 0 {
			sample.UploadMbps = Round2(sample.DownloadMbps * uploadFallbackRatio)
		}
		sample.EffectiveType = info.EffectiveType
	} else if !anyOK {
		sample.Status = StatusDegraded
	}
	if info != nil && info.Type != "" {
		sample.ConnectionType = info.Type
	}
	if sample.EffectiveType == "" {
		sample.EffectiveType = InferEffectiveType(sample.LatencyMs, sample.DownloadMbps)
	}
	return sample
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
