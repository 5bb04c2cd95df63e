package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/vnetscan/vnetscan/speedtester"
)

// Result is the outcome of one detection cycle against one target.
type Result struct {
	Target        string    `csv:"target" json:"target"`
	Status        string    `csv:"status" json:"status"` // passed, partial, degraded, broken
	Reason        string    `csv:"reason" json:"reason"`
	Delay         float64   `csv:"latency_ms" json:"latencyMs"`
	Jitter        float64   `csv:"jitter_ms" json:"jitterMs"`
	DownloadSpeed float64   `csv:"download_mbps" json:"downloadMbps"`
	UploadSpeed   float64   `csv:"upload_mbps" json:"uploadMbps"`
	Quality       string    `csv:"quality" json:"quality"`
	Method        string    `csv:"method" json:"method"`
	EffectiveType string    `csv:"effective_type" json:"effectiveType"`
	Duration      int64     `csv:"duration_ms" json:"durationMs"`
	CapturedAt    time.Time `csv:"captured_at" json:"capturedAt"`

	Sample speedtester.BandwidthSample `csv:"-" json:"-"`
}

const (
	StatusPassed   = "passed"
	StatusPartial  = "partial"
	StatusDegraded = "degraded"
	StatusBroken   = "broken"
)

var ErrEmptyTarget = errors.New("empty target")

type Examiner struct {
	prober   speedtester.Prober
	logger   *log.Logger
	testOpts []speedtester.SpeedTesterOption

	Verbose bool
}

type Options struct {
	LatencySamples int `json:"latencySamples,omitempty"`
	// SampleDelay is used as given, so zero means back-to-back pings. A
	// negative value keeps the default.
	SampleDelay    time.Duration `json:"sampleDelay"`
	DownloadBytes  int64         `json:"downloadBytes,omitempty"`
	UploadBytes    int           `json:"uploadBytes,omitempty"`
	RequestTimeout time.Duration `json:"requestTimeout,omitempty"`
	FallbackFactor float64       `json:"fallbackFactor,omitempty"`
	InsecureTLS    bool          `json:"insecureTLS,omitempty"`
	Verbose        bool          `json:"-"`

	Endpoints      speedtester.Endpoints       `json:"endpoints"`
	ConnectionInfo *speedtester.ConnectionInfo `json:"connectionInfo,omitempty"`
	Logger         *log.Logger                 `json:"-"`

	// Prober replaces the HTTP transport; nil uses a shared req client.
	Prober speedtester.Prober `json:"-"`
}

func NewExaminer(opts Options) *Examiner {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = speedtester.DefaultRequestTimeout
	}
	e := &Examiner{
		prober:  opts.Prober,
		logger:  opts.Logger,
		Verbose: opts.Verbose,
	}
	if e.prober == nil {
		e.prober = speedtester.NewHTTPProber(timeout, opts.InsecureTLS)
	}

	e.testOpts = []speedtester.SpeedTesterOption{
		speedtester.WithProber(e.prober),
		speedtester.WithEndpoints(opts.Endpoints),
		speedtester.WithConnectionInfo(opts.ConnectionInfo),
		speedtester.WithLatencySamples(opts.LatencySamples),
		speedtester.WithCustomAmount(opts.DownloadBytes, opts.UploadBytes),
		speedtester.WithFallbackFactor(opts.FallbackFactor),
		speedtester.WithRequestTimeout(timeout),
		speedtester.WithLogger(opts.Logger),
	}
	if opts.SampleDelay >= 0 {
		e.testOpts = append(e.testOpts, speedtester.WithSampleDelay(opts.SampleDelay))
	}
	return e
}

// ExamineTarget runs one detection cycle against target. The returned Result is
// filled in even when err is non-nil.
func (e *Examiner) ExamineTarget(ctx context.Context, target string) (Result, error) {
	target = strings.TrimSpace(target)
	r := Result{Target: target, Status: StatusBroken}
	if target == "" {
		r.Reason = ErrEmptyTarget.Error()
		return r, ErrEmptyTarget
	}

	tester, err := e.NewTester(target)
	if err != nil {
		r.Reason = err.Error()
		return r, err
	}
	r.Target = tester.Target()

	start := time.Now()
	sample, err := tester.Detect(ctx)
	r.Duration = time.Since(start).Milliseconds()
	if err != nil {
		r.Reason = err.Error()
		return r, err
	}

	r.fill(sample)
	if e.Verbose {
		fmt.Println(r.DetailsStr())
	}
	return r, nil
}

// NewTester builds a SpeedTester for target with the examiner's options.
func (e *Examiner) NewTester(target string) (*speedtester.SpeedTester, error) {
	return speedtester.NewSpeedTester(strings.TrimSpace(target), e.testOpts...)
}

// ResultFromSample wraps a sample produced outside ExamineTarget.
func ResultFromSample(sample speedtester.BandwidthSample) Result {
	r := Result{Target: sample.Target}
	r.fill(sample)
	return r
}

func (r *Result) fill(sample speedtester.BandwidthSample) {
	r.Sample = sample
	r.Delay = sample.LatencyMs
	r.Jitter = sample.JitterMs
	r.DownloadSpeed = sample.DownloadMbps
	r.UploadSpeed = sample.UploadMbps
	r.Quality = speedtester.GetConnectionQuality(sample.DownloadMbps).Level
	r.Method = string(sample.Method)
	r.EffectiveType = string(sample.EffectiveType)
	r.CapturedAt = sample.CapturedAt

	switch {
	case sample.Degraded():
		r.Status = StatusDegraded
		r.Reason = "every probe failed"
	case len(sample.Failures) > 0:
		r.Status = StatusPartial
		r.Reason = "failed: " + strings.Join(sample.Failures, ", ")
	default:
		r.Status = StatusPassed
		r.Reason = ""
	}
}

// DetailsStr renders the result as a coloured multi-line block.
func (r Result) DetailsStr() string {
	q := speedtester.GetConnectionQuality(r.DownloadSpeed)
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", color.RedString("Target"), r.Target)
	fmt.Fprintf(&b, "%s: %s\n", color.RedString("Status"), r.Status)
	if r.Reason != "" {
		fmt.Fprintf(&b, "%s: %s\n", color.RedString("Reason"), r.Reason)
	}
	fmt.Fprintf(&b, "%s: %.2f ms (jitter %.2f ms)\n", color.RedString("Latency"), r.Delay, r.Jitter)
	fmt.Fprintf(&b, "%s: %s\n", color.RedString("Download"), speedtester.FormatSpeed(r.DownloadSpeed))
	fmt.Fprintf(&b, "%s: %s\n", color.RedString("Upload"), speedtester.FormatSpeed(r.UploadSpeed))
	fmt.Fprintf(&b, "%s: %s (%s)\n", color.RedString("Quality"), colorize(q), q.Description)
	fmt.Fprintf(&b, "%s: %s, %s\n", color.RedString("Method"), r.Method, r.EffectiveType)
	return b.String()
}

func colorize(q speedtester.Quality) string {
	switch q.Color {
	case "green":
		return color.GreenString(q.Level)
	case "cyan":
		return color.CyanString(q.Level)
	case "yellow":
		return color.YellowString(q.Level)
	case "magenta":
		return color.MagentaString(q.Level)
	default:
		return color.RedString(q.Level)
	}
}
