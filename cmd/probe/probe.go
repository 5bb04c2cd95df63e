package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vnetscan/vnetscan/database"
	"github.com/vnetscan/vnetscan/network"
	"github.com/vnetscan/vnetscan/pkg/config"
	pkghttp "github.com/vnetscan/vnetscan/pkg/http"
	"github.com/vnetscan/vnetscan/speedtester"
	"github.com/vnetscan/vnetscan/utils"
	"github.com/vnetscan/vnetscan/utils/customlog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ProbeCmd represents the probe command
var ProbeCmd = newProbeCommand()

// Config holds all command configuration options
type Config struct {
	Target         string
	TargetsFile    string
	OutputFile     string
	OutputType     string
	ThreadCount    int
	LatencySamples int
	SampleDelay    time.Duration
	DownloadBytes  int64
	UploadBytes    int
	Timeout        time.Duration
	InsecureTLS    bool
	Verbose        bool
	Sorted         bool
	Save           bool
	Watch          time.Duration

	DetectNetInfo bool
	DownlinkMbps  float64
	RTTMs         float64
	ConnType      string
	EffectiveType string
}

var validConnTypes = map[string]bool{
	"": true, "wifi": true, "cellular": true, "ethernet": true, "bluetooth": true,
	"wimax": true, "other": true, "none": true, "unknown": true,
}

var validEffectiveTypes = map[string]bool{"": true, "slow-2g": true, "2g": true, "3g": true, "4g": true}

// validateConfig validates the configuration options
func validateConfig(cfg *Config) error {
	if cfg.Target == "" && cfg.TargetsFile == "" {
		return errors.New("either --url or --file is required")
	}
	if cfg.Target != "" && cfg.TargetsFile != "" {
		return errors.New("--url and --file are mutually exclusive")
	}
	if cfg.Watch < 0 {
		return errors.New("--watch must not be negative")
	}
	if cfg.SampleDelay < 0 {
		return errors.New("--delay must not be negative")
	}
	if cfg.Watch > 0 && cfg.TargetsFile != "" {
		return errors.New("--watch works with a single --url only")
	}

	validOutputTypes := map[string]bool{"csv": true, "txt": true, "json": true}
	if !validOutputTypes[cfg.OutputType] {
		return fmt.Errorf("bad output format. Allowed formats: txt, csv, json")
	}
	if cfg.OutputFile != "" {
		base := strings.TrimSuffix(cfg.OutputFile, filepath.Ext(cfg.OutputFile))
		cfg.OutputFile = base + "." + cfg.OutputType
	}

	if !validConnTypes[cfg.ConnType] {
		return fmt.Errorf("invalid --conn-type %q", cfg.ConnType)
	}
	if !validEffectiveTypes[cfg.EffectiveType] {
		return fmt.Errorf("invalid --effective-type %q (slow-2g, 2g, 3g, 4g)", cfg.EffectiveType)
	}
	if cfg.DownlinkMbps < 0 || cfg.RTTMs < 0 {
		return errors.New("--downlink and --rtt must not be negative")
	}
	if cfg.DetectNetInfo && cfg.staticInfo() != nil {
		return errors.New("--netinfo cannot be combined with --downlink/--rtt/--conn-type/--effective-type")
	}
	return nil
}

func (cfg *Config) staticInfo() *speedtester.ConnectionInfo {
	info := &speedtester.ConnectionInfo{
		Type:          speedtester.ConnectionType(cfg.ConnType),
		EffectiveType: speedtester.EffectiveType(cfg.EffectiveType),
		DownlinkMbps:  cfg.DownlinkMbps,
		RTTMs:         cfg.RTTMs,
	}
	if *info == (speedtester.ConnectionInfo{}) {
		return nil
	}
	if info.Type == "" {
		info.Type = speedtester.ConnUnknown
	}
	return info
}

// mergeFileConfig fills every flag the user did not set from the config file.
func mergeFileConfig(cmd *cobra.Command, cfg *Config, file config.Config) {
	flags := cmd.Flags()
	if !flags.Changed("url") && !flags.Changed("file") && file.Probe.Target != "" {
		cfg.Target = file.Probe.Target
	}
	if !flags.Changed("thread") {
		cfg.ThreadCount = file.Probe.Threads
	}
	if !flags.Changed("samples") {
		cfg.LatencySamples = file.Probe.LatencySamples
	}
	if !flags.Changed("delay") {
		cfg.SampleDelay = file.Probe.SampleDelay
	}
	if !flags.Changed("download-size") {
		cfg.DownloadBytes = file.Probe.DownloadBytes
	}
	if !flags.Changed("upload-size") {
		cfg.UploadBytes = file.Probe.UploadBytes
	}
	if !flags.Changed("timeout") {
		cfg.Timeout = file.Probe.RequestTimeout
	}
	if !flags.Changed("insecure") {
		cfg.InsecureTLS = file.Probe.InsecureTLS
	}
	if !flags.Changed("save") {
		cfg.Save = file.Database.Save
	}
	if !flags.Changed("netinfo") {
		cfg.DetectNetInfo = file.NetInfo.Detect && cfg.staticInfo() == nil
	}
}

func (cfg *Config) options(file config.Config) pkghttp.Options {
	opts := file.ProbeOptions()
	opts.LatencySamples = cfg.LatencySamples
	opts.SampleDelay = cfg.SampleDelay
	opts.DownloadBytes = cfg.DownloadBytes
	opts.UploadBytes = cfg.UploadBytes
	opts.RequestTimeout = cfg.Timeout
	opts.InsecureTLS = cfg.InsecureTLS
	opts.Verbose = cfg.Verbose
	if info := cfg.staticInfo(); info != nil {
		opts.ConnectionInfo = info
	}
	return opts
}

// newProbeCommand creates and returns the probe command
func newProbeCommand() *cobra.Command {
	cfg := &Config{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Measure latency, jitter, download and upload speed against vNetscan servers.",
		Long: `Runs the detection cycle (latency samples, a download and an upload test) against
the probe endpoints of one or more servers started with "vnetscan serve".
Failed probes are reported per sample and never abort the cycle.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			file, err := config.LoadFrom(path)
			if err != nil {
				return err
			}
			mergeFileConfig(cmd, cfg, file)
			if err := validateConfig(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := cfg.options(file)
			if cfg.DetectNetInfo {
				opts.ConnectionInfo = detectNetInfo(ctx, cfg)
			}

			if cfg.Save {
				if err := database.InitDB(file.Database.Path); err != nil {
					return fmt.Errorf("failed to open history database: %w", err)
				}
				defer database.CloseDB()
			}

			examiner := pkghttp.NewExaminer(opts)
			switch {
			case cfg.TargetsFile != "":
				return handleMultipleTargets(ctx, examiner, cfg, opts)
			case cfg.Watch > 0:
				return handleWatch(ctx, examiner, cfg, opts)
			default:
				return handleSingleTarget(ctx, examiner, cfg, opts)
			}
		},
	}

	addFlags(cmd, cfg)
	return cmd
}

func detectNetInfo(ctx context.Context, cfg *Config) *speedtester.ConnectionInfo {
	target := ""
	if u, err := speedtester.ParseBaseURL(cfg.Target); err == nil {
		target = u.Host
		if u.Port() == "" {
			if u.Scheme == "https" {
				target += ":443"
			} else {
				target += ":80"
			}
		}
	}
	info, err := network.DetectConnection(ctx, target)
	if err != nil {
		customlog.Printf(customlog.Warning, "Network information incomplete: %v\n", err)
	}
	if !info.Available() {
		customlog.Printf(customlog.Info, "No network information available on this platform\n")
		return nil
	}
	customlog.Printf(customlog.Info, "Network information: %s, %.0f Mbps, rtt %.2f ms, %s\n",
		info.Type, info.DownlinkMbps, info.RTTMs, info.EffectiveType)
	return info
}

// handleMultipleTargets probes every target in the file on a worker pool
func handleMultipleTargets(ctx context.Context, examiner *pkghttp.Examiner, cfg *Config, opts pkghttp.Options) error {
	targets, err := utils.ParseFileByNewline(cfg.TargetsFile)
	if err != nil {
		return err
	}
	targets = utils.DeduplicateStrings(targets)
	printConfiguration(cfg, len(targets))

	runID := openRun(ctx, cfg.Save, opts, len(targets))

	var completed atomic.Int32
	testManager := pkghttp.NewTestManager(examiner, cfg.ThreadCount, cfg.Verbose, nil)
	results, err := testManager.Run(ctx, targets, func() {
		n := completed.Add(1)
		if !cfg.Verbose {
			fmt.Fprintf(os.Stderr, "\r%s %d/%d", customlog.GetColor(customlog.Processing, "[/]"), n, len(targets))
		}
	})
	if !cfg.Verbose {
		fmt.Fprintln(os.Stderr)
	}
	if errors.Is(err, context.Canceled) {
		customlog.Printf(customlog.Warning, "Interrupted, keeping %d finished result(s)\n", len(results))
	} else if err != nil {
		return err
	}

	saveRun(runID, results)
	if cfg.Sorted {
		sort.Sort(results)
	}
	printSummary(results)

	if cfg.OutputFile == "" {
		return nil
	}
	processor := pkghttp.NewResultProcessor(pkghttp.ResultProcessorOptions{
		OutputFile: cfg.OutputFile,
		OutputType: cfg.OutputType,
		Sorted:     cfg.Sorted,
	})
	if err := processor.SaveResults(results); err != nil {
		return err
	}
	customlog.Printf(customlog.Finished, "Results saved to %s\n", cfg.OutputFile)
	return nil
}

// handleSingleTarget runs one detection cycle and prints it
func handleSingleTarget(ctx context.Context, examiner *pkghttp.Examiner, cfg *Config, opts pkghttp.Options) error {
	customlog.Printf(customlog.Processing, "Probing %s...\n", cfg.Target)
	res, err := examiner.ExamineTarget(ctx, cfg.Target)
	if err != nil {
		return err
	}

	fmt.Println(res.DetailsStr())
	if res.Status != pkghttp.StatusPassed {
		customlog.Printf(customlog.Warning, "%s: %s\n", res.Status, res.Reason)
	}

	runID := openRun(ctx, cfg.Save, opts, 1)
	saveRun(runID, pkghttp.ConfigResults{&res})

	if cfg.OutputFile != "" {
		processor := pkghttp.NewResultProcessor(pkghttp.ResultProcessorOptions{
			OutputFile: cfg.OutputFile,
			OutputType: cfg.OutputType,
		})
		return processor.SaveResults(pkghttp.ConfigResults{&res})
	}
	return nil
}

// handleWatch repeats the cycle every interval. A cycle still running when the
// next one starts is cancelled, so only the newest result is printed.
func handleWatch(ctx context.Context, examiner *pkghttp.Examiner, cfg *Config, opts pkghttp.Options) error {
	tester, err := examiner.NewTester(cfg.Target)
	if err != nil {
		return err
	}
	session := speedtester.NewSession(tester)
	defer session.Stop()

	runID := openRun(ctx, cfg.Save, opts, 1)
	customlog.Printf(customlog.Info, "Watching %s every %s, press CTRL+C to stop\n", tester.Target(), cfg.Watch)

	ticker := time.NewTicker(cfg.Watch)
	defer ticker.Stop()

	results := make(chan speedtester.BandwidthSample)
	start := func() {
		out := session.Start(ctx)
		go func() {
			for s := range out {
				select {
				case results <- s:
				case <-ctx.Done():
				}
			}
		}()
	}

	start()
	for {
		select {
		case <-ctx.Done():
			closeRun(runID)
			customlog.Printf(customlog.Finished, "Stopped watching %s\n", tester.Target())
			return nil
		case <-ticker.C:
			start()
		case s := <-results:
			res := pkghttp.ResultFromSample(s)
			fmt.Printf("%s %s | %s | latency %.2f ms (jitter %.2f) | down %s | up %s | %s\n",
				customlog.GetColor(customlog.Success, "[+]"),
				s.CapturedAt.Format("15:04:05"),
				res.Status,
				s.LatencyMs, s.JitterMs,
				speedtester.FormatSpeed(s.DownloadMbps),
				speedtester.FormatSpeed(s.UploadMbps),
				s.Method)
			if runID > 0 {
				if err := database.InsertSamplesBatch(context.Background(), runID, []database.SampleRecord{
					database.NewSampleRecord(res.Status, res.Reason, s),
				}); err != nil {
					customlog.Printf(customlog.Failure, "History save failed: %v\n", err)
				}
			}
		}
	}
}

func openRun(ctx context.Context, save bool, opts pkghttp.Options, targets int) int64 {
	if !save {
		return 0
	}
	optsJSON, _ := json.Marshal(opts)
	runID, err := database.CreateProbeRun(ctx, string(optsJSON), targets, "cli")
	if err != nil {
		customlog.Printf(customlog.Failure, "Failed to create history run: %v\n", err)
		return 0
	}
	return runID
}

func closeRun(runID int64) {
	if runID == 0 {
		return
	}
	if err := database.FinishProbeRun(context.Background(), runID, time.Now()); err != nil {
		customlog.Printf(customlog.Failure, "Failed to close history run: %v\n", err)
	}
}

// saveRun stores results under runID and closes the run.
func saveRun(runID int64, results pkghttp.ConfigResults) {
	if runID == 0 {
		return
	}
	records := make([]database.SampleRecord, 0, len(results))
	for _, r := range results {
		rec := database.NewSampleRecord(r.Status, r.Reason, r.Sample)
		if rec.Target == "" {
			rec.Target = r.Target
			rec.CapturedAt = time.Now()
		}
		records = append(records, rec)
	}
	if err := database.InsertSamplesBatch(context.Background(), runID, records); err != nil {
		customlog.Printf(customlog.Failure, "History save failed: %v\n", err)
	} else {
		customlog.Printf(customlog.Success, "Saved %d sample(s) to history run #%d\n", len(records), runID)
	}
	closeRun(runID)
}

func printSummary(results pkghttp.ConfigResults) {
	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status]++
		if r.Status == pkghttp.StatusPassed || r.Status == pkghttp.StatusPartial {
			fmt.Printf("%s %-40s %8.2f ms %12s %12s\n",
				customlog.GetColor(customlog.Success, "[+]"), r.Target, r.Delay,
				speedtester.FormatSpeed(r.DownloadSpeed), speedtester.FormatSpeed(r.UploadSpeed))
		}
	}
	fmt.Printf("\n%s: %d  %s: %d  %s: %d  %s: %d\n",
		color.GreenString("Passed"), counts[pkghttp.StatusPassed],
		color.YellowString("Partial"), counts[pkghttp.StatusPartial],
		color.MagentaString("Degraded"), counts[pkghttp.StatusDegraded],
		color.RedString("Broken"), counts[pkghttp.StatusBroken])
}

// printConfiguration prints the current configuration
func printConfiguration(cfg *Config, total int) {
	fmt.Printf("%s: %d\n%s: %d\n%s: %d\n%s: %d KB\n%s: %d KB\n%s: %s\n%s: %t\n%s: %s\n%s: %t\n\n",
		color.RedString("Total targets"), total,
		color.RedString("Thread count"), cfg.ThreadCount,
		color.RedString("Latency samples"), cfg.LatencySamples,
		color.RedString("Download size"), cfg.DownloadBytes/1024,
		color.RedString("Upload size"), cfg.UploadBytes/1024,
		color.RedString("Request timeout"), cfg.Timeout,
		color.RedString("Insecure TLS"), cfg.InsecureTLS,
		color.RedString("Output type"), cfg.OutputType,
		color.RedString("Save to history"), cfg.Save)
}

// addFlags adds all command-line flags to the command
func addFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	flags.StringVarP(&cfg.Target, "url", "u", "", "Base URL of the vNetscan server to probe")
	flags.StringVarP(&cfg.TargetsFile, "file", "f", "", "Read target base URLs from a file, one per line")
	flags.IntVarP(&cfg.ThreadCount, "thread", "t", config.DefaultThreads, "Number of targets probed concurrently")
	flags.IntVarP(&cfg.LatencySamples, "samples", "k", speedtester.DefaultLatencySamples, "Latency samples per cycle")
	flags.DurationVar(&cfg.SampleDelay, "delay", speedtester.DefaultSampleDelay, "Pause between latency samples (0 sends them back to back)")
	flags.Int64Var(&cfg.DownloadBytes, "download-size", speedtester.DefaultDownloadSize, "Bytes requested by the download test")
	flags.IntVar(&cfg.UploadBytes, "upload-size", speedtester.DefaultUploadSize, "Bytes sent by the upload test")
	flags.DurationVar(&cfg.Timeout, "timeout", speedtester.DefaultRequestTimeout, "Per-request timeout")
	flags.BoolVarP(&cfg.InsecureTLS, "insecure", "e", false, "Skip TLS certificate verification")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Print every result as it arrives")
	flags.StringVarP(&cfg.OutputType, "type", "x", "txt", "Output type (txt, csv, json)")
	flags.StringVarP(&cfg.OutputFile, "out", "o", "", "Write results to this file")
	flags.BoolVarP(&cfg.Sorted, "sort", "s", true, "Sort results (lowest latency, then highest speed)")
	flags.BoolVar(&cfg.Save, "save", false, "Store samples in the history database")
	flags.DurationVarP(&cfg.Watch, "watch", "w", 0, "Repeat the cycle at this interval until interrupted")

	flags.BoolVar(&cfg.DetectNetInfo, "netinfo", false, "Read connection type, link speed and kernel RTT from the OS")
	flags.Float64Var(&cfg.DownlinkMbps, "downlink", 0, "Known downlink in Mbps")
	flags.Float64Var(&cfg.RTTMs, "rtt", 0, "Known round-trip time in ms")
	flags.StringVar(&cfg.ConnType, "conn-type", "", "Known connection type (wifi, cellular, ethernet, ...)")
	flags.StringVar(&cfg.EffectiveType, "effective-type", "", "Known effective type (slow-2g, 2g, 3g, 4g)")
}
