package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/alitto/pond/v2"
	"github.com/gocarina/gocsv"
	"github.com/vnetscan/vnetscan/speedtester"
	"github.com/vnetscan/vnetscan/utils"
	"github.com/vnetscan/vnetscan/utils/customlog"
)

var ErrNoTargets = errors.New("no targets to probe")

// ProbeRequest encapsulates all parameters for a batch probe job.
type ProbeRequest struct {
	Targets     []string `json:"targets"`
	ThreadCount int      `json:"threadCount"`
	Save        bool     `json:"save"`
	Options     `json:"-"`
}

// ConfigResults represents a slice of probe results
type ConfigResults []*Result

// ResultProcessor handles the processing and storage of probe results
type ResultProcessor struct {
	outputFile string
	outputType string
	sorted     bool
}

type ResultProcessorOptions struct {
	OutputFile string
	OutputType string
	Sorted     bool
}

// NewResultProcessor creates a new ResultProcessor instance
func NewResultProcessor(opts ResultProcessorOptions) *ResultProcessor {
	return &ResultProcessor{
		outputFile: opts.OutputFile,
		outputType: opts.OutputType,
		sorted:     opts.Sorted,
	}
}

// Sort interface implementation for ConfigResults.
// Usable results first, then lower latency, higher download, higher upload.
func (cr ConfigResults) Len() int { return len(cr) }
func (cr ConfigResults) Less(i, j int) bool {
	ui, uj := cr[i].usable(), cr[j].usable()
	if ui != uj {
		return ui
	}
	if cr[i].Delay != cr[j].Delay {
		return cr[i].Delay < cr[j].Delay
	}
	if cr[i].DownloadSpeed != cr[j].DownloadSpeed {
		return cr[i].DownloadSpeed > cr[j].DownloadSpeed
	}
	return cr[i].UploadSpeed > cr[j].UploadSpeed
}
func (cr ConfigResults) Swap(i, j int) { cr[i], cr[j] = cr[j], cr[i] }

func (r *Result) usable() bool {
	return r.Status == StatusPassed || r.Status == StatusPartial
}

// TestManager handles the concurrent probing of targets
type TestManager struct {
	examiner    *Examiner
	logger      *log.Logger // Optional logger for web UI
	threadCount int
	verbose     bool
}

// NewTestManager creates a new TestManager instance
func NewTestManager(examiner *Examiner, threadCount int, verbose bool, logger *log.Logger) *TestManager {
	if threadCount < 1 {
		threadCount = 1
	}
	return &TestManager{
		examiner:    examiner,
		threadCount: threadCount,
		verbose:     verbose,
		logger:      logger,
	}
}

// RunTests probes multiple targets concurrently.
// It accepts an optional onProgress callback which is fired after each target.
func (tm *TestManager) RunTests(ctx context.Context, targets []string, resultsChan chan<- *Result, onProgress func()) {
	pool := pond.NewPool(tm.threadCount)
	defer pool.Stop()

	group := pool.NewGroupContext(ctx)
	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}
		target := target
		group.Submit(func() {
			defer func() {
				if onProgress != nil {
					onProgress()
				}
			}()

			gctx := group.Context()
			if gctx.Err() != nil {
				return
			}

			res, err := tm.examiner.ExamineTarget(gctx, target)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				if tm.logger != nil {
					tm.logger.Printf("[-] Error: %s - broken target: %s\n", err, target)
				} else if tm.verbose {
					customlog.Printf(customlog.Failure, "Error: %s - broken target: %s\n", err, target)
				}
			}

			select {
			case resultsChan <- &res:
				if res.Status == StatusPassed && tm.logger != nil {
					tm.logger.Printf("[+] SUCCESS | %s | Latency: %.2fms | Down: %s\n",
						res.Target, res.Delay, res.formatDownload())
				}
			case <-gctx.Done():
			}
		})
	}
	group.Wait()
}

// Run is the blocking form of RunTests: it collects every result.
func (tm *TestManager) Run(ctx context.Context, targets []string, onProgress func()) (ConfigResults, error) {
	targets = utils.DeduplicateStrings(targets)
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	resultsChan := make(chan *Result, len(targets))
	tm.RunTests(ctx, targets, resultsChan, onProgress)
	close(resultsChan)

	results := make(ConfigResults, 0, len(targets))
	for r := range resultsChan {
		results = append(results, r)
	}
	return results, ctx.Err()
}

// SaveResults saves the probe results to a file
func (rp *ResultProcessor) SaveResults(results ConfigResults) error {
	if rp.sorted {
		sort.Sort(results)
	}

	switch rp.outputType {
	case "txt":
		return rp.saveTxtResults(results)
	case "csv":
		return rp.saveCSVResults(results)
	case "json":
		return rp.saveJSONResults(results)
	default:
		return fmt.Errorf("unsupported output type: %s", rp.outputType)
	}
}

// saveTxtResults writes one line per usable target
func (rp *ResultProcessor) saveTxtResults(results ConfigResults) error {
	var lines []string
	for _, v := range results {
		if v.usable() {
			lines = append(lines, fmt.Sprintf("%s | %.2fms | %s | %s",
				v.Target, v.Delay, v.formatDownload(), v.Quality))
		}
	}

	content := strings.Join(lines, "\n")
	if err := utils.WriteIntoFile(rp.outputFile, []byte(content)); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	customlog.Printf(customlog.Finished, "A total of %d reachable targets have been saved to %s\n",
		len(lines), rp.outputFile)
	return nil
}

// saveCSVResults saves results in CSV format
func (rp *ResultProcessor) saveCSVResults(results ConfigResults) error {
	// gocsv does not add the extension
	csvFile := rp.outputFile
	if csvFile != "-" && !strings.HasSuffix(csvFile, ".csv") {
		csvFile += ".csv"
	}

	out, err := gocsv.MarshalString(&results)
	if err != nil {
		return fmt.Errorf("failed to marshal CSV: %w", err)
	}

	if err := utils.WriteIntoFile(csvFile, []byte(out)); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	customlog.Printf(customlog.Finished, "A total of %d targets (with %d reachable) have been saved to %s\n",
		len(results), results.usableCount(), csvFile)
	return nil
}

func (rp *ResultProcessor) saveJSONResults(results ConfigResults) error {
	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := utils.WriteIntoFile(rp.outputFile, out); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	customlog.Printf(customlog.Finished, "A total of %d targets have been saved to %s\n", len(results), rp.outputFile)
	return nil
}

func (cr ConfigResults) usableCount() int {
	n := 0
	for _, v := range cr {
		if v.usable() {
			n++
		}
	}
	return n
}

func (r *Result) formatDownload() string {
	return speedtester.FormatSpeed(r.DownloadSpeed)
}
