package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vnetscan/vnetscan/database"
	pkghttp "github.com/vnetscan/vnetscan/pkg/http"
	"github.com/vnetscan/vnetscan/speedtester"
	"github.com/vnetscan/vnetscan/utils"
)

// ServiceState represents the lifecycle state of a managed service.
type ServiceState string

const (
	StateIdle     ServiceState = "idle"
	StateStarting ServiceState = "starting"
	StateRunning  ServiceState = "running"
	StateStopping ServiceState = "stopping"
	StateFinished ServiceState = "finished" // kept until the next Start
	StateError    ServiceState = "error"
)

// ManagedService defines the contract for a background service managed by the ServiceManager.
type ManagedService interface {
	Start(config interface{}) error
	Stop() error
	Status() ServiceState
	Type() string
}

// BaseService provides common functionality for all managed services.
type BaseService struct {
	mu          sync.Mutex
	state       ServiceState
	cancelFunc  context.CancelFunc
	wg          sync.WaitGroup
	logger      *log.Logger
	hub         *Hub
	serviceType string
}

func NewBaseService(serviceType string, logger *log.Logger, hub *Hub) *BaseService {
	return &BaseService{
		state:       StateIdle,
		logger:      logger,
		hub:         hub,
		serviceType: serviceType,
	}
}

func (s *BaseService) recoverAndLogPanic() {
	if r := recover(); r != nil {
		s.logger.Printf("[CRITICAL] Goroutine for service '%s' panicked: %v\n%s\n", s.serviceType, r, string(debug.Stack()))
		s.SetState(StateError)
	}
}

// SetState safely updates the service's state.
func (s *BaseService) SetState(newState ServiceState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState
}

// Status safely returns the current state of the service.
func (s *BaseService) Status() ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// beginLocked moves an idle service to starting. Callers hold s.mu.
func (s *BaseService) beginLocked() (context.Context, error) {
	if s.state == StateRunning || s.state == StateStarting || s.state == StateStopping {
		return nil, fmt.Errorf("%s service is already running", s.serviceType)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel
	s.state = StateStarting
	s.wg.Add(1)
	return ctx, nil
}

// markRunning promotes starting to running unless Stop got there first.
func (s *BaseService) markRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStarting {
		return false
	}
	s.state = StateRunning
	return true
}

// Stop cancels the service's context and waits for it to finish.
func (s *BaseService) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning && s.state != StateStarting {
		s.mu.Unlock()
		return fmt.Errorf("service '%s' is not running or starting", s.serviceType)
	}

	s.state = StateStopping
	s.logger.Printf("[%s] Stop signal received. Cancelling context.", strings.ToUpper(s.serviceType))
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Printf("[%s] Service stopped successfully.", strings.ToUpper(s.serviceType))

	// stopped = idle in the dashboard
	s.hub.BroadcastJSON(s.serviceType+"_status", "stopped")
	return nil
}

func (s *BaseService) Type() string {
	return s.serviceType
}

func (s *BaseService) broadcastStatus(status string) {
	s.hub.BroadcastJSON(s.serviceType+"_status", status)
}

// reportProgress broadcasts completed/total every 500ms while the service runs.
func (s *BaseService) reportProgress(ctx context.Context, completed *atomic.Int32, total int) {
	if total == 0 {
		return
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// a stale task must not report over a newer one
			if s.Status() != StateRunning {
				return
			}
			s.hub.BroadcastJSON(s.serviceType+"_progress", map[string]int{
				"completed": int(completed.Load()),
				"total":     total,
			})
		case <-ctx.Done():
			return
		}
	}
}

// openRun creates a history run when persistence is requested and available.
func (s *BaseService) openRun(ctx context.Context, save bool, opts interface{}, targets int) int64 {
	if !save || database.DB == nil {
		return 0
	}
	optsJSON, _ := json.Marshal(opts)
	runID, err := database.CreateProbeRun(ctx, string(optsJSON), targets, "server-"+s.serviceType)
	if err != nil {
		s.logger.Printf("Warning: failed to create history run: %v", err)
		return 0
	}
	return runID
}

func (s *BaseService) closeRun(runID int64) {
	if runID == 0 {
		return
	}
	if err := database.FinishProbeRun(context.Background(), runID, time.Now()); err != nil {
		s.logger.Printf("Warning: failed to close history run %d: %v", runID, err)
	}
}

func (s *BaseService) saveResults(runID int64, batch []*pkghttp.Result) {
	if runID == 0 || len(batch) == 0 {
		return
	}
	records := make([]database.SampleRecord, 0, len(batch))
	for _, res := range batch {
		rec := database.NewSampleRecord(res.Status, res.Reason, res.Sample)
		if rec.Target == "" {
			rec.Target = res.Target
		}
		if rec.CapturedAt.IsZero() {
			rec.CapturedAt = time.Now()
		}
		records = append(records, rec)
	}
	// saves run after cancellation too, so they get their own context
	if err := database.InsertSamplesBatch(context.Background(), runID, records); err != nil {
		s.logger.Printf("History save failed: %v", err)
	}
}

// --- Probe Service ---

// ProbeService runs one batch of detection cycles over a list of targets.
type ProbeService struct {
	*BaseService

	resultsMu sync.RWMutex
	results   pkghttp.ConfigResults
}

func NewProbeService(logger *log.Logger, hub *Hub) *ProbeService {
	return &ProbeService{BaseService: NewBaseService("probe", logger, hub)}
}

func (p *ProbeService) Start(config interface{}) error {
	req, ok := config.(pkghttp.ProbeRequest)
	if !ok {
		return fmt.Errorf("invalid config type for probe service")
	}
	req.Targets = utils.DeduplicateStrings(req.Targets)
	if len(req.Targets) == 0 {
		return pkghttp.ErrNoTargets
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, err := p.beginLocked()
	if err != nil {
		return err
	}

	p.resultsMu.Lock()
	p.results = nil
	p.resultsMu.Unlock()

	go p.run(ctx, req)
	return nil
}

// Results returns the last batch's results, best first.
func (p *ProbeService) Results() pkghttp.ConfigResults {
	p.resultsMu.RLock()
	defer p.resultsMu.RUnlock()
	out := make(pkghttp.ConfigResults, len(p.results))
	copy(out, p.results)
	return out
}

func (p *ProbeService) run(ctx context.Context, req pkghttp.ProbeRequest) {
	defer p.wg.Done()
	defer p.recoverAndLogPanic()
	defer func() {
		if st := p.Status(); st != StateError && st != StateFinished {
			p.SetState(StateIdle)
		}
	}()

	if !p.markRunning() {
		return
	}
	p.broadcastStatus("running")
	p.logger.Printf("Starting probe of %d target(s) with %d thread(s).", len(req.Targets), req.ThreadCount)

	total := len(req.Targets)
	var completed atomic.Int32
	go p.reportProgress(ctx, &completed, total)

	req.Options.Logger = p.logger
	examiner := pkghttp.NewExaminer(req.Options)
	runID := p.openRun(ctx, req.Save, req.Options, total)
	defer p.closeRun(runID)

	testManager := pkghttp.NewTestManager(examiner, req.ThreadCount, false, p.logger)
	resultsChan := make(chan *pkghttp.Result, req.ThreadCount)

	var consumerWg sync.WaitGroup
	consumerWg.Add(1)
	go func() {
		defer consumerWg.Done()
		p.consumeResults(ctx, resultsChan, runID)
	}()

	testManager.RunTests(ctx, req.Targets, resultsChan, func() {
		completed.Add(1)
	})
	close(resultsChan)
	consumerWg.Wait()

	if ctx.Err() != nil {
		// Stop() sends the 'stopped' message
		return
	}

	p.SetState(StateFinished)
	p.broadcastStatus("finished")
	p.logger.Printf("Probe finished: %d result(s).", len(p.Results()))
}

func (p *ProbeService) consumeResults(ctx context.Context, resultsChan <-chan *pkghttp.Result, runID int64) {
	const saveBatchSize = 50
	const saveInterval = 5 * time.Second
	batch := make([]*pkghttp.Result, 0, saveBatchSize)
	ticker := time.NewTicker(saveInterval)
	defer ticker.Stop()

	save := func() {
		p.saveResults(runID, batch)
		batch = make([]*pkghttp.Result, 0, saveBatchSize)
	}

	for {
		select {
		case result, ok := <-resultsChan:
			if !ok {
				save()
				return
			}
			p.hub.BroadcastJSON("probe_result", result.Sample)
			p.resultsMu.Lock()
			p.results = append(p.results, result)
			sort.Sort(p.results)
			p.resultsMu.Unlock()

			batch = append(batch, result)
			if len(batch) >= saveBatchSize {
				save()
			}
		case <-ticker.C:
			save()
		case <-ctx.Done():
			// drain so the pool workers are not left blocked
			for result := range resultsChan {
				batch = append(batch, result)
			}
			save()
			return
		}
	}
}

// --- Monitor Service ---

// MonitorRequest configures a repeating detection cycle against one target.
type MonitorRequest struct {
	Target   string
	Interval time.Duration
	Save     bool
	Options  pkghttp.Options
}

// MonitorService re-runs the detection cycle on an interval. A cycle that is
// still running when the next tick fires is cancelled and replaced.
type MonitorService struct {
	*BaseService

	sessionMu sync.Mutex
	session   *speedtester.Session
}

func NewMonitorService(logger *log.Logger, hub *Hub) *MonitorService {
	return &MonitorService{BaseService: NewBaseService("monitor", logger, hub)}
}

func (m *MonitorService) Start(config interface{}) error {
	req, ok := config.(MonitorRequest)
	if !ok {
		return fmt.Errorf("invalid config type for monitor service")
	}
	if req.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}
	req.Options.Logger = m.logger
	tester, err := pkghttp.NewExaminer(req.Options).NewTester(req.Target)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, err := m.beginLocked()
	if err != nil {
		return err
	}

	session := speedtester.NewSession(tester)
	m.sessionMu.Lock()
	m.session = session
	m.sessionMu.Unlock()

	go m.run(ctx, session, req)
	return nil
}

// Latest returns the newest published sample of the current or last monitor.
func (m *MonitorService) Latest() (speedtester.BandwidthSample, bool) {
	m.sessionMu.Lock()
	session := m.session
	m.sessionMu.Unlock()
	if session == nil {
		return speedtester.BandwidthSample{}, false
	}
	return session.Latest()
}

// CycleState reports the detection-cycle state of the current monitor, or idle
// when none has been started.
func (m *MonitorService) CycleState() speedtester.State {
	m.sessionMu.Lock()
	session := m.session
	m.sessionMu.Unlock()
	if session == nil {
		return speedtester.StateIdle
	}
	return session.State()
}

func (m *MonitorService) run(ctx context.Context, session *speedtester.Session, req MonitorRequest) {
	defer m.wg.Done()
	defer m.recoverAndLogPanic()
	defer func() {
		if m.Status() != StateError {
			m.SetState(StateIdle)
		}
	}()
	defer session.Stop()

	if !m.markRunning() {
		return
	}
	m.broadcastStatus("running")
	m.logger.Printf("Monitoring %s every %s.", req.Target, req.Interval)

	runID := m.openRun(ctx, req.Save, req.Options, 1)
	defer m.closeRun(runID)

	ticker := time.NewTicker(req.Interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	cycle := func() {
		out := session.Start(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sample, ok := <-out
			if !ok {
				return
			}
			res := pkghttp.ResultFromSample(sample)
			m.hub.BroadcastJSON("monitor_result", sample)
			m.saveResults(runID, []*pkghttp.Result{&res})
		}()
	}

	cycle()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycle()
		}
	}
}
