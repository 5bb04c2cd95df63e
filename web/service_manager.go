package web

import (
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"

	pkghttp "github.com/vnetscan/vnetscan/pkg/http"
	"github.com/vnetscan/vnetscan/speedtester"
)

var errServiceNotRunning = errors.New("service not running")

// ServiceManager owns the server-side probe and monitor services.
type ServiceManager struct {
	mu      sync.Mutex
	logger  *log.Logger
	hub     *Hub
	probe   *ProbeService
	monitor *MonitorService
}

func NewServiceManager(logger *log.Logger, hub *Hub) *ServiceManager {
	return &ServiceManager{
		logger:  logger,
		hub:     hub,
		probe:   NewProbeService(logger, hub),
		monitor: NewMonitorService(logger, hub),
	}
}

func (sm *ServiceManager) recoverAndLogPanic() {
	if r := recover(); r != nil {
		sm.logger.Printf("[CRITICAL] A goroutine panicked: %v\n%s\n", r, string(debug.Stack()))
	}
}

func (sm *ServiceManager) StartProbe(req pkghttp.ProbeRequest) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.probe.Start(req)
}

func (sm *ServiceManager) StopProbe() error {
	return stopService(sm.probe)
}

func (sm *ServiceManager) ProbeStatus() ServiceState {
	return sm.probe.Status()
}

func (sm *ServiceManager) ProbeResults() pkghttp.ConfigResults {
	return sm.probe.Results()
}

func (sm *ServiceManager) StartMonitor(req MonitorRequest) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.monitor.Start(req)
}

func (sm *ServiceManager) StopMonitor() error {
	return stopService(sm.monitor)
}

func (sm *ServiceManager) MonitorStatus() ServiceState {
	return sm.monitor.Status()
}

func (sm *ServiceManager) MonitorLatest() (speedtester.BandwidthSample, bool) {
	return sm.monitor.Latest()
}

func (sm *ServiceManager) MonitorCycleState() speedtester.State {
	return sm.monitor.CycleState()
}

// StopAll stops whatever is running, used on server shutdown.
func (sm *ServiceManager) StopAll() {
	defer sm.recoverAndLogPanic()
	for _, svc := range []ManagedService{sm.probe, sm.monitor} {
		if err := stopService(svc); err != nil && !errors.Is(err, errServiceNotRunning) {
			sm.logger.Printf("Failed to stop %s service: %v", svc.Type(), err)
		}
	}
}

func stopService(svc ManagedService) error {
	switch svc.Status() {
	case StateRunning, StateStarting:
		return svc.Stop()
	default:
		return fmt.Errorf("%s: %w", svc.Type(), errServiceNotRunning)
	}
}
