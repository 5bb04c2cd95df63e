package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/vnetscan/vnetscan/database"
	pkghttp "github.com/vnetscan/vnetscan/pkg/http"
	"github.com/vnetscan/vnetscan/speedtester"
)

const defaultHistoryLimit = 50

// APIHandler holds dependencies for the control API endpoints.
type APIHandler struct {
	manager *ServiceManager
	// defaults apply to every request field left empty
	defaults pkghttp.Options
	threads  int
	save     bool
}

func NewAPIHandler(manager *ServiceManager, defaults pkghttp.Options, threads int, save bool) *APIHandler {
	return &APIHandler{manager: manager, defaults: defaults, threads: threads, save: save}
}

// RegisterRoutes sets up the control API routes behind wrap.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("/api/v1/probe/start", wrap(http.HandlerFunc(h.handleProbeStart)))
	mux.Handle("/api/v1/probe/stop", wrap(http.HandlerFunc(h.handleProbeStop)))
	mux.Handle("/api/v1/probe/status", wrap(http.HandlerFunc(h.handleProbeStatus)))
	mux.Handle("/api/v1/probe/history", wrap(http.HandlerFunc(h.handleProbeHistory)))
	mux.Handle("/api/v1/monitor/start", wrap(http.HandlerFunc(h.handleMonitorStart)))
	mux.Handle("/api/v1/monitor/stop", wrap(http.HandlerFunc(h.handleMonitorStop)))
	mux.Handle("/api/v1/monitor/status", wrap(http.HandlerFunc(h.handleMonitorStatus)))
}

// probeOptions is the JSON shape of the tunables a client may override.
type probeOptions struct {
	LatencySamples  int                         `json:"latencySamples"`
	SampleDelayMs   *int                        `json:"sampleDelayMs"`
	DownloadBytes   int64                       `json:"downloadBytes"`
	UploadBytes     int                         `json:"uploadBytes"`
	RequestTimeoutS int                         `json:"requestTimeoutSec"`
	InsecureTLS     bool                        `json:"insecureTLS"`
	ConnectionInfo  *speedtester.ConnectionInfo `json:"connectionInfo"`
}

func (h *APIHandler) options(o probeOptions) (pkghttp.Options, error) {
	opts := h.defaults
	if o.SampleDelayMs != nil && *o.SampleDelayMs < 0 {
		return opts, errors.New("probe options must not be negative")
	}
	if o.LatencySamples < 0 || o.DownloadBytes < 0 || o.UploadBytes < 0 || o.RequestTimeoutS < 0 {
		return opts, errors.New("probe options must not be negative")
	}
	if o.LatencySamples > 0 {
		opts.LatencySamples = o.LatencySamples
	}
	if o.SampleDelayMs != nil {
		opts.SampleDelay = time.Duration(*o.SampleDelayMs) * time.Millisecond
	}
	if o.DownloadBytes > 0 {
		opts.DownloadBytes = o.DownloadBytes
	}
	if o.UploadBytes > 0 {
		opts.UploadBytes = o.UploadBytes
	}
	if o.RequestTimeoutS > 0 {
		opts.RequestTimeout = time.Duration(o.RequestTimeoutS) * time.Second
	}
	if o.InsecureTLS {
		opts.InsecureTLS = true
	}
	if o.ConnectionInfo != nil {
		opts.ConnectionInfo = o.ConnectionInfo
	}
	return opts, nil
}

// --- Probe Handlers ---

func (h *APIHandler) handleProbeStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var body struct {
		Targets     []string `json:"targets"`
		ThreadCount int      `json:"threadCount"`
		Save        *bool    `json:"save"`
		probeOptions
	}
	if err := decodeJSONBody(w, r, &body); err != nil {
		writeJSONError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	for _, t := range body.Targets {
		if _, err := speedtester.ParseBaseURL(t); err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	opts, err := h.options(body.probeOptions)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := pkghttp.ProbeRequest{
		Targets:     body.Targets,
		ThreadCount: body.ThreadCount,
		Save:        h.save,
		Options:     opts,
	}
	if req.ThreadCount <= 0 {
		req.ThreadCount = h.threads
	}
	if body.Save != nil {
		req.Save = *body.Save
	}

	if err := h.manager.StartProbe(req); err != nil {
		status := http.StatusConflict
		if errors.Is(err, pkghttp.ErrNoTargets) {
			status = http.StatusBadRequest
		}
		writeJSONError(w, err.Error(), status)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, map[string]string{"status": "Probe started"})
}

func (h *APIHandler) handleProbeStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := h.manager.StopProbe(); err != nil {
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "Probe stopped"})
}

func (h *APIHandler) handleProbeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	results := h.manager.ProbeResults()
	samples := make([]speedtester.BandwidthSample, 0, len(results))
	for _, res := range results {
		if res.Sample.Target == "" {
			// broken targets never produced a sample
			continue
		}
		samples = append(samples, res.Sample)
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":  h.manager.ProbeStatus(),
		"results": results,
		"samples": samples,
	})
}

func (h *APIHandler) handleProbeHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var (
		records []database.SampleRecord
		err     error
	)
	if raw := r.URL.Query().Get("run"); raw != "" {
		runID, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			writeJSONError(w, "run must be an integer id", http.StatusBadRequest)
			return
		}
		records, err = database.GetRunSamples(r.Context(), runID)
	} else {
		records, err = database.GetSampleHistory(r.Context(), limit)
	}
	if errors.Is(err, database.ErrNotInitialized) {
		writeJSONError(w, "history is disabled on this server", http.StatusNotFound)
		return
	}
	if err != nil {
		writeJSONError(w, fmt.Sprintf("Failed to read history: %v", err), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []database.SampleRecord{}
	}
	writeJSONResponse(w, http.StatusOK, records)
}

// --- Monitor Handlers ---

func (h *APIHandler) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body struct {
		Target      string `json:"target"`
		IntervalSec int    `json:"intervalSec"`
		Save        *bool  `json:"save"`
		probeOptions
	}
	if err := decodeJSONBody(w, r, &body); err != nil {
		writeJSONError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if _, err := speedtester.ParseBaseURL(body.Target); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.IntervalSec <= 0 {
		writeJSONError(w, "intervalSec must be positive", http.StatusBadRequest)
		return
	}
	opts, err := h.options(body.probeOptions)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := MonitorRequest{
		Target:   body.Target,
		Interval: time.Duration(body.IntervalSec) * time.Second,
		Save:     h.save,
		Options:  opts,
	}
	if body.Save != nil {
		req.Save = *body.Save
	}
	if err := h.manager.StartMonitor(req); err != nil {
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, map[string]string{"status": "Monitor started"})
}

func (h *APIHandler) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := h.manager.StopMonitor(); err != nil {
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "Monitor stopped"})
}

func (h *APIHandler) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resp := map[string]interface{}{
		"status": h.manager.MonitorStatus(),
		"cycle":  h.manager.MonitorCycleState(),
	}
	if sample, ok := h.manager.MonitorLatest(); ok {
		resp["latest"] = sample
	}
	writeJSONResponse(w, http.StatusOK, resp)
}
