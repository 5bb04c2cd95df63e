package web

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vnetscan/vnetscan/speedtester"
	"github.com/vnetscan/vnetscan/utils"
)

// zeroReader yields an endless stream of zero bytes.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
}

// withCORS lets dashboards served from other origins run the probe endpoints.
func withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cache-Control, Pragma")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	noStore(w)
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	size := int64(speedtester.DefaultDownloadSize)
	if raw := r.URL.Query().Get("bytes"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeJSONError(w, "bytes must be a non-negative integer", http.StatusBadRequest)
			return
		}
		size = n
	}
	if size > s.maxTransfer {
		size = s.maxTransfer
	}

	noStore(w)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.CopyN(w, zeroReader{}, size); err != nil {
		s.logger.Printf("download test to %s aborted: %v", utils.ClientIP(r), err)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	noStore(w)
	body := &countingReader{r: http.MaxBytesReader(w, r.Body, s.maxTransfer)}
	if _, err := io.Copy(io.Discard, body); err != nil {
		writeJSONError(w, "upload too large or interrupted", http.StatusRequestEntityTooLarge)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int64{"received": body.n})
}

func (s *Server) handleGeolocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	noStore(w)
	ip := utils.ClientIP(r)
	info, err := s.geo.Resolve(r.Context(), ip)
	if err != nil {
		s.logger.Printf("geolocation lookup for %s failed: %v", ip, err)
	}
	if info.IP == "" {
		info.IP = ip
	}
	info.Family = ipFamily(info.IP)
	writeJSONResponse(w, http.StatusOK, info)
}
