package speedtester

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Endpoints holds the request paths a detection cycle talks to, relative to a base URL.
type Endpoints struct {
	Ping     string `json:"ping" yaml:"ping"`
	Download string `json:"download" yaml:"download"`
	Upload   string `json:"upload" yaml:"upload"`
	Fallback string `json:"fallback" yaml:"fallback"`
}

// DefaultEndpoints are the paths served by `vnetscan serve`.
var DefaultEndpoints = Endpoints{
	Ping:     "/api/ping",
	Download: "/api/bandwidth-test/download",
	Upload:   "/api/bandwidth-test/upload",
	Fallback: "/api/geolocation",
}

func (e Endpoints) withDefaults() Endpoints {
	if e.Ping == "" {
		e.Ping = DefaultEndpoints.Ping
	}
	if e.Download == "" {
		e.Download = DefaultEndpoints.Download
	}
	if e.Upload == "" {
		e.Upload = DefaultEndpoints.Upload
	}
	if e.Fallback == "" {
		e.Fallback = DefaultEndpoints.Fallback
	}
	return e
}

// ParseBaseURL validates a probe target. A bare host:port is treated as http.
func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty target url")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid target url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("target url %q has no host", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// resolve joins path onto base and appends a cache-busting nonce plus extra query values.
func resolve(base *url.URL, path string, extra url.Values) string {
	u := *base
	u.Path = base.Path + "/" + strings.TrimPrefix(path, "/")
	q := url.Values{}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("t", nonce())
	u.RawQuery = q.Encode()
	return u.String()
}

func nonce() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36) + strconv.FormatUint(rand.Uint64N(1<<20), 36)
}
