package web

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/imroc/req/v3"
	"github.com/oschwald/geoip2-golang"
	"github.com/vnetscan/vnetscan/utils"
)

const ipAPIEndpoint = "http://ip-api.com/json/"

// GeoInfo is the location reported for a client address.
type GeoInfo struct {
	IP          string  `json:"ip"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"countryCode,omitempty"`
	Region      string  `json:"region,omitempty"`
	City        string  `json:"city,omitempty"`
	Latitude    float64 `json:"lat,omitempty"`
	Longitude   float64 `json:"lon,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
	ISP         string  `json:"isp,omitempty"`
	Private     bool    `json:"private,omitempty"`
	Family      string  `json:"family,omitempty"`
	Source      string  `json:"source"`
}

// GeoLookup resolves one public address.
type GeoLookup interface {
	Lookup(ctx context.Context, ip net.IP) (GeoInfo, error)
}

// GeoResolver answers private addresses locally and caches lookups per IP.
type GeoResolver struct {
	lookup GeoLookup
	ttl    time.Duration
	now    func() time.Time

	mu   sync.RWMutex
	data map[string]geoEntry
}

type geoEntry struct {
	info      GeoInfo
	updatedAt time.Time
}

func NewGeoResolver(lookup GeoLookup, ttl time.Duration) *GeoResolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &GeoResolver{lookup: lookup, ttl: ttl, now: time.Now, data: make(map[string]geoEntry)}
}

func (g *GeoResolver) Resolve(ctx context.Context, ipStr string) (GeoInfo, error) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return GeoInfo{}, fmt.Errorf("invalid ip address %q", ipStr)
	}
	if !utils.IsPublicIP(ipStr) {
		return GeoInfo{IP: ipStr, Private: true, Source: "local"}, nil
	}

	if info, ok := g.get(ipStr); ok {
		return info, nil
	}
	if g.lookup == nil {
		return GeoInfo{IP: ipStr, Source: "none"}, nil
	}
	info, err := g.lookup.Lookup(ctx, ip)
	if err != nil {
		return GeoInfo{IP: ipStr, Source: "none"}, err
	}
	info.IP = ipStr
	g.set(ipStr, info)
	return info, nil
}

func (g *GeoResolver) get(ip string) (GeoInfo, bool) {
	g.mu.RLock()
	e, ok := g.data[ip]
	g.mu.RUnlock()
	if !ok || g.now().Sub(e.updatedAt) > g.ttl {
		return GeoInfo{}, false
	}
	return e.info, true
}

func (g *GeoResolver) set(ip string, info GeoInfo) {
	g.mu.Lock()
	g.data[ip] = geoEntry{info: info, updatedAt: g.now()}
	g.mu.Unlock()
}

// Janitor drops expired entries every cleanEvery until ctx ends.
func (g *GeoResolver) Janitor(ctx context.Context, cleanEvery time.Duration) {
	t := time.NewTicker(cleanEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			now := g.now()
			g.mu.Lock()
			for k, v := range g.data {
				if now.Sub(v.updatedAt) > g.ttl {
					delete(g.data, k)
				}
			}
			g.mu.Unlock()
		}
	}
}

// MaxMindLookup reads a GeoLite2/GeoIP2 City database.
type MaxMindLookup struct {
	db *geoip2.Reader
}

func OpenMaxMind(path string) (*MaxMindLookup, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMindLookup{db: db}, nil
}

func (m *MaxMindLookup) Lookup(_ context.Context, ip net.IP) (GeoInfo, error) {
	rec, err := m.db.City(ip)
	if err != nil {
		return GeoInfo{}, err
	}
	info := GeoInfo{
		Country:     rec.Country.Names["en"],
		CountryCode: rec.Country.IsoCode,
		City:        rec.City.Names["en"],
		Latitude:    rec.Location.Latitude,
		Longitude:   rec.Location.Longitude,
		Timezone:    rec.Location.TimeZone,
		Source:      "geoip",
	}
	if len(rec.Subdivisions) > 0 {
		info.Region = rec.Subdivisions[0].Names["en"]
	}
	return info, nil
}

func (m *MaxMindLookup) Close() error { return m.db.Close() }

// IPAPILookup queries ip-api.com.
type IPAPILookup struct {
	client   *req.Client
	endpoint string
}

func NewIPAPILookup(timeout time.Duration) *IPAPILookup {
	return &IPAPILookup{
		client:   req.C().SetTimeout(timeout).SetUserAgent("vnetscan-server/1.0"),
		endpoint: ipAPIEndpoint,
	}
}

type ipAPIResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
}

func (a *IPAPILookup) Lookup(ctx context.Context, ip net.IP) (GeoInfo, error) {
	var body ipAPIResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetSuccessResult(&body).
		Get(a.endpoint + ip.String())
	if err != nil {
		return GeoInfo{}, fmt.Errorf("ip-api request failed: %w", err)
	}
	if !resp.IsSuccessState() {
		return GeoInfo{}, fmt.Errorf("ip-api returned status %d", resp.StatusCode)
	}
	if body.Status != "success" {
		return GeoInfo{}, fmt.Errorf("ip-api lookup failed: %s", body.Message)
	}
	return GeoInfo{
		Country:     body.Country,
		CountryCode: body.CountryCode,
		Region:      body.RegionName,
		City:        body.City,
		Latitude:    body.Lat,
		Longitude:   body.Lon,
		Timezone:    body.Timezone,
		ISP:         body.ISP,
		Source:      "ip-api",
	}, nil
}

// ipFamily names the address family of ipStr, or "" when it does not parse.
func ipFamily(ipStr string) string {
	switch {
	case net.ParseIP(ipStr) == nil:
		return ""
	case utils.IsIPv6(ipStr):
		return "ipv6"
	default:
		return "ipv4"
	}
}
