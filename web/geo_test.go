package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type countingLookup struct {
	calls int
	err   error
}

func (c *countingLookup) Lookup(_ context.Context, ip net.IP) (GeoInfo, error) {
	c.calls++
	if c.err != nil {
		return GeoInfo{}, c.err
	}
	return GeoInfo{Country: "Exampleland", CountryCode: "EX", City: "Sample", Source: "fake"}, nil
}

func TestGeoResolverCache(t *testing.T) {
	lookup := &countingLookup{}
	g := NewGeoResolver(lookup, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		info, err := g.Resolve(context.Background(), "203.0.113.7")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if info.IP != "203.0.113.7" || info.CountryCode != "EX" {
			t.Fatalf("info = %+v", info)
		}
	}
	if lookup.calls != 1 {
		t.Errorf("lookups = %d, want 1", lookup.calls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := g.Resolve(context.Background(), "203.0.113.7"); err != nil {
		t.Fatal(err)
	}
	if lookup.calls != 2 {
		t.Errorf("lookups after expiry = %d, want 2", lookup.calls)
	}
}

func TestGeoResolverPrivateAndInvalid(t *testing.T) {
	lookup := &countingLookup{}
	g := NewGeoResolver(lookup, 0)

	tests := []struct {
		ip      string
		private bool
		wantErr bool
	}{
		{"127.0.0.1", true, false},
		{"192.168.1.20", true, false},
		{"fe80::1", true, false},
		{"not-an-ip", false, true},
	}
	for _, tc := range tests {
		info, err := g.Resolve(context.Background(), tc.ip)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: err = %v", tc.ip, err)
			continue
		}
		if info.Private != tc.private {
			t.Errorf("%s: private = %v", tc.ip, info.Private)
		}
	}
	if lookup.calls != 0 {
		t.Errorf("private addresses hit the lookup %d times", lookup.calls)
	}
}

func TestGeoResolverLookupFailure(t *testing.T) {
	g := NewGeoResolver(&countingLookup{err: errors.New("boom")}, 0)
	info, err := g.Resolve(context.Background(), "203.0.113.7")
	if err == nil {
		t.Fatal("expected error")
	}
	if info.IP != "203.0.113.7" || info.Source != "none" {
		t.Errorf("info = %+v", info)
	}
}

func TestIPAPILookup(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/203.0.113.7" {
			w.Write([]byte(`{"status":"fail","message":"invalid query"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","country":"Exampleland","countryCode":"EX","regionName":"North","city":"Sample","lat":1.5,"lon":-2.25,"timezone":"UTC","isp":"Example ISP"}`))
	}))
	defer ts.Close()

	a := NewIPAPILookup(time.Second)
	a.endpoint = ts.URL + "/json/"

	info, err := a.Lookup(context.Background(), net.ParseIP("203.0.113.7"))
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if info.City != "Sample" || info.Region != "North" || info.Latitude != 1.5 || info.ISP != "Example ISP" || info.Source != "ip-api" {
		t.Errorf("info = %+v", info)
	}

	if _, err := a.Lookup(context.Background(), net.ParseIP("198.51.100.1")); err == nil {
		t.Error("expected failure status to error")
	}
}
