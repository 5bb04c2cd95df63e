package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vnetscan/vnetscan/speedtester"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.Probe.LatencySamples != speedtester.DefaultLatencySamples {
		t.Fatalf("latency_samples=%d", cfg.Probe.LatencySamples)
	}
	if cfg.Probe.UploadBytes != 65536 || cfg.Probe.DownloadBytes != 1<<20 {
		t.Fatalf("transfer sizes=%d/%d", cfg.Probe.DownloadBytes, cfg.Probe.UploadBytes)
	}
	if cfg.Probe.Endpoints.Ping != "/api/ping" {
		t.Fatalf("endpoints=%+v", cfg.Probe.Endpoints)
	}
	if cfg.Server.Port != DefaultListenPort || cfg.Server.GeoCacheTTL != time.Hour {
		t.Fatalf("server=%+v", cfg.Server)
	}
	if cfg.Database.Path == "" || len(cfg.NetInfo.STUNServers) == 0 {
		t.Fatalf("database/netinfo defaults missing: %+v %+v", cfg.Database, cfg.NetInfo)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vnetscan.yaml")
	data := `
probe:
  target: probe.example:8080
  latency_samples: 8
  sample_delay: 250ms
  request_timeout: 10s
netinfo:
  static:
    type: wifi
    downlink_mbps: 40
    rtt_ms: 35
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Probe.LatencySamples != 8 || cfg.Probe.SampleDelay != 250*time.Millisecond {
		t.Fatalf("probe=%+v", cfg.Probe)
	}
	if cfg.Probe.RequestTimeout != 10*time.Second {
		t.Fatalf("request_timeout=%v", cfg.Probe.RequestTimeout)
	}
	if cfg.Probe.Threads != DefaultThreads {
		t.Fatalf("threads default not applied: %d", cfg.Probe.Threads)
	}
	info := cfg.NetInfo.Static
	if info == nil || info.Type != speedtester.ConnWifi || info.DownlinkMbps != 40 || !info.Available() {
		t.Fatalf("static netinfo=%+v", info)
	}
}

func TestLoadSampleDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want time.Duration
	}{
		{"explicit zero", "probe:\n  sample_delay: 0s\n", 0},
		{"explicit value", "probe:\n  sample_delay: 40ms\n", 40 * time.Millisecond},
		{"missing key", "probe:\n  latency_samples: 3\n", speedtester.DefaultSampleDelay},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vnetscan.yaml")
			if err := os.WriteFile(path, []byte(tc.data), 0o600); err != nil {
				t.Fatal(err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Probe.SampleDelay != tc.want {
				t.Fatalf("sample_delay=%v, want %v", cfg.Probe.SampleDelay, tc.want)
			}
			if got := cfg.ProbeOptions().SampleDelay; got != tc.want {
				t.Fatalf("ProbeOptions().SampleDelay=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Probe.Threads != DefaultThreads {
		t.Fatalf("threads=%d", cfg.Probe.Threads)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad target", func(c *Config) { c.Probe.Target = "ftp://x" }},
		{"negative delay", func(c *Config) { c.Probe.SampleDelay = -time.Second }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"username without password", func(c *Config) { c.Server.Username = "admin" }},
		{"save without path", func(c *Config) { c.Database.Save = true; c.Database.Path = "" }},
	}
	for _, tc := range tests {
		cfg := Default()
		tc.mutate(&cfg)
		if err := Validate(cfg); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "vnetscan.yaml")
	cfg := Default()
	cfg.Probe.Target = "http://probe.example"
	cfg.Probe.SampleDelay = 50 * time.Millisecond
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%o", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Probe.Target != cfg.Probe.Target || loaded.Probe.SampleDelay != cfg.Probe.SampleDelay {
		t.Fatalf("loaded probe=%+v", loaded.Probe)
	}
}

func TestLoadFrom(t *testing.T) {
	t.Parallel()

	if _, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("explicit missing file should fail")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 99999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("invalid config should fail validation")
	}
}

func TestProbeOptions(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Probe.LatencySamples = 7
	cfg.Probe.InsecureTLS = true
	cfg.NetInfo.Static = &speedtester.ConnectionInfo{Type: speedtester.ConnEthernet, DownlinkMbps: 100}

	opts := cfg.ProbeOptions()
	if opts.LatencySamples != 7 || !opts.InsecureTLS || opts.FallbackFactor != speedtester.DefaultFallbackFactor {
		t.Errorf("opts = %+v", opts)
	}
	if opts.ConnectionInfo == nil || opts.ConnectionInfo.DownlinkMbps != 100 {
		t.Errorf("connection info = %+v", opts.ConnectionInfo)
	}
}
