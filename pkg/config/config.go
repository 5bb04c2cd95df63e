package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vnetscan/vnetscan/network"
	pkghttp "github.com/vnetscan/vnetscan/pkg/http"
	"github.com/vnetscan/vnetscan/speedtester"

	"gopkg.in/yaml.v3"
)

const (
	DefaultThreads       = 5
	DefaultListenHost    = "127.0.0.1"
	DefaultListenPort    = 8080
	DefaultGeoCacheTTL   = time.Hour
	DefaultMaxTransfer   = 100 << 20
	DefaultHistoryLimit  = 50
	DefaultDatabaseDir   = ".vnetscan"
	DefaultDatabaseFile  = "history.db"
	DefaultConfigFile    = "vnetscan.yaml"
	DefaultSTUNTimeoutMs = 3000
)

// Config is the on-disk configuration of every vnetscan command.
type Config struct {
	Probe    ProbeConfig    `yaml:"probe"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NetInfo  NetInfoConfig  `yaml:"netinfo"`
}

// ProbeConfig tunes the detection cycle.
type ProbeConfig struct {
	Target         string                `yaml:"target,omitempty"`
	LatencySamples int                   `yaml:"latency_samples"`
	SampleDelay    time.Duration         `yaml:"sample_delay"`
	DownloadBytes  int64                 `yaml:"download_bytes"`
	UploadBytes    int                   `yaml:"upload_bytes"`
	RequestTimeout time.Duration         `yaml:"request_timeout"`
	FallbackFactor float64               `yaml:"fallback_factor"`
	Threads        int                   `yaml:"threads"`
	InsecureTLS    bool                  `yaml:"insecure_tls"`
	Endpoints      speedtester.Endpoints `yaml:"endpoints"`
}

// ServerConfig is used by `vnetscan serve`.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Username         string        `yaml:"username,omitempty"`
	Password         string        `yaml:"password,omitempty"`
	JWTSecret        string        `yaml:"jwt_secret,omitempty"`
	GeoIPDatabase    string        `yaml:"geoip_db,omitempty"`
	GeoCacheTTL      time.Duration `yaml:"geo_cache_ttl"`
	MaxTransferBytes int64         `yaml:"max_transfer_bytes"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
	// Save persists every probe run.
	Save bool `yaml:"save"`
}

// NetInfoConfig controls where platform network information comes from.
type NetInfoConfig struct {
	Detect        bool                        `yaml:"detect"`
	Static        *speedtester.ConnectionInfo `yaml:"static,omitempty"`
	STUNServers   []string                    `yaml:"stun_servers"`
	STUNTimeoutMs int                         `yaml:"stun_timeout_ms"`
}

// Default returns a config with every default applied.
func Default() Config {
	var cfg Config
	// zero is a valid delay, so ApplyDefaults cannot fill it in
	cfg.Probe.SampleDelay = speedtester.DefaultSampleDelay
	ApplyDefaults(&cfg)
	return cfg
}

// DefaultPath is ~/.vnetscan/vnetscan.yaml, or the working directory when the
// home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigFile
	}
	return filepath.Join(home, DefaultDatabaseDir, DefaultConfigFile)
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDatabaseFile
	}
	return filepath.Join(home, DefaultDatabaseDir, DefaultDatabaseFile)
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// keys missing from the file keep their defaults
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// LoadFrom loads path, or DefaultPath when path is empty. Only an explicitly
// named file has to exist.
func LoadFrom(path string) (Config, error) {
	var (
		cfg Config
		err error
	)
	if path == "" {
		cfg, err = LoadOrDefault(DefaultPath())
	} else {
		cfg, err = Load(path)
	}
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ProbeOptions maps the probe section onto examiner options.
func (c Config) ProbeOptions() pkghttp.Options {
	p := c.Probe
	return pkghttp.Options{
		LatencySamples: p.LatencySamples,
		SampleDelay:    p.SampleDelay,
		DownloadBytes:  p.DownloadBytes,
		UploadBytes:    p.UploadBytes,
		RequestTimeout: p.RequestTimeout,
		FallbackFactor: p.FallbackFactor,
		InsecureTLS:    p.InsecureTLS,
		Endpoints:      p.Endpoints,
		ConnectionInfo: c.NetInfo.Static,
	}
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects values no command can work with.
func Validate(cfg Config) error {
	if cfg.Probe.Target != "" {
		if _, err := speedtester.ParseBaseURL(cfg.Probe.Target); err != nil {
			return fmt.Errorf("probe.target: %w", err)
		}
	}
	if cfg.Probe.LatencySamples < 1 {
		return fmt.Errorf("probe.latency_samples must be at least 1")
	}
	if cfg.Probe.SampleDelay < 0 {
		return fmt.Errorf("probe.sample_delay must not be negative")
	}
	if cfg.Probe.Threads < 1 {
		return fmt.Errorf("probe.threads must be at least 1")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}
	if (cfg.Server.Username == "") != (cfg.Server.Password == "") {
		return fmt.Errorf("server.username and server.password must be set together")
	}
	if cfg.Database.Save && cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required when database.save is enabled")
	}
	return nil
}

// ApplyDefaults fills in default values when empty. The sample delay is left
// alone since zero disables it.
func ApplyDefaults(cfg *Config) {
	p := &cfg.Probe
	if p.LatencySamples == 0 {
		p.LatencySamples = speedtester.DefaultLatencySamples
	}
	if p.DownloadBytes == 0 {
		p.DownloadBytes = speedtester.DefaultDownloadSize
	}
	if p.UploadBytes == 0 {
		p.UploadBytes = speedtester.DefaultUploadSize
	}
	if p.RequestTimeout == 0 {
		p.RequestTimeout = speedtester.DefaultRequestTimeout
	}
	if p.FallbackFactor == 0 {
		p.FallbackFactor = speedtester.DefaultFallbackFactor
	}
	if p.Threads == 0 {
		p.Threads = DefaultThreads
	}
	if p.Endpoints == (speedtester.Endpoints{}) {
		p.Endpoints = speedtester.DefaultEndpoints
	}

	s := &cfg.Server
	if s.Host == "" {
		s.Host = DefaultListenHost
	}
	if s.Port == 0 {
		s.Port = DefaultListenPort
	}
	if s.GeoCacheTTL == 0 {
		s.GeoCacheTTL = DefaultGeoCacheTTL
	}
	if s.MaxTransferBytes == 0 {
		s.MaxTransferBytes = DefaultMaxTransfer
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultDatabasePath()
	}

	n := &cfg.NetInfo
	if len(n.STUNServers) == 0 {
		n.STUNServers = append([]string(nil), network.DefaultSTUNServers...)
	}
	if n.STUNTimeoutMs == 0 {
		n.STUNTimeoutMs = DefaultSTUNTimeoutMs
	}
}
