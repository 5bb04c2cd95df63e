package speedtester

import "time"

type ConnectionType string

const (
	ConnUnknown   ConnectionType = "unknown"
	ConnWifi      ConnectionType = "wifi"
	ConnCellular  ConnectionType = "cellular"
	ConnEthernet  ConnectionType = "ethernet"
	ConnBluetooth ConnectionType = "bluetooth"
	ConnWimax     ConnectionType = "wimax"
	ConnOther     ConnectionType = "other"
	ConnNone      ConnectionType = "none"
)

type EffectiveType string

const (
	EffectiveSlow2G EffectiveType = "slow-2g"
	Effective2G     EffectiveType = "2g"
	Effective3G     EffectiveType = "3g"
	Effective4G     EffectiveType = "4g"
)

// Method records where the numbers in a sample came from.
type Method string

const (
	MethodNetworkAPI Method = "network-api"
	MethodSpeedTest  Method = "speed-test"
	MethodMixed      Method = "mixed"
)

type Status string

const (
	StatusComplete Status = "complete"
	StatusDegraded Status = "degraded"
)

// Probe names reported in BandwidthSample.Failures.
const (
	ProbeLatency          = "latency"
	ProbeDownload         = "download"
	ProbeDownloadFallback = "download-fallback"
	ProbeUpload           = "upload"
)

// BandwidthSample is the result of one detection cycle. It is a value type and
// never modified after Detect returns it.
type BandwidthSample struct {
	Target         string         `csv:"target" json:"target"`
	DownloadMbps   float64        `csv:"download_mbps" json:"downloadMbps"`
	UploadMbps     float64        `csv:"upload_mbps" json:"uploadMbps"`
	LatencyMs      float64        `csv:"latency_ms" json:"latencyMs"`
	JitterMs       float64        `csv:"jitter_ms" json:"jitterMs"`
	ConnectionType ConnectionType `csv:"connection_type" json:"connectionType"`
	EffectiveType  EffectiveType  `csv:"effective_type" json:"effectiveType,omitempty"`
	CapturedAt     time.Time      `csv:"captured_at" json:"capturedAt"`
	Method         Method         `csv:"method" json:"method"`
	Status         Status         `csv:"status" json:"status"`
	Failures       []string       `csv:"-" json:"failures,omitempty"`
}

// Degraded reports whether every sub-probe failed and nothing could be measured.
func (s BandwidthSample) Degraded() bool { return s.Status == StatusDegraded }

// Failed reports whether the named probe failed during the cycle.
func (s BandwidthSample) Failed(probe string) bool {
	for _, f := range s.Failures {
		if f == probe {
			return true
		}
	}
	return false
}

// ConnectionInfo is the platform's own view of the link, the counterpart of the
// browser Network Information API. A nil or empty value means "not available".
type ConnectionInfo struct {
	Type          ConnectionType `json:"type,omitempty" yaml:"type,omitempty"`
	EffectiveType EffectiveType  `json:"effectiveType,omitempty" yaml:"effective_type,omitempty"`
	DownlinkMbps  float64        `json:"downlinkMbps,omitempty" yaml:"downlink_mbps,omitempty"`
	RTTMs         float64        `json:"rttMs,omitempty" yaml:"rtt_ms,omitempty"`
}

// Available reports whether the info carries any measurement.
func (c *ConnectionInfo) Available() bool {
	return c != nil && (c.DownlinkMbps > 0 || c.RTTMs > 0 || c.EffectiveType != "")
}

// LatencyReading is the ordered set of successful round trips of one cycle.
type LatencyReading struct {
	Samples  []float64
	Attempts int
}

// Mean returns the average round trip in milliseconds, 0 when nothing succeeded.
func (r LatencyReading) Mean() float64 { return Mean(r.Samples) }

// Jitter returns the mean absolute successive difference of the readings.
func (r LatencyReading) Jitter() float64 { return Jitter(r.Samples) }
