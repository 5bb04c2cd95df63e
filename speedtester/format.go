package speedtester

import "fmt"

// FormatSpeed renders a throughput for display, switching to Gbps at 1000 Mbps.
func FormatSpeed(mbps float64) string {
	if mbps >= 1000 {
		return fmt.Sprintf("%.1f Gbps", mbps/1000)
	}
	return fmt.Sprintf("%.1f Mbps", mbps)
}

// Quality is a qualitative label for a download rate.
type Quality struct {
	Level       string `json:"level"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

var qualityLevels = []struct {
	min float64
	q   Quality
}{
	{100, Quality{Level: "Excellent", Description: "Suitable for 4K streaming, large downloads and many users", Color: "green"}},
	{25, Quality{Level: "Good", Description: "Handles HD streaming and video calls comfortably", Color: "cyan"}},
	{5, Quality{Level: "Fair", Description: "Fine for browsing and SD streaming", Color: "yellow"}},
	{1, Quality{Level: "Poor", Description: "Basic browsing and messaging only", Color: "magenta"}},
}

// GetConnectionQuality maps a rate in Mbps to a quality label.
func GetConnectionQuality(mbps float64) Quality {
	for _, l := range qualityLevels {
		if mbps >= l.min {
			return l.q
		}
	}
	return Quality{Level: "Very Poor", Description: "Connection is too slow for most tasks", Color: "red"}
}

// InferEffectiveType derives a coarse connection class from measured values,
// using the Network Information API thresholds. Zero inputs are ignored; with
// nothing measured the result is empty.
func InferEffectiveType(rttMs, downlinkMbps float64) EffectiveType {
	if rttMs <= 0 && downlinkMbps <= 0 {
		return ""
	}
	below := func(limit float64) bool { return downlinkMbps > 0 && downlinkMbps < limit }
	switch {
	case rttMs >= 2000 || below(0.05):
		return EffectiveSlow2G
	case rttMs >= 1400 || below(0.07):
		return Effective2G
	case rttMs >= 270 || below(0.7):
		return Effective3G
	default:
		return Effective4G
	}
}
