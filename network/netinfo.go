package network

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vnetscan/vnetscan/speedtester"
)

var (
	procNetRoute = "/proc/net/route"
	sysClassNet  = "/sys/class/net"
)

// DefaultRouteInterface returns the interface of the lowest-metric IPv4 default
// route in a /proc/net/route table.
func DefaultRouteInterface(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	best, bestMetric := "", -1
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 8 || fields[1] != "00000000" {
			continue
		}
		// RTF_UP
		flags, err := strconv.ParseUint(fields[3], 16, 32)
		if err != nil || flags&0x1 == 0 {
			continue
		}
		metric, err := strconv.Atoi(fields[6])
		if err != nil {
			continue
		}
		if bestMetric < 0 || metric < bestMetric {
			best, bestMetric = fields[0], metric
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if best == "" {
		return "", fmt.Errorf("no default route")
	}
	return best, nil
}

// ClassifyInterface maps a network interface to a connection type using its
// sysfs entry under root.
func ClassifyInterface(root, name string) speedtester.ConnectionType {
	dir := filepath.Join(root, name)
	if exists(filepath.Join(dir, "wireless")) || exists(filepath.Join(dir, "phy80211")) {
		return speedtester.ConnWifi
	}
	switch {
	case hasAnyPrefix(name, "wwan", "rmnet", "ccmni", "usb", "ppp"):
		return speedtester.ConnCellular
	case hasAnyPrefix(name, "bnep", "bt-pan"):
		return speedtester.ConnBluetooth
	case hasAnyPrefix(name, "wimax"):
		return speedtester.ConnWimax
	case name == "lo":
		return speedtester.ConnNone
	}
	// ARPHRD_ETHER backed by a device; bridges and veths have no device link
	if readTrimmed(filepath.Join(dir, "type")) == "1" && exists(filepath.Join(dir, "device")) {
		return speedtester.ConnEthernet
	}
	return speedtester.ConnOther
}

// LinkSpeed returns the negotiated link speed in Mbps, or 0 when the driver
// does not report one.
func LinkSpeed(root, name string) float64 {
	v, err := strconv.ParseFloat(readTrimmed(filepath.Join(root, name, "speed")), 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readTrimmed(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
