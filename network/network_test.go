package network

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vnetscan/vnetscan/speedtester"
)

const routeTable = `Iface	Destination	Gateway 	Flags	RefCnt	Use	Metric	Mask		MTU	Window	IRTT
wlan0	00000000	0101A8C0	0003	0	0	600	00000000	0	0	0
eth0	00000000	0100000A	0003	0	0	100	00000000	0	0	0
eth0	0000000A	00000000	0001	0	0	100	00FFFFFF	0	0	0
tun0	00000000	00000000	0000	0	0	1	00000000	0	0	0
`

func TestDefaultRouteInterface(t *testing.T) {
	got, err := DefaultRouteInterface(strings.NewReader(routeTable))
	if err != nil {
		t.Fatal(err)
	}
	if got != "eth0" {
		t.Errorf("DefaultRouteInterface() = %q, want eth0", got)
	}

	noDefault := "Iface\tDestination\nlo\t0000007F\t00000000\t0001\t0\t0\t0\t000000FF\n"
	if _, err := DefaultRouteInterface(strings.NewReader(noDefault)); err == nil {
		t.Error("expected error without a default route")
	}
}

func TestClassifyInterface(t *testing.T) {
	root := t.TempDir()
	mk := func(name string, files map[string]string, dirs ...string) {
		dir := filepath.Join(root, name)
		for _, d := range append(dirs, "") {
			if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
				t.Fatal(err)
			}
		}
		for f, v := range files {
			if err := os.WriteFile(filepath.Join(dir, f), []byte(v+"\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	mk("wlp2s0", map[string]string{"type": "1"}, "wireless")
	mk("enp3s0", map[string]string{"type": "1", "speed": "1000"}, "device")
	mk("docker0", map[string]string{"type": "1", "speed": "-1"})
	mk("wwan0", map[string]string{"type": "65534"})

	tests := []struct {
		name string
		want speedtester.ConnectionType
	}{
		{"wlp2s0", speedtester.ConnWifi},
		{"enp3s0", speedtester.ConnEthernet},
		{"docker0", speedtester.ConnOther},
		{"wwan0", speedtester.ConnCellular},
		{"bnep0", speedtester.ConnBluetooth},
	}
	for _, tc := range tests {
		if got := ClassifyInterface(root, tc.name); got != tc.want {
			t.Errorf("ClassifyInterface(%s) = %s, want %s", tc.name, got, tc.want)
		}
	}

	if got := LinkSpeed(root, "enp3s0"); got != 1000 {
		t.Errorf("LinkSpeed(enp3s0) = %v, want 1000", got)
	}
	if got := LinkSpeed(root, "docker0"); got != 0 {
		t.Errorf("LinkSpeed(docker0) = %v, want 0", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		addrs []string
		want  string
	}{
		{nil, NATTypeUnknown},
		{[]string{"203.0.113.5:4000"}, NATTypeUnknown},
		{[]string{"203.0.113.5:4000", "203.0.113.5:4100"}, NATTypeConeOrRestricted},
		{[]string{"203.0.113.5:4000", "203.0.113.9:4000"}, NATTypeSymmetric},
	}
	for _, tc := range tests {
		if got := Classify(tc.addrs); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.addrs, got, tc.want)
		}
	}
}

func TestPublicAddressNoServers(t *testing.T) {
	if _, nat, err := PublicAddress(context.Background(), nil, time.Second); err == nil || nat != NATTypeUnknown {
		t.Errorf("PublicAddress(nil) = %s, %v", nat, err)
	}
}

func TestMeasureTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	reading, err := MeasureTCP(context.Background(), ln.Addr().String(), 3, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if reading.Attempts != 3 || len(reading.Samples) != 3 {
		t.Fatalf("reading = %+v", reading)
	}
	if reading.Mean() < 0 {
		t.Errorf("negative mean %v", reading.Mean())
	}
}

func TestMeasureTCPRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	reading, err := MeasureTCP(context.Background(), addr, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if reading.Attempts != 2 || len(reading.Samples) != 0 || reading.Mean() != 0 {
		t.Errorf("reading = %+v", reading)
	}
	if _, err := MeasureTCP(context.Background(), "no-port", 1, 0); err == nil {
		t.Error("expected error for address without port")
	}
}

func TestMeasureTLSHandshakeBadAddress(t *testing.T) {
	if _, err := MeasureTLSHandshake(context.Background(), "example.com", "", false); err == nil {
		t.Error("expected error for address without port")
	}
}
