//go:build linux

package network

import (
	"context"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/vnetscan/vnetscan/speedtester"

	"golang.org/x/sys/unix"
)

// DetectConnection builds the platform network information: connection type
// and link speed of the default route interface, and the kernel smoothed RTT
// of a TCP connection to target when one is given.
func DetectConnection(ctx context.Context, target string) (*speedtester.ConnectionInfo, error) {
	info := &speedtester.ConnectionInfo{Type: speedtester.ConnUnknown}

	f, err := os.Open(procNetRoute)
	if err != nil {
		return info, fmt.Errorf("read routes: %w", err)
	}
	iface, err := DefaultRouteInterface(f)
	f.Close()
	if err != nil {
		info.Type = speedtester.ConnNone
		return info, nil
	}
	info.Type = ClassifyInterface(sysClassNet, iface)
	info.DownlinkMbps = LinkSpeed(sysClassNet, iface)

	if target != "" {
		rtt, err := kernelRTT(ctx, target)
		if err != nil {
			return info, fmt.Errorf("tcp rtt to %s: %w", target, err)
		}
		info.RTTMs = speedtester.Round2(rtt)
	}
	if info.RTTMs > 0 || info.DownlinkMbps > 0 {
		info.EffectiveType = speedtester.InferEffectiveType(info.RTTMs, info.DownlinkMbps)
	}
	return info, nil
}

// kernelRTT connects to addr and reads the smoothed RTT from TCP_INFO, in ms.
func kernelRTT(ctx context.Context, addr string) (float64, error) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	rtt, _, err := TcpInfoRTT(conn)
	if err != nil {
		return 0, err
	}
	return float64(rtt) / 1000, nil
}

// TcpInfoRTT returns the kernel RTT and RTT variance of c in microseconds.
func TcpInfoRTT(c net.Conn) (uint32, uint32, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return 0, 0, fmt.Errorf("net.Conn does not implement syscall.Conn")
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, 0, err
	}

	var info *unix.TCPInfo
	var serr error
	if cerr := raw.Control(func(fd uintptr) {
		info, serr = unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
	}); cerr != nil {
		return 0, 0, cerr
	}
	if serr != nil {
		return 0, 0, serr
	}
	if info == nil {
		return 0, 0, fmt.Errorf("nil TCPInfo")
	}
	return info.Rtt, info.Rttvar, nil
}
