package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	utls "github.com/refraction-networking/utls"
)

// TLSResult describes one timed handshake.
type TLSResult struct {
	Address     string  `json:"address"`
	ServerName  string  `json:"serverName"`
	ConnectMs   float64 `json:"connectMs"`
	HandshakeMs float64 `json:"handshakeMs"`
	Version     string  `json:"version"`
	ALPN        string  `json:"alpn"`
	CipherSuite string  `json:"cipherSuite"`
}

// MeasureTLSHandshake dials addr and performs a handshake with a Chrome
// ClientHello. sni defaults to the host part of addr.
func MeasureTLSHandshake(ctx context.Context, addr, sni string, insecure bool) (TLSResult, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return TLSResult{}, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if sni == "" {
		sni = host
	}
	res := TLSResult{Address: addr, ServerName: sni}

	start := time.Now()
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return res, fmt.Errorf("tcp dial failed: %w", err)
	}
	defer conn.Close()
	res.ConnectMs = sinceMs(start)

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	tlsConn := utls.UClient(conn, &utls.Config{
		ServerName:         sni,
		InsecureSkipVerify: insecure,
		NextProtos:         []string{"h2", "http/1.1"},
	}, utls.HelloChrome_Auto)

	start = time.Now()
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return res, fmt.Errorf("uTLS handshake failed: %w", err)
	}
	res.HandshakeMs = sinceMs(start)

	state := tlsConn.ConnectionState()
	res.Version = tls.VersionName(state.Version)
	res.ALPN = state.NegotiatedProtocol
	res.CipherSuite = tls.CipherSuiteName(state.CipherSuite)
	return res, nil
}

func sinceMs(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
