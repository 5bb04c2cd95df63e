package network

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

const (
	NATTypeUnknown          = "unknown"
	NATTypeSymmetric        = "symmetric"
	NATTypeConeOrRestricted = "cone_or_restricted"
)

var DefaultSTUNServers = []string{
	"stun.l.google.com:19302",
	"stun1.l.google.com:19302",
	"stun.cloudflare.com:3478",
}

// PublicAddress queries STUN servers for the public mapped address and infers
// the NAT class from how the mappings compare.
func PublicAddress(ctx context.Context, servers []string, timeout time.Duration) (string, string, error) {
	if len(servers) == 0 {
		return "", NATTypeUnknown, fmt.Errorf("no STUN servers provided")
	}

	results := make([]string, 0, len(servers))
	var lastErr error
	for _, server := range servers {
		addr, err := bindingRequest(ctx, server, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		results = append(results, addr)
	}

	if len(results) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("STUN probe failed")
		}
		return "", NATTypeUnknown, lastErr
	}
	return results[0], Classify(results), nil
}

// Classify infers the NAT type by comparing the mapped IPs seen by several
// servers. Each binding uses its own socket, so ports are not compared.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return NATTypeUnknown
	}
	first := mappedIP(addrs[0])
	for _, addr := range addrs[1:] {
		if mappedIP(addr) != first {
			return NATTypeSymmetric
		}
	}
	return NATTypeConeOrRestricted
}

func mappedIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func bindingRequest(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uriStr := strings.TrimSpace(server)
	if uriStr == "" {
		return "", fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}

	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return "", err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan stun.XORMappedAddress, 1)
	fail := make(chan error, 1)

	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr
		})
		if err != nil {
			fail <- err
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case addr := <-result:
		return addr.String(), nil
	case err := <-fail:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
