//go:build !linux

package network

import (
	"context"

	"github.com/vnetscan/vnetscan/speedtester"
)

// DetectConnection reports no network information outside linux.
func DetectConnection(ctx context.Context, target string) (*speedtester.ConnectionInfo, error) {
	return &speedtester.ConnectionInfo{Type: speedtester.ConnUnknown}, nil
}
