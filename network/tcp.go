package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/vnetscan/vnetscan/speedtester"
)

// MeasureTCP times count TCP connects to addr, pausing delay between them.
// Refused or timed out connects are attempts without a sample.
func MeasureTCP(ctx context.Context, addr string, count int, delay time.Duration) (speedtester.LatencyReading, error) {
	var reading speedtester.LatencyReading
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return reading, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	for i := 0; i < count; i++ {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				return reading, err
			}
		}
		if err := ctx.Err(); err != nil {
			return reading, err
		}
		reading.Attempts++

		start := time.Now()
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			if ctx.Err() != nil {
				return reading, ctx.Err()
			}
			continue
		}
		elapsed := time.Since(start)
		conn.Close()
		reading.Samples = append(reading.Samples, float64(elapsed)/float64(time.Millisecond))
	}
	return reading, nil
}
