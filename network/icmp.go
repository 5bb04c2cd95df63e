package network

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"time"

	"github.com/vnetscan/vnetscan/speedtester"
	"github.com/vnetscan/vnetscan/utils/customlog"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// Windows default echo payload
var defaultEchoData = []byte("abcdefghijklmnopqrstuvwabcdefghi")

type IcmpPacket struct {
	DestIP                 net.IP
	CustomInternetProtoID  int
	CustomSequenceNum      int
	Data                   []byte
	TestCount              uint16
	DelayBetweenEachPacket time.Duration
	Timeout                time.Duration

	// Privileged uses a raw ip4:icmp socket; otherwise an unprivileged udp4 ping socket.
	Privileged bool
	Verbose    bool
}

type IcmpPacketOption = func(c *IcmpPacket)

func WithPrivileged(p bool) IcmpPacketOption {
	return func(c *IcmpPacket) { c.Privileged = p }
}

func WithPacketDelay(d time.Duration) IcmpPacketOption {
	return func(c *IcmpPacket) { c.DelayBetweenEachPacket = d }
}

func WithReplyTimeout(d time.Duration) IcmpPacketOption {
	return func(c *IcmpPacket) { c.Timeout = d }
}

func WithIcmpVerbose(v bool) IcmpPacketOption {
	return func(c *IcmpPacket) { c.Verbose = v }
}

func NewIcmpPacket(dest string, count uint16, opts ...IcmpPacketOption) (*IcmpPacket, error) {
	i := &IcmpPacket{
		TestCount:              count,
		DelayBetweenEachPacket: time.Second,
		Timeout:                2 * time.Second,
	}
	for _, opt := range opts {
		opt(i)
	}

	i.DestIP = net.ParseIP(dest)
	if i.DestIP == nil {
		addrs, err := net.LookupIP(dest)
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			if a.To4() != nil {
				i.DestIP = a
				break
			}
		}
	}
	if i.DestIP == nil || i.DestIP.To4() == nil {
		return nil, fmt.Errorf("no IPv4 address for %s", dest)
	}
	return i, nil
}

// MeasureReplyDelay sends TestCount echo requests one after another and
// collects the round trip of every matching reply. Lost packets are counted
// as attempts without a sample.
func (i *IcmpPacket) MeasureReplyDelay(ctx context.Context) (speedtester.LatencyReading, error) {
	var reading speedtester.LatencyReading

	if i.DestIP == nil {
		return reading, errors.New("destination IP address is empty")
	}
	if i.CustomInternetProtoID == 0 {
		i.CustomInternetProtoID = os.Getpid() & 0xffff
	}
	if i.CustomSequenceNum == 0 {
		i.CustomSequenceNum = rand.IntN(0xff00)
	}
	if len(i.Data) == 0 {
		i.Data = append([]byte(nil), defaultEchoData...)
	}

	network, address := "udp4", "0.0.0.0"
	if i.Privileged {
		network = "ip4:icmp"
	}
	c, err := icmp.ListenPacket(network, address)
	if err != nil {
		return reading, fmt.Errorf("listen %s: %w", network, err)
	}
	defer c.Close()

	var dst net.Addr = &net.UDPAddr{IP: i.DestIP}
	if i.Privileged {
		dst = &net.IPAddr{IP: i.DestIP}
	}

	for n := 0; n < int(i.TestCount); n++ {
		if n > 0 {
			if err := sleep(ctx, i.DelayBetweenEachPacket); err != nil {
				return reading, err
			}
		}
		if err := ctx.Err(); err != nil {
			return reading, err
		}
		reading.Attempts++

		seq := (i.CustomSequenceNum + n) & 0xffff
		rtt, err := i.echo(ctx, c, dst, seq)
		if err != nil {
			if ctx.Err() != nil {
				return reading, ctx.Err()
			}
			if i.Verbose {
				customlog.Printf(customlog.Failure, "icmp_seq=%d %v\n", seq, err)
			}
			continue
		}
		ms := float64(rtt) / float64(time.Millisecond)
		if i.Verbose {
			customlog.Printf(customlog.Success, "Reply from %s: bytes=%d icmp_seq=%d time=%.2fms\n",
				i.DestIP, len(i.Data), seq, ms)
		}
		reading.Samples = append(reading.Samples, ms)
	}
	return reading, nil
}

func (i *IcmpPacket) echo(ctx context.Context, c *icmp.PacketConn, dst net.Addr, seq int) (time.Duration, error) {
	wm := icmp.Message{
		Type: ipv4.ICMPTypeEcho, Code: 0,
		Body: &icmp.Echo{
			ID: i.CustomInternetProtoID, Seq: seq,
			Data: i.Data,
		},
	}
	wb, err := wm.Marshal(nil)
	if err != nil {
		return 0, err
	}

	deadline := time.Now().Add(i.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	start := time.Now()
	if _, err := c.WriteTo(wb, dst); err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}

	rb := make([]byte, 1500)
	for {
		n, _, err := c.ReadFrom(rb)
		if err != nil {
			return 0, fmt.Errorf("read: %w", err)
		}
		rm, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), rb[:n])
		if err != nil {
			continue
		}
		if rm.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		// the kernel rewrites the ID of unprivileged echo, so only seq is compared
		if body, ok := rm.Body.(*icmp.Echo); ok && body.Seq == seq {
			return time.Since(start), nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
