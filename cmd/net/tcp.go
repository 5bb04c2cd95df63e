package net

import (
	"fmt"
	"net"
	"time"

	"github.com/vnetscan/vnetscan/network"
	"github.com/vnetscan/vnetscan/speedtester"
	"github.com/vnetscan/vnetscan/utils/customlog"

	"github.com/spf13/cobra"
)

var (
	tcpCount uint16
	tcpDelay time.Duration
)

// TcpCmd represents the tcp command
var TcpCmd = &cobra.Command{
	Use:   "tcp <host:port>",
	Short: "Measure TCP connection delay to a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := args[0]
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("address must be host:port: %w", err)
		}

		reading, err := network.MeasureTCP(cmd.Context(), addr, int(tcpCount), tcpDelay)
		if err != nil {
			return err
		}
		for i, ms := range reading.Samples {
			customlog.Printf(customlog.Success, "Established TCP connection #%d in %.2fms\n", i+1, ms)
		}
		printReading("TCP", addr, reading)
		return nil
	},
}

// printReading summarises a latency reading the way the probe does.
func printReading(kind, addr string, r speedtester.LatencyReading) {
	lost := r.Attempts - len(r.Samples)
	if len(r.Samples) == 0 {
		customlog.Printf(customlog.Failure, "%s %s: all %d attempts failed\n", kind, addr, r.Attempts)
		return
	}
	lo, hi := speedtester.MinMax(r.Samples)
	customlog.Printf(customlog.Finished, "%s %s: %d/%d ok, avg %.2fms, jitter %.2fms, min %.2fms, max %.2fms, loss %.0f%%\n",
		kind, addr, len(r.Samples), r.Attempts,
		speedtester.Round2(r.Mean()), speedtester.Round2(r.Jitter()), lo, hi,
		float64(lost)/float64(r.Attempts)*100)
}

func init() {
	TcpCmd.Flags().Uint16VarP(&tcpCount, "count", "c", 4, "Count of connections")
	TcpCmd.Flags().DurationVarP(&tcpDelay, "interval", "i", 500*time.Millisecond, "Pause between connections")
}
