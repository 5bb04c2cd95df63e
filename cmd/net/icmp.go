package net

import (
	"time"

	"github.com/vnetscan/vnetscan/network"

	"github.com/spf13/cobra"
)

var (
	icmpCount      uint16
	icmpPrivileged bool
	icmpTimeout    time.Duration
	icmpInterval   time.Duration
)

// IcmpCmd represents the icmp command
var IcmpCmd = &cobra.Command{
	Use:   "icmp <host>",
	Short: "PING a host with ICMP echo requests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		icmp, err := network.NewIcmpPacket(args[0], icmpCount,
			network.WithPrivileged(icmpPrivileged),
			network.WithReplyTimeout(icmpTimeout),
			network.WithPacketDelay(icmpInterval),
			network.WithIcmpVerbose(true),
		)
		if err != nil {
			return err
		}

		reading, err := icmp.MeasureReplyDelay(cmd.Context())
		if err != nil {
			return err
		}
		printReading("ICMP", icmp.DestIP.String(), reading)
		return nil
	},
}

func init() {
	IcmpCmd.Flags().Uint16VarP(&icmpCount, "count", "c", 4, "Count of echo requests")
	IcmpCmd.Flags().BoolVar(&icmpPrivileged, "privileged", false, "Use a raw socket (root) instead of an unprivileged ping socket")
	IcmpCmd.Flags().DurationVar(&icmpTimeout, "timeout", 3*time.Second, "Reply timeout")
	IcmpCmd.Flags().DurationVarP(&icmpInterval, "interval", "i", time.Second, "Pause between requests")
}
