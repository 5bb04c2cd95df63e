package net

import (
	"fmt"

	"github.com/vnetscan/vnetscan/network"
	"github.com/vnetscan/vnetscan/utils/customlog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// InfoCmd represents the info command
var InfoCmd = &cobra.Command{
	Use:   "info [host:port]",
	Short: "Show the connection type, link speed and kernel RTT the probe would use",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := ""
		if len(args) == 1 {
			target = args[0]
		}
		info, err := network.DetectConnection(cmd.Context(), target)
		if err != nil {
			customlog.Printf(customlog.Warning, "%v\n", err)
		}
		if !info.Available() && info.Type == "" {
			return fmt.Errorf("no network information available")
		}
		fmt.Printf("%s: %s\n%s: %.0f Mbps\n%s: %.2f ms\n%s: %s\n",
			color.RedString("Connection type"), info.Type,
			color.RedString("Link speed"), info.DownlinkMbps,
			color.RedString("Kernel RTT"), info.RTTMs,
			color.RedString("Effective type"), info.EffectiveType)
		return nil
	},
}
