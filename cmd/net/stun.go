package net

import (
	"time"

	"github.com/vnetscan/vnetscan/network"
	"github.com/vnetscan/vnetscan/pkg/config"
	"github.com/vnetscan/vnetscan/utils/customlog"

	"github.com/spf13/cobra"
)

var stunServers []string

// StunCmd represents the stun command
var StunCmd = &cobra.Command{
	Use:   "stun",
	Short: "Discover the public address and NAT behaviour via STUN",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadFrom(path)
		if err != nil {
			return err
		}
		servers := stunServers
		if len(servers) == 0 {
			servers = cfg.NetInfo.STUNServers
		}
		timeout := time.Duration(cfg.NetInfo.STUNTimeoutMs) * time.Millisecond

		addr, natType, err := network.PublicAddress(cmd.Context(), servers, timeout)
		if err != nil {
			return err
		}
		customlog.Printf(customlog.Success, "Public address: %s\n", addr)
		customlog.Printf(customlog.Info, "NAT type: %s\n", natType)
		return nil
	},
}

func init() {
	StunCmd.Flags().StringSliceVarP(&stunServers, "server", "s", nil, "STUN servers (host:port), repeatable")
}
