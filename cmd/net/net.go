package net

import (
	"github.com/spf13/cobra"
)

// NetCmd is the net subcommand (groups network diagnostic tools).
var NetCmd = &cobra.Command{
	Use:   "net",
	Short: "Network diagnostics: TCP and ICMP latency, TLS handshake, public address, link info",
	Long: `Low-level probes that complement the HTTP bandwidth test. Latency readings
are summarised with the same mean and jitter the probe command reports.`,
	Example: `  vnetscan net tcp example.com:443 -c 10
  vnetscan net icmp 1.1.1.1
  vnetscan net tls example.com
  vnetscan net stun
  vnetscan net info example.com:443`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func addSubcommandPalettes() {
	NetCmd.AddCommand(TcpCmd)
	NetCmd.AddCommand(IcmpCmd)
	NetCmd.AddCommand(TlsCmd)
	NetCmd.AddCommand(StunCmd)
	NetCmd.AddCommand(InfoCmd)
}

func init() {
	addSubcommandPalettes()
}
