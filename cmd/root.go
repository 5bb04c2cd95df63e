package cmd

import (
	"os"

	"github.com/vnetscan/vnetscan/cmd/config"
	"github.com/vnetscan/vnetscan/cmd/history"
	"github.com/vnetscan/vnetscan/cmd/net"
	"github.com/vnetscan/vnetscan/cmd/probe"
	"github.com/vnetscan/vnetscan/cmd/serve"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "vnetscan",
	Short:   "Bandwidth, latency and network diagnostics probe",
	Version: "1.0.0",
	// Main tools:
	//1. probe: latency/jitter/download/upload detection cycle against a vNetscan server.
	//2. serve: the probe endpoints, dashboard and control API.
	//3. net: TCP, ICMP, TLS, STUN and link diagnostics.
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func addSubcommandPalettes() {
	rootCmd.AddCommand(probe.ProbeCmd)
	rootCmd.AddCommand(serve.ServeCmd)
	rootCmd.AddCommand(net.NetCmd)
	rootCmd.AddCommand(history.HistoryCmd)
	rootCmd.AddCommand(config.ConfigCmd)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.vnetscan/vnetscan.yaml)")
	addSubcommandPalettes()
}
