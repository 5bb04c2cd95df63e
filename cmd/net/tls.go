package net

import (
	"fmt"
	"net"

	"github.com/vnetscan/vnetscan/network"
	"github.com/vnetscan/vnetscan/utils/customlog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	tlsSNI      string
	tlsInsecure bool
)

// TlsCmd represents the tls command
var TlsCmd = &cobra.Command{
	Use:   "tls <host[:port]>",
	Short: "Time a TCP connect and TLS handshake with a browser ClientHello",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := args[0]
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, "443")
		}

		res, err := network.MeasureTLSHandshake(cmd.Context(), addr, tlsSNI, tlsInsecure)
		if err != nil {
			return err
		}
		customlog.Printf(customlog.Success, "TLS handshake with %s completed\n", res.Address)
		fmt.Printf("%s: %s\n%s: %.2fms\n%s: %.2fms\n%s: %s\n%s: %s\n%s: %s\n",
			color.RedString("Server name"), res.ServerName,
			color.RedString("TCP connect"), res.ConnectMs,
			color.RedString("Handshake"), res.HandshakeMs,
			color.RedString("Version"), res.Version,
			color.RedString("Cipher suite"), res.CipherSuite,
			color.RedString("ALPN"), res.ALPN)
		return nil
	},
}

func init() {
	TlsCmd.Flags().StringVarP(&tlsSNI, "sni", "s", "", "Server name (defaults to the host)")
	TlsCmd.Flags().BoolVarP(&tlsInsecure, "insecure", "e", false, "Skip certificate verification")
}
