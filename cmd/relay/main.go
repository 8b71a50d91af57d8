package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "relay",
		Short:        "Zentalk collaboration relay",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), keygenCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relay and protocol versions",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relay %s (protocol %d)\n", version, protocol.ProtocolVersion)
		},
	}
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════════╗")
	fmt.Println("║        Zentalk Collaboration Relay v1.0          ║")
	fmt.Println("║    End-to-end encrypted rooms, opaque payloads   ║")
	fmt.Println("╚═══════════════════════════════════════════════════╝")
	fmt.Println()
}
