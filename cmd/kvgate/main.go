// kvgate is the gateway's server entrypoint: it loads configuration, builds
// the C1-C12 component graph, and runs the event loop until signalled to
// stop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kvgate",
	Short: "kvgate - Nostr-relay Redis-compatible KV gateway",
	Long: `kvgate exposes a scoped, revocable key-value store over Nostr relay
events: clients authenticate with a paired keypair, are confined to a
namespace and a closed set of methods, and every request is rate-limited,
budgeted, and audited.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
