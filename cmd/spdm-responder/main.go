// Command spdm-responder runs an SPDM responder: it accepts connections
// over a secured-message transport, answers the handshake and session
// exchanges out of its provisioned certificate/PSK state, and exposes
// Prometheus metrics and a JWT-gated health endpoint alongside the SPDM
// listener.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "spdm-responder",
	Short: "SPDM responder daemon",
	Long: `spdm-responder answers SPDM requests over a WebSocket transport,
serving GET_VERSION through END_SESSION out of a configured set of
certificate-chain slots and pre-shared keys.`,
	RunE: runServe,
}

func main() {
	// .env is optional in every environment; production deployments set
	// these directly, local/dev runs typically keep a .env file around.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "spdm-responder: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config-dir", "", "directory containing <env>.yaml/default.yaml/config.yaml (default: ./config)")
	rootCmd.AddCommand(tokenCmd)
}
