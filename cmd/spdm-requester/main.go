// Command spdm-requester drives one full SPDM exchange against a
// responder: version/capability/algorithm negotiation, then either
// digest and certificate retrieval, CHALLENGE and a KEY_EXCHANGE/FINISH
// handshake, or (with --psk) a PSK_EXCHANGE/PSK_FINISH handshake,
// followed by a heartbeat and a key update when the responder advertises
// them, and a clean session teardown. It sends no GET_MEASUREMENTS.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "github.com/openspdm/spdm-go/internal/cryptoinit"
)

var (
	dialAddr     string
	slot         uint8
	usePSK       bool
	pskHintID    string
	pskSecretEnv string
	timeout      time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "spdm-requester",
	Short: "SPDM requester CLI",
	Long: `spdm-requester connects to a responder over a WebSocket transport
and drives a full SPDM exchange: negotiation, certificate retrieval and
challenge, a session handshake (certificate or PSK authenticated), and
a clean teardown.`,
	RunE: runExchange,
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "spdm-requester: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVar(&dialAddr, "dial-addr", "ws://127.0.0.1:4433/spdm", "WebSocket URL of the responder")
	rootCmd.Flags().Uint8Var(&slot, "slot", 0, "certificate slot to request/challenge")
	rootCmd.Flags().BoolVar(&usePSK, "psk", false, "authenticate the session with a pre-shared key instead of the slot's certificate")
	rootCmd.Flags().StringVar(&pskHintID, "psk-hint", "", "PSK hint ID (required with --psk)")
	rootCmd.Flags().StringVar(&pskSecretEnv, "psk-secret-env", "SPDM_PSK_SECRET", "environment variable holding the pre-shared secret")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "per-exchange timeout")
}
