package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openspdm/spdm-go/internal/healthsrv"
)

var (
	tokenSecretEnv string
	tokenTTL       time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the JWT-gated /metrics and /healthz endpoints",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecretEnv, "secret-env", "SPDM_HEALTH_JWT_SECRET", "environment variable holding the admin HMAC secret")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token validity period")
}

func runToken(cmd *cobra.Command, args []string) error {
	secret := os.Getenv(tokenSecretEnv)
	if secret == "" {
		return fmt.Errorf("environment variable %s is not set", tokenSecretEnv)
	}
	tok, err := healthsrv.IssueAdminToken([]byte(secret), tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Println(tok)
	return nil
}
