package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"verifyflow.backend/internal/config"
	"verifyflow.backend/pkg/crypto"
	"verifyflow.backend/pkg/jwt"
)

var (
	Version = "dev"

	loadDotenv = godotenv.Load
	loadCfg    = config.Load
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "verifyctl",
		Short:         "Operator tooling for the verification service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = loadDotenv()
		},
	}

	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(queueCmd())
	return rootCmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh DOCUMENT_ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateMasterKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a webhook payload the way the provider does",
		Long: `Reads the payload from --file, or stdin when --file is "-" or empty,
and prints the hex HMAC-SHA256 signature for the X-Provider-Signature header.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				secret = loadCfg().Security.WebhookSecret
			}
			if secret == "" {
				return fmt.Errorf("a webhook secret is required (--secret or WEBHOOK_SECRET)")
			}

			path, _ := cmd.Flags().GetString("file")
			payload, err := readPayload(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), crypto.SignPayload([]byte(secret), payload))
			return nil
		},
	}

	cmd.Flags().StringP("secret", "s", "", "Webhook secret (defaults to WEBHOOK_SECRET)")
	cmd.Flags().StringP("file", "f", "", "Payload file, - for stdin")
	return cmd
}

func readPayload(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a customer or admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			role, _ := cmd.Flags().GetString("role")
			if role != jwt.RoleCustomer && role != jwt.RoleAdmin {
				return fmt.Errorf("role must be %q or %q", jwt.RoleCustomer, jwt.RoleAdmin)
			}

			subject := uuid.New()
			if raw, _ := cmd.Flags().GetString("subject"); raw != "" {
				parsed, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid subject: %w", err)
				}
				subject = parsed
			}

			cfg := loadCfg()
			token, err := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry).GenerateToken(subject, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().String("subject", "", "Subject id (random when empty)")
	cmd.Flags().StringP("role", "r", jwt.RoleCustomer, "customer or admin")
	return cmd
}
