package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const apiKeyEnv = "REPAIRBOARD_API_KEY"

func newApikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the API key that protects a server exposed on the network",
	}
	cmd.AddCommand(newApikeyGenerateCmd())
	return cmd
}

func newApikeyGenerateCmd() *cobra.Command {
	var (
		envFile string
		quiet   bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print a random 256-bit API key and how to use it",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := newAPIKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if quiet {
				_, _ = fmt.Fprintln(out, key)
				return nil
			}
			_, _ = fmt.Fprintf(out, "Generated API key (save it somewhere safe):\n\n  %s\n\n", key)
			if envFile != "" {
				if err := appendEnv(envFile, apiKeyEnv, key); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "Appended %s to %s\nStart the server with: repairboard serve --env-file %s\n", apiKeyEnv, envFile, envFile)
				return nil
			}
			printAPIKeyUsage(out, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", "", "Append "+apiKeyEnv+"=<key> to this file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the key")
	return cmd
}

func newAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func appendEnv(path, name, value string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, "%s=%s\n", name, value); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func printAPIKeyUsage(w io.Writer, key string) {
	_, _ = fmt.Fprintf(w, `Use it:
  server:  export %[1]s=%[2]s
           or put it in .env and run: repairboard serve --env-file .env
  clients: repairboard --api-key <key> ..., or send the header X-API-Key: <key>
           (browsers' EventSource can use ?api_key=<key> on /stream)
`, apiKeyEnv, key)
}
