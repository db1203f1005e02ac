package main

import (
	"fmt"

	"deployhook/internal/security"

	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a webhook secret",
	Long: `Print a random secret suitable for a repository's "secret" setting.
Paste the same value into the webhook configuration on GitHub.`,
	Args: cobra.NoArgs,
	RunE: runSecret,
}

func runSecret(cmd *cobra.Command, args []string) error {
	secret, err := security.GenerateSecret()
	if err != nil {
		return fmt.Errorf("failed to generate secret: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), secret)
	return nil
}
