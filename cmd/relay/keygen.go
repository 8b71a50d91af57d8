package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ZentaChain/zentalk-collab/pkg/crypto"
)

func keygenCmd() *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the Ed25519 key that signs claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to replace it)", out)
			}
			key, err := crypto.GenerateSigningKey()
			if err != nil {
				return err
			}
			pemData, err := crypto.ExportSigningKeyPEM(key)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(out, pemData, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ signing key saved to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "./keys/signing.pem", "output path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	return cmd
}
