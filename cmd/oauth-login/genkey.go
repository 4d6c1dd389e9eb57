package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/oauth-login/security"
)

func newGenkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Print a new base64 encryption key for session values at rest",
		Long: `Prints a random AES-256 key encoded as base64, suitable for
storage.encryptionKey or OAUTH_LOGIN_ENCRYPTION_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := security.GenerateKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), security.KeyToBase64(key))
			return err
		},
	}
}
