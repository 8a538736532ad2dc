package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/chat-template-codecs/internal/auth"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen <api-key>",
	Short: "Print the config entry for an API key",
	Long:  "Generates a SHA-256 hash of the provided API key for server.api_keys in config.yaml.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyHash := auth.HashAPIKey(args[0])

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "SHA-256 Hash: %s\n", keyHash)
		fmt.Fprintln(out, "\nAdd this to your config.yaml:")
		fmt.Fprintln(out, "server:")
		fmt.Fprintln(out, "  api_keys:")
		fmt.Fprintf(out, "    - key_hash: %q\n", keyHash)
		fmt.Fprintf(out, "      description: %q\n", "Generated key")
		return nil
	},
}
