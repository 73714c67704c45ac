package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hackstack/hack/pkg/types"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage gateway access tokens",
}

var tokensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tokens (secrets are never shown)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		tokens, err := c.Tokens(cmd.Context())
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			fmt.Println("No tokens")
			return nil
		}

		fmt.Printf("%-38s %-16s %-6s %-20s %s\n", "ID", "LABEL", "SCOPE", "CREATED", "STATE")
		for _, t := range tokens {
			state := "active"
			if t.Revoked() {
				state = "revoked"
			}
			fmt.Printf("%-38s %-16s %-6s %-20s %s\n",
				t.ID, t.Label, t.Scope, t.CreatedAt.Format(time.RFC3339), state)
		}
		return nil
	},
}

var tokensCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Mint a gateway token",
	Long: `Mint a gateway token. The secret is printed exactly once and cannot
be recovered later. Re-minting with the same label and project revokes
the previous token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		label, _ := cmd.Flags().GetString("label")
		scope, _ := cmd.Flags().GetString("scope")
		project, _ := cmd.Flags().GetString("project")

		if !types.TokenScope(scope).Valid() {
			return usageErrorf("scope must be read or write, got %q", scope)
		}

		c, err := apiClient()
		if err != nil {
			return err
		}
		minted, err := c.MintToken(cmd.Context(), label, types.TokenScope(scope), project)
		if err != nil {
			return err
		}

		fmt.Printf("Token ID: %s\n", minted.Token.ID)
		fmt.Printf("Scope:    %s\n", minted.Token.Scope)
		if minted.Token.Label != "" {
			fmt.Printf("Label:    %s\n", minted.Token.Label)
		}
		fmt.Println()
		fmt.Printf("Secret (shown once): %s\n", minted.Secret)
		return nil
	},
}

var tokensRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		if err := c.RevokeToken(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Token revoked")
		return nil
	},
}

func init() {
	tokensCreateCmd.Flags().String("label", "", "stable label; re-minting the same label rotates the secret")
	tokensCreateCmd.Flags().String("scope", "read", "token scope: read or write")
	tokensCreateCmd.Flags().String("project", "", "bind the token to a project id")

	tokensCmd.AddCommand(tokensListCmd)
	tokensCmd.AddCommand(tokensCreateCmd)
	tokensCmd.AddCommand(tokensRevokeCmd)
}
