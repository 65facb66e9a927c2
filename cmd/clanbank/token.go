package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/clanbank/internal/api"
)

func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a bearer token for the HTTP API",
		Long: `Sign a token with api.jwt_secret for a client of "clanbank serve", usually
the chat bot itself.`,
		Example: `  clanbank token discord-bot --ttl 8760h`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if appCfg.API.JWTSecret == "" {
				return fmt.Errorf("api.jwt_secret is not set")
			}

			token, err := api.MintToken(appCfg.API.JWTSecret, appCfg.API.JWTIssuer, args[0], time.Now(), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")

	return cmd
}
