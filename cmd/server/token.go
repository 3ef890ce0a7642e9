package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/Wyydra/rendezvous/internal/adapter/driving/auth"
	"github.com/Wyydra/rendezvous/internal/config"
	"github.com/spf13/cobra"
)

func newTokenCmd(f *flags) *cobra.Command {
	var (
		room    string
		subject string
		secret  string
		issuer  string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a room token for the configured JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("secret") {
				cfg.Auth.JWTSecret = secret
			}
			if cmd.Flags().Changed("issuer") {
				cfg.Auth.JWTIssuer = issuer
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("no JWT secret configured")
			}

			token, err := auth.NewJWTHandler([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer).Sign(room, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&room, "room", "", "room the token is valid for (empty allows any)")
	cmd.Flags().StringVar(&subject, "subject", "", "peer id carried by the token")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret (overrides configuration)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "token issuer (overrides configuration)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}
