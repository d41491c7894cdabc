package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/memo-service/internal/auth"
	"github.com/spec-kit/memo-service/internal/config"
)

func init() {
	var email string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token for an address",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runToken(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes), email, os.Stdout)
		},
	}
	tokenCmd.Flags().StringVarP(&email, "email", "e", "", "Caller address (required)")
	_ = tokenCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(tokens *auth.TokenManager, email string, out io.Writer) error {
	token, exp, err := tokens.GenerateToken(email)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, token)
	_, _ = fmt.Fprintf(out, "# expires %s\n", exp.UTC().Format(time.RFC3339))
	return nil
}
