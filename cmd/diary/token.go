package main

import (
	"errors"
	"fmt"
	"time"

	"diary/internal/auth"
	"diary/internal/config"

	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		userID uint64
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed API token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return errors.New("--user is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := auth.NewJWT(cfg.JWTSecret).WithTTL(ttl).Sign(userID)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&userID, "user", 0, "user id the token is issued for")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "token lifetime")
	return cmd
}
