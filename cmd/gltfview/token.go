package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamkard/gltfview/internal/auth"
)

// NewTokenCmd creates the token command.
func NewTokenCmd() *cobra.Command {
	var client string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the load endpoints",
		Long:  `Issue a token signed with JWT_SECRET for POST /api/v1/load and /api/v1/load/url.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := auth.New(os.Getenv("JWT_SECRET"))
			token, err := a.IssueToken(client, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&client, "client", "cli", "client name recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
