package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gosuda/plank/internal/auth"
	"github.com/gosuda/plank/internal/config"
)

var (
	tokenUser string
	tokenName string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development access token",
	Long: `Mint an access token for a user, signed with PLANK_JWT_SECRET.

The token is printed to stdout and can be passed as a Bearer header, an
access_token query parameter or the plank_token cookie.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID, err := uuid.Parse(tokenUser)
		if err != nil {
			return fmt.Errorf("--user must be a UUID: %w", err)
		}
		if tokenName == "" {
			return fmt.Errorf("--name is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.JWT.AccessTTL
		}

		token, err := auth.IssueAccessToken(cfg.JWT.Secret, userID, tokenName, ttl)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User ID (UUID)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "Display name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default PLANK_JWT_ACCESS_TTL)")
	rootCmd.AddCommand(tokenCmd)
}
