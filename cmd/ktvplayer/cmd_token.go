package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dzero1996/Nebula-KTV/internal/auth"
)

var (
	tokenDevice string
	tokenRoom   string
	tokenScopes []string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a control API token for a remote or display",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		if cfg.ControlJWTKey == "" {
			return errors.New("KTV_CONTROL_JWT_KEY is not set; the control API is unauthenticated")
		}
		for _, scope := range tokenScopes {
			if scope != auth.ScopeRead && scope != auth.ScopeControl {
				return fmt.Errorf("unknown scope %q", scope)
			}
		}

		token, err := auth.Issue([]byte(cfg.ControlJWTKey), auth.Claims{
			DeviceID: tokenDevice,
			Room:     tokenRoom,
			Scopes:   tokenScopes,
		}, tokenTTL)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenDevice, "device", "", "device ID embedded in the token")
	tokenCmd.Flags().StringVar(&tokenRoom, "room", "", "room the device belongs to")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", []string{auth.ScopeRead}, "scopes to grant (player:read, player:control)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("device")
	rootCmd.AddCommand(tokenCmd)
}
