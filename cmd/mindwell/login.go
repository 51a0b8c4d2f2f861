package main

import (
	"context"
	"fmt"
	"time"

	mindwell "github.com/mindwell-health/mindwell-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(whoamiCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <token>",
	Short: "Store an access token and verify it",
	Long:  "Store a Mindwell access token in the config file and verify it against the API.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Auth.Token = token

		var opts []mindwell.ClientOption
		if cfg.Default.BaseURL != "" {
			opts = append(opts, mindwell.WithBaseURL(cfg.Default.BaseURL))
		}
		client := mindwell.NewClient(token, opts...)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		user, err := client.Me(ctx)
		if err != nil {
			return fmt.Errorf("token verification failed: %w", err)
		}

		cfg.Auth.UserID = user.ID
		cfg.Auth.UserName = user.DisplayName()
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Logged in as %s (%s)\n", user.DisplayName(), user.ID)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated user",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		user, err := client.Me(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch user: %w", err)
		}
		fmt.Printf("%s (%s)\n", user.DisplayName(), user.ID)
		if user.Role != "" {
			fmt.Printf("Role: %s\n", user.Role)
		}
		return nil
	},
}
