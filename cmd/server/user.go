package main

import (
	"fmt"
	"strings"

	"github.com/Priya8975/envelope-relay/internal/api"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage notification recipients",
}

var userAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Create a user",
	Example: `  relay user add --name alice --password 'correct horse' --telegram-chat-id 123456`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("name")
		password, _ := cmd.Flags().GetString("password")
		chatID, _ := cmd.Flags().GetString("telegram-chat-id")

		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("--name is required")
		}
		if len(password) < 8 {
			return fmt.Errorf("--password must be at least 8 characters")
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		pgStore, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pgStore.Close()

		hash, err := api.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}

		var chat *string
		if chatID != "" {
			chat = &chatID
		}
		user, err := pgStore.CreateUser(cmd.Context(), name, hash, chat)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", user.ID, user.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)

	userAddCmd.Flags().String("name", "", "user name")
	userAddCmd.Flags().String("password", "", "user password")
	userAddCmd.Flags().String("telegram-chat-id", "", "Telegram chat id to notify")
}
