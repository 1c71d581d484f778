package main

import (
	"os"

	"github.com/spf13/cobra"
)

// проставляется через -ldflags при сборке
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:     "bank-notify-bot",
		Short:   "Telegram bot for bank balance, transactions and new transaction alerts",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to .env file, ignored if missing")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the bot and the transaction poller",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBot(cmd.Context(), envFile)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the bank_users table if it does not exist",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context(), envFile)
			},
		},
	)

	return rootCmd
}
