package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "msync",
	Short: "Queue and dispatch favourites, boosts, and posts against a Mastodon-API-family instance",
	Long: `msync persists your favourites, boosts, removals, and drafted posts to
local per-account queues, then dispatches them against the registered
instances with retry and threading semantics.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("account", "a", "", "account name or unambiguous prefix")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "accepted but ignored by every command")
}

func accountFlag(cmd *cobra.Command) string {
	account, _ := cmd.Flags().GetString("account")
	if account != "" {
		return account
	}
	account, _ = cmd.Root().PersistentFlags().GetString("account")
	return account
}
