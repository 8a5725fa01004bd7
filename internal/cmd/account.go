package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jra3/msync/internal/config"
	"github.com/jra3/msync/internal/options"
)

var newAccountCmd = &cobra.Command{
	Use:   "new <account-name>",
	Short: "Scaffold a new account directory",
	Long: `new creates <config>/msync_accounts/<account-name>/ and an empty
user.cfg with account_name pre-filled. It does not perform the OAuth
dance against the instance — set instance_url and access_token
afterwards with config.`,
	Args: cobra.ExactArgs(1),
	RunE: runNewAccount,
}

func init() {
	rootCmd.AddCommand(newAccountCmd)
}

func runNewAccount(cmd *cobra.Command, args []string) error {
	name := args[0]
	registry := options.NewRegistry(config.AccountsDir())
	u, err := registry.CreateAccount(name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer u.Close()

	fmt.Printf("created account %s\n", name)
	fmt.Println("set instance_url and access_token before syncing, e.g.:")
	fmt.Printf("  msync -a %s config instance_url example.social\n", name)
	fmt.Printf("  msync -a %s config access_token <token>\n", name)
	return nil
}
