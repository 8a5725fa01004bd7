package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jra3/msync/internal/config"
	"github.com/jra3/msync/internal/options"
)

var configCmd = &cobra.Command{
	Use:   "config <key> <value>",
	Short: "Set, or show, an account's options",
	Args:  cobra.RangeArgs(0, 2),
	RunE:  runConfig,
}

var configShowAllCmd = &cobra.Command{
	Use:   "showall",
	Short: "Print every option for an account, including defaults",
	Args:  cobra.NoArgs,
	RunE:  runConfigShowAll,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowAllCmd)
}

func openAccountOptions(cmd *cobra.Command) (string, *options.UserOptions, error) {
	account := accountFlag(cmd)
	if account == "" {
		return "", nil, fmt.Errorf("an --account is required")
	}
	registry := options.NewRegistry(config.AccountsDir())
	name, err := registry.Resolve(account)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", account, err)
	}
	u, err := registry.Open(name)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", name, err)
	}
	return name, u, nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	name, u, err := openAccountOptions(cmd)
	if err != nil {
		return err
	}
	defer u.Close()

	key := args[0]
	if len(args) == 1 {
		value, err := u.Get(key)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Println(value)
		return nil
	}

	value := args[1]
	if err := u.Set(key, value); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func runConfigShowAll(cmd *cobra.Command, args []string) error {
	account := accountFlag(cmd)
	if account == "" {
		return fmt.Errorf("an --account is required")
	}
	registry := options.NewRegistry(config.AccountsDir())
	name, err := registry.Resolve(account)
	if err != nil {
		return fmt.Errorf("%s: %w", account, err)
	}
	u, err := registry.Open(name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer u.Close()

	for _, line := range u.ShowAll() {
		fmt.Println(line)
	}

	names, err := registry.Names()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	fmt.Printf("Accounts registered: %s\n", strings.Join(names, ", "))
	return nil
}
