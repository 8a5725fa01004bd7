package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jra3/msync/internal/config"
	"github.com/jra3/msync/internal/mastodon"
	"github.com/jra3/msync/internal/options"
	"github.com/jra3/msync/internal/send"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Dispatch one account's queued favourites, boosts, and posts",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

var syncAllCmd = &cobra.Command{
	Use:   "sync-all",
	Short: "Dispatch every registered account's queues",
	Args:  cobra.NoArgs,
	RunE:  runSyncAll,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(syncAllCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	account := accountFlag(cmd)
	if account == "" {
		return fmt.Errorf("an --account is required")
	}

	registry := options.NewRegistry(config.AccountsDir())
	name, err := registry.Resolve(account)
	if err != nil {
		return fmt.Errorf("%s: %w", account, err)
	}
	halted, err := sendAccount(cmd.Context(), registry, name)
	if err != nil {
		return err
	}
	if halted {
		return fmt.Errorf("%s: send halted early, some queued items are still pending", name)
	}
	return nil
}

func runSyncAll(cmd *cobra.Command, args []string) error {
	registry := options.NewRegistry(config.AccountsDir())
	names, err := registry.Names()
	if err != nil {
		return err
	}

	failed := false
	for _, name := range names {
		halted, err := sendAccount(cmd.Context(), registry, name)
		if err != nil {
			fmt.Printf("%s: %v\n", name, err)
			failed = true
			continue
		}
		if halted {
			fmt.Printf("%s: send halted early, some queued items are still pending\n", name)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("one or more accounts failed to sync")
	}
	return nil
}

// sendAccount dispatches one account's queues and reports whether its
// send halted early (a network failure or a skipped dependent left an
// item queued), in which case the caller should produce a non-zero exit.
// Filesystem and configuration problems come back as the error instead.
func sendAccount(ctx context.Context, registry *options.Registry, name string) (bool, error) {
	u, err := registry.Open(name)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	defer u.Close()

	instanceURL, ok := u.GetString(options.InstanceURL)
	if !ok || instanceURL == "" {
		return false, fmt.Errorf("%s: instance_url is not set", name)
	}
	accessToken, ok := u.GetString(options.AccessToken)
	if !ok || accessToken == "" {
		return false, fmt.Errorf("%s: access_token is not set", name)
	}

	appCfg, err := config.Load()
	if err != nil {
		return false, fmt.Errorf("%s: loading app config: %w", name, err)
	}

	client := mastodon.NewClient(appCfg.HTTP.Timeout, appCfg.RateLimit.RequestsPerSecond, appCfg.RateLimit.Burst)
	defer client.Close()

	engine := send.NewEngine(client, appCfg.Retries, instanceURL, accessToken)
	if ctx == nil {
		ctx = context.Background()
	}
	halted, err := engine.Send(ctx, registry.Dir(name))
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return halted, nil
}
