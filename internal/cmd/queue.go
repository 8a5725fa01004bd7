package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jra3/msync/internal/config"
	"github.com/jra3/msync/internal/options"
	"github.com/jra3/msync/internal/store"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Add to, remove from, or clear an account's fav/boost/post queues",
}

func init() {
	rootCmd.AddCommand(queueCmd)
	for _, kind := range []store.Kind{store.Fav, store.Boost, store.Post} {
		queueCmd.AddCommand(newQueueKindCmd(kind))
	}
}

func newQueueKindCmd(kind store.Kind) *cobra.Command {
	kindCmd := &cobra.Command{
		Use:   string(kind),
		Short: fmt.Sprintf("Operate on the %s queue", kind),
	}

	kindCmd.AddCommand(&cobra.Command{
		Use:   "add <id>...",
		Short: "Enqueue one or more ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccountQueues(cmd, func(name string, q *store.Queues) error {
				return q.Enqueue(kind, args)
			})
		},
	})

	kindCmd.AddCommand(&cobra.Command{
		Use:   "remove <id>...",
		Short: "Dequeue one or more ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccountQueues(cmd, func(name string, q *store.Queues) error {
				return q.Dequeue(kind, args)
			})
		},
	})

	kindCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccountQueues(cmd, func(name string, q *store.Queues) error {
				return q.Clear(kind)
			})
		},
	})

	return kindCmd
}

func withAccountQueues(cmd *cobra.Command, fn func(name string, q *store.Queues) error) error {
	account := accountFlag(cmd)
	if account == "" {
		return fmt.Errorf("an --account is required")
	}
	registry := options.NewRegistry(config.AccountsDir())
	name, err := registry.Resolve(account)
	if err != nil {
		return fmt.Errorf("%s: %w", account, err)
	}
	q := store.NewQueues(registry.Dir(name))
	if err := fn(name, q); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
