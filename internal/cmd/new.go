package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jra3/msync/internal/config"
	"github.com/jra3/msync/internal/options"
	"github.com/jra3/msync/internal/post"
	"github.com/jra3/msync/internal/store"
)

var draftCmd = &cobra.Command{
	Use:   "draft <text>",
	Short: "Draft a new outgoing post and enqueue it",
	Args:  cobra.ExactArgs(1),
	RunE:  runNew,
}

func init() {
	rootCmd.AddCommand(draftCmd)
	draftCmd.Flags().String("cw", "", "content warning")
	draftCmd.Flags().String("vis", "", "visibility: default|public|unlisted|private|direct")
	draftCmd.Flags().String("reply-to", "", "server id, or a reply_id token from an earlier queued post, this post replies to")
	draftCmd.Flags().String("reply-id", "", "local token later drafts in this queue can target with --reply-to")
	draftCmd.Flags().StringArray("attach", nil, "attachment file path, repeatable, order-significant")
	draftCmd.Flags().StringArray("descr", nil, "description for the attachment at the same position, repeatable")
}

func runNew(cmd *cobra.Command, args []string) error {
	account := accountFlag(cmd)
	if account == "" {
		return fmt.Errorf("an --account is required")
	}
	registry := options.NewRegistry(config.AccountsDir())
	name, err := registry.Resolve(account)
	if err != nil {
		return fmt.Errorf("%s: %w", account, err)
	}

	cw, _ := cmd.Flags().GetString("cw")
	vis, _ := cmd.Flags().GetString("vis")
	replyTo, _ := cmd.Flags().GetString("reply-to")
	replyID, _ := cmd.Flags().GetString("reply-id")
	attachments, _ := cmd.Flags().GetStringArray("attach")
	descriptions, _ := cmd.Flags().GetStringArray("descr")

	visibility := post.VisibilityDefault
	if vis != "" {
		parsed, err := post.ParseVisibility(vis)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		visibility = parsed
	}

	p := &post.Post{
		Text:           args[0],
		ContentWarning: cw,
		Visibility:     visibility,
		ReplyToID:      replyTo,
		ReplyID:        replyID,
		Attachments:    attachments,
		Descriptions:   descriptions,
	}

	queues := store.NewQueues(registry.Dir(name))
	if err := queues.EnsurePostsDir(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	filename := "post-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	path := filepath.Join(queues.PostsDir(), filename)
	if err := p.Save(path); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := queues.Enqueue(store.Post, []string{filename}); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
