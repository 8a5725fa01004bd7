// Package send implements the send engine: it drains an account's
// boost, fav, and post queues against an injected mastodon.Operations
// capability set, handling retries and the thread-substitution table
// that lets reply chains resolve to server-assigned status IDs.
package send

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jra3/msync/internal/mastodon"
	"github.com/jra3/msync/internal/post"
	"github.com/jra3/msync/internal/store"
)

// Engine drains one account's queues against Ops. Retries below 1 are
// clamped to 3 on construction.
type Engine struct {
	Ops           mastodon.Operations
	Retries       int
	InstanceURL   string
	AccessToken   string
	RetryInterval time.Duration
}

// NewEngine builds an Engine with the send policy's retry clamp applied.
func NewEngine(ops mastodon.Operations, retries int, instanceURL, accessToken string) *Engine {
	if retries < 1 {
		retries = 3
	}
	return &Engine{
		Ops:         ops,
		Retries:     retries,
		InstanceURL: instanceURL,
		AccessToken: accessToken,
	}
}

// Send drains boost, fav, then post queues rooted at accountDir, in
// that order. A network failure never escapes as an error here — it
// only stops further progress on the affected item or queue — so a
// caller syncing several accounts can move on to the next one regardless of
// network outcome. An error return means a filesystem problem occurred
// acquiring or rewriting a queue file. The bool return reports whether
// this account's send halted early: at least one item was left in its
// queue, whether because it failed outright or was skipped as a
// dependent of one that did.
func (e *Engine) Send(ctx context.Context, accountDir string) (bool, error) {
	queues := store.NewQueues(accountDir)

	boostHalted, err := e.sendActionQueue(ctx, queues, store.Boost, "reblog", "unreblog")
	if err != nil {
		return false, err
	}
	favHalted, err := e.sendActionQueue(ctx, queues, store.Fav, "favourite", "unfavourite")
	if err != nil {
		return false, err
	}
	postHalted, err := e.sendPostQueue(ctx, queues)
	if err != nil {
		return false, err
	}
	return boostHalted || favHalted || postHalted, nil
}

// sendActionQueue drives fav/boost: a terminal or retry-exhausted
// failure on one entry leaves it in place and the engine moves on to
// the next entry in the same queue — it does not abort the queue. The
// bool return reports whether any entry was left behind.
func (e *Engine) sendActionQueue(ctx context.Context, queues *store.Queues, kind store.Kind, addVerb, removeVerb string) (bool, error) {
	halted := false
	err := queues.Drain(kind, func(id string) (removed bool, halt bool) {
		verb := addVerb
		statusID := id
		if strings.HasSuffix(id, "-") {
			verb = removeVerb
			statusID = strings.TrimSuffix(id, "-")
		}
		url := fmt.Sprintf("https://%s/api/v1/statuses/%s/%s", e.InstanceURL, statusID, verb)
		resp := e.callWithRetry(ctx, func() mastodon.Response {
			return e.Ops.Post(ctx, url, e.AccessToken)
		})
		if !resp.OK {
			log.Printf("send: %s %s failed: %s", kind, id, resp.Message)
			halted = true
		}
		return resp.OK, false
	})
	return halted, err
}

// sendPostQueue drives the post queue. Unlike sendActionQueue, a
// terminal new_status failure scopes its damage to the failing post's
// direct dependents (skipped, not removed) rather than the rest of the
// queue. A terminal upload failure is different again: it halts every
// remaining post-queue entry outright, since an account with a broken
// upload path can make no further progress this send.
func (e *Engine) sendPostQueue(ctx context.Context, queues *store.Queues) (bool, error) {
	resolved := map[string]string{}          // reply_id token -> server id, for posts that succeeded
	failedPredecessor := map[string]string{} // reply_id token of a terminally-failed post -> its own resolved reply_to_id
	halted := false
	baseURL := "https://" + e.InstanceURL

	err := queues.Drain(store.Post, func(name string) (removed bool, halt bool) {
		postPath := filepath.Join(queues.PostsDir(), name)
		p, err := post.Load(postPath)
		if err != nil {
			log.Printf("send: skipping unreadable post %s: %v", name, err)
			halted = true
			return false, false
		}

		if predecessorID, skip := failedPredecessor[p.ReplyToID]; skip {
			p.ReplyToID = predecessorID
			if err := p.Save(postPath); err != nil {
				log.Printf("send: rewriting skipped post %s: %v", name, err)
			}
			halted = true
			return false, false
		}

		if serverID, ok := resolved[p.ReplyToID]; ok {
			p.ReplyToID = serverID
		}

		attachmentIDs := make([]string, 0, len(p.Attachments))
		for i, path := range p.Attachments {
			description := p.Description(i)
			absPath, err := filepath.Abs(path)
			if err != nil {
				log.Printf("send: resolving attachment path %s: %v", path, err)
				absPath = path
			}
			resp := e.callWithRetry(ctx, func() mastodon.Response {
				return e.Ops.Upload(ctx, baseURL, e.AccessToken, absPath, description)
			})
			if !resp.OK {
				log.Printf("send: upload %s failed, halting post queue: %s", path, resp.Message)
				halted = true
				return false, true
			}
			attachmentIDs = append(attachmentIDs, resp.Message)
		}

		params := mastodon.StatusParams{
			Body:           p.Text,
			ContentWarning: p.ContentWarning,
			Visibility:     visibilityParam(p.Visibility),
			InReplyToID:    p.ReplyToID,
			AttachmentIDs:  attachmentIDs,
		}
		resp := e.callWithRetry(ctx, func() mastodon.Response {
			return e.Ops.NewStatus(ctx, baseURL, e.AccessToken, params)
		})

		if resp.OK {
			if p.ReplyID != "" {
				resolved[p.ReplyID] = resp.Message
			}
			// Rewrite before removing so the sent draft's prior content
			// survives as <name>.bak.
			if err := p.Save(postPath); err != nil {
				log.Printf("send: rewriting sent post %s: %v", name, err)
			}
			if err := os.Remove(postPath); err != nil && !os.IsNotExist(err) {
				log.Printf("send: removing sent post file %s: %v", name, err)
			}
			return true, false
		}

		log.Printf("send: post %s failed: %s", name, resp.Message)
		halted = true
		if p.ReplyID != "" {
			failedPredecessor[p.ReplyID] = p.ReplyToID
		}
		if err := p.Save(postPath); err != nil {
			log.Printf("send: rewriting failed post %s: %v", name, err)
		}
		return false, false
	})
	return halted, err
}

func visibilityParam(v post.Visibility) string {
	if v == post.VisibilityDefault {
		return ""
	}
	return string(v)
}

// callWithRetry runs call up to e.Retries total attempts via a uniform
// (non-exponential) backoff, stopping immediately on a non-retryable
// response. The final response, success or not, is returned.
func (e *Engine) callWithRetry(ctx context.Context, call func() mastodon.Response) mastodon.Response {
	var last mastodon.Response

	retries := e.Retries
	if retries < 1 {
		retries = 3
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.RetryInterval), uint64(retries-1)),
		ctx,
	)

	_ = backoff.Retry(func() error {
		last = call()
		switch {
		case last.OK:
			return nil
		case last.Retryable:
			return fmt.Errorf("retryable response: %s", last.Message)
		default:
			return backoff.Permanent(fmt.Errorf("terminal response: %s", last.Message))
		}
	}, policy)

	return last
}
