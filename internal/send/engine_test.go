package send

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jra3/msync/internal/mastodon"
	"github.com/jra3/msync/internal/post"
	"github.com/jra3/msync/internal/store"
)

// mockOps records every call and lets each test script a canned
// sequence of responses per operation.
type mockOps struct {
	postCalls   []string
	newStatus   []mastodon.StatusParams
	uploadCalls []string

	postResponses      func(url string) mastodon.Response
	newStatusResponses func(params mastodon.StatusParams) mastodon.Response
	uploadResponses    func(filePath string) mastodon.Response
}

func (m *mockOps) Post(ctx context.Context, url, accessToken string) mastodon.Response {
	m.postCalls = append(m.postCalls, url)
	if m.postResponses != nil {
		return m.postResponses(url)
	}
	return mastodon.Response{OK: true, StatusCode: 200}
}

func (m *mockOps) Delete(ctx context.Context, url, accessToken string) mastodon.Response {
	return mastodon.Response{OK: true, StatusCode: 200}
}

func (m *mockOps) NewStatus(ctx context.Context, instanceURL, accessToken string, params mastodon.StatusParams) mastodon.Response {
	m.newStatus = append(m.newStatus, params)
	if m.newStatusResponses != nil {
		return m.newStatusResponses(params)
	}
	return mastodon.Response{OK: true, StatusCode: 200}
}

func (m *mockOps) Upload(ctx context.Context, instanceURL, accessToken, filePath, description string) mastodon.Response {
	m.uploadCalls = append(m.uploadCalls, filePath)
	if m.uploadResponses != nil {
		return m.uploadResponses(filePath)
	}
	return mastodon.Response{OK: true, StatusCode: 200}
}

func setupAccount(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	queues := store.NewQueues(dir)
	if err := queues.EnsurePostsDir(); err != nil {
		t.Fatal(err)
	}
	return dir
}

// Seed scenario 1.
func TestSendFavAlwaysSucceeds(t *testing.T) {
	t.Parallel()
	dir := setupAccount(t)
	queues := store.NewQueues(dir)
	if err := queues.Enqueue(store.Fav, []string{"someid", "someotherid", "mrid"}); err != nil {
		t.Fatal(err)
	}

	ops := &mockOps{}
	e := NewEngine(ops, 3, "example.social", "token")
	halted, err := e.Send(context.Background(), dir)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if halted {
		t.Error("Send reported halted = true, want false for an all-success run")
	}

	want := []string{
		"https://example.social/api/v1/statuses/someid/favourite",
		"https://example.social/api/v1/statuses/someotherid/favourite",
		"https://example.social/api/v1/statuses/mrid/favourite",
	}
	if len(ops.postCalls) != len(want) {
		t.Fatalf("post calls = %v, want %v", ops.postCalls, want)
	}
	for i, url := range want {
		if ops.postCalls[i] != url {
			t.Errorf("call %d = %q, want %q", i, ops.postCalls[i], url)
		}
	}
	if len(ops.uploadCalls) != 0 || len(ops.newStatus) != 0 {
		t.Errorf("unexpected upload/new_status calls")
	}

	remaining, err := queues.List(store.Fav)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("fav queue = %v, want empty", remaining)
	}
}

// Seed scenario 2: two retryable failures then success, retries=3 -> 9 calls total.
func TestSendFavRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	dir := setupAccount(t)
	queues := store.NewQueues(dir)
	if err := queues.Enqueue(store.Fav, []string{"someid", "someotherid", "mrid"}); err != nil {
		t.Fatal(err)
	}

	attemptsPerURL := map[string]int{}
	ops := &mockOps{
		postResponses: func(url string) mastodon.Response {
			attemptsPerURL[url]++
			if attemptsPerURL[url] <= 2 {
				return mastodon.Response{OK: false, Retryable: true, StatusCode: 503}
			}
			return mastodon.Response{OK: true, StatusCode: 200}
		},
	}
	e := NewEngine(ops, 3, "example.social", "token")
	halted, err := e.Send(context.Background(), dir)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if halted {
		t.Error("Send reported halted = true, want false once the retry eventually succeeds")
	}

	if len(ops.postCalls) != 9 {
		t.Fatalf("post calls = %d, want 9", len(ops.postCalls))
	}
	remaining, err := queues.List(store.Fav)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("fav queue = %v, want empty", remaining)
	}
}

// Seed scenario 3 (refined per (a)): every id fails terminally. All
// three are attempted exactly once, and the queue is left unchanged.
func TestSendFavAllTerminalFailuresAttemptedAndRetained(t *testing.T) {
	t.Parallel()
	dir := setupAccount(t)
	queues := store.NewQueues(dir)
	original := []string{"someid", "someotherid", "mrid"}
	if err := queues.Enqueue(store.Fav, original); err != nil {
		t.Fatal(err)
	}

	ops := &mockOps{
		postResponses: func(url string) mastodon.Response {
			return mastodon.Response{OK: false, Retryable: false, StatusCode: 500}
		},
	}
	e := NewEngine(ops, 3, "example.social", "token")
	halted, err := e.Send(context.Background(), dir)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !halted {
		t.Error("Send reported halted = false, want true since every item failed terminally")
	}

	if len(ops.postCalls) != 3 {
		t.Fatalf("post calls = %d, want 3 (one per item, no retries on fatal)", len(ops.postCalls))
	}
	remaining, err := queues.List(store.Fav)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != len(original) {
		t.Fatalf("fav queue = %v, want unchanged %v", remaining, original)
	}
}

// Seed scenario 4: retries of 0 or -1 clamp to 3.
func TestSendRetriesClampToThree(t *testing.T) {
	t.Parallel()
	for _, retries := range []int{0, -1} {
		dir := setupAccount(t)
		queues := store.NewQueues(dir)
		if err := queues.Enqueue(store.Boost, []string{"abc"}); err != nil {
			t.Fatal(err)
		}

		calls := 0
		ops := &mockOps{
			postResponses: func(url string) mastodon.Response {
				calls++
				if calls < 3 {
					return mastodon.Response{OK: false, Retryable: true, StatusCode: 503}
				}
				return mastodon.Response{OK: true, StatusCode: 200}
			},
		}
		e := NewEngine(ops, retries, "example.social", "token")
		halted, err := e.Send(context.Background(), dir)
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		if halted {
			t.Errorf("retries=%d: Send reported halted = true, want false", retries)
		}
		if calls != 3 {
			t.Errorf("retries=%d: calls = %d, want 3", retries, calls)
		}
	}
}

func writePost(t *testing.T, postsDir, name string, p *post.Post) {
	t.Helper()
	if err := p.Save(filepath.Join(postsDir, name)); err != nil {
		t.Fatalf("saving post %s: %v", name, err)
	}
}

// Seed scenario 5: a three-post reply chain plus one unrelated post,
// all succeeding.
func TestSendPostQueueThreadSubstitution(t *testing.T) {
	t.Parallel()
	dir := setupAccount(t)
	queues := store.NewQueues(dir)
	postsDir := queues.PostsDir()

	writePost(t, postsDir, "first.post", &post.Post{Text: "one", ReplyID: "r1"})
	writePost(t, postsDir, "second.post", &post.Post{Text: "two", ReplyToID: "r1", ReplyID: "r2"})
	writePost(t, postsDir, "third.post", &post.Post{
		Text: "three", ReplyToID: "r2",
		Attachments:  []string{"/tmp/a.png", "/tmp/b.png"},
		Descriptions: []string{"alt a", "alt b"},
	})
	writePost(t, postsDir, "fourth.post", &post.Post{
		Text: "four", ReplyToID: "777777",
		Attachments: []string{"/tmp/c.png", "/tmp/d.png", "/tmp/e.png", "/tmp/f.png"},
	})
	if err := queues.Enqueue(store.Post, []string{"first.post", "second.post", "third.post", "fourth.post"}); err != nil {
		t.Fatal(err)
	}

	nextID := 1000000
	ops := &mockOps{
		newStatusResponses: func(params mastodon.StatusParams) mastodon.Response {
			nextID++
			return mastodon.Response{OK: true, StatusCode: 200, Message: fmt.Sprintf("%d", nextID)}
		},
		uploadResponses: func(filePath string) mastodon.Response {
			return mastodon.Response{OK: true, StatusCode: 200, Message: "media-" + filepath.Base(filePath)}
		},
	}
	e := NewEngine(ops, 3, "example.social", "token")
	halted, err := e.Send(context.Background(), dir)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if halted {
		t.Error("Send reported halted = true, want false for an all-success thread")
	}

	wantInReplyTo := []string{"", "1000001", "1000002", "777777"}
	if len(ops.newStatus) != 4 {
		t.Fatalf("new_status calls = %d, want 4", len(ops.newStatus))
	}
	for i, want := range wantInReplyTo {
		if ops.newStatus[i].InReplyToID != want {
			t.Errorf("new_status[%d].InReplyToID = %q, want %q", i, ops.newStatus[i].InReplyToID, want)
		}
	}
	if len(ops.uploadCalls) != 6 {
		t.Fatalf("upload calls = %d, want 6", len(ops.uploadCalls))
	}

	remaining, err := queues.List(store.Post)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("post queue = %v, want empty", remaining)
	}
	for _, name := range []string{"first.post", "second.post", "third.post", "fourth.post"} {
		if _, err := os.Stat(filepath.Join(postsDir, name)); !os.IsNotExist(err) {
			t.Errorf("expected %s to be deleted", name)
		}
		if _, err := os.Stat(filepath.Join(postsDir, name+".bak")); err != nil {
			t.Errorf("expected %s.bak to remain: %v", name, err)
		}
	}
}

// Seed scenario 6: post 2's new_status fails terminally. Post 3 is
// skipped as a direct dependent (no network call); post 4, unrelated,
// is still sent. Post 2's on-disk reply_to_id is rewritten to post 1's
// resolved server id.
func TestSendPostQueueDependentSkipOnTerminalFailure(t *testing.T) {
	t.Parallel()
	dir := setupAccount(t)
	queues := store.NewQueues(dir)
	postsDir := queues.PostsDir()

	writePost(t, postsDir, "first.post", &post.Post{Text: "one", ReplyID: "r1"})
	writePost(t, postsDir, "second.post", &post.Post{Text: "two", ReplyToID: "r1", ReplyID: "r2"})
	writePost(t, postsDir, "third.post", &post.Post{Text: "three", ReplyToID: "r2"})
	writePost(t, postsDir, "fourth.post", &post.Post{Text: "four", ReplyToID: "777777"})
	if err := queues.Enqueue(store.Post, []string{"first.post", "second.post", "third.post", "fourth.post"}); err != nil {
		t.Fatal(err)
	}

	nextID := 1000000
	ops := &mockOps{
		newStatusResponses: func(params mastodon.StatusParams) mastodon.Response {
			if params.Body == "two" {
				return mastodon.Response{OK: false, Retryable: false, StatusCode: 422, Message: "rejected"}
			}
			nextID++
			return mastodon.Response{OK: true, StatusCode: 200, Message: fmt.Sprintf("%d", nextID)}
		},
	}
	e := NewEngine(ops, 3, "example.social", "token")
	halted, err := e.Send(context.Background(), dir)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !halted {
		t.Error("Send reported halted = false, want true since post two failed terminally")
	}

	bodies := make([]string, len(ops.newStatus))
	for i, p := range ops.newStatus {
		bodies[i] = p.Body
	}
	want := []string{"one", "two", "four"}
	if len(bodies) != len(want) {
		t.Fatalf("new_status bodies = %v, want %v (three skipped, no call)", bodies, want)
	}
	for i := range want {
		if bodies[i] != want[i] {
			t.Errorf("new_status[%d].Body = %q, want %q", i, bodies[i], want[i])
		}
	}

	remaining, err := queues.List(store.Post)
	if err != nil {
		t.Fatal(err)
	}
	wantRemaining := []string{"second.post", "third.post"}
	if len(remaining) != len(wantRemaining) {
		t.Fatalf("post queue = %v, want %v", remaining, wantRemaining)
	}
	for i, name := range wantRemaining {
		if remaining[i] != name {
			t.Errorf("remaining[%d] = %q, want %q", i, remaining[i], name)
		}
	}

	rewritten, err := post.Load(filepath.Join(postsDir, "second.post"))
	if err != nil {
		t.Fatal(err)
	}
	if rewritten.ReplyToID != "1000001" {
		t.Errorf("second.post ReplyToID on disk = %q, want %q", rewritten.ReplyToID, "1000001")
	}
}

// Refinement (b): a terminal upload failure halts the rest of the post
// queue outright, independent of dependency chains.
func TestSendPostQueueUploadFailureHaltsRemainder(t *testing.T) {
	t.Parallel()
	dir := setupAccount(t)
	queues := store.NewQueues(dir)
	postsDir := queues.PostsDir()

	writePost(t, postsDir, "first.post", &post.Post{Text: "one"})
	writePost(t, postsDir, "second.post", &post.Post{Text: "two", Attachments: []string{"/tmp/bad.png"}})
	writePost(t, postsDir, "third.post", &post.Post{Text: "three"})
	if err := queues.Enqueue(store.Post, []string{"first.post", "second.post", "third.post"}); err != nil {
		t.Fatal(err)
	}

	ops := &mockOps{
		uploadResponses: func(filePath string) mastodon.Response {
			return mastodon.Response{OK: false, Retryable: false, StatusCode: 422, Message: "unsupported media"}
		},
	}
	e := NewEngine(ops, 3, "example.social", "token")
	halted, err := e.Send(context.Background(), dir)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !halted {
		t.Error("Send reported halted = false, want true since an upload failed terminally")
	}

	if len(ops.newStatus) != 1 || ops.newStatus[0].Body != "one" {
		t.Fatalf("new_status calls = %v, want only post one", ops.newStatus)
	}
	remaining, err := queues.List(store.Post)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"second.post", "third.post"}
	if len(remaining) != len(want) {
		t.Fatalf("post queue = %v, want %v", remaining, want)
	}
}
