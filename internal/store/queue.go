package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Kind identifies one of the three per-account queues.
type Kind string

const (
	Fav   Kind = "fav"
	Boost Kind = "boost"
	Post  Kind = "post"
)

func (k Kind) filename() string {
	return string(k) + ".queue"
}

// queueLines is the in-memory container for a queue file: an ordered,
// insertion-order-significant sequence of lines.
type queueLines struct {
	lines []string
}

func newQueueLines() *queueLines { return &queueLines{} }

func parseQueueLine(c *queueLines, line string) error {
	c.lines = append(c.lines, line)
	return nil
}

func serializeQueueLines(c *queueLines, w io.Writer) error {
	for _, line := range c.lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Queues manages the on-disk queue files rooted under a single account
// directory: fav.queue, boost.queue, post.queue, and the posts/
// sub-directory for outgoing-post files.
type Queues struct {
	accountDir string
}

// NewQueues returns a Queues rooted at accountDir (the per-account
// directory, not the msync_accounts root).
func NewQueues(accountDir string) *Queues {
	return &Queues{accountDir: accountDir}
}

// PostsDir is the sub-directory holding outgoing-post files.
func (q *Queues) PostsDir() string {
	return filepath.Join(q.accountDir, "posts")
}

func (q *Queues) path(kind Kind) string {
	return filepath.Join(q.accountDir, kind.filename())
}

func (q *Queues) open(kind Kind, readOnly bool) (*FileBacked[queueLines], error) {
	return Open(q.path(kind), newQueueLines, parseQueueLine, serializeQueueLines,
		Options{SkipBlank: true, SkipComment: true, ReadOnly: readOnly})
}

// List returns the current ordered contents of a queue without mutating it.
func (q *Queues) List(kind Kind) ([]string, error) {
	fb, err := q.open(kind, true)
	if err != nil {
		return nil, err
	}
	defer fb.Close()
	out := make([]string, len(fb.Parsed.lines))
	copy(out, fb.Parsed.lines)
	return out, nil
}

// Clear empties a queue.
func (q *Queues) Clear(kind Kind) error {
	fb, err := q.open(kind, false)
	if err != nil {
		return err
	}
	fb.Parsed.lines = nil
	return q.closeQueue(fb)
}

// closeQueue rewrites the queue file, or removes it outright once the
// queue has become empty: a queue file exists from first enqueue until
// the last line is removed, at which point the backing file itself is
// deleted rather than rewritten as an empty file.
func (q *Queues) closeQueue(fb *FileBacked[queueLines]) error {
	if len(fb.Parsed.lines) > 0 {
		return fb.Close()
	}
	path := fb.Path()
	fb.Release()
	if err := fb.Close(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing emptied queue file %s: %w", path, err)
	}
	return nil
}

// Enqueue appends ids to a queue. For Post queues this is a plain append.
// For Fav/Boost queues it applies the cancellation-on-append rule: adding
// "X" when "X-" is queued removes the "X-" line (and vice versa) instead
// of appending, so a pending add/remove pair never coexists.
func (q *Queues) Enqueue(kind Kind, ids []string) error {
	fb, err := q.open(kind, false)
	if err != nil {
		return err
	}

	if kind == Post {
		fb.Parsed.lines = append(fb.Parsed.lines, ids...)
		return q.closeQueue(fb)
	}
	for _, id := range ids {
		fb.Parsed.lines = appendWithCancellation(fb.Parsed.lines, id)
	}
	return q.closeQueue(fb)
}

// Dequeue is the symmetric counterpart of Enqueue for fav/boost: it
// appends the opposite form of each id, so "remove" cancels a pending
// "add" and vice versa. It is not meaningful for Post queues.
func (q *Queues) Dequeue(kind Kind, ids []string) error {
	fb, err := q.open(kind, false)
	if err != nil {
		return err
	}

	for _, id := range ids {
		fb.Parsed.lines = appendWithCancellation(fb.Parsed.lines, opposite(id))
	}
	return q.closeQueue(fb)
}

func opposite(id string) string {
	if strings.HasSuffix(id, "-") {
		return strings.TrimSuffix(id, "-")
	}
	return id + "-"
}

// appendWithCancellation implements the fav/boost inversion-on-append
// rule: appending X cancels a pending X- and appending X- cancels a
// pending X; otherwise the id is appended as a new line. This is an
// operation over an ordered sequence, not a set — duplicate adds with no
// intervening removal are permitted and each produces its own line.
func appendWithCancellation(lines []string, id string) []string {
	opp := opposite(id)
	for i, line := range lines {
		if line == opp {
			return append(lines[:i], lines[i+1:]...)
		}
	}
	return append(lines, id)
}

// Drain opens a queue once and feeds each entry, in order, to process.
// process reports whether the entry was handled (and should be removed)
// and whether the drain should halt — once halted, all remaining
// entries, including the one that triggered the halt if it was not
// removed, are left untouched. The file is rewritten exactly once when
// Drain returns, satisfying the "rewrite happens exactly once per send
// call per queue" invariant regardless of where processing stopped.
func (q *Queues) Drain(kind Kind, process func(id string) (removed bool, halt bool)) error {
	fb, err := q.open(kind, false)
	if err != nil {
		return err
	}

	var remaining []string
	halted := false
	for _, id := range fb.Parsed.lines {
		if halted {
			remaining = append(remaining, id)
			continue
		}
		removed, halt := process(id)
		if !removed {
			remaining = append(remaining, id)
		}
		if halt {
			halted = true
		}
	}
	fb.Parsed.lines = remaining
	return q.closeQueue(fb)
}

// DequeuePost removes the named outgoing-post file's queue line.
func (q *Queues) DequeuePost(name string) error {
	fb, err := q.open(Post, false)
	if err != nil {
		return err
	}

	for i, line := range fb.Parsed.lines {
		if line == name {
			fb.Parsed.lines = append(fb.Parsed.lines[:i], fb.Parsed.lines[i+1:]...)
			break
		}
	}
	return q.closeQueue(fb)
}

// EnsurePostsDir creates the posts/ sub-directory if it doesn't exist.
func (q *Queues) EnsurePostsDir() error {
	return os.MkdirAll(q.PostsDir(), 0755)
}
