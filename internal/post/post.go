// Package post implements the outgoing-post file: a header-lines-then-body
// text document describing one draft status, sharing the file-backed
// container's atomic-rewrite contract with the queue store.
package post

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jra3/msync/internal/store"
)

// Visibility mirrors the Mastodon-API-family status visibility enum.
// Default means "omit the parameter" when dispatched.
type Visibility string

const (
	VisibilityDefault  Visibility = "default"
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// ParseVisibility validates s against the recognized visibility names.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case VisibilityDefault, VisibilityPublic, VisibilityUnlisted, VisibilityPrivate, VisibilityDirect:
		return Visibility(s), nil
	}
	return "", fmt.Errorf("unknown visibility %q", s)
}

// Post is one draft status: body, metadata, threading tokens, and
// ordered attachments.
type Post struct {
	Text           string
	ContentWarning string
	Visibility     Visibility
	ReplyToID      string
	ReplyID        string
	Attachments    []string
	Descriptions   []string

	unknown []headerLine
}

type headerLine struct {
	prefix string
	value  string
}

const (
	prefixReplyTo = "reply_to="
	prefixReplyID = "reply_id="
	prefixCW      = "cw="
	prefixVis     = "vis="
	prefixAttach  = "attach="
	prefixDescr   = "descr="
)

// ErrMalformedFile is wrapped by Load when a header line can't be parsed:
// an invalid vis= value, or a header line with no '=' at all.
var ErrMalformedFile = fmt.Errorf("malformed outgoing-post file")

// Load parses an outgoing-post file at path: header lines until the
// first blank line, then the remainder verbatim as the body.
func Load(path string) (*Post, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	p := &Post{Visibility: VisibilityDefault}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	inBody := false
	var body []string
	for scanner.Scan() {
		line := scanner.Text()
		if inBody {
			body = append(body, line)
			continue
		}
		if line == "" {
			inBody = true
			continue
		}
		if err := p.parseHeaderLine(line); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFile, path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	p.Text = strings.Join(body, "\n")
	return p, nil
}

func (p *Post) parseHeaderLine(line string) error {
	switch {
	case strings.HasPrefix(line, prefixReplyTo):
		p.ReplyToID = strings.TrimPrefix(line, prefixReplyTo)
	case strings.HasPrefix(line, prefixReplyID):
		p.ReplyID = strings.TrimPrefix(line, prefixReplyID)
	case strings.HasPrefix(line, prefixCW):
		p.ContentWarning = strings.TrimPrefix(line, prefixCW)
	case strings.HasPrefix(line, prefixVis):
		v, err := ParseVisibility(strings.TrimPrefix(line, prefixVis))
		if err != nil {
			return err
		}
		p.Visibility = v
	case strings.HasPrefix(line, prefixAttach):
		p.Attachments = append(p.Attachments, strings.TrimPrefix(line, prefixAttach))
	case strings.HasPrefix(line, prefixDescr):
		p.Descriptions = append(p.Descriptions, strings.TrimPrefix(line, prefixDescr))
	default:
		prefix, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("unrecognized header line %q", line)
		}
		p.unknown = append(p.unknown, headerLine{prefix: prefix + "=", value: value})
	}
	return nil
}

// Description returns the description paired positionally with
// attachment i, or "" if none was given.
func (p *Post) Description(i int) string {
	if i < len(p.Descriptions) {
		return p.Descriptions[i]
	}
	return ""
}

// Save rewrites the outgoing-post file at path, preceded by the same
// .bak backup-rename as the file-backed container.
func (p *Post) Save(path string) error {
	return store.RewriteFile(path, p.render)
}

func (p *Post) render(w io.Writer) error {
	if p.ReplyToID != "" {
		if _, err := fmt.Fprintf(w, "%s%s\n", prefixReplyTo, p.ReplyToID); err != nil {
			return err
		}
	}
	if p.ReplyID != "" {
		if _, err := fmt.Fprintf(w, "%s%s\n", prefixReplyID, p.ReplyID); err != nil {
			return err
		}
	}
	if p.ContentWarning != "" {
		if _, err := fmt.Fprintf(w, "%s%s\n", prefixCW, p.ContentWarning); err != nil {
			return err
		}
	}
	if p.Visibility != "" && p.Visibility != VisibilityDefault {
		if _, err := fmt.Fprintf(w, "%s%s\n", prefixVis, p.Visibility); err != nil {
			return err
		}
	}
	for _, a := range p.Attachments {
		if _, err := fmt.Fprintf(w, "%s%s\n", prefixAttach, a); err != nil {
			return err
		}
	}
	for _, d := range p.Descriptions {
		if _, err := fmt.Fprintf(w, "%s%s\n", prefixDescr, d); err != nil {
			return err
		}
	}
	for _, u := range p.unknown {
		if _, err := fmt.Fprintf(w, "%s%s\n", u.prefix, u.value); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(w, "\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, p.Text); err != nil {
		return err
	}
	return nil
}
