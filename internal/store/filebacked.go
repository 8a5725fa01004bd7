// Package store implements the on-disk persistence primitives shared by
// every durable piece of msync state: the file-backed container and the
// per-account queue files built on top of it.
package store

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseLine folds one non-blank, non-comment line into the in-memory
// container. It is invoked once per retained line, in file order.
type ParseLine[T any] func(container *T, line string) error

// Serialize writes the in-memory container back out as the new file
// contents.
type Serialize[T any] func(container *T, w io.Writer) error

// Options configures the line-skipping and read-only behavior of a
// FileBacked container.
type Options struct {
	SkipBlank   bool
	SkipComment bool
	ReadOnly    bool
}

// FileBacked is a scoped, generic "load on open, rewrite on close" text
// file. It is the single persistence primitive used by the account
// registry, the user options file, and every queue file.
//
// FileBacked is not safe for concurrent use; callers own one instance per
// file for the duration of a single operation, matching the C++ original's
// scope-bound ownership.
type FileBacked[T any] struct {
	Parsed *T

	backing   string
	parseLine ParseLine[T]
	serialize Serialize[T]
	opts      Options
}

// Open parses the file at path, if it exists, into a fresh container
// produced by newContainer. A missing file yields an empty container; it
// is created on Close unless opts.ReadOnly is set.
func Open[T any](path string, newContainer func() *T, parseLine ParseLine[T], serialize Serialize[T], opts Options) (*FileBacked[T], error) {
	container := newContainer()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileBacked[T]{
				Parsed:    container,
				backing:   path,
				parseLine: parseLine,
				serialize: serialize,
				opts:      opts,
			}, nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		firstNonWhitespace := strings.IndexFunc(line, func(r rune) bool {
			return r != ' ' && r != '\t' && r != '\r' && r != '\n'
		})

		if opts.SkipBlank && firstNonWhitespace == -1 {
			continue
		}
		if opts.SkipComment && firstNonWhitespace != -1 && line[firstNonWhitespace] == '#' {
			continue
		}

		if err := parseLine(container, line); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return &FileBacked[T]{
		Parsed:    container,
		backing:   path,
		parseLine: parseLine,
		serialize: serialize,
		opts:      opts,
	}, nil
}

// Close rewrites the backing file, preceded by a .bak rename of whatever
// was there before. It never panics; callers that care about a write
// failure check the returned error, but a failure here must not prevent
// the rest of a defer chain from running.
func (f *FileBacked[T]) Close() error {
	if f == nil || f.opts.ReadOnly || f.backing == "" {
		return nil
	}
	return RewriteFile(f.backing, func(w io.Writer) error {
		return f.serialize(f.Parsed, w)
	})
}

// RewriteFile is the backup-then-recreate primitive shared by
// FileBacked.Close and any component (the outgoing-post file) that needs
// the same atomic-rewrite contract without going through the generic
// line-by-line parse/serialize pair.
func RewriteFile(path string, write func(io.Writer) error) error {
	if _, err := os.Stat(path); err == nil {
		backup := path + ".bak"
		if err := os.Rename(path, backup); err != nil {
			// Some platforms refuse to rename over an existing file;
			// clear the destination and retry once.
			if removeErr := os.Remove(backup); removeErr != nil && !os.IsNotExist(removeErr) {
				return fmt.Errorf("removing stale backup %s: %w", backup, removeErr)
			}
			if err := os.Rename(path, backup); err != nil {
				return fmt.Errorf("backing up %s: %w", path, err)
			}
		}
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer out.Close()

	if err := write(out); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Release detaches this handle from its backing file, turning a
// subsequent Close into a no-op. Used to transfer ownership of the parsed
// container to a new FileBacked without double-writing the file — the
// Go analogue of the C++ original's move constructor.
func (f *FileBacked[T]) Release() {
	f.backing = ""
}

// Path returns the file this container is backed by.
func (f *FileBacked[T]) Path() string {
	return f.backing
}
