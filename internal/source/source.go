// Package source loads the documentation set from its backing store. A
// source returns a complete snapshot per load; the refresher polls for
// changes and hands new snapshots to the scan scheduler.
package source

import (
	"context"
	"crypto/sha256"
	"fmt"
	"path"
	"sort"
	"strings"
)

// File is one markdown document with its content.
type File struct {
	// Name is the slash-separated path relative to the source root.
	Name string
	Data []byte
}

// Snapshot is one complete load of the documentation set.
type Snapshot struct {
	// Docs are the markdown files, sorted by name.
	Docs []File
	// Assets are the non-markdown paths present alongside the docs,
	// sorted. Relative-link checks resolve against Docs plus Assets.
	Assets []string
}

// Paths returns every path in the snapshot, docs and assets, for relative
// link resolution.
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.Docs)+len(s.Assets))
	for _, d := range s.Docs {
		paths = append(paths, d.Name)
	}
	paths = append(paths, s.Assets...)
	sort.Strings(paths)
	return paths
}

// Checksum returns a digest over names and contents. Two snapshots with the
// same checksum hold the same documentation set.
func (s *Snapshot) Checksum() [sha256.Size]byte {
	h := sha256.New()
	for _, d := range s.Docs {
		h.Write([]byte(d.Name))
		h.Write([]byte{0})
		h.Write(d.Data)
		h.Write([]byte{0})
	}
	for _, a := range s.Assets {
		h.Write([]byte(a))
		h.Write([]byte{0})
	}
	var sum [sha256.Size]byte
	h.Sum(sum[:0])
	return sum
}

// normalize sorts docs and assets so checksums and scan output are stable
// across backends.
func (s *Snapshot) normalize() {
	sort.Slice(s.Docs, func(i, j int) bool { return s.Docs[i].Name < s.Docs[j].Name })
	sort.Strings(s.Assets)
}

// Source loads the documentation set from one backing store.
type Source interface {
	// Name identifies the backend kind (dir, git, s3, gcs, http).
	Name() string
	// Load fetches a complete snapshot. Implementations may reuse
	// transport state between calls but each returned snapshot is
	// independent of later loads.
	Load(ctx context.Context) (*Snapshot, error)
}

// IsMarkdown reports whether the path names a markdown document.
func IsMarkdown(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// Options selects and configures a backend. Exactly the fields for the
// chosen Type need to be set.
type Options struct {
	// Type is dir, git, s3, gcs or http.
	Type string

	// Dir backend.
	Dir string

	// Git backend.
	URL    string
	Branch string
	// Subdir restricts the load to one directory of the repository.
	Subdir   string
	Username string
	Token    string

	// S3 and GCS backends.
	Bucket string
	Prefix string
	Region string
	// Anonymous skips credential lookup (public GCS buckets).
	Anonymous bool

	// HTTP backend. URL is shared with git; DocName names the single
	// fetched document.
	DocName string
}

// New builds the source the options select.
func New(opts Options) (Source, error) {
	switch opts.Type {
	case "", "dir":
		if opts.Dir == "" {
			return nil, fmt.Errorf("source: dir backend requires a path")
		}
		return NewDir(opts.Dir), nil
	case "git":
		return NewGit(GitOptions{
			URL:      opts.URL,
			Branch:   opts.Branch,
			Subdir:   opts.Subdir,
			Username: opts.Username,
			Token:    opts.Token,
		})
	case "s3":
		return NewS3(S3Options{
			Bucket: opts.Bucket,
			Prefix: opts.Prefix,
			Region: opts.Region,
		})
	case "gcs":
		return NewGCS(GCSOptions{
			Bucket:    opts.Bucket,
			Prefix:    opts.Prefix,
			Anonymous: opts.Anonymous,
		})
	case "http":
		return NewHTTP(opts.URL, opts.DocName)
	default:
		return nil, fmt.Errorf("source: unknown backend type %q", opts.Type)
	}
}
