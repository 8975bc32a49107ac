package source

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dir loads the documentation set from a local directory tree.
type Dir struct {
	root string
}

// NewDir returns a directory source rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Name() string { return "dir" }

// Root returns the directory being loaded. The file watcher needs it.
func (d *Dir) Root() string { return d.root }

// Load walks the tree and reads every markdown file. Hidden directories
// and node_modules are skipped; non-markdown files are recorded by path
// only so relative links can be resolved against them.
func (d *Dir) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() {
			if p != d.root && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !IsMarkdown(rel) {
			snap.Assets = append(snap.Assets, rel)
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		snap.Docs = append(snap.Docs, File{Name: rel, Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	snap.normalize()
	return snap, nil
}
