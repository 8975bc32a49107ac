package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

// GitOptions configures the git source.
type GitOptions struct {
	URL    string
	Branch string
	// Subdir restricts the load to one directory of the repository,
	// for repos where docs live under docs/ next to other code.
	Subdir   string
	Username string
	Token    string
}

// Git loads the documentation set from a git repository cloned into an
// in-memory filesystem. The first load clones; later loads pull.
type Git struct {
	opts GitOptions
	auth *githttp.BasicAuth

	mu   sync.Mutex
	fs   billy.Filesystem
	repo *git.Repository
}

// NewGit returns a git source for the given repository.
func NewGit(opts GitOptions) (*Git, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("source: git backend requires a url")
	}
	g := &Git{opts: opts}
	if opts.Token != "" {
		user := opts.Username
		if user == "" {
			// go-git requires a non-empty username with token auth.
			user = "git"
		}
		g.auth = &githttp.BasicAuth{Username: user, Password: opts.Token}
	}
	return g, nil
}

func (g *Git) Name() string { return "git" }

func (g *Git) Load(ctx context.Context) (*Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fs == nil {
		if err := g.clone(ctx); err != nil {
			return nil, fmt.Errorf("source: clone %s: %w", g.opts.URL, err)
		}
	} else if err := g.pull(ctx); err != nil {
		return nil, fmt.Errorf("source: pull %s: %w", g.opts.URL, err)
	}
	return g.snapshot(ctx)
}

func (g *Git) clone(ctx context.Context) error {
	fs := memfs.New()
	cloneOpts := &git.CloneOptions{
		URL:   g.opts.URL,
		Auth:  g.auth,
		Depth: 1,
	}
	if g.opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(g.opts.Branch)
		cloneOpts.SingleBranch = true
	}
	repo, err := git.CloneContext(ctx, memory.NewStorage(), fs, cloneOpts)
	if err != nil {
		return err
	}
	g.fs = fs
	g.repo = repo
	return nil
}

func (g *Git) pull(ctx context.Context) error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return err
	}
	pullOpts := &git.PullOptions{Auth: g.auth, Force: true}
	if g.opts.Branch != "" {
		pullOpts.ReferenceName = plumbing.NewBranchReferenceName(g.opts.Branch)
		pullOpts.SingleBranch = true
	}
	err = wt.PullContext(ctx, pullOpts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		// A failed pull can leave the worktree in an odd state.
		// Dropping the clone forces a fresh one next load.
		g.fs = nil
		g.repo = nil
		return err
	}
	return nil
}

func (g *Git) snapshot(ctx context.Context) (*Snapshot, error) {
	root := "/"
	if g.opts.Subdir != "" {
		root = g.opts.Subdir
	}
	snap := &Snapshot{}
	err := util.Walk(g.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && p == root {
				return fmt.Errorf("subdir %q not found in repository", root)
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := info.Name()
		if info.IsDir() {
			if strings.HasPrefix(name, ".") && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		if rel == "" {
			rel = path.Base(p)
		}
		if !IsMarkdown(rel) {
			snap.Assets = append(snap.Assets, rel)
			return nil
		}
		data, err := g.readFile(p)
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

func (g *Git) readFile(p string) ([]byte, error) {
	f, err := g.fs.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
