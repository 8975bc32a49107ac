// Package watch triggers rescans when documentation files change on disk.
// Only the dir source has a local tree to watch; remote backends rely on
// the periodic refresher.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/observability"
)

// Watcher watches a directory tree and invokes a callback once changes
// settle. Rapid bursts (editor save dances, git checkout) collapse into
// one callback per debounce window.
type Watcher struct {
	root     string
	debounce time.Duration
	onChange func()
	logger   *zap.Logger
	fsw      *fsnotify.Watcher
}

// New builds a watcher over root. onChange runs on a timer goroutine after
// the debounce window passes without further events.
func New(root string, debounce time.Duration, onChange func(), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		root:     root,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		fsw:      fsw,
	}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree registers root and every non-hidden subdirectory. fsnotify does
// not recurse on its own.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		name := entry.Name()
		if p != root && (strings.HasPrefix(name, ".") || name == "node_modules") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// Run processes events until the context ends.
func (w *Watcher) Run(ctx context.Context) {
	defer func() { _ = w.fsw.Close() }()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()
	w.logger.Info("watching documentation directory", zap.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("documentation watcher stopped")
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			// New directories need registering before their
			// contents produce events.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("could not watch new directory",
							zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			w.logger.Debug("documentation changed",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()))
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				observability.WatcherReloadsTotal.Inc()
				w.onChange()
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("documentation watcher error", zap.Error(err))
		}
	}
}

// relevant filters events down to ones that can change the documentation
// set. Hidden files and editor droppings do not count.
func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, ".tmp") {
		return false
	}
	return true
}
