// Package watcher triggers reconciliation when source files change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 500 * time.Millisecond

// TriggerFunc is called with the sorted, deduplicated paths that changed.
type TriggerFunc func(ctx context.Context, changed []string)

// Watcher watches files and directories. Files are watched through their
// parent directory so that editors replacing a file by rename are noticed.
type Watcher struct {
	fsw    *fsnotify.Watcher
	files  map[string]bool
	dirs   []string
	delay  time.Duration
	logger zerolog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the settle delay.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.delay = d
	}
}

// New creates a watcher over paths. Directories are watched recursively. A
// file that does not exist yet is watched for through its parent directory.
func New(paths []string, logger zerolog.Logger, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		fsw:    fsw,
		files:  make(map[string]bool),
		delay:  DefaultDebounce,
		logger: logger.With().Str("component", "watcher").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, path := range paths {
		if err := w.add(path); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}

	return w, nil
}

func (w *Watcher) add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Not created yet; its parent reports the creation.
		w.files[abs] = true
		return w.watchDir(filepath.Dir(abs))
	case err != nil:
		return fmt.Errorf("failed to stat %s: %w", abs, err)
	}

	if info.IsDir() {
		w.dirs = append(w.dirs, abs)
		return filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return w.watchDir(p)
			}
			return nil
		})
	}

	w.files[abs] = true
	return w.watchDir(filepath.Dir(abs))
}

func (w *Watcher) watchDir(dir string) error {
	if slices.Contains(w.fsw.WatchList(), dir) {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.logger.Debug().Str("dir", dir).Msg("Watching directory")
	return nil
}

// matches reports whether an event path belongs to a watched file or
// directory tree.
func (w *Watcher) matches(path string) bool {
	if w.files[path] {
		return true
	}
	for _, dir := range w.dirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Run delivers debounced changes to fn until ctx is cancelled. fn runs on
// the calling goroutine, so triggers never overlap; changes arriving while fn
// runs are batched into the next trigger.
func (w *Watcher) Run(ctx context.Context, fn TriggerFunc) error {
	defer w.fsw.Close()

	pending := make(map[string]bool)
	timer := time.NewTimer(w.delay)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) && !w.files[event.Name] {
				// New subdirectory of a watched tree
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watchDir(event.Name); err != nil {
						w.logger.Warn().Err(err).Msg("Failed to watch new directory")
					}
				}
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Source changed")

			pending[event.Name] = true
			timer.Reset(w.delay)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for path := range pending {
				changed = append(changed, path)
			}
			slices.Sort(changed)
			clear(pending)

			w.logger.Info().Strs("changed", changed).Msg("Changes settled")
			fn(ctx, changed)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Close stops the watcher without running it.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
