// Package watcher provides file system watching with debouncing for
// component manifest directories.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/keystone/internal/log"
)

// Watcher monitors manifest directories for changes and sends notifications.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	basePaths []string
	pattern   string
	debounce  time.Duration
	onChange  chan string
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	// BasePaths are the directories to watch, recursively.
	BasePaths []string

	// Pattern matches manifest file names, e.g. "*.yaml".
	Pattern string

	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(basePaths ...string) Config {
	return Config{
		BasePaths:   basePaths,
		Pattern:     "*.yaml",
		DebounceDur: 250 * time.Millisecond,
	}
}

// New creates a new manifest watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		basePaths: cfg.BasePaths,
		pattern:   cfg.Pattern,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan string, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching every base path recursively.
// Returns a channel that receives the affected base path when manifests
// under it change.
func (w *Watcher) Start() (<-chan string, error) {
	for _, base := range w.basePaths {
		if err := w.addTree(base); err != nil {
			return nil, err
		}
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// addTree registers a directory and all its subdirectories.
func (w *Watcher) addTree(base string) error {
	return filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking %s: %w", p, err)
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := w.fsWatcher.Add(p); addErr != nil {
			return fmt.Errorf("watching directory %s: %w", p, addErr)
		}
		return nil
	})
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending string
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			// New subdirectories need their own watch.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsWatcher.Add(event.Name); err != nil {
						log.Warn(log.CatWatcher, "Failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}

			base, ok := w.relevantEvent(event)
			if !ok {
				continue
			}

			pending = base
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					// Drain the timer channel if it already fired
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending != "" {
				// Non-blocking send - drop if channel full
				select {
				case w.onChange <- pending:
				default:
				}
				pending = ""
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "Watcher error", "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// relevantEvent reports whether the event touches a manifest under one of
// the base paths, and if so which base path.
func (w *Watcher) relevantEvent(event fsnotify.Event) (string, bool) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return "", false
	}

	name := filepath.Base(event.Name)
	if ok, err := path.Match(w.pattern, name); err != nil || !ok {
		return "", false
	}

	for _, base := range w.basePaths {
		if rel, err := filepath.Rel(base, event.Name); err == nil && !isOutside(rel) {
			return base, true
		}
	}
	return "", false
}

func isOutside(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
