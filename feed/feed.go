// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package feed applies live state updates from a watched file.
//
// A state file is a YAML or JSON mapping from mutable-state node names
// to numeric values:
//
//	observed_heads: 12
//	weights: [0.25, 0.75]
//
// LoadFile parses the mapping, Apply binds the entries with
// Graph.SetByName, and Feed ties the two to an fsnotify watch so a
// long-running process picks up new observations without a restart.
// Traces that already realized a state node keep the value they saw;
// an update only affects later reads.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Nicort/edward/graph"
)

// DefaultDebounce is the quiet period after the last filesystem event
// before the state file is re-read.
const DefaultDebounce = 200 * time.Millisecond

// Options configures a Feed.
type Options struct {
	// Logger receives apply and watch diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Debounce is the quiet period before a changed file is re-read.
	// Editors save with rename-then-create; the debounce collapses the
	// burst into one reload. Defaults to DefaultDebounce.
	Debounce time.Duration
}

// DefaultOptions returns the default feed options.
func DefaultOptions() *Options {
	return &Options{
		Debounce: DefaultDebounce,
	}
}

// Feed watches a single state file and applies it to a model whenever
// it changes.
//
// The watch is registered on the file's parent directory. Watching the
// file directly would be lost on the first editor save, because most
// editors replace the file by rename and the old inode goes away with
// the watch.
type Feed struct {
	path     string
	g        *graph.Graph
	logger   *slog.Logger
	debounce time.Duration

	watcher  *fsnotify.Watcher
	events   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
	applies  int
}

// New creates a feed for the given state file and model. The file does
// not need to exist yet; the feed applies it when it appears.
func New(path string, g *graph.Graph, opts *Options) (*Feed, error) {
	if path == "" {
		return nil, errors.New("feed: path is required")
	}
	if g == nil {
		return nil, errors.New("feed: graph is required")
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("feed: create watcher: %w", err)
	}

	return &Feed{
		path:     filepath.Clean(path),
		g:        g,
		logger:   logger,
		debounce: debounce,
		watcher:  watcher,
		// Level trigger: one pending notification already guarantees a
		// future reload, so extra events can be dropped.
		events: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}, nil
}

// Start applies the current file contents and begins watching for
// changes. A missing or malformed file is logged, not fatal; the feed
// keeps watching and applies the file once it is readable.
//
// Both background goroutines exit when Stop is called or the context
// is canceled. Starting a started feed is a no-op.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.watching {
		f.mu.Unlock()
		return nil
	}
	f.watching = true
	f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := f.watcher.Add(dir); err != nil {
		return fmt.Errorf("feed: watch %s: %w", dir, err)
	}

	if err := f.Reload(); err != nil {
		f.logger.Warn("initial state load failed",
			"model", f.g.Name(),
			"path", f.path,
			"error", err,
		)
	}

	go f.processEvents(ctx)
	go f.debounceLoop(ctx)

	return nil
}

// Stop stops the feed. Subsequent calls are no-ops.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() {
		close(f.done)
		f.watcher.Close()

		f.mu.Lock()
		f.watching = false
		f.mu.Unlock()
	})
}

// IsWatching returns true while the feed is active.
func (f *Feed) IsWatching() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.watching
}

// Applies reports how many times the state file has been read and
// applied.
func (f *Feed) Applies() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.applies
}

// Reload reads the state file and applies it immediately, bypassing
// the debounce. Safe to call while the feed is running.
func (f *Feed) Reload() error {
	values, err := LoadFile(f.path)
	if err != nil {
		return err
	}
	applied, applyErr := Apply(f.g, values, f.logger)

	f.mu.Lock()
	f.applies++
	f.mu.Unlock()

	f.logger.Info("state file applied",
		"model", f.g.Name(),
		"path", f.path,
		"applied", applied,
		"entries", len(values),
	)
	return applyErr
}

// processEvents filters filesystem events down to the target file and
// signals the debouncer.
func (f *Feed) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			select {
			case f.events <- struct{}{}:
			default:
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("watch error",
				"path", f.path,
				"error", err,
			)
		}
	}
}

// debounceLoop waits out the quiet period after a change burst, then
// reloads. A rename-then-create save lands here as one reload with the
// final contents in place.
func (f *Feed) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-f.events:
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(f.debounce)
			timerC = timer.C
		case <-timerC:
			timerC = nil
			if err := f.Reload(); err != nil {
				f.logger.Warn("state reload failed",
					"model", f.g.Name(),
					"path", f.path,
					"error", err,
				)
			}
		}
	}
}
