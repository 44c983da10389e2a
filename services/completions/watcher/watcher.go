// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianComplete/services/completions/config"
)

// Options configure a Watcher.
type Options struct {
	// Root is the workspace folder. Required.
	Root string

	// Backend is "polling" (default) or "fsnotify".
	Backend string

	// Interval is the polling period. Default: 1s
	Interval time.Duration

	// Throttle is the per-kind batching window. Default: 200ms
	Throttle time.Duration

	// Extensions restricts file events to these extensions. Empty allows
	// every file.
	Extensions []string

	// IgnoredDirs are directory names that are never entered, in addition
	// to hidden directories. Nil uses DefaultIgnoredDirs.
	IgnoredDirs []string

	Handler Handler
	Logger  *slog.Logger
}

// FromConfig builds Options for root from the watcher section.
func FromConfig(root string, cfg config.WatcherConfig, handler Handler, logger *slog.Logger) Options {
	return Options{
		Root:        root,
		Backend:     cfg.Backend,
		Interval:    cfg.Interval,
		Throttle:    cfg.Throttle,
		Extensions:  cfg.Extensions,
		IgnoredDirs: cfg.IgnoredDirs,
		Handler:     handler,
		Logger:      logger,
	}
}

type backend interface {
	run(ctx context.Context, emit func(Event)) error
}

// Watcher reports changes below one folder.
//
// Thread Safety:
//
//	Safe for concurrent use. The handler is never called concurrently
//	with itself.
type Watcher struct {
	root     string
	backend  backend
	throttle *throttler
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New validates opts and creates a stopped watcher.
func New(opts Options) (*Watcher, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Throttle <= 0 {
		opts.Throttle = 200 * time.Millisecond
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	logger := opts.Logger.With(slog.String("component", "watcher"), slog.String("root", root))
	f := newFilter(opts.Extensions, opts.IgnoredDirs)

	var b backend
	switch opts.Backend {
	case "", "polling":
		b = &pollBackend{root: root, interval: opts.Interval, filter: f, logger: logger}
	case "fsnotify":
		nb, err := newNotifyBackend(root, f, logger)
		if err != nil {
			return nil, fmt.Errorf("create fsnotify watcher: %w", err)
		}
		b = nb
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}

	return &Watcher{
		root:     root,
		backend:  b,
		throttle: newThrottler(opts.Throttle, opts.Handler),
		logger:   logger,
	}, nil
}

// Root returns the absolute watched folder.
func (w *Watcher) Root() string { return w.root }

// Start begins watching. The watcher stops when ctx is cancelled or Stop
// is called. A watcher cannot be restarted.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		if err := w.backend.run(ctx, w.throttle.add); err != nil {
			w.logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
	}()
	w.logger.Info("watching workspace")
	return nil
}

// Stop ends watching and drops undelivered events.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.throttle.stop()
}
