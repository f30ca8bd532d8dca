// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package watch reloads Lua modules when their files change on disk.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"

	"github.com/holomush/cogwheel/internal/loader"
	"github.com/holomush/cogwheel/pkg/errutil"
)

// DefaultDebounce is how long a module must stay quiet before it is reloaded.
const DefaultDebounce = 250 * time.Millisecond

// Resolver maps a changed file to the top-level module that owns it.
type Resolver interface {
	ModuleFor(path string) (string, bool)
}

// Reloader schedules module loads. lifecycle.Manager satisfies it.
type Reloader interface {
	ModuleState(ctx context.Context, name string) (loader.State, error)
	ScheduleLoad(ctx context.Context, name string) <-chan error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReloadHook is called with each reload's module name and result. Tests
// use it to observe reloads.
func WithReloadHook(fn func(module string, err error)) Option {
	return func(w *Watcher) { w.onReload = fn }
}

// Watcher turns file events under a module directory into reloads of the
// modules those files belong to. Only modules that are already loaded are
// reloaded; a new file does not load anything by itself.
type Watcher struct {
	dir      string
	resolver Resolver
	reloader Reloader
	debounce time.Duration
	onReload func(string, error)
	fsw      *fsnotify.Watcher
}

// New creates a watcher over dir. Run starts it.
func New(dir string, resolver Resolver, reloader Reloader, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, oops.Code("WATCH_FAILED").With("dir", dir).Wrapf(err, "create file watcher")
	}
	w := &Watcher{
		dir:      dir,
		resolver: resolver,
		reloader: reloader,
		debounce: DefaultDebounce,
		fsw:      fsw,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.addTree(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches root and every directory beneath it.
func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
	if err != nil {
		return oops.Code("WATCH_FAILED").With("dir", root).Wrapf(err, "watch module directory")
	}
	return nil
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()

	pending := make(map[string]time.Time)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	slog.InfoContext(ctx, "watching modules", "dir", w.dir, "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev, pending)
			if len(pending) > 0 {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			errutil.LogWarnContext(ctx, nil, "file watcher error", err, "dir", w.dir)
		case now := <-timer.C:
			if next := w.flush(ctx, now, pending); next > 0 {
				timer.Reset(next)
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event, pending map[string]time.Time) {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if isDir(ev.Name) {
			if err := w.addTree(ev.Name); err != nil {
				errutil.LogWarnContext(ctx, nil, "watch new directory", err, "dir", ev.Name)
			}
		}
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}
	name, ok := w.resolver.ModuleFor(ev.Name)
	if !ok {
		return
	}
	slog.DebugContext(ctx, "module file changed", "module", name, "path", ev.Name, "op", ev.Op.String())
	pending[name] = time.Now()
}

// flush reloads every module that has been quiet for the debounce window and
// returns how long until the next one is due, or 0 if none are left.
func (w *Watcher) flush(ctx context.Context, now time.Time, pending map[string]time.Time) time.Duration {
	var due []string
	var next time.Duration
	for name, changed := range pending {
		wait := w.debounce - now.Sub(changed)
		if wait <= 0 {
			due = append(due, name)
			continue
		}
		if next == 0 || wait < next {
			next = wait
		}
	}
	sort.Strings(due)
	for _, name := range due {
		delete(pending, name)
		w.reload(ctx, name)
	}
	return next
}

func (w *Watcher) reload(ctx context.Context, name string) {
	state, err := w.reloader.ModuleState(ctx, name)
	if err != nil {
		errutil.LogWarnContext(ctx, nil, "module state for reload", err, "module", name)
		return
	}
	if state == loader.NotLoaded {
		slog.DebugContext(ctx, "skipping reload of module that is not loaded", "module", name)
		return
	}

	slog.InfoContext(ctx, "reloading changed module", "module", name)
	done := w.reloader.ScheduleLoad(ctx, name)
	go func() {
		err := <-done
		if err != nil {
			errutil.LogErrorContext(ctx, nil, "reload after file change failed", err, "module", name)
		}
		if w.onReload != nil {
			w.onReload(name, err)
		}
	}()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
