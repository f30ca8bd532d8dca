// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package loader

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/cogwheel/internal/lock"
	"github.com/holomush/cogwheel/internal/module"
	"github.com/holomush/cogwheel/pkg/errutil"
)

// Loop is a supervised background task. Each iteration runs the handler,
// sleeps for the delay, then checks the stop flag under the loop's stop
// lock before going again. An error or panic ends the loop.
type Loop struct {
	id     string
	module string
	name   string
	fn     module.LoopFunc
	delay  time.Duration
	host   any
	locks  *lock.Set

	stopped bool // guarded by the stop lock
	stopCh  chan struct{}
	done    chan struct{}
	err     error
}

func newLoop(id, moduleName string, spec module.LoopSpec, host any, locks *lock.Set) *Loop {
	return &Loop{
		id:     id,
		module: moduleName,
		name:   spec.Name,
		fn:     spec.Fn,
		delay:  spec.Delay,
		host:   host,
		locks:  locks,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// ID returns the loop's identifier, "<module>:<name>".
func (l *Loop) ID() string { return l.id }

// Done is closed once the loop has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Err returns the error that ended the loop, if any, after Done is closed.
func (l *Loop) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

func (l *Loop) start(ctx context.Context) {
	go l.run(ctx)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	defer l.locks.Forget(lock.StopKey(l.id))

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		if l.stopRequested() {
			slog.DebugContext(ctx, "loop stopped", "module", l.module, "loop", l.name)
			return
		}

		if err := l.iterate(ctx); err != nil {
			l.err = err
			errutil.LogErrorContext(ctx, nil, "loop terminated by error", err,
				"module", l.module,
				"loop", l.name)
			return
		}

		if l.delay > 0 {
			timer.Reset(l.delay)
			select {
			case <-timer.C:
			case <-l.stopCh:
				if !timer.Stop() {
					<-timer.C
				}
			}
		}
	}
}

func (l *Loop) iterate(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = oops.
				With("module", l.module).
				With("loop", l.name).
				With("stack", string(debug.Stack())).
				Errorf("loop panicked: %v", p)
		}
	}()
	if err := l.fn(ctx, l.host); err != nil {
		return oops.With("module", l.module).With("loop", l.name).Wrap(err)
	}
	return nil
}

func (l *Loop) stopRequested() bool {
	var stopped bool
	_ = l.locks.With(context.Background(), lock.StopKey(l.id), func() error {
		stopped = l.stopped
		return nil
	})
	return stopped
}

// Stop asks the loop not to run another iteration. It does not wait for an
// iteration already in progress; use Wait for that.
func (l *Loop) Stop() {
	select {
	case <-l.done:
		return
	default:
	}
	_ = l.locks.With(context.Background(), lock.StopKey(l.id), func() error {
		if !l.stopped {
			l.stopped = true
			close(l.stopCh)
		}
		return nil
	})
}

// Wait blocks until the loop exits or ctx ends.
func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return oops.
			With("module", l.module).
			With("loop", l.name).
			Wrapf(ctx.Err(), "waiting for loop")
	}
}
