// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package cog

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/samber/oops"
)

// Outcome classifies how a dispatch ended.
type Outcome int

// Dispatch outcomes.
const (
	OutcomeSuccess Outcome = iota
	OutcomeHandlerError
	OutcomeNotFound
)

// String returns the metric label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return StatusSuccess
	case OutcomeHandlerError:
		return StatusError
	case OutcomeNotFound:
		return StatusNotFound
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of a single dispatch. Handler failures are reported
// here instead of as a returned error so the caller decides how to isolate
// the fault.
type Result struct {
	Outcome Outcome
	Value   any    // handler return value on success
	Err     error  // NOT_FOUND or HANDLER_FAILED error otherwise
	Command string // canonical command name, if resolved
	Cog     string // owning cog, if resolved
}

// OK reports whether the handler ran and succeeded.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Invoke runs the named command's handler. A handler error or panic is
// captured in the result as OutcomeHandlerError; Invoke never panics on
// behalf of a handler. Disabled cogs are still dispatched, with a warning.
func (r *Registry) Invoke(ctx context.Context, name string, call *Call) Result {
	rec := NewMetricsRecorder()
	defer rec.Record()

	cmd, err := r.Command(name)
	if err != nil {
		rec.SetStatus(StatusNotFound)
		return Result{Outcome: OutcomeNotFound, Err: err}
	}
	rec.SetCommandName(cmd.Name)
	rec.SetCogName(cmd.Cog)

	if c, err := r.Cog(cmd.Cog); err == nil && !c.Loaded() {
		slog.WarnContext(ctx, "dispatching command of disabled cog",
			"command", cmd.Name,
			"cog", cmd.Cog)
	}

	if call == nil {
		call = &Call{}
	}
	call.Command = cmd.Name
	if call.InvokedAs == "" {
		call.InvokedAs = cmd.Name
	}

	value, err := runHandler(ctx, cmd, call)
	if err != nil {
		rec.SetStatus(StatusError)
		return Result{
			Outcome: OutcomeHandlerError,
			Err:     ErrHandlerFailed(cmd.Name, cmd.Cog, err),
			Command: cmd.Name,
			Cog:     cmd.Cog,
		}
	}

	rec.SetStatus(StatusSuccess)
	return Result{Outcome: OutcomeSuccess, Value: value, Command: cmd.Name, Cog: cmd.Cog}
}

// runHandler calls the handler, converting a panic into an error.
func runHandler(ctx context.Context, cmd *Command, call *Call) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = oops.
				With("panic", fmt.Sprint(p)).
				With("stack", string(debug.Stack())).
				Errorf("handler panicked: %v", p)
		}
	}()
	return cmd.Handler(ctx, call)
}
