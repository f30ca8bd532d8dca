// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package cog

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes for lifecycle failures.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeAlreadyExists      = "ALREADY_EXISTS"
	CodeInvariantViolation = "INVARIANT_VIOLATION"
	CodeModuleLoad         = "MODULE_LOAD_FAILED"
	CodeHandlerFailed      = "HANDLER_FAILED"
	CodeReentrantLoad      = "REENTRANT_LOAD"
)

// ErrCommandNotFound creates an error for an unknown command name or alias.
func ErrCommandNotFound(name string) error {
	return oops.Code(CodeNotFound).
		With("kind", "command").
		With("command", name).
		Errorf("unknown command: %s", name)
}

// ErrCogNotFound creates an error for an unknown cog.
func ErrCogNotFound(name string) error {
	return oops.Code(CodeNotFound).
		With("kind", "cog").
		With("cog", name).
		Errorf("unknown cog: %s", name)
}

// ErrModuleNotFound creates an error for a cog with no known module, or a
// module no importer recognises.
func ErrModuleNotFound(name string) error {
	return oops.Code(CodeNotFound).
		With("kind", "module").
		With("module", name).
		Errorf("unknown module: %s", name)
}

// ErrAliasNotFound creates an error for removing an alias nobody owns.
func ErrAliasNotFound(alias string) error {
	return oops.Code(CodeNotFound).
		With("kind", "alias").
		With("alias", alias).
		Errorf("unknown alias: %s", alias)
}

// ErrAliasExists creates an error for binding an alias owned by another command.
func ErrAliasExists(alias, owner string) error {
	return oops.Code(CodeAlreadyExists).
		With("alias", alias).
		With("owner", owner).
		Errorf("alias %s already points to %s", alias, owner)
}

// ErrCanonicalAlias creates an error for removing a command's own name.
func ErrCanonicalAlias(alias string) error {
	return oops.Code(CodeInvariantViolation).
		With("alias", alias).
		Errorf("cannot remove %s: it is the command's canonical name", alias)
}

// ErrModuleLoad wraps a failure while importing or registering a module.
func ErrModuleLoad(module string, cause error) error {
	return oops.Code(CodeModuleLoad).
		With("module", module).
		Wrapf(cause, "load module %s", module)
}

// ErrHandlerFailed wraps an error returned or raised by a command handler.
func ErrHandlerFailed(command, cogName string, cause error) error {
	return oops.Code(CodeHandlerFailed).
		With("command", command).
		With("cog", cogName).
		Wrapf(cause, "command %s failed", command)
}

// ErrReentrantLoad creates an error for a load requested from inside a
// command dispatch, which would otherwise wait on itself forever.
func ErrReentrantLoad(module string) error {
	return oops.Code(CodeReentrantLoad).
		With("module", module).
		Errorf("cannot load module %s from inside a command; schedule it instead", module)
}

// HasCode reports whether err, or any oops error it wraps, carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// UserMessage translates an error from any layer into a user-facing message.
func UserMessage(err error) string {
	if err == nil {
		return "Something went wrong. Try again."
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "Something went wrong. Try again."
	}

	switch oopsErr.Code() {
	case CodeNotFound:
		switch oopsErr.Context()["kind"] {
		case "command":
			return "Unknown command. Try 'help'."
		case "cog":
			return "No such cog."
		case "alias":
			return "No such alias."
		default:
			return "No such module."
		}
	case CodeAlreadyExists:
		if owner, ok := oopsErr.Context()["owner"].(string); ok && owner != "" {
			return "That alias already belongs to " + owner + "."
		}
		return "That alias is already taken."
	case CodeInvariantViolation:
		return "A command's own name cannot be removed as an alias."
	case CodeModuleLoad:
		return "The module failed to load. Check the logs."
	case CodeReentrantLoad:
		return "Reloads cannot run inside a command; it has been scheduled instead."
	case CodeHandlerFailed:
		return "That command failed and its cog has been disabled."
	default:
		return "Something went wrong. Try again."
	}
}
