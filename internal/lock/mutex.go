// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package lock provides the keyed lock set and the reference-counted barrier
// that serialise module loads against command dispatch.
package lock

import "context"

// Mutex is a mutual-exclusion lock whose acquisition can be abandoned when a
// context is cancelled. The zero value is not usable; call NewMutex.
//
// Unlike sync.Mutex, a Mutex may be unlocked by a goroutine other than the one
// that locked it. The barrier relies on this: the last in-flight operation to
// exit opens the gate that the first one closed.
type Mutex struct {
	ch chan struct{}
}

// NewMutex creates an unlocked mutex.
func NewMutex() *Mutex {
	return &Mutex{ch: make(chan struct{}, 1)}
}

// Lock blocks until the mutex is acquired or ctx is done.
func (m *Mutex) Lock(ctx context.Context) error {
	// Fast path so an already-cancelled context still acquires a free lock.
	select {
	case m.ch <- struct{}{}:
		return nil
	default:
	}

	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // callers wrap with operation context
	}
}

// TryLock acquires the mutex if it is free and reports whether it did.
func (m *Mutex) TryLock() bool {
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock releases the mutex. It panics if the mutex is not locked.
func (m *Mutex) Unlock() {
	select {
	case <-m.ch:
	default:
		panic("lock: unlock of unlocked mutex")
	}
}

// Locked reports whether the mutex is currently held.
func (m *Mutex) Locked() bool {
	return len(m.ch) == 1
}
