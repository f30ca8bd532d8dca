// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lock

import (
	"context"
	"sync"

	"github.com/samber/oops"
)

// Barrier lets any number of shared (read-like) operations run together while
// giving exclusive operations sole access once every shared operation has
// drained.
//
// The first shared operation to enter closes the gate and the last one to exit
// opens it. An exclusive operation acquires the gate itself, so it waits for
// the in-flight count to reach zero and keeps new shared operations out until
// it releases. The barrier guarantees mutual exclusion only; waiters are not
// served in FIFO order.
type Barrier struct {
	entry *Mutex     // serialises the 0→1 transition
	mu    sync.Mutex // guards count; never held while waiting
	count int
	gate  *Mutex
}

// NewBarrier creates an open barrier.
func NewBarrier() *Barrier {
	return &Barrier{entry: NewMutex(), gate: NewMutex()}
}

// join increments count if another shared operation is already inside.
func (b *Barrier) join() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return false
	}
	b.count++
	return true
}

// Enter registers a shared operation. On the 0→1 transition it closes the
// gate, waiting for any exclusive holder to release first. Every wait
// honours ctx.
func (b *Barrier) Enter(ctx context.Context) error {
	if b.join() {
		return nil
	}

	if err := b.entry.Lock(ctx); err != nil {
		return oops.Code("LOCK_ABANDONED").With("operation", "enter").Wrap(err)
	}
	defer b.entry.Unlock()

	// Another caller may have opened the way while we waited for entry.
	if b.join() {
		return nil
	}
	if err := b.gate.Lock(ctx); err != nil {
		return oops.Code("LOCK_ABANDONED").With("operation", "enter").Wrap(err)
	}

	b.mu.Lock()
	b.count++
	b.mu.Unlock()
	return nil
}

// Exit unregisters a shared operation. On the →0 transition it opens the gate.
// Exit without a matching Enter panics.
func (b *Barrier) Exit() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		panic("lock: barrier exit without enter")
	}
	b.count--
	if b.count == 0 {
		b.gate.Unlock()
	}
}

// Acquire waits until no shared operation is in flight and takes exclusive
// access. Exclusive holders serialise with each other.
func (b *Barrier) Acquire(ctx context.Context) error {
	if err := b.gate.Lock(ctx); err != nil {
		return oops.Code("LOCK_ABANDONED").With("operation", "acquire").Wrap(err)
	}
	return nil
}

// Release gives up exclusive access.
func (b *Barrier) Release() {
	b.gate.Unlock()
}

// Shared runs fn as a shared operation.
func (b *Barrier) Shared(ctx context.Context, fn func() error) error {
	if err := b.Enter(ctx); err != nil {
		return err
	}
	defer b.Exit()

	return fn()
}

// Exclusive runs fn with exclusive access.
func (b *Barrier) Exclusive(ctx context.Context, fn func() error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()

	return fn()
}

// InFlight returns the number of shared operations currently inside.
func (b *Barrier) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Closed reports whether the gate is held, by shared or exclusive operations.
func (b *Barrier) Closed() bool {
	return b.gate.Locked()
}
