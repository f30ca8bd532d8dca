// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lock

import (
	"context"
	"sync"

	"github.com/samber/oops"
)

// Well-known lock keys.
const (
	// KeyAlias serialises alias mutations and their persistence.
	KeyAlias = "alias"
	// KeyClear serialises registry resets.
	KeyClear = "clear"

	stopKeyPrefix = "stop:"
)

// StopKey returns the key of the lock guarding a background loop's stop flag.
func StopKey(loopID string) string {
	return stopKeyPrefix + loopID
}

// Set is a collection of named locks created on first use.
// It is safe for concurrent use.
type Set struct {
	locks map[string]*Mutex
	mu    sync.Mutex
}

// NewSet creates an empty lock set.
func NewSet() *Set {
	return &Set{locks: make(map[string]*Mutex)}
}

// Get returns the lock for key, creating it if needed.
func (s *Set) Get(key string) *Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.locks[key]
	if !ok {
		m = NewMutex()
		s.locks[key] = m
	}
	return m
}

// Forget drops the lock for key. Holders of the old lock are unaffected; the
// next Get creates a fresh one.
func (s *Set) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
}

// Len returns the number of locks created so far.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// With runs fn while holding the lock for key. The lock is released on every
// exit path, including a panic in fn.
func (s *Set) With(ctx context.Context, key string, fn func() error) error {
	m := s.Get(key)
	if err := m.Lock(ctx); err != nil {
		return oops.Code("LOCK_ABANDONED").With("key", key).Wrap(err)
	}
	defer m.Unlock()

	return fn()
}
