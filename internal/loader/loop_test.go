// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package loader

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/cogwheel/internal/lock"
	"github.com/holomush/cogwheel/internal/module"
)

func startLoop(fn module.LoopFunc, delay time.Duration) *Loop {
	lp := newLoop("test:loop", "test", module.LoopSpec{Name: "loop", Fn: fn, Delay: delay}, nil, lock.NewSet())
	lp.start(context.Background())
	return lp
}

func TestLoop_RunsUntilStopped(t *testing.T) {
	defer goleak.VerifyNone(t)

	var n atomic.Int32
	lp := startLoop(func(context.Context, any) error {
		n.Add(1)
		return nil
	}, time.Millisecond)

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	lp.Stop()
	require.NoError(t, lp.Wait(context.Background()))
	assert.NoError(t, lp.Err())

	stoppedAt := n.Load()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, stoppedAt, n.Load(), "no iterations after stop")
}

func TestLoop_StopInterruptsDelay(t *testing.T) {
	defer goleak.VerifyNone(t)

	ran := make(chan struct{}, 1)
	lp := startLoop(func(context.Context, any) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}, time.Hour)

	<-ran
	lp.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, lp.Wait(ctx))
}

func TestLoop_StopIsSoft(t *testing.T) {
	defer goleak.VerifyNone(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	lp := startLoop(func(context.Context, any) error {
		close(entered)
		<-release
		finished.Store(true)
		return nil
	}, 0)

	<-entered
	lp.Stop() // returns while the iteration is still running
	assert.False(t, finished.Load())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, lp.Wait(ctx), "in-flight iteration is not cancelled")

	close(release)
	require.NoError(t, lp.Wait(context.Background()))
	assert.True(t, finished.Load())
}

func TestLoop_ErrorTerminates(t *testing.T) {
	defer goleak.VerifyNone(t)

	var n atomic.Int32
	lp := startLoop(func(context.Context, any) error {
		if n.Add(1) == 2 {
			return errors.New("tick failed")
		}
		return nil
	}, 0)

	<-lp.Done()
	require.Error(t, lp.Err())
	assert.Contains(t, lp.Err().Error(), "tick failed")
	assert.Equal(t, int32(2), n.Load())
	lp.Stop() // no-op after exit
}

func TestLoop_PanicTerminates(t *testing.T) {
	defer goleak.VerifyNone(t)

	lp := startLoop(func(context.Context, any) error {
		panic("loop exploded")
	}, 0)

	<-lp.Done()
	require.Error(t, lp.Err())
	assert.Contains(t, lp.Err().Error(), "loop exploded")
}

func TestLoop_ErrBeforeDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	lp := startLoop(func(context.Context, any) error {
		<-release
		return errors.New("late")
	}, 0)

	assert.NoError(t, lp.Err(), "running loop reports no error")
	assert.Equal(t, "test:loop", lp.ID())
	close(release)
	<-lp.Done()
	assert.Error(t, lp.Err())
}
