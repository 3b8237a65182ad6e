package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	p := NewPoller("test", time.Minute, clock, func(ctx context.Context) error {
		// errors are logged and polling goes on
		if calls.Add(1) == 2 {
			return errors.New("boom")
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, time.Millisecond)

	p.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestPoller_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller("test", time.Minute, clockwork.NewFakeClock(), func(context.Context) error { return nil })

	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
