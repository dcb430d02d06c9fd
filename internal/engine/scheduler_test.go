package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerSweepsUntilCancelled(t *testing.T) {
	svc, _, _ := newTestService(t, quiet)
	_, err := svc.GetOrCreate(context.Background(), "chat-1", "")
	require.NoError(t, err)

	sweeps := make(chan Stats, 16)
	sc := NewScheduler(svc)
	sc.Interval = 5 * time.Millisecond
	sc.OnSweep = func(_ context.Context, s Stats) {
		select {
		case sweeps <- s:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sc.Run(ctx)
		close(done)
	}()

	select {
	case s := <-sweeps:
		assert.Equal(t, 1, s.Settlements)
	case <-time.After(2 * time.Second):
		t.Fatal("no sweep")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}
