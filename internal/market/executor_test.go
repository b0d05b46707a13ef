package market

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolExecutor_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	var mu sync.Mutex
	seen := make(map[int]bool)

	NewPoolExecutor(3).Run(context.Background(), 20, func(_ context.Context, i int) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		mu.Lock()
		seen[i] = true
		mu.Unlock()
	})

	assert.Len(t, seen, 20)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestSyncExecutor_RunsInOrderAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var order []int
	SyncExecutor{}.Run(ctx, 5, func(_ context.Context, i int) {
		order = append(order, i)
		if i == 2 {
			cancel()
		}
	})
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestGather_PreservesIndexOrder(t *testing.T) {
	out, done := gather(context.Background(), NewPoolExecutor(4), 8, func(_ context.Context, i int) int {
		time.Sleep(time.Duration(8-i) * time.Millisecond)
		return i * i
	})
	for i := range out {
		assert.True(t, done[i])
		assert.Equal(t, i*i, out[i])
	}
}

func TestGather_AbandonsOnTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	out, done := gather(ctx, NewPoolExecutor(2), 3, func(_ context.Context, i int) string {
		if i == 1 {
			<-release
		}
		return "ok"
	})
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, done[0])
	assert.Equal(t, "ok", out[0])
	assert.False(t, done[1])
	assert.Empty(t, out[1])
}
