package aggregator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_BasicSendReceive(t *testing.T) {
	buf := NewBuffer[int](10)

	for i := 0; i < 5; i++ {
		require.True(t, buf.Send(i), "Send(%d)", i)
	}
	assert.Equal(t, 5, buf.Len())

	for i := 0; i < 5; i++ {
		val, ok := buf.TryReceive()
		require.True(t, ok, "TryReceive() for item %d", i)
		assert.Equal(t, i, val)
	}
	assert.Equal(t, 0, buf.Len())
}

func TestBuffer_GrowAt70Percent(t *testing.T) {
	buf := NewBuffer[int](10)

	for i := 0; i < 7; i++ {
		buf.Send(i)
	}

	stats := buf.Stats()
	assert.Greater(t, stats.Capacity, 10)
	assert.Equal(t, 1, stats.ResizeCount)

	for i := 0; i < 7; i++ {
		val, ok := buf.TryReceive()
		require.True(t, ok)
		assert.Equal(t, i, val)
	}
}

func TestBuffer_MultipleGrows(t *testing.T) {
	buf := NewBuffer[int](4)

	for i := 0; i < 100; i++ {
		require.True(t, buf.Send(i))
	}

	stats := buf.Stats()
	assert.Equal(t, 100, stats.Count)
	assert.GreaterOrEqual(t, stats.ResizeCount, 3)

	for i := 0; i < 100; i++ {
		val, ok := buf.TryReceive()
		require.True(t, ok)
		require.Equal(t, i, val)
	}
}

func TestBuffer_BoundedDropsWhenFull(t *testing.T) {
	buf := NewBoundedBuffer[int](2, 8)

	for i := 0; i < 8; i++ {
		require.True(t, buf.Send(i), "Send(%d)", i)
	}
	assert.False(t, buf.Send(8), "Send should drop when bounded buffer is full")
	assert.False(t, buf.Send(9))

	stats := buf.Stats()
	assert.Equal(t, 8, stats.Capacity)
	assert.Equal(t, 8, stats.Count)
	assert.Equal(t, int64(2), stats.Dropped)

	// Draining frees room again.
	val, ok := buf.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 0, val)
	assert.True(t, buf.Send(10))
}

func TestBuffer_BoundedInitialCapacityClamped(t *testing.T) {
	buf := NewBoundedBuffer[int](100, 16)
	assert.Equal(t, 16, buf.Cap())
}

func TestBuffer_BlockingReceive(t *testing.T) {
	buf := NewBuffer[int](10)
	received := make(chan int, 1)

	go func() {
		val, ok := buf.Receive()
		if ok {
			received <- val
		}
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Send(42)

	select {
	case val := <-received:
		assert.Equal(t, 42, val)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked receive")
	}
}

func TestBuffer_Close(t *testing.T) {
	buf := NewBuffer[int](10)
	buf.Send(1)
	buf.Send(2)

	buf.Close()

	assert.False(t, buf.Send(3), "Send should return false after Close")

	val, ok := buf.TryReceive()
	assert.True(t, ok)
	assert.Equal(t, 1, val)
	val, ok = buf.TryReceive()
	assert.True(t, ok)
	assert.Equal(t, 2, val)

	_, ok = buf.TryReceive()
	assert.False(t, ok)
}

func TestBuffer_CloseUnblocksReceive(t *testing.T) {
	buf := NewBuffer[int](10)
	done := make(chan bool, 1)

	go func() {
		_, ok := buf.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Close()

	select {
	case ok := <-done:
		assert.False(t, ok, "Receive should return false when closed and empty")
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Receive")
	}
}

func TestBuffer_DrainTo(t *testing.T) {
	buf := NewBuffer[int](10)
	for i := 0; i < 10; i++ {
		buf.Send(i)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, buf.DrainTo(5))
	assert.Equal(t, 5, buf.Len())
	assert.Len(t, buf.DrainTo(0), 5)
	assert.Nil(t, buf.DrainTo(0))
}

func TestBuffer_ConcurrentProducers(t *testing.T) {
	buf := NewBuffer[int](10)
	const (
		producers = 8
		perProd   = 500
	)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				buf.Send(p*perProd + i)
			}
		}(p)
	}

	seen := make(map[int]bool)
	lastByProducer := make(map[int]int)
	for len(seen) < producers*perProd {
		val, ok := buf.Receive()
		require.True(t, ok)
		p := val / perProd
		if last, ok := lastByProducer[p]; ok {
			require.Greater(t, val, last, "per-producer order must be preserved")
		}
		lastByProducer[p] = val
		seen[val] = true
	}
	wg.Wait()
	assert.Equal(t, 0, buf.Len())
}

func TestBuffer_WrapAround(t *testing.T) {
	buf := NewBuffer[int](5)

	buf.Send(1)
	buf.Send(2)
	buf.Send(3)
	buf.TryReceive()
	buf.TryReceive()
	buf.Send(4)
	buf.Send(5)
	buf.Send(6)
	buf.Send(7)
	buf.Send(8)

	for _, want := range []int{3, 4, 5, 6, 7, 8} {
		got, ok := buf.TryReceive()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestNewBuffer_MinCapacity(t *testing.T) {
	assert.Equal(t, 1, NewBuffer[int](0).Cap())
	assert.Equal(t, 1, NewBuffer[int](-5).Cap())
}
