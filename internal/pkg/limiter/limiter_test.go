package limiter

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoBoundsConcurrency(t *testing.T) {
	const max = 5
	const ops = 40

	l := New(max)
	var inFlight, peak int64
	var wg sync.WaitGroup

	for i := 0; i < ops; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(func() error {
				cur := atomic.AddInt64(&inFlight, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(max))
	assert.Equal(t, 0, l.InFlight())
}

func TestDoReturnsOperationError(t *testing.T) {
	l := New(2)
	boom := errors.New("boom")

	err := l.Do(func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, l.InFlight(), "slot must be released on failure")
}

func TestWaitersAdmittedInArrivalOrder(t *testing.T) {
	l := New(1)

	block := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = l.Do(func() error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started

	// Queue waiters one at a time so their arrival order is fixed.
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		time.Sleep(5 * time.Millisecond)
	}

	close(block)
	wg.Wait()

	require.Len(t, order, 5)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestNewDefaultsInvalidMax(t *testing.T) {
	l := New(0)
	done := make(chan struct{})
	go func() {
		_ = l.Do(func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("limiter with defaulted max never admitted the operation")
	}
}
