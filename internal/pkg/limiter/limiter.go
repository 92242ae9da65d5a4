package limiter

import "sync"

// Limiter bounds the number of operations running at once. Waiting callers
// are admitted strictly in arrival order, so a burst of batch work cannot
// starve earlier submissions. One instance is shared process-wide so that
// the webhook path and the sync jobs are throttled in aggregate.
type Limiter struct {
	mu       sync.Mutex
	max      int
	inFlight int
	waiters  []chan struct{}
}

// New creates a limiter admitting at most max concurrent operations.
func New(max int) *Limiter {
	if max <= 0 {
		max = 5
	}
	return &Limiter{max: max}
}

// Do runs fn once a slot is free and releases the slot when fn returns,
// success or failure.
func (l *Limiter) Do(fn func() error) error {
	l.acquire()
	defer l.release()
	return fn()
}

// InFlight returns the number of operations currently running.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

func (l *Limiter) acquire() {
	l.mu.Lock()
	if l.inFlight < l.max {
		l.inFlight++
		l.mu.Unlock()
		return
	}
	ready := make(chan struct{})
	l.waiters = append(l.waiters, ready)
	l.mu.Unlock()
	<-ready
}

func (l *Limiter) release() {
	l.mu.Lock()
	if len(l.waiters) > 0 {
		// Hand the slot to the oldest waiter; inFlight stays unchanged.
		ready := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.mu.Unlock()
		close(ready)
		return
	}
	l.inFlight--
	l.mu.Unlock()
}
