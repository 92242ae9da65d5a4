package subsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShahriarSojib/MarketHub/internal/pkg/billing"
)

func TestManagerStopWaitsForRunningSync(t *testing.T) {
	repo := newMemRepo()
	future := time.Now().UTC().Add(30 * 24 * time.Hour)
	s1 := repo.addActiveSub(1, "sub_1", future)

	client := &memClient{
		remotes: map[string]billing.RemoteSubscription{"sub_1": remoteFor(s1, "active")},
		delay:   30 * time.Millisecond,
	}

	m := &Manager{
		sync:          newTestSynchronizer(repo, client),
		syncInterval:  5 * time.Millisecond,
		sweepInterval: time.Hour,
	}
	m.Start()
	require.True(t, m.IsRunning())

	// Let a sync run get in flight before stopping.
	time.Sleep(15 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a sync run was in flight")
	}
	assert.False(t, m.IsRunning())
}

func TestManagerStartIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	m := &Manager{
		sync:          newTestSynchronizer(repo, &memClient{}),
		syncInterval:  time.Hour,
		sweepInterval: time.Hour,
	}
	m.Start()
	m.Start()
	m.Stop()
	assert.False(t, m.IsRunning())
}
