package subsync

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ShahriarSojib/MarketHub/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

// Manager schedules the periodic sync and expiry sweep.
type Manager struct {
	sync          *Synchronizer
	syncInterval  time.Duration
	sweepInterval time.Duration
	syncTicker    *time.Ticker
	sweepTicker   *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

// NewManager creates a scheduler for the given synchronizer. Intervals come
// from SUBSYNC_INTERVAL_MINUTES and EXPIRY_SWEEP_INTERVAL_MINUTES, with an
// hourly sync and a daily sweep as defaults.
func NewManager(sync *Synchronizer) *Manager {
	return &Manager{
		sync:          sync,
		syncInterval:  intervalFromEnv("SUBSYNC_INTERVAL_MINUTES", 60),
		sweepInterval: intervalFromEnv("EXPIRY_SWEEP_INTERVAL_MINUTES", 24*60),
	}
}

func intervalFromEnv(key string, fallbackMinutes int) time.Duration {
	minutes := fallbackMinutes
	if v := env.GetEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			minutes = n
		}
	}
	return time.Duration(minutes) * time.Minute
}

// Start launches the background workers.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Infof("[SubSync Manager] Starting background tasks (sync every %s, sweep every %s)", m.syncInterval, m.sweepInterval)

	// Workers get the channel and ticker of this start cycle; Stop mutates
	// the fields, and a worker mid-run must not re-read them.
	m.syncTicker = time.NewTicker(m.syncInterval)
	m.wg.Add(1)
	go m.syncWorker(m.stopCh, m.syncTicker)

	m.sweepTicker = time.NewTicker(m.sweepInterval)
	m.wg.Add(1)
	go m.sweepWorker(m.stopCh, m.sweepTicker)
}

// Stop stops the background workers and waits for them to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[SubSync Manager] Stopping background tasks...")

	if m.syncTicker != nil {
		m.syncTicker.Stop()
	}
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}

	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	m.wg.Wait()

	log.Info("[SubSync Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) syncWorker(stop <-chan struct{}, ticker *time.Ticker) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			log.Info("[SubSync Manager] Sync worker stopping")
			return
		case <-ticker.C:
			if _, err := m.sync.SyncAll(context.Background()); err != nil {
				log.Errorf("[SubSync Manager] Subscription sync failed: %v", err)
			}
		}
	}
}

func (m *Manager) sweepWorker(stop <-chan struct{}, ticker *time.Ticker) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			log.Info("[SubSync Manager] Sweep worker stopping")
			return
		case <-ticker.C:
			if _, err := m.sync.SweepExpired(context.Background()); err != nil {
				log.Errorf("[SubSync Manager] Expiry sweep failed: %v", err)
			}
		}
	}
}
