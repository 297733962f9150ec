// Package connectivity watches the device's online/offline state and fires a
// hook once per offline-to-online transition.
package connectivity

import (
	"context"
	"log"
	"sync"
	"time"
)

// CheckFunc probes whether the network is reachable right now.
type CheckFunc func(ctx context.Context) bool

type Monitor struct {
	check    CheckFunc
	interval time.Duration
	onOnline func()
	logger   *log.Logger

	mu     sync.Mutex
	online bool
}

// New builds a monitor. onOnline runs once per false->true transition; any
// replay-overlap protection belongs to the callback itself, not the monitor.
func New(check CheckFunc, interval time.Duration, onOnline func(), logger *log.Logger) *Monitor {
	if interval == 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		check:    check,
		interval: interval,
		onOnline: onOnline,
		logger:   logger,
	}
}

// Online reports the last observed state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline feeds an externally observed state change (e.g. an OS network
// event) into the monitor. Fires the hook on an offline-to-online edge.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	m.mu.Unlock()

	if online && !wasOnline {
		m.logger.Printf("Connectivity restored, triggering sync")
		m.onOnline()
	}
}

// Run polls the probe until the context is cancelled. An initial probe runs
// immediately, so a device that starts online syncs at startup.
func (m *Monitor) Run(ctx context.Context) {
	m.SetOnline(m.check(ctx))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(m.check(ctx))
		}
	}
}
