package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"cleancity-server-go/internal/domain/lifecycle"
	"cleancity-server-go/internal/domain/report/service"
	"cleancity-server-go/internal/platform/config"
	"cleancity-server-go/internal/platform/errors"
	"cleancity-server-go/internal/platform/logging"
)

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New(errors.KindDomain, "session.get", "session not found")

type entry struct {
	machine  *lifecycle.Machine
	lastSeen time.Time
}

// Manager owns the live reporting sessions. Each session wraps one lifecycle
// machine; idle sessions are evicted after the configured TTL.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry

	submitter *service.Submitter
	verifier  *service.Verifier
	cfg       config.LifecycleConfig
	logger    *logging.Logger

	stopGC chan struct{}
	gcOnce sync.Once
}

// NewManager creates a session manager and starts its eviction loop.
func NewManager(submitter *service.Submitter, verifier *service.Verifier,
	cfg config.LifecycleConfig, logger *logging.Logger) *Manager {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	m := &Manager{
		entries:   make(map[string]*entry),
		submitter: submitter,
		verifier:  verifier,
		cfg:       cfg,
		logger:    logger,
		stopGC:    make(chan struct{}),
	}
	go m.gcLoop()
	return m
}

// Create opens a new session at the welcome screen and returns its ID.
func (m *Manager) Create() (string, *lifecycle.Machine) {
	id := uuid.NewString()
	machine := lifecycle.NewMachine(id, m.submitter, m.verifier, m.cfg, m.logger)

	m.mu.Lock()
	m.entries[id] = &entry{machine: machine, lastSeen: time.Now()}
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Debug("session %s created", id)
	}
	return id, machine
}

// CreateVerify opens a session positioned on the confirmation screen for a
// deep-linked report.
func (m *Manager) CreateVerify(reportID string) (string, *lifecycle.Machine) {
	id := uuid.NewString()
	machine := lifecycle.NewVerifyMachine(id, reportID, m.verifier, m.cfg, m.logger)

	m.mu.Lock()
	m.entries[id] = &entry{machine: machine, lastSeen: time.Now()}
	m.mu.Unlock()
	return id, machine
}

// Get returns the machine for a session and refreshes its idle timer.
func (m *Manager) Get(id string) (*lifecycle.Machine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = time.Now()
	return e.machine, nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops the eviction loop and drops all sessions.
func (m *Manager) Close(context.Context) error {
	m.gcOnce.Do(func() { close(m.stopGC) })
	m.mu.Lock()
	m.entries = make(map[string]*entry)
	m.mu.Unlock()
	return nil
}

func (m *Manager) gcLoop() {
	interval := m.cfg.SessionTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopGC:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	cutoff := time.Now().Add(-m.cfg.SessionTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		// A session mid-submission is never evicted; the choreography
		// finishes within seconds and moves it to a resting state.
		if e.lastSeen.Before(cutoff) && e.machine.State() != lifecycle.StateLoading {
			delete(m.entries, id)
			if m.logger != nil {
				m.logger.Debug("session %s evicted after idle timeout", id)
			}
		}
	}
}
