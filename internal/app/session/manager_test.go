package session

import (
	"context"
	"testing"
	"time"

	"cleancity-server-go/internal/domain/lifecycle"
	"cleancity-server-go/internal/domain/report/ledger"
	"cleancity-server-go/internal/domain/report/service"
	"cleancity-server-go/internal/platform/config"
	"cleancity-server-go/internal/platform/errors"
)

func newTestManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	store, err := ledger.New(config.LedgerConfig{Driver: "memory"}, ledger.Dependencies{})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	submitter := service.NewSubmitter(store, nil, nil)
	verifier := service.NewVerifier(store, nil)
	m := NewManager(submitter, verifier, config.LifecycleConfig{SessionTTL: ttl}, nil)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t, time.Minute)

	id, machine := m.Create()
	if id == "" {
		t.Fatal("empty session ID")
	}
	if machine.State() != lifecycle.StateWelcome {
		t.Errorf("new session must start at welcome, got %q", machine.State())
	}

	got, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != machine {
		t.Error("Get returned a different machine")
	}
}

func TestGetUnknownSession(t *testing.T) {
	m := newTestManager(t, time.Minute)
	if _, err := m.Get("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestCreateVerifyStartsOnConfirmationScreen(t *testing.T) {
	m := newTestManager(t, time.Minute)

	id, machine := m.CreateVerify("GR-00001234")
	if machine.State() != lifecycle.StateVerify {
		t.Errorf("expected verify state, got %q", machine.State())
	}
	snap := machine.Snapshot()
	if snap.ReportID != "GR-00001234" {
		t.Errorf("deep-linked report lost: %+v", snap)
	}
	if _, err := m.Get(id); err != nil {
		t.Errorf("verify session not registered: %v", err)
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	m := newTestManager(t, time.Minute)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, _ := m.Create()
		if seen[id] {
			t.Fatalf("duplicate session ID %q", id)
		}
		seen[id] = true
	}
}

func TestIdleEviction(t *testing.T) {
	m := newTestManager(t, 10*time.Millisecond)

	id, _ := m.Create()
	time.Sleep(30 * time.Millisecond)
	m.evictIdle()

	if _, err := m.Get(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("idle session must be evicted, got %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("expected empty registry, got %d", m.Count())
	}
}

func TestCloseDropsSessions(t *testing.T) {
	m := newTestManager(t, time.Minute)
	m.Create()
	m.Create()

	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("expected no sessions after close, got %d", m.Count())
	}
}
