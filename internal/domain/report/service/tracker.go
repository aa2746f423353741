package service

import (
	"context"
	"time"

	"cleancity-server-go/internal/domain/report/aggregate"
	"cleancity-server-go/internal/domain/report/ledger"
	"cleancity-server-go/internal/platform/config"
)

// Tracker resolves tracking IDs to progress vectors. The first three stages
// are simulated from elapsed time; the last reflects the real verified flag.
type Tracker struct {
	store ledger.Store
	cfg   config.TrackingConfig
	now   func() time.Time
}

// NewTracker wires a tracker with the configured stage thresholds.
func NewTracker(store ledger.Store, cfg config.TrackingConfig) *Tracker {
	return &Tracker{store: store, cfg: cfg, now: time.Now}
}

// WithClock replaces the tracker's clock.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Track normalizes the user-entered ID and computes the report's progress.
// Format errors surface before the ledger is consulted.
func (t *Tracker) Track(ctx context.Context, rawID string) (*aggregate.Progress, error) {
	id, err := aggregate.NormalizeID(rawID)
	if err != nil {
		return nil, err
	}

	record, err := t.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	progress := record.ProgressAt(t.now(), t.cfg.ReviewAfter, t.cfg.DispatchAfter)
	return &progress, nil
}
