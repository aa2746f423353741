package service

import (
	"context"
	"time"

	"cleancity-server-go/internal/domain/eventbus"
	"cleancity-server-go/internal/domain/report/aggregate"
	"cleancity-server-go/internal/domain/report/ledger"
	"cleancity-server-go/internal/platform/logging"
)

// Verifier handles the on-the-ground confirmation flow reached through the
// deep link in the delivered report.
type Verifier struct {
	store  ledger.Store
	logger *logging.Logger
	now    func() time.Time
}

// NewVerifier wires a verifier.
func NewVerifier(store ledger.Store, logger *logging.Logger) *Verifier {
	return &Verifier{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the verifier's clock.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Lookup resolves a tracking ID for the confirmation page without changing
// any state.
func (v *Verifier) Lookup(ctx context.Context, rawID string) (*aggregate.Record, error) {
	id, err := aggregate.NormalizeID(rawID)
	if err != nil {
		return nil, err
	}
	return v.store.Get(ctx, id)
}

// Confirm flips the report's verified flag. Repeated confirmations succeed,
// keep the flag set and refresh the timestamp, so a shared link can be
// followed more than once without harm.
func (v *Verifier) Confirm(ctx context.Context, rawID string) (*aggregate.Record, error) {
	id, err := aggregate.NormalizeID(rawID)
	if err != nil {
		return nil, err
	}

	record, err := v.store.MarkVerified(ctx, id, v.now())
	if err != nil {
		return nil, err
	}

	if v.logger != nil {
		v.logger.Info("report %s confirmed as resolved", record.ID)
	}
	eventbus.PublishAsync(eventbus.EventReportVerified, eventbus.ReportEventData{
		ReportID: record.ID,
		At:       v.now(),
	})
	return record, nil
}
