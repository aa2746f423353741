package service

import (
	"context"
	"testing"
	"time"

	"cleancity-server-go/internal/domain/delivery"
	"cleancity-server-go/internal/domain/image"
	"cleancity-server-go/internal/domain/report/aggregate"
	"cleancity-server-go/internal/domain/report/ledger"
	"cleancity-server-go/internal/platform/config"
	"cleancity-server-go/internal/platform/errors"
)

// stubChannel records deliveries and fails on demand.
type stubChannel struct {
	sent []delivery.Payload
	err  error
}

func (c *stubChannel) Send(_ context.Context, payload delivery.Payload) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, payload)
	return nil
}

func newTestStore(t *testing.T) ledger.Store {
	t.Helper()
	store, err := ledger.New(config.LedgerConfig{Driver: "memory"}, ledger.Dependencies{})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	return store
}

func completeDraft() *aggregate.Draft {
	return &aggregate.Draft{
		Image:    &image.CompressedPayload{Data: []byte{0xff, 0xd8, 0xff}, Quality: 50, Width: 800, Height: 600},
		Details:  "  broken glass on the path  ",
		Location: &aggregate.Location{Latitude: 48.137, Longitude: 11.575},
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestSubmitRecordsBeforeDelivery(t *testing.T) {
	store := newTestStore(t)
	channel := &stubChannel{}
	now := time.UnixMilli(1756400000123)

	submitter := NewSubmitter(store, channel, nil).
		WithClock(fixedClock(now)).
		WithVerifyBase("http://localhost:8080/")
	record, err := submitter.Submit(context.Background(), "sess-1", completeDraft())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if record.ID != "GR-00000123" {
		t.Errorf("unexpected minted ID %q", record.ID)
	}
	if record.Details != "broken glass on the path" {
		t.Errorf("details not normalized: %q", record.Details)
	}
	if record.Extra["image_quality"] != "50" {
		t.Errorf("compression metadata missing: %+v", record.Extra)
	}

	stored, err := store.Get(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("record not in ledger: %v", err)
	}
	if stored.Verified {
		t.Error("fresh record must not be verified")
	}

	if len(channel.sent) != 1 {
		t.Fatalf("expected one delivery, got %d", len(channel.sent))
	}
	if channel.sent[0].ReportID != record.ID {
		t.Errorf("delivery carries wrong ID %q", channel.sent[0].ReportID)
	}
	if channel.sent[0].VerifyURL != "http://localhost:8080/verify?report=GR-00000123" {
		t.Errorf("delivery carries wrong verify link %q", channel.sent[0].VerifyURL)
	}
}

func TestSubmitValidatesDraft(t *testing.T) {
	store := newTestStore(t)
	channel := &stubChannel{}
	submitter := NewSubmitter(store, channel, nil)

	cases := []struct {
		name  string
		draft *aggregate.Draft
		want  error
	}{
		{"no image", &aggregate.Draft{Location: &aggregate.Location{}}, aggregate.ErrMissingImage},
		{"no location", &aggregate.Draft{Image: &image.CompressedPayload{Data: []byte{1}}}, aggregate.ErrMissingLocation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := submitter.Submit(context.Background(), "sess-1", tc.draft)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			if len(channel.sent) != 0 {
				t.Error("invalid draft must never reach the channel")
			}
		})
	}
}

func TestSubmitKeepsLedgerEntryOnDeliveryFailure(t *testing.T) {
	store := newTestStore(t)
	channel := &stubChannel{err: aggregate.ErrDeliveryUnavailable}
	now := time.UnixMilli(1756400000500)

	submitter := NewSubmitter(store, channel, nil).WithClock(fixedClock(now))
	record, err := submitter.Submit(context.Background(), "sess-1", completeDraft())
	if !errors.Is(err, aggregate.ErrDeliveryUnavailable) {
		t.Fatalf("expected ErrDeliveryUnavailable, got %v", err)
	}
	if record == nil {
		t.Fatal("minted record must be returned even when delivery fails")
	}

	if _, err := store.Get(context.Background(), record.ID); err != nil {
		t.Errorf("ledger entry must survive delivery failure: %v", err)
	}
}

func TestTrackerStageProgression(t *testing.T) {
	store := newTestStore(t)
	created := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	record := &aggregate.Record{ID: "GR-00000042", CreatedAt: created, Location: aggregate.Location{}}
	if err := store.Put(context.Background(), record); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	cfg := config.TrackingConfig{ReviewAfter: 5 * time.Second, DispatchAfter: 10 * time.Second}

	cases := []struct {
		name string
		at   time.Time
		want [4]bool
	}{
		{"immediately", created.Add(time.Second), [4]bool{true, false, false, false}},
		{"after review threshold", created.Add(6 * time.Second), [4]bool{true, true, false, false}},
		{"after dispatch threshold", created.Add(11 * time.Second), [4]bool{true, true, true, false}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tracker := NewTracker(store, cfg).WithClock(fixedClock(tc.at))
			progress, err := tracker.Track(context.Background(), "gr-00000042")
			if err != nil {
				t.Fatalf("Track failed: %v", err)
			}
			for i, stage := range progress.Stages {
				if stage.Done != tc.want[i] {
					t.Errorf("stage %q: expected %v, got %v", stage.Label, tc.want[i], stage.Done)
				}
			}
		})
	}
}

func TestTrackerErrors(t *testing.T) {
	store := newTestStore(t)
	tracker := NewTracker(store, config.TrackingConfig{})

	if _, err := tracker.Track(context.Background(), "x"); !errors.Is(err, aggregate.ErrInvalidTrackingFormat) {
		t.Errorf("expected format error, got %v", err)
	}
	if _, err := tracker.Track(context.Background(), "GR-00009999"); !errors.Is(err, aggregate.ErrReportNotFound) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestVerifierConfirmIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	created := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	record := &aggregate.Record{ID: "GR-00000777", CreatedAt: created}
	if err := store.Put(context.Background(), record); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	firstAt := created.Add(time.Hour)
	verifier := NewVerifier(store, nil).WithClock(fixedClock(firstAt))

	confirmed, err := verifier.Confirm(context.Background(), "gr-00000777")
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if !confirmed.Verified || confirmed.VerifiedAt == nil || !confirmed.VerifiedAt.Equal(firstAt) {
		t.Fatalf("record not verified as expected: %+v", confirmed)
	}

	later := NewVerifier(store, nil).WithClock(fixedClock(firstAt.Add(time.Hour)))
	again, err := later.Confirm(context.Background(), "GR-00000777")
	if err != nil {
		t.Fatalf("second Confirm failed: %v", err)
	}
	if !again.Verified {
		t.Error("record must stay verified")
	}
	if !again.VerifiedAt.Equal(firstAt.Add(time.Hour)) {
		t.Errorf("repeat confirm must refresh the timestamp, got %v", again.VerifiedAt)
	}
}

func TestVerifierCompletesTracking(t *testing.T) {
	store := newTestStore(t)
	created := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	if err := store.Put(context.Background(), &aggregate.Record{ID: "GR-00000888", CreatedAt: created}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	verifier := NewVerifier(store, nil).WithClock(fixedClock(created.Add(time.Second)))
	if _, err := verifier.Confirm(context.Background(), "GR-00000888"); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	cfg := config.TrackingConfig{ReviewAfter: 5 * time.Second, DispatchAfter: 10 * time.Second}
	tracker := NewTracker(store, cfg).WithClock(fixedClock(created.Add(2 * time.Second)))
	progress, err := tracker.Track(context.Background(), "GR-00000888")
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	final := progress.Stages[len(progress.Stages)-1]
	if !final.Done {
		t.Error("verified report must show the final stage complete regardless of age")
	}
}

func TestVerifierLookup(t *testing.T) {
	store := newTestStore(t)
	verifier := NewVerifier(store, nil)

	if _, err := verifier.Lookup(context.Background(), "!!"); !errors.Is(err, aggregate.ErrInvalidTrackingFormat) {
		t.Errorf("expected format error, got %v", err)
	}
	if _, err := verifier.Lookup(context.Background(), "GR-00001234"); !errors.Is(err, aggregate.ErrReportNotFound) {
		t.Errorf("expected not-found error, got %v", err)
	}
}
