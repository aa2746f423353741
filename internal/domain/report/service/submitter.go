package service

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cleancity-server-go/internal/domain/delivery"
	"cleancity-server-go/internal/domain/eventbus"
	"cleancity-server-go/internal/domain/report/aggregate"
	"cleancity-server-go/internal/domain/report/ledger"
	"cleancity-server-go/internal/platform/logging"
)

// Submitter turns validated drafts into ledger records and hands them to the
// delivery channel.
type Submitter struct {
	store      ledger.Store
	channel    delivery.Channel
	logger     *logging.Logger
	verifyBase string
	now        func() time.Time
}

// NewSubmitter wires a submitter. The clock defaults to time.Now and is
// injectable for tests.
func NewSubmitter(store ledger.Store, channel delivery.Channel, logger *logging.Logger) *Submitter {
	return &Submitter{
		store:   store,
		channel: channel,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the submitter's clock.
func (s *Submitter) WithClock(now func() time.Time) *Submitter {
	s.now = now
	return s
}

// WithVerifyBase sets the public base URL used to build verification links.
func (s *Submitter) WithVerifyBase(base string) *Submitter {
	s.verifyBase = strings.TrimRight(base, "/")
	return s
}

// verifyURL builds the deep link a cleanup crew follows to confirm a report.
func (s *Submitter) verifyURL(reportID string) string {
	if s.verifyBase == "" {
		return ""
	}
	return s.verifyBase + "/verify?report=" + url.QueryEscape(reportID)
}

// Submit validates the draft, mints a tracking ID, records the report in the
// ledger and then attempts delivery. The ledger write happens before the
// delivery call so a tracking ID stays resolvable even when the channel is
// down; delivery failures are returned to the caller alongside the minted
// record so the draft can be retried.
func (s *Submitter) Submit(ctx context.Context, sessionID string, draft *aggregate.Draft) (*aggregate.Record, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	record := &aggregate.Record{
		ID:        aggregate.MintID(now),
		CreatedAt: now,
		Location:  *draft.Location,
		Details:   draft.NormalizedDetails(),
		Extra: map[string]string{
			"image_quality": strconv.Itoa(draft.Image.Quality),
			"image_width":   strconv.Itoa(draft.Image.Width),
			"image_height":  strconv.Itoa(draft.Image.Height),
			"image_bytes":   strconv.Itoa(draft.Image.TransportSize()),
		},
	}

	if err := s.store.Put(ctx, record); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("report %s recorded, handing off to delivery", record.ID)
	}

	err := s.channel.Send(ctx, delivery.Payload{
		ReportID:  record.ID,
		CreatedAt: record.CreatedAt,
		Details:   record.Details,
		Location:  record.Location,
		PhotoURL:  draft.Image.DataURL(),
		VerifyURL: s.verifyURL(record.ID),
	})
	if err != nil {
		eventbus.PublishAsync(eventbus.EventDeliveryFailed, eventbus.DeliveryEventData{
			SessionID: sessionID,
			Reason:    err.Error(),
			At:        now,
		})
		return record, err
	}

	eventbus.PublishAsync(eventbus.EventReportSubmitted, eventbus.ReportEventData{
		SessionID: sessionID,
		ReportID:  record.ID,
		At:        now,
	})
	return record, nil
}
