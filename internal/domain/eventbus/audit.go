package eventbus

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"cleancity-server-go/internal/platform/errors"
	"cleancity-server-go/internal/platform/storage"
)

// AuditRecorder persists lifecycle events so a session's history can be
// reconstructed after the fact.
type AuditRecorder struct {
	db *gorm.DB
}

// NewAuditRecorder creates a recorder backed by the platform database.
func NewAuditRecorder(db *gorm.DB) *AuditRecorder {
	return &AuditRecorder{db: db}
}

// Register subscribes the recorder to every lifecycle topic on the async bus.
func (r *AuditRecorder) Register() error {
	if err := SubscribeAsync(EventLifecycleTransition, func(data TransitionEventData) {
		r.store(EventLifecycleTransition, data.SessionID, data)
	}); err != nil {
		return err
	}
	if err := SubscribeAsync(EventReportSubmitted, func(data ReportEventData) {
		r.store(EventReportSubmitted, data.SessionID, data)
	}); err != nil {
		return err
	}
	if err := SubscribeAsync(EventReportVerified, func(data ReportEventData) {
		r.store(EventReportVerified, data.SessionID, data)
	}); err != nil {
		return err
	}
	return SubscribeAsync(EventDeliveryFailed, func(data DeliveryEventData) {
		r.store(EventDeliveryFailed, data.SessionID, data)
	})
}

func (r *AuditRecorder) store(eventType, sessionID string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	record := &storage.LifecycleEvent{
		EventType: eventType,
		SessionID: sessionID,
		Data:      raw,
		CreatedAt: time.Now(),
	}
	_ = r.db.Create(record).Error
}

// History returns the stored events for one session, oldest first.
func (r *AuditRecorder) History(sessionID string) ([]storage.LifecycleEvent, error) {
	var events []storage.LifecycleEvent
	if err := r.db.
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "audit.history", "failed to load session events", err)
	}
	return events, nil
}
