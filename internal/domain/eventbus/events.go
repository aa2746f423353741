package eventbus

import "time"

// Topics published by the report lifecycle.
const (
	EventLifecycleTransition = "lifecycle:transition"
	EventLifecycleStage      = "lifecycle:stage"
	EventReportSubmitted     = "report:submitted"
	EventReportVerified      = "report:verified"
	EventDeliveryFailed      = "delivery:failed"
)

// TransitionEventData describes a lifecycle state change.
type TransitionEventData struct {
	SessionID string    `json:"session_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	At        time.Time `json:"at"`
}

// StageEventData describes the loading choreography advancing a step.
type StageEventData struct {
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage"`
	At        time.Time `json:"at"`
}

// ReportEventData carries report-scoped notifications.
type ReportEventData struct {
	SessionID string    `json:"session_id,omitempty"`
	ReportID  string    `json:"report_id"`
	At        time.Time `json:"at"`
}

// DeliveryEventData captures a failed hand-off to the outbound channel.
type DeliveryEventData struct {
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}
