package lifecycle

import (
	"context"
	"sync"
	"time"

	"cleancity-server-go/internal/domain/eventbus"
	"cleancity-server-go/internal/domain/image"
	"cleancity-server-go/internal/domain/report/aggregate"
	"cleancity-server-go/internal/domain/report/service"
	"cleancity-server-go/internal/platform/config"
	"cleancity-server-go/internal/platform/errors"
	"cleancity-server-go/internal/platform/logging"
)

// State names the screens of the reporting flow.
type State string

const (
	StateWelcome       State = "welcome"
	StateForm          State = "form"
	StateLoading       State = "loading"
	StateSuccess       State = "success"
	StateTrack         State = "track"
	StateVerify        State = "verify"
	StateVerifySuccess State = "verify_success"
)

// Loading choreography stages, in order.
const (
	StageSubmitting    = "submitting"
	StageLocatingStaff = "locating_staff"
	StageAssigning     = "assigning"
)

// transitions lists every edge the machine accepts. Anything else is a
// conflict.
var transitions = map[State][]State{
	StateWelcome:       {StateForm, StateTrack},
	StateForm:          {StateLoading, StateWelcome},
	StateLoading:       {StateSuccess, StateForm},
	StateSuccess:       {StateWelcome},
	StateTrack:         {StateWelcome},
	StateVerify:        {StateVerifySuccess, StateWelcome},
	StateVerifySuccess: {StateWelcome},
}

// ErrConflict is returned when an operation is invalid in the current state.
var ErrConflict = errors.New(errors.KindDomain, "lifecycle.transition", "operation not allowed in the current state")

// Snapshot is a read-only view of a machine for transports.
type Snapshot struct {
	SessionID    string             `json:"session_id"`
	State        State              `json:"state"`
	LoadingStage string             `json:"loading_stage,omitempty"`
	HasImage     bool               `json:"has_image"`
	Details      string             `json:"details,omitempty"`
	Location     *aggregate.Location `json:"location,omitempty"`
	Result       *aggregate.Record  `json:"result,omitempty"`
	ReportID     string             `json:"report_id,omitempty"`
	LastError    string             `json:"last_error,omitempty"`
}

// Machine drives one reporting session through the flow. All methods are
// safe for concurrent use; the loading choreography runs on its own timers
// and never blocks callers.
type Machine struct {
	mu sync.Mutex

	sessionID string
	state     State
	draft     aggregate.Draft
	result    *aggregate.Record
	lastErr   error

	// verify sessions carry the deep-linked report instead of a draft
	reportID string

	loadingStage string
	timers       []*time.Timer

	submitter *service.Submitter
	verifier  *service.Verifier
	cfg       config.LifecycleConfig
	logger    *logging.Logger
	now       func() time.Time
}

// NewMachine creates a session machine at the welcome screen.
func NewMachine(sessionID string, submitter *service.Submitter, verifier *service.Verifier,
	cfg config.LifecycleConfig, logger *logging.Logger) *Machine {
	return &Machine{
		sessionID: sessionID,
		state:     StateWelcome,
		submitter: submitter,
		verifier:  verifier,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// NewVerifyMachine creates a session already positioned on the confirmation
// screen for a deep-linked report.
func NewVerifyMachine(sessionID, reportID string, verifier *service.Verifier,
	cfg config.LifecycleConfig, logger *logging.Logger) *Machine {
	m := NewMachine(sessionID, nil, verifier, cfg, logger)
	m.state = StateVerify
	m.reportID = reportID
	return m
}

// WithClock replaces the machine's clock.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Snapshot returns the current view of the session.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		SessionID:    m.sessionID,
		State:        m.state,
		LoadingStage: m.loadingStage,
		HasImage:     m.draft.Image != nil,
		Details:      m.draft.Details,
		Result:       m.result,
		ReportID:     m.reportID,
	}
	if m.draft.Location != nil {
		loc := *m.draft.Location
		snap.Location = &loc
	}
	if m.lastErr != nil {
		snap.LastError = m.lastErr.Error()
	}
	return snap
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OpenForm moves from the welcome screen to the report form.
func (m *Machine) OpenForm() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(StateForm)
}

// OpenTrack moves from the welcome screen to the tracking screen.
func (m *Machine) OpenTrack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(StateTrack)
}

// Reset returns to the welcome screen from any resting state and discards
// the draft. A session stuck in loading cannot be reset; the choreography
// resolves it first.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateLoading {
		return ErrConflict
	}
	if m.state == StateWelcome {
		return nil
	}
	if err := m.transition(StateWelcome); err != nil {
		return err
	}
	m.draft = aggregate.Draft{}
	m.result = nil
	m.lastErr = nil
	m.loadingStage = ""
	return nil
}

// AttachImage stores the compressed photo on the draft. Only valid while the
// form is open.
func (m *Machine) AttachImage(payload *image.CompressedPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateForm {
		return ErrConflict
	}
	m.draft.Image = payload
	return nil
}

// SetDetails stores the free-text description on the draft.
func (m *Machine) SetDetails(details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateForm {
		return ErrConflict
	}
	m.draft.Details = details
	return nil
}

// SetLocation stores the captured GPS fix on the draft.
func (m *Machine) SetLocation(loc aggregate.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateForm {
		return ErrConflict
	}
	m.draft.Location = &loc
	return nil
}

// Submit validates the draft and, when complete, enters the loading screen.
// The stage choreography advances on fixed delays while the real submission
// runs concurrently; only the submission outcome moves the machine out of
// loading. Validation errors are returned immediately and leave the form
// open.
func (m *Machine) Submit(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateForm {
		m.mu.Unlock()
		return ErrConflict
	}
	if err := m.draft.Validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	if err := m.transition(StateLoading); err != nil {
		m.mu.Unlock()
		return err
	}
	m.lastErr = nil
	m.setStageLocked(StageSubmitting)
	m.startChoreographyLocked()
	draft := m.draft
	m.mu.Unlock()

	go m.runSubmission(ctx, &draft)
	return nil
}

// runSubmission performs the real ledger write and delivery hand-off.
func (m *Machine) runSubmission(ctx context.Context, draft *aggregate.Draft) {
	record, err := m.submitter.Submit(ctx, m.sessionID, draft)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		// Delivery failed: abandon the choreography and reopen the form
		// with the draft intact so the citizen can retry.
		m.stopTimersLocked()
		m.lastErr = err
		if m.state == StateLoading {
			_ = m.transition(StateForm)
		}
		if m.logger != nil {
			m.logger.Warn("session %s submission failed: %v", m.sessionID, err)
		}
		return
	}

	// The real submission result, not the cosmetic stage timer, gates the
	// exit from loading. The choreography may still be mid-flight.
	m.stopTimersLocked()
	m.result = record
	if m.state == StateLoading {
		_ = m.transition(StateSuccess)
	}
	if m.logger != nil {
		m.logger.Info("session %s completed with report %s", m.sessionID, record.ID)
	}
}

// startChoreographyLocked arms the stage timers. Callers hold the lock.
func (m *Machine) startChoreographyLocked() {
	staffAfter := m.cfg.StaffLookupAfter
	if staffAfter <= 0 {
		staffAfter = 5 * time.Second
	}
	assignAfter := m.cfg.AssignmentAfter
	if assignAfter <= 0 {
		assignAfter = 8 * time.Second
	}

	m.timers = []*time.Timer{
		time.AfterFunc(staffAfter, func() { m.advanceStage(StageLocatingStaff) }),
		time.AfterFunc(assignAfter, func() { m.advanceStage(StageAssigning) }),
	}
}

// advanceStage moves the loading choreography forward. Purely cosmetic: it
// never triggers the exit from loading.
func (m *Machine) advanceStage(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateLoading {
		return
	}
	m.setStageLocked(stage)
}

func (m *Machine) setStageLocked(stage string) {
	m.loadingStage = stage
	eventbus.PublishAsync(eventbus.EventLifecycleStage, eventbus.StageEventData{
		SessionID: m.sessionID,
		Stage:     stage,
		At:        m.now(),
	})
}

func (m *Machine) stopTimersLocked() {
	for _, timer := range m.timers {
		timer.Stop()
	}
	m.timers = nil
}

// ConfirmVerify flips the deep-linked report to verified and shows the
// thank-you screen.
func (m *Machine) ConfirmVerify(ctx context.Context) (*aggregate.Record, error) {
	m.mu.Lock()
	if m.state != StateVerify {
		m.mu.Unlock()
		return nil, ErrConflict
	}
	reportID := m.reportID
	m.mu.Unlock()

	record, err := m.verifier.Confirm(ctx, reportID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = record
	m.lastErr = nil
	if m.state == StateVerify {
		_ = m.transition(StateVerifySuccess)
	}
	return record, nil
}

// DenyVerify leaves the report untouched. The session stays on the
// confirmation screen so the person on site can still confirm later; Reset
// is the way out.
func (m *Machine) DenyVerify() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateVerify {
		return ErrConflict
	}
	m.lastErr = errors.New(errors.KindDomain, "lifecycle.verify", "cleanup not confirmed, report stays open")
	return nil
}

// transition performs a guarded state change. Callers hold the lock.
func (m *Machine) transition(to State) error {
	allowed := false
	for _, next := range transitions[m.state] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrConflict
	}

	from := m.state
	m.state = to
	if to != StateLoading {
		m.loadingStage = ""
	}

	eventbus.PublishAsync(eventbus.EventLifecycleTransition, eventbus.TransitionEventData{
		SessionID: m.sessionID,
		From:      string(from),
		To:        string(to),
		At:        m.now(),
	})
	return nil
}
