package aggregate

import "time"

// Stage labels, in presentation order.
const (
	StageReceived    = "received"
	StageUnderReview = "under review"
	StageDispatched  = "dispatched"
	StageComplete    = "complete"
)

// Stage is one entry of a report's progress vector.
type Stage struct {
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// Progress is the tracked status of a report at a point in time.
type Progress struct {
	ReportID  string    `json:"report_id"`
	CreatedAt time.Time `json:"created_at"`
	Verified  bool      `json:"verified"`
	Stages    []Stage   `json:"stages"`
}

// ProgressAt computes the stage vector for a record as observed at the given
// instant. The first three stages advance on elapsed time alone; the final
// stage completes only once the report has been verified on the ground,
// regardless of age.
func (r *Record) ProgressAt(at time.Time, reviewAfter, dispatchAfter time.Duration) Progress {
	age := at.Sub(r.CreatedAt)
	return Progress{
		ReportID:  r.ID,
		CreatedAt: r.CreatedAt,
		Verified:  r.Verified,
		Stages: []Stage{
			{Label: StageReceived, Done: true},
			{Label: StageUnderReview, Done: age >= reviewAfter},
			{Label: StageDispatched, Done: age >= dispatchAfter},
			{Label: StageComplete, Done: r.Verified},
		},
	}
}
