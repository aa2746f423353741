package ledger

import (
	"context"
	"time"

	"cleancity-server-go/internal/domain/report/aggregate"
)

// Store is the report ledger. Implementations must make Put an atomic
// per-record upsert: two concurrent writers for the same ID leave exactly one
// record, the later write winning, and never corrupt unrelated records.
type Store interface {
	// Put inserts or replaces the record keyed by its ID.
	Put(ctx context.Context, record *aggregate.Record) error

	// Get returns the record for a canonical tracking ID, or
	// aggregate.ErrReportNotFound.
	Get(ctx context.Context, id string) (*aggregate.Record, error)

	// MarkVerified flips the verified flag and stamps the time. Calling it
	// on an already-verified record succeeds and refreshes the timestamp.
	// Returns the record as stored afterwards.
	MarkVerified(ctx context.Context, id string, at time.Time) (*aggregate.Record, error)

	// List returns all records, newest first.
	List(ctx context.Context) ([]*aggregate.Record, error)

	// Stats summarizes the ledger for the admin surface.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Stats is a ledger-wide summary.
type Stats struct {
	Total    int `json:"total"`
	Verified int `json:"verified"`
}
