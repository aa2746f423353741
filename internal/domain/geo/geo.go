// Package geo defines the location acquisition contract. The server itself
// never resolves positions; clients capture them and push them into the
// session, but every failure mode they can report is typed here so the rest
// of the system can present them distinctly.
package geo

import (
	"context"
	"math"

	"cleancity-server-go/internal/domain/report/aggregate"
	"cleancity-server-go/internal/platform/errors"
)

// FailureKind enumerates the ways a position fix can fail.
type FailureKind string

const (
	FailurePermissionDenied    FailureKind = "permission-denied"
	FailurePositionUnavailable FailureKind = "position-unavailable"
	FailureTimeout             FailureKind = "timeout"
	FailureUnsupported         FailureKind = "unsupported"
)

// Failure is a typed location acquisition error.
type Failure struct {
	Kind FailureKind
}

func (f *Failure) Error() string {
	return "location unavailable: " + string(f.Kind)
}

// Message returns the user-facing explanation for the failure.
func (f *Failure) Message() string {
	switch f.Kind {
	case FailurePermissionDenied:
		return "Location permission was denied. Please allow location access and try again."
	case FailurePositionUnavailable:
		return "Your position could not be determined. Move to an open area and try again."
	case FailureTimeout:
		return "Locating you took too long. Please try again."
	case FailureUnsupported:
		return "This device does not support location services."
	default:
		return "Location is unavailable."
	}
}

// ParseFailure maps a client-reported failure code to a typed Failure.
// Unknown codes collapse to position-unavailable.
func ParseFailure(code string) *Failure {
	switch FailureKind(code) {
	case FailurePermissionDenied, FailurePositionUnavailable, FailureTimeout, FailureUnsupported:
		return &Failure{Kind: FailureKind(code)}
	default:
		return &Failure{Kind: FailurePositionUnavailable}
	}
}

// Provider resolves the device position. Implementations live on the client
// side of the transport; the fixed provider below exists for tests.
type Provider interface {
	Current(ctx context.Context) (aggregate.Location, error)
}

// FixedProvider always returns the same location. Test helper.
type FixedProvider struct {
	Location aggregate.Location
	Err      error
}

func (p FixedProvider) Current(context.Context) (aggregate.Location, error) {
	if p.Err != nil {
		return aggregate.Location{}, p.Err
	}
	return p.Location, nil
}

// Validate rejects coordinates outside the WGS84 envelope. NaN and infinite
// values fail too; range comparisons alone would let NaN through.
func Validate(loc aggregate.Location) error {
	if !isFinite(loc.Latitude) || !isFinite(loc.Longitude) {
		return errors.New(errors.KindDomain, "geo.validate", "coordinates must be finite")
	}
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return errors.New(errors.KindDomain, "geo.validate", "coordinates out of range")
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
