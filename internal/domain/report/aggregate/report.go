package aggregate

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"cleancity-server-go/internal/domain/image"
	"cleancity-server-go/internal/platform/errors"
)

// IDPrefix is carried by every report tracking ID.
const IDPrefix = "GR-"

// MinTrackingIDLength is the shortest input accepted by NormalizeID. Shorter
// strings cannot possibly hold a prefix plus a meaningful suffix.
const MinTrackingIDLength = 5

// PlaceholderDetails substitutes for an empty free-text description.
const PlaceholderDetails = "No additional details provided"

// Location is a captured GPS fix.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MapLink renders the location as a shareable map URL.
func (l Location) MapLink() string {
	return fmt.Sprintf("https://www.google.com/maps?q=%v,%v", l.Latitude, l.Longitude)
}

// Draft accumulates a report's fields while the citizen fills the form.
// Image and Location stay nil until captured.
type Draft struct {
	Image    *image.CompressedPayload
	Details  string
	Location *Location
}

// Validate checks that the draft holds everything a submission requires.
// The image is checked before the location so the caller surfaces the
// photo problem first when both are missing.
func (d *Draft) Validate() error {
	if d.Image == nil {
		return ErrMissingImage
	}
	if d.Location == nil {
		return ErrMissingLocation
	}
	return nil
}

// NormalizedDetails returns the free-text description with surrounding
// whitespace removed, or the placeholder when nothing was entered.
func (d *Draft) NormalizedDetails() string {
	details := strings.TrimSpace(d.Details)
	if details == "" {
		return PlaceholderDetails
	}
	return details
}

// Record is a submitted report as kept in the ledger.
type Record struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"created_at"`
	Location   Location          `json:"location"`
	Details    string            `json:"details"`
	Verified   bool              `json:"verified"`
	VerifiedAt *time.Time        `json:"verified_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Domain sentinels. Transports map these to user-facing responses.
var (
	ErrMissingImage          = errors.New(errors.KindDomain, "report.validate", "a photo is required before submitting")
	ErrMissingLocation       = errors.New(errors.KindDomain, "report.validate", "a location is required before submitting")
	ErrInvalidTrackingFormat = errors.New(errors.KindDomain, "report.track", "tracking ID format is invalid")
	ErrReportNotFound        = errors.New(errors.KindDomain, "report.track", "no report found for this tracking ID")
	ErrDeliveryUnavailable   = errors.New(errors.KindDelivery, "report.submit", "delivery channel is unreachable")
	ErrDeliveryRejected      = errors.New(errors.KindDelivery, "report.submit", "delivery channel rejected the report")
)

// MintID derives a fresh tracking ID from the supplied instant: the prefix
// followed by the last eight digits of the millisecond epoch. Collisions
// within the same millisecond window are accepted; the ledger's upsert
// semantics make the later write win.
func MintID(now time.Time) string {
	millis := fmt.Sprintf("%d", now.UnixMilli())
	if len(millis) > 8 {
		millis = millis[len(millis)-8:]
	}
	return IDPrefix + millis
}

// NormalizeID canonicalizes user-entered tracking IDs: trims whitespace and
// upper-cases, so "gr-12345678 " matches a stored "GR-12345678". It rejects
// inputs that are too short or carry characters that can never appear in a
// minted ID.
func NormalizeID(raw string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if len(id) < MinTrackingIDLength {
		return "", ErrInvalidTrackingFormat
	}
	for _, r := range id {
		if !unicode.IsDigit(r) && !unicode.IsUpper(r) && r != '-' {
			return "", ErrInvalidTrackingFormat
		}
	}
	return id, nil
}
