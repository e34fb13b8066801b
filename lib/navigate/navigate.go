// Package navigate defines the contract every site navigator implements and
// the driver loop that walks one through a full scrape. The sites differ
// wildly in layout; this is the one shape they all get squeezed into:
// authenticate once, reach the booking surface once, then day by day read
// raw slot cards and hand them to the extractor.
package navigate

import (
	"context"
	"time"

	"courtfinder-backend/lib/slotextract"
)

// Day is one bookable day offered by a booking surface. Ref is whatever
// handle the site needs to select it again (a tab href, a query parameter,
// a column index) and is opaque outside the navigator that produced it.
type Day struct {
	Date  time.Time
	Label string
	Ref   string
}

// Navigator is the capability set a site adapter exposes. Implementations
// hold a live session (HTTP client, cookies, current page) scoped to a
// single scrape; they are not safe for reuse across scrapes.
type Navigator interface {
	// Facility is the canonical facility name rows are stored under.
	Facility() string
	// HallName is a display hint ("Sports Hall"), may be empty.
	HallName() string
	// MaxDays caps how many bookable days one scrape will walk.
	MaxDays() int
	// ExtractOptions configures the slot extractor for this site's
	// availability encoding.
	ExtractOptions() slotextract.Options

	// Authenticate logs the session in. A no-op for sites with public
	// timetables. Failure here is fatal for the whole scrape.
	Authenticate(ctx context.Context) error
	// OpenBookingSurface walks from the landing page to the timetable.
	// Failure here is fatal for the whole scrape.
	OpenBookingSurface(ctx context.Context) error
	// BookableDays enumerates the days the surface offers, in display
	// order. Finite and small (booking windows run 5 to 14 days).
	BookableDays(ctx context.Context) ([]Day, error)
	// SelectDay makes the given day the one whose slots RawSlots reads.
	SelectDay(ctx context.Context, day Day) error
	// RawSlots reads the raw slot cards for the currently selected day.
	RawSlots(ctx context.Context, day Day) ([]slotextract.Card, error)
}
