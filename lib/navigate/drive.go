package navigate

import (
	"context"
	"log/slog"

	"courtfinder-backend/lib/slotextract"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/navigate")

// DayResult is the outcome of scraping a single day. A failed day carries
// its error here instead of aborting the run; losing one day's slots is
// better than losing the scrape.
type DayResult struct {
	Day   Day
	Slots []slotextract.Slot
	Err   error
}

// Drive runs one full scrape through a navigator: authenticate, open the
// booking surface, then per day select + read + extract. Failures before
// the day loop are fatal and returned as the error; failures inside the
// loop are recorded on that day's DayResult and the loop moves on.
//
// The returned slot slice is the union of all successful days, in the
// order the surface presented them.
func Drive(ctx context.Context, nav Navigator) ([]slotextract.Slot, []DayResult, error) {
	ctx, span := tracer.Start(ctx, "Drive")
	defer span.End()
	span.SetAttributes(attribute.String("facility", nav.Facility()))

	err := nav.Authenticate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		return nil, nil, err
	}

	err = nav.OpenBookingSurface(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reach booking surface")
		return nil, nil, err
	}

	days, err := nav.BookableDays(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list bookable days")
		return nil, nil, err
	}
	if len(days) > nav.MaxDays() {
		days = days[:nav.MaxDays()]
	}

	opts := nav.ExtractOptions()

	var all []slotextract.Slot
	results := make([]DayResult, 0, len(days))
	for _, day := range days {
		slots, err := scrapeDay(ctx, nav, day, opts)
		if err != nil {
			slog.WarnContext(ctx, "day scrape failed, skipping",
				"facility", nav.Facility(),
				"day", day.Label,
				"err", err,
			)
			results = append(results, DayResult{Day: day, Err: err})
			continue
		}
		results = append(results, DayResult{Day: day, Slots: slots})
		all = append(all, slots...)
	}

	span.SetAttributes(attribute.Int("slots", len(all)))
	return all, results, nil
}

func scrapeDay(ctx context.Context, nav Navigator, day Day, opts slotextract.Options) ([]slotextract.Slot, error) {
	ctx, span := tracer.Start(ctx, "scrapeDay")
	defer span.End()
	span.SetAttributes(attribute.String("day", day.Label))

	err := nav.SelectDay(ctx, day)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select day")
		return nil, err
	}
	cards, err := nav.RawSlots(ctx, day)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read raw slots")
		return nil, err
	}
	return slotextract.Extract(day.Date, cards, opts), nil
}
