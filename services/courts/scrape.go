package courts

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"
	"time"

	"courtfinder-backend/lib/navigate"
	"courtfinder-backend/services/courts/db"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ScrapeResult is what one scrape attempt produced. Callers always get
// data: fresh after a scrape, the existing cache after a denial or a
// failure, with Cached saying which.
type ScrapeResult struct {
	Facility  string `json:"facility"`
	Scraped   bool   `json:"scraped"`
	Cached    bool   `json:"cached"`
	Reason    string `json:"reason"`
	SlotCount int    `json:"slot_count"`
	// days the navigator reached but could not read; informational
	FailedDays []string `json:"failed_days,omitempty"`
	// the available slots on offer, rendered by the transport layer;
	// omitted from scrape-all reports to keep them readable
	Data []db.Slot `json:"-"`
}

// cachedData is the slot set a result serves: available rows from the
// last two weeks of scrapes, same window GetAvailability uses.
func (s *Service) cachedData(ctx context.Context, facilityID int64) ([]db.Slot, error) {
	return s.store.QuerySlots(ctx, db.SlotQuery{
		FacilityID:    facilityID,
		FromDate:      s.now().AddDate(0, 0, -14).Format(time.DateOnly),
		AvailableOnly: true,
	})
}

// ScrapeFacility runs the full gate-check-then-scrape flow for one
// facility. Denials are not errors: the result just says the cache was
// served. Scrape failures bump the consecutive error counter and leave
// the previous cache untouched.
func (s *Service) ScrapeFacility(ctx context.Context, name string) (ScrapeResult, error) {
	ctx, span := tracer.Start(ctx, "ScrapeFacility")
	defer span.End()
	span.SetAttributes(attribute.String("facility", name))

	unlock := s.lockFacility(name)
	defer unlock()

	factory, registered := s.adapters[name]
	if !registered {
		err := errors.Newf("no scraper registered for facility %q", name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ScrapeResult{}, err
	}

	var ok bool
	var reason string
	fac, err := s.store.GetFacility(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		ok, reason = true, "Facility not found"
		fac, err = s.store.UpsertFacility(ctx, name)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ScrapeResult{}, err
	}
	if reason == "" {
		ok, reason, err = s.shouldScrape(ctx, &fac)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return ScrapeResult{}, err
		}
	}
	if !ok {
		data, err := s.cachedData(ctx, fac.ID)
		if err != nil {
			return ScrapeResult{}, err
		}
		slog.InfoContext(ctx, "scrape denied, serving cache",
			"facility", name, "reason", reason)
		return ScrapeResult{
			Facility:  name,
			Cached:    true,
			Reason:    reason,
			SlotCount: len(data),
			Data:      data,
		}, nil
	}

	nav, err := factory()
	if err != nil {
		return s.failureResult(ctx, fac, err)
	}

	slog.InfoContext(ctx, "scraping facility", "facility", name, "reason", reason)
	slots, dayResults, err := navigate.Drive(ctx, nav)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape failed")
		return s.failureResult(ctx, fac, err)
	}

	now := s.now()
	err = s.store.ReplaceSlots(ctx, fac.ID, slots, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return s.failureResult(ctx, fac, err)
	}

	fac.LastScrapedAt = sql.NullInt64{Int64: now.Unix(), Valid: true}
	fac.LastScrapeDate = sql.NullString{String: now.Format(time.DateOnly), Valid: true}
	fac.ScrapeCountToday++
	fac.ConsecutiveErrors = 0
	err = s.store.UpdateFacilityMeta(ctx, fac)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ScrapeResult{}, err
	}

	data, err := s.cachedData(ctx, fac.ID)
	if err != nil {
		return ScrapeResult{}, err
	}
	result := ScrapeResult{
		Facility:  name,
		Scraped:   true,
		Reason:    reason,
		SlotCount: len(slots),
		Data:      data,
	}
	for _, day := range dayResults {
		if day.Err != nil {
			result.FailedDays = append(result.FailedDays, day.Day.Label)
		}
	}
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return result, nil
}

// failureResult records the failure and pairs the error with a result
// carrying the stale cache still on offer, so callers can keep serving
// it while the scrape stays broken.
func (s *Service) failureResult(ctx context.Context, fac db.Facility, cause error) (ScrapeResult, error) {
	err := s.recordFailure(ctx, fac, cause)
	data, dataErr := s.cachedData(ctx, fac.ID)
	if dataErr != nil {
		data = nil
	}
	return ScrapeResult{
		Facility:  fac.Name,
		Cached:    true,
		Reason:    cause.Error(),
		SlotCount: len(data),
		Data:      data,
	}, err
}

// recordFailure bumps the facility's consecutive error counter and hands
// the original cause back. The cached slots are left as they were.
func (s *Service) recordFailure(ctx context.Context, fac db.Facility, cause error) error {
	fac.ConsecutiveErrors++
	slog.ErrorContext(ctx, "scrape failed",
		"facility", fac.Name,
		"consecutive_errors", fac.ConsecutiveErrors,
		"err", cause,
	)
	err := s.store.UpdateFacilityMeta(ctx, fac)
	if err != nil {
		return errors.CombineErrors(cause, err)
	}
	return cause
}

// ScrapePlan splits the registered facilities into the ones a scrape-all
// run would attempt and the ones the exclusion lists drop, both sorted.
func (s *Service) ScrapePlan(extraExclude []string) (toRun, excluded []string) {
	skip := map[string]bool{}
	for _, name := range s.limits.Exclude {
		skip[name] = true
	}
	for _, name := range extraExclude {
		skip[name] = true
	}

	for name := range s.adapters {
		if skip[name] {
			excluded = append(excluded, name)
		} else {
			toRun = append(toRun, name)
		}
	}
	sort.Strings(toRun)
	sort.Strings(excluded)
	return toRun, excluded
}

// ScrapeAllReport summarizes one scrape-all run.
type ScrapeAllReport struct {
	RunID    string            `json:"run_id"`
	Results  []ScrapeResult    `json:"results"`
	Skipped  []string          `json:"skipped"`
	Failures map[string]string `json:"failures,omitempty"`
}

// ScrapeAll walks every registered facility in name order, skipping the
// excluded ones, pausing between facilities so the sites never see a
// burst. One facility failing does not stop the run.
func (s *Service) ScrapeAll(ctx context.Context, extraExclude []string) (ScrapeAllReport, error) {
	ctx, span := tracer.Start(ctx, "ScrapeAll")
	defer span.End()

	report := ScrapeAllReport{
		RunID:    uuid.NewString(),
		Failures: map[string]string{},
	}
	span.SetAttributes(attribute.String("run_id", report.RunID))

	names, skipped := s.ScrapePlan(extraExclude)
	report.Skipped = skipped

	first := true
	for _, name := range names {
		if !first {
			err := s.sleep(ctx, s.limits.InterFacilityDelay)
			if err != nil {
				return report, err
			}
		}
		first = false

		result, err := s.ScrapeFacility(ctx, name)
		if err != nil {
			report.Failures[name] = err.Error()
			continue
		}
		report.Results = append(report.Results, result)
	}

	slog.InfoContext(ctx, "scrape-all finished",
		"run_id", report.RunID,
		"scraped", len(report.Results),
		"skipped", len(report.Skipped),
		"failed", len(report.Failures),
	)
	return report, nil
}
