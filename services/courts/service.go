// Package courts decides when each facility may be scraped, runs the site
// navigators, and serves the canonical availability the scrapes produce.
package courts

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"courtfinder-backend/lib/navigate"
	"courtfinder-backend/lib/timezone"
	"courtfinder-backend/services/courts/db"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("services/courts")

// Limits are the scrape budgets. The defaults are deliberately shy: these
// are small community booking sites and a stale timetable is cheaper than
// getting the scraper blocked.
type Limits struct {
	MaxScrapesPerDay     int
	MaxScrapesPerHour    int
	MinCacheAge          time.Duration
	MaxConsecutiveErrors int
	// pause between facilities during a scrape-all run
	InterFacilityDelay time.Duration
	// facilities scrape-all skips unless asked for explicitly
	Exclude []string
}

func DefaultLimits() Limits {
	return Limits{
		MaxScrapesPerDay:     3,
		MaxScrapesPerHour:    1,
		MinCacheAge:          time.Hour,
		MaxConsecutiveErrors: 3,
		InterFacilityDelay:   120 * time.Second,
		Exclude:              []string{"Linton Village College"},
	}
}

// NavigatorFactory builds a fresh navigator for one scrape. Sessions hold
// cookies and a current page, so they are never reused across scrapes.
type NavigatorFactory func() (navigate.Navigator, error)

type Service struct {
	store     *db.Store
	adapters  map[string]NavigatorFactory
	limits    Limits
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	mu        sync.Mutex
	perName   map[string]*sync.Mutex
}

func NewService(store *db.Store, adapters map[string]NavigatorFactory, limits Limits) *Service {
	return &Service{
		store:    store,
		adapters: adapters,
		limits:   limits,
		now:      timezone.Now,
		sleep:    sleepCtx,
		perName:  map[string]*sync.Mutex{},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) lockFacility(name string) func() {
	s.mu.Lock()
	m, ok := s.perName[name]
	if !ok {
		m = &sync.Mutex{}
		s.perName[name] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// ShouldScrape applies the gate checks in order: circuit breaker, cache
// freshness, daily budget, hourly budget. The day rollover reset of the
// daily counter is persisted even when a later check denies the scrape.
func (s *Service) ShouldScrape(ctx context.Context, name string) (bool, string, error) {
	fac, err := s.store.GetFacility(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		// nothing to be stale; first contact always goes through
		return true, "Facility not found", nil
	}
	if err != nil {
		return false, "", err
	}
	return s.shouldScrape(ctx, &fac)
}

func (s *Service) shouldScrape(ctx context.Context, fac *db.Facility) (bool, string, error) {
	if fac.ConsecutiveErrors >= s.limits.MaxConsecutiveErrors {
		return false, fmt.Sprintf("Circuit breaker: %d consecutive errors", fac.ConsecutiveErrors), nil
	}

	now := s.now()
	today := now.Format(time.DateOnly)
	if !fac.LastScrapeDate.Valid || fac.LastScrapeDate.String != today {
		fac.ScrapeCountToday = 0
		fac.LastScrapeDate = sql.NullString{String: today, Valid: true}
		err := s.store.UpdateFacilityMeta(ctx, *fac)
		if err != nil {
			return false, "", err
		}
	}

	var age time.Duration
	if fac.LastScrapedAt.Valid {
		age = now.Sub(time.Unix(fac.LastScrapedAt.Int64, 0))
		if age < s.limits.MinCacheAge {
			return false, fmt.Sprintf("Cache fresh: %.0fs old", age.Seconds()), nil
		}
	}

	if fac.ScrapeCountToday >= s.limits.MaxScrapesPerDay {
		return false, fmt.Sprintf("Daily limit reached: %d/%d",
			fac.ScrapeCountToday, s.limits.MaxScrapesPerDay), nil
	}

	if fac.LastScrapedAt.Valid && age < time.Hour &&
		fac.ScrapeCountToday >= s.limits.MaxScrapesPerHour {
		return false, "Hourly limit reached", nil
	}

	return true, "Cache stale or missing", nil
}

// FacilityNames is the union of the registered scrapers and whatever the
// store already holds, sorted.
func (s *Service) FacilityNames(ctx context.Context) ([]string, error) {
	set := map[string]bool{}
	for name := range s.adapters {
		set[name] = true
	}
	stored, err := s.store.ListFacilities(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range stored {
		set[f.Name] = true
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// FacilityStats is everything the gate checks look at, surfaced for
// operators. Returns sql.ErrNoRows for unknown facilities.
type FacilityStats struct {
	Name              string `json:"name"`
	LastScrapedAt     *int64 `json:"last_scraped_at"`
	ScrapeCountToday  int    `json:"scrape_count_today"`
	LastScrapeDate    string `json:"last_scrape_date"`
	ConsecutiveErrors int    `json:"consecutive_errors"`
	// available rows inside the served cache window
	CachedSlots          int  `json:"cached_slots"`
	CircuitBreakerActive bool `json:"circuit_breaker_active"`
}

func (s *Service) FacilityStats(ctx context.Context, name string) (FacilityStats, error) {
	ctx, span := tracer.Start(ctx, "FacilityStats")
	defer span.End()

	fac, err := s.store.GetFacility(ctx, name)
	if err != nil {
		return FacilityStats{}, err
	}
	cached, err := s.cachedData(ctx, fac.ID)
	if err != nil {
		return FacilityStats{}, err
	}

	stats := FacilityStats{
		Name:                 fac.Name,
		ScrapeCountToday:     fac.ScrapeCountToday,
		LastScrapeDate:       fac.LastScrapeDate.String,
		ConsecutiveErrors:    fac.ConsecutiveErrors,
		CachedSlots:          len(cached),
		CircuitBreakerActive: fac.ConsecutiveErrors >= s.limits.MaxConsecutiveErrors,
	}
	if fac.LastScrapedAt.Valid {
		at := fac.LastScrapedAt.Int64
		stats.LastScrapedAt = &at
	}
	return stats, nil
}

// FacilitiesLastUpdated maps every known facility to its last successful
// scrape time (unix seconds), nil for never-scraped.
func (s *Service) FacilitiesLastUpdated(ctx context.Context) (map[string]*int64, error) {
	names, err := s.FacilityNames(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*int64, len(names))
	for _, name := range names {
		out[name] = nil
		fac, err := s.store.GetFacility(ctx, name)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if fac.LastScrapedAt.Valid {
			at := fac.LastScrapedAt.Int64
			out[name] = &at
		}
	}
	return out, nil
}

// AvailabilityQuery narrows GetAvailability. All fields optional.
type AvailabilityQuery struct {
	// exact date, YYYY-MM-DD
	Date string
	// slots starting at or after, HH:MM
	StartTime string
	// slots ending at or before, HH:MM
	EndTime string
}

type Availability struct {
	Facility string
	Slots    []db.Slot
}

// GetAvailability serves cached available slots from the last two weeks of
// scrapes; it never triggers a scrape. Unavailable rows are stored for
// stats but not served here.
func (s *Service) GetAvailability(ctx context.Context, name string, q AvailabilityQuery) (Availability, error) {
	ctx, span := tracer.Start(ctx, "GetAvailability")
	defer span.End()

	fac, err := s.store.GetFacility(ctx, name)
	if err != nil {
		return Availability{}, err
	}

	slots, err := s.store.QuerySlots(ctx, db.SlotQuery{
		FacilityID:    fac.ID,
		FromDate:      s.now().AddDate(0, 0, -14).Format(time.DateOnly),
		Date:          q.Date,
		StartAfter:    q.StartTime,
		EndBefore:     q.EndTime,
		AvailableOnly: true,
	})
	if err != nil {
		return Availability{}, err
	}

	return Availability{Facility: fac.Name, Slots: slots}, nil
}
