package courts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"courtfinder-backend/lib/navigate"
	"courtfinder-backend/lib/slotextract"
	"courtfinder-backend/lib/testutil"
	"courtfinder-backend/services/courts/db"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type stubNavigator struct {
	facility string
	slots    []slotextract.Slot
	fail     error
}

func (s *stubNavigator) Facility() string { return s.facility }
func (s *stubNavigator) HallName() string { return "Sports Hall" }
func (s *stubNavigator) MaxDays() int     { return 14 }

func (s *stubNavigator) ExtractOptions() slotextract.Options {
	return slotextract.Options{Mode: slotextract.ModeBinary, SlotDuration: time.Hour}
}

func (s *stubNavigator) Authenticate(ctx context.Context) error { return s.fail }

func (s *stubNavigator) OpenBookingSurface(ctx context.Context) error { return nil }

func (s *stubNavigator) BookableDays(ctx context.Context) ([]navigate.Day, error) {
	return []navigate.Day{{
		Date:  time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC),
		Label: "Wed",
		Ref:   "0",
	}}, nil
}

func (s *stubNavigator) SelectDay(ctx context.Context, day navigate.Day) error { return nil }

func (s *stubNavigator) RawSlots(ctx context.Context, day navigate.Day) ([]slotextract.Card, error) {
	cards := make([]slotextract.Card, len(s.slots))
	for i, slot := range s.slots {
		cards[i] = slotextract.Card{
			Text: fmt.Sprintf("%s - %s Book now", slot.StartTime, slot.EndTime),
			Attr: map[string]string{"class": "itemavailable"},
		}
	}
	return cards, nil
}

type fixture struct {
	service *Service
	store   *db.Store
	nav     *stubNavigator
	clock   time.Time
	slept   []time.Duration
}

const testFacility = "Hill Roads Sport and Tennis Centre"

func setupFixture(t *testing.T, limits Limits) (*fixture, context.Context) {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/courts",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)

	f := &fixture{
		store: db.NewStore(result.DB),
		nav:   &stubNavigator{facility: testFacility},
		clock: time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC),
	}
	f.nav.slots = []slotextract.Slot{
		{StartTime: "18:00", EndTime: "19:00"},
		{StartTime: "19:00", EndTime: "20:00"},
	}

	f.service = NewService(f.store, map[string]NavigatorFactory{
		testFacility: func() (navigate.Navigator, error) {
			return f.nav, nil
		},
	}, limits)
	f.service.now = func() time.Time { return f.clock }
	f.service.sleep = func(ctx context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)
	return f, ctx
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func TestShouldScrapeUnknownFacility(t *testing.T) {
	f, ctx := setupFixture(t, DefaultLimits())

	// a facility nobody has scraped yet has no cache to be fresh, so
	// the gate waves it through
	ok, reason, err := f.service.ShouldScrape(ctx, "nowhere")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Facility not found", reason)
}

func TestScrapeLifecycle(t *testing.T) {
	f, ctx := setupFixture(t, DefaultLimits())

	{
		// first scrape goes through and lands both slots
		result, err := f.service.ScrapeFacility(ctx, testFacility)
		require.NoError(t, err)
		require.True(t, result.Scraped)
		require.False(t, result.Cached)
		require.Equal(t, "Facility not found", result.Reason)
		require.Equal(t, 2, result.SlotCount)
		require.Len(t, result.Data, 2)
	}
	{
		// immediately after, the cache is fresh and gets served instead
		f.advance(10 * time.Minute)
		result, err := f.service.ScrapeFacility(ctx, testFacility)
		require.NoError(t, err)
		require.False(t, result.Scraped)
		require.True(t, result.Cached)
		require.Equal(t, "Cache fresh: 600s old", result.Reason)
		require.Equal(t, 2, result.SlotCount)
		require.Len(t, result.Data, 2)
	}
	{
		fac, err := f.store.GetFacility(ctx, testFacility)
		require.NoError(t, err)
		require.Equal(t, 1, fac.ScrapeCountToday)
		require.Equal(t, 0, fac.ConsecutiveErrors)
		require.True(t, fac.LastScrapedAt.Valid)
	}
}

func TestDailyBudget(t *testing.T) {
	f, ctx := setupFixture(t, DefaultLimits())

	for i := 0; i < 3; i++ {
		result, err := f.service.ScrapeFacility(ctx, testFacility)
		require.NoError(t, err)
		require.True(t, result.Scraped)
		f.advance(2 * time.Hour)
	}

	result, err := f.service.ScrapeFacility(ctx, testFacility)
	require.NoError(t, err)
	require.False(t, result.Scraped)
	require.Equal(t, "Daily limit reached: 3/3", result.Reason)
}

func TestDailyBudgetResetsAtMidnight(t *testing.T) {
	f, ctx := setupFixture(t, DefaultLimits())

	// last scrape of the day lands just before midnight
	f.advance(11*time.Hour + 30*time.Minute)
	_, err := f.service.ScrapeFacility(ctx, testFacility)
	require.NoError(t, err)

	// cross midnight while the cache is still fresh; the counter resets
	// and crucially the reset is persisted despite the denial
	f.advance(40 * time.Minute)
	ok, reason, err := f.service.ShouldScrape(ctx, testFacility)
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, reason, "Cache fresh")

	fac, err := f.store.GetFacility(ctx, testFacility)
	require.NoError(t, err)
	require.Equal(t, 0, fac.ScrapeCountToday)
	require.Equal(t, "2026-02-05", fac.LastScrapeDate.String)
}

func TestHourlyBudget(t *testing.T) {
	limits := DefaultLimits()
	limits.MinCacheAge = 10 * time.Minute
	f, ctx := setupFixture(t, limits)

	_, err := f.service.ScrapeFacility(ctx, testFacility)
	require.NoError(t, err)

	// old enough for the cache check, too soon for the hourly budget
	f.advance(30 * time.Minute)
	ok, reason, err := f.service.ShouldScrape(ctx, testFacility)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "Hourly limit reached", reason)
}

func TestHourlyBudgetCountsScrapesToday(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxScrapesPerHour = 2
	limits.MinCacheAge = 10 * time.Minute
	f, ctx := setupFixture(t, limits)

	_, err := f.service.ScrapeFacility(ctx, testFacility)
	require.NoError(t, err)

	// one scrape today does not exhaust an hourly budget of two
	f.advance(20 * time.Minute)
	result, err := f.service.ScrapeFacility(ctx, testFacility)
	require.NoError(t, err)
	require.True(t, result.Scraped)

	// two do, for as long as the last one is under an hour old
	f.advance(40 * time.Minute)
	ok, reason, err := f.service.ShouldScrape(ctx, testFacility)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "Hourly limit reached", reason)

	f.advance(25 * time.Minute)
	ok, reason, err = f.service.ShouldScrape(ctx, testFacility)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Cache stale or missing", reason)
}

func TestCircuitBreaker(t *testing.T) {
	f, ctx := setupFixture(t, DefaultLimits())

	f.nav.fail = errors.New("site fell over")
	for i := 0; i < 3; i++ {
		_, err := f.service.ScrapeFacility(ctx, testFacility)
		require.Error(t, err)
		f.advance(2 * time.Hour)
	}

	// the breaker is now open and it does not heal with time, it waits
	// for an operator
	f.nav.fail = nil
	f.advance(48 * time.Hour)
	ok, reason, err := f.service.ShouldScrape(ctx, testFacility)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "Circuit breaker: 3 consecutive errors", reason)

	stats, err := f.service.FacilityStats(ctx, testFacility)
	require.NoError(t, err)
	require.True(t, stats.CircuitBreakerActive)
}

func TestScrapeFailureKeepsCache(t *testing.T) {
	f, ctx := setupFixture(t, DefaultLimits())

	_, err := f.service.ScrapeFacility(ctx, testFacility)
	require.NoError(t, err)

	f.advance(2 * time.Hour)
	f.nav.fail = errors.New("login broke")
	result, err := f.service.ScrapeFacility(ctx, testFacility)
	require.Error(t, err)

	// the failure result still carries the stale cache
	require.True(t, result.Cached)
	require.Equal(t, 2, result.SlotCount)
	require.Len(t, result.Data, 2)

	fac, err := f.store.GetFacility(ctx, testFacility)
	require.NoError(t, err)
	require.Equal(t, 1, fac.ConsecutiveErrors)

	// the previous scrape's slots are still being served
	availability, err := f.service.GetAvailability(ctx, testFacility, AvailabilityQuery{})
	require.NoError(t, err)
	require.Len(t, availability.Slots, 2)
}

func TestSuccessResetsBreaker(t *testing.T) {
	f, ctx := setupFixture(t, DefaultLimits())

	f.nav.fail = errors.New("flaky")
	_, err := f.service.ScrapeFacility(ctx, testFacility)
	require.Error(t, err)

	f.nav.fail = nil
	result, err := f.service.ScrapeFacility(ctx, testFacility)
	require.NoError(t, err)
	require.True(t, result.Scraped)

	fac, err := f.store.GetFacility(ctx, testFacility)
	require.NoError(t, err)
	require.Equal(t, 0, fac.ConsecutiveErrors)
}

func TestScrapeUnregisteredFacility(t *testing.T) {
	f, ctx := setupFixture(t, DefaultLimits())

	_, err := f.service.ScrapeFacility(ctx, "Moon Base Sports Hall")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no scraper registered")
}

func TestGetAvailabilityFilters(t *testing.T) {
	f, ctx := setupFixture(t, DefaultLimits())

	f.nav.slots = []slotextract.Slot{
		{StartTime: "14:30", EndTime: "15:00"},
		{StartTime: "15:00", EndTime: "15:30"},
		{StartTime: "17:30", EndTime: "18:00"},
		{StartTime: "19:00", EndTime: "19:30"},
	}
	_, err := f.service.ScrapeFacility(ctx, testFacility)
	require.NoError(t, err)

	availability, err := f.service.GetAvailability(ctx, testFacility, AvailabilityQuery{
		Date:      "2026-02-04",
		StartTime: "15:00",
		EndTime:   "18:00",
	})
	require.NoError(t, err)
	require.Len(t, availability.Slots, 2)
	require.Equal(t, "15:00", availability.Slots[0].StartTime)
	require.Equal(t, "17:30", availability.Slots[1].StartTime)
}

func TestFacilityNamesUnion(t *testing.T) {
	f, ctx := setupFixture(t, DefaultLimits())

	_, err := f.store.UpsertFacility(ctx, "An Old Facility")
	require.NoError(t, err)

	names, err := f.service.FacilityNames(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"An Old Facility", testFacility}, names)
}

func TestFacilityStats(t *testing.T) {
	f, ctx := setupFixture(t, DefaultLimits())

	_, err := f.service.FacilityStats(ctx, "nowhere")
	require.Error(t, err)

	_, err = f.service.ScrapeFacility(ctx, testFacility)
	require.NoError(t, err)

	stats, err := f.service.FacilityStats(ctx, testFacility)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ScrapeCountToday)
	require.Equal(t, 2, stats.CachedSlots)
	require.False(t, stats.CircuitBreakerActive)
	require.NotNil(t, stats.LastScrapedAt)
}

func TestScrapeAll(t *testing.T) {
	limits := DefaultLimits()
	limits.Exclude = []string{"Linton Village College"}
	f, ctx := setupFixture(t, limits)

	second := &stubNavigator{
		facility: "One Leisure St Ives",
		slots:    []slotextract.Slot{{StartTime: "10:00", EndTime: "11:00"}},
	}
	broken := &stubNavigator{
		facility: "Trumpington Sport",
		fail:     errors.New("cloudflare tantrum"),
	}
	f.service.adapters["One Leisure St Ives"] = func() (navigate.Navigator, error) {
		return second, nil
	}
	f.service.adapters["Trumpington Sport"] = func() (navigate.Navigator, error) {
		return broken, nil
	}
	f.service.adapters["Linton Village College"] = func() (navigate.Navigator, error) {
		t.Fatal("excluded facility must not be scraped")
		return nil, nil
	}

	report, err := f.service.ScrapeAll(ctx, nil)
	require.NoError(t, err)

	require.NotEmpty(t, report.RunID)
	require.Equal(t, []string{"Linton Village College"}, report.Skipped)
	require.Len(t, report.Results, 2)
	require.Contains(t, report.Failures, "Trumpington Sport")

	// one pause per facility attempted after the first
	require.Len(t, f.slept, 2)
	require.Equal(t, limits.InterFacilityDelay, f.slept[0])
}
