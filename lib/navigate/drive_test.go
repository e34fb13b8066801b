package navigate

import (
	"context"
	"testing"
	"time"

	"courtfinder-backend/lib/slotextract"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type fakeNavigator struct {
	days        []Day
	cards       map[string][]slotextract.Card
	authErr     error
	openErr     error
	failDays    map[string]error
	maxDays     int
	selectCalls []string
}

func (f *fakeNavigator) Facility() string { return "Test Facility" }
func (f *fakeNavigator) HallName() string { return "Sports Hall" }
func (f *fakeNavigator) MaxDays() int     { return f.maxDays }

func (f *fakeNavigator) ExtractOptions() slotextract.Options {
	return slotextract.Options{Mode: slotextract.ModeBinary, SlotDuration: time.Hour}
}

func (f *fakeNavigator) Authenticate(ctx context.Context) error       { return f.authErr }
func (f *fakeNavigator) OpenBookingSurface(ctx context.Context) error { return f.openErr }

func (f *fakeNavigator) BookableDays(ctx context.Context) ([]Day, error) {
	return f.days, nil
}

func (f *fakeNavigator) SelectDay(ctx context.Context, day Day) error {
	f.selectCalls = append(f.selectCalls, day.Ref)
	return f.failDays[day.Ref]
}

func (f *fakeNavigator) RawSlots(ctx context.Context, day Day) ([]slotextract.Card, error) {
	return f.cards[day.Ref], nil
}

func testDays(n int) []Day {
	days := make([]Day, n)
	base := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	for i := range days {
		d := base.AddDate(0, 0, i)
		days[i] = Day{Date: d, Label: d.Format("Mon"), Ref: d.Format("2006-01-02")}
	}
	return days
}

func TestDriveCollectsAllDays(t *testing.T) {
	nav := &fakeNavigator{
		days:    testDays(2),
		maxDays: 14,
		cards: map[string][]slotextract.Card{
			"2026-02-04": {
				{Text: "18:00", Attr: map[string]string{"class": "itemavailable"}},
			},
			"2026-02-05": {
				{Text: "19:00", Attr: map[string]string{"class": "itemnotavailable"}},
			},
		},
	}

	slots, results, err := Drive(context.Background(), nav)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	require.Len(t, results, 2)
	require.Equal(t, "2026-02-04", slots[0].Date)
	require.True(t, slots[0].Available)
	require.Equal(t, "2026-02-05", slots[1].Date)
	require.False(t, slots[1].Available)
}

func TestDriveAuthFailureIsFatal(t *testing.T) {
	nav := &fakeNavigator{
		days:    testDays(2),
		maxDays: 14,
		authErr: errors.New("bad credentials"),
	}

	slots, results, err := Drive(context.Background(), nav)
	require.Error(t, err)
	require.Nil(t, slots)
	require.Nil(t, results)
	require.Empty(t, nav.selectCalls)
}

func TestDriveSkipsFailedDay(t *testing.T) {
	nav := &fakeNavigator{
		days:    testDays(3),
		maxDays: 14,
		failDays: map[string]error{
			"2026-02-05": errors.New("tab went stale"),
		},
		cards: map[string][]slotextract.Card{
			"2026-02-04": {{Text: "18:00", Attr: map[string]string{"class": "itemavailable"}}},
			"2026-02-06": {{Text: "18:00", Attr: map[string]string{"class": "itemavailable"}}},
		},
	}

	slots, results, err := Drive(context.Background(), nav)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	require.NoError(t, results[2].Err)
}

func TestDriveCapsDaysAtMax(t *testing.T) {
	nav := &fakeNavigator{days: testDays(10), maxDays: 5}

	_, results, err := Drive(context.Background(), nav)
	require.NoError(t, err)
	require.Len(t, results, 5)
	require.Len(t, nav.selectCalls, 5)
}
