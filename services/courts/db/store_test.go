package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"courtfinder-backend/lib/slotextract"
	"courtfinder-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Store, context.Context) {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/courts/db",
		DbSchema: Schema,
	})
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)
	return NewStore(result.DB), ctx
}

func TestUpsertFacilityIdempotent(t *testing.T) {
	store, ctx := setup(t)

	first, err := store.UpsertFacility(ctx, "Linton Village College")
	require.NoError(t, err)
	require.Equal(t, 0, first.ScrapeCountToday)

	// a second upsert must not reset the counters
	first.ScrapeCountToday = 2
	first.ConsecutiveErrors = 1
	require.NoError(t, store.UpdateFacilityMeta(ctx, first))

	again, err := store.UpsertFacility(ctx, "Linton Village College")
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, 2, again.ScrapeCountToday)
	require.Equal(t, 1, again.ConsecutiveErrors)
}

func TestGetFacilityUnknown(t *testing.T) {
	store, ctx := setup(t)

	_, err := store.GetFacility(ctx, "nowhere")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func slotAt(date, start, end, court string, available bool) slotextract.Slot {
	return slotextract.Slot{
		Date:        date,
		DayName:     "Wednesday",
		StartTime:   start,
		EndTime:     end,
		CourtNumber: court,
		Available:   available,
	}
}

func TestReplaceSlots(t *testing.T) {
	store, ctx := setup(t)

	fac, err := store.UpsertFacility(ctx, "Hill Roads Sport and Tennis Centre")
	require.NoError(t, err)
	other, err := store.UpsertFacility(ctx, "Trumpington Sport")
	require.NoError(t, err)

	now := time.Now()
	err = store.ReplaceSlots(ctx, fac.ID, []slotextract.Slot{
		slotAt("2026-02-04", "18:00", "19:00", "Court 1", true),
		slotAt("2026-02-04", "19:00", "20:00", "Court 1", false),
	}, now)
	require.NoError(t, err)
	err = store.ReplaceSlots(ctx, other.ID, []slotextract.Slot{
		slotAt("2026-02-04", "10:00", "11:00", "Court 2", true),
	}, now)
	require.NoError(t, err)

	// replacing one facility leaves the other untouched
	err = store.ReplaceSlots(ctx, fac.ID, []slotextract.Slot{
		slotAt("2026-02-05", "09:00", "10:00", "", true),
	}, now)
	require.NoError(t, err)

	mine, err := store.QuerySlots(ctx, SlotQuery{FacilityID: fac.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "2026-02-05", mine[0].Date)
	require.False(t, mine[0].CourtNumber.Valid)

	theirs, err := store.QuerySlots(ctx, SlotQuery{FacilityID: other.ID})
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	require.Equal(t, "Court 2", theirs[0].CourtNumber.String)
}

func TestQuerySlotsFilters(t *testing.T) {
	store, ctx := setup(t)

	fac, err := store.UpsertFacility(ctx, "One Leisure St Ives")
	require.NoError(t, err)

	err = store.ReplaceSlots(ctx, fac.ID, []slotextract.Slot{
		slotAt("2026-02-05", "09:00", "10:00", "Court 1", true),
		slotAt("2026-02-04", "19:00", "20:00", "Court 1", true),
		slotAt("2026-02-04", "15:00", "16:00", "Court 2", true),
		slotAt("2026-02-04", "17:00", "18:00", "Court 1", false),
	}, time.Now())
	require.NoError(t, err)

	{
		// ordered by date then start time
		all, err := store.QuerySlots(ctx, SlotQuery{FacilityID: fac.ID})
		require.NoError(t, err)
		require.Len(t, all, 4)
		require.Equal(t, "15:00", all[0].StartTime)
		require.Equal(t, "17:00", all[1].StartTime)
		require.Equal(t, "19:00", all[2].StartTime)
		require.Equal(t, "2026-02-05", all[3].Date)
	}
	{
		available, err := store.QuerySlots(ctx, SlotQuery{
			FacilityID:    fac.ID,
			AvailableOnly: true,
		})
		require.NoError(t, err)
		require.Len(t, available, 3)
	}
	{
		windowed, err := store.QuerySlots(ctx, SlotQuery{
			FacilityID: fac.ID,
			Date:       "2026-02-04",
			StartAfter: "15:00",
			EndBefore:  "20:00",
		})
		require.NoError(t, err)
		require.Len(t, windowed, 3)
	}
	{
		evening, err := store.QuerySlots(ctx, SlotQuery{
			FacilityID:    fac.ID,
			Date:          "2026-02-04",
			StartAfter:    "17:30",
			AvailableOnly: true,
		})
		require.NoError(t, err)
		require.Len(t, evening, 1)
		require.Equal(t, "19:00", evening[0].StartTime)
	}
}
