package gladstone

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestCollectSlotCards(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<div class="results">
			<div class="activity-card">
				<h4>Court 1</h4>
				<p>18:00 - 19:00</p>
				<button>Book now</button>
			</div>
			<div class="activity-card">
				<h4>Court 2</h4>
				<p>18:00 - 19:00</p>
				<span>Unavailable</span>
			</div>
			<div class="activity-card">
				<h4>Sports Hall Info</h4>
				<p>Open all day</p>
			</div>
		</div>
	`))
	require.NoError(t, err)

	cards := CollectSlotCards(doc)
	require.Len(t, cards, 2)
	require.Contains(t, cards[0].Text, "Court 1")
	require.Contains(t, cards[0].Text, "Book now")
	require.Contains(t, cards[1].Text, "Court 2")
	require.Contains(t, cards[1].Text, "Unavailable")
}

func TestBookableDays(t *testing.T) {
	nav, err := NewNavigator(Config{
		FacilityName: "One Leisure St Ives",
		BaseUrl:      "https://example.test",
		BookPath:     "/book",
		Activity:     "Badminton",
		MaxDays:      7,
	})
	require.NoError(t, err)

	days, err := nav.BookableDays(context.Background())
	require.NoError(t, err)
	require.Len(t, days, 7)

	for i, day := range days {
		require.Equal(t, day.Date.Format("2006-01-02"), day.Ref)
		require.Equal(t, days[0].Date.AddDate(0, 0, i), day.Date)
	}
}

func TestBookURL(t *testing.T) {
	nav, err := NewNavigator(Config{
		BaseUrl:  "https://example.test",
		BookPath: "/book",
		Activity: "Badminton",
		MaxDays:  7,
	})
	require.NoError(t, err)

	require.Equal(t, "/book?activity=Badminton", nav.bookURL(""))
	require.Equal(t, "/book?activity=Badminton&date=2026-02-04", nav.bookURL("2026-02-04"))
}
