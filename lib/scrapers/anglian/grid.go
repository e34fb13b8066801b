package anglian

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"courtfinder-backend/lib/htmlutil"
	"courtfinder-backend/lib/navigate"
	"courtfinder-backend/lib/slotextract"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
)

// Grid is the parsed #slotsGrid table: one entry in Days per column, and
// the matching cards (one per non-empty cell) in Columns.
type Grid struct {
	Days    []navigate.Day
	Columns [][]slotextract.Card
}

// day headers look like "Wed 04 Feb", no year anywhere on the page
var dayHeaderRe = regexp.MustCompile(`^([A-Za-z]{3})\w*\s+(\d{1,2})\s+([A-Za-z]{3})`)

var timeRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})`)

// ParseGrid reads the whole availability table. The first column of every
// row is the start time, remaining columns line up with the day headers.
func ParseGrid(doc *goquery.Document, now time.Time) (*Grid, error) {
	table := doc.Find("#slotsGrid").First()
	if table.Length() == 0 {
		return nil, errors.New("slots grid not found")
	}

	var days []navigate.Day
	table.Find("th.mastertableheader .availabilityday").Each(func(i int, sel *goquery.Selection) {
		label := htmlutil.CompactText(sel)
		date, dayName, ok := parseDayHeader(label, now)
		if !ok {
			return
		}
		days = append(days, navigate.Day{
			Date:  date,
			Label: dayName,
			Ref:   fmt.Sprintf("%d", len(days)),
		})
	})
	if len(days) == 0 {
		return nil, errors.New("slots grid has no day columns")
	}

	columns := make([][]slotextract.Card, len(days))
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		timeCell := row.Find("td.masterTableLeftHeader").First()
		if timeCell.Length() == 0 {
			return
		}
		start := timeRe.FindString(htmlutil.CompactText(timeCell))
		if start == "" {
			return
		}

		col := 0
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			if cell.HasClass("masterTableLeftHeader") {
				return
			}
			if col >= len(columns) {
				return
			}
			if card, ok := cellCard(cell, start); ok {
				columns[col] = append(columns[col], card)
			}
			col++
		})
	})

	return &Grid{Days: days, Columns: columns}, nil
}

// cellCard turns one grid cell into an extractor card. Availability lives
// in the class of the booking button (btn-resource-success means free) or,
// on older pages, the class of the cell itself.
func cellCard(cell *goquery.Selection, start string) (slotextract.Card, bool) {
	button := cell.Find(`input[type="submit"], button, a.btn`).First()
	if button.Length() == 0 && strings.TrimSpace(cell.Text()) == "" {
		return slotextract.Card{}, false
	}

	classes := cell.AttrOr("class", "")
	qaID := cell.AttrOr("data-qa-id", "")
	if button.Length() > 0 {
		classes = strings.TrimSpace(classes + " " + button.AttrOr("class", ""))
		if qaID == "" {
			qaID = button.AttrOr("data-qa-id", "")
		}
	}

	return slotextract.Card{
		Text: start,
		Attr: map[string]string{
			"class":      classes,
			"data-qa-id": qaID,
		},
	}, true
}

func parseDayHeader(label string, now time.Time) (time.Time, string, bool) {
	m := dayHeaderRe.FindStringSubmatch(label)
	if m == nil {
		return time.Time{}, "", false
	}
	// the page never states a year; the window is two weeks out at most so
	// the current year is right except across new year, where the month
	// running far behind the current one means it rolled over
	t, err := time.ParseInLocation("2 Jan 2006",
		fmt.Sprintf("%s %s %d", m[2], m[3], now.Year()), now.Location())
	if err != nil {
		return time.Time{}, "", false
	}
	if t.Month() < now.Month() && now.Month()-t.Month() > 6 {
		t = t.AddDate(1, 0, 0)
	}
	return t, m[1], true
}
