package legend

import (
	"context"
	"regexp"
	"strings"
	"time"

	"courtfinder-backend/lib/browser"
	"courtfinder-backend/lib/htmlutil"
	"courtfinder-backend/lib/navigate"
	"courtfinder-backend/lib/slotextract"

	"github.com/PuerkitoBio/goquery"
)

var dateTabRe = regexp.MustCompile(`(?i)^(TODAY|TOMORROW|(\d{1,2})\s+(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+(\d{4}))$`)

// tabs beyond this are never real dates, the bar tops out around two weeks
const maxDateTabs = 20

// ParseDateTabs reads the timetable's date bar: TODAY, TOMORROW, then
// explicit dates ("07 Feb 2026"). `now` anchors the relative labels.
// Duplicate labels collapse to the first occurrence, matching how the same
// tab can be matched by more than one selector pattern.
func ParseDateTabs(doc *goquery.Document, now time.Time) []navigate.Day {
	var days []navigate.Day
	seen := map[string]bool{}

	doc.Find(`[role="tab"], [class*="tab"] a, [class*="date"] a, a, button`).Each(func(_ int, sel *goquery.Selection) {
		if len(days) >= maxDateTabs {
			return
		}
		label := htmlutil.CompactText(sel)
		m := dateTabRe.FindStringSubmatch(label)
		if m == nil {
			return
		}
		key := strings.ToUpper(label)
		if seen[key] {
			return
		}

		var date time.Time
		switch strings.ToUpper(m[1])[0:2] {
		case "TO":
			if strings.EqualFold(m[1], "TODAY") {
				date = now
			} else {
				date = now.AddDate(0, 0, 1)
			}
		default:
			parsed, err := time.ParseInLocation("2 Jan 2006", m[2]+" "+m[3][:3]+" "+m[4], now.Location())
			if err != nil {
				return
			}
			date = parsed
		}

		seen[key] = true
		days = append(days, navigate.Day{
			Date:  time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, now.Location()),
			Label: label,
			Ref:   sel.AttrOr("href", ""),
		})
	})

	return days
}

// DateTabs parses the date bar off the currently loaded timetable page.
func (c *Client) DateTabs(now time.Time) ([]navigate.Day, error) {
	doc, err := c.Session.Doc()
	if err != nil {
		return nil, err
	}
	return ParseDateTabs(doc, now), nil
}

// SelectTab navigates to a date tab. Tabs without an href are in-page
// (already showing), so selecting them is a no-op.
func (c *Client) SelectTab(ctx context.Context, day navigate.Day) error {
	if day.Ref == "" {
		return nil
	}
	_, err := c.Session.Get(ctx, day.Ref)
	return err
}

// RevealTabs clicks through the date bar until `want` tabs are visible or
// it stops growing. Some Legend skins only reveal the next day once the
// rightmost tab has been opened.
func (c *Client) RevealTabs(ctx context.Context, now time.Time, want int) ([]navigate.Day, error) {
	tabs, err := c.DateTabs(now)
	if err != nil {
		return nil, err
	}
	for len(tabs) < want {
		if len(tabs) == 0 {
			break
		}
		last := tabs[len(tabs)-1]
		if last.Ref == "" {
			break
		}
		if err := c.SelectTab(ctx, last); err != nil {
			break
		}
		grown, err := c.DateTabs(now)
		if err != nil || len(grown) <= len(tabs) {
			break
		}
		tabs = grown
	}
	return tabs, nil
}

var slotTimeRe = regexp.MustCompile(`\d{1,2}:\d{2}`)
var slotStatusRe = regexp.MustCompile(`(?i)\bFull\b|\d+\s*Slots?`)

var slotCardChain = []browser.Locator{
	{Name: "slot class", Selector: `[class*="slot"]`, Filter: looksLikeSlotCard},
	{Name: "Slot class", Selector: `[class*="Slot"]`, Filter: looksLikeSlotCard},
	{Name: "tile class", Selector: `[class*="tile"]`, Filter: looksLikeSlotCard},
	{Name: "card class", Selector: `[class*="card"]`, Filter: looksLikeSlotCard},
	{Name: "booking class", Selector: `[class*="booking"]`, Filter: looksLikeSlotCard},
	{Name: "bare div fallback", Selector: "div", Filter: looksLikeSlotCard},
}

func looksLikeSlotCard(sel *goquery.Selection) bool {
	text := htmlutil.CompactText(sel)
	if len(text) > 500 {
		// a whole-grid container, not a tile
		return false
	}
	return slotTimeRe.MatchString(text) && slotStatusRe.MatchString(text)
}

// CollectSlotCards pulls the per-slot tiles ("18:00 ... 3 Slots",
// "19:00 ... Full") off a timetable page.
func CollectSlotCards(doc *goquery.Document) []slotextract.Card {
	matches, err := browser.FindAll(doc, slotCardChain)
	if err != nil {
		return nil
	}

	var cards []slotextract.Card
	matches.Each(func(_ int, sel *goquery.Selection) {
		cards = append(cards, slotextract.Card{
			Text: htmlutil.CompactText(sel),
			Attr: map[string]string{"class": sel.AttrOr("class", "")},
		})
	})
	return cards
}

// SlotCards reads the raw slot tiles off the currently loaded page.
func (c *Client) SlotCards() ([]slotextract.Card, error) {
	doc, err := c.Session.Doc()
	if err != nil {
		return nil, err
	}
	return CollectSlotCards(doc), nil
}
