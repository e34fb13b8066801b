// Package slotextract turns raw slot cards scraped off a booking timetable
// into canonical availability records. It is pure: no IO, no clocks, the
// output depends only on the cards and options passed in.
package slotextract

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Mode selects how a site encodes availability on its slot cards.
type Mode int

const (
	// ModeBinary: one card is one bookable unit, either open or not.
	ModeBinary Mode = iota
	// ModeCounted: one card covers a time slot with N parallel courts left,
	// e.g. "3 Slots" or "Full".
	ModeCounted
)

// Card is the raw material handed over by a site navigator: the card's
// compacted text plus whatever attributes matter for extraction.
type Card struct {
	Text string
	// attributes such as "class" or "data-qa-id" lifted off the element
	Attr map[string]string
}

type Slot struct {
	Date        string // YYYY-MM-DD
	DayName     string // e.g. "Wednesday"
	StartTime   string // HH:MM
	EndTime     string // HH:MM
	CourtNumber string // "" means a single undifferentiated court
	Available   bool
}

type Options struct {
	Mode Mode
	// length added to the start time when the card carries no explicit
	// end time token
	SlotDuration time.Duration
	// when true, a "Court N" token in the card text becomes the court label
	CourtFromText bool
}

var timeRangeRe = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*-\s*(\d{1,2}):(\d{2})`)
var timeRe = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
var countedRe = regexp.MustCompile(`(?i)(\d+)\s*Slots?`)
var fullRe = regexp.MustCompile(`(?i)\bFull\b`)
var bookNowRe = regexp.MustCompile(`(?i)\bBook\s+now\b`)
var unavailableRe = regexp.MustCompile(`(?i)\bunavailable\b`)
var courtRe = regexp.MustCompile(`(?i)Court\s+(\d+)`)
var qaDateRe = regexp.MustCompile(`Date=(\d{2})/(\d{2})/(\d{4})`)

// classes Legend-family grids use on the per-slot buttons
const (
	classAvailable    = "btn-resource-success"
	classOwnBooking   = "btn-resource-warning"
	classNotAvailable = "btn-resource-default"
	cellAvailable     = "itemavailable"
	cellNotAvailable  = "itemnotavailable"
)

// Extract converts one day's worth of raw cards into slots. `date` is the
// calendar day the navigation context had selected when the cards were read;
// a card may override it through a Date= token in its data-qa-id attribute.
//
// Cards that resolve to a start time already seen this day are dropped, first
// one wins. The upstream card discovery is deliberately over-broad (several
// selector patterns can match the same tile) so later duplicates are echoes
// of the same element, not new information.
func Extract(date time.Time, cards []Card, opts Options) []Slot {
	var out []Slot
	seen := map[string]bool{}

	for _, card := range cards {
		slots, ok := extractOne(date, card, opts)
		if !ok {
			continue
		}
		key := dedupKey(card, opts, slots)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, slots...)
	}
	return out
}

func dedupKey(card Card, opts Options, slots []Slot) string {
	if len(slots) == 0 {
		return ""
	}
	court := ""
	if opts.CourtFromText {
		court = slots[0].CourtNumber
	}
	return court + "|" + slots[0].StartTime
}

func extractOne(date time.Time, card Card, opts Options) ([]Slot, bool) {
	start, end, ok := cardTimes(card.Text, opts.SlotDuration)
	if !ok {
		return nil, false
	}

	cardDate, dayName := cardDate(date, card)

	switch opts.Mode {
	case ModeCounted:
		return countedSlots(cardDate, dayName, start, end, card.Text), true
	default:
		court := ""
		if opts.CourtFromText {
			m := courtRe.FindStringSubmatch(card.Text)
			if m == nil {
				return nil, false
			}
			court = "Court " + m[1]
		}
		return []Slot{{
			Date:        cardDate,
			DayName:     dayName,
			StartTime:   start,
			EndTime:     end,
			CourtNumber: court,
			Available:   binaryAvailable(card),
		}}, true
	}
}

// cardTimes parses the start time (first HH:MM token) and the end time
// (explicit "HH:MM - HH:MM" range, otherwise start plus the fixed duration).
func cardTimes(text string, duration time.Duration) (string, string, bool) {
	if m := timeRangeRe.FindStringSubmatch(text); m != nil {
		return normalizeHHMM(m[1], m[2]), normalizeHHMM(m[3], m[4]), true
	}

	m := timeRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	start := normalizeHHMM(m[1], m[2])

	t, err := time.Parse("15:04", start)
	if err != nil {
		return "", "", false
	}
	end := t.Add(duration)
	if end.Day() != t.Day() {
		// slot would run past midnight, the sites never show these
		return "", "", false
	}
	return start, end.Format("15:04"), true
}

func normalizeHHMM(h, m string) string {
	if len(h) == 1 {
		h = "0" + h
	}
	return h + ":" + m
}

// cardDate resolves the card's calendar date: an explicit
// "Date=DD/MM/YYYY ..." token in the data-qa-id attribute wins over the
// day selected in the navigation context.
func cardDate(selected time.Time, card Card) (string, string) {
	if qa, ok := card.Attr["data-qa-id"]; ok {
		if m := qaDateRe.FindStringSubmatch(qa); m != nil {
			t, err := time.Parse("02/01/2006", fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3]))
			if err == nil {
				return t.Format(time.DateOnly), t.Weekday().String()
			}
		}
	}
	return selected.Format(time.DateOnly), selected.Weekday().String()
}

func countedSlots(date, dayName, start, end, text string) []Slot {
	count := 0
	if !fullRe.MatchString(text) {
		if m := countedRe.FindStringSubmatch(text); m != nil {
			fmt.Sscanf(m[1], "%d", &count)
		}
	}

	if count == 0 {
		return []Slot{{
			Date:        date,
			DayName:     dayName,
			StartTime:   start,
			EndTime:     end,
			CourtNumber: "Court 1",
			Available:   false,
		}}
	}

	slots := make([]Slot, count)
	for i := range slots {
		slots[i] = Slot{
			Date:        date,
			DayName:     dayName,
			StartTime:   start,
			EndTime:     end,
			CourtNumber: fmt.Sprintf("Court %d", i+1),
			Available:   true,
		}
	}
	return slots
}

func binaryAvailable(card Card) bool {
	class := card.Attr["class"]

	switch {
	case strings.Contains(class, classAvailable):
		return true
	case strings.Contains(class, classOwnBooking):
		// our own booking, still not bookable by anyone else
		return false
	case strings.Contains(class, classNotAvailable), strings.Contains(class, cellNotAvailable):
		return false
	case strings.Contains(class, cellAvailable):
		return true
	}

	if bookNowRe.MatchString(card.Text) {
		return true
	}
	if unavailableRe.MatchString(card.Text) || fullRe.MatchString(card.Text) {
		return false
	}
	// ambiguous markup reads as not bookable
	return false
}
