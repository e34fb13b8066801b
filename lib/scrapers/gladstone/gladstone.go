// Package gladstone scrapes GladstoneGo booking sites, used by One Leisure
// St Ives. No account is needed: the public timetable takes the activity
// and date as query parameters and lists a card per court per start time,
// with a "Book now" button on the free ones.
package gladstone

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"courtfinder-backend/lib/browser"
	"courtfinder-backend/lib/htmlutil"
	"courtfinder-backend/lib/navigate"
	"courtfinder-backend/lib/slotextract"
	"courtfinder-backend/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/gladstone")

type Config struct {
	FacilityName string
	HallName     string
	BaseUrl      string
	// path of the booking timetable relative to BaseUrl
	BookPath string
	// value of the activity filter, e.g. "Badminton"
	Activity string
	// name of the query parameter carrying the date, e.g. "date"
	DateParam string
	MaxDays   int
}

type Navigator struct {
	cfg     Config
	session *browser.Session
	doc     *goquery.Document
}

func NewNavigator(cfg Config) (*Navigator, error) {
	if cfg.DateParam == "" {
		cfg.DateParam = "date"
	}
	s, err := browser.NewSession(browser.Options{
		BaseUrl:    cfg.BaseUrl,
		TracerName: "scrapers/gladstone/http",
	})
	if err != nil {
		return nil, err
	}
	return &Navigator{cfg: cfg, session: s}, nil
}

func (n *Navigator) Facility() string { return n.cfg.FacilityName }
func (n *Navigator) HallName() string { return n.cfg.HallName }
func (n *Navigator) MaxDays() int     { return n.cfg.MaxDays }

func (n *Navigator) ExtractOptions() slotextract.Options {
	return slotextract.Options{
		Mode:          slotextract.ModeBinary,
		SlotDuration:  time.Hour,
		CourtFromText: true,
	}
}

// Authenticate is a no-op, the timetable is public.
func (n *Navigator) Authenticate(ctx context.Context) error {
	return nil
}

func (n *Navigator) OpenBookingSurface(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "navigator:OpenBookingSurface")
	defer span.End()

	doc, err := n.session.Get(ctx, n.bookURL(""))
	if err != nil {
		span.SetStatus(codes.Error, "failed to open timetable")
		return err
	}
	n.doc = doc
	return nil
}

// BookableDays is generated, not scraped: the site serves any date but
// only keeps a week of inventory.
func (n *Navigator) BookableDays(ctx context.Context) ([]navigate.Day, error) {
	now := timezone.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := make([]navigate.Day, 0, n.cfg.MaxDays)
	for i := 0; i < n.cfg.MaxDays; i++ {
		d := today.AddDate(0, 0, i)
		days = append(days, navigate.Day{
			Date:  d,
			Label: d.Format("Mon"),
			Ref:   d.Format("2006-01-02"),
		})
	}
	return days, nil
}

func (n *Navigator) SelectDay(ctx context.Context, day navigate.Day) error {
	ctx, span := tracer.Start(ctx, "navigator:SelectDay")
	defer span.End()

	doc, err := n.session.Get(ctx, n.bookURL(day.Ref))
	if err != nil {
		span.SetStatus(codes.Error, "failed to open timetable for day")
		return err
	}
	n.doc = doc
	return nil
}

func (n *Navigator) RawSlots(ctx context.Context, day navigate.Day) ([]slotextract.Card, error) {
	if n.doc == nil {
		return nil, errors.New("booking surface not open")
	}
	return CollectSlotCards(n.doc), nil
}

func (n *Navigator) bookURL(date string) string {
	q := url.Values{}
	if n.cfg.Activity != "" {
		q.Set("activity", n.cfg.Activity)
	}
	if date != "" {
		q.Set(n.cfg.DateParam, date)
	}
	path := n.cfg.BookPath
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return path
}

var timeRangeRe = regexp.MustCompile(`\d{1,2}:\d{2}\s*-\s*\d{1,2}:\d{2}`)

var slotCardChain = []browser.Locator{
	{Name: "slot cards", Selector: `[class*="slot"], [class*="Slot"], [class*="card"], [class*="tile"]`},
	{Name: "generic divs", Selector: "div"},
}

// CollectSlotCards picks out the booking cards: anything naming a court
// and a time range.
func CollectSlotCards(doc *goquery.Document) []slotextract.Card {
	sel, err := browser.FindAll(doc, slotCardChain)
	if err != nil {
		return nil
	}
	var cards []slotextract.Card
	sel.Each(func(_ int, s *goquery.Selection) {
		text := htmlutil.CompactText(s)
		if !looksLikeSlotCard(text) {
			return
		}
		// keep leaves only; a container matching the chain repeats every
		// card it holds
		if s.Find(`[class*="slot"], [class*="Slot"], [class*="card"], [class*="tile"]`).Length() > 0 {
			return
		}
		cards = append(cards, slotextract.Card{
			Text: text,
			Attr: map[string]string{"class": s.AttrOr("class", "")},
		})
	})
	return cards
}

func looksLikeSlotCard(text string) bool {
	if len(text) > 300 {
		return false
	}
	lower := strings.ToLower(text)
	return strings.Contains(lower, "court") && timeRangeRe.MatchString(text)
}
