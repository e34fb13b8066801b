package legend

import (
	"context"
	"time"

	"courtfinder-backend/lib/browser"
	"courtfinder-backend/lib/navigate"
	"courtfinder-backend/lib/slotextract"
	"courtfinder-backend/lib/timezone"
)

// Flow selects which menu path a facility uses to reach its timetable.
type Flow int

const (
	// FlowMakeABooking: landing page -> "Make a Booking" -> hall radio ->
	// activity checkbox -> view timetable. Hill Roads works this way.
	FlowMakeABooking Flow = iota
	// FlowDropIns: landing page -> "Drop ins" -> club -> category radio ->
	// activity -> view timetable. Trumpington Sport works this way.
	FlowDropIns
)

type Config struct {
	FacilityName string
	HallName     string
	// site origin, e.g. "https://hillsroad.legendonlineservices.co.uk"
	BaseUrl string
	Flow    Flow

	// FlowMakeABooking: hall radio label ("sports hall")
	Hall string
	// FlowDropIns: club link text ("Trumpington Sport")
	Club string
	// FlowDropIns: category radio label ("court bookings")
	Category string
	// activity checkbox label, both flows ("badminton")
	Activity string

	MaxDays      int
	SlotDuration time.Duration
	Credentials  Credentials
}

// Navigator walks one Legend site through authenticate -> booking surface
// -> date tabs -> slot tiles. One instance serves exactly one scrape.
type Navigator struct {
	cfg    Config
	client *Client
}

func NewNavigator(cfg Config) (*Navigator, error) {
	client, err := NewClient(cfg.BaseUrl)
	if err != nil {
		return nil, err
	}
	return &Navigator{cfg: cfg, client: client}, nil
}

func (n *Navigator) Facility() string { return n.cfg.FacilityName }
func (n *Navigator) HallName() string { return n.cfg.HallName }
func (n *Navigator) MaxDays() int     { return n.cfg.MaxDays }

func (n *Navigator) ExtractOptions() slotextract.Options {
	return slotextract.Options{
		Mode:         slotextract.ModeCounted,
		SlotDuration: n.cfg.SlotDuration,
	}
}

func (n *Navigator) Authenticate(ctx context.Context) error {
	return n.client.Login(ctx, n.cfg.Credentials)
}

func (n *Navigator) OpenBookingSurface(ctx context.Context) error {
	switch n.cfg.Flow {
	case FlowDropIns:
		return n.openDropIns(ctx)
	default:
		return n.openMakeABooking(ctx)
	}
}

func (n *Navigator) openMakeABooking(ctx context.Context) error {
	err := n.client.OpenMakeABooking(ctx)
	if err != nil {
		return err
	}
	err = n.client.ChooseOption(ctx, "radio", n.cfg.Hall)
	if err != nil {
		return err
	}
	err = n.client.ChooseOption(ctx, "checkbox", n.cfg.Activity)
	if err != nil {
		return err
	}
	return n.client.ViewTimetable(ctx)
}

func (n *Navigator) openDropIns(ctx context.Context) error {
	err := n.client.ClickAnchor(ctx, []browser.Locator{
		{Name: "drop ins link", Selector: "a", Filter: browser.TextFilter("drop ins", "")},
		{Name: "drop-ins link", Selector: "a", Filter: browser.TextFilter("drop-ins", "")},
	})
	if err != nil {
		return err
	}
	err = n.client.ClickAnchor(ctx, []browser.Locator{
		{Name: "club link", Selector: "a", Filter: browser.TextFilter(n.cfg.Club, "")},
	})
	if err != nil {
		// some skins present clubs as radios instead of links
		err = n.client.ChooseOption(ctx, "radio", n.cfg.Club)
		if err != nil {
			return err
		}
	}
	err = n.client.ChooseOption(ctx, "radio", n.cfg.Category)
	if err != nil {
		return err
	}
	// the activity picker is skipped entirely on flows that jump straight
	// to the timetable
	_ = n.client.ChooseOption(ctx, "checkbox", n.cfg.Activity)
	return n.client.ViewTimetable(ctx)
}

func (n *Navigator) BookableDays(ctx context.Context) ([]navigate.Day, error) {
	if n.cfg.Flow == FlowDropIns {
		return n.client.RevealTabs(ctx, timezone.Now(), n.cfg.MaxDays)
	}
	return n.client.DateTabs(timezone.Now())
}

func (n *Navigator) SelectDay(ctx context.Context, day navigate.Day) error {
	return n.client.SelectTab(ctx, day)
}

func (n *Navigator) RawSlots(ctx context.Context, day navigate.Day) ([]slotextract.Card, error) {
	return n.client.SlotCards()
}
