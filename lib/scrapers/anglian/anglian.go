// Package anglian scrapes Anglian Leisure booking sites, used by Linton
// Village College. Unlike the Legend sites there is no per-day navigation:
// after login the badminton page shows a single grid (#slotsGrid) with one
// column per bookable day and one row per half-hour start time, and
// availability is encoded in the color class of each cell's button.
package anglian

import (
	"context"
	"fmt"
	"strconv"
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

var tracer = otel.Tracer("scrapers/anglian")

var LoginFailed = fmt.Errorf("failed to login to anglian leisure account")

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Config struct {
	FacilityName string
	HallName     string
	// the activity landing page holding the "Book now" link
	BaseUrl string
	// activity to land on ("badminton"); the picker likes to default to
	// basketball which shares the hall
	Activity string
	// an activity that must NOT be selected when we start extracting
	RejectActivity string
	MaxDays        int
	Credentials    Credentials
}

type Navigator struct {
	cfg     Config
	session *browser.Session
	grid    *Grid
}

func NewNavigator(cfg Config) (*Navigator, error) {
	s, err := browser.NewSession(browser.Options{
		BaseUrl:    cfg.BaseUrl,
		TracerName: "scrapers/anglian/http",
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
		Mode:         slotextract.ModeBinary,
		SlotDuration: 30 * time.Minute,
	}
}

var emailFieldChain = []browser.Locator{
	{Name: "email placeholder", Selector: `input[placeholder*="Email"]`},
	{Name: "email input", Selector: `input[type="email"]`},
	{Name: "email name", Selector: `input[name="email"]`},
	{Name: "email id", Selector: `input[id*="email"]`},
	{Name: "first text input", Selector: `input[type="text"]`},
}

// Authenticate follows "Book now" off the activity page into the member
// login form and signs in.
func (n *Navigator) Authenticate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "navigator:Authenticate")
	defer span.End()

	doc, err := n.session.Get(ctx, n.cfg.BaseUrl)
	if err != nil {
		span.SetStatus(codes.Error, "failed to open activity page")
		return err
	}

	bookNow, err := browser.FindFirst(doc, []browser.Locator{
		{Name: "book now link", Selector: "a", Filter: browser.TextFilter("book now", "")},
	})
	if err != nil {
		span.SetStatus(codes.Error, "book now link not found")
		return err
	}
	href, ok := bookNow.Attr("href")
	if !ok {
		span.SetStatus(codes.Error, "book now link has no href")
		return errors.New("book now link has no href")
	}

	doc, err = n.session.Get(ctx, href)
	if err != nil {
		span.SetStatus(codes.Error, "failed to open booking login")
		return err
	}

	form := doc.Find("form").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return sel.Find(`input[type="password"]`).Length() > 0
	}).First()
	if form.Length() == 0 {
		span.SetStatus(codes.Error, "no login form")
		return errors.New("could not find login form")
	}
	emailField, err := browser.FindFirst(doc, emailFieldChain)
	if err != nil {
		span.SetStatus(codes.Error, "email field not found")
		return err
	}

	fields := map[string]string{}
	form.Find(`input[type="hidden"]`).Each(func(_ int, sel *goquery.Selection) {
		if name, ok := sel.Attr("name"); ok {
			fields[name] = sel.AttrOr("value", "")
		}
	})
	fields[emailField.AttrOr("name", "email")] = n.cfg.Credentials.Username
	fields[form.Find(`input[type="password"]`).First().AttrOr("name", "password")] = n.cfg.Credentials.Password

	doc, err = n.session.PostForm(ctx, form.AttrOr("action", n.session.URL()), fields)
	if err != nil {
		span.SetStatus(codes.Error, "failed to post login")
		return err
	}
	if doc.Find(`input[type="password"]`).Length() > 0 {
		span.SetStatus(codes.Error, LoginFailed.Error())
		return LoginFailed
	}
	return nil
}

// OpenBookingSurface lands on the right activity and parses the whole
// slots grid in one go; day selection afterwards is just picking a column.
func (n *Navigator) OpenBookingSurface(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "navigator:OpenBookingSurface")
	defer span.End()

	doc, err := n.session.Doc()
	if err != nil {
		return err
	}

	// the picker may already have our activity selected; only click when a
	// link for it exists
	activityLink, err := browser.FindFirst(doc, []browser.Locator{
		{Name: "activity link", Selector: "a", Filter: browser.TextFilter(n.cfg.Activity, n.cfg.RejectActivity)},
	})
	if err == nil {
		if href, ok := activityLink.Attr("href"); ok && href != "" {
			doc, err = n.session.Get(ctx, href)
			if err != nil {
				span.SetStatus(codes.Error, "failed to open activity")
				return err
			}
		}
	}

	heading := strings.ToLower(htmlutil.CompactText(doc.Find("h3").First()))
	if n.cfg.RejectActivity != "" &&
		strings.Contains(heading, strings.ToLower(n.cfg.RejectActivity)) &&
		!strings.Contains(heading, strings.ToLower(n.cfg.Activity)) {
		err := errors.Newf("wrong activity selected: %q", heading)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	grid, err := ParseGrid(doc, timezone.Now())
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse slots grid")
		return err
	}
	n.grid = grid
	return nil
}

func (n *Navigator) BookableDays(ctx context.Context) ([]navigate.Day, error) {
	if n.grid == nil {
		return nil, errors.New("booking surface not open")
	}
	return n.grid.Days, nil
}

// SelectDay is free: the grid already holds every day.
func (n *Navigator) SelectDay(ctx context.Context, day navigate.Day) error {
	return nil
}

func (n *Navigator) RawSlots(ctx context.Context, day navigate.Day) ([]slotextract.Card, error) {
	if n.grid == nil {
		return nil, errors.New("booking surface not open")
	}
	col, err := strconv.Atoi(day.Ref)
	if err != nil || col < 0 || col >= len(n.grid.Columns) {
		return nil, errors.Newf("bad day ref %q", day.Ref)
	}
	return n.grid.Columns[col], nil
}
