// Package legend scrapes booking sites hosted on Legend Online Services
// (*.legendonlineservices.co.uk). Two of our facilities live there, Hill
// Roads Sport and Tennis Centre and Trumpington Sport, behind the same
// member login and the same tile-based timetable, reached through two
// slightly different menu flows.
package legend

import (
	"context"
	"fmt"
	"strings"

	"courtfinder-backend/lib/browser"
	"courtfinder-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/legend")

var LoginFailed = fmt.Errorf("failed to login to legend account")

const loginPath = "/enterprise/account/login"

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Client struct {
	Session *browser.Session
}

func NewClient(baseUrl string) (*Client, error) {
	s, err := browser.NewSession(browser.Options{
		BaseUrl:          baseUrl,
		CloudflareBypass: true,
		TracerName:       "scrapers/legend/http",
	})
	if err != nil {
		return nil, err
	}
	return &Client{Session: s}, nil
}

var emailFieldChain = []browser.Locator{
	{Name: "email input", Selector: `input[type="email"]`},
	{Name: "name contains email", Selector: `input[name*="mail"]`},
	{Name: "id contains email", Selector: `input[id*="mail"]`},
	{Name: "first text input", Selector: `input[type="text"]`},
}

var submitChain = []browser.Locator{
	{Name: "submit button", Selector: `button[type="submit"]`},
	{Name: "submit input", Selector: `input[type="submit"]`},
	{Name: "login button text", Selector: "button", Filter: browser.TextFilter("login", "")},
	{Name: "sign in button text", Selector: "button", Filter: browser.TextFilter("sign in", "")},
}

// Login fetches the login form, lifts its hidden anti-forgery token and
// posts the credentials back, then checks a marker of a signed-in session.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	doc, err := c.Session.Get(ctx, loginPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return err
	}

	form := doc.Find("form").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return sel.Find(`input[type="password"]`).Length() > 0
	}).First()
	if form.Length() == 0 {
		span.SetStatus(codes.Error, "no login form on page")
		return errors.New("could not find login form")
	}

	emailField, err := browser.FindFirst(doc, emailFieldChain)
	if err != nil {
		span.SetStatus(codes.Error, "failed to find email field")
		return err
	}

	fields := hiddenInputs(form)
	fields[emailField.AttrOr("name", "Login.Email")] = creds.Username
	fields[form.Find(`input[type="password"]`).First().AttrOr("name", "Login.Password")] = creds.Password

	action := form.AttrOr("action", loginPath)
	doc, err = c.Session.PostForm(ctx, action, fields)
	if err != nil {
		span.SetStatus(codes.Error, "failed to post login form")
		return err
	}

	if !loggedIn(doc) {
		span.SetStatus(codes.Error, LoginFailed.Error())
		return LoginFailed
	}
	return nil
}

func hiddenInputs(form *goquery.Selection) map[string]string {
	fields := map[string]string{}
	form.Find(`input[type="hidden"]`).Each(func(_ int, sel *goquery.Selection) {
		name, ok := sel.Attr("name")
		if !ok {
			return
		}
		fields[name] = sel.AttrOr("value", "")
	})
	return fields
}

func loggedIn(doc *goquery.Document) bool {
	if doc.Find(`a[href*="logout" i], a[href*="LogOff" i]`).Length() > 0 {
		return true
	}
	// a page that still asks for a password did not log us in
	return doc.Find(`input[type="password"]`).Length() == 0 &&
		doc.Find(`[class*="account" i]`).Length() > 0
}

// ClickAnchor finds a link through the chain on the current page and
// navigates to it.
func (c *Client) ClickAnchor(ctx context.Context, chain []browser.Locator) error {
	doc, err := c.Session.Doc()
	if err != nil {
		return err
	}
	sel, err := browser.FindFirst(doc, chain)
	if err != nil {
		return err
	}
	href, ok := sel.Attr("href")
	if !ok || href == "" {
		return errors.Newf("anchor %q has no href", htmlutil.CompactText(sel))
	}
	_, err = c.Session.Get(ctx, href)
	return err
}

// OpenMakeABooking follows the "Make a Booking" link from the signed-in
// landing page. The link appears twice (sidebar and main content); the main
// content one is what the booking flow hangs off, so the second match is
// preferred when both are present.
func (c *Client) OpenMakeABooking(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:OpenMakeABooking")
	defer span.End()

	doc, err := c.Session.Doc()
	if err != nil {
		return err
	}

	var hrefs []string
	for _, a := range htmlutil.GetAnchors(doc.Find("a")) {
		if strings.EqualFold(strings.TrimSpace(a.Name), "make a booking") && a.Href != "" {
			hrefs = append(hrefs, a.Href)
		}
	}
	if len(hrefs) == 0 {
		span.SetStatus(codes.Error, "make a booking link not found")
		return errors.Wrap(browser.ErrElementNotFound, "make a booking link")
	}

	href := hrefs[0]
	if len(hrefs) > 1 {
		href = hrefs[1]
	}
	_, err = c.Session.Get(ctx, href)
	if err != nil {
		span.SetStatus(codes.Error, "failed to open booking page")
	}
	return err
}

// ChooseOption re-submits the booking form with the radio or checkbox
// whose value, id or label mentions `match` switched on. This is how the
// hall / category / activity pickers work on Legend: every change posts
// the whole form back.
func (c *Client) ChooseOption(ctx context.Context, inputType, match string) error {
	ctx, span := tracer.Start(ctx, "client:ChooseOption")
	defer span.End()

	doc, err := c.Session.Doc()
	if err != nil {
		return err
	}

	input, err := findChoiceInput(doc, inputType, match)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	form := input.Closest("form")
	if form.Length() == 0 {
		span.SetStatus(codes.Error, "choice input has no form")
		return errors.Newf("%s %q is not inside a form", inputType, match)
	}

	fields := hiddenInputs(form)
	name := input.AttrOr("name", "")
	if name == "" {
		span.SetStatus(codes.Error, "choice input has no name")
		return errors.Newf("%s %q has no name attribute", inputType, match)
	}
	fields[name] = input.AttrOr("value", "on")

	_, err = c.Session.PostForm(ctx, form.AttrOr("action", c.Session.URL()), fields)
	if err != nil {
		span.SetStatus(codes.Error, "failed to submit choice")
	}
	return err
}

func findChoiceInput(doc *goquery.Document, inputType, match string) (*goquery.Selection, error) {
	lower := strings.ToLower(match)

	matchesInput := func(sel *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(sel.AttrOr("value", "")), lower) {
			return true
		}
		if strings.Contains(strings.ToLower(sel.AttrOr("id", "")), strings.ReplaceAll(lower, " ", "")) {
			return true
		}
		// label wired up through for=
		id, ok := sel.Attr("id")
		if !ok {
			return false
		}
		label := doc.Find(fmt.Sprintf(`label[for="%s"]`, id))
		return label.Length() > 0 && strings.Contains(strings.ToLower(label.Text()), lower)
	}

	chain := []browser.Locator{
		{
			Name:     fmt.Sprintf("%s matching %q", inputType, match),
			Selector: fmt.Sprintf(`input[type="%s"]`, inputType),
			Filter:   matchesInput,
		},
		{
			Name:     fmt.Sprintf("%s wrapped in label %q", inputType, match),
			Selector: fmt.Sprintf(`label input[type="%s"]`, inputType),
			Filter: func(sel *goquery.Selection) bool {
				return strings.Contains(strings.ToLower(sel.Closest("label").Text()), lower)
			},
		},
	}
	return browser.FindFirst(doc, chain)
}

// ViewTimetable presses the "View Timetable" control, which is an anchor on
// some Legend skins and a form submit on others. A missing control is not
// fatal: some flows land directly on the timetable.
func (c *Client) ViewTimetable(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:ViewTimetable")
	defer span.End()

	doc, err := c.Session.Doc()
	if err != nil {
		return err
	}

	anchor, err := browser.FindFirst(doc, []browser.Locator{
		{Name: "view timetable link", Selector: "a", Filter: browser.TextFilter("view timetable", "")},
	})
	if err == nil {
		if href, ok := anchor.Attr("href"); ok && href != "" {
			_, err = c.Session.Get(ctx, href)
			return err
		}
	}

	button, err := browser.FindFirst(doc, []browser.Locator{
		{Name: "view timetable submit", Selector: `input[type="submit"]`, Filter: func(sel *goquery.Selection) bool {
			return strings.Contains(strings.ToLower(sel.AttrOr("value", "")), "view timetable")
		}},
		{Name: "view timetable button", Selector: `button`, Filter: browser.TextFilter("view timetable", "")},
	})
	if err != nil {
		// assume the timetable already loaded
		return nil
	}

	form := button.Closest("form")
	if form.Length() == 0 {
		return nil
	}
	fields := hiddenInputs(form)
	if name, ok := button.Attr("name"); ok {
		fields[name] = button.AttrOr("value", "")
	}
	_, err = c.Session.PostForm(ctx, form.AttrOr("action", c.Session.URL()), fields)
	return err
}
