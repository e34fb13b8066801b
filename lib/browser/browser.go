// Package browser drives a booking website the way a logged-in visitor
// would: one cookie-jarred HTTP session, one "current page" at a time.
// Navigation steps are plain GETs and form POSTs; the DOM of the last
// response is what locator chains run against.
package browser

import (
	"bytes"
	"context"
	"net/http/cookiejar"
	"net/url"
	"time"

	"courtfinder-backend/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// every navigation step is bounded; a site that stops responding turns
// into a failed step, not a hang
const stepTimeout = time.Second * 30

type Options struct {
	BaseUrl string
	// route requests through the cloudflare bypass transport, needed by
	// the Legend-hosted sites
	CloudflareBypass bool
	// tracer name used for request instrumentation
	TracerName string
}

type Session struct {
	Base *url.URL
	Http *resty.Client

	doc *goquery.Document
	url string
}

func NewSession(opts Options) (*Session, error) {
	base, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", userAgent)
	client.SetHeader("accept-language", "en-GB,en;q=0.9")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))
	client.SetTimeout(stepTimeout)

	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	tracerName := opts.TracerName
	if tracerName == "" {
		tracerName = "browser"
	}
	restyutil.InstrumentClient(client, tracerName)

	return &Session{
		Base: base,
		Http: client,
	}, nil
}

// Doc returns the currently loaded page.
func (s *Session) Doc() (*goquery.Document, error) {
	if s.doc == nil {
		return nil, errors.New("no page has been loaded yet")
	}
	return s.doc, nil
}

// URL returns the address of the currently loaded page.
func (s *Session) URL() string {
	return s.url
}

func (s *Session) load(res *resty.Response) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, errors.Wrap(err, "parse response html")
	}
	s.doc = doc
	s.url = res.Request.URL
	return doc, nil
}

// resolve turns an href into an absolute url the way a browser would:
// against the page the session is currently on, or against the configured
// base before any page has loaded.
func (s *Session) resolve(href string) string {
	ref, err := url.Parse(href)
	if err != nil || ref.IsAbs() {
		return href
	}
	from := s.Base
	if s.url != "" {
		cur, err := url.Parse(s.url)
		if err == nil {
			from = cur
		}
	}
	return from.ResolveReference(ref).String()
}

// Get navigates to a path or absolute url and makes it the current page.
func (s *Session) Get(ctx context.Context, href string) (*goquery.Document, error) {
	target := s.resolve(href)
	res, err := s.Http.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", target)
	}
	return s.load(res)
}

// PostForm submits a form to a path and makes the response the current page.
func (s *Session) PostForm(ctx context.Context, href string, form map[string]string) (*goquery.Document, error) {
	target := s.resolve(href)
	res, err := s.Http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(target)
	if err != nil {
		return nil, errors.Wrapf(err, "post %s", target)
	}
	return s.load(res)
}
