package browser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
)

// ErrElementNotFound marks a step failure: every strategy in a locator
// chain ran dry. Callers use errors.Is against it to tell "page layout
// changed" apart from transport errors.
var ErrElementNotFound = errors.New("element not found")

// Locator is one strategy for finding an interactive element on a page.
// The booking sites are selector-fragile, so a step never relies on a
// single locator: it declares a chain, ranked most- to least-specific,
// and takes the first strategy that matches.
type Locator struct {
	// human-readable, shows up in error messages and spans
	Name string
	// goquery selector
	Selector string
	// optional refinement applied per matched node; nil accepts any match
	Filter func(*goquery.Selection) bool
}

// TextFilter accepts elements whose text contains `want`
// (case-insensitive) and, when `reject` is non-empty, does not contain it.
func TextFilter(want, reject string) func(*goquery.Selection) bool {
	want = strings.ToLower(want)
	reject = strings.ToLower(reject)
	return func(sel *goquery.Selection) bool {
		text := strings.ToLower(sel.Text())
		if !strings.Contains(text, want) {
			return false
		}
		return reject == "" || !strings.Contains(text, reject)
	}
}

// FindFirst runs a locator chain against a document: strategies are tried
// in order, the first one that yields a match wins, and only once the whole
// chain is exhausted does the step fail.
func FindFirst(doc *goquery.Document, chain []Locator) (*goquery.Selection, error) {
	tried := make([]string, 0, len(chain))
	for _, loc := range chain {
		tried = append(tried, loc.Name)

		matches := doc.Find(loc.Selector)
		if loc.Filter == nil {
			if matches.Length() > 0 {
				return matches.First(), nil
			}
			continue
		}

		var found *goquery.Selection
		matches.EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if loc.Filter(sel) {
				found = sel
				return false
			}
			return true
		})
		if found != nil {
			return found, nil
		}
	}
	return nil, errors.Wrapf(ErrElementNotFound, "tried %s", strings.Join(tried, ", "))
}

// FindAll returns every element matched by the first strategy in the chain
// that matches anything at all.
func FindAll(doc *goquery.Document, chain []Locator) (*goquery.Selection, error) {
	tried := make([]string, 0, len(chain))
	for _, loc := range chain {
		tried = append(tried, loc.Name)

		matches := doc.Find(loc.Selector)
		if loc.Filter != nil {
			matches = matches.FilterFunction(func(_ int, sel *goquery.Selection) bool {
				return loc.Filter(sel)
			})
		}
		if matches.Length() > 0 {
			return matches, nil
		}
	}
	return nil, errors.Wrapf(ErrElementNotFound, "tried %s", strings.Join(tried, ", "))
}
