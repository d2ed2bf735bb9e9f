package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"estate_scrooper/models"
	"estate_scrooper/normalize"
)

// Locations of listing data in the source site's markup.
const (
	selPrice       = "h3.orangeTit"
	selSubtitle    = "h3.greyTit"
	selTitle       = "h1"
	selDescription = "div.blockProp p"
	selDescriptor  = "p.adMainFeatureContentValue"
	selDetail      = "div.adDetailFeature"
	selFeature     = "span.fSize11.centered"
	selControlBar  = "div.controlBar.sMargTop"
	selPublished   = "span.listingDetails.iconPadR"
)

var ErrMissingNode = errors.New("missing required node")

type SkipReason string

const (
	SkipFetch     SkipReason = "fetch failed"
	SkipStructure SkipReason = "page structure"
)

// SkipError explains why a listing was left out of its batch.
type SkipError struct {
	URL    string
	Reason SkipReason
	Err    error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skip %s (%s): %v", e.URL, e.Reason, e.Err)
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

// DetailResult is the outcome of extracting one listing: either Listing is
// set, or Skip says why it was dropped.
type DetailResult struct {
	Listing *models.Listing
	Skip    *SkipError
}

func (r DetailResult) OK() bool {
	return r.Listing != nil
}

type DetailExtractor struct {
	fetcher Fetcher
	now     func() time.Time
}

func NewDetailExtractor(fetcher Fetcher) *DetailExtractor {
	return &DetailExtractor{fetcher: fetcher, now: time.Now}
}

// Extract fetches one detail page and reads the listing from it. Failures are
// reported in the result and never abort the caller's batch.
func (e *DetailExtractor) Extract(ctx context.Context, url string) DetailResult {
	doc, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return DetailResult{Skip: &SkipError{URL: url, Reason: SkipFetch, Err: err}}
	}

	listing, err := e.Parse(doc.Selection, url)
	if err != nil {
		return DetailResult{Skip: &SkipError{URL: url, Reason: SkipStructure, Err: err}}
	}
	return DetailResult{Listing: listing}
}

// Parse reads a detail page. Only the price and subtitle headings are
// required; every other field degrades to nil when its node is missing.
func (e *DetailExtractor) Parse(page *goquery.Selection, url string) (*models.Listing, error) {
	priceNode := page.Find(selPrice).First()
	if priceNode.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingNode, selPrice)
	}
	subtitleNode := page.Find(selSubtitle).First()
	if subtitleNode.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingNode, selSubtitle)
	}

	listing := &models.Listing{
		URL:   url,
		Price: normalize.CleanInteger(priceNode.Text()),
		Title: normalize.CleanText(page.Find(selTitle).First().Text()),
	}
	listing.Area, listing.City = normalize.ParseAreaAndCity(subtitleNode.Text())

	if desc := page.Find(selDescription).First(); desc.Length() > 0 {
		listing.Description = normalize.CleanText(joinedText(desc))
	}

	readDescriptors(page, listing)
	readDetailFeatures(page, listing)

	if listing.Rooms == nil && listing.Description != nil {
		listing.Rooms = normalize.CleanRooms(*listing.Description)
	}

	var features []string
	page.Find(selFeature).Each(func(_ int, s *goquery.Selection) {
		if f := normalize.CleanText(s.Text()); f != nil {
			features = append(features, *f)
		}
	})
	listing.Features = strings.Join(features, ", ")

	listing.DatePublished = publishedDate(page.Find(selControlBar).First(), e.now())

	return listing, nil
}

// readDescriptors zips the unlabeled descriptor values against the fixed
// order Property Type, Condition, Age.
func readDescriptors(page *goquery.Selection, listing *models.Listing) {
	values := make([]string, 3)
	page.Find(selDescriptor).EachWithBreak(func(i int, s *goquery.Selection) bool {
		values[i] = strings.TrimSpace(s.Text())
		return i < len(values)-1
	})

	listing.PropertyType = normalize.CleanText(values[0])
	listing.Condition = normalize.CleanCondition(values[1])
	listing.Age = normalize.CleanAge(values[2])
}

// readDetailFeatures classifies each attribute block by its label. The
// checks are independent, a block may set more than one field.
func readDetailFeatures(page *goquery.Selection, listing *models.Listing) {
	page.Find(selDetail).Each(func(_ int, s *goquery.Selection) {
		label := s.Text()
		value := normalize.CleanInteger(s.Find("span").First().Text())

		if strings.Contains(label, "m²") {
			listing.Size = value
		}
		if strings.Contains(label, "Piece") {
			listing.Rooms = value
		}
		if strings.Contains(label, "Room") {
			listing.Bedrooms = value
		}
		if strings.Contains(label, "Bathroom") {
			listing.Bathrooms = value
		}
	})
}

// publishedDate reads "Published today" / "Published 3 days ago" from a
// control bar, relative to now. Returns nil when the phrase is missing.
func publishedDate(bar *goquery.Selection, now time.Time) *time.Time {
	icon := bar.Find(selPublished).First().Find("i").First()
	if icon.Length() == 0 {
		return nil
	}

	next := icon.Nodes[0].NextSibling
	if next == nil || next.Type != html.TextNode {
		return nil
	}

	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(next.Data), "Published"))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if strings.EqualFold(text, "today") {
		return &today
	}

	days := normalize.CleanInteger(text)
	if days == nil {
		return nil
	}
	date := today.AddDate(0, 0, -*days)
	return &date
}

// joinedText concatenates the text nodes under sel with single spaces, so
// markup such as <br> does not glue words together.
func joinedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

// Subtitle fetches a listing page and returns its raw "area in city" heading.
func (e *DetailExtractor) Subtitle(ctx context.Context, url string) (string, error) {
	doc, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	node := doc.Find(selSubtitle).First()
	if node.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingNode, selSubtitle)
	}
	return strings.TrimSpace(node.Text()), nil
}
