package scraper

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"estate_scrooper/models"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

// fixtureFetcher serves testdata files by URL.
type fixtureFetcher struct {
	t     *testing.T
	pages map[string]string
}

func (f *fixtureFetcher) Fetch(_ context.Context, url string) (*goquery.Document, error) {
	name, ok := f.pages[url]
	if !ok {
		return nil, ErrUnexpectedStatus
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(loadFixture(f.t, name)))
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 10, 15, 4, 5, 0, time.UTC)
}

func newTestExtractor(t *testing.T, pages map[string]string) *DetailExtractor {
	e := NewDetailExtractor(&fixtureFetcher{t: t, pages: pages})
	e.now = fixedNow
	return e
}

func TestExtract_Villa(t *testing.T) {
	url := "https://www.mubawab.ma/en/a/1001/villa-downtown"
	e := newTestExtractor(t, map[string]string{url: "detail_villa.html"})

	result := e.Extract(context.Background(), url)
	if !result.OK() {
		t.Fatalf("expected listing, got skip: %v", result.Skip)
	}
	l := result.Listing

	if l.URL != url {
		t.Fatalf("unexpected URL %s", l.URL)
	}
	if l.Price == nil || *l.Price != 1200000 {
		t.Fatalf("expected price 1200000, got %v", l.Price)
	}
	if l.City == nil || *l.City != "Casablanca" {
		t.Fatalf("expected city Casablanca, got %v", l.City)
	}
	if l.Area == nil || *l.Area != "Downtown" {
		t.Fatalf("expected area Downtown, got %v", l.Area)
	}
	if l.PropertyType == nil || *l.PropertyType != "Villa" {
		t.Fatalf("expected property type Villa, got %v", l.PropertyType)
	}
	if l.Condition == nil || *l.Condition != models.ConditionGood {
		t.Fatalf("expected condition Good, got %v", l.Condition)
	}
	if l.Age != nil {
		t.Fatalf("expected no age, got %s", *l.Age)
	}
	if l.Features != "Balcony, Garage, Elevator" {
		t.Fatalf("unexpected features %q", l.Features)
	}
	if l.Title == nil || *l.Title != "Beautiful Villa in Downtown" {
		t.Fatalf("unexpected title %v", l.Title)
	}
	if l.Description == nil || *l.Description != "Stunning villa with a private garden. Close to schools and the tram." {
		t.Fatalf("unexpected description %v", l.Description)
	}
	if l.Size == nil || *l.Size != 350 {
		t.Fatalf("expected size 350, got %v", l.Size)
	}
	if l.Rooms == nil || *l.Rooms != 6 {
		t.Fatalf("expected 6 rooms, got %v", l.Rooms)
	}
	if l.Bedrooms == nil || *l.Bedrooms != 4 {
		t.Fatalf("expected 4 bedrooms, got %v", l.Bedrooms)
	}
	if l.Bathrooms == nil || *l.Bathrooms != 3 {
		t.Fatalf("expected 3 bathrooms, got %v", l.Bathrooms)
	}
	want := time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC)
	if l.DatePublished == nil || !l.DatePublished.Equal(want) {
		t.Fatalf("expected date %v, got %v", want, l.DatePublished)
	}
}

func TestExtract_SparsePage(t *testing.T) {
	url := "https://www.mubawab.ma/en/a/2002/apartment-agdal"
	e := newTestExtractor(t, map[string]string{url: "detail_sparse.html"})

	result := e.Extract(context.Background(), url)
	if !result.OK() {
		t.Fatalf("expected listing, got skip: %v", result.Skip)
	}
	l := result.Listing

	if l.Price != nil {
		t.Fatalf("expected no price, got %d", *l.Price)
	}
	if l.Area != nil {
		t.Fatalf("expected no area, got %s", *l.Area)
	}
	if l.City == nil || *l.City != "Agdal" {
		t.Fatalf("expected city Agdal, got %v", l.City)
	}
	if l.Title != nil {
		t.Fatalf("expected no title, got %s", *l.Title)
	}
	if l.Condition != nil {
		t.Fatalf("expected Due for reform to have no condition, got %s", *l.Condition)
	}
	if l.Age == nil || *l.Age != "10-20" {
		t.Fatalf("expected age 10-20, got %v", l.Age)
	}
	if l.Rooms == nil || *l.Rooms != 3 {
		t.Fatalf("expected rooms from description fallback, got %v", l.Rooms)
	}
	if l.Bedrooms != nil || l.Size != nil {
		t.Fatalf("expected no structured attributes, got bedrooms=%v size=%v", l.Bedrooms, l.Size)
	}
	if l.Features != "" {
		t.Fatalf("expected no features, got %q", l.Features)
	}
	want := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	if l.DatePublished == nil || !l.DatePublished.Equal(want) {
		t.Fatalf("expected today, got %v", l.DatePublished)
	}
}

func TestExtract_MissingPriceHeadingSkips(t *testing.T) {
	url := "https://www.mubawab.ma/en/a/3003/studio"
	e := newTestExtractor(t, map[string]string{url: "detail_no_price.html"})

	result := e.Extract(context.Background(), url)
	if result.OK() {
		t.Fatalf("expected skip, got listing %+v", result.Listing)
	}
	if result.Skip.Reason != SkipStructure {
		t.Fatalf("expected structure skip, got %s", result.Skip.Reason)
	}
	if !errors.Is(result.Skip, ErrMissingNode) {
		t.Fatalf("expected ErrMissingNode, got %v", result.Skip.Err)
	}
}

func TestExtract_FetchFailureSkips(t *testing.T) {
	e := newTestExtractor(t, nil)

	result := e.Extract(context.Background(), "https://www.mubawab.ma/en/a/404")
	if result.OK() {
		t.Fatalf("expected skip")
	}
	if result.Skip.Reason != SkipFetch {
		t.Fatalf("expected fetch skip, got %s", result.Skip.Reason)
	}
	if result.Skip.URL != "https://www.mubawab.ma/en/a/404" {
		t.Fatalf("skip lost its URL: %s", result.Skip.URL)
	}
}

func TestPublishedDate(t *testing.T) {
	now := fixedNow()
	tests := []struct {
		name string
		html string
		want *time.Time
	}{
		{"today", `<div class="controlBar sMargTop"><span class="listingDetails iconPadR"><i></i>Published today</span></div>`, ptrTime(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))},
		{"days ago", `<div class="controlBar sMargTop"><span class="listingDetails iconPadR"><i></i> Published 12 days ago</span></div>`, ptrTime(time.Date(2024, 5, 29, 0, 0, 0, 0, time.UTC))},
		{"no icon", `<div class="controlBar sMargTop"><span class="listingDetails iconPadR">Published today</span></div>`, nil},
		{"no number", `<div class="controlBar sMargTop"><span class="listingDetails iconPadR"><i></i>Published recently</span></div>`, nil},
		{"no span", `<div class="controlBar sMargTop"></div>`, nil},
		{"no bar", `<div></div>`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(tt.html)))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got := publishedDate(doc.Find(selControlBar).First(), now)
			switch {
			case tt.want == nil && got != nil:
				t.Fatalf("expected nil, got %v", got)
			case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestSubtitle(t *testing.T) {
	url := "https://www.mubawab.ma/en/a/1001/villa-downtown"
	e := newTestExtractor(t, map[string]string{url: "detail_villa.html"})

	got, err := e.Subtitle(context.Background(), url)
	if err != nil {
		t.Fatalf("subtitle failed: %v", err)
	}
	if got != "Downtown in Casablanca" {
		t.Fatalf("unexpected subtitle %q", got)
	}
}
