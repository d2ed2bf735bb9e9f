package scraper

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"

	"estate_scrooper/identity"
	"estate_scrooper/models"
	"estate_scrooper/storage"
)

const (
	selCard     = "li.listingBox"
	selCardLink = "h2.listingTit a[href]"
	selNextPage = "a.arrowDot"
)

// ListingCrawler walks the paginated search results for one city and collects
// links to listings that are not stored yet.
type ListingCrawler struct {
	fetcher  Fetcher
	store    storage.ListingStore
	maxPages int
	delay    Delay
	now      func() time.Time
}

// NewListingCrawler builds a crawler. store may be nil, in which case every
// link found is returned.
func NewListingCrawler(fetcher Fetcher, store storage.ListingStore, maxPages int, delay Delay) *ListingCrawler {
	return &ListingCrawler{
		fetcher:  fetcher,
		store:    store,
		maxPages: maxPages,
		delay:    delay,
		now:      time.Now,
	}
}

// PageURL is the results page n of a search.
func PageURL(searchURL string, page int) string {
	return searchURL + ":p:" + strconv.Itoa(page)
}

// Crawl collects candidates in page then card order. It stops at the first
// page without cards, when there is no next page, or after maxPages. A fetch
// failure also stops the crawl; the links gathered so far are returned along
// with the error.
func (c *ListingCrawler) Crawl(ctx context.Context, searchURL string) ([]models.LinkCandidate, error) {
	var candidates []models.LinkCandidate

	for page := 1; page <= c.maxPages; page++ {
		pageURL := PageURL(searchURL, page)

		doc, err := c.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return candidates, fmt.Errorf("page %d (%s): %w", page, pageURL, err)
		}

		cards := doc.Find(selCard)
		if cards.Length() == 0 {
			log.Printf("Crawler: no listings on page %d, stopping", page)
			break
		}

		found := c.collect(ctx, cards, pageURL, page)
		candidates = append(candidates, found...)
		log.Printf("Crawler: page %d: %d cards, %d new (total: %d)", page, cards.Length(), len(found), len(candidates))

		if doc.Find(selNextPage).Length() == 0 {
			log.Printf("Crawler: no next page after page %d, stopping", page)
			break
		}
		if page == c.maxPages {
			break
		}

		if err := c.delay.Wait(ctx); err != nil {
			return candidates, err
		}
	}

	return candidates, nil
}

func (c *ListingCrawler) collect(ctx context.Context, cards *goquery.Selection, pageURL string, page int) []models.LinkCandidate {
	now := c.now()
	var found []models.LinkCandidate

	cards.Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find(selCardLink).First().Attr("href")
		if !ok {
			return
		}
		link, err := identity.CanonicalURL(pageURL, href)
		if err != nil {
			log.Printf("Crawler: bad link %q on page %d: %v", href, page, err)
			return
		}

		if c.store != nil {
			seen, err := c.store.Exists(ctx, link)
			if err != nil {
				log.Printf("Crawler: exists check failed for %s: %v", link, err)
			} else if seen {
				return
			}
		}

		found = append(found, models.LinkCandidate{
			URL:           link,
			DatePublished: publishedDate(card.Find(selControlBar).First(), now),
			Page:          page,
		})
	})

	return found
}
