package storage

import (
	"context"
	"time"

	"estate_scrooper/models"
)

// ListingStore is the durable record of ingested listings, keyed by URL.
type ListingStore interface {
	// Exists reports whether a listing with this URL was already ingested.
	Exists(ctx context.Context, url string) (bool, error)
	// UpsertBatch inserts the listings in one transaction, silently skipping
	// URLs that are already stored, and returns how many rows were added.
	// On error nothing from the batch is committed.
	UpsertBatch(ctx context.Context, listings []*models.Listing) (int, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]*models.Listing, error)
	// ListMissingCity pages through listings without a city in id order,
	// starting after afterID.
	ListMissingCity(ctx context.Context, afterID int64, limit int) ([]models.MissingCity, error)
	UpdateAreaCity(ctx context.Context, url string, area, city *string) error
	Close() error
}

// ListingFilter selects stored listings, newest first.
type ListingFilter struct {
	City   string
	Limit  int
	Offset int
}

const MaxPageSize = 1000

const listingColumns = `url, title, description, property_type, city, area, size, rooms, bedrooms,
	bathrooms, price, features, condition, age, date_published, scraped_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	var features, condition *string
	if err := row.Scan(&l.URL, &l.Title, &l.Description, &l.PropertyType, &l.City, &l.Area,
		&l.Size, &l.Rooms, &l.Bedrooms, &l.Bathrooms, &l.Price, &features, &condition,
		&l.Age, &l.DatePublished, &l.ScrapedAt); err != nil {
		return nil, err
	}
	if features != nil {
		l.Features = *features
	}
	if condition != nil {
		c := models.Condition(*condition)
		l.Condition = &c
	}
	return &l, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func conditionArg(c *models.Condition) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
