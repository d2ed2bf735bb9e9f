package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"estate_scrooper/models"
	"estate_scrooper/normalize"
	"estate_scrooper/storage"
)

// ListingService is the normalization and persistence boundary for extracted
// listings.
type ListingService struct {
	store            storage.ListingStore
	dropWithoutPrice bool
	now              func() time.Time
}

func NewListingService(store storage.ListingStore, dropWithoutPrice bool) *ListingService {
	return &ListingService{
		store:            store,
		dropWithoutPrice: dropWithoutPrice,
		now:              time.Now,
	}
}

// Clean coerces a listing's typed fields in place so it satisfies the storage
// invariants: counts are non-negative, the publication date is a calendar
// date not in the future, age is an ordered range and condition is a known
// value. Invalid values become nil.
func (s *ListingService) Clean(l *models.Listing) {
	l.Size = normalize.SafeInt(l.Size)
	l.Price = normalize.SafeInt(l.Price)
	l.Rooms = normalize.SafeInt(l.Rooms)
	l.Bedrooms = normalize.SafeInt(l.Bedrooms)
	l.Bathrooms = normalize.SafeInt(l.Bathrooms)

	if l.DatePublished != nil {
		d := *l.DatePublished
		date := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		now := s.now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if date.After(today) {
			l.DatePublished = nil
		} else {
			l.DatePublished = &date
		}
	}

	if l.Age != nil && !orderedRange(*l.Age) {
		l.Age = nil
	}
	if l.Condition != nil && !l.Condition.Valid() {
		l.Condition = nil
	}
}

// Prepare cleans every listing and applies the price policy. It returns the
// listings to persist and how many were dropped for lacking a price.
func (s *ListingService) Prepare(listings []*models.Listing) ([]*models.Listing, int) {
	kept := listings[:0:0]
	dropped := 0
	for _, l := range listings {
		s.Clean(l)
		if s.dropWithoutPrice && l.Price == nil {
			dropped++
			continue
		}
		kept = append(kept, l)
	}
	return kept, dropped
}

// SaveBatch persists one city's listings in a single transaction. A failed
// batch is logged in full so it can be replayed.
func (s *ListingService) SaveBatch(ctx context.Context, city string, listings []*models.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	inserted, err := s.store.UpsertBatch(ctx, listings)
	if err != nil {
		urls := make([]string, len(listings))
		for i, l := range listings {
			urls[i] = l.URL
		}
		log.Printf("Batch for %s rolled back (%d listings): %v\nURLs: %s", city, len(listings), err, strings.Join(urls, " "))
		if raw, jerr := json.Marshal(listings); jerr == nil {
			log.Printf("Batch payload for %s: %s", city, raw)
		}
		return 0, fmt.Errorf("save batch for %s: %w", city, err)
	}
	return inserted, nil
}

func orderedRange(age string) bool {
	lo, hi, ok := strings.Cut(age, "-")
	if !ok {
		return false
	}
	from, err := strconv.Atoi(lo)
	if err != nil {
		return false
	}
	to, err := strconv.Atoi(hi)
	if err != nil {
		return false
	}
	return from <= to
}
