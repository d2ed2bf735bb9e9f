package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"estate_scrooper/models"
	"estate_scrooper/storage"
)

type fakeStore struct {
	storage.ListingStore
	err     error
	batches [][]*models.Listing
}

func (f *fakeStore) UpsertBatch(_ context.Context, listings []*models.Listing) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.batches = append(f.batches, listings)
	return len(listings), nil
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func newTestService(store storage.ListingStore, drop bool) *ListingService {
	s := NewListingService(store, drop)
	s.now = func() time.Time { return time.Date(2024, 6, 10, 23, 30, 0, 0, time.UTC) }
	return s
}

func TestClean(t *testing.T) {
	s := newTestService(nil, true)
	published := time.Date(2024, 6, 9, 18, 45, 0, 0, time.UTC)
	bogus := models.Condition("Ruined")

	l := &models.Listing{
		URL:           "https://x/1",
		Price:         intPtr(-5),
		Size:          intPtr(120),
		Rooms:         intPtr(3),
		Age:           strPtr("10-5"),
		Condition:     &bogus,
		DatePublished: &published,
	}
	s.Clean(l)

	if l.Price != nil {
		t.Fatalf("negative price should be cleared, got %d", *l.Price)
	}
	if l.Size == nil || *l.Size != 120 || l.Rooms == nil || *l.Rooms != 3 {
		t.Fatalf("valid counts changed: size=%v rooms=%v", l.Size, l.Rooms)
	}
	if l.Age != nil {
		t.Fatalf("inverted age should be cleared, got %s", *l.Age)
	}
	if l.Condition != nil {
		t.Fatalf("unknown condition should be cleared, got %s", *l.Condition)
	}
	want := time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)
	if l.DatePublished == nil || !l.DatePublished.Equal(want) {
		t.Fatalf("expected date %v, got %v", want, l.DatePublished)
	}
}

func TestClean_KeepsValidValues(t *testing.T) {
	s := newTestService(nil, true)
	good := models.ConditionGood
	l := &models.Listing{URL: "https://x/1", Age: strPtr("5-10"), Condition: &good}
	s.Clean(l)

	if l.Age == nil || *l.Age != "5-10" {
		t.Fatalf("expected age 5-10, got %v", l.Age)
	}
	if l.Condition == nil || *l.Condition != models.ConditionGood {
		t.Fatalf("expected condition Good, got %v", l.Condition)
	}
}

func TestClean_FutureDate(t *testing.T) {
	s := newTestService(nil, true)
	tomorrow := time.Date(2024, 6, 11, 1, 0, 0, 0, time.UTC)
	l := &models.Listing{URL: "https://x/1", DatePublished: &tomorrow}
	s.Clean(l)

	if l.DatePublished != nil {
		t.Fatalf("future date should be cleared, got %v", l.DatePublished)
	}
}

func TestPrepare_DropWithoutPrice(t *testing.T) {
	listings := func() []*models.Listing {
		return []*models.Listing{
			{URL: "https://x/1", Price: intPtr(5000)},
			{URL: "https://x/2"},
			{URL: "https://x/3", Price: intPtr(0)},
		}
	}

	kept, dropped := newTestService(nil, true).Prepare(listings())
	if len(kept) != 2 || dropped != 1 {
		t.Fatalf("expected 2 kept and 1 dropped, got %d and %d", len(kept), dropped)
	}
	if kept[0].URL != "https://x/1" || kept[1].URL != "https://x/3" {
		t.Fatalf("unexpected order %s, %s", kept[0].URL, kept[1].URL)
	}

	kept, dropped = newTestService(nil, false).Prepare(listings())
	if len(kept) != 3 || dropped != 0 {
		t.Fatalf("policy off: expected 3 kept, got %d (dropped %d)", len(kept), dropped)
	}
}

func TestSaveBatch(t *testing.T) {
	store := &fakeStore{}
	s := newTestService(store, true)

	n, err := s.SaveBatch(context.Background(), "rabat", nil)
	if err != nil || n != 0 || len(store.batches) != 0 {
		t.Fatalf("empty batch should not reach the store: n=%d err=%v", n, err)
	}

	n, err = s.SaveBatch(context.Background(), "rabat", []*models.Listing{{URL: "https://x/1"}})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 inserted, got %d, %v", n, err)
	}

	store.err = errors.New("connection reset")
	n, err = s.SaveBatch(context.Background(), "rabat", []*models.Listing{{URL: "https://x/2"}})
	if !errors.Is(err, store.err) || n != 0 {
		t.Fatalf("expected wrapped store error and 0 inserted, got %d, %v", n, err)
	}
}
