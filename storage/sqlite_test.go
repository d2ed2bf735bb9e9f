package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"estate_scrooper/config"
	"estate_scrooper/models"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func sampleListing(url string) *models.Listing {
	published := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	cond := models.ConditionGood
	return &models.Listing{
		URL:           url,
		Title:         strPtr("Bright flat"),
		PropertyType:  strPtr("Apartment"),
		City:          strPtr("Casablanca"),
		Area:          strPtr("Maarif"),
		Size:          intPtr(85),
		Rooms:         intPtr(3),
		Price:         intPtr(7500),
		Features:      "Terrace, Elevator",
		Condition:     &cond,
		Age:           strPtr("5-10"),
		DatePublished: &published,
	}
}

func TestSQLiteUpsertBatchIsIdempotent(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	batch := []*models.Listing{sampleListing("https://x/a"), sampleListing("https://x/b")}
	n, err := store.UpsertBatch(ctx, batch)
	if err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if n != 2 {
		t.Fatalf("first insert = %d, want 2", n)
	}

	n, err = store.UpsertBatch(ctx, append(batch, sampleListing("https://x/c")))
	if err != nil {
		t.Fatalf("UpsertBatch again: %v", err)
	}
	if n != 1 {
		t.Fatalf("second insert = %d, want 1", n)
	}

	n, err = store.UpsertBatch(ctx, nil)
	if err != nil || n != 0 {
		t.Fatalf("empty batch = %d, %v", n, err)
	}
}

func TestSQLiteExists(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	if ok, err := store.Exists(ctx, "https://x/a"); err != nil || ok {
		t.Fatalf("Exists before insert = %v, %v", ok, err)
	}
	if _, err := store.UpsertBatch(ctx, []*models.Listing{sampleListing("https://x/a")}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if ok, err := store.Exists(ctx, "https://x/a"); err != nil || !ok {
		t.Fatalf("Exists after insert = %v, %v", ok, err)
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	bare := &models.Listing{URL: "https://x/bare"}
	if _, err := store.UpsertBatch(ctx, []*models.Listing{sampleListing("https://x/a"), bare}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	got, err := store.ListListings(ctx, ListingFilter{City: "Casablanca"})
	if err != nil {
		t.Fatalf("ListListings: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d listings, want 1", len(got))
	}
	l := got[0]
	if l.Price == nil || *l.Price != 7500 {
		t.Errorf("price = %v", l.Price)
	}
	if l.Condition == nil || *l.Condition != models.ConditionGood {
		t.Errorf("condition = %v", l.Condition)
	}
	if l.Features != "Terrace, Elevator" {
		t.Errorf("features = %q", l.Features)
	}
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if l.DatePublished == nil || !l.DatePublished.Equal(want) {
		t.Errorf("date_published = %v, want %v", l.DatePublished, want)
	}
	if l.ScrapedAt == nil {
		t.Errorf("scraped_at not defaulted")
	}

	all, err := store.ListListings(ctx, ListingFilter{})
	if err != nil {
		t.Fatalf("ListListings all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d listings, want 2", len(all))
	}
	for _, l := range all {
		if l.URL == bare.URL && (l.Price != nil || l.Condition != nil || l.Features != "") {
			t.Errorf("bare listing gained values: %+v", l)
		}
	}
}

func TestSQLiteUpsertBatchRollsBackOnError(t *testing.T) {
	store := newTestSQLite(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.UpsertBatch(ctx, []*models.Listing{sampleListing("https://x/a")}); err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if ok, _ := store.Exists(context.Background(), "https://x/a"); ok {
		t.Fatal("listing persisted despite failed batch")
	}
}

func TestSQLiteBackfillQueries(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	noCity := sampleListing("https://x/nocity")
	noCity.City = nil
	empty := sampleListing("https://x/empty")
	empty.City = strPtr("")
	empty.Area = nil
	if _, err := store.UpsertBatch(ctx, []*models.Listing{sampleListing("https://x/ok"), noCity, empty}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	missing, err := store.ListMissingCity(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListMissingCity: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("missing = %d, want 2", len(missing))
	}

	if err := store.UpdateAreaCity(ctx, "https://x/nocity", nil, strPtr("Rabat")); err != nil {
		t.Fatalf("UpdateAreaCity: %v", err)
	}
	got, err := store.ListListings(ctx, ListingFilter{City: "Rabat"})
	if err != nil {
		t.Fatalf("ListListings: %v", err)
	}
	if len(got) != 1 || got[0].Area == nil || *got[0].Area != "Maarif" {
		t.Fatalf("area should survive a nil update: %+v", got)
	}
}

func TestSQLiteRunsAndLogs(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	run := &models.ScrapeRun{SiteID: "mubawab_rent", StartedAt: time.Now(), Status: models.RunStatusRunning}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.ID == uuid.Nil {
		t.Fatal("run id not assigned")
	}

	run.Add(models.CityStats{City: "Rabat", Links: 4, Scraped: 3, Skipped: 1, Inserted: 3})
	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	if err := store.UpdateRun(run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	if err := store.Log(run.ID, models.LogLevelInfo, "done", "Rabat"); err != nil {
		t.Fatalf("Log: %v", err)
	}

	runs, err := store.ListRuns(ctx, 5)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID || runs[0].ListingsInserted != 3 || runs[0].Status != models.RunStatusCompleted {
		t.Fatalf("runs = %+v", runs)
	}

	logs, err := store.ListLogs(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].City != "Rabat" || logs[0].Message != "done" {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestSQLiteCommands(t *testing.T) {
	store := newTestSQLite(t)

	id, err := store.CreateCommand(models.CmdScrapeCity, &models.CommandParams{Site: "mubawab_rent", City: "Tanger"})
	if err != nil {
		t.Fatalf("CreateCommand: %v", err)
	}
	if _, err := store.CreateCommand(models.CmdPause, nil); err != nil {
		t.Fatalf("CreateCommand: %v", err)
	}

	cmds, err := store.GetPendingCommands()
	if err != nil {
		t.Fatalf("GetPendingCommands: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("pending = %d, want 2", len(cmds))
	}

	params, err := store.ParseCommandParams(&cmds[0])
	if err != nil {
		t.Fatalf("ParseCommandParams: %v", err)
	}
	if params.City != "Tanger" {
		t.Errorf("city = %q", params.City)
	}
	params, err = store.ParseCommandParams(&cmds[1])
	if err != nil || params.City != "" {
		t.Errorf("empty params = %+v, %v", params, err)
	}

	if err := store.MarkCommandProcessed(id); err != nil {
		t.Fatalf("MarkCommandProcessed: %v", err)
	}
	cmds, _ = store.GetPendingCommands()
	if len(cmds) != 1 {
		t.Fatalf("pending after processing = %d, want 1", len(cmds))
	}
}

func TestObjectURL(t *testing.T) {
	aws := ObjectURL(config.S3Config{Bucket: "b", Region: "eu-west-3"}, "exports/p.csv")
	if aws != "https://b.s3.eu-west-3.amazonaws.com/exports/p.csv" {
		t.Errorf("aws url = %s", aws)
	}
	minio := ObjectURL(config.S3Config{Bucket: "b", Endpoint: "http://localhost:9000/"}, "p.csv")
	if minio != "http://localhost:9000/b/p.csv" {
		t.Errorf("endpoint url = %s", minio)
	}
}
