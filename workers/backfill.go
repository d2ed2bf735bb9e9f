package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"estate_scrooper/models"
	"estate_scrooper/normalize"
	"estate_scrooper/scraper"
	"estate_scrooper/storage"
)

const defaultBatchSize = 50

// SubtitleSource re-reads the "area in city" heading of a stored listing.
type SubtitleSource interface {
	Subtitle(ctx context.Context, url string) (string, error)
}

// BackfillWorker fills in the city (and area) of stored listings that were
// saved without one. It never touches any other field.
type BackfillWorker struct {
	store     storage.ListingStore
	source    SubtitleSource
	delay     scraper.Delay
	logf      LogFunc
	triggerCh chan struct{}

	// cursor is the id of the last listing checked. Rows that cannot be
	// fixed stay behind it, so later passes reach the rest of the backlog.
	cursor int64
}

type BackfillStats struct {
	Checked int
	Updated int
	Failed  int
}

func NewBackfillWorker(store storage.ListingStore, source SubtitleSource, delay scraper.Delay) *BackfillWorker {
	return &BackfillWorker{
		store:     store,
		source:    source,
		delay:     delay,
		logf:      NoOpLogger,
		triggerCh: make(chan struct{}, 1),
	}
}

func (w *BackfillWorker) SetLogger(fn LogFunc) {
	if fn != nil {
		w.logf = fn
	}
}

// Trigger causes the worker to run immediately
func (w *BackfillWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *BackfillWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Backfill worker stopping")
			return
		case <-ticker.C:
		case <-w.triggerCh:
		}

		if _, err := w.RunOnce(ctx, batchSize); err != nil {
			log.Printf("Backfill: %v", err)
		}
	}
}

// RunOnce patches up to batchSize listings, continuing after the last one
// checked by the previous pass. A short page ends the sweep and the next pass
// starts again from the oldest listing.
// Listings whose city cannot be recovered are counted as failed and left
// unchanged.
func (w *BackfillWorker) RunOnce(ctx context.Context, batchSize int) (BackfillStats, error) {
	var stats BackfillStats

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if batchSize > storage.MaxPageSize {
		batchSize = storage.MaxPageSize
	}

	missing, err := w.store.ListMissingCity(ctx, w.cursor, batchSize)
	if err != nil {
		return stats, fmt.Errorf("list missing city: %w", err)
	}
	if len(missing) < batchSize {
		defer func() { w.cursor = 0 }()
	}
	if len(missing) == 0 {
		return stats, nil
	}

	log.Printf("Backfill: %d listings without a city", len(missing))

	fetched := false
	for _, m := range missing {
		w.cursor = m.ID
		stats.Checked++

		var text string
		if m.Area != nil {
			text = *m.Area
		} else {
			if fetched {
				if err := w.delay.Wait(ctx); err != nil {
					return stats, err
				}
			}
			fetched = true

			text, err = w.source.Subtitle(ctx, m.URL)
			if err != nil {
				stats.Failed++
				w.logf(models.LogLevelWarn, "backfill", fmt.Sprintf("could not re-fetch %s: %v", m.URL, err))
				continue
			}
		}

		area, city := normalize.ParseAreaAndCity(text)
		if city == nil {
			stats.Failed++
			w.logf(models.LogLevelWarn, "backfill", fmt.Sprintf("no city in %q for %s", text, m.URL))
			continue
		}

		if err := w.store.UpdateAreaCity(ctx, m.URL, area, city); err != nil {
			stats.Failed++
			log.Printf("Backfill: update %s: %v", m.URL, err)
			continue
		}
		stats.Updated++
	}

	log.Printf("Backfill: %d checked, %d updated, %d failed", stats.Checked, stats.Updated, stats.Failed)
	return stats, nil
}

// Drain runs passes of batchSize until the whole backlog has been checked once.
func (w *BackfillWorker) Drain(ctx context.Context, batchSize int) (BackfillStats, error) {
	var total BackfillStats
	w.cursor = 0
	for {
		stats, err := w.RunOnce(ctx, batchSize)
		total.Checked += stats.Checked
		total.Updated += stats.Updated
		total.Failed += stats.Failed
		if err != nil || w.cursor == 0 {
			return total, err
		}
	}
}
