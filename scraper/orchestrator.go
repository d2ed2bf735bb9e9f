package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"estate_scrooper/config"
	"estate_scrooper/identity"
	"estate_scrooper/models"
	"estate_scrooper/services"
	"estate_scrooper/storage"
)

var ErrRunInProgress = errors.New("a scrape run is already in progress")

// Orchestrator runs the ingestion pipeline: for each configured city it
// crawls the search results, extracts every unseen listing, cleans the
// records and stores them as one batch. Cities are processed one after
// another and a failing city never stops the run.
type Orchestrator struct {
	cfg      *config.Config
	store    *storage.SQLiteStore
	listings storage.ListingStore
	client   *http.Client

	running sync.Mutex
	paused  atomic.Bool
}

func NewOrchestrator(cfg *config.Config, store *storage.SQLiteStore, listings storage.ListingStore, client *http.Client) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		listings: listings,
		client:   client,
	}
}

func (o *Orchestrator) RunAll(ctx context.Context) error {
	if o.paused.Load() {
		log.Println("Scraper is paused, skipping run")
		return nil
	}

	var errs []error
	for _, siteID := range o.GetSiteIDs() {
		if err := o.RunSite(ctx, siteID); err != nil {
			log.Printf("Error running site %s: %v", siteID, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunSite ingests the given cities of one site, or all of its configured
// cities when none are passed.
func (o *Orchestrator) RunSite(ctx context.Context, siteID string, cities ...string) error {
	site, ok := o.cfg.Sites[siteID]
	if !ok {
		return fmt.Errorf("unknown site: %s", siteID)
	}
	if len(cities) == 0 {
		cities = site.Cities
	}

	if !o.running.TryLock() {
		return ErrRunInProgress
	}
	defer o.running.Unlock()

	run := &models.ScrapeRun{
		SiteID:    siteID,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	if err := o.store.CreateRun(run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	o.log(run, models.LogLevelInfo, fmt.Sprintf("Starting scrape for %s (%d cities)", site.Name, len(cities)), "")

	defer func() {
		now := time.Now()
		run.FinishedAt = &now
		if run.Status == models.RunStatusRunning {
			run.Status = models.RunStatusCompleted
		}
		if err := o.store.UpdateRun(run); err != nil {
			log.Printf("Error updating run %s: %v", run.ID, err)
		}
	}()

	fetcher := NewHTTPFetcher(o.client, site.UserAgent)
	delay := Delay{Min: site.MinDelay(), Max: site.MaxDelay()}
	p := &pipeline{
		crawler:   NewListingCrawler(fetcher, o.listings, site.MaxPages, delay),
		extractor: NewDetailExtractor(fetcher),
		service:   services.NewListingService(o.listings, site.DropsWithoutPrice()),
		delay:     delay,
	}

	for _, city := range cities {
		if err := ctx.Err(); err != nil {
			run.Status = models.RunStatusFailed
			o.log(run, models.LogLevelWarn, fmt.Sprintf("Run cancelled: %v", err), city)
			return err
		}

		stats := o.ingestCity(ctx, run, p, identity.SearchURL(site.BaseURL, city, site.Intent), city)
		run.Add(stats)
	}

	o.log(run, models.LogLevelInfo,
		fmt.Sprintf("Completed: %d links, %d scraped, %d skipped, %d dropped, %d inserted, %d errors",
			run.LinksFound, run.ListingsScraped, run.ListingsSkipped, run.ListingsDropped,
			run.ListingsInserted, run.ErrorsCount), "")

	return nil
}

type pipeline struct {
	crawler   *ListingCrawler
	extractor *DetailExtractor
	service   *services.ListingService
	delay     Delay
}

func (o *Orchestrator) ingestCity(ctx context.Context, run *models.ScrapeRun, p *pipeline, searchURL, city string) models.CityStats {
	stats := models.CityStats{City: city}
	o.log(run, models.LogLevelInfo, fmt.Sprintf("Crawling %s", searchURL), city)

	candidates, err := p.crawler.Crawl(ctx, searchURL)
	if err != nil {
		stats.Errors++
		o.log(run, models.LogLevelWarn, fmt.Sprintf("Crawl stopped early: %v", err), city)
	}
	stats.Links = len(candidates)

	var extracted []*models.Listing
	for _, c := range candidates {
		// The first detail page follows the last search page, so it waits too.
		if err := p.delay.Wait(ctx); err != nil {
			break
		}

		result := p.extractor.Extract(ctx, c.URL)
		if !result.OK() {
			stats.Skipped++
			o.log(run, models.LogLevelWarn, fmt.Sprintf("Skipped listing from page %d: %v", c.Page, result.Skip), city)
			continue
		}

		if c.DatePublished != nil {
			result.Listing.DatePublished = c.DatePublished
		}
		extracted = append(extracted, result.Listing)
	}
	stats.Scraped = len(extracted)

	batch, dropped := p.service.Prepare(extracted)
	stats.Dropped = dropped

	inserted, err := p.service.SaveBatch(ctx, city, batch)
	if err != nil {
		stats.Errors++
		o.log(run, models.LogLevelError, err.Error(), city)
		return stats
	}
	stats.Inserted = inserted

	o.log(run, models.LogLevelInfo,
		fmt.Sprintf("City done: %d links, %d scraped, %d skipped, %d dropped, %d inserted",
			stats.Links, stats.Scraped, stats.Skipped, stats.Dropped, stats.Inserted), city)
	return stats
}

func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := o.store.ParseCommandParams(cmd)
	if err != nil {
		return err
	}

	switch cmd.Command {
	case models.CmdScrapeNow:
		if params.Site != "" {
			return o.RunSite(ctx, params.Site)
		}
		return o.RunAll(ctx)
	case models.CmdScrapeCity:
		if params.City == "" {
			return fmt.Errorf("%s: missing city", cmd.Command)
		}
		siteID := params.Site
		if siteID == "" {
			ids := o.GetSiteIDs()
			if len(ids) == 0 {
				return fmt.Errorf("no sites configured")
			}
			siteID = ids[0]
		}
		return o.RunSite(ctx, siteID, params.City)
	case models.CmdPause:
		o.paused.Store(true)
		log.Println("Scraper paused")
	case models.CmdResume:
		o.paused.Store(false)
		log.Println("Scraper resumed")
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}

	return nil
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

func (o *Orchestrator) log(run *models.ScrapeRun, level models.LogLevel, message, city string) {
	if city != "" {
		log.Printf("[%s] %s/%s: %s", level, run.SiteID, city, message)
	} else {
		log.Printf("[%s] %s: %s", level, run.SiteID, message)
	}
	if err := o.store.Log(run.ID, level, message, city); err != nil {
		log.Printf("Error persisting log line: %v", err)
	}
}

func (o *Orchestrator) GetSiteIDs() []string {
	ids := make([]string, 0, len(o.cfg.Sites))
	for id := range o.cfg.Sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (o *Orchestrator) MarshalStatus() ([]byte, error) {
	status := map[string]interface{}{
		"paused": o.paused.Load(),
		"sites":  o.GetSiteIDs(),
	}
	return json.Marshal(status)
}
