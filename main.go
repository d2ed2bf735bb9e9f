package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"estate_scrooper/api"
	"estate_scrooper/config"
	"estate_scrooper/export"
	"estate_scrooper/httputil"
	"estate_scrooper/logging"
	"estate_scrooper/models"
	"estate_scrooper/scheduler"
	"estate_scrooper/scraper"
	"estate_scrooper/storage"
	"estate_scrooper/workers"
)

var (
	scrapeNow   = flag.Bool("scrape", false, "Run scrape once and exit")
	cityFlag    = flag.String("city", "", "Restrict a one-shot scrape to this city")
	backfillNow = flag.Bool("backfill", false, "Fill in missing cities once and exit")
	exportPath  = flag.String("export", "", "Write stored listings to this CSV file and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogFile)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting estate_scrooper...")
	log.Printf("Loaded %d site configs", len(cfg.Sites))
	for id, site := range cfg.Sites {
		log.Printf("  - %s (%s): %d cities", site.Name, id, len(site.Cities))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Fatal: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// SQLite always holds runs, logs and commands.
	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open SQLite: %w", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	var listings storage.ListingStore = sqliteStore
	if cfg.Database.Enabled() {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("connect to Postgres: %w", err)
		}
		defer pgStore.Close()
		listings = pgStore
		log.Printf("Connected to Postgres: %s@%s:%s/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	}

	clients := httputil.NewClients(&cfg.Proxy, siteTimeout(cfg))
	orchestrator := scraper.NewOrchestrator(cfg, sqliteStore, listings, clients.Scraping)

	backfill := workers.NewBackfillWorker(listings,
		scraper.NewDetailExtractor(scraper.NewHTTPFetcher(clients.Scraping, siteUserAgent(cfg, orchestrator.GetSiteIDs()))),
		scraper.Delay{Min: time.Second, Max: 3 * time.Second})
	backfill.SetLogger(func(level models.LogLevel, source, message string) {
		log.Printf("[%s] %s: %s", level, source, message)
	})

	// One-shot commands
	switch {
	case *scrapeNow:
		log.Println("Running scrape...")
		if err := scrapeOnce(ctx, orchestrator, *cityFlag); err != nil {
			return err
		}
		log.Println("Scrape complete!")
		return nil
	case *backfillNow:
		stats, err := backfill.Drain(ctx, cfg.BackfillBatch)
		if err != nil {
			return err
		}
		log.Printf("Backfill complete: %d checked, %d updated, %d failed", stats.Checked, stats.Updated, stats.Failed)
		return nil
	case *exportPath != "":
		var uploader export.Uploader
		var up *storage.S3Uploader
		if cfg.S3.Bucket != "" {
			up, err = storage.NewS3Uploader(ctx, cfg.S3)
			if err != nil {
				return err
			}
			uploader = up
		}
		n, err := export.ToFile(ctx, listings, *exportPath, uploader)
		if err != nil {
			return err
		}
		log.Printf("Exported %d listings to %s", n, *exportPath)
		if up != nil {
			log.Printf("Uploaded export to %s", up.PublicURL(export.ObjectKey(*exportPath)))
		}
		return nil
	}

	// Daemon mode
	sched := scheduler.New(cfg, orchestrator, sqliteStore)
	sched.SetWorkers(backfill)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	go backfill.Run(ctx, cfg.BackfillBatch, 6*time.Hour)
	log.Println("Backfill worker started")

	if cfg.APIAddr != "" {
		handler := api.NewHandler(sqliteStore, listings, orchestrator.MarshalStatus)
		go func() {
			if err := api.Serve(ctx, cfg.APIAddr, handler); err != nil {
				log.Printf("API server error: %v", err)
			}
		}()
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")
	<-ctx.Done()

	log.Println("Shutting down...")
	return nil
}

func scrapeOnce(ctx context.Context, o *scraper.Orchestrator, city string) error {
	if city == "" {
		return o.RunAll(ctx)
	}
	for _, siteID := range o.GetSiteIDs() {
		if err := o.RunSite(ctx, siteID, city); err != nil {
			return err
		}
	}
	return nil
}

// siteTimeout picks the longest configured HTTP timeout for the shared client.
func siteTimeout(cfg *config.Config) time.Duration {
	var timeout time.Duration
	for _, site := range cfg.Sites {
		timeout = max(timeout, site.Timeout())
	}
	return timeout
}

func siteUserAgent(cfg *config.Config, siteIDs []string) string {
	if len(siteIDs) == 0 {
		return ""
	}
	return cfg.Sites[siteIDs[0]].UserAgent
}
