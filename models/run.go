package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type ScrapeRun struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	SiteID           string     `json:"site_id" db:"site_id"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	FinishedAt       *time.Time `json:"finished_at" db:"finished_at"`
	Status           RunStatus  `json:"status" db:"status"`
	CitiesDone       int        `json:"cities_done" db:"cities_done"`
	LinksFound       int        `json:"links_found" db:"links_found"`
	ListingsScraped  int        `json:"listings_scraped" db:"listings_scraped"`
	ListingsSkipped  int        `json:"listings_skipped" db:"listings_skipped"`
	ListingsDropped  int        `json:"listings_dropped" db:"listings_dropped"`
	ListingsInserted int        `json:"listings_inserted" db:"listings_inserted"`
	ErrorsCount      int        `json:"errors_count" db:"errors_count"`
}

// CityStats is the outcome of ingesting one city's search results.
type CityStats struct {
	City     string
	Links    int
	Scraped  int
	Skipped  int
	Dropped  int
	Inserted int
	Errors   int
}

func (r *ScrapeRun) Add(s CityStats) {
	r.CitiesDone++
	r.LinksFound += s.Links
	r.ListingsScraped += s.Scraped
	r.ListingsSkipped += s.Skipped
	r.ListingsDropped += s.Dropped
	r.ListingsInserted += s.Inserted
	r.ErrorsCount += s.Errors
}
