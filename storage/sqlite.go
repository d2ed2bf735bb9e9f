package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"estate_scrooper/models"
)

// SQLiteStore keeps operational data (runs, logs, commands) and, when no
// Postgres database is configured, the listings themselves.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS properties (
		id INTEGER PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		title TEXT,
		description TEXT,
		property_type TEXT,
		city TEXT,
		area TEXT,
		size INTEGER,
		rooms INTEGER,
		bedrooms INTEGER,
		bathrooms INTEGER,
		price INTEGER,
		features TEXT,
		condition TEXT,
		age TEXT,
		date_published DATE,
		scraped_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS scrape_runs (
		id TEXT PRIMARY KEY,
		site_id TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		cities_done INTEGER DEFAULT 0,
		links_found INTEGER DEFAULT 0,
		listings_scraped INTEGER DEFAULT 0,
		listings_skipped INTEGER DEFAULT 0,
		listings_dropped INTEGER DEFAULT 0,
		listings_inserted INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		city TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_properties_city ON properties(city);
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON scrape_runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Listings
// =============================================================================

func (s *SQLiteStore) Exists(ctx context.Context, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM properties WHERE url = ?`, url).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) UpsertBatch(ctx context.Context, listings []*models.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO properties (
			url, title, description, property_type, city, area, size, rooms, bedrooms,
			bathrooms, price, features, condition, age, date_published
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, l := range listings {
		res, err := stmt.ExecContext(ctx,
			l.URL, l.Title, l.Description, l.PropertyType, l.City, l.Area, l.Size, l.Rooms, l.Bedrooms,
			l.Bathrooms, l.Price, nullString(l.Features), conditionArg(l.Condition), l.Age, dateArg(l.DatePublished))
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", l.URL, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(inserted), nil
}

func (s *SQLiteStore) ListListings(ctx context.Context, filter ListingFilter) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM properties`
	args := []any{}
	if filter.City != "" {
		query += ` WHERE city = ?`
		args = append(args, filter.City)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limitOrDefault(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *SQLiteStore) ListMissingCity(ctx context.Context, afterID int64, limit int) ([]models.MissingCity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, area FROM properties
		WHERE (city IS NULL OR city = '') AND id > ?
		ORDER BY id
		LIMIT ?`, afterID, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missing []models.MissingCity
	for rows.Next() {
		var m models.MissingCity
		if err := rows.Scan(&m.ID, &m.URL, &m.Area); err != nil {
			return nil, err
		}
		missing = append(missing, m)
	}
	return missing, rows.Err()
}

func (s *SQLiteStore) UpdateAreaCity(ctx context.Context, url string, area, city *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE properties SET
			area = COALESCE(?, area),
			city = COALESCE(?, city)
		WHERE url = ?`, area, city, url)
	return err
}

func dateArg(t *time.Time) *string {
	d := dateOnly(t)
	if d == nil {
		return nil
	}
	s := d.Format("2006-01-02")
	return &s
}

// =============================================================================
// Runs & logs
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := s.db.Exec(`
		INSERT INTO scrape_runs (id, site_id, started_at, status)
		VALUES (?, ?, ?, ?)`,
		run.ID, run.SiteID, run.StartedAt, run.Status)
	return err
}

func (s *SQLiteStore) UpdateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET finished_at = ?, status = ?, cities_done = ?, links_found = ?,
			listings_scraped = ?, listings_skipped = ?, listings_dropped = ?,
			listings_inserted = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.CitiesDone, run.LinksFound,
		run.ListingsScraped, run.ListingsSkipped, run.ListingsDropped,
		run.ListingsInserted, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]models.ScrapeRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, site_id, started_at, finished_at, status, cities_done, links_found,
			listings_scraped, listings_skipped, listings_dropped, listings_inserted, errors_count
		FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.ScrapeRun
	for rows.Next() {
		var r models.ScrapeRun
		if err := rows.Scan(&r.ID, &r.SiteID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.CitiesDone,
			&r.LinksFound, &r.ListingsScraped, &r.ListingsSkipped, &r.ListingsDropped,
			&r.ListingsInserted, &r.ErrorsCount); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Log(runID uuid.UUID, level models.LogLevel, message, city string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, message, city)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, city)
	return err
}

func (s *SQLiteStore) ListLogs(ctx context.Context, runID uuid.UUID) ([]models.ScrapeLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, timestamp, level, message, city
		FROM scrape_logs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ScrapeLog
	for rows.Next() {
		var l models.ScrapeLog
		var city sql.NullString
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Message, &city); err != nil {
			return nil, err
		}
		l.City = city.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) CreateCommand(cmd models.CommandType, params *models.CommandParams) (int64, error) {
	var raw []byte
	if params != nil {
		var err error
		if raw, err = json.Marshal(params); err != nil {
			return 0, err
		}
	}
	result, err := s.db.Exec(`INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, string(raw), time.Now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid && params.String != "" {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}
