package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estate_scrooper/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// The pipeline is sequential; a small pool is plenty.
	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS properties (
			id             SERIAL PRIMARY KEY,
			url            TEXT NOT NULL UNIQUE,
			title          TEXT,
			description    TEXT,
			property_type  TEXT,
			city           TEXT,
			area           TEXT,
			size           INTEGER,
			rooms          INTEGER,
			bedrooms       INTEGER,
			bathrooms      INTEGER,
			price          BIGINT,
			features       TEXT,
			condition      TEXT,
			age            TEXT,
			date_published DATE,
			scraped_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_properties_city ON properties(city);
		CREATE INDEX IF NOT EXISTS idx_properties_date_published ON properties(date_published);
	`)
	return err
}

func (s *PostgresStore) Exists(ctx context.Context, url string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM properties WHERE url = $1`, url).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) UpsertBatch(ctx context.Context, listings []*models.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	for _, l := range listings {
		b.Queue(`
			INSERT INTO properties (
				url, title, description, property_type, city, area, size, rooms, bedrooms,
				bathrooms, price, features, condition, age, date_published
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (url) DO NOTHING`,
			l.URL, l.Title, l.Description, l.PropertyType, l.City, l.Area, l.Size, l.Rooms, l.Bedrooms,
			l.Bathrooms, l.Price, nullString(l.Features), conditionArg(l.Condition), l.Age, dateOnly(l.DatePublished),
		)
	}

	inserted := 0
	br := tx.SendBatch(ctx, b)
	for i := range listings {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("insert %s: %w", listings[i].URL, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) ListListings(ctx context.Context, filter ListingFilter) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM properties`
	args := []any{}
	if filter.City != "" {
		query += ` WHERE city = $1`
		args = append(args, filter.City)
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT %d OFFSET %d`, limitOrDefault(filter.Limit), max(filter.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *PostgresStore) ListMissingCity(ctx context.Context, afterID int64, limit int) ([]models.MissingCity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, url, area FROM properties
		WHERE (city IS NULL OR city = '') AND id > $1
		ORDER BY id
		LIMIT $2`, afterID, limitOrDefault(limit))
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

func (s *PostgresStore) UpdateAreaCity(ctx context.Context, url string, area, city *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE properties SET
			area = COALESCE($2, area),
			city = COALESCE($3, city)
		WHERE url = $1`, url, area, city)
	return err
}
