// Package export flattens stored listings into a CSV file.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"estate_scrooper/models"
	"estate_scrooper/storage"
)

var Header = []string{
	"url", "title", "description", "property_type", "city", "area", "size", "rooms",
	"bedrooms", "bathrooms", "price", "features", "condition", "age", "date_published", "scraped_at",
}

// Uploader is the subset of storage.S3Uploader the exporter needs.
type Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
}

func WriteCSV(w io.Writer, listings []*models.Listing) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, l := range listings {
		if err := cw.Write(record(l)); err != nil {
			return fmt.Errorf("write %s: %w", l.URL, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ToFile writes the listings to path, creating parent directories, and
// uploads the file when an uploader is given.
// ObjectKey is the bucket key an export written to path is uploaded under.
func ObjectKey(path string) string {
	return "exports/" + filepath.Base(path)
}

func ToFile(ctx context.Context, store storage.ListingStore, path string, uploader Uploader) (int, error) {
	var listings []*models.Listing
	for offset := 0; ; offset += storage.MaxPageSize {
		page, err := store.ListListings(ctx, storage.ListingFilter{Limit: storage.MaxPageSize, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("list listings: %w", err)
		}
		listings = append(listings, page...)
		if len(page) < storage.MaxPageSize {
			break
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := WriteCSV(f, listings); err != nil {
		return 0, err
	}

	if uploader != nil {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return 0, err
		}
		key := ObjectKey(path)
		if err := uploader.Upload(ctx, key, f, "text/csv"); err != nil {
			return 0, fmt.Errorf("upload %s: %w", key, err)
		}
	}

	return len(listings), nil
}

func record(l *models.Listing) []string {
	var condition string
	if l.Condition != nil {
		condition = string(*l.Condition)
	}
	return []string{
		l.URL,
		str(l.Title),
		str(l.Description),
		str(l.PropertyType),
		str(l.City),
		str(l.Area),
		num(l.Size),
		num(l.Rooms),
		num(l.Bedrooms),
		num(l.Bathrooms),
		num(l.Price),
		l.Features,
		condition,
		str(l.Age),
		date(l.DatePublished, time.DateOnly),
		date(l.ScrapedAt, time.RFC3339),
	}
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func num(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func date(t *time.Time, layout string) string {
	if t == nil {
		return ""
	}
	return t.Format(layout)
}
