package models

import "time"

// Condition is the normalized state of a property as advertised.
type Condition string

const (
	ConditionNew  Condition = "New"
	ConditionGood Condition = "Good"
	ConditionOld  Condition = "Old"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionGood, ConditionOld:
		return true
	}
	return false
}

// Listing is one rental/sale advert, identified by its source URL.
// Nil pointers are absent values and are stored as NULL.
type Listing struct {
	URL           string     `json:"url" db:"url"`
	Title         *string    `json:"title" db:"title"`
	Description   *string    `json:"description" db:"description"`
	PropertyType  *string    `json:"property_type" db:"property_type"`
	City          *string    `json:"city" db:"city"`
	Area          *string    `json:"area" db:"area"`
	Size          *int       `json:"size" db:"size"`
	Rooms         *int       `json:"rooms" db:"rooms"`
	Bedrooms      *int       `json:"bedrooms" db:"bedrooms"`
	Bathrooms     *int       `json:"bathrooms" db:"bathrooms"`
	Price         *int       `json:"price" db:"price"`
	Features      string     `json:"features" db:"features"`
	Condition     *Condition `json:"condition" db:"condition"`
	Age           *string    `json:"age" db:"age"`
	DatePublished *time.Time `json:"date_published" db:"date_published"`
	ScrapedAt     *time.Time `json:"scraped_at" db:"scraped_at"`
}

// LinkCandidate is a listing link discovered on a search results page,
// with the publication date read from its card.
type LinkCandidate struct {
	URL           string
	DatePublished *time.Time
	Page          int
}

// MissingCity is a stored listing whose city still needs to be filled in.
type MissingCity struct {
	ID   int64
	URL  string
	Area *string
}
