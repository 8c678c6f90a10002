package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested catalog entry does not exist.
	ErrNotFound = errors.New("catalog entry not found")
	// ErrVersionConflict is returned by conditional writes when the stored
	// entry changed since it was read.
	ErrVersionConflict = errors.New("catalog entry version conflict")
)

// Price holds the retail and wholesale prices of an entry.
type Price struct {
	Retail    decimal.Decimal
	Wholesale decimal.Decimal
}

// Entry is a sellable item together with its embedded reviews and cached
// rating aggregate.
type Entry struct {
	ID        string
	Name      string
	Price     Price
	Stock     int
	Category  string
	Active    bool
	Image     string
	Reviews   []Review
	Rating    Aggregate
	Version   int64
	CreatedAt time.Time
}

// Review is a single user's rating of an entry. At most one review exists per
// (AuthorID, Entry) pair.
type Review struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Filter narrows Find results. Zero values disable the corresponding
// condition; Limit 0 means no limit.
type Filter struct {
	Category   string
	Keyword    string
	ActiveOnly bool
	Limit      int
}

// Repository is the catalog store used by the review aggregator and the
// public read endpoints.
type Repository interface {
	Find(ctx context.Context, f Filter) ([]Entry, error)
	GetByID(ctx context.Context, id string) (*Entry, error)
	// ReplaceReviews stores reviews and their aggregate iff the entry is still
	// at version. It returns the new version, or ErrVersionConflict.
	ReplaceReviews(ctx context.Context, id string, version int64, reviews []Review, rating Aggregate) (int64, error)
}
