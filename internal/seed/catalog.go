// Package seed reads catalog fixtures used to populate a fresh store.
package seed

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/catalog"
)

type entryJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price struct {
		Retail    decimal.Decimal `json:"retail"`
		Wholesale decimal.Decimal `json:"wholesale"`
	} `json:"price"`
	Stock     int        `json:"stock"`
	Category  string     `json:"category"`
	Active    *bool      `json:"active"`
	Image     string     `json:"image"`
	CreatedAt *time.Time `json:"created_at"`
}

// ReadCatalog decodes a JSON array of catalog entries. Entries default to
// active, and a missing creation time is set to now minus the entry's
// position so the file order is kept by newest-first listings.
func ReadCatalog(r io.Reader, now time.Time) ([]catalog.Entry, error) {
	var raw []entryJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}

	seen := make(map[string]struct{}, len(raw))
	entries := make([]catalog.Entry, 0, len(raw))
	for i, e := range raw {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return nil, errors.Errorf("entry %d: id is required", i+1)
		}
		if _, dup := seen[id]; dup {
			return nil, errors.Errorf("entry %d: duplicate id %q", i+1, id)
		}
		seen[id] = struct{}{}
		if e.Price.Retail.IsNegative() || e.Price.Wholesale.IsNegative() {
			return nil, errors.Errorf("entry %q: price must not be negative", id)
		}

		active := true
		if e.Active != nil {
			active = *e.Active
		}
		created := now.Add(-time.Duration(i) * time.Second)
		if e.CreatedAt != nil {
			created = *e.CreatedAt
		}
		entries = append(entries, catalog.Entry{
			ID:        id,
			Name:      e.Name,
			Price:     catalog.Price{Retail: e.Price.Retail, Wholesale: e.Price.Wholesale},
			Stock:     e.Stock,
			Category:  e.Category,
			Active:    active,
			Image:     e.Image,
			CreatedAt: created.UTC(),
		})
	}
	return entries, nil
}

// LoadCatalog reads the catalog file at path.
func LoadCatalog(path string, now time.Time) ([]catalog.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog file")
	}
	defer func() { _ = f.Close() }()
	return ReadCatalog(f, now)
}
