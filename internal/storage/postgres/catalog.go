package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/catalog"
)

const (
	entryColumns = `id, name, retail_price, wholesale_price, stock, category, active, image,
		reviews, rating_average, rating_count, version, created_at`

	findEntriesSQL = `SELECT ` + entryColumns + `
		FROM catalog_entries
		WHERE ($1::text = '' OR category ILIKE '%' || $1::text || '%')
		  AND ($2::text = '' OR name ILIKE '%' || $2::text || '%')
		  AND (NOT $3::boolean OR active)
		ORDER BY created_at DESC, id
		LIMIT NULLIF($4::int, 0)`

	getEntryByIDSQL = `SELECT ` + entryColumns + ` FROM catalog_entries WHERE id = $1`

	replaceReviewsSQL = `UPDATE catalog_entries
		SET reviews = $3, rating_average = $4, rating_count = $5, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version`

	entryExistsSQL = `SELECT EXISTS (SELECT 1 FROM catalog_entries WHERE id = $1)`

	saveEntrySQL = `INSERT INTO catalog_entries
		(id, name, retail_price, wholesale_price, stock, category, active, image,
		 reviews, rating_average, rating_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			retail_price = EXCLUDED.retail_price,
			wholesale_price = EXCLUDED.wholesale_price,
			stock = EXCLUDED.stock,
			category = EXCLUDED.category,
			active = EXCLUDED.active,
			image = EXCLUDED.image,
			version = catalog_entries.version + 1`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// Find returns entries matching f, newest first.
func (r *CatalogRepository) Find(ctx context.Context, f catalog.Filter) ([]catalog.Entry, error) {
	rows, err := r.pool.Query(ctx, findEntriesSQL,
		escapeLike(f.Category), escapeLike(f.Keyword), f.ActiveOnly, f.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("finding catalog entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("finding catalog entries: %w", err)
	}
	return entries, nil
}

// GetByID returns a single entry with its reviews.
func (r *CatalogRepository) GetByID(ctx context.Context, id string) (*catalog.Entry, error) {
	rows, err := r.pool.Query(ctx, getEntryByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting catalog entry %q: %w", id, err)
	}

	e, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting catalog entry %q: %w", id, err)
	}
	return &e, nil
}

// ReplaceReviews writes the review collection and its aggregate in a single
// statement guarded by the version column.
func (r *CatalogRepository) ReplaceReviews(ctx context.Context, id string, version int64, reviews []catalog.Review, rating catalog.Aggregate) (int64, error) {
	if reviews == nil {
		reviews = []catalog.Review{}
	}
	reviewsJSON, err := json.Marshal(reviews)
	if err != nil {
		return 0, fmt.Errorf("marshaling reviews: %w", err)
	}

	var next int64
	err = r.pool.QueryRow(ctx, replaceReviewsSQL,
		id, version, reviewsJSON, rating.Average, rating.Count,
	).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("replacing reviews of %q: %w", id, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, entryExistsSQL, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("checking catalog entry %q: %w", id, err)
	}
	if !exists {
		return 0, catalog.ErrNotFound
	}
	return 0, catalog.ErrVersionConflict
}

// Save inserts an entry or updates the catalog fields of an existing one. It
// is used by the seeder. Reviews, the rating aggregate and created_at are
// written on insert only, so re-seeding keeps customer reviews.
func (r *CatalogRepository) Save(ctx context.Context, e *catalog.Entry) error {
	reviews := e.Reviews
	if reviews == nil {
		reviews = []catalog.Review{}
	}
	reviewsJSON, err := json.Marshal(reviews)
	if err != nil {
		return fmt.Errorf("marshaling reviews: %w", err)
	}
	rating := catalog.Summarize(reviews)

	_, err = r.pool.Exec(ctx, saveEntrySQL,
		e.ID, e.Name, e.Price.Retail, e.Price.Wholesale, e.Stock, e.Category, e.Active, e.Image,
		reviewsJSON, rating.Average, rating.Count, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving catalog entry %q: %w", e.ID, err)
	}
	return nil
}

func scanEntry(row pgx.CollectableRow) (catalog.Entry, error) {
	var (
		e           catalog.Entry
		reviewsJSON []byte
	)
	err := row.Scan(
		&e.ID, &e.Name, &e.Price.Retail, &e.Price.Wholesale, &e.Stock, &e.Category, &e.Active, &e.Image,
		&reviewsJSON, &e.Rating.Average, &e.Rating.Count, &e.Version, &e.CreatedAt,
	)
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal(reviewsJSON, &e.Reviews); err != nil {
		return e, fmt.Errorf("unmarshaling reviews of %q: %w", e.ID, err)
	}
	return e, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s safe for use inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(strings.TrimSpace(s))
}
