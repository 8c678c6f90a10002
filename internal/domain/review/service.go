// Package review maintains per-entry reviews and the cached rating aggregate.
package review

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
)

const (
	MinRating        = 1
	MaxRating        = 5
	MinCommentLength = 3
	MaxCommentLength = 500

	DefaultMaxAttempts   = 5
	DefaultRetryInterval = 10 * time.Millisecond
)

// Listing is the read view of an entry's reviews.
type Listing struct {
	Reviews []catalog.Review
	Rating  catalog.Aggregate
}

// Options configures the Service.
type Options struct {
	// MaxAttempts bounds read-modify-write attempts per mutation.
	MaxAttempts int
	// RetryInterval is the initial delay after a version conflict.
	RetryInterval time.Duration

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = otel.GetMeterProvider()
	}
}

// Service applies review mutations as optimistic read-modify-write cycles on
// the catalog entry, retrying on version conflicts.
type Service struct {
	entries catalog.Repository
	opts    Options
	now     func() time.Time
	newID   func() string

	tracer    trace.Tracer
	conflicts metric.Int64Counter
}

// NewService creates a review Service.
func NewService(entries catalog.Repository, opts Options) (*Service, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter("storefront/review")
	conflicts, err := meter.Int64Counter("reviews.conflicts",
		metric.WithDescription("Review writes rejected because the entry changed concurrently"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "reviews.conflicts counter")
	}

	return &Service{
		entries:   entries,
		opts:      opts,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		tracer:    opts.TracerProvider.Tracer("storefront/review"),
		conflicts: conflicts,
	}, nil
}

// Upsert creates or replaces the principal's review of the entry and returns
// the recomputed aggregate.
func (s *Service) Upsert(ctx context.Context, itemID string, p auth.Principal, rating int, comment string) (catalog.Aggregate, error) {
	if err := auth.Require(p); err != nil {
		return catalog.Aggregate{}, err
	}
	comment = strings.TrimSpace(comment)
	if err := validate(rating, comment); err != nil {
		return catalog.Aggregate{}, err
	}

	ctx, span := s.tracer.Start(ctx, "review.Upsert",
		trace.WithAttributes(attribute.String("item.id", itemID)),
	)
	defer span.End()

	return s.mutate(ctx, itemID, func(reviews []catalog.Review) ([]catalog.Review, error) {
		now := s.now()
		if i := catalog.IndexOfAuthor(reviews, p.ID); i >= 0 {
			reviews[i].Rating = rating
			reviews[i].Comment = comment
			reviews[i].AuthorName = p.Name
			reviews[i].UpdatedAt = now
			return reviews, nil
		}
		return append(reviews, catalog.Review{
			ID:         s.newID(),
			AuthorID:   p.ID,
			AuthorName: p.Name,
			Rating:     rating,
			Comment:    comment,
			CreatedAt:  now,
			UpdatedAt:  now,
		}), nil
	})
}

// Delete removes a review. Only its author or an administrator may do so.
func (s *Service) Delete(ctx context.Context, itemID, reviewID string, p auth.Principal) (catalog.Aggregate, error) {
	if err := auth.Require(p); err != nil {
		return catalog.Aggregate{}, err
	}

	ctx, span := s.tracer.Start(ctx, "review.Delete",
		trace.WithAttributes(attribute.String("item.id", itemID), attribute.String("review.id", reviewID)),
	)
	defer span.End()

	return s.mutate(ctx, itemID, func(reviews []catalog.Review) ([]catalog.Review, error) {
		i := catalog.IndexOfReview(reviews, reviewID)
		if i < 0 {
			return nil, apperr.NotFound("review not found")
		}
		if reviews[i].AuthorID != p.ID && !p.IsAdmin() {
			return nil, apperr.Forbidden("only the author or an administrator may delete this review")
		}
		return append(reviews[:i], reviews[i+1:]...), nil
	})
}

// List returns the entry's reviews in insertion order and its aggregate.
func (s *Service) List(ctx context.Context, itemID string) (*Listing, error) {
	e, err := s.entries.GetByID(ctx, itemID)
	if err != nil {
		return nil, entryError(err)
	}
	reviews := e.Reviews
	if reviews == nil {
		reviews = []catalog.Review{}
	}
	return &Listing{Reviews: reviews, Rating: e.Rating}, nil
}

// mutate runs fn against a fresh copy of the entry's reviews and writes the
// result conditionally on the version that was read. Version conflicts are
// retried up to MaxAttempts; every other error ends the loop.
func (s *Service) mutate(ctx context.Context, itemID string, fn func([]catalog.Review) ([]catalog.Review, error)) (catalog.Aggregate, error) {
	lg := zctx.From(ctx).With(zap.String("item_id", itemID))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.RetryInterval
	bo.MaxInterval = 20 * s.opts.RetryInterval

	attempt := 0
	op := func() (catalog.Aggregate, error) {
		attempt++
		e, err := s.entries.GetByID(ctx, itemID)
		if err != nil {
			return catalog.Aggregate{}, backoff.Permanent(entryError(err))
		}

		reviews := make([]catalog.Review, len(e.Reviews))
		copy(reviews, e.Reviews)
		reviews, err = fn(reviews)
		if err != nil {
			return catalog.Aggregate{}, backoff.Permanent(err)
		}

		rating := catalog.Summarize(reviews)
		if _, err := s.entries.ReplaceReviews(ctx, itemID, e.Version, reviews, rating); err != nil {
			if errors.Is(err, catalog.ErrVersionConflict) {
				s.conflicts.Add(ctx, 1)
				return catalog.Aggregate{}, err
			}
			return catalog.Aggregate{}, backoff.Permanent(entryError(err))
		}
		return rating, nil
	}

	rating, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(s.opts.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			lg.Debug("Retrying review write", zap.Int("attempt", attempt), zap.Duration("next", next), zap.Error(err))
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		if errors.Is(err, catalog.ErrVersionConflict) {
			lg.Warn("Review write gave up after conflicts", zap.Int("attempts", attempt))
			return catalog.Aggregate{}, apperr.Conflict("item was modified concurrently, please retry")
		}
		return catalog.Aggregate{}, err
	}
	return rating, nil
}

func validate(rating int, comment string) error {
	if rating < MinRating || rating > MaxRating {
		return apperr.Validation("rating must be between %d and %d", MinRating, MaxRating)
	}
	n := utf8.RuneCountInString(comment)
	if n < MinCommentLength || n > MaxCommentLength {
		return apperr.Validation("comment must be between %d and %d characters", MinCommentLength, MaxCommentLength)
	}
	return nil
}

func entryError(err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return apperr.NotFound("item not found")
	}
	if _, ok := apperr.Public(err); ok {
		return err
	}
	return errors.Wrap(err, "catalog store")
}
