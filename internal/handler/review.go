package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/catalog"
)

// UpsertReview handles POST /api/items/{id}/reviews. A second review by the
// same author replaces the first.
func (h *Handler) UpsertReview(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var (
		rating  int
		comment string
	)
	err = h.decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "rating":
			rating, err = d.Int()
		case "comment":
			comment, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	agg, err := h.reviews.Upsert(r.Context(), r.PathValue("id"), p, rating, comment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, func(e *jx.Encoder) { encodeRating(e, agg) })
}

// ListReviews handles GET /api/items/{id}/reviews.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	l, err := h.reviews.List(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, func(e *jx.Encoder) {
		encodeRating(e, l.Rating)
		e.Field("reviews", func(e *jx.Encoder) { encodeReviews(e, l.Reviews) })
	})
}

// DeleteReview handles DELETE /api/items/{id}/reviews/{reviewId}.
func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	agg, err := h.reviews.Delete(r.Context(), r.PathValue("id"), r.PathValue("reviewId"), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, func(e *jx.Encoder) { encodeRating(e, agg) })
}

// encodeRating writes the aggregate as two fields of the enclosing object.
func encodeRating(e *jx.Encoder, agg catalog.Aggregate) {
	e.Field("ratingAverage", func(e *jx.Encoder) { e.Float64(agg.Average) })
	e.Field("reviewCount", func(e *jx.Encoder) { e.Int(agg.Count) })
}

func encodeReviews(e *jx.Encoder, reviews []catalog.Review) {
	e.ArrStart()
	for _, rv := range reviews {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(rv.ID) })
			e.Field("authorId", func(e *jx.Encoder) { e.Str(rv.AuthorID) })
			e.Field("authorName", func(e *jx.Encoder) { e.Str(rv.AuthorName) })
			e.Field("rating", func(e *jx.Encoder) { e.Int(rv.Rating) })
			e.Field("comment", func(e *jx.Encoder) { e.Str(rv.Comment) })
			e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, rv.CreatedAt) })
			e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, rv.UpdatedAt) })
		})
	}
	e.ArrEnd()
}
