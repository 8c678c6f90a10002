package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/catalog"
)

// ListItems handles GET /api/items.
//
// Query parameters: category ("all" or empty matches everything), keyword,
// active ("false" includes inactive entries) and limit.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.catalog.Find(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, func(e *jx.Encoder) {
		e.Field("count", func(e *jx.Encoder) { e.Int(len(entries)) })
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for i := range entries {
				encodeEntry(e, &entries[i], false)
			}
			e.ArrEnd()
		})
	})
}

// GetItem handles GET /api/items/{id}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	entry, err := h.catalog.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			err = apperr.NotFound("item not found")
		}
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, func(e *jx.Encoder) {
		e.Field("item", func(e *jx.Encoder) { encodeEntry(e, entry, true) })
	})
}

func (h *Handler) parseFilter(r *http.Request) (catalog.Filter, error) {
	q := r.URL.Query()
	f := catalog.Filter{
		Category:   strings.TrimSpace(q.Get("category")),
		Keyword:    strings.TrimSpace(q.Get("keyword")),
		ActiveOnly: true,
		Limit:      h.maxListLimit,
	}
	if strings.EqualFold(f.Category, "all") {
		f.Category = ""
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return f, apperr.Validation("active must be a boolean")
		}
		f.ActiveOnly = active
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return f, apperr.Validation("limit must be a positive integer")
		}
		f.Limit = min(limit, h.maxListLimit)
	}
	return f, nil
}

func encodeEntry(e *jx.Encoder, entry *catalog.Entry, withReviews bool) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(entry.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(entry.Name) })
		e.Field("price", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("retail", func(e *jx.Encoder) { encodeMoney(e, entry.Price.Retail) })
				e.Field("wholesale", func(e *jx.Encoder) { encodeMoney(e, entry.Price.Wholesale) })
			})
		})
		e.Field("stock", func(e *jx.Encoder) { e.Int(entry.Stock) })
		e.Field("category", func(e *jx.Encoder) { e.Str(entry.Category) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(entry.Active) })
		e.Field("image", func(e *jx.Encoder) { e.Str(entry.Image) })
		encodeRating(e, entry.Rating)
		if withReviews {
			e.Field("reviews", func(e *jx.Encoder) { encodeReviews(e, entry.Reviews) })
		}
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, entry.CreatedAt) })
	})
}
