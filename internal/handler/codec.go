package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// writeSuccess writes {"success":true, ...} where body adds the remaining
// fields with e.Field.
func writeSuccess(w http.ResponseWriter, status int, body func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
	if body != nil {
		body(e)
	}
	e.ObjEnd()

	writeJSON(w, status, e.Bytes())
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(false) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})

	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// fail maps err onto a status code. Errors without a public message are
// logged and hidden behind a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if pub, ok := apperr.Public(err); ok {
		writeFailure(w, statusOf(pub), pub.Message)
		return
	}
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeFailure(w, http.StatusInternalServerError, "internal server error")
}

func statusOf(e *apperr.Error) int {
	switch {
	case errors.Is(e, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(e, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(e, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(e, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(e, apperr.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeObject reads the request body as a JSON object, calling fn per key.
// Syntax errors become validation errors; errors returned by fn that are
// already public pass through unchanged.
func (h *Handler) decodeObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperr.Validation("unreadable request body")
	}
	if err := jx.DecodeBytes(body).Obj(fn); err != nil {
		if _, ok := apperr.Public(err); ok {
			return err
		}
		return apperr.Validation("malformed JSON body")
	}
	return nil
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	s := string(n)
	if n.Str() {
		s = s[1 : len(s)-1]
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "parse decimal")
	}
	return v, nil
}

// decodeNullDecimal leaves the result invalid for an explicit null.
func decodeNullDecimal(d *jx.Decoder) (decimal.NullDecimal, error) {
	if d.Next() == jx.Null {
		return decimal.NullDecimal{}, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

// decodeOptStr treats null as the empty string.
func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.RawStr(v.StringFixed(2))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}
