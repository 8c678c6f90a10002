package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
)

// CreateOrder handles POST /api/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var (
		d     order.Draft
		lines []cart.Line
	)
	err = h.decodeObject(w, r, func(dec *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items", "orderItems":
			lines, err = decodeLines(dec)
		case "shippingInfo":
			d.Shipping, err = decodeShipping(dec)
		case "itemsPrice":
			d.ItemsPrice, err = decodeNullDecimal(dec)
		case "taxPrice":
			d.TaxPrice, err = decodeDecimal(dec)
		case "shippingPrice":
			d.ShippingPrice, err = decodeDecimal(dec)
		case "totalPrice":
			d.TotalPrice, err = decodeNullDecimal(dec)
		default:
			err = dec.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d.Items = (&cart.Cart{Lines: lines}).Items()

	o, err := h.orders.Create(r.Context(), p, d)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, o) })
	})
}

// ListMyOrders handles GET /api/orders/mine.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	orders, err := h.orders.ListMine(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, func(e *jx.Encoder) {
		e.Field("orders", func(e *jx.Encoder) { encodeOrders(e, orders) })
	})
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), r.PathValue("id"), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, func(e *jx.Encoder) {
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, o) })
	})
}

// ListOrders handles GET /api/orders (administrators only).
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	summary, err := h.orders.ListAll(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, func(e *jx.Encoder) {
		e.Field("totalAmount", func(e *jx.Encoder) { encodeMoney(e, summary.TotalAmount) })
		e.Field("orders", func(e *jx.Encoder) { encodeOrders(e, summary.Orders) })
	})
}

// UpdateOrderStatus handles PUT /api/orders/{id} with body {"status": "..."}.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var status string
	err = h.decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key == "status" {
			var err error
			status, err = d.Str()
			return err
		}
		return d.Skip()
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("id"), p, status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, func(e *jx.Encoder) {
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, o) })
	})
}

// DeleteOrder handles DELETE /api/orders/{id} (administrators only).
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.orders.Delete(r.Context(), r.PathValue("id"), p); err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func decodeShipping(d *jx.Decoder) (order.Shipping, error) {
	var s order.Shipping
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			s.Name, err = decodeOptStr(d)
		case "address":
			s.Address, err = decodeOptStr(d)
		case "city":
			s.City, err = decodeOptStr(d)
		case "postalCode":
			s.PostalCode, err = decodeOptStr(d)
		case "country":
			s.Country, err = decodeOptStr(d)
		case "phone", "phoneNo":
			s.Phone, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return s, err
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("reference", func(e *jx.Encoder) { e.Str(o.Reference()) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, it := range o.Items {
				e.Obj(func(e *jx.Encoder) {
					e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					e.Field("unitPrice", func(e *jx.Encoder) { encodeMoney(e, it.UnitPrice) })
					if it.Image != "" {
						e.Field("image", func(e *jx.Encoder) { e.Str(it.Image) })
					}
				})
			}
			e.ArrEnd()
		})
		e.Field("shippingInfo", func(e *jx.Encoder) {
			s := o.Shipping
			e.Obj(func(e *jx.Encoder) {
				e.Field("name", func(e *jx.Encoder) { e.Str(s.Name) })
				e.Field("address", func(e *jx.Encoder) { e.Str(s.Address) })
				e.Field("city", func(e *jx.Encoder) { e.Str(s.City) })
				e.Field("postalCode", func(e *jx.Encoder) { e.Str(s.PostalCode) })
				e.Field("country", func(e *jx.Encoder) { e.Str(s.Country) })
				e.Field("phone", func(e *jx.Encoder) { e.Str(s.Phone) })
			})
		})
		e.Field("itemsPrice", func(e *jx.Encoder) { encodeMoney(e, o.ItemsPrice) })
		e.Field("taxPrice", func(e *jx.Encoder) { encodeMoney(e, o.TaxPrice) })
		e.Field("shippingPrice", func(e *jx.Encoder) { encodeMoney(e, o.ShippingPrice) })
		e.Field("totalPrice", func(e *jx.Encoder) { encodeMoney(e, o.TotalPrice) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("paidAt", func(e *jx.Encoder) { encodeTime(e, o.PaidAt) })
		e.Field("deliveredAt", func(e *jx.Encoder) {
			if o.DeliveredAt == nil {
				e.Null()
				return
			}
			encodeTime(e, *o.DeliveredAt)
		})
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
	})
}
