package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
)

// CartTotals handles POST /api/cart/totals. It prices the submitted cart
// without persisting anything.
func (h *Handler) CartTotals(w http.ResponseWriter, r *http.Request) {
	var c cart.Cart
	err := h.decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key == "items" {
			var err error
			c.Lines, err = decodeLines(d)
			return err
		}
		return d.Skip()
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validateLines(c.Lines); err != nil {
		h.fail(w, r, err)
		return
	}

	totals := cart.ComputeTotals(&c).Display()
	writeSuccess(w, http.StatusOK, func(e *jx.Encoder) {
		e.Field("itemsPrice", func(e *jx.Encoder) { encodeMoney(e, totals.ItemsPrice) })
		e.Field("totalPrice", func(e *jx.Encoder) { encodeMoney(e, totals.TotalPrice) })
	})
}

// Checkout handles POST /api/checkout: the cart, shipping and payment phases
// in a single request, producing one order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	p, err := h.principal(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	co := cart.Checkout{Cart: &cart.Cart{}}
	err = h.decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			co.Cart.Lines, err = decodeLines(d)
		case "shippingInfo":
			co.Shipping, err = decodeShippingInfo(d)
		case "paymentInfo":
			co.Payment, err = decodePaymentInfo(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validateLines(co.Cart.Lines); err != nil {
		h.fail(w, r, err)
		return
	}

	o, err := co.Submit(r.Context(), h.orders, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Field("order", func(e *jx.Encoder) { encodeOrder(e, o) })
	})
}

func decodeLines(d *jx.Decoder) ([]cart.Line, error) {
	var lines []cart.Line
	err := d.Arr(func(d *jx.Decoder) error {
		var l cart.Line
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "productId", "product":
				l.ProductID, err = d.Str()
			case "name":
				l.Name, err = decodeOptStr(d)
			case "quantity":
				l.Quantity, err = d.Int()
			case "unitPrice", "price":
				l.UnitPrice, err = decodeDecimal(d)
			case "image":
				l.Image, err = decodeOptStr(d)
			default:
				err = d.Skip()
			}
			return err
		})
		lines = append(lines, l)
		return err
	})
	return lines, err
}

// validateLines rejects lines the order service would reject anyway, so the
// totals endpoint and checkout report the same messages.
func validateLines(lines []cart.Line) error {
	for i, l := range lines {
		if l.ProductID == "" {
			return apperr.Validation("item %d: product id is required", i+1)
		}
		if l.Quantity <= 0 {
			return apperr.Validation("item %d: quantity must be greater than 0", i+1)
		}
		if l.UnitPrice.IsNegative() {
			return apperr.Validation("item %d: unit price must not be negative", i+1)
		}
	}
	return nil
}

func decodeShippingInfo(d *jx.Decoder) (cart.ShippingInfo, error) {
	s, err := decodeShipping(d)
	return cart.ShippingInfo{
		Name:       s.Name,
		Address:    s.Address,
		City:       s.City,
		Phone:      s.Phone,
		PostalCode: s.PostalCode,
		Country:    s.Country,
	}, err
}

func decodePaymentInfo(d *jx.Decoder) (cart.PaymentInfo, error) {
	var p cart.PaymentInfo
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "cardNumber":
			p.CardNumber, err = decodeOptStr(d)
		case "cvv":
			p.CVV, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}
