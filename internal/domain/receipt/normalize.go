package receipt

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/atelier-commerce/checkout/internal/domain/order"
)

// ErrNotObject is returned when the raw payload is not a JSON object.
var ErrNotObject = errors.New("receipt payload is not a JSON object")

// Normalize reconciles a raw order payload into a canonical Receipt.
//
// Tolerance rules: a missing unit price is derived from price or basePrice; a
// missing quantity defaults to 1; a missing line total is recomputed from
// unit price and quantity; a zero or absent subtotal is recomputed as the sum
// of line totals; absent shipping applies the configured fee policy; and the
// total is always recomputed from subtotal+shipping regardless of what the
// payload claims.
func Normalize(raw []byte, policy order.ShippingPolicy) (*Receipt, error) {
	d := jx.DecodeBytes(raw)
	if d.Next() != jx.Object {
		return nil, ErrNotObject
	}

	var (
		r           Receipt
		idFallback  string
		subtotalSet bool
		shippingSet bool
	)

	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "order_id", "orderId":
			v, err := readString(d)
			if err != nil {
				return err
			}
			r.OrderID = v
		case "id":
			v, err := readString(d)
			if err != nil {
				return err
			}
			idFallback = v
		case "order_number", "orderNumber":
			v, err := readString(d)
			if err != nil {
				return err
			}
			r.OrderNumber = v
		case "items", "order_items", "orderItems":
			return d.Arr(func(d *jx.Decoder) error {
				it, err := normalizeItem(d)
				if err != nil {
					return err
				}
				r.Items = append(r.Items, it)
				return nil
			})
		case "subtotal", "sub_total":
			v, set, err := readDecimal(d)
			if err != nil {
				return err
			}
			r.Subtotal, subtotalSet = v, set
		case "shipping", "shipping_fee", "shippingFee", "delivery_fee":
			v, set, err := readDecimal(d)
			if err != nil {
				return err
			}
			r.Shipping, shippingSet = v, set
		case "payment_method", "paymentMethod":
			v, err := readString(d)
			if err != nil {
				return err
			}
			r.PaymentMethod = v
		case "courier_service", "courierService":
			v, err := readString(d)
			if err != nil {
				return err
			}
			r.CourierService = v
		case "customer_email", "customerEmail", "email":
			v, err := readString(d)
			if err != nil {
				return err
			}
			r.CustomerEmail = v
		case "customer_phone", "customerPhone", "phone":
			v, err := readString(d)
			if err != nil {
				return err
			}
			r.CustomerPhone = v
		case "created_at", "createdAt", "timestamp":
			t, err := readTime(d)
			if err != nil {
				return err
			}
			r.PlacedAt = t
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode receipt payload")
	}

	if r.OrderID == "" {
		r.OrderID = idFallback
	}

	if !subtotalSet || r.Subtotal.IsZero() {
		sum := decimal.Zero
		for _, it := range r.Items {
			sum = sum.Add(it.LineTotal)
		}
		r.Subtotal = sum
	}
	r.Subtotal = order.Round2(r.Subtotal)

	if !shippingSet {
		r.Shipping = policy.FeeFor(r.Subtotal)
	}
	r.Shipping = order.Round2(r.Shipping)

	// Never trust a stored total.
	r.Total = order.Round2(r.Subtotal.Add(r.Shipping))

	return &r, nil
}

// normalizeItem decodes a single item object, resolving the unit price from
// unit_price, then price, then base_price.
func normalizeItem(d *jx.Decoder) (Item, error) {
	var (
		it                           Item
		unit, price, base, lineTotal decimal.Decimal
		unitSet, priceSet, baseSet   bool
		lineTotalSet                 bool
		qty                          int
		qtySet                       bool
	)

	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product_name", "productName", "name", "title":
			v, err := readString(d)
			if err != nil {
				return err
			}
			it.ProductName = v
		case "unit_price", "unitPrice":
			v, set, err := readDecimal(d)
			if err != nil {
				return err
			}
			unit, unitSet = v, set
		case "price":
			v, set, err := readDecimal(d)
			if err != nil {
				return err
			}
			price, priceSet = v, set
		case "base_price", "basePrice":
			v, set, err := readDecimal(d)
			if err != nil {
				return err
			}
			base, baseSet = v, set
		case "quantity", "qty":
			v, set, err := readInt(d)
			if err != nil {
				return err
			}
			qty, qtySet = v, set
		case "line_total", "lineTotal", "total":
			v, set, err := readDecimal(d)
			if err != nil {
				return err
			}
			lineTotal, lineTotalSet = v, set
		case "size", "selected_size", "selectedSize":
			v, err := readString(d)
			if err != nil {
				return err
			}
			it.Size = v
		case "color", "selected_color", "selectedColor":
			v, err := readString(d)
			if err != nil {
				return err
			}
			it.Color = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return Item{}, err
	}

	switch {
	case unitSet:
		it.UnitPrice = unit
	case priceSet:
		it.UnitPrice = price
	case baseSet:
		it.UnitPrice = base
	}

	if !qtySet || qty < 1 {
		qty = 1
	}
	it.Quantity = qty

	if !lineTotalSet || lineTotal.IsZero() {
		lineTotal = it.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
	}
	it.LineTotal = order.Round2(lineTotal)

	return it, nil
}

// readString accepts strings, numbers (stringified), and null.
func readString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return strings.Trim(string(n), `"`), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", d.Skip()
	}
}

// readDecimal accepts numbers and numeric strings. Unparseable or null values
// report unset rather than failing: a receipt must render even from messy
// upstream data.
func readDecimal(d *jx.Decoder) (decimal.Decimal, bool, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, false, err
		}
		v, perr := decimal.NewFromString(strings.Trim(string(n), `"`))
		if perr != nil {
			return decimal.Zero, false, nil
		}
		return v, true, nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, false, err
		}
		v, perr := decimal.NewFromString(strings.TrimSpace(s))
		if perr != nil {
			return decimal.Zero, false, nil
		}
		return v, true, nil
	case jx.Null:
		return decimal.Zero, false, d.Null()
	default:
		return decimal.Zero, false, d.Skip()
	}
}

// readInt accepts integers and integer strings.
func readInt(d *jx.Decoder) (int, bool, error) {
	v, set, err := readDecimal(d)
	if err != nil || !set {
		return 0, set, err
	}
	return int(v.IntPart()), true, nil
}

// readTime accepts RFC 3339 strings and Unix millisecond numbers.
func readTime(d *jx.Decoder) (time.Time, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return time.Time{}, err
		}
		t, perr := time.Parse(time.RFC3339, s)
		if perr != nil {
			return time.Time{}, nil
		}
		return t, nil
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return time.Time{}, err
		}
		ms, perr := n.Int64()
		if perr != nil {
			return time.Time{}, nil
		}
		return time.UnixMilli(ms), nil
	case jx.Null:
		return time.Time{}, d.Null()
	default:
		return time.Time{}, d.Skip()
	}
}
