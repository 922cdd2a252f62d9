// Package cartclient is the client side of the cart protocol: an HTTP
// client for the cart endpoints and a cache that tracks the last-known
// materialized cart, per-product in-flight markers, and derived totals.
package cartclient

import (
	"sort"

	"github.com/go-faster/jx"
)

// CartProduct is one materialized cart line as it crosses the wire: the
// catalog product's fields plus the line quantity. The server's catalog
// schema is open, so fields this client does not know about are kept in
// Attrs as raw JSON and survive a persist/load round trip.
type CartProduct struct {
	ID          string
	Name        string
	Price       float64
	Description string
	ImageURL    string
	Quantity    int
	Attrs       map[string]jx.Raw
}

func decodeCartProduct(d *jx.Decoder) (CartProduct, error) {
	var p CartProduct
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "price":
			p.Price, err = d.Float64()
		case "description":
			p.Description, err = d.Str()
		case "imageUrl":
			p.ImageURL, err = d.Str()
		case "quantity":
			p.Quantity, err = d.Int()
		default:
			var raw jx.Raw
			raw, err = d.Raw()
			if err != nil {
				return err
			}
			if p.Attrs == nil {
				p.Attrs = make(map[string]jx.Raw)
			}
			// Raw aliases the decoder's buffer; copy so the value outlives it.
			p.Attrs[key] = append(jx.Raw(nil), raw...)
		}
		return err
	})
	return p, err
}

func decodeCartProducts(data []byte) ([]CartProduct, error) {
	d := jx.DecodeBytes(data)
	out := []CartProduct{}
	err := d.Arr(func(d *jx.Decoder) error {
		p, err := decodeCartProduct(d)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func encodeCartProduct(e *jx.Encoder, p CartProduct) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.Float64(p.Price)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("imageUrl")
	e.Str(p.ImageURL)

	if len(p.Attrs) > 0 {
		keys := make([]string, 0, len(p.Attrs))
		for k := range p.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e.FieldStart(k)
			e.Raw(p.Attrs[k])
		}
	}

	e.FieldStart("quantity")
	e.Int(p.Quantity)
	e.ObjEnd()
}

func encodeCartProducts(e *jx.Encoder, items []CartProduct) {
	e.ArrStart()
	for _, p := range items {
		encodeCartProduct(e, p)
	}
	e.ArrEnd()
}
