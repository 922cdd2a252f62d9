package db

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/shopfront/storefront/internal/domain/product"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	ImageURL    string          `json:"imageUrl"`
}

// ParseCatalog decodes catalog JSON. Fields beyond the known ones are kept
// as open attributes so they survive the round trip into the store.
func ParseCatalog(data []byte) ([]product.Product, error) {
	var known []productJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}

	out := make([]product.Product, 0, len(known))
	for i, p := range known {
		if p.ID == "" {
			return nil, errors.Errorf("catalog entry %d has no id", i)
		}
		attrs := raw[i]
		for _, key := range []string{"id", "name", "price", "description", "imageUrl"} {
			delete(attrs, key)
		}
		if len(attrs) == 0 {
			attrs = nil
		}
		out = append(out, product.Product{
			ID:          p.ID,
			Name:        p.Name,
			Price:       p.Price,
			Description: p.Description,
			ImageURL:    p.ImageURL,
			Attrs:       attrs,
		})
	}
	return out, nil
}

// DefaultProducts parses the embedded development catalog.
func DefaultProducts() ([]product.Product, error) {
	return ParseCatalog(DefaultCatalog)
}
