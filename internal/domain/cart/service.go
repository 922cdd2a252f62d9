package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/shopfront/storefront/internal/domain/product"
)

// Service encapsulates the cart mutation protocol: validation, atomic
// repository updates, and materialization of the result. Every mutation
// returns the freshly materialized cart rather than a delta, so callers can
// replace their view wholesale.
type Service struct {
	products product.Repository
	carts    Repository
}

// NewService creates a cart Service with the required domain dependencies.
func NewService(products product.Repository, carts Repository) *Service {
	return &Service{
		products: products,
		carts:    carts,
	}
}

// Fetch returns the user's materialized cart. A user without a cart document
// gets an empty cart, never an error.
func (s *Service) Fetch(ctx context.Context, userID string) ([]CartProduct, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoCart) {
			return []CartProduct{}, nil
		}
		return nil, errors.Wrap(err, "get cart")
	}
	return s.materialize(ctx, c.Items)
}

// Add puts quantity units of a product into the user's cart: an existing
// line is incremented, otherwise a new line is appended, creating the cart
// document on first use. The product must exist in the catalog.
func (s *Service) Add(ctx context.Context, userID, productID string, quantity int) ([]CartProduct, error) {
	if quantity <= 0 {
		return nil, &InvalidQuantityError{ProductID: productID}
	}

	if _, err := s.products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrap(err, "check product")
	}

	c, err := s.carts.AddItem(ctx, userID, productID, quantity)
	if err != nil {
		return nil, errors.Wrap(err, "add item")
	}
	return s.materialize(ctx, c.Items)
}

// SetQuantity sets a line to an absolute quantity. Zero removes the line
// (the data model forbids zero-quantity lines). A positive quantity on a
// missing line fails with ErrItemNotFound, but a user without any cart
// document gets an empty cart back.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, quantity int) ([]CartProduct, error) {
	if quantity < 0 {
		return nil, ErrNegativeQuantity
	}
	if quantity == 0 {
		return s.Remove(ctx, userID, productID)
	}

	c, err := s.carts.SetItemQuantity(ctx, userID, productID, quantity)
	if err != nil {
		if errors.Is(err, ErrNoCart) {
			return []CartProduct{}, nil
		}
		if errors.Is(err, ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, errors.Wrap(err, "set quantity")
	}
	return s.materialize(ctx, c.Items)
}

// Remove deletes the line for a product. It is idempotent: removing an
// absent line, or removing from a user without a cart document, returns the
// current (possibly empty) cart unchanged.
func (s *Service) Remove(ctx context.Context, userID, productID string) ([]CartProduct, error) {
	c, err := s.carts.RemoveItem(ctx, userID, productID)
	if err != nil {
		if errors.Is(err, ErrNoCart) {
			return []CartProduct{}, nil
		}
		return nil, errors.Wrap(err, "remove item")
	}
	return s.materialize(ctx, c.Items)
}

// materialize joins cart lines against the catalog in a single batch fetch.
// Lines whose product has disappeared from the catalog are dropped silently:
// an orphaned reference must not break the cart view. Order follows the
// cart's line order.
func (s *Service) materialize(ctx context.Context, lines []Line) ([]CartProduct, error) {
	if len(lines) == 0 {
		return []CartProduct{}, nil
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	out := make([]CartProduct, 0, len(lines))
	for _, l := range lines {
		p, ok := productMap[l.ProductID]
		if !ok {
			continue
		}
		out = append(out, CartProduct{Product: p, Quantity: l.Quantity})
	}
	return out, nil
}
