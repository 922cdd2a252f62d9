package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"

	"github.com/shopfront/storefront/internal/domain/product"
)

// Sentinel errors for cart operations.
var (
	// ErrNoCart is returned by the repository when no cart document exists
	// for the user. Callers treat an absent document as an empty cart, not
	// a failure.
	ErrNoCart = errors.New("cart not found")

	// ErrItemNotFound is returned when a quantity update targets a product
	// that has no line in the cart.
	ErrItemNotFound = errors.New("item not found in cart")

	// ErrNegativeQuantity is returned when a quantity update carries a
	// negative value.
	ErrNegativeQuantity = errors.New("quantity cannot be negative")
)

// InvalidQuantityError indicates an add with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// Line is a single cart entry. A cart holds at most one line per product,
// and a line's quantity is always at least 1: reaching zero deletes the
// line instead.
type Line struct {
	ProductID string
	Quantity  int
}

// Cart is the durable per-user cart document. It is created lazily on the
// first add and never deleted; an emptied cart keeps its document with an
// empty item list.
type Cart struct {
	UserID    string
	Items     []Line
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartProduct is a materialized cart line: the catalog product joined with
// the quantity from the user's cart. This is the only representation that
// crosses the wire or is cached client-side.
type CartProduct struct {
	product.Product
	Quantity int
}

// Repository defines the atomic persistence operations for cart documents.
//
// Implementations must guarantee that two concurrent calls for the same
// (user, product) line never interleave into a lost update: line-scoped
// mutations are conditional updates keyed on the user and the line's
// productId, and document creation is an upsert keyed on the user alone.
// Mutations to different products under the same user may interleave freely.
type Repository interface {
	// Get returns the user's cart document, or ErrNoCart when absent.
	Get(ctx context.Context, userID string) (*Cart, error)

	// AddItem increments the quantity of an existing line by quantity, or
	// appends a new line, creating the cart document if needed. It returns
	// the document after the update.
	AddItem(ctx context.Context, userID, productID string, quantity int) (*Cart, error)

	// SetItemQuantity sets the quantity of an existing line to an absolute
	// value. It returns ErrItemNotFound when the cart exists but holds no
	// line for the product, and ErrNoCart when the document is absent.
	SetItemQuantity(ctx context.Context, userID, productID string, quantity int) (*Cart, error)

	// RemoveItem deletes the line for the product. Removing an absent line
	// is not an error; an absent document yields ErrNoCart.
	RemoveItem(ctx context.Context, userID, productID string) (*Cart, error)
}
