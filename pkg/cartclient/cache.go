package cartclient

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrMutationInFlight is returned when a mutation is requested for a
// product that already has one outstanding. The loading flag is the UI's
// gate, not a hard lock: the server's per-line atomicity is the real
// guarantee.
var ErrMutationInFlight = errors.New("cart mutation already in flight for product")

// Cache holds the last-known materialized cart and a per-product in-flight
// marker. The cached cart is replaced wholesale after every server round
// trip and is never merged locally; a failed mutation leaves it at its
// last-known-good value.
//
// When constructed with a Store, the cart survives restarts: the cache
// hydrates from the store and saves after every replacement. The loading
// map is never persisted.
type Cache struct {
	api   API
	store Store
	lg    *zap.Logger

	mu       sync.Mutex
	products []CartProduct
	loading  map[string]bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore enables local persistence of the cached cart.
func WithStore(store Store) Option {
	return func(c *Cache) { c.store = store }
}

// WithLogger sets the logger used for non-fatal persistence warnings.
func WithLogger(lg *zap.Logger) Option {
	return func(c *Cache) { c.lg = lg }
}

// NewCache creates a Cache bound to the given API. If a persistence store
// is configured and holds a snapshot, the cache hydrates from it; the
// hydrated value is expected to be stale until the next Refresh.
func NewCache(api API, opts ...Option) *Cache {
	c := &Cache{
		api:      api,
		lg:       zap.NewNop(),
		products: []CartProduct{},
		loading:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store != nil {
		items, err := c.store.Load()
		switch {
		case err == nil:
			c.products = items
		case errors.Is(err, ErrNoSnapshot):
			// First run, nothing to hydrate.
		default:
			c.lg.Warn("failed to hydrate cart snapshot", zap.Error(err))
		}
	}
	return c
}

// SetCart replaces the cached cart wholesale, e.g. with a server-rendered
// initial value.
func (c *Cache) SetCart(items []CartProduct) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaceLocked(items)
}

// Items returns a copy of the current cached cart.
func (c *Cache) Items() []CartProduct {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CartProduct, len(c.products))
	copy(out, c.products)
	return out
}

// IsLoading reports whether a mutation for the product is outstanding. The
// UI disables the product's controls while true.
func (c *Cache) IsLoading(productID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading[productID]
}

// Refresh reconciles the cache with the server's cart.
func (c *Cache) Refresh(ctx context.Context) error {
	items, err := c.api.Fetch(ctx)
	if err != nil {
		return err
	}
	c.SetCart(items)
	return nil
}

// AddToCart adds quantity units of the product to the server cart and
// replaces the cached view with the response.
func (c *Cache) AddToCart(ctx context.Context, productID string, quantity int) error {
	return c.mutate(productID, func() ([]CartProduct, error) {
		return c.api.Add(ctx, productID, quantity)
	})
}

// UpdateQuantity sets the product's line to an absolute quantity. Values
// below 1 are a no-op: the positive-quantity invariant is enforced before
// any request is sent (removal goes through RemoveFromCart).
func (c *Cache) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return nil
	}
	return c.mutate(productID, func() ([]CartProduct, error) {
		return c.api.SetQuantity(ctx, productID, quantity)
	})
}

// RemoveFromCart deletes the product's line from the server cart.
func (c *Cache) RemoveFromCart(ctx context.Context, productID string) error {
	return c.mutate(productID, func() ([]CartProduct, error) {
		return c.api.Remove(ctx, productID)
	})
}

// Subtotal is the sum of price times quantity over the cached lines,
// recomputed from the current snapshot on every call.
func (c *Cache) Subtotal() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, p := range c.products {
		line := decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(int64(p.Quantity)))
		total = total.Add(line)
	}
	return total
}

// TotalItems is the sum of quantities over the cached lines.
func (c *Cache) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, p := range c.products {
		total += p.Quantity
	}
	return total
}

// mutate runs one server mutation under the product's loading flag. The
// flag is cleared on every path out; the cached cart is only replaced on
// success.
func (c *Cache) mutate(productID string, call func() ([]CartProduct, error)) error {
	c.mu.Lock()
	if c.loading[productID] {
		c.mu.Unlock()
		return ErrMutationInFlight
	}
	c.loading[productID] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.loading, productID)
		c.mu.Unlock()
	}()

	items, err := call()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.replaceLocked(items)
	c.mu.Unlock()
	return nil
}

func (c *Cache) replaceLocked(items []CartProduct) {
	if items == nil {
		items = []CartProduct{}
	}
	c.products = items

	if c.store != nil {
		if err := c.store.Save(items); err != nil {
			c.lg.Warn("failed to persist cart snapshot", zap.Error(err))
		}
	}
}
