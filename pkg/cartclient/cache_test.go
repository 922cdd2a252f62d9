package cartclient

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI records calls and serves canned responses.
type fakeAPI struct {
	mu       sync.Mutex
	response []CartProduct
	err      error
	calls    []string

	// block, when non-nil, is closed by the test to release an in-flight
	// call; entered is closed once the call has started.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeAPI) record(name string) ([]CartProduct, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	response, err := f.response, f.err
	entered, block := f.entered, f.block
	f.mu.Unlock()

	if entered != nil {
		close(entered)
		f.mu.Lock()
		f.entered = nil
		f.mu.Unlock()
	}
	if block != nil {
		<-block
	}
	return response, err
}

func (f *fakeAPI) Fetch(context.Context) ([]CartProduct, error) {
	return f.record("fetch")
}

func (f *fakeAPI) Add(_ context.Context, productID string, _ int) ([]CartProduct, error) {
	return f.record("add " + productID)
}

func (f *fakeAPI) SetQuantity(_ context.Context, productID string, _ int) ([]CartProduct, error) {
	return f.record("set " + productID)
}

func (f *fakeAPI) Remove(_ context.Context, productID string) ([]CartProduct, error) {
	return f.record("remove " + productID)
}

func testLine(id string, price float64, quantity int) CartProduct {
	return CartProduct{
		ID:       id,
		Name:     "Product " + id,
		Price:    price,
		Quantity: quantity,
	}
}

func TestCache_UpdateQuantityReplacesCart(t *testing.T) {
	api := &fakeAPI{response: []CartProduct{testLine("p1", 9.99, 2)}}
	c := NewCache(api)
	c.SetCart([]CartProduct{testLine("p1", 9.99, 1)})

	err := c.UpdateQuantity(context.Background(), "p1", 2)
	require.NoError(t, err)

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.False(t, c.IsLoading("p1"))
	assert.Equal(t, []string{"set p1"}, api.calls)
}

func TestCache_UpdateQuantityBelowOneIsNoop(t *testing.T) {
	api := &fakeAPI{}
	c := NewCache(api)
	c.SetCart([]CartProduct{testLine("p1", 5, 1)})

	require.NoError(t, c.UpdateQuantity(context.Background(), "p1", 0))
	require.NoError(t, c.UpdateQuantity(context.Background(), "p1", -3))

	// No request was issued and the cart is untouched.
	assert.Empty(t, api.calls)
	assert.Equal(t, 1, c.TotalItems())
}

func TestCache_FailureKeepsLastKnownGood(t *testing.T) {
	api := &fakeAPI{err: errors.New("network down")}
	c := NewCache(api)
	before := []CartProduct{testLine("p1", 5, 3)}
	c.SetCart(before)

	err := c.UpdateQuantity(context.Background(), "p1", 1)
	require.Error(t, err)

	// The failed mutation was never applied, and the loading flag is
	// cleared so the user can retry.
	assert.Equal(t, before, c.Items())
	assert.False(t, c.IsLoading("p1"))
}

func TestCache_RemoveFromCart(t *testing.T) {
	api := &fakeAPI{response: []CartProduct{}}
	c := NewCache(api)
	c.SetCart([]CartProduct{testLine("p1", 5, 1)})

	require.NoError(t, c.RemoveFromCart(context.Background(), "p1"))
	assert.Empty(t, c.Items())
	assert.False(t, c.IsLoading("p1"))
}

func TestCache_AddToCart(t *testing.T) {
	api := &fakeAPI{response: []CartProduct{testLine("p1", 5, 1)}}
	c := NewCache(api)

	require.NoError(t, c.AddToCart(context.Background(), "p1", 1))
	assert.Equal(t, 1, c.TotalItems())
	assert.Equal(t, []string{"add p1"}, api.calls)
}

func TestCache_InFlightGate(t *testing.T) {
	api := &fakeAPI{
		response: []CartProduct{testLine("p1", 5, 2)},
		block:    make(chan struct{}),
		entered:  make(chan struct{}),
	}
	c := NewCache(api)
	c.SetCart([]CartProduct{testLine("p1", 5, 1)})

	done := make(chan error, 1)
	go func() {
		done <- c.UpdateQuantity(context.Background(), "p1", 2)
	}()
	<-api.entered

	// While the first mutation is outstanding the product is loading and a
	// second mutation for it is refused without a request.
	assert.True(t, c.IsLoading("p1"))
	err := c.RemoveFromCart(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrMutationInFlight)

	// A different product is not gated.
	assert.False(t, c.IsLoading("p2"))

	close(api.block)
	require.NoError(t, <-done)
	assert.False(t, c.IsLoading("p1"))
}

func TestCache_DerivedTotals(t *testing.T) {
	c := NewCache(&fakeAPI{})
	c.SetCart([]CartProduct{
		testLine("p1", 9.99, 2),
		testLine("p2", 0.5, 3),
	})

	assert.True(t, c.Subtotal().Equal(decimal.RequireFromString("21.48")),
		"got %s", c.Subtotal())
	assert.Equal(t, 5, c.TotalItems())

	// Totals follow the latest snapshot.
	c.SetCart(nil)
	assert.True(t, c.Subtotal().IsZero())
	assert.Equal(t, 0, c.TotalItems())
}

func TestCache_Refresh(t *testing.T) {
	api := &fakeAPI{response: []CartProduct{testLine("p1", 5, 4)}}
	c := NewCache(api)

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 4, c.TotalItems())
}

func TestCache_PersistsAndHydrates(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	api := &fakeAPI{response: []CartProduct{testLine("p1", 9.99, 2)}}
	c := NewCache(api, WithStore(store))
	require.NoError(t, c.AddToCart(context.Background(), "p1", 2))

	// A fresh cache over the same store hydrates the persisted cart
	// without touching the network.
	c2 := NewCache(&fakeAPI{}, WithStore(store))
	items := c2.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ID)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestFileStore_EmptyDir(t *testing.T) {
	store := NewFileStore(t.TempDir())

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestFileStore_RoundTripKeepsAttrs(t *testing.T) {
	store := NewFileStore(t.TempDir())
	line := testLine("p1", 5, 1)
	line.Attrs = map[string]jx.Raw{"edition": jx.Raw(`"limited"`)}

	require.NoError(t, store.Save([]CartProduct{line}))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, line.Attrs, loaded[0].Attrs)
}
