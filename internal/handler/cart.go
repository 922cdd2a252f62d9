package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/gorilla/mux"

	"github.com/shopfront/storefront/internal/domain/cart"
	"github.com/shopfront/storefront/internal/domain/product"
)

// cartMutationRequest is the body shared by the three cart mutations.
// Quantity is a pointer so "field absent" (POST defaults to 1) can be told
// apart from an explicit zero (PATCH removal).
type cartMutationRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

func decodeCartRequest(r *http.Request) (*cartMutationRequest, error) {
	var req cartMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// FetchCart returns the user's materialized cart; a user without a cart
// document gets an empty array.
func (h *Handler) FetchCart(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	items, err := h.carts.Fetch(r.Context(), userID)
	if err != nil {
		storeFailure(w, r, "failed to fetch cart", err)
		return
	}
	h.writeCart(w, http.StatusOK, items)
}

// AddToCart adds a product to the cart, incrementing an existing line or
// appending a new one. Quantity defaults to 1 when omitted.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	req, err := decodeCartRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	items, err := h.carts.Add(r.Context(), userID, req.ProductID, quantity)
	if err != nil {
		var iqErr *cart.InvalidQuantityError
		switch {
		case errors.As(err, &iqErr):
			writeError(w, http.StatusBadRequest, iqErr.Error())
		case errors.Is(err, product.ErrNotFound):
			writeError(w, http.StatusNotFound, "product not found")
		default:
			storeFailure(w, r, "failed to add to cart", err)
		}
		return
	}
	h.writeCart(w, http.StatusCreated, items)
}

// UpdateQuantity sets a line to an absolute quantity; zero removes the line.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	req, err := decodeCartRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" || req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "productId and quantity are required")
		return
	}

	items, err := h.carts.SetQuantity(r.Context(), userID, req.ProductID, *req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, cart.ErrNegativeQuantity):
			writeError(w, http.StatusBadRequest, "quantity cannot be negative")
		case errors.Is(err, cart.ErrItemNotFound):
			writeError(w, http.StatusNotFound, "item not found in cart")
		default:
			storeFailure(w, r, "failed to update quantity", err)
		}
		return
	}
	h.writeCart(w, http.StatusOK, items)
}

// RemoveFromCart deletes the line for a product. Removing an absent line is
// not an error.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	req, err := decodeCartRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}

	items, err := h.carts.Remove(r.Context(), userID, req.ProductID)
	if err != nil {
		storeFailure(w, r, "failed to remove from cart", err)
		return
	}
	h.writeCart(w, http.StatusOK, items)
}

func (h *Handler) writeCart(w http.ResponseWriter, status int, items []cart.CartProduct) {
	var e jx.Encoder
	encodeCartProducts(&e, items)
	writeJSON(w, status, &e)
}
