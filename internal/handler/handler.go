// Package handler exposes the cart protocol and product lookups over JSON
// HTTP. Request bodies are small fixed shapes decoded with encoding/json;
// responses are streamed with jx so open catalog attributes can be passed
// through without a closed schema.
package handler

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shopfront/storefront/internal/domain/cart"
	"github.com/shopfront/storefront/internal/domain/product"
)

// Handler serves the cart and product endpoints, delegating business logic
// to the injected cart service and catalog repository.
type Handler struct {
	products product.Repository
	carts    *cart.Service
}

// New constructs a Handler with the required domain dependencies.
func New(products product.Repository, carts *cart.Service) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
	}
}

// Register mounts all routes on the given router (typically an /api
// subrouter).
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)

	c := r.PathPrefix("/users/{id}/cart").Subrouter()
	c.HandleFunc("", h.FetchCart).Methods(http.MethodGet)
	c.HandleFunc("", h.AddToCart).Methods(http.MethodPost)
	c.HandleFunc("", h.UpdateQuantity).Methods(http.MethodPatch)
	c.HandleFunc("", h.RemoveFromCart).Methods(http.MethodDelete)
}

// writeJSON writes an already-encoded jx buffer with the given status.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError responds with the protocol's {"error": message} shape.
func writeError(w http.ResponseWriter, status int, message string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("error", func(e *jx.Encoder) { e.Str(message) })
	})
	writeJSON(w, status, &e)
}

// storeFailure logs the underlying error for operators and hides it from
// the caller behind a generic 500.
func storeFailure(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

// encodeProduct writes one catalog product. Extension attributes ride along
// after the fixed fields, in sorted key order for stable output.
func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	encodeProductFields(e, p)
	e.ObjEnd()
}

// encodeCartProducts writes a materialized cart: product fields plus the
// line quantity, in cart line order.
func encodeCartProducts(e *jx.Encoder, items []cart.CartProduct) {
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		encodeProductFields(e, it.Product)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeProductFields(e *jx.Encoder, p product.Product) {
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.RawStr(p.Price.String())
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("imageUrl")
	e.Str(p.ImageURL)

	if len(p.Attrs) == 0 {
		return
	}
	keys := make([]string, 0, len(p.Attrs))
	for k := range p.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw, err := json.Marshal(p.Attrs[k])
		if err != nil {
			// Unencodable extension values are skipped rather than failing
			// the whole cart view.
			continue
		}
		e.FieldStart(k)
		e.Raw(raw)
	}
}
