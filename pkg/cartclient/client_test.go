package cartclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	body   map[string]any
}

// newTestServer serves the given response body for every request and
// records what it received.
func newTestServer(t *testing.T, status int, response string) (*Client, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{method: r.Method, path: r.URL.Path}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		requests = append(requests, rec)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	return NewClient(srv.URL, "u1", srv.Client()), &requests
}

func TestClient_Fetch(t *testing.T) {
	c, requests := newTestServer(t, http.StatusOK,
		`[{"id":"p1","name":"Widget","price":9.99,"description":"d","imageUrl":"/i.jpg","badge":"sale","quantity":2}]`)

	items, err := c.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	assert.Equal(t, http.MethodGet, (*requests)[0].method)
	assert.Equal(t, "/api/users/u1/cart", (*requests)[0].path)

	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ID)
	assert.Equal(t, 9.99, items[0].Price)
	assert.Equal(t, 2, items[0].Quantity)
	// Unknown fields survive as raw attributes.
	assert.Equal(t, jx.Raw(`"sale"`), items[0].Attrs["badge"])
}

func TestClient_Add(t *testing.T) {
	c, requests := newTestServer(t, http.StatusCreated, `[]`)

	_, err := c.Add(context.Background(), "p1", 3)
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	assert.Equal(t, http.MethodPost, (*requests)[0].method)
	assert.Equal(t, map[string]any{"productId": "p1", "quantity": float64(3)}, (*requests)[0].body)
}

func TestClient_SetQuantity_Zero(t *testing.T) {
	c, requests := newTestServer(t, http.StatusOK, `[]`)

	_, err := c.SetQuantity(context.Background(), "p1", 0)
	require.NoError(t, err)

	// An explicit zero must reach the wire (it means removal server-side).
	require.Len(t, *requests, 1)
	assert.Equal(t, http.MethodPatch, (*requests)[0].method)
	assert.Equal(t, map[string]any{"productId": "p1", "quantity": float64(0)}, (*requests)[0].body)
}

func TestClient_Remove(t *testing.T) {
	c, requests := newTestServer(t, http.StatusOK, `[]`)

	_, err := c.Remove(context.Background(), "p1")
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	assert.Equal(t, http.MethodDelete, (*requests)[0].method)
	assert.Equal(t, map[string]any{"productId": "p1"}, (*requests)[0].body)
}

func TestClient_ErrorResponse(t *testing.T) {
	c, _ := newTestServer(t, http.StatusNotFound, `{"error":"product not found"}`)

	_, err := c.Add(context.Background(), "nope", 1)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, "product not found", statusErr.Message)
}
