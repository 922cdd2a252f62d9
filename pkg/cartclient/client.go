package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// API is the cart protocol as seen by the cache. Every call returns the
// complete materialized cart after the operation; there are no deltas.
type API interface {
	Fetch(ctx context.Context) ([]CartProduct, error)
	Add(ctx context.Context, productID string, quantity int) ([]CartProduct, error)
	SetQuantity(ctx context.Context, productID string, quantity int) ([]CartProduct, error)
	Remove(ctx context.Context, productID string) ([]CartProduct, error)
}

// StatusError is a non-2xx response from the cart API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cart api: %d %s", e.Code, e.Message)
}

var _ API = (*Client)(nil)

// Client talks to the cart endpoints for a single user. The user identifier
// is opaque here; whoever constructs the Client decides how it was
// established.
type Client struct {
	baseURL string
	userID  string
	http    *http.Client
}

// NewClient creates a Client for the given API base URL and user. Passing a
// nil httpClient uses a default with a 10s timeout.
func NewClient(baseURL, userID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		http:    httpClient,
	}
}

type mutationBody struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity,omitempty"`
}

// Fetch returns the current materialized cart.
func (c *Client) Fetch(ctx context.Context) ([]CartProduct, error) {
	return c.do(ctx, http.MethodGet, nil)
}

// Add puts quantity units of the product into the cart.
func (c *Client) Add(ctx context.Context, productID string, quantity int) ([]CartProduct, error) {
	return c.do(ctx, http.MethodPost, &mutationBody{ProductID: productID, Quantity: &quantity})
}

// SetQuantity sets the product's line to an absolute quantity; zero removes
// the line.
func (c *Client) SetQuantity(ctx context.Context, productID string, quantity int) ([]CartProduct, error) {
	return c.do(ctx, http.MethodPatch, &mutationBody{ProductID: productID, Quantity: &quantity})
}

// Remove deletes the product's line from the cart.
func (c *Client) Remove(ctx context.Context, productID string) ([]CartProduct, error) {
	return c.do(ctx, http.MethodDelete, &mutationBody{ProductID: productID})
}

func (c *Client) cartURL() string {
	return c.baseURL + "/api/users/" + c.userID + "/cart"
}

func (c *Client) do(ctx context.Context, method string, body *mutationBody) ([]CartProduct, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cartURL(), reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Code:    resp.StatusCode,
			Message: errorMessage(data),
		}
	}

	items, err := decodeCartProducts(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return items, nil
}

// errorMessage extracts the protocol's {"error": ...} message, falling back
// to the raw body.
func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
