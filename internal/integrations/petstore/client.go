// Package petstore calls the pet-store web application on behalf of a
// shopper whose session was handed to the bot.
package petstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"petstore-assistant/internal/domain"
)

// HTTPStatusError captures non-2xx responses from the pet store.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("petstore: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// cartResponse is the JSON body returned by /api/updatecart.
type cartResponse struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
}

// Client talks to the pet-store web application.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the store at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("petstore: base url must not be empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("petstore: invalid base url: %w", err)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) updateCartURL(csrfToken, productID string) string {
	q := url.Values{}
	q.Set("csrf", csrfToken)
	q.Set("productId", productID)
	return c.baseURL + "/api/updatecart?" + q.Encode()
}

// UpdateCart adds one unit of productID to the cart of the shopper's
// session. The store authenticates the call with the session cookie and
// CSRF token.
func (c *Client) UpdateCart(ctx context.Context, session domain.SessionInfo, productID string) (domain.CartUpdate, error) {
	if !session.Valid() {
		return domain.CartUpdate{}, errors.New("petstore: session id and csrf token are required")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CartUpdate{}, errors.New("petstore: product id is required")
	}

	u := c.updateCartURL(session.CSRFToken, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return domain.CartUpdate{}, fmt.Errorf("petstore: create request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: "JSESSIONID", Value: session.SessionID})
	req.Header.Set("X-XSRF-TOKEN", session.CSRFToken)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return domain.CartUpdate{}, fmt.Errorf("petstore: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return domain.CartUpdate{}, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        c.baseURL + "/api/updatecart",
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return domain.CartUpdate{}, fmt.Errorf("petstore: read response body: %w", err)
	}
	out := domain.CartUpdate{ProductID: productID}
	// The store may answer with plain text; only JSON bodies carry details.
	var body cartResponse
	if err := json.Unmarshal(buf, &body); err != nil {
		return out, nil
	}
	if body.ProductID != "" {
		out.ProductID = body.ProductID
	}
	out.ProductName = body.ProductName
	out.Quantity = body.Quantity
	return out, nil
}
