package petstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"petstore-assistant/internal/domain"
)

var testSession = domain.SessionInfo{SessionID: "SID-1", CSRFToken: "csrf-1"}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(srv.URL+"/", WithHTTPClient(&http.Client{Timeout: 2 * time.Second}))
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(" ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")

	_, err = NewClient("not a url")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid base url")
}

func TestUpdateCart_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/updatecart", r.URL.Path)
		require.Equal(t, "csrf-1", r.URL.Query().Get("csrf"))
		require.Equal(t, "42", r.URL.Query().Get("productId"))
		require.Equal(t, "csrf-1", r.Header.Get("X-XSRF-TOKEN"))
		cookie, err := r.Cookie("JSESSIONID")
		require.NoError(t, err)
		require.Equal(t, "SID-1", cookie.Value)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"productId":"42","productName":"Ball","quantity":2}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv).UpdateCart(context.Background(), testSession, "42")
	require.NoError(t, err)
	require.Equal(t, domain.CartUpdate{ProductID: "42", ProductName: "Ball", Quantity: 2}, out)
}

func TestUpdateCart_EmptyOrTextBody(t *testing.T) {
	for _, body := range []string{"", "OK"} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		out, err := newTestClient(t, srv).UpdateCart(context.Background(), testSession, "42")
		srv.Close()
		require.NoError(t, err)
		require.Equal(t, domain.CartUpdate{ProductID: "42"}, out)
	}
}

func TestUpdateCart_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`invalid csrf`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).UpdateCart(context.Background(), testSession, "42")
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusForbidden, statusErr.HTTPStatusCode())
	require.Contains(t, err.Error(), "invalid csrf")
}

func TestUpdateCart_Validation(t *testing.T) {
	c, err := NewClient("http://localhost:8080")
	require.NoError(t, err)

	_, err = c.UpdateCart(context.Background(), domain.SessionInfo{SessionID: "SID-1"}, "42")
	require.Error(t, err)
	require.Contains(t, err.Error(), "csrf")

	_, err = c.UpdateCart(context.Background(), testSession, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "product id")
}

func TestUpdateCart_NetworkError(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	require.NoError(t, err)
	_, err = c.UpdateCart(context.Background(), testSession, "42")
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")
}
