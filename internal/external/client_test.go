package external

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gr20-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), "test", "gr20-test")
	var out struct {
		Status string `json:"status"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "ok", out.Status)
}

func TestClientErrorDoesNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such point", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), "test", "")
	for i := 0; i < 6; i++ {
		err := c.GetJSON(context.Background(), srv.URL, &struct{}{})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Contains(t, apiErr.Message, "no such point")
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestServerErrorsOpenBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), "test", "")
	for i := 0; i < 4; i++ {
		err := c.GetJSON(context.Background(), srv.URL, &struct{}{})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	err := c.GetJSON(context.Background(), srv.URL, &struct{}{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(4), calls.Load(), "open breaker must not reach the server")
}
