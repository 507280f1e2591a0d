package currency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestClientRate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/latest", r.URL.Path)
		require.Equal(t, "EUR", r.URL.Query().Get("from"))
		require.Equal(t, "GBP", r.URL.Query().Get("to"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"base":"EUR","date":"2026-10-13","rates":{"GBP":0.8512}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "GBP", nil)
	rate, err := c.Rate(context.Background(), "EUR")
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.RequireFromString("0.8512")))
}

func TestClientRateTargetCurrency(t *testing.T) {
	t.Parallel()

	c := NewClient("http://127.0.0.1:0", "GBP", nil)
	rate, err := c.Rate(context.Background(), "GBP")
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestClientRateErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("from") == "XXX" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"base":"USD","rates":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "GBP", nil)

	_, err := c.Rate(context.Background(), "XXX")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")

	_, err = c.Rate(context.Background(), "USD")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no GBP rate")
}
