package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *RESTProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewRESTProvider(Config{
		QuoteBaseURL: server.URL,
		QuoteAPIKey:  "key",
		QuoteToken:   "token",
	})
}

func TestRESTProviderFetchOHLCV(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instruments/historical/RELIANCE/day" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"status": "success",
			"data": {
				"candles": [
					["2026-02-09", 2800.0, 2860.0, 2790.0, 2850.5, 1200000],
					["2026-02-10", 2851.0, 2870.0, 2840.0, 2855.0, 900000]
				]
			}
		}`))
	})

	from := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	candles, err := provider.FetchOHLCV(context.Background(), "RELIANCE", from, to)
	if err != nil {
		t.Fatalf("expected candles, got %v", err)
	}

	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[0].Close.String() != "2850.5" {
		t.Fatalf("expected close 2850.5, got %s", candles[0].Close)
	}
	if candles[1].Volume != 900000 {
		t.Fatalf("expected volume 900000, got %d", candles[1].Volume)
	}
}

func TestRESTProviderLastPrice(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("i"); got != "NSE:INFY" {
			t.Fatalf("unexpected instrument %q", got)
		}
		w.Write([]byte(`{"status":"success","data":{"NSE:INFY":{"last_price":1510.25}}}`))
	})

	price, err := provider.LastPrice(context.Background(), "INFY")
	if err != nil {
		t.Fatalf("expected price, got %v", err)
	}
	if price != 1510.25 {
		t.Fatalf("expected 1510.25, got %v", price)
	}
}

func TestRESTProviderAPIError(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"invalid token"}`))
	})

	if _, err := provider.LastPrice(context.Background(), "INFY"); err == nil {
		t.Fatal("expected api error to surface")
	}
}
