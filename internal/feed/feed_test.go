package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSignalSource_Next(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"instrument": "BTCUSDT",
			"direction": "LONG",
			"score": 72.5,
			"confidence": 0.7,
			"atr": 120,
			"stop_distance": 5,
			"price": 50000,
			"asset_class": "CRYPTO_MAJOR"
		}`))
	}))
	defer srv.Close()

	src := NewHTTPSignalSource(srv.URL, 2*time.Second)
	c, err := src.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if c == nil {
		t.Fatal("Expected a candidate")
	}
	if c.Instrument != "BTCUSDT" || c.Score != 72.5 || c.StopDistance != 5 {
		t.Errorf("Unexpected candidate: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Expected decoded candidate to validate: %v", err)
	}
}

func TestHTTPSignalSource_NoContentMeansNoOpportunity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	src := NewHTTPSignalSource(srv.URL, 2*time.Second)
	c, err := src.Next()
	if err != nil {
		t.Fatalf("Expected nil error on 204, got %v", err)
	}
	if c != nil {
		t.Errorf("Expected nil candidate on 204, got %+v", c)
	}
}

func TestHTTPSignalSource_ServerErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewHTTPSignalSource(srv.URL, 2*time.Second)
	if _, err := src.Next(); err == nil {
		t.Error("Expected error on 500")
	}
}

func TestHTTPMacroFeed_Snapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"benchmark_24h_return": -0.04,
			"benchmark_7d_return": -0.06,
			"volatility_index": 27.5,
			"benchmark_momentum": 42,
			"sentiment": -0.3,
			"has_sentiment": true
		}`))
	}))
	defer srv.Close()

	f := NewHTTPMacroFeed(srv.URL, 2*time.Second)
	snap, err := f.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Benchmark24hReturn != -0.04 || snap.VolatilityIndex != 27.5 || !snap.HasSentiment {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
}

func TestHTTPMacroFeed_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	f := NewHTTPMacroFeed(srv.URL, 50*time.Millisecond)
	if _, err := f.Snapshot(context.Background()); err == nil {
		t.Error("Expected timeout error")
	}
}
