// Package feed adapts the external signal source and macro/regime feed
// over plain HTTP. Both endpoints return a single JSON document per
// request; the controller treats them as opaque collaborators.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"trading-tick-controller/internal/regime"
	"trading-tick-controller/internal/signal"
)

// HTTPSignalSource fetches one candidate per tick from the signal
// service. 204 No Content means no opportunity this cycle.
type HTTPSignalSource struct {
	url    string
	client *http.Client
}

// NewHTTPSignalSource creates a signal source adapter.
func NewHTTPSignalSource(url string, timeout time.Duration) *HTTPSignalSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSignalSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Next fetches the current candidate.
func (s *HTTPSignalSource) Next() (*signal.Candidate, error) {
	resp, err := s.client.Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("feed: fetch signal: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed: signal endpoint returned %d", resp.StatusCode)
	}

	var c signal.Candidate
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return nil, fmt.Errorf("feed: decode candidate: %w", err)
	}
	return &c, nil
}

// HTTPMacroFeed fetches the market stress snapshot.
type HTTPMacroFeed struct {
	url    string
	client *http.Client
}

// NewHTTPMacroFeed creates a macro feed adapter.
func NewHTTPMacroFeed(url string, timeout time.Duration) *HTTPMacroFeed {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPMacroFeed{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Snapshot fetches the current macro snapshot.
func (f *HTTPMacroFeed) Snapshot(ctx context.Context) (regime.MacroSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return regime.MacroSnapshot{}, fmt.Errorf("feed: build macro request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return regime.MacroSnapshot{}, fmt.Errorf("feed: fetch macro snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return regime.MacroSnapshot{}, fmt.Errorf("feed: macro endpoint returned %d", resp.StatusCode)
	}

	var snap regime.MacroSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return regime.MacroSnapshot{}, fmt.Errorf("feed: decode macro snapshot: %w", err)
	}
	return snap, nil
}
