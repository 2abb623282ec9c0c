// Package tripdata reads trip context from the backend-as-a-service that owns
// trips, itineraries, polls and expenses.
package tripdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"tripconcierge/internal/adapters/config"
	"tripconcierge/internal/domain/trip"
	"tripconcierge/pkg/errors"
)

// maxBody caps how much of a context response is read
const maxBody = 4 << 20

// Client fetches trip context over HTTP
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client; per-request deadlines come from the caller's ctx
func NewClient(cfg config.TripDataConfig, httpClient *http.Client) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.NewValidationError("TRIPDATA_BASE_URL", "must be set", cfg.BaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// FetchEnhanced loads the fully enriched context (files, photos, polls, spending, weather...)
func (c *Client) FetchEnhanced(ctx context.Context, tripID string) (*trip.Context, error) {
	return c.fetch(ctx, tripID, trip.TierEnhanced)
}

// FetchBasic loads core trip facts only; enrichments are dropped even if the backend sends them
func (c *Client) FetchBasic(ctx context.Context, tripID string) (*trip.Context, error) {
	tc, err := c.fetch(ctx, tripID, trip.TierBasic)
	if err != nil {
		return nil, err
	}
	return &trip.Context{
		TripID:              tc.TripID,
		Title:               tc.Title,
		Location:            tc.Location,
		Dates:               tc.Dates,
		Participants:        tc.Participants,
		Accommodation:       tc.Accommodation,
		CurrentDate:         tc.CurrentDate,
		UpcomingEvents:      tc.UpcomingEvents,
		RecentUpdates:       tc.RecentUpdates,
		ConfirmationNumbers: tc.ConfirmationNumbers,
	}, nil
}

// Ping checks the backend is reachable
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return errors.Wrap(err, "create tripdata health request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "tripdata health")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))

	if resp.StatusCode >= 300 {
		return errors.Wrapf(errors.ErrExternal, "tripdata health status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, tripID string, tier trip.Tier) (*trip.Context, error) {
	if tripID == "" {
		return nil, errors.NewValidationError("trip_id", "must not be empty", tripID)
	}

	endpoint := fmt.Sprintf("%s/v1/trips/%s/context?tier=%s", c.baseURL, url.PathEscape(tripID), tier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create tripdata request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s context", tier)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s context", tier)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrapf(errors.ErrNotFound, "trip %s", tripID)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Wrapf(errors.ErrExternal, "tripdata %s context (%d): %s", tier, resp.StatusCode, truncate(body, 200))
	}

	var tc trip.Context
	if err := json.Unmarshal(body, &tc); err != nil {
		return nil, errors.Wrapf(err, "decode %s context", tier)
	}
	if tc.TripID != "" && tc.TripID != tripID {
		return nil, errors.Wrapf(errors.ErrExternal, "tripdata returned trip %s for %s", tc.TripID, tripID)
	}
	return &tc, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
