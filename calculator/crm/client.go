// Package crm is the read-only boundary to the external CRM. The client
// only ever fetches deals; nothing is written back.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var ErrCrmUnavailable = errors.New("crm unreachable")

// Deal is the subset of a CRM deal the calculator ingests.
type Deal struct {
	Id       string  `json:"id"`
	Title    string  `json:"title"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Client   string  `json:"client"`
	WonAt    string  `json:"won_at"`
}

type Client struct {
	baseUrl string
	apiKey  string
	client  *http.Client
}

func NewClient(baseUrl, apiKey string) *Client {
	return &Client{
		baseUrl: baseUrl,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseUrl+endpoint, nil)
	if err != nil {
		return fmt.Errorf("error creating crm request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %v", c.apiKey))

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCrmUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: crm returned status %d for %v", ErrCrmUnavailable, res.StatusCode, endpoint)
	}

	if result != nil {
		if err := json.NewDecoder(res.Body).Decode(result); err != nil {
			return fmt.Errorf("error parsing crm response from %v: %w", endpoint, err)
		}
	}

	return nil
}

// Ping checks connectivity and credentials without fetching any data.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/ping", nil)
}

type listDealsResponse struct {
	Deals []Deal `json:"deals"`
}

func (c *Client) ListDeals(ctx context.Context) ([]Deal, error) {
	var res listDealsResponse
	if err := c.get(ctx, "/deals", &res); err != nil {
		return nil, err
	}
	return res.Deals, nil
}
