// Package campai provides a client for the campai accounting API,
// which backs the dashboard's donation counter.
package campai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// DonationAccount is the accounting account that collects donations.
const DonationAccount = 40400

// Client defines the campai accounting operations.
type Client interface {
	// AccountBalance returns the balance of one accounting account for
	// the given year, in cents.
	AccountBalance(ctx context.Context, year, account int) (int64, error)
}

// Option configures the campai client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(baseURL string) Option {
	return func(c *httpClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey    string
	orgID     string
	mandateID string
	baseURL   string
	http      *http.Client
}

// NewClient creates a campai client scoped to one organization and
// mandate.
func NewClient(apiKey, orgID, mandateID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		orgID:     orgID,
		mandateID: mandateID,
		baseURL:   "https://cloud.campai.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type balancesRequest struct {
	Range struct {
		Year int `json:"year"`
	} `json:"range"`
}

type balancesResponse struct {
	AccountBalances []accountBalance `json:"accountBalances"`
}

type accountBalance struct {
	Account int      `json:"account"`
	Balance *float64 `json:"balance"`
}

func (c *httpClient) AccountBalance(ctx context.Context, year, account int) (int64, error) {
	var payload balancesRequest
	payload.Range.Year = year

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, eris.Wrap(err, "campai: marshal balances request")
	}

	reqURL := fmt.Sprintf("%s/api/%s/%s/finance/accounting/balances/list", c.baseURL, c.orgID, c.mandateID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return 0, eris.Wrap(err, "campai: create balances request")
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "campai: list balances")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, eris.Wrap(err, "campai: read balances response")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, eris.Errorf("campai: balances status %d: %s", resp.StatusCode, string(body))
	}

	var result balancesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, eris.Wrap(err, "campai: unmarshal balances response")
	}

	for _, b := range result.AccountBalances {
		if b.Account != account {
			continue
		}
		if b.Balance == nil {
			return 0, eris.Errorf("campai: account %d has no balance field", account)
		}
		return int64(math.Round(*b.Balance)), nil
	}
	return 0, eris.Errorf("campai: account %d not found in balances", account)
}
