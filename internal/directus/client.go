// Package directus provides a client for the Directus items REST API,
// which fronts the dashboard's Postgres content store.
package directus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Item is a Directus record. Field sets differ per collection, so items
// stay dynamic maps until a dataset gives them shape.
type Item = map[string]any

// Client defines the Directus item operations the sync jobs need.
type Client interface {
	// ListItems fetches items from a collection. Params are passed through
	// as Directus query parameters (filter, fields, limit and so on).
	ListItems(ctx context.Context, collection string, params url.Values) ([]Item, error)
	// FindByKey fetches the item whose given field equals value. Returns
	// nil without error when no item matches.
	FindByKey(ctx context.Context, collection, field, value string) (Item, error)
	// CreateItem inserts a single item and returns the stored record.
	CreateItem(ctx context.Context, collection string, fields Item) (Item, error)
	// CreateItems inserts a batch of items in one request.
	CreateItems(ctx context.Context, collection string, items []Item) error
	// UpdateItem patches the item with the given primary key.
	UpdateItem(ctx context.Context, collection string, id any, fields Item) (Item, error)
	// UpdateSingleton patches a singleton collection, which has no
	// primary key in its item path.
	UpdateSingleton(ctx context.Context, collection string, fields Item) error
	// FindUserByEmail fetches the Directus user with the given email
	// address. Returns nil without error when no user matches.
	FindUserByEmail(ctx context.Context, email string) (Item, error)
}

// Eq returns query parameters for an equality filter on one field.
func Eq(field, value string) url.Values {
	return url.Values{
		fmt.Sprintf("filter[%s][_eq]", field): []string{value},
	}
}

// Option configures the Directus client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithWriteLimiter caps the rate of create and update requests so a
// large backfill cannot starve the dashboard API.
func WithWriteLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.writeLimiter = l
	}
}

type httpClient struct {
	baseURL      string
	token        string
	http         *http.Client
	writeLimiter *rate.Limiter
}

// NewClient creates a Directus client for the given instance. The token
// is a static Directus access token with write permission on the data
// collections.
func NewClient(baseURL, token string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		writeLimiter: rate.NewLimiter(20, 20),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes a request with exponential backoff on transient
// failures. The request body, if any, must be rebuilt per attempt via
// GetBody, which http.NewRequestWithContext sets for byte readers.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, 0, eris.Wrap(err, "directus: rewind request body")
			}
			retryReq.Body = body
		}

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "directus: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("directus: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) newRequest(ctx context.Context, method, path string, params url.Values, payload any) (*http.Request, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrap(err, "directus: marshal payload")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, eris.Wrap(err, "directus: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

type listResponse struct {
	Data []Item `json:"data"`
}

type itemResponse struct {
	Data Item `json:"data"`
}

func (c *httpClient) ListItems(ctx context.Context, collection string, params url.Values) ([]Item, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/items/"+collection, params, nil)
	if err != nil {
		return nil, err
	}

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "directus: list %s", collection)
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("directus: list %s: unexpected status %d: %s", collection, statusCode, string(body))
	}

	var result listResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrapf(err, "directus: unmarshal %s list", collection)
	}
	return result.Data, nil
}

func (c *httpClient) FindByKey(ctx context.Context, collection, field, value string) (Item, error) {
	params := Eq(field, value)
	params.Set("limit", "1")

	items, err := c.ListItems(ctx, collection, params)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func (c *httpClient) CreateItem(ctx context.Context, collection string, fields Item) (Item, error) {
	if err := c.writeLimiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "directus: write limiter wait")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/items/"+collection, nil, fields)
	if err != nil {
		return nil, err
	}

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "directus: create in %s", collection)
	}
	if statusCode != http.StatusOK && statusCode != http.StatusNoContent {
		return nil, eris.Errorf("directus: create in %s: unexpected status %d: %s", collection, statusCode, string(body))
	}

	if statusCode == http.StatusNoContent || len(body) == 0 {
		return fields, nil
	}
	var result itemResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrapf(err, "directus: unmarshal created %s item", collection)
	}
	return result.Data, nil
}

func (c *httpClient) CreateItems(ctx context.Context, collection string, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := c.writeLimiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "directus: write limiter wait")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/items/"+collection, nil, items)
	if err != nil {
		return err
	}

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return eris.Wrapf(err, "directus: batch create in %s", collection)
	}
	if statusCode != http.StatusOK && statusCode != http.StatusNoContent {
		return eris.Errorf("directus: batch create in %s: unexpected status %d: %s", collection, statusCode, string(body))
	}
	return nil
}

func (c *httpClient) UpdateItem(ctx context.Context, collection string, id any, fields Item) (Item, error) {
	if err := c.writeLimiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "directus: write limiter wait")
	}

	req, err := c.newRequest(ctx, http.MethodPatch, fmt.Sprintf("/items/%s/%v", collection, id), nil, fields)
	if err != nil {
		return nil, err
	}

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "directus: update %s/%v", collection, id)
	}
	if statusCode != http.StatusOK && statusCode != http.StatusNoContent {
		return nil, eris.Errorf("directus: update %s/%v: unexpected status %d: %s", collection, id, statusCode, string(body))
	}

	if statusCode == http.StatusNoContent || len(body) == 0 {
		return fields, nil
	}
	var result itemResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrapf(err, "directus: unmarshal updated %s item", collection)
	}
	return result.Data, nil
}

func (c *httpClient) UpdateSingleton(ctx context.Context, collection string, fields Item) error {
	if err := c.writeLimiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "directus: write limiter wait")
	}

	req, err := c.newRequest(ctx, http.MethodPatch, "/items/"+collection, nil, fields)
	if err != nil {
		return err
	}

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return eris.Wrapf(err, "directus: update singleton %s", collection)
	}
	if statusCode != http.StatusOK && statusCode != http.StatusNoContent {
		return eris.Errorf("directus: update singleton %s: unexpected status %d: %s", collection, statusCode, string(body))
	}
	return nil
}

func (c *httpClient) FindUserByEmail(ctx context.Context, email string) (Item, error) {
	params := Eq("email", email)
	params.Set("limit", "1")

	req, err := c.newRequest(ctx, http.MethodGet, "/users", params, nil)
	if err != nil {
		return nil, err
	}

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "directus: find user %s", email)
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("directus: find user %s: unexpected status %d: %s", email, statusCode, string(body))
	}

	var result listResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "directus: unmarshal user list")
	}
	if len(result.Data) == 0 {
		return nil, nil
	}
	return result.Data[0], nil
}
