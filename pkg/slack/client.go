package slack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Slack Web API operations the news import needs.
type Client interface {
	// ChannelHistory fetches the recent messages of a channel, oldest
	// first.
	ChannelHistory(ctx context.Context, channelID string) ([]Message, error)
	// MessageReactions fetches the reactions on a single message.
	MessageReactions(ctx context.Context, channelID, timestamp string) ([]Reaction, error)
	// UserEmail resolves a Slack user ID to the profile email address.
	// Returns an empty string when the profile carries none.
	UserEmail(ctx context.Context, userID string) (string, error)
}

// Message is a channel message.
type Message struct {
	Timestamp string `json:"ts"`
	Text      string `json:"text"`
	User      string `json:"user"`
}

// Reaction is an emoji reaction with its count.
type Reaction struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ClientOption configures the Web API client.
type ClientOption func(*apiClient)

// WithAPIBaseURL sets a custom API base URL (for testing).
func WithAPIBaseURL(baseURL string) ClientOption {
	return func(c *apiClient) {
		c.baseURL = baseURL
	}
}

// WithAPIHTTPClient sets a custom HTTP client.
func WithAPIHTTPClient(hc *http.Client) ClientOption {
	return func(c *apiClient) {
		c.http = hc
	}
}

type apiClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a Slack Web API client authenticated with a bot
// token.
func NewClient(token string, opts ...ClientOption) Client {
	c := &apiClient{
		token:   token,
		baseURL: "https://slack.com/api",
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (c *apiClient) call(ctx context.Context, method string, params url.Values, out any) error {
	reqURL := c.baseURL + "/" + method
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrapf(err, "slack: create %s request", method)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "slack: call %s", method)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "slack: read %s response", method)
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("slack: %s status %d: %s", method, resp.StatusCode, string(body))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return eris.Wrapf(err, "slack: unmarshal %s envelope", method)
	}
	if !envelope.OK {
		return eris.Errorf("slack: %s failed: %s", method, envelope.Error)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "slack: unmarshal %s response", method)
	}
	return nil
}

func (c *apiClient) ChannelHistory(ctx context.Context, channelID string) ([]Message, error) {
	params := url.Values{
		"channel": []string{channelID},
		"limit":   []string{"100"},
	}

	var result struct {
		Messages []Message `json:"messages"`
	}
	if err := c.call(ctx, "conversations.history", params, &result); err != nil {
		return nil, err
	}

	// The API returns newest first.
	sort.Slice(result.Messages, func(i, j int) bool {
		return tsFloat(result.Messages[i].Timestamp) < tsFloat(result.Messages[j].Timestamp)
	})
	return result.Messages, nil
}

func (c *apiClient) MessageReactions(ctx context.Context, channelID, timestamp string) ([]Reaction, error) {
	params := url.Values{
		"channel":   []string{channelID},
		"timestamp": []string{timestamp},
	}

	var result struct {
		Message struct {
			Reactions []Reaction `json:"reactions"`
		} `json:"message"`
	}
	if err := c.call(ctx, "reactions.get", params, &result); err != nil {
		return nil, err
	}
	return result.Message.Reactions, nil
}

func (c *apiClient) UserEmail(ctx context.Context, userID string) (string, error) {
	params := url.Values{
		"user": []string{userID},
	}

	var result struct {
		User struct {
			Profile struct {
				Email string `json:"email"`
			} `json:"profile"`
		} `json:"user"`
	}
	if err := c.call(ctx, "users.info", params, &result); err != nil {
		return "", err
	}
	return result.User.Profile.Email, nil
}

func tsFloat(ts string) float64 {
	f, _ := strconv.ParseFloat(ts, 64)
	return f
}
