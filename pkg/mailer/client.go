// Package mailer provides a client for a transactional e-mail HTTP API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the e-mail operations.
type Client interface {
	// Send delivers one message and returns the provider's message id.
	Send(ctx context.Context, msg Message) (string, error)
}

// Message is a single outbound e-mail.
type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text,omitempty"`
	HTML    string   `json:"html,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mailer: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the failure is worth retrying on a later pass.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Option configures the mailer client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithFrom sets the default sender used when Message.From is empty.
func WithFrom(from string) Option {
	return func(c *httpClient) {
		c.from = from
	}
}

type httpClient struct {
	apiKey  string
	from    string
	baseURL string
	http    *http.Client
}

// NewClient creates a new e-mail API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.resend.com",
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Send(ctx context.Context, msg Message) (string, error) {
	if msg.From == "" {
		msg.From = c.from
	}
	if len(msg.To) == 0 {
		return "", eris.New("mailer: no recipients")
	}
	if msg.From == "" {
		return "", eris.New("mailer: no sender")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", eris.Wrap(err, "mailer: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "mailer: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "mailer: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "mailer: read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out sendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", eris.Wrap(err, "mailer: decode response")
	}
	return out.ID, nil
}
