// Package whatsapp provides a client for an Evolution-compatible WhatsApp gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the WhatsApp gateway operations.
type Client interface {
	// SendText delivers a plain text message to a phone number.
	SendText(ctx context.Context, number, text string) (*SendResponse, error)
}

// SendResponse is the gateway acknowledgement.
type SendResponse struct {
	Key    MessageKey `json:"key"`
	Status string     `json:"status"`
}

// MessageKey identifies the message on the gateway.
type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	ID        string `json:"id"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("whatsapp: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the failure is worth retrying on a later pass.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Option configures the WhatsApp client.
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

type httpClient struct {
	apiKey   string
	instance string
	baseURL  string
	http     *http.Client
}

// NewClient creates a gateway client for one instance.
func NewClient(apiKey, instance string, opts ...Option) Client {
	c := &httpClient{
		apiKey:   apiKey,
		instance: instance,
		baseURL:  "http://localhost:8080",
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

func (c *httpClient) SendText(ctx context.Context, number, text string) (*SendResponse, error) {
	number = NormalizePhone(number)
	if number == "" {
		return nil, eris.New("whatsapp: empty phone number")
	}

	payload, err := json.Marshal(sendTextRequest{Number: number, Text: text})
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: marshal request")
	}

	reqURL := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, url.PathEscape(c.instance))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "whatsapp: read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out SendResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, eris.Wrap(err, "whatsapp: decode response")
		}
	}
	return &out, nil
}

// NormalizePhone strips formatting and prefixes Brazil's country code on
// 10 and 11 digit national numbers.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 10 || len(digits) == 11 {
		digits = "55" + digits
	}
	return digits
}
